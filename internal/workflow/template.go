package workflow

import (
	"fmt"
	"io"

	yamlv3 "gopkg.in/yaml.v3"

	"github.com/gcapes/hpcflow-new/internal/schema"
	"github.com/gcapes/hpcflow-new/internal/scope"
	"github.com/gcapes/hpcflow-new/internal/source"
	"github.com/gcapes/hpcflow-new/internal/values"
)

// Template is the declarative description a workflow is created from.
type Template struct {
	Name  string
	Tasks []*Task
}

// workflow-template document shapes

type templateFile struct {
	Name  string        `yaml:"name"`
	Tasks []taskFileDef `yaml:"tasks"`
}

type taskFileDef struct {
	Schema    string              `yaml:"schema"`
	Inputs    map[string]any      `yaml:"inputs"`
	Sequences []sequenceFileDef   `yaml:"sequences"`
	Resources []map[string]any    `yaml:"resources"`
	Sources   map[string][]string `yaml:"sources"`
}

type sequenceFileDef struct {
	Path         string `yaml:"path"`
	NestingOrder int    `yaml:"nesting_order"`
	IsUnused     bool   `yaml:"is_unused"`
	Values       []any  `yaml:"values"`
}

// LoadTemplate parses a workflow template document, resolving schema names
// and parameter types against the given definitions.
func LoadTemplate(r io.Reader, defs *schema.Definitions) (*Template, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read workflow template: %w", err)
	}

	var file templateFile
	if err := yamlv3.Unmarshal(content, &file); err != nil {
		return nil, fmt.Errorf("parse workflow template: %w", err)
	}
	if file.Name == "" {
		return nil, fmt.Errorf("workflow template requires a name")
	}

	tpl := &Template{Name: file.Name}
	for i, td := range file.Tasks {
		t, err := buildTask(td, defs)
		if err != nil {
			return nil, fmt.Errorf("workflow template task %d: %w", i, err)
		}
		tpl.Tasks = append(tpl.Tasks, t)
	}
	return tpl, nil
}

func buildTask(td taskFileDef, defs *schema.Definitions) (*Task, error) {
	ts, err := defs.Schema(td.Schema)
	if err != nil {
		return nil, err
	}
	t := &Task{Schema: ts}

	for typ, val := range td.Inputs {
		p, err := defs.Registry.GetOrValidate(typ)
		if err != nil {
			return nil, err
		}
		t.Inputs = append(t.Inputs, values.NewInputValue(p, val, ""))
	}

	for _, sd := range td.Sequences {
		vs, err := values.NewValueSequence(sd.Path, sd.NestingOrder, sd.Values)
		if err != nil {
			return nil, err
		}
		vs.IsUnused = sd.IsUnused
		t.Sequences = append(t.Sequences, vs)
	}

	for _, rd := range td.Resources {
		rs, err := buildResourceSpec(rd)
		if err != nil {
			return nil, err
		}
		t.Resources = append(t.Resources, rs)
	}

	if len(td.Sources) > 0 {
		t.InputSources = make(map[string][]source.InputSource, len(td.Sources))
		for typ, defns := range td.Sources {
			for _, defn := range defns {
				s, err := source.Parse(defn)
				if err != nil {
					return nil, err
				}
				t.InputSources[typ] = append(t.InputSources[typ], s)
			}
		}
	}
	return t, nil
}

func buildResourceSpec(rd map[string]any) (*values.ResourceSpec, error) {
	sc := scope.AnyScope()
	items := make(map[string]any, len(rd))
	for k, v := range rd {
		if k == "scope" {
			token, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("resource scope must be a string, got %T", v)
			}
			parsed, err := scope.Parse(token)
			if err != nil {
				return nil, err
			}
			sc = parsed
			continue
		}
		items[k] = v
	}
	return values.NewResourceSpec(sc, items)
}
