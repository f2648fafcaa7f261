package schema

import (
	"fmt"
	"io"
	"io/fs"

	yamlv3 "gopkg.in/yaml.v3"

	"github.com/gcapes/hpcflow-new/internal/param"
	"github.com/gcapes/hpcflow-new/internal/values"
	"github.com/gcapes/hpcflow-new/templates"
)

// Definitions holds the parameters and task schemas loaded from definition
// files, resolved against one shared registry.
type Definitions struct {
	Registry *param.Registry
	Schemas  map[string]*TaskSchema
}

// Schema returns a loaded task schema by name.
func (d *Definitions) Schema(name string) (*TaskSchema, error) {
	ts, ok := d.Schemas[name]
	if !ok {
		return nil, fmt.Errorf("task schema %q is not defined", name)
	}
	return ts, nil
}

// definition-file document shapes

type defsFile struct {
	Parameters  []paramDef  `yaml:"parameters"`
	TaskSchemas []schemaDef `yaml:"task_schemas"`
}

type paramDef struct {
	Type   string `yaml:"type"`
	IsFile bool   `yaml:"is_file"`
}

type schemaDef struct {
	Name    string      `yaml:"name"`
	Inputs  []inputDef  `yaml:"inputs"`
	Outputs []outputDef `yaml:"outputs"`
}

type inputDef struct {
	Parameter       string         `yaml:"parameter"`
	Default         any            `yaml:"default"`
	HasDefault      bool           `yaml:"-"`
	PropagationMode string         `yaml:"propagation_mode"`
	Group           string         `yaml:"group"`
	Where           *ElementFilter `yaml:"where"`
}

// UnmarshalYAML distinguishes an explicit null default from an absent one.
func (d *inputDef) UnmarshalYAML(node *yamlv3.Node) error {
	type plain inputDef
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*d = inputDef(p)
	for i := 0; i < len(node.Content)-1; i += 2 {
		if node.Content[i].Value == "default" {
			d.HasDefault = true
		}
	}
	return nil
}

type outputDef struct {
	Parameter       string `yaml:"parameter"`
	PropagationMode string `yaml:"propagation_mode"`
}

// NewDefinitions returns an empty definition set over a fresh registry.
func NewDefinitions() *Definitions {
	return &Definitions{
		Registry: param.NewRegistry(),
		Schemas:  make(map[string]*TaskSchema),
	}
}

// Load reads one definitions document and merges it in.
func (d *Definitions) Load(r io.Reader) error {
	content, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read definitions: %w", err)
	}

	var file defsFile
	if err := yamlv3.Unmarshal(content, &file); err != nil {
		return fmt.Errorf("parse definitions: %w", err)
	}

	for _, pd := range file.Parameters {
		p, err := param.New(pd.Type)
		if err != nil {
			return err
		}
		p.IsFile = pd.IsFile
		d.Registry.Add(p)
	}

	for _, sd := range file.TaskSchemas {
		ts, err := d.buildSchema(sd)
		if err != nil {
			return fmt.Errorf("task schema %q: %w", sd.Name, err)
		}
		d.Schemas[ts.Name] = ts
	}
	return nil
}

func (d *Definitions) buildSchema(sd schemaDef) (*TaskSchema, error) {
	inputs := make([]SchemaInput, 0, len(sd.Inputs))
	for _, in := range sd.Inputs {
		p, err := d.Registry.GetOrValidate(in.Parameter)
		if err != nil {
			return nil, err
		}
		mode, err := param.ParsePropagationMode(in.PropagationMode)
		if err != nil {
			return nil, err
		}

		var defVal *values.InputValue
		if in.HasDefault {
			defVal = values.NewInputValue(p, in.Default, "")
		}
		si, err := NewSchemaInput(p, defVal, mode)
		if err != nil {
			return nil, err
		}
		si.Group = in.Group
		si.Where = in.Where
		inputs = append(inputs, si)
	}

	outputs := make([]SchemaOutput, 0, len(sd.Outputs))
	for _, out := range sd.Outputs {
		p, err := d.Registry.GetOrValidate(out.Parameter)
		if err != nil {
			return nil, err
		}
		mode, err := param.ParsePropagationMode(out.PropagationMode)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, SchemaOutput{Parameter: p, PropagationMode: mode})
	}

	return NewTaskSchema(sd.Name, inputs, outputs)
}

// LoadBuiltins merges the embedded builtin parameter and task-schema
// definitions.
func (d *Definitions) LoadBuiltins() error {
	return fs.WalkDir(templates.FS, ".", func(path string, entry fs.DirEntry, err error) error {
		if err != nil || entry.IsDir() {
			return err
		}
		f, err := templates.FS.Open(path)
		if err != nil {
			return fmt.Errorf("open builtin definitions %s: %w", path, err)
		}
		defer f.Close()
		if err := d.Load(f); err != nil {
			return fmt.Errorf("builtin definitions %s: %w", path, err)
		}
		return nil
	})
}
