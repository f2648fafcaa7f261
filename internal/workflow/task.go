package workflow

import (
	"fmt"

	"github.com/gcapes/hpcflow-new/internal/schema"
	"github.com/gcapes/hpcflow-new/internal/source"
	"github.com/gcapes/hpcflow-new/internal/values"
)

// Task is a template for work to be added to a workflow: a schema plus the
// locally supplied input values, value sequences, resource specifications
// and any user-specified input sources.
type Task struct {
	Schema    *schema.TaskSchema
	Inputs    []*values.InputValue
	Sequences []*values.ValueSequence
	Resources []*values.ResourceSpec

	// InputSources holds user-specified sources per input parameter type;
	// auto-resolved sources are merged in when the task is added.
	InputSources map[string][]source.InputSource
}

func (t *Task) Name() string {
	return t.Schema.Name
}

// localInputTypes collects the parameter types the task supplies values
// for itself, through single values or inputs sequences.
func (t *Task) localInputTypes() map[string]bool {
	out := make(map[string]bool)
	for _, iv := range t.Inputs {
		out[iv.Parameter.Typ] = true
	}
	for _, vs := range t.Sequences {
		if typ := vs.InputType(); typ != "" {
			out[typ] = true
		}
	}
	return out
}

// validate checks local values against the schema and binds sequence
// parameters to their canonical definitions.
func (t *Task) validate() error {
	for _, iv := range t.Inputs {
		if _, ok := t.Schema.Input(iv.Parameter.Typ); !ok {
			return fmt.Errorf("task %q: input value for %q is not declared by the schema",
				t.Name(), iv.Parameter.Typ)
		}
	}
	for _, vs := range t.Sequences {
		typ := vs.InputType()
		if typ == "" {
			continue
		}
		si, ok := t.Schema.Input(typ)
		if !ok {
			return fmt.Errorf("task %q: sequence %q addresses an input not declared by the schema",
				t.Name(), vs.Path)
		}
		vs.BindParameter(si.Parameter)
	}
	return nil
}

// WorkflowTask is a view of one task recorded in a workflow's metadata.
type WorkflowTask struct {
	workflow *Workflow
	index    int
}

func (wt *WorkflowTask) Index() int {
	return wt.index
}

func (wt *WorkflowTask) Name() string {
	return wt.workflow.metadata.Tasks[wt.index].Name
}

func (wt *WorkflowTask) InsertID() int {
	return wt.workflow.metadata.Tasks[wt.index].InsertID
}

// InputData returns the committed parameter group references per
// normalized input path.
func (wt *WorkflowTask) InputData() map[string][]int {
	return wt.workflow.metadata.Tasks[wt.index].InputData
}

// InputSources returns the serialized input sources per input type.
func (wt *WorkflowTask) InputSources() map[string][]string {
	return wt.workflow.metadata.Tasks[wt.index].InputSources
}
