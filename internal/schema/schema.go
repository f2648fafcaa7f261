// Package schema defines task schemas: the typed inputs a task consumes
// and the outputs it declares, plus the YAML loader for definition files.
package schema

import (
	"fmt"

	"github.com/gcapes/hpcflow-new/internal/param"
	"github.com/gcapes/hpcflow-new/internal/values"
)

// ElementFilter restricts which upstream elements an input draws from.
// Carried as schema metadata; evaluation happens during element expansion
// downstream.
type ElementFilter struct {
	Path      string `yaml:"path"`
	Condition string `yaml:"condition"`
}

// SchemaInput is a parameter as consumed by a task schema, with an
// optional default value and a propagation mode controlling whether the
// value flows automatically to dependent tasks.
type SchemaInput struct {
	Parameter       *param.Parameter
	DefaultValue    *values.InputValue
	PropagationMode param.PropagationMode
	Group           string
	Where           *ElementFilter
}

// NewSchemaInput validates that any default value is held against the same
// parameter as the input itself.
func NewSchemaInput(p *param.Parameter, defaultValue *values.InputValue, mode param.PropagationMode) (SchemaInput, error) {
	if defaultValue != nil && defaultValue.Parameter != p {
		return SchemaInput{}, fmt.Errorf(
			"schema input default value must be an input value for parameter %q, but is for %q",
			p.Typ, defaultValue.Parameter.Typ)
	}
	return SchemaInput{Parameter: p, DefaultValue: defaultValue, PropagationMode: mode}, nil
}

func (si SchemaInput) Typ() string {
	return si.Parameter.Typ
}

// SchemaOutput is a parameter as produced by a task schema.
type SchemaOutput struct {
	Parameter       *param.Parameter
	PropagationMode param.PropagationMode
}

func (so SchemaOutput) Typ() string {
	return so.Parameter.Typ
}

// TaskSchema names a unit of work and declares its parameter interface.
// Action/command bodies are consumed by the jobscript collaborator and are
// not modelled here.
type TaskSchema struct {
	Name    string
	Inputs  []SchemaInput
	Outputs []SchemaOutput
}

func NewTaskSchema(name string, inputs []SchemaInput, outputs []SchemaOutput) (*TaskSchema, error) {
	if name == "" {
		return nil, fmt.Errorf("task schema requires a name")
	}
	return &TaskSchema{Name: name, Inputs: inputs, Outputs: outputs}, nil
}

// Input returns the schema input for a parameter type, if declared.
func (ts *TaskSchema) Input(typ string) (SchemaInput, bool) {
	for _, in := range ts.Inputs {
		if in.Typ() == typ {
			return in, true
		}
	}
	return SchemaInput{}, false
}

// Output returns the schema output for a parameter type, if declared.
func (ts *TaskSchema) Output(typ string) (SchemaOutput, bool) {
	for _, out := range ts.Outputs {
		if out.Typ() == typ {
			return out, true
		}
	}
	return SchemaOutput{}, false
}
