package workflow

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gcapes/hpcflow-new/internal/schema"
	"github.com/gcapes/hpcflow-new/internal/scope"
	"github.com/gcapes/hpcflow-new/internal/source"
	"github.com/gcapes/hpcflow-new/internal/store"
	"github.com/gcapes/hpcflow-new/internal/values"
)

const testDefs = `
parameters:
  - type: p1
  - type: p2
  - type: p3

task_schemas:
  - name: ts1
    inputs:
      - parameter: p1
    outputs:
      - parameter: p2

  - name: ts2
    inputs:
      - parameter: p2
      - parameter: p3

  - name: ts3
    inputs:
      - parameter: p2

  - name: ts4
    inputs:
      - parameter: p3
        default: 301
    outputs:
      - parameter: p2
        propagation_mode: never
`

func testDefinitions(t *testing.T) *schema.Definitions {
	t.Helper()
	d := schema.NewDefinitions()
	require.NoError(t, d.Load(strings.NewReader(testDefs)))
	return d
}

func inputValue(t *testing.T, d *schema.Definitions, typ string, value any) *values.InputValue {
	t.Helper()
	p, err := d.Registry.GetOrValidate(typ)
	require.NoError(t, err)
	return values.NewInputValue(p, value, "")
}

func mustSchema(t *testing.T, d *schema.Definitions, name string) *schema.TaskSchema {
	t.Helper()
	ts, err := d.Schema(name)
	require.NoError(t, err)
	return ts
}

// newTestWorkflow creates a filesystem-backed workflow with a single task
// using ts1, supplying p1 locally.
func newTestWorkflow(t *testing.T, d *schema.Definitions) *Workflow {
	t.Helper()
	tpl := &Template{
		Name: "workflow_1",
		Tasks: []*Task{{
			Schema: mustSchema(t, d, "ts1"),
			Inputs: []*values.InputValue{inputValue(t, d, "p1", 101)},
		}},
	}
	w, err := CreateFS(filepath.Join(t.TempDir(), "wf"), tpl)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	return w
}

func TestCreate(t *testing.T) {
	d := testDefinitions(t)
	w := newTestWorkflow(t, d)

	assert.Equal(t, "workflow_1", w.Name())
	assert.NotEmpty(t, w.Metadata().WorkflowID)
	require.Len(t, w.Tasks(), 1)

	wt := w.Tasks()[0]
	assert.Equal(t, 0, wt.Index())
	assert.Equal(t, "ts1", wt.Name())
	assert.Equal(t, 0, wt.InsertID())
	assert.Equal(t, []string{"local"}, wt.InputSources()["p1"])

	// the local input value is committed as a parameter group
	refs := wt.InputData()["inputs.p1"]
	require.Len(t, refs, 1)
	v, err := w.Store().GetParameterData(refs[0])
	require.NoError(t, err)
	assert.Equal(t, 101, v)
}

func TestCreate_SurvivesReopen(t *testing.T) {
	d := testDefinitions(t)
	path := filepath.Join(t.TempDir(), "wf")
	tpl := &Template{
		Name: "workflow_1",
		Tasks: []*Task{{
			Schema: mustSchema(t, d, "ts1"),
			Inputs: []*values.InputValue{inputValue(t, d, "p1", 101)},
		}},
	}
	w, err := CreateFS(path, tpl)
	require.NoError(t, err)
	id := w.Metadata().WorkflowID
	require.NoError(t, w.Close())

	w2, err := OpenFS(path)
	require.NoError(t, err)
	defer w2.Close()

	assert.Equal(t, id, w2.Metadata().WorkflowID)
	require.Len(t, w2.Tasks(), 1)
	assert.Equal(t, "ts1", w2.Tasks()[0].Name())
}

func TestOpen_Missing(t *testing.T) {
	_, err := OpenFS(filepath.Join(t.TempDir(), "nope"))
	var notFound *store.WorkflowNotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestAddTask_UpstreamSource(t *testing.T) {
	d := testDefinitions(t)
	w := newTestWorkflow(t, d)

	// ts3 needs p2, which the first task's output provides
	wt, err := w.AddTask(&Task{Schema: mustSchema(t, d, "ts3")})
	require.NoError(t, err)

	assert.Equal(t, 1, wt.Index())
	assert.Equal(t, 1, wt.InsertID())
	assert.Equal(t, []string{"task.0.output"}, wt.InputSources()["p2"])
}

func TestAddTask_MissingInputs(t *testing.T) {
	d := testDefinitions(t)
	w := newTestWorkflow(t, d)

	// ts2 needs p2 and p3: p2 resolves upstream, p3 has no source at all
	_, err := w.AddTask(&Task{Schema: mustSchema(t, d, "ts2")})
	var missing *MissingInputsError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"p3"}, missing.MissingInputs)
}

func TestAddTask_FailureHasNoSideEffects(t *testing.T) {
	d := testDefinitions(t)
	w := newTestWorkflow(t, d)

	before, err := w.Metadata().Digest()
	require.NoError(t, err)

	_, err = w.AddTask(&Task{Schema: mustSchema(t, d, "ts2")})
	require.Error(t, err)

	after, err := w.Metadata().Digest()
	require.NoError(t, err)
	assert.Equal(t, before, after, "a failed addition must leave the persisted view untouched")
	assert.Len(t, w.Tasks(), 1)

	modified, err := w.IsModifiedOnDisk()
	require.NoError(t, err)
	assert.False(t, modified)
}

func TestAddTask_DefaultSource(t *testing.T) {
	d := testDefinitions(t)
	w := newTestWorkflow(t, d)

	wt, err := w.AddTask(&Task{Schema: mustSchema(t, d, "ts4")})
	require.NoError(t, err)
	assert.Equal(t, []string{"default"}, wt.InputSources()["p3"])
}

func TestAddTask_NeverPropagationExcluded(t *testing.T) {
	d := testDefinitions(t)
	w := newTestWorkflow(t, d)

	// ts4 declares p2 as output with propagation_mode never
	_, err := w.AddTask(&Task{Schema: mustSchema(t, d, "ts4")})
	require.NoError(t, err)

	// ts3 needs p2; only the first task's output qualifies
	wt, err := w.AddTask(&Task{Schema: mustSchema(t, d, "ts3")})
	require.NoError(t, err)
	assert.Equal(t, []string{"task.0.output"}, wt.InputSources()["p2"])
}

func TestAddTask_UserSourceKept(t *testing.T) {
	d := testDefinitions(t)
	w := newTestWorkflow(t, d)

	wt, err := w.AddTask(&Task{
		Schema: mustSchema(t, d, "ts3"),
		InputSources: map[string][]source.InputSource{
			"p2": {source.NewTask(source.NumericRef(0), source.TaskSourceOutput, 1, 2)},
		},
	})
	require.NoError(t, err)

	// the auto-resolved upstream source is a duplicate of the user's
	// (element filters are ignored when merging) and must not be added
	assert.Equal(t, []string{"task.0.output.[1,2]"}, wt.InputSources()["p2"])
}

func TestAddTask_UndeclaredInputRejected(t *testing.T) {
	d := testDefinitions(t)
	w := newTestWorkflow(t, d)

	_, err := w.AddTask(&Task{
		Schema: mustSchema(t, d, "ts3"),
		Inputs: []*values.InputValue{inputValue(t, d, "p1", 1)},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not declared by the schema")
}

func TestAddTask_Sequence(t *testing.T) {
	d := testDefinitions(t)
	w := newTestWorkflow(t, d)

	vs, err := values.FromRange("inputs.p2", 0, 0, 3, 1)
	require.NoError(t, err)

	wt, err := w.AddTask(&Task{
		Schema:    mustSchema(t, d, "ts3"),
		Sequences: []*values.ValueSequence{vs},
	})
	require.NoError(t, err)

	refs := wt.InputData()["inputs.p2"]
	require.Len(t, refs, 3)
	for i, ref := range refs {
		v, err := w.Store().GetParameterData(ref)
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}
	require.Len(t, w.Metadata().Tasks[wt.Index()].Sequences, 1)
	assert.Equal(t, refs, w.Metadata().Tasks[wt.Index()].Sequences[0].Refs)
}

func TestBatchUpdate_Empty(t *testing.T) {
	d := testDefinitions(t)
	w := newTestWorkflow(t, d)

	// make the on-disk metadata differ from the in-memory view
	external, err := w.Store().ReadMetadata()
	require.NoError(t, err)
	external.Extra = map[string]any{"added_externally": true}
	require.NoError(t, w.Store().WriteMetadata(external))

	// an empty scope must not write, not conflict, and not adopt
	require.NoError(t, w.BatchUpdate(func() error { return nil }))

	got, err := w.Store().ReadMetadata()
	require.NoError(t, err)
	assert.Equal(t, true, got.Extra["added_externally"], "empty batch must not overwrite external changes")
	assert.Nil(t, w.Metadata().Extra["added_externally"])
}

func TestBatchUpdate_ConflictAdoptsExternalMetadata(t *testing.T) {
	d := testDefinitions(t)
	w := newTestWorkflow(t, d)

	err := w.BatchUpdate(func() error {
		if _, err := w.addTask(&Task{Schema: mustSchema(t, d, "ts3")}); err != nil {
			return err
		}

		// another writer modifies the store while our batch is open
		external, err := w.Store().ReadMetadata()
		if err != nil {
			return err
		}
		if external.Extra == nil {
			external.Extra = map[string]any{}
		}
		external.Extra["foreign_key"] = "x"
		return w.Store().WriteMetadata(external)
	})

	var failed *BatchUpdateFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, w.Location(), failed.Location)

	// the staged task is discarded and the external view adopted
	assert.Len(t, w.Tasks(), 1)
	assert.Equal(t, "x", w.Metadata().Extra["foreign_key"])

	modified, err := w.IsModifiedOnDisk()
	require.NoError(t, err)
	assert.False(t, modified)
}

func TestBatchUpdate_NestedScopesCommitOnce(t *testing.T) {
	d := testDefinitions(t)
	w := newTestWorkflow(t, d)

	var innerDone bool
	err := w.BatchUpdate(func() error {
		if _, err := w.addTask(&Task{Schema: mustSchema(t, d, "ts3")}); err != nil {
			return err
		}
		// re-entering the open batch must not commit on inner exit
		return w.BatchUpdate(func() error {
			innerDone = true
			if !w.IsModified() {
				t.Error("inner scope should see the outer scope's staged state")
			}
			modified, err := w.IsModifiedOnDisk()
			if err != nil {
				return err
			}
			if modified {
				t.Error("nothing may reach the store before the outermost commit")
			}
			return nil
		})
	})
	require.NoError(t, err)
	require.True(t, innerDone)

	assert.Len(t, w.Tasks(), 2)
	modified, err := w.IsModifiedOnDisk()
	require.NoError(t, err)
	assert.False(t, modified, "outermost exit must have committed")
}

func TestBatchUpdate_AbortOnError(t *testing.T) {
	d := testDefinitions(t)
	w := newTestWorkflow(t, d)

	sentinel := &MissingInputsError{MissingInputs: []string{"p9"}}
	err := w.BatchUpdate(func() error {
		if _, err := w.addTask(&Task{Schema: mustSchema(t, d, "ts3")}); err != nil {
			return err
		}
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	assert.Len(t, w.Tasks(), 1, "the staged task must be rolled back")
	assert.False(t, w.IsModified())

	modified, err := w.IsModifiedOnDisk()
	require.NoError(t, err)
	assert.False(t, modified)
}

func TestCreate_FailureRemovesWorkflowDir(t *testing.T) {
	d := testDefinitions(t)
	path := filepath.Join(t.TempDir(), "wf")

	tpl := &Template{
		Name:  "workflow_2",
		Tasks: []*Task{{Schema: mustSchema(t, d, "ts2")}},
	}
	_, err := CreateFS(path, tpl)
	var missing *MissingInputsError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"p2", "p3"}, missing.MissingInputs)

	_, err = OpenFS(path)
	var notFound *store.WorkflowNotFoundError
	assert.ErrorAs(t, err, &notFound, "a failed creation must not leave a workflow behind")
}

func TestAddTask_ResourceSpec(t *testing.T) {
	d := testDefinitions(t)
	w := newTestWorkflow(t, d)

	rs, err := values.NewResourceSpec(scope.AnyScope(), map[string]any{"num_cores": 8})
	require.NoError(t, err)

	wt, err := w.AddTask(&Task{
		Schema:    mustSchema(t, d, "ts3"),
		Resources: []*values.ResourceSpec{rs},
	})
	require.NoError(t, err)

	refs := w.Metadata().Tasks[wt.Index()].ResourceData["resources.any"]
	require.Len(t, refs, 1)
	v, err := w.Store().GetParameterData(refs[0])
	require.NoError(t, err)
	items, ok := v.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 8, items["num_cores"])
}
