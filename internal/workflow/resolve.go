package workflow

import (
	"github.com/gcapes/hpcflow-new/internal/param"
	"github.com/gcapes/hpcflow-new/internal/source"
	"github.com/gcapes/hpcflow-new/internal/store"
)

// addTask validates the task, resolves where each of its schema inputs is
// sourced from, and stages it in the active batch. Nothing is written to
// the store until the batch commits; a resolution failure therefore has
// zero persisted side effects.
func (w *Workflow) addTask(t *Task) (*WorkflowTask, error) {
	b := w.batch

	if err := t.validate(); err != nil {
		return nil, err
	}

	sources, missing := w.resolveInputSources(t)
	if len(missing) > 0 {
		return nil, &MissingInputsError{MissingInputs: missing}
	}

	insertID := w.nextInsertID()
	meta := store.TaskMeta{
		Name:         t.Name(),
		InsertID:     insertID,
		InputData:    make(map[string][]int),
		ResourceData: make(map[string][]int),
		InputSources: make(map[string][]string, len(sources)),
	}
	for typ, srcs := range sources {
		serialized := make([]string, len(srcs))
		for i, s := range srcs {
			serialized[i] = s.String()
		}
		meta.InputSources[typ] = serialized
	}
	for _, out := range t.Schema.Outputs {
		meta.Outputs = append(meta.Outputs, store.OutputMeta{
			Type:            out.Typ(),
			PropagationMode: out.PropagationMode.String(),
		})
	}

	index := len(w.metadata.Tasks)
	w.metadata.Tasks = append(w.metadata.Tasks, meta)
	b.staged = append(b.staged, stagedTask{taskIndex: index, task: t})
	b.markModified()

	return &WorkflowTask{workflow: w, index: index}, nil
}

func (w *Workflow) nextInsertID() int {
	next := 0
	for _, tm := range w.metadata.Tasks {
		if tm.InsertID >= next {
			next = tm.InsertID + 1
		}
	}
	return next
}

// resolveInputSources decides, per schema input in declaration order,
// where the input's value comes from: user-specified sources first, then a
// local value, the schema default, and finally any preceding task's
// declared output of the same parameter type whose propagation mode allows
// it. Equivalent sources (ignoring element filters) are merged. Inputs
// with no source at all are returned as missing, in declaration order.
func (w *Workflow) resolveInputSources(t *Task) (map[string][]source.InputSource, []string) {
	local := t.localInputTypes()
	sources := make(map[string][]source.InputSource)
	var missing []string

	for _, si := range t.Schema.Inputs {
		typ := si.Typ()
		avail := append([]source.InputSource(nil), t.InputSources[typ]...)

		if local[typ] {
			if s := source.NewLocal(); !s.IsIn(avail) {
				avail = append(avail, s)
			}
		}
		if si.DefaultValue != nil {
			if s := source.NewDefault(); !s.IsIn(avail) {
				avail = append(avail, s)
			}
		}
		for _, tm := range w.metadata.Tasks {
			if !taskProvides(tm, typ) {
				continue
			}
			s := source.NewTask(source.NumericRef(tm.InsertID), source.TaskSourceOutput)
			if !s.IsIn(avail) {
				avail = append(avail, s)
			}
		}

		if len(avail) == 0 {
			missing = append(missing, typ)
			continue
		}
		sources[typ] = avail
	}
	return sources, missing
}

// taskProvides reports whether a recorded task declares an output of the
// given type that propagates to dependent tasks.
func taskProvides(tm store.TaskMeta, typ string) bool {
	for _, out := range tm.Outputs {
		if out.Type == typ && out.PropagationMode != param.PropagationNever.String() {
			return true
		}
	}
	return false
}
