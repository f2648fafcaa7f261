// Package workflow ties the core together: a persistent record of tasks
// over a workflow store, the input-source resolver that wires new tasks to
// their upstream producers, and the optimistic batch-update transaction
// that commits pending value holders atomically.
package workflow

import (
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/gcapes/hpcflow-new/internal/store"
)

// Workflow is a persistent, parametrized record of tasks bound to a
// workflow store. The in-memory metadata mirrors the persisted document;
// mutations happen only inside a batch update.
type Workflow struct {
	st       store.Store
	metadata *store.Metadata
	batch    *Batch
}

// Create builds a new workflow on a freshly created store, adding the
// template's tasks in one batch update.
func Create(st store.Store, tpl *Template) (*Workflow, error) {
	md, err := st.ReadMetadata()
	if err != nil {
		return nil, err
	}
	w := &Workflow{st: st, metadata: md}

	if len(tpl.Tasks) == 0 {
		return w, nil
	}
	err = w.BatchUpdate(func() error {
		for _, t := range tpl.Tasks {
			if _, err := w.addTask(t); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return w, nil
}

// CreateFS creates a filesystem-backed workflow at path. On failure the
// partially created directory is removed.
func CreateFS(path string, tpl *Template) (*Workflow, error) {
	st, err := store.CreateFS(path, store.NewMetadata(tpl.Name, uuid.NewString()))
	if err != nil {
		return nil, err
	}
	w, err := Create(st, tpl)
	if err != nil {
		st.Close()
		os.RemoveAll(path)
		return nil, err
	}
	return w, nil
}

// CreateSQLite creates a SQLite-backed workflow at path.
func CreateSQLite(path string, tpl *Template) (*Workflow, error) {
	st, err := store.CreateSQLite(path, store.NewMetadata(tpl.Name, uuid.NewString()))
	if err != nil {
		return nil, err
	}
	w, err := Create(st, tpl)
	if err != nil {
		st.Close()
		os.Remove(path)
		return nil, err
	}
	return w, nil
}

// Open loads an existing workflow from its store. A missing workflow root
// surfaces as store.WorkflowNotFoundError.
func Open(st store.Store) (*Workflow, error) {
	md, err := st.ReadMetadata()
	if err != nil {
		return nil, err
	}
	return &Workflow{st: st, metadata: md}, nil
}

// OpenFS opens a filesystem-backed workflow at path.
func OpenFS(path string) (*Workflow, error) {
	st, err := store.OpenFS(path)
	if err != nil {
		return nil, err
	}
	return Open(st)
}

// OpenSQLite opens a SQLite-backed workflow at path.
func OpenSQLite(path string) (*Workflow, error) {
	st, err := store.OpenSQLite(path)
	if err != nil {
		return nil, err
	}
	return Open(st)
}

// Store exposes the backing store, e.g. for value-holder reads.
func (w *Workflow) Store() store.Store {
	return w.st
}

// Location identifies the workflow's store.
func (w *Workflow) Location() string {
	return w.st.Location()
}

// Close releases the backing store.
func (w *Workflow) Close() error {
	return w.st.Close()
}

// Name returns the workflow template name.
func (w *Workflow) Name() string {
	return w.metadata.Name
}

// Metadata returns the in-memory persisted view. Callers must not mutate
// it outside a batch update.
func (w *Workflow) Metadata() *store.Metadata {
	return w.metadata
}

// Tasks returns views of the recorded tasks in addition order.
func (w *Workflow) Tasks() []*WorkflowTask {
	out := make([]*WorkflowTask, len(w.metadata.Tasks))
	for i := range w.metadata.Tasks {
		out[i] = &WorkflowTask{workflow: w, index: i}
	}
	return out
}

// Task returns the task view at the given index.
func (w *Workflow) Task(index int) (*WorkflowTask, error) {
	if index < 0 || index >= len(w.metadata.Tasks) {
		return nil, fmt.Errorf("workflow has no task at index %d", index)
	}
	return &WorkflowTask{workflow: w, index: index}, nil
}

// IsModified reports whether the active batch update has staged any
// structural mutation. False when no batch is open.
func (w *Workflow) IsModified() bool {
	return w.batch != nil && w.batch.modified
}

// IsModifiedOnDisk compares the store's current metadata against the
// in-memory persisted view.
func (w *Workflow) IsModifiedOnDisk() (bool, error) {
	onDisk, err := w.st.ReadMetadata()
	if err != nil {
		return false, err
	}
	onDiskDigest, err := onDisk.Digest()
	if err != nil {
		return false, err
	}
	memDigest, err := w.metadata.Digest()
	if err != nil {
		return false, err
	}
	return onDiskDigest != memDigest, nil
}

// AddTask resolves the task's input sources and records it. Outside an
// open batch update the addition is wrapped in its own scope, so a
// successful return means the task is committed.
func (w *Workflow) AddTask(t *Task) (*WorkflowTask, error) {
	var wt *WorkflowTask
	err := w.BatchUpdate(func() error {
		var err error
		wt, err = w.addTask(t)
		return err
	})
	if err != nil {
		return nil, err
	}
	return wt, nil
}
