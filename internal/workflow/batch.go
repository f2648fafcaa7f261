package workflow

import (
	"fmt"

	"github.com/gcapes/hpcflow-new/internal/store"
	"github.com/gcapes/hpcflow-new/internal/values"
)

// Batch is a scoped mutation transaction over a workflow. All structural
// mutations stage pending value holders; nothing touches the store until
// Commit, which first verifies that no other writer changed the on-disk
// metadata since Begin (optimistic concurrency). Abort discards every
// staged mutation. Scopes do not nest: re-entering while a batch is open
// reuses it, and only the outermost exit commits or aborts.
type Batch struct {
	w     *Workflow
	saved *store.Metadata // restore point for abort
	// snapshotDigest captures the persisted view at Begin; commit fails
	// if the on-disk metadata no longer matches it.
	snapshotDigest string
	modified       bool
	staged         []stagedTask
	depth          int
	beginErr       error
}

type stagedTask struct {
	taskIndex int
	task      *Task
}

// Begin opens a batch update, or re-enters the active one.
func (w *Workflow) Begin() *Batch {
	if w.batch != nil {
		w.batch.depth++
		return w.batch
	}

	b := &Batch{w: w}
	saved, err := w.metadata.Clone()
	if err != nil {
		b.beginErr = err
	} else {
		b.saved = saved
		b.snapshotDigest, b.beginErr = w.metadata.Digest()
	}
	w.batch = b
	return b
}

func (b *Batch) markModified() {
	b.modified = true
}

// Abort discards all mutations staged in this scope and restores the
// in-memory persisted view. On a nested re-entry it only unwinds one
// level; the outermost abort clears the scope.
func (b *Batch) Abort() {
	if b.depth > 0 {
		b.depth--
		return
	}
	if b.saved != nil {
		b.w.metadata = b.saved
	}
	b.w.batch = nil
}

// Commit persists every staged mutation, or aborts if another writer
// modified the store's metadata since Begin. The outermost commit writes;
// nested re-entries only unwind.
func (b *Batch) Commit() error {
	if b.depth > 0 {
		b.depth--
		return nil
	}
	if b.beginErr != nil {
		b.Abort()
		return fmt.Errorf("batch update snapshot: %w", b.beginErr)
	}
	if !b.modified {
		// Empty scope: no store write at all.
		b.w.batch = nil
		return nil
	}

	w := b.w
	onDisk, err := w.st.ReadMetadata()
	if err != nil {
		b.Abort()
		return fmt.Errorf("re-read metadata at commit: %w", err)
	}
	onDiskDigest, err := onDisk.Digest()
	if err != nil {
		b.Abort()
		return err
	}
	if onDiskDigest != b.snapshotDigest {
		// Concurrent external modification: discard the attempted
		// mutation and adopt the external metadata as the persisted
		// view.
		w.metadata = onDisk
		w.batch = nil
		return &BatchUpdateFailedError{Location: w.st.Location()}
	}

	if err := w.st.Lock(); err != nil {
		b.Abort()
		return fmt.Errorf("lock workflow for commit: %w", err)
	}
	defer func() { _ = w.st.Unlock() }()

	for _, st := range b.staged {
		if err := w.persistTaskData(st); err != nil {
			b.Abort()
			return err
		}
	}

	if err := w.st.WriteMetadata(w.metadata); err != nil {
		b.Abort()
		return fmt.Errorf("write metadata at commit: %w", err)
	}
	w.batch = nil
	return nil
}

// BatchUpdate runs fn inside a batch-update scope, committing on success
// and aborting on error or panic.
func (w *Workflow) BatchUpdate(fn func() error) error {
	b := w.Begin()
	completed := false
	defer func() {
		if !completed {
			b.Abort()
		}
	}()

	if err := fn(); err != nil {
		return err
	}
	completed = true
	return b.Commit()
}

// persistTaskData transitions every pending value holder of a staged task
// and records the resulting group references in the task's metadata.
func (w *Workflow) persistTaskData(st stagedTask) error {
	meta := &w.metadata.Tasks[st.taskIndex]
	t := st.task

	for _, iv := range t.Inputs {
		prov := map[string]any{
			"type":           "local_input",
			"task_insert_id": meta.InsertID,
		}
		path, refs, _, err := iv.MakePersistent(w.st, prov)
		if err != nil {
			return err
		}
		meta.InputData[path] = refs
	}

	for _, vs := range t.Sequences {
		prov := map[string]any{
			"type":           "sequence",
			"task_insert_id": meta.InsertID,
		}
		path, refs, _, err := vs.MakePersistent(w.st, prov)
		if err != nil {
			return err
		}
		meta.Sequences = append(meta.Sequences, store.SequenceMeta{
			Path:         path,
			NestingOrder: vs.NestingOrder,
			IsUnused:     vs.IsUnused,
			Refs:         refs,
		})
		if vs.Parsed().Kind == values.PathInputs {
			meta.InputData[path] = refs
		} else {
			meta.ResourceData[path] = refs
		}
	}

	for _, rs := range t.Resources {
		prov := map[string]any{
			"type":           "resources",
			"task_insert_id": meta.InsertID,
		}
		path, refs, _, err := rs.MakePersistent(w.st, prov)
		if err != nil {
			return err
		}
		meta.ResourceData[path] = refs
	}

	return nil
}
