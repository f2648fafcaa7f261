package workflow

import (
	"fmt"
	"strings"
)

// MissingInputsError reports schema inputs that could not be satisfied by
// a local value, a default, or any preceding task's output. The list is in
// schema input declaration order.
type MissingInputsError struct {
	MissingInputs []string
}

func (e *MissingInputsError) Error() string {
	return fmt.Sprintf("the following task inputs have no sources: %s",
		strings.Join(e.MissingInputs, ", "))
}

// BatchUpdateFailedError reports that the on-disk metadata changed while a
// batch update was open. The attempted mutation is discarded; the caller
// must retry the whole scope from a fresh read.
type BatchUpdateFailedError struct {
	Location string
}

func (e *BatchUpdateFailedError) Error() string {
	return fmt.Sprintf("batch update of workflow at %q failed: metadata was modified on disk during the update", e.Location)
}
