package values

import (
	"fmt"
	"sort"
	"strings"
)

// MalformedParameterPathError reports a parameter path string that fails
// the addressing grammar. Fatal at construction.
type MalformedParameterPathError struct {
	Path   string
	Reason string
}

func (e *MalformedParameterPathError) Error() string {
	return fmt.Sprintf("malformed parameter path %q: %s", e.Path, e.Reason)
}

// UnknownResourceSpecItemError reports resource item names outside the
// allowed set. All offending names are batched into one error.
type UnknownResourceSpecItemError struct {
	Items   []string
	Allowed []string
}

func (e *UnknownResourceSpecItemError) Error() string {
	return fmt.Sprintf("the following resource item names are unknown: %s; allowed resource item names are: %s",
		quoteJoin(e.Items), quoteJoin(e.Allowed))
}

func quoteJoin(items []string) string {
	sorted := append([]string(nil), items...)
	sort.Strings(sorted)
	quoted := make([]string, len(sorted))
	for i, s := range sorted {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return strings.Join(quoted, ", ")
}

// ReferentialIntegrityError signals that a holder claims persistence but
// one or more of its references no longer exist in the store. This is a
// corruption signal, never silently recovered.
type ReferentialIntegrityError struct {
	Holder string
	Path   string
	Refs   []int
}

func (e *ReferentialIntegrityError) Error() string {
	return fmt.Sprintf("%s at %q has parameter group references %v, but they do not all exist in the workflow store",
		e.Holder, e.Path, e.Refs)
}
