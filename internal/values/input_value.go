package values

import (
	"fmt"
	"strings"

	"github.com/gcapes/hpcflow-new/internal/param"
)

// InputValue holds a single value for a task input, optionally addressing
// a sub-part of a composite parameter via SubPath.
type InputValue struct {
	Parameter *param.Parameter
	SubPath   string

	persistent bool
	value      any // pending payload
	ref        int // persistent group reference
	store      ParamStore
}

// NewInputValue constructs a pending input value. subPath addresses part
// of the parameter's value and may be empty; surrounding dots are
// stripped.
func NewInputValue(p *param.Parameter, value any, subPath string) *InputValue {
	return &InputValue{
		Parameter: p,
		SubPath:   strings.Trim(strings.ToLower(subPath), "."),
		value:     value,
	}
}

// RestoreInputValue rebuilds a persistent input value from stored
// metadata.
func RestoreInputValue(p *param.Parameter, subPath string, ref int, st ParamStore) *InputValue {
	return &InputValue{
		Parameter:  p,
		SubPath:    subPath,
		persistent: true,
		ref:        ref,
		store:      st,
	}
}

// IsSubValue reports whether the value addresses a sub-part of the
// parameter. Sub-values are not merged into the base parameter data.
func (iv *InputValue) IsSubValue() bool {
	return iv.SubPath != ""
}

func (iv *InputValue) NormalisedInputsPath() string {
	if iv.SubPath != "" {
		return iv.Parameter.Typ + "." + iv.SubPath
	}
	return iv.Parameter.Typ
}

func (iv *InputValue) NormalisedPath() string {
	return "inputs." + iv.NormalisedInputsPath()
}

func (iv *InputValue) IsPersistent() bool {
	return iv.persistent
}

func (iv *InputValue) MakePersistent(st ParamStore, provenance map[string]any) (string, []int, bool, error) {
	path := iv.NormalisedPath()

	if iv.persistent {
		if err := checkRefsExist(st, "InputValue", path, []int{iv.ref}); err != nil {
			return "", nil, false, err
		}
		return path, []int{iv.ref}, false, nil
	}

	ref, err := st.AddParameterData(iv.value, provenance)
	if err != nil {
		return "", nil, false, fmt.Errorf("persist input value %s: %w", path, err)
	}
	iv.persistent = true
	iv.ref = ref
	iv.store = st
	iv.value = nil
	return path, []int{ref}, true, nil
}

// Value returns the held value: the in-memory payload while pending, or
// the dereferenced (and value-class decoded) store payload once
// persistent.
func (iv *InputValue) Value() (any, error) {
	if !iv.persistent {
		return iv.value, nil
	}
	raw, err := iv.store.GetParameterData(iv.ref)
	if err != nil {
		return nil, fmt.Errorf("read input value %s: %w", iv.NormalisedPath(), err)
	}
	return iv.Parameter.DecodeValue(raw)
}
