package values

import (
	"fmt"

	"github.com/gcapes/hpcflow-new/internal/param"
)

// ValueSequence holds an ordered list of values addressed by a validated
// parameter path. NestingOrder controls how the sequence combines with
// sibling sequences during element expansion, which is consumed
// downstream; the sequence only carries it.
type ValueSequence struct {
	Path         string
	NestingOrder int

	// IsUnused is carried for definition-file compatibility and has no
	// behavior attached.
	IsUnused bool

	parsed    ParsedPath
	parameter *param.Parameter

	persistent bool
	values     []any // pending payload
	refs       []int // persistent group references, payload order
	store      ParamStore
}

// NewValueSequence validates path and constructs a pending sequence.
func NewValueSequence(path string, nestingOrder int, vals []any) (*ValueSequence, error) {
	parsed, err := ParsePath(path)
	if err != nil {
		return nil, err
	}
	return &ValueSequence{
		Path:         parsed.Path,
		NestingOrder: nestingOrder,
		parsed:       parsed,
		values:       vals,
	}, nil
}

// RestoreValueSequence rebuilds a persistent sequence from stored
// metadata.
func RestoreValueSequence(path string, nestingOrder int, refs []int, st ParamStore) (*ValueSequence, error) {
	vs, err := NewValueSequence(path, nestingOrder, nil)
	if err != nil {
		return nil, err
	}
	vs.persistent = true
	vs.values = nil
	vs.refs = refs
	vs.store = st
	return vs, nil
}

// FromRange builds an inputs sequence over [start, stop) with the given
// integer step.
func FromRange(path string, nestingOrder, start, stop, step int) (*ValueSequence, error) {
	if step == 0 {
		return nil, fmt.Errorf("value sequence %q: step must be non-zero", path)
	}
	vals := make([]any, 0)
	for v := start; (step > 0 && v < stop) || (step < 0 && v > stop); v += step {
		vals = append(vals, v)
	}
	return NewValueSequence(path, nestingOrder, vals)
}

// FromLinearSpace builds an inputs sequence of num evenly spaced values
// over [start, stop], endpoints included.
func FromLinearSpace(path string, nestingOrder int, start, stop float64, num int) (*ValueSequence, error) {
	if num < 2 {
		return nil, fmt.Errorf("value sequence %q: linear space requires at least two points", path)
	}
	vals := make([]any, num)
	step := (stop - start) / float64(num-1)
	for i := range vals {
		vals[i] = start + float64(i)*step
	}
	vals[num-1] = stop
	return NewValueSequence(path, nestingOrder, vals)
}

// Parsed returns the validated path components.
func (vs *ValueSequence) Parsed() ParsedPath {
	return vs.parsed
}

// InputType returns the parameter type for an inputs sequence, else "".
func (vs *ValueSequence) InputType() string {
	return vs.parsed.InputType
}

// BindParameter attaches the canonical parameter definition, resolved by
// the owning task against the registry when the task is validated.
func (vs *ValueSequence) BindParameter(p *param.Parameter) {
	vs.parameter = p
}

func (vs *ValueSequence) Parameter() *param.Parameter {
	return vs.parameter
}

func (vs *ValueSequence) NormalisedPath() string {
	return vs.Path
}

func (vs *ValueSequence) IsPersistent() bool {
	return vs.persistent
}

// MakePersistent writes each pending value as its own parameter group,
// tagging the item's position into the provenance as sequence_idx.
func (vs *ValueSequence) MakePersistent(st ParamStore, provenance map[string]any) (string, []int, bool, error) {
	if vs.persistent {
		if err := checkRefsExist(st, "ValueSequence", vs.Path, vs.refs); err != nil {
			return "", nil, false, err
		}
		return vs.Path, vs.refs, false, nil
	}

	refs := make([]int, 0, len(vs.values))
	for idx, val := range vs.values {
		prov := copyProvenance(provenance)
		prov["sequence_idx"] = idx
		ref, err := st.AddParameterData(val, prov)
		if err != nil {
			return "", nil, false, fmt.Errorf("persist sequence %s item %d: %w", vs.Path, idx, err)
		}
		refs = append(refs, ref)
	}

	vs.persistent = true
	vs.refs = refs
	vs.store = st
	vs.values = nil
	return vs.Path, refs, true, nil
}

// Values returns the sequence payload: in-memory while pending, otherwise
// each group reference dereferenced through the store and decoded by the
// bound value class if any.
func (vs *ValueSequence) Values() ([]any, error) {
	if !vs.persistent {
		return vs.values, nil
	}

	out := make([]any, 0, len(vs.refs))
	for _, ref := range vs.refs {
		raw, err := vs.store.GetParameterData(ref)
		if err != nil {
			return nil, fmt.Errorf("read sequence %s: %w", vs.Path, err)
		}
		val := raw
		if vs.parameter != nil {
			if val, err = vs.parameter.DecodeValue(raw); err != nil {
				return nil, err
			}
		}
		out = append(out, val)
	}
	return out, nil
}
