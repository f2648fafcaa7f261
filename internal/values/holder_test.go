package values

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gcapes/hpcflow-new/internal/param"
	"github.com/gcapes/hpcflow-new/internal/scope"
)

// memStore is an in-memory ParamStore for holder tests.
type memStore struct {
	next       int
	values     map[int]any
	provenance map[int]map[string]any
	failAdd    bool
}

func newMemStore() *memStore {
	return &memStore{values: map[int]any{}, provenance: map[int]map[string]any{}}
}

func (m *memStore) AddParameterData(value any, provenance map[string]any) (int, error) {
	if m.failAdd {
		return 0, fmt.Errorf("store write refused")
	}
	ref := m.next
	m.next++
	m.values[ref] = value
	m.provenance[ref] = provenance
	return ref, nil
}

func (m *memStore) GetParameterData(ref int) (any, error) {
	v, ok := m.values[ref]
	if !ok {
		return nil, fmt.Errorf("parameter group %d not found", ref)
	}
	return v, nil
}

func (m *memStore) CheckParametersExist(refs []int) ([]bool, error) {
	out := make([]bool, len(refs))
	for i, ref := range refs {
		_, out[i] = m.values[ref]
	}
	return out, nil
}

func TestInputValue_MakePersistent(t *testing.T) {
	st := newMemStore()
	p, err := param.New("p1")
	require.NoError(t, err)

	iv := NewInputValue(p, 101, "")
	assert.False(t, iv.IsPersistent())
	assert.Equal(t, "inputs.p1", iv.NormalisedPath())

	v, err := iv.Value()
	require.NoError(t, err)
	assert.Equal(t, 101, v)

	path, refs, isNew, err := iv.MakePersistent(st, map[string]any{"type": "local_input"})
	require.NoError(t, err)
	assert.Equal(t, "inputs.p1", path)
	assert.Equal(t, []int{0}, refs)
	assert.True(t, isNew)
	assert.True(t, iv.IsPersistent())

	// value now comes back through the store
	v, err = iv.Value()
	require.NoError(t, err)
	assert.Equal(t, 101, v)
	assert.Equal(t, "local_input", st.provenance[0]["type"])
}

func TestInputValue_MakePersistent_Idempotent(t *testing.T) {
	st := newMemStore()
	p, _ := param.New("p1")
	iv := NewInputValue(p, 101, "")

	_, refs1, isNew, err := iv.MakePersistent(st, nil)
	require.NoError(t, err)
	require.True(t, isNew)

	_, refs2, isNew, err := iv.MakePersistent(st, nil)
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, refs1, refs2)
	assert.Len(t, st.values, 1)
}

func TestInputValue_ReferentialIntegrity(t *testing.T) {
	st := newMemStore()
	p, _ := param.New("p1")
	iv := NewInputValue(p, 101, "")
	_, refs, _, err := iv.MakePersistent(st, nil)
	require.NoError(t, err)

	delete(st.values, refs[0])

	_, _, _, err = iv.MakePersistent(st, nil)
	var integrity *ReferentialIntegrityError
	require.ErrorAs(t, err, &integrity)
	assert.Equal(t, "InputValue", integrity.Holder)
	assert.Equal(t, refs, integrity.Refs)
}

func TestInputValue_SubPath(t *testing.T) {
	p, _ := param.New("p1")
	iv := NewInputValue(p, 12, ".Orbit.Altitude.")
	assert.True(t, iv.IsSubValue())
	assert.Equal(t, "p1.orbit.altitude", iv.NormalisedInputsPath())
	assert.Equal(t, "inputs.p1.orbit.altitude", iv.NormalisedPath())
}

func TestRestoreInputValue(t *testing.T) {
	st := newMemStore()
	ref, err := st.AddParameterData("abc", nil)
	require.NoError(t, err)

	p, _ := param.New("p1")
	iv := RestoreInputValue(p, "", ref, st)
	assert.True(t, iv.IsPersistent())

	v, err := iv.Value()
	require.NoError(t, err)
	assert.Equal(t, "abc", v)
}

func TestValueSequence_MakePersistent(t *testing.T) {
	st := newMemStore()
	vs, err := NewValueSequence("inputs.p1", 0, []any{101, 102, 103})
	require.NoError(t, err)
	assert.Equal(t, "p1", vs.InputType())

	path, refs, isNew, err := vs.MakePersistent(st, map[string]any{"type": "sequence"})
	require.NoError(t, err)
	assert.Equal(t, "inputs.p1", path)
	assert.Equal(t, []int{0, 1, 2}, refs)
	assert.True(t, isNew)

	// each item is its own group with its position recorded
	for i, ref := range refs {
		assert.Equal(t, 101+i, st.values[ref])
		assert.Equal(t, i, st.provenance[ref]["sequence_idx"])
		assert.Equal(t, "sequence", st.provenance[ref]["type"])
	}

	vals, err := vs.Values()
	require.NoError(t, err)
	assert.Equal(t, []any{101, 102, 103}, vals)

	// second call returns the same refs without writing
	_, refs2, isNew, err := vs.MakePersistent(st, nil)
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, refs, refs2)
	assert.Len(t, st.values, 3)
}

func TestValueSequence_SharedProvenanceNotAliased(t *testing.T) {
	st := newMemStore()
	vs, err := NewValueSequence("inputs.p1", 0, []any{1, 2})
	require.NoError(t, err)

	prov := map[string]any{"type": "sequence"}
	_, refs, _, err := vs.MakePersistent(st, prov)
	require.NoError(t, err)

	// the caller's map must not have been mutated
	_, hasIdx := prov["sequence_idx"]
	assert.False(t, hasIdx)
	assert.NotEqual(t, st.provenance[refs[0]]["sequence_idx"], st.provenance[refs[1]]["sequence_idx"])
}

func TestValueSequence_InvalidPath(t *testing.T) {
	_, err := NewValueSequence("outputs.p1", 0, []any{1})
	var malformed *MalformedParameterPathError
	require.ErrorAs(t, err, &malformed)
}

func TestValueSequence_ResourcesPath(t *testing.T) {
	vs, err := NewValueSequence("resources.main.num_cores", 0, []any{8, 16})
	require.NoError(t, err)
	assert.Equal(t, PathResources, vs.Parsed().Kind)
	assert.Equal(t, "", vs.InputType())
}

func TestFromRange(t *testing.T) {
	vs, err := FromRange("inputs.p1", 0, 0, 10, 2)
	require.NoError(t, err)
	vals, err := vs.Values()
	require.NoError(t, err)
	assert.Equal(t, []any{0, 2, 4, 6, 8}, vals)

	vs, err = FromRange("inputs.p1", 0, 5, 0, -2)
	require.NoError(t, err)
	vals, _ = vs.Values()
	assert.Equal(t, []any{5, 3, 1}, vals)

	_, err = FromRange("inputs.p1", 0, 0, 10, 0)
	require.Error(t, err)
}

func TestFromLinearSpace(t *testing.T) {
	vs, err := FromLinearSpace("inputs.p1", 0, 0, 1, 5)
	require.NoError(t, err)
	vals, err := vs.Values()
	require.NoError(t, err)
	require.Len(t, vals, 5)
	assert.Equal(t, 0.0, vals[0])
	assert.Equal(t, 1.0, vals[4])
	assert.InDelta(t, 0.25, vals[1].(float64), 1e-12)

	_, err = FromLinearSpace("inputs.p1", 0, 0, 1, 1)
	require.Error(t, err)
}

func TestRestoreValueSequence_ReferentialIntegrity(t *testing.T) {
	st := newMemStore()
	vs, err := RestoreValueSequence("inputs.p1", 0, []int{7}, st)
	require.NoError(t, err)
	assert.True(t, vs.IsPersistent())

	_, _, _, err = vs.MakePersistent(st, nil)
	var integrity *ReferentialIntegrityError
	require.ErrorAs(t, err, &integrity)
	assert.Equal(t, "ValueSequence", integrity.Holder)
}

func TestResourceSpec(t *testing.T) {
	st := newMemStore()
	rs, err := NewResourceSpec(scope.AnyScope(), map[string]any{"num_cores": 8, "scratch": "/tmp"})
	require.NoError(t, err)
	assert.Equal(t, "resources.any", rs.NormalisedPath())

	path, refs, isNew, err := rs.MakePersistent(st, map[string]any{"type": "resources"})
	require.NoError(t, err)
	assert.Equal(t, "resources.any", path)
	assert.Len(t, refs, 1)
	assert.True(t, isNew)

	n, err := rs.NumCores()
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	s, err := rs.Scratch()
	require.NoError(t, err)
	assert.Equal(t, "/tmp", s)

	_, refs2, isNew, err := rs.MakePersistent(st, nil)
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, refs, refs2)
}

func TestNewResourceSpec_BatchedUnknownItems(t *testing.T) {
	_, err := NewResourceSpec(scope.AnyScope(), map[string]any{
		"num_cores": 8,
		"walltime":  "1h",
		"gpus":      2,
	})
	var unknown *UnknownResourceSpecItemError
	require.ErrorAs(t, err, &unknown)
	assert.ElementsMatch(t, []string{"walltime", "gpus"}, unknown.Items)
	assert.Equal(t, []string{"num_cores", "scratch"}, unknown.Allowed)
}

func TestNewResourceSpec_CopiesItems(t *testing.T) {
	items := map[string]any{"num_cores": 8}
	rs, err := NewResourceSpec(scope.AnyScope(), items)
	require.NoError(t, err)

	items["num_cores"] = 99
	got, err := rs.NumCores()
	require.NoError(t, err)
	assert.Equal(t, 8, got)
}

func TestMakePersistent_StoreFailure(t *testing.T) {
	st := newMemStore()
	st.failAdd = true

	p, _ := param.New("p1")
	iv := NewInputValue(p, 101, "")
	_, _, _, err := iv.MakePersistent(st, nil)
	require.Error(t, err)
	assert.False(t, iv.IsPersistent(), "a failed write must leave the holder pending")

	v, err := iv.Value()
	require.NoError(t, err)
	assert.Equal(t, 101, v)
}

func TestHolderInterfaceSatisfied(t *testing.T) {
	p, _ := param.New("p1")
	var _ Holder = NewInputValue(p, 1, "")
	vs, err := NewValueSequence("inputs.p1", 0, nil)
	require.NoError(t, err)
	var _ Holder = vs
	rs, err := NewResourceSpec(scope.AnyScope(), nil)
	require.NoError(t, err)
	var _ Holder = rs

	var checked error = &ReferentialIntegrityError{}
	assert.True(t, errors.As(checked, new(*ReferentialIntegrityError)))
}
