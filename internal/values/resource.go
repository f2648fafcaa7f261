package values

import (
	"fmt"
	"sort"

	"github.com/gcapes/hpcflow-new/internal/scope"
)

// allowedResourceItems is the restricted set of resource parameter names a
// ResourceSpec accepts.
var allowedResourceItems = map[string]bool{
	"scratch":   true,
	"num_cores": true,
}

// AllowedResourceItems returns the allowed resource item names, sorted.
func AllowedResourceItems() []string {
	out := make([]string, 0, len(allowedResourceItems))
	for name := range allowedResourceItems {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func isAllowedResourceItem(name string) bool {
	return allowedResourceItems[name]
}

// ResourceSpec is a scoped set of resource parameters (scratch, num_cores)
// applied to the actions selected by its scope. Once persistent, only the
// scope and the value group reference are held; individual items are
// dereferenced lazily.
type ResourceSpec struct {
	Scope scope.ActionScope

	persistent bool
	items      map[string]any // pending payload
	ref        int            // persistent group reference
	store      ParamStore
}

// NewResourceSpec validates the supplied item names against the allowed
// set. Every unrecognized name is reported in one batched
// UnknownResourceSpecItemError.
func NewResourceSpec(sc scope.ActionScope, items map[string]any) (*ResourceSpec, error) {
	var bad []string
	for name := range items {
		if !isAllowedResourceItem(name) {
			bad = append(bad, name)
		}
	}
	if len(bad) > 0 {
		return nil, &UnknownResourceSpecItemError{Items: bad, Allowed: AllowedResourceItems()}
	}

	copied := make(map[string]any, len(items))
	for k, v := range items {
		copied[k] = v
	}
	return &ResourceSpec{Scope: sc, items: copied}, nil
}

// RestoreResourceSpec rebuilds a persistent resource spec from stored
// metadata.
func RestoreResourceSpec(sc scope.ActionScope, ref int, st ParamStore) *ResourceSpec {
	return &ResourceSpec{Scope: sc, persistent: true, ref: ref, store: st}
}

func (rs *ResourceSpec) NormalisedPath() string {
	return "resources." + rs.Scope.String()
}

func (rs *ResourceSpec) IsPersistent() bool {
	return rs.persistent
}

func (rs *ResourceSpec) MakePersistent(st ParamStore, provenance map[string]any) (string, []int, bool, error) {
	path := rs.NormalisedPath()

	if rs.persistent {
		if err := checkRefsExist(st, "ResourceSpec", path, []int{rs.ref}); err != nil {
			return "", nil, false, err
		}
		return path, []int{rs.ref}, false, nil
	}

	ref, err := st.AddParameterData(rs.items, provenance)
	if err != nil {
		return "", nil, false, fmt.Errorf("persist resource spec %s: %w", path, err)
	}
	rs.persistent = true
	rs.ref = ref
	rs.store = st
	rs.items = nil
	return path, []int{ref}, true, nil
}

// Items returns the full resource mapping, dereferencing the store once
// persistent.
func (rs *ResourceSpec) Items() (map[string]any, error) {
	if !rs.persistent {
		out := make(map[string]any, len(rs.items))
		for k, v := range rs.items {
			out[k] = v
		}
		return out, nil
	}

	raw, err := rs.store.GetParameterData(rs.ref)
	if err != nil {
		return nil, fmt.Errorf("read resource spec %s: %w", rs.NormalisedPath(), err)
	}
	items, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("resource spec %s: stored payload is %T, expected mapping", rs.NormalisedPath(), raw)
	}
	return items, nil
}

// Item returns one named resource value, or nil if unset.
func (rs *ResourceSpec) Item(name string) (any, error) {
	items, err := rs.Items()
	if err != nil {
		return nil, err
	}
	return items[name], nil
}

// NumCores returns the num_cores item, nil if unset.
func (rs *ResourceSpec) NumCores() (any, error) {
	return rs.Item("num_cores")
}

// Scratch returns the scratch item, nil if unset.
func (rs *ResourceSpec) Scratch() (any, error) {
	return rs.Item("scratch")
}
