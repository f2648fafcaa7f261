package param

import (
	"sort"
	"sync"
)

// Registry owns the canonical Parameter instance per type tag, so schema
// inputs, outputs and value holders share one definition.
type Registry struct {
	mu     sync.Mutex
	params map[string]*Parameter
}

func NewRegistry() *Registry {
	return &Registry{params: make(map[string]*Parameter)}
}

// GetOrValidate returns the registered Parameter for typ, constructing and
// registering it first if unseen. Invalid identifiers are rejected with
// InvalidIdentifierError.
func (r *Registry) GetOrValidate(typ string) (*Parameter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.params[typ]; ok {
		return p, nil
	}
	p, err := New(typ)
	if err != nil {
		return nil, err
	}
	r.params[typ] = p
	return p, nil
}

// Add registers an externally constructed Parameter (e.g. a file parameter
// from a schema definition file). An existing entry for the same type is
// kept and returned unchanged.
func (r *Registry) Add(p *Parameter) *Parameter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.params[p.Typ]; ok {
		return existing
	}
	r.params[p.Typ] = p
	return p
}

// Types returns the registered type tags in insertion-independent sorted
// order.
func (r *Registry) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.params))
	for typ := range r.params {
		out = append(out, typ)
	}
	sort.Strings(out)
	return out
}
