// Package param defines typed workflow parameters and the registry that
// owns them. A parameter identifies a kind of data a task can consume or
// produce; its values are stored opaquely by the workflow store and may be
// reconstructed into richer types through a registered value class.
package param

import (
	"fmt"
	"regexp"
	"sort"
	"sync"
)

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// InvalidIdentifierError reports a parameter type name that is not a valid
// identifier.
type InvalidIdentifierError struct {
	Typ string
}

func (e *InvalidIdentifierError) Error() string {
	return fmt.Sprintf("parameter type %q is not a valid identifier", e.Typ)
}

// ValueDecoder reconstructs a typed value from its stored mapping form.
type ValueDecoder func(raw map[string]any) (any, error)

var (
	classMu      sync.RWMutex
	valueClasses = map[string]ValueDecoder{}
)

// RegisterValueClass binds a decoder to a parameter type tag. Parameters
// constructed afterwards with a matching type pick the decoder up
// automatically. Registering replaces any previous decoder for the tag.
func RegisterValueClass(typ string, decode ValueDecoder) {
	classMu.Lock()
	defer classMu.Unlock()
	valueClasses[typ] = decode
}

// RegisteredValueClasses returns the registered type tags, sorted.
func RegisteredValueClasses() []string {
	classMu.RLock()
	defer classMu.RUnlock()
	out := make([]string, 0, len(valueClasses))
	for typ := range valueClasses {
		out = append(out, typ)
	}
	sort.Strings(out)
	return out
}

func valueClassFor(typ string) ValueDecoder {
	classMu.RLock()
	defer classMu.RUnlock()
	return valueClasses[typ]
}

// SubParameter addresses a nested part of a composite parameter value.
type SubParameter struct {
	Address   []any
	Parameter *Parameter
}

// Parameter is a typed, named kind of data. Immutable once constructed;
// the value-class binding is resolved at construction time against the
// decoder registry and is best-effort (no match leaves it unset).
type Parameter struct {
	Typ           string
	IsFile        bool
	SubParameters []SubParameter

	decode ValueDecoder
}

// New validates typ and constructs a Parameter, binding a value class if
// one is registered for the type tag.
func New(typ string) (*Parameter, error) {
	if !identifierRe.MatchString(typ) {
		return nil, &InvalidIdentifierError{Typ: typ}
	}
	return &Parameter{
		Typ:    typ,
		decode: valueClassFor(typ),
	}, nil
}

// NewFile is like New but marks the parameter as file-valued.
func NewFile(typ string) (*Parameter, error) {
	p, err := New(typ)
	if err != nil {
		return nil, err
	}
	p.IsFile = true
	return p, nil
}

// HasValueClass reports whether a decoder is bound to this parameter.
func (p *Parameter) HasValueClass() bool {
	return p.decode != nil
}

// DecodeValue reconstructs a typed value from its stored mapping form. If
// no value class is bound the raw mapping is returned unchanged.
func (p *Parameter) DecodeValue(raw any) (any, error) {
	if p.decode == nil {
		return raw, nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("decode %q value: expected mapping, got %T", p.Typ, raw)
	}
	return p.decode(m)
}

func (p *Parameter) String() string {
	if p.IsFile {
		return fmt.Sprintf("Parameter(%s, is_file)", p.Typ)
	}
	return fmt.Sprintf("Parameter(%s)", p.Typ)
}
