// Package scope implements the action-scope token grammar used to address
// resource specifications (resources.<scope>). A scope names which actions
// of a task a resource applies to, optionally narrowed by keyword
// arguments, e.g. "any", "main" or "input_file_generator[file=inp1]".
package scope

import (
	"fmt"
	"sort"
	"strings"
)

type Kind int

const (
	Any Kind = iota
	Main
	Processing
	InputFileGenerator
	OutputFileParser
)

var kindNames = map[Kind]string{
	Any:                "any",
	Main:               "main",
	Processing:         "processing",
	InputFileGenerator: "input_file_generator",
	OutputFileParser:   "output_file_parser",
}

var kindsByName = map[string]Kind{
	"any":                  Any,
	"main":                 Main,
	"processing":           Processing,
	"input_file_generator": InputFileGenerator,
	"output_file_parser":   OutputFileParser,
}

func (k Kind) String() string {
	return kindNames[k]
}

// AllowedKinds returns the valid scope tokens, sorted.
func AllowedKinds() []string {
	out := make([]string, 0, len(kindsByName))
	for name := range kindsByName {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// UnknownScopeError reports a scope token outside the allowed set.
type UnknownScopeError struct {
	Token string
}

func (e *UnknownScopeError) Error() string {
	allowed := make([]string, 0)
	for _, name := range AllowedKinds() {
		allowed = append(allowed, fmt.Sprintf("%q", name))
	}
	return fmt.Sprintf("action scope %q is unknown; allowed scopes are: %s",
		e.Token, strings.Join(allowed, ", "))
}

// ActionScope selects the actions a resource specification applies to.
// Compared by its serialized form.
type ActionScope struct {
	Kind   Kind
	Kwargs map[string]string
}

func AnyScope() ActionScope {
	return ActionScope{Kind: Any}
}

// Parse reads a scope token of the form <kind> or <kind>[k1=v1, k2=v2].
func Parse(token string) (ActionScope, error) {
	name := token
	var kwargStr string

	if i := strings.IndexByte(token, '['); i >= 0 {
		if !strings.HasSuffix(token, "]") {
			return ActionScope{}, fmt.Errorf("action scope %q: unterminated keyword arguments", token)
		}
		name = token[:i]
		kwargStr = token[i+1 : len(token)-1]
	}

	kind, ok := kindsByName[name]
	if !ok {
		return ActionScope{}, &UnknownScopeError{Token: name}
	}

	sc := ActionScope{Kind: kind}
	if kwargStr == "" {
		return sc, nil
	}

	if kind != InputFileGenerator && kind != OutputFileParser {
		return ActionScope{}, fmt.Errorf("action scope %q does not accept keyword arguments", name)
	}

	sc.Kwargs = make(map[string]string)
	for _, pair := range strings.Split(kwargStr, ",") {
		key, val, found := strings.Cut(strings.TrimSpace(pair), "=")
		if !found || key == "" {
			return ActionScope{}, fmt.Errorf("action scope %q: malformed keyword argument %q", token, pair)
		}
		sc.Kwargs[key] = val
	}
	return sc, nil
}

// String serializes the scope; the inverse of Parse. Kwargs are emitted in
// sorted key order so the form is stable.
func (s ActionScope) String() string {
	if len(s.Kwargs) == 0 {
		return s.Kind.String()
	}
	keys := make([]string, 0, len(s.Kwargs))
	for k := range s.Kwargs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+s.Kwargs[k])
	}
	return fmt.Sprintf("%s[%s]", s.Kind, strings.Join(pairs, ","))
}

// Equal compares two scopes by kind and keyword arguments.
func (s ActionScope) Equal(other ActionScope) bool {
	return s.String() == other.String()
}
