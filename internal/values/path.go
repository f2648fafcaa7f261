// Package values holds the value containers attached to workflow tasks:
// single input values, value sequences and resource specifications. Each
// holder is either pending (payload in memory) or persistent (opaque group
// references into the workflow store), never both, and transitions exactly
// once at commit time.
package values

import (
	"strings"

	"github.com/gcapes/hpcflow-new/internal/scope"
)

// PathKind discriminates the two parameter-path namespaces.
type PathKind int

const (
	PathInputs PathKind = iota
	PathResources
)

func (k PathKind) String() string {
	if k == PathResources {
		return "resources"
	}
	return "inputs"
}

// ParsedPath is a validated, normalized parameter path.
type ParsedPath struct {
	// Path is the normalized (lower-cased) form.
	Path string
	Kind PathKind

	// InputType and SubPath are set for inputs paths; InputType may be
	// empty for the bare "inputs" root.
	InputType string
	SubPath   string

	// Scope and ResourceItem are set for resources paths.
	Scope        scope.ActionScope
	ResourceItem string
}

// IsSubValue reports whether the path addresses part of a parameter rather
// than the whole value.
func (p ParsedPath) IsSubValue() bool {
	return p.Kind == PathInputs && p.SubPath != ""
}

// ParsePath validates a dot-delimited parameter path:
//
//	inputs[.<param>[.<subpath>]]
//	resources.<scope>[.<item>]
//
// Paths are lower-cased before splitting. The first segment must be
// "inputs" or "resources"; a resources scope must parse as an action-scope
// token, and a resources item must be in the allowed resource-spec set.
func ParsePath(path string) (ParsedPath, error) {
	normalized := strings.ToLower(path)
	parts := strings.Split(normalized, ".")

	switch parts[0] {
	case "inputs":
		pp := ParsedPath{Path: normalized, Kind: PathInputs}
		if len(parts) > 1 {
			pp.InputType = parts[1]
			pp.SubPath = strings.Join(parts[2:], ".")
		}
		return pp, nil

	case "resources":
		if len(parts) < 2 {
			return ParsedPath{}, &MalformedParameterPathError{
				Path:   path,
				Reason: "a resources path requires an action-scope component",
			}
		}
		sc, err := scope.Parse(parts[1])
		if err != nil {
			return ParsedPath{}, &MalformedParameterPathError{
				Path:   path,
				Reason: "cannot parse a resource action scope from the second component: " + err.Error(),
			}
		}
		pp := ParsedPath{Path: normalized, Kind: PathResources, Scope: sc}
		if len(parts) > 3 {
			return ParsedPath{}, &MalformedParameterPathError{
				Path:   path,
				Reason: "a resources path has at most an action scope and one item component",
			}
		}
		if len(parts) == 3 {
			item := parts[2]
			if !isAllowedResourceItem(item) {
				return ParsedPath{}, &UnknownResourceSpecItemError{
					Items:   []string{item},
					Allowed: AllowedResourceItems(),
				}
			}
			pp.ResourceItem = item
		}
		return pp, nil
	}

	return ParsedPath{}, &MalformedParameterPathError{
		Path:   path,
		Reason: `path must start with "inputs" or "resources"`,
	}
}
