package param

import "fmt"

// Path addresses nested data within a parameter's value. Components are
// strings, ints or floats. TaskInsertID names the owning task; CurrentTask
// means the task the path appears in.
type Path struct {
	Components   []any
	TaskInsertID int
}

// CurrentTask is the TaskInsertID value for a path owned by the task it is
// declared in.
const CurrentTask = -1

func NewPath(components ...any) Path {
	return Path{Components: components, TaskInsertID: CurrentTask}
}

// PropagationMode controls whether a parameter value flows automatically to
// dependent tasks.
type PropagationMode int

const (
	PropagationImplicit PropagationMode = iota
	PropagationExplicit
	PropagationNever
)

var propagationNames = map[PropagationMode]string{
	PropagationImplicit: "implicit",
	PropagationExplicit: "explicit",
	PropagationNever:    "never",
}

func (m PropagationMode) String() string {
	if s, ok := propagationNames[m]; ok {
		return s
	}
	return "implicit"
}

// ParsePropagationMode maps a definition-file token to a PropagationMode.
// Unknown tokens report an error naming the allowed set.
func ParsePropagationMode(s string) (PropagationMode, error) {
	switch s {
	case "", "implicit":
		return PropagationImplicit, nil
	case "explicit":
		return PropagationExplicit, nil
	case "never":
		return PropagationNever, nil
	}
	return PropagationImplicit, &UnknownPropagationModeError{Token: s}
}

// UnknownPropagationModeError reports a propagation-mode token outside the
// allowed set.
type UnknownPropagationModeError struct {
	Token string
}

func (e *UnknownPropagationModeError) Error() string {
	return fmt.Sprintf("propagation mode %q is unknown; allowed modes are: \"implicit\", \"explicit\", \"never\"", e.Token)
}
