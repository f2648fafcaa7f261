// Package source describes where a task input's value comes from: supplied
// locally, taken from a schema default, imported, or drawn from another
// task's declared inputs or outputs. Sources have a dot-delimited string
// form whose parser and serializer are exact inverses.
package source

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Type is the input-source variant selector.
type Type int

const (
	Import Type = iota
	Local
	Default
	Task
)

var typeNames = map[Type]string{
	Import:  "import",
	Local:   "local",
	Default: "default",
	Task:    "task",
}

var typesByName = map[string]Type{
	"import":  Import,
	"local":   Local,
	"default": Default,
	"task":    Task,
}

func (t Type) String() string { return typeNames[t] }

// TaskSourceType selects which side of an upstream task a TASK source draws
// from.
type TaskSourceType int

const (
	TaskSourceInput TaskSourceType = iota
	TaskSourceOutput
	TaskSourceAny
)

var taskSourceNames = map[TaskSourceType]string{
	TaskSourceInput:  "input",
	TaskSourceOutput: "output",
	TaskSourceAny:    "any",
}

var taskSourcesByName = map[string]TaskSourceType{
	"input":  TaskSourceInput,
	"output": TaskSourceOutput,
	"any":    TaskSourceAny,
}

func (t TaskSourceType) String() string { return taskSourceNames[t] }

func allowedTokens[K comparable](m map[string]K) string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, fmt.Sprintf("%q", name))
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// UnknownSourceTypeError reports a variant token outside the allowed set.
type UnknownSourceTypeError struct {
	Token string
}

func (e *UnknownSourceTypeError) Error() string {
	return fmt.Sprintf("input source type %q is unknown; allowed types are: %s",
		e.Token, allowedTokens(typesByName))
}

// UnknownTaskSourceTypeError reports a task-source-type token outside the
// allowed set.
type UnknownTaskSourceTypeError struct {
	Token string
}

func (e *UnknownTaskSourceTypeError) Error() string {
	return fmt.Sprintf("task source type %q is unknown; allowed types are: %s",
		e.Token, allowedTokens(taskSourcesByName))
}

// MalformedSourceError reports an input-source string that fails the
// grammar's arity rules.
type MalformedSourceError struct {
	Defn   string
	Reason string
}

func (e *MalformedSourceError) Error() string {
	return fmt.Sprintf("input source string %q not understood: %s", e.Defn, e.Reason)
}

// Ref identifies a task or import either by integer index or by symbolic
// name. Tokens that parse as integers are numeric; anything else is kept as
// a symbolic reference.
type Ref struct {
	Index   int
	Name    string
	Numeric bool
}

func NumericRef(idx int) Ref { return Ref{Index: idx, Numeric: true} }

func SymbolicRef(name string) Ref { return Ref{Name: name} }

// ParseRef reads a ref token, preferring the numeric interpretation.
func ParseRef(tok string) Ref {
	if n, err := strconv.Atoi(tok); err == nil {
		return NumericRef(n)
	}
	return SymbolicRef(tok)
}

func (r Ref) String() string {
	if r.Numeric {
		return strconv.Itoa(r.Index)
	}
	return r.Name
}

// InputSource is an immutable description of where one task input is
// satisfied from. Only the fields of the active variant are meaningful.
type InputSource struct {
	SourceType     Type
	ImportRef      Ref            // IMPORT only
	TaskRef        Ref            // TASK only
	TaskSourceType TaskSourceType // TASK only; defaults to output
	Elements       []int          // optional element-index filter, TASK only
}

func NewLocal() InputSource { return InputSource{SourceType: Local} }

func NewDefault() InputSource { return InputSource{SourceType: Default} }

func NewImport(ref Ref) InputSource {
	return InputSource{SourceType: Import, ImportRef: ref}
}

func NewTask(ref Ref, sourceType TaskSourceType, elements ...int) InputSource {
	return InputSource{
		SourceType:     Task,
		TaskRef:        ref,
		TaskSourceType: sourceType,
		Elements:       elements,
	}
}

// Equal compares every field, including the element filter.
func (s InputSource) Equal(other InputSource) bool {
	if !s.matches(other) {
		return false
	}
	if len(s.Elements) != len(other.Elements) {
		return false
	}
	for i, e := range s.Elements {
		if other.Elements[i] != e {
			return false
		}
	}
	return true
}

// matches compares all fields except the element filter.
func (s InputSource) matches(other InputSource) bool {
	return s.SourceType == other.SourceType &&
		s.ImportRef == other.ImportRef &&
		s.TaskRef == other.TaskRef &&
		s.TaskSourceType == other.TaskSourceType
}

// IsIn reports whether an equivalent source is present in others. The
// element filter is deliberately not considered, so two sources differing
// only in elements count as duplicates.
func (s InputSource) IsIn(others []InputSource) bool {
	for _, other := range others {
		if s.matches(other) {
			return true
		}
	}
	return false
}

// String serializes the source; the exact inverse of Parse for every
// variant.
func (s InputSource) String() string {
	parts := []string{s.SourceType.String()}
	switch s.SourceType {
	case Task:
		parts = append(parts, s.TaskRef.String(), s.TaskSourceType.String())
		if len(s.Elements) > 0 {
			elems := make([]string, len(s.Elements))
			for i, e := range s.Elements {
				elems[i] = strconv.Itoa(e)
			}
			parts = append(parts, "["+strings.Join(elems, ",")+"]")
		}
	case Import:
		parts = append(parts, s.ImportRef.String())
	}
	return strings.Join(parts, ".")
}

// Parse reads a dot-delimited input-source definition:
//
//	local
//	default
//	import.<ref>
//	task.<ref>[.<input|output|any>][.[<i>,<j>,...]]
//
// The string is lower-cased first. A TASK source without an explicit task
// source type defaults to "output".
func Parse(defn string) (InputSource, error) {
	parts := strings.Split(strings.ToLower(defn), ".")

	srcType, ok := typesByName[parts[0]]
	if !ok {
		return InputSource{}, &UnknownSourceTypeError{Token: parts[0]}
	}

	rest := parts[1:]
	switch srcType {
	case Local, Default:
		if len(rest) > 0 {
			return InputSource{}, &MalformedSourceError{
				Defn:   defn,
				Reason: fmt.Sprintf("%q accepts no further tokens", parts[0]),
			}
		}
		return InputSource{SourceType: srcType}, nil

	case Import:
		if len(rest) != 1 {
			return InputSource{}, &MalformedSourceError{
				Defn:   defn,
				Reason: `"import" requires exactly one reference token`,
			}
		}
		return NewImport(ParseRef(rest[0])), nil

	default: // Task
		return parseTask(defn, rest)
	}
}

func parseTask(defn string, rest []string) (InputSource, error) {
	var elements []int
	if n := len(rest); n > 0 && isElementsToken(rest[n-1]) {
		var err error
		elements, err = parseElements(defn, rest[n-1])
		if err != nil {
			return InputSource{}, err
		}
		rest = rest[:n-1]
	}

	if len(rest) < 1 || len(rest) > 2 {
		return InputSource{}, &MalformedSourceError{
			Defn:   defn,
			Reason: `"task" requires a reference token and an optional task source type`,
		}
	}

	src := InputSource{
		SourceType:     Task,
		TaskRef:        ParseRef(rest[0]),
		TaskSourceType: TaskSourceOutput,
		Elements:       elements,
	}
	if len(rest) == 2 {
		tst, ok := taskSourcesByName[rest[1]]
		if !ok {
			return InputSource{}, &UnknownTaskSourceTypeError{Token: rest[1]}
		}
		src.TaskSourceType = tst
	}
	return src, nil
}

func isElementsToken(tok string) bool {
	return strings.HasPrefix(tok, "[") && strings.HasSuffix(tok, "]")
}

func parseElements(defn, tok string) ([]int, error) {
	inner := tok[1 : len(tok)-1]
	if inner == "" {
		return nil, &MalformedSourceError{Defn: defn, Reason: "empty element filter"}
	}
	out := make([]int, 0)
	for _, item := range strings.Split(inner, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(item))
		if err != nil {
			return nil, &MalformedSourceError{
				Defn:   defn,
				Reason: fmt.Sprintf("element filter entry %q is not an integer", item),
			}
		}
		out = append(out, n)
	}
	return out, nil
}
