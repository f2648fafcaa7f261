package values

// ParamStore is the slice of the workflow store the value holders need:
// writing pending payloads and dereferencing or probing persistent group
// references.
type ParamStore interface {
	AddParameterData(value any, provenance map[string]any) (int, error)
	GetParameterData(ref int) (any, error)
	CheckParametersExist(refs []int) ([]bool, error)
}

// Holder is the common contract of InputValue, ValueSequence and
// ResourceSpec: an addressable container that persists exactly once.
type Holder interface {
	// NormalisedPath is the holder's address within the task's data maps.
	NormalisedPath() string
	// MakePersistent writes any pending payload to the store and returns
	// the holder's path, its group references in payload order, and
	// whether anything was written. Idempotent: a persistent holder
	// verifies its references still exist and returns them unchanged with
	// isNew=false.
	MakePersistent(st ParamStore, provenance map[string]any) (path string, refs []int, isNew bool, err error)
	// IsPersistent reports whether the holder has transitioned.
	IsPersistent() bool
}

// checkRefsExist verifies every reference exists in the store, returning a
// ReferentialIntegrityError naming the holder on any miss.
func checkRefsExist(st ParamStore, holder, path string, refs []int) error {
	exist, err := st.CheckParametersExist(refs)
	if err != nil {
		return err
	}
	for _, ok := range exist {
		if !ok {
			return &ReferentialIntegrityError{Holder: holder, Path: path, Refs: refs}
		}
	}
	return nil
}

func copyProvenance(provenance map[string]any) map[string]any {
	out := make(map[string]any, len(provenance)+1)
	for k, v := range provenance {
		out[k] = v
	}
	return out
}
