package domain

// TriState is a cached boolean that can also be unknown.
type TriState uint8

const (
	// Unknown means the value has not been computed since the last invalidation.
	Unknown TriState = iota
	// True is a cached true value.
	True
	// False is a cached false value.
	False
)

// TriStateOf converts a bool into a known TriState.
func TriStateOf(b bool) TriState {
	if b {
		return True
	}
	return False
}

// Known reports whether the value has been computed.
func (t TriState) Known() bool {
	return t != Unknown
}

// Bool returns true only for True.
func (t TriState) Bool() bool {
	return t == True
}

// String returns the string representation of the TriState.
func (t TriState) String() string {
	switch t {
	case True:
		return "true"
	case False:
		return "false"
	default:
		return "unknown"
	}
}
