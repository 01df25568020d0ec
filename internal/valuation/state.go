package valuation

// State is the phase of a valuation run.
type State int

const (
	StateIdle State = iota
	StateScanningInventory
	StateBlocked
	StatePricingSample
	StateDone
)

// String returns the name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanningInventory:
		return "scanning_inventory"
	case StateBlocked:
		return "blocked"
	case StatePricingSample:
		return "pricing_sample"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// IsTerminal reports whether no further transitions can happen.
func (s State) IsTerminal() bool {
	return s == StateBlocked || s == StateDone
}
