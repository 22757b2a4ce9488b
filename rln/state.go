package rln

// State is the relationship of the identity with the RLN group.
type State int

const (
	StateUnregistered State = iota
	StateRegistered
	StateWithdrawing
	StateReleased
	StateSlashed
)

func (s State) String() string {
	switch s {
	case StateUnregistered:
		return "unregistered"
	case StateRegistered:
		return "registered"
	case StateWithdrawing:
		return "withdrawing"
	case StateReleased:
		return "released"
	case StateSlashed:
		return "slashed"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
