package search

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseDebouncing
	PhaseSearching
	PhaseFound
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseDebouncing:
		return "debouncing"
	case PhaseSearching:
		return "searching"
	case PhaseFound:
		return "found"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}
