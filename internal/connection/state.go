package connection

// State is the lifecycle state of a serial connection
type State int32

const (
	StateOpening State = iota
	StateOpen
	StateClosing
	StateClosed
	StateFaulted
)

func (s State) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateFaulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name in JSON payloads
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// IsTerminal reports whether no further transition can leave s
func (s State) IsTerminal() bool {
	return s == StateClosed || s == StateFaulted
}

var transitions = map[State][]State{
	StateOpening: {StateOpen, StateClosing},
	StateOpen:    {StateClosing, StateFaulted},
	StateClosing: {StateClosed},
}

// CanTransition reports whether from → to is a legal state change
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Observer is notified of every state change of a connection. Calls are made
// outside of the connection's locks and must not block for long.
type Observer interface {
	OnStateChange(name string, from, to State, err error)
}

// ObserverFunc adapts a function to the Observer interface
type ObserverFunc func(name string, from, to State, err error)

func (f ObserverFunc) OnStateChange(name string, from, to State, err error) {
	f(name, from, to, err)
}

// Observers fans a state change out to several observers in order.
type Observers []Observer

func (o Observers) OnStateChange(name string, from, to State, err error) {
	for _, obs := range o {
		if obs != nil {
			obs.OnStateChange(name, from, to, err)
		}
	}
}
