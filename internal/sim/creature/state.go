package creature

import "fmt"

type State uint8

const (
	Idle State = iota
	Moving
	Transitioning
	Damaged
)

var AllStates = []State{Idle, Moving, Transitioning, Damaged}

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Moving:
		return "MOVING"
	case Transitioning:
		return "TRANSITIONING"
	case Damaged:
		return "DAMAGED"
	default:
		return "UNKNOWN"
	}
}

func ParseState(s string) (State, bool) {
	for _, st := range AllStates {
		if st.String() == s {
			return st, true
		}
	}
	return 0, false
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	st, ok := ParseState(string(b))
	if !ok {
		return errUnknownState(string(b))
	}
	*s = st
	return nil
}

type Event uint8

const (
	EventNone Event = iota
	EventIdleElapsed
	EventTransitionElapsed
	EventDamaged
	EventDamageElapsed
	EventArrived
	EventMoveTimeout
	EventAbandon
)

func (e Event) String() string {
	switch e {
	case EventIdleElapsed:
		return "IDLE_ELAPSED"
	case EventTransitionElapsed:
		return "TRANSITION_ELAPSED"
	case EventDamaged:
		return "DAMAGED"
	case EventDamageElapsed:
		return "DAMAGE_ELAPSED"
	case EventArrived:
		return "ARRIVED"
	case EventMoveTimeout:
		return "MOVE_TIMEOUT"
	case EventAbandon:
		return "ABANDON"
	default:
		return "NONE"
	}
}

var allEvents = []Event{
	EventNone, EventIdleElapsed, EventTransitionElapsed, EventDamaged,
	EventDamageElapsed, EventArrived, EventMoveTimeout, EventAbandon,
}

func ParseEvent(s string) (Event, bool) {
	for _, ev := range allEvents {
		if ev.String() == s {
			return ev, true
		}
	}
	return EventNone, false
}

func (e Event) MarshalText() ([]byte, error) { return []byte(e.String()), nil }

func (e *Event) UnmarshalText(b []byte) error {
	ev, ok := ParseEvent(string(b))
	if !ok {
		return fmt.Errorf("unknown event %q", b)
	}
	*e = ev
	return nil
}

// Effect is a side effect the machine performs on a transition edge.
type Effect uint8

const (
	EffectSelectDestination Effect = iota + 1
	EffectEscapeDestination
	EffectRollIdle
	EffectStopNavigation
)

func (e Effect) String() string {
	switch e {
	case EffectSelectDestination:
		return "SELECT_DESTINATION"
	case EffectEscapeDestination:
		return "ESCAPE_DESTINATION"
	case EffectRollIdle:
		return "ROLL_IDLE"
	case EffectStopNavigation:
		return "STOP_NAVIGATION"
	default:
		return "NONE"
	}
}
