package creature

import (
	"errors"
	"fmt"
)

var ErrUnknownState = errors.New("unknown state")

func errUnknownState(s string) error { return fmt.Errorf("%q: %w", s, ErrUnknownState) }

// Next is the transition table. prev is the state the creature was in before
// cur and only matters when leaving Transitioning. ok is false when ev does
// not change state; effects are then nil.
func Next(cur, prev State, ev Event) (next State, effects []Effect, ok bool) {
	if ev == EventDamaged {
		if cur == Damaged {
			return cur, nil, false
		}
		return Damaged, []Effect{EffectStopNavigation}, true
	}

	switch cur {
	case Idle:
		if ev == EventIdleElapsed {
			return Transitioning, nil, true
		}
	case Transitioning:
		if ev == EventTransitionElapsed {
			if prev == Idle {
				return Moving, []Effect{EffectSelectDestination}, true
			}
			return Idle, []Effect{EffectRollIdle}, true
		}
	case Moving:
		switch ev {
		case EventArrived, EventMoveTimeout, EventAbandon:
			return Transitioning, []Effect{EffectStopNavigation}, true
		}
	case Damaged:
		if ev == EventDamageElapsed {
			return Moving, []Effect{EffectEscapeDestination}, true
		}
	}
	return cur, nil, false
}
