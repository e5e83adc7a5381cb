package enc28j60

import (
	"fmt"
)

// State is the driver's dispatch state
type State uint8

const (
	StateClosed State = iota
	StateIdle
	StateDispatching
	StateFault
)

var stateNames = map[State]string{
	StateClosed:      "Closed",
	StateIdle:        "Idle",
	StateDispatching: "Dispatching",
	StateFault:       "Fault",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", s)
}

// Event drives state transitions
type Event uint8

const (
	EventOpen Event = iota
	EventInterrupt
	EventDispatchDone
	EventRecoveryFailed
	EventClose
)

var eventNames = map[Event]string{
	EventOpen:           "Open",
	EventInterrupt:      "Interrupt",
	EventDispatchDone:   "DispatchDone",
	EventRecoveryFailed: "RecoveryFailed",
	EventClose:          "Close",
}

func (e Event) String() string {
	if name, ok := eventNames[e]; ok {
		return name
	}
	return fmt.Sprintf("Event(%d)", e)
}

var transitions = map[State]map[Event]State{
	StateClosed: {
		EventOpen:  StateIdle,
		EventClose: StateClosed,
	},
	StateIdle: {
		EventInterrupt:      StateDispatching,
		EventRecoveryFailed: StateFault,
		EventClose:          StateClosed,
	},
	StateDispatching: {
		EventDispatchDone:   StateIdle,
		EventRecoveryFailed: StateFault,
	},
	StateFault: {
		EventOpen:  StateIdle,
		EventClose: StateClosed,
	},
}

// NextState returns the state reached from current on event, or an error
// when the table has no such transition
func NextState(current State, event Event) (State, error) {
	row, ok := transitions[current]
	if !ok {
		return current, fmt.Errorf("enc28j60: unhandled state %s", current)
	}
	next, ok := row[event]
	if !ok {
		return current, fmt.Errorf("enc28j60: no transition from %s on %s", current, event)
	}
	return next, nil
}
