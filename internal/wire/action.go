package wire

import (
	"errors"
	"fmt"
)

// Action is the kind of an envelope. The set is closed.
type Action string

const (
	ActionOpen   Action = "OPEN"
	ActionState  Action = "STATE"
	ActionSolved Action = "SOLVED"
	ActionPing   Action = "PING"
	ActionAck    Action = "ACK"
)

// ErrUnknownAction is returned when an envelope names an action outside
// the closed set.
var ErrUnknownAction = errors.New("unknown action")

// Actions lists every valid action in protocol order.
func Actions() []Action {
	return []Action{ActionOpen, ActionState, ActionSolved, ActionPing, ActionAck}
}

// ParseAction converts a wire string into an Action.
func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionOpen, ActionState, ActionSolved, ActionPing, ActionAck:
		return a, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
	}
}

// Valid reports whether a is one of the known actions.
func (a Action) Valid() bool {
	_, err := ParseAction(string(a))
	return err == nil
}

func (a Action) String() string { return string(a) }

// MarshalText refuses to encode an unknown action.
func (a Action) MarshalText() ([]byte, error) {
	if !a.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, string(a))
	}
	return []byte(a), nil
}

// UnmarshalText rejects unknown actions so a drifting peer surfaces as a
// decode error instead of an envelope nobody handles.
func (a *Action) UnmarshalText(text []byte) error {
	parsed, err := ParseAction(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
