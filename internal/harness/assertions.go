package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/puzzlesync/internal/engine"
)

// emptySlot marks an empty slot in board assertions.
const emptySlot = "_"

// AssertionError is a failed assertion with enough context to debug it.
type AssertionError struct {
	Type        string
	Participant string
	Expected    string
	Actual      string
}

func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s", e.Type)
	if e.Participant != "" {
		fmt.Fprintf(&buf, " (%s)", e.Participant)
	}
	fmt.Fprintf(&buf, "\n  Expected: %s\n  Actual: %s", e.Expected, e.Actual)
	return buf.String()
}

// evaluate runs every assertion and returns the failure messages.
func (h *Harness) evaluate(ctx context.Context, assertions []Assertion, sessionID string) []string {
	var errs []string
	for i, a := range assertions {
		session := sessionID
		if a.Session != "" {
			session = a.Session
		}
		if err := h.check(ctx, a, session); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func (h *Harness) check(ctx context.Context, a Assertion, sessionID string) error {
	fail := func(expected, actual string) error {
		return &AssertionError{Type: a.Type, Participant: a.Participant, Expected: expected, Actual: actual}
	}
	n := h.nodes[a.Participant]

	switch a.Type {
	case AssertBoard:
		b, ok := n.board(sessionID)
		if !ok {
			return fail("a board for session "+sessionID, "no board")
		}
		state := b.State()
		if a.Slots != nil {
			got := make([]string, len(state.SlotAssignment))
			for i, id := range state.SlotAssignment {
				if id == "" {
					id = emptySlot
				}
				got[i] = id
			}
			if !slices.Equal(got, a.Slots) {
				return fail(fmt.Sprintf("slots %v", a.Slots), fmt.Sprintf("slots %v", got))
			}
		}
		if a.Tray != nil && !slices.Equal(state.TrayOrder, a.Tray) {
			return fail(fmt.Sprintf("tray %v", a.Tray), fmt.Sprintf("tray %v", state.TrayOrder))
		}
		if a.Solved != nil && b.Solved() != *a.Solved {
			return fail(fmt.Sprintf("solved=%t", *a.Solved), fmt.Sprintf("solved=%t", b.Solved()))
		}

	case AssertNoBoard:
		if _, ok := n.board(sessionID); ok {
			return fail("no board for session "+sessionID, "board open")
		}

	case AssertAccepted:
		got := 0
		for _, ch := range n.changes.All() {
			if ch.Remote && ch.SessionID == sessionID {
				got++
			}
		}
		if got != *a.Count {
			return fail(fmt.Sprintf("%d accepted remote states", *a.Count), fmt.Sprintf("%d", got))
		}

	case AssertSolved:
		var events []engine.SolvedEvent
		for _, ev := range n.solved.All() {
			if ev.SessionID == sessionID {
				events = append(events, ev)
			}
		}
		if len(events) != *a.Count {
			return fail(fmt.Sprintf("%d solved side effects", *a.Count), fmt.Sprintf("%d", len(events)))
		}
		if a.By != "" {
			for _, ev := range events {
				if ev.SolvedBy != a.By {
					return fail("solved by "+a.By, "solved by "+ev.SolvedBy)
				}
			}
		}

	case AssertStatus:
		if got := n.coord.Status(sessionID); string(got) != a.Status {
			return fail("status "+a.Status, "status "+string(got))
		}

	case AssertAcks:
		if got := n.coord.Acks(sessionID); got != *a.Count {
			return fail(fmt.Sprintf("%d acknowledgements", *a.Count), fmt.Sprintf("%d", got))
		}

	case AssertLedger:
		solves, err := h.ledger.Solves(ctx, sessionID)
		if err != nil {
			return fail("readable ledger", err.Error())
		}
		if len(solves) != *a.Count {
			return fail(fmt.Sprintf("%d ledger rows", *a.Count), fmt.Sprintf("%d", len(solves)))
		}
		if a.By != "" {
			for _, sv := range solves {
				if sv.SolvedBy != a.By {
					return fail("ledger row solved by "+a.By, "solved by "+sv.SolvedBy)
				}
			}
		}

	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
