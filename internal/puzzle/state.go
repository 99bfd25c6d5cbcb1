package puzzle

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand"
)

// State is the arrangement of pieces on a board: the tray in display order
// and one entry per solution slot.
type State struct {
	TrayOrder      []string `json:"trayOrder"`
	SlotAssignment Slots    `json:"slotAssignment"`
}

// Slots holds one piece id per solution slot. An empty string is an empty
// slot and is encoded as JSON null.
type Slots []string

// MarshalJSON encodes empty slots as null.
func (s Slots) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, id := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		if id == "" {
			buf.WriteString("null")
			continue
		}
		b, err := json.Marshal(id)
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes null entries as empty slots.
func (s *Slots) UnmarshalJSON(data []byte) error {
	var raw []*string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Slots, len(raw))
	for i, p := range raw {
		if p != nil {
			out[i] = *p
		}
	}
	*s = out
	return nil
}

// Clone returns a deep copy.
func (s State) Clone() State {
	return State{
		TrayOrder:      append([]string{}, s.TrayOrder...),
		SlotAssignment: append(Slots{}, s.SlotAssignment...),
	}
}

// Equal reports whether two states hold the same arrangement.
func (s State) Equal(o State) bool {
	if len(s.TrayOrder) != len(o.TrayOrder) || len(s.SlotAssignment) != len(o.SlotAssignment) {
		return false
	}
	for i := range s.TrayOrder {
		if s.TrayOrder[i] != o.TrayOrder[i] {
			return false
		}
	}
	for i := range s.SlotAssignment {
		if s.SlotAssignment[i] != o.SlotAssignment[i] {
			return false
		}
	}
	return true
}

// ValidateState checks that the state fits the definition: one slot per
// solution entry and every piece present exactly once across tray and slots.
func ValidateState(def Definition, s State) error {
	if len(s.SlotAssignment) != len(def.Solution) {
		return &ValidationError{
			Field:   "slotAssignment",
			Message: fmt.Sprintf("got %d slots, want %d", len(s.SlotAssignment), len(def.Solution)),
		}
	}
	remaining := make(map[string]int, len(def.Tiles))
	for _, t := range def.Tiles {
		remaining[t.ID]++
	}
	take := func(field, id string) error {
		n, ok := remaining[id]
		if !ok {
			return &ValidationError{Field: field, Message: fmt.Sprintf("unknown piece %q", id)}
		}
		if n == 0 {
			return &ValidationError{Field: field, Message: fmt.Sprintf("piece %q placed twice", id)}
		}
		remaining[id] = n - 1
		return nil
	}
	for i, id := range s.TrayOrder {
		if err := take(fmt.Sprintf("trayOrder[%d]", i), id); err != nil {
			return err
		}
	}
	for i, id := range s.SlotAssignment {
		if id == "" {
			continue
		}
		if err := take(fmt.Sprintf("slotAssignment[%d]", i), id); err != nil {
			return err
		}
	}
	for _, t := range def.Tiles {
		if remaining[t.ID] > 0 {
			return &ValidationError{Field: "trayOrder", Message: fmt.Sprintf("piece %q is missing", t.ID)}
		}
	}
	return nil
}

// IsSolved reports whether every slot holds the piece the solution expects.
func IsSolved(def Definition, s State) bool {
	if len(s.SlotAssignment) < len(def.Solution) {
		return false
	}
	for i, want := range def.Solution {
		got := s.SlotAssignment[i]
		if got == "" || got != want {
			return false
		}
	}
	return true
}

// InitialState returns the supplied initial state when it fits the
// definition, otherwise a fresh state with every piece in the tray
// (shuffled when the definition asks for it) and all slots empty.
func InitialState(def Definition, initial *State, rng *rand.Rand) State {
	if initial != nil && ValidateState(def, *initial) == nil {
		return initial.Clone()
	}
	tray := def.PieceIDs()
	if def.Shuffle && rng != nil {
		rng.Shuffle(len(tray), func(i, j int) { tray[i], tray[j] = tray[j], tray[i] })
	}
	return State{
		TrayOrder:      tray,
		SlotAssignment: make(Slots, len(def.Solution)),
	}
}
