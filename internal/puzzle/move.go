package puzzle

import "fmt"

// Area identifies where a piece currently sits.
type Area string

const (
	AreaTray Area = "tray"
	AreaSlot Area = "slot"
)

// Location addresses a piece by area and index.
type Location struct {
	Area  Area
	Index int
}

func (l Location) String() string {
	return fmt.Sprintf("%s[%d]", l.Area, l.Index)
}

// PlaceInSlot moves the piece at from into slot. If the slot was occupied,
// the displaced piece goes back to where the moved piece came from.
func PlaceInSlot(s State, from Location, slot int) (State, error) {
	if slot < 0 || slot >= len(s.SlotAssignment) {
		return s, fmt.Errorf("place piece: slot %d out of range", slot)
	}
	next := s.Clone()
	displaced := next.SlotAssignment[slot]
	moved, err := removeAt(&next, from)
	if err != nil {
		return s, fmt.Errorf("place piece: %w", err)
	}
	next.SlotAssignment[slot] = moved
	if displaced != "" && displaced != moved {
		insertAt(&next, from, displaced)
	}
	return next, nil
}

// ReturnToTray moves the piece at from to the end of the tray.
func ReturnToTray(s State, from Location) (State, error) {
	next := s.Clone()
	moved, err := removeAt(&next, from)
	if err != nil {
		return s, fmt.Errorf("return piece: %w", err)
	}
	next.TrayOrder = append(next.TrayOrder, moved)
	return next, nil
}

func removeAt(s *State, from Location) (string, error) {
	switch from.Area {
	case AreaTray:
		if from.Index < 0 || from.Index >= len(s.TrayOrder) {
			return "", fmt.Errorf("no piece at %s", from)
		}
		id := s.TrayOrder[from.Index]
		s.TrayOrder = append(s.TrayOrder[:from.Index], s.TrayOrder[from.Index+1:]...)
		return id, nil
	case AreaSlot:
		if from.Index < 0 || from.Index >= len(s.SlotAssignment) || s.SlotAssignment[from.Index] == "" {
			return "", fmt.Errorf("no piece at %s", from)
		}
		id := s.SlotAssignment[from.Index]
		s.SlotAssignment[from.Index] = ""
		return id, nil
	default:
		return "", fmt.Errorf("unknown area %q", from.Area)
	}
}

func insertAt(s *State, at Location, id string) {
	switch at.Area {
	case AreaTray:
		i := at.Index
		if i < 0 {
			i = 0
		}
		if i > len(s.TrayOrder) {
			i = len(s.TrayOrder)
		}
		s.TrayOrder = append(s.TrayOrder, "")
		copy(s.TrayOrder[i+1:], s.TrayOrder[i:])
		s.TrayOrder[i] = id
	case AreaSlot:
		s.SlotAssignment[at.Index] = id
	}
}
