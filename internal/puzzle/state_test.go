package puzzle

import (
	"encoding/json"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoTileDef() Definition {
	return Normalize(Input{Tiles: []TileInput{{ID: "p1"}, {ID: "p2"}}})
}

func TestSlots_JSONUsesNullForEmpty(t *testing.T) {
	data, err := json.Marshal(State{TrayOrder: []string{"p2"}, SlotAssignment: Slots{"p1", ""}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"trayOrder":["p2"],"slotAssignment":["p1",null]}`, string(data))

	var s State
	require.NoError(t, json.Unmarshal([]byte(`{"trayOrder":[],"slotAssignment":[null,"p2"]}`), &s))
	assert.Equal(t, Slots{"", "p2"}, s.SlotAssignment)
}

func TestValidateState(t *testing.T) {
	def := twoTileDef()

	require.NoError(t, ValidateState(def, State{TrayOrder: []string{"p2", "p1"}, SlotAssignment: Slots{"", ""}}))
	require.NoError(t, ValidateState(def, State{TrayOrder: []string{}, SlotAssignment: Slots{"p2", "p1"}}))

	tests := []struct {
		name  string
		state State
	}{
		{"wrong slot length", State{TrayOrder: []string{"p1", "p2"}, SlotAssignment: Slots{""}}},
		{"unknown piece", State{TrayOrder: []string{"p1", "zz"}, SlotAssignment: Slots{"", "p2"}}},
		{"duplicate piece", State{TrayOrder: []string{"p1"}, SlotAssignment: Slots{"p1", "p2"}}},
		{"missing piece", State{TrayOrder: []string{"p1"}, SlotAssignment: Slots{"", ""}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, ValidateState(def, tt.state))
		})
	}
}

func TestIsSolved(t *testing.T) {
	def := twoTileDef()

	assert.False(t, IsSolved(def, State{TrayOrder: []string{"p2"}, SlotAssignment: Slots{"p1", ""}}))
	assert.False(t, IsSolved(def, State{SlotAssignment: Slots{"p2", "p1"}}))
	assert.True(t, IsSolved(def, State{SlotAssignment: Slots{"p1", "p2"}}))
	assert.False(t, IsSolved(def, State{}))
}

func TestInitialState_UsesValidInitial(t *testing.T) {
	def := twoTileDef()
	initial := &State{TrayOrder: []string{"p2"}, SlotAssignment: Slots{"p1", ""}}

	got := InitialState(def, initial, nil)
	assert.True(t, got.Equal(*initial))

	got.TrayOrder[0] = "mutated"
	assert.Equal(t, "p2", initial.TrayOrder[0])
}

func TestInitialState_InvalidInitialFallsBackToTray(t *testing.T) {
	def := twoTileDef()
	initial := &State{TrayOrder: []string{"p1"}, SlotAssignment: Slots{""}}

	got := InitialState(def, initial, nil)
	assert.Equal(t, []string{"p1", "p2"}, got.TrayOrder)
	assert.Equal(t, Slots{"", ""}, got.SlotAssignment)
}

func TestInitialState_ShuffleKeepsEveryPiece(t *testing.T) {
	def := Normalize(Input{TileCount: intPtr(6), Shuffle: boolPtr(true)})

	got := InitialState(def, nil, rand.New(rand.NewSource(7)))
	require.NoError(t, ValidateState(def, got))
	assert.ElementsMatch(t, def.PieceIDs(), got.TrayOrder)
}

func TestPlaceInSlot_FromTray(t *testing.T) {
	s := State{TrayOrder: []string{"p1", "p2"}, SlotAssignment: Slots{"", ""}}

	next, err := PlaceInSlot(s, Location{Area: AreaTray, Index: 0}, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"p2"}, next.TrayOrder)
	assert.Equal(t, Slots{"p1", ""}, next.SlotAssignment)

	// Original state untouched.
	assert.Equal(t, []string{"p1", "p2"}, s.TrayOrder)
}

func TestPlaceInSlot_SwapsDisplacedPieceBackToSource(t *testing.T) {
	s := State{TrayOrder: []string{"p2"}, SlotAssignment: Slots{"p1", ""}}

	next, err := PlaceInSlot(s, Location{Area: AreaTray, Index: 0}, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, next.TrayOrder)
	assert.Equal(t, Slots{"p2", ""}, next.SlotAssignment)

	s = State{TrayOrder: []string{}, SlotAssignment: Slots{"p1", "p2"}}
	next, err = PlaceInSlot(s, Location{Area: AreaSlot, Index: 1}, 0)
	require.NoError(t, err)
	assert.Equal(t, Slots{"p2", "p1"}, next.SlotAssignment)
}

func TestPlaceInSlot_SameSlotIsNoop(t *testing.T) {
	s := State{TrayOrder: []string{"p2"}, SlotAssignment: Slots{"p1", ""}}

	next, err := PlaceInSlot(s, Location{Area: AreaSlot, Index: 0}, 0)
	require.NoError(t, err)
	assert.True(t, next.Equal(s))
}

func TestPlaceInSlot_Errors(t *testing.T) {
	s := State{TrayOrder: []string{"p1"}, SlotAssignment: Slots{"", "p2"}}

	_, err := PlaceInSlot(s, Location{Area: AreaTray, Index: 0}, 5)
	assert.Error(t, err)
	_, err = PlaceInSlot(s, Location{Area: AreaTray, Index: 3}, 0)
	assert.Error(t, err)
	_, err = PlaceInSlot(s, Location{Area: AreaSlot, Index: 0}, 1)
	assert.Error(t, err)
	_, err = PlaceInSlot(s, Location{Area: "shelf", Index: 0}, 0)
	assert.Error(t, err)
}

func TestReturnToTray(t *testing.T) {
	s := State{TrayOrder: []string{"p2"}, SlotAssignment: Slots{"p1", ""}}

	next, err := ReturnToTray(s, Location{Area: AreaSlot, Index: 0})
	require.NoError(t, err)
	assert.Equal(t, []string{"p2", "p1"}, next.TrayOrder)
	assert.Equal(t, Slots{"", ""}, next.SlotAssignment)

	next, err = ReturnToTray(next, Location{Area: AreaTray, Index: 0})
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2"}, next.TrayOrder)
}
