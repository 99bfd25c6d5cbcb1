package puzzle

import (
	"encoding/json"
	"fmt"
)

// Defaults applied by Normalize.
const (
	DefaultTitle        = "Draggable Puzzle"
	DefaultInstructions = "Drag pieces into the grid."
	DefaultTileImage    = "icons/svg/d20-grey.svg"
)

// Tile is one movable piece of a puzzle.
type Tile struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Image string `json:"image"`
}

// Definition is a normalized puzzle definition.
//
// A Definition is treated as an immutable value: sessions replace it
// wholesale, never patch it.
type Definition struct {
	Title         string          `json:"title"`
	Instructions  string          `json:"instructions"`
	Tiles         []Tile          `json:"tiles"`
	Solution      []string        `json:"solution"`
	Columns       int             `json:"columns"`
	Shuffle       bool            `json:"shuffle"`
	CloseOnSolve  bool            `json:"closeOnSolve"`
	ShowMessage   string          `json:"showMessage,omitempty"`
	SolvedMessage string          `json:"solvedMessage,omitempty"`
	OnSolvedHook  string          `json:"onSolvedHook,omitempty"`
	OnSolvedArgs  json.RawMessage `json:"onSolvedArgs,omitempty"`
}

// Input is an unnormalized definition as authored by a person or produced
// by an editor. Every field is optional.
type Input struct {
	Title         *string         `json:"title,omitempty" yaml:"title,omitempty"`
	Instructions  *string         `json:"instructions,omitempty" yaml:"instructions,omitempty"`
	Tiles         []TileInput     `json:"tiles,omitempty" yaml:"tiles,omitempty"`
	TileCount     *int            `json:"tileCount,omitempty" yaml:"tileCount,omitempty"`
	Solution      []string        `json:"solution,omitempty" yaml:"solution,omitempty"`
	Columns       *int            `json:"columns,omitempty" yaml:"columns,omitempty"`
	Shuffle       *bool           `json:"shuffle,omitempty" yaml:"shuffle,omitempty"`
	CloseOnSolve  *bool           `json:"closeOnSolve,omitempty" yaml:"closeOnSolve,omitempty"`
	ShowMessage   string          `json:"showMessage,omitempty" yaml:"showMessage,omitempty"`
	SolvedMessage string          `json:"solvedMessage,omitempty" yaml:"solvedMessage,omitempty"`
	OnSolvedHook  string          `json:"onSolvedHook,omitempty" yaml:"onSolvedHook,omitempty"`
	OnSolvedArgs  json.RawMessage `json:"onSolvedArgs,omitempty" yaml:"-"`
}

// TileInput is an authored tile; missing fields are filled by Normalize.
type TileInput struct {
	ID    string `json:"id,omitempty" yaml:"id,omitempty"`
	Label string `json:"label,omitempty" yaml:"label,omitempty"`
	Image string `json:"image,omitempty" yaml:"image,omitempty"`
}

// Normalize produces a well-formed Definition from authored input.
//
// Tiles are padded up to TileCount, missing ids become "tile-N" and missing
// labels "Tile N". A solution whose length does not match the tile count is
// replaced by the tile order. Columns default to a single row.
func Normalize(in Input) Definition {
	tiles := make([]Tile, 0, len(in.Tiles))
	for _, t := range in.Tiles {
		tiles = append(tiles, Tile{ID: t.ID, Label: t.Label, Image: t.Image})
	}
	if in.TileCount != nil {
		for i := len(tiles); i < *in.TileCount; i++ {
			tiles = append(tiles, Tile{})
		}
	}
	for i := range tiles {
		if tiles[i].ID == "" {
			tiles[i].ID = fmt.Sprintf("tile-%d", i+1)
		}
		if tiles[i].Label == "" {
			tiles[i].Label = fmt.Sprintf("Tile %d", i+1)
		}
		if tiles[i].Image == "" {
			tiles[i].Image = DefaultTileImage
		}
	}

	solution := make([]string, len(tiles))
	if len(in.Solution) == len(tiles) {
		copy(solution, in.Solution)
	} else {
		for i, t := range tiles {
			solution[i] = t.ID
		}
	}

	columns := len(tiles)
	if in.Columns != nil && *in.Columns > 0 {
		columns = *in.Columns
	}
	if columns < 1 {
		columns = 1
	}

	def := Definition{
		Title:         DefaultTitle,
		Instructions:  DefaultInstructions,
		Tiles:         tiles,
		Solution:      solution,
		Columns:       columns,
		Shuffle:       in.Shuffle != nil && *in.Shuffle,
		CloseOnSolve:  in.CloseOnSolve == nil || *in.CloseOnSolve,
		ShowMessage:   in.ShowMessage,
		SolvedMessage: in.SolvedMessage,
		OnSolvedHook:  in.OnSolvedHook,
	}
	if in.Title != nil {
		def.Title = *in.Title
	}
	if in.Instructions != nil {
		def.Instructions = *in.Instructions
	}
	if len(in.OnSolvedArgs) > 0 {
		def.OnSolvedArgs = append(json.RawMessage(nil), in.OnSolvedArgs...)
	}
	return def
}

// Validate reports whether a definition received from elsewhere is
// internally consistent: unique non-empty tile ids and a solution that
// places each tile exactly once.
func (d Definition) Validate() error {
	ids := make(map[string]struct{}, len(d.Tiles))
	for i, t := range d.Tiles {
		if t.ID == "" {
			return &ValidationError{Field: fmt.Sprintf("tiles[%d].id", i), Message: "tile id is empty"}
		}
		if _, dup := ids[t.ID]; dup {
			return &ValidationError{Field: fmt.Sprintf("tiles[%d].id", i), Message: fmt.Sprintf("duplicate tile id %q", t.ID)}
		}
		ids[t.ID] = struct{}{}
	}
	if len(d.Solution) != len(d.Tiles) {
		return &ValidationError{
			Field:   "solution",
			Message: fmt.Sprintf("solution has %d slots, want %d", len(d.Solution), len(d.Tiles)),
		}
	}
	used := make(map[string]struct{}, len(d.Solution))
	for i, id := range d.Solution {
		if _, ok := ids[id]; !ok {
			return &ValidationError{Field: fmt.Sprintf("solution[%d]", i), Message: fmt.Sprintf("unknown tile %q", id)}
		}
		if _, dup := used[id]; dup {
			return &ValidationError{Field: fmt.Sprintf("solution[%d]", i), Message: fmt.Sprintf("tile %q used twice", id)}
		}
		used[id] = struct{}{}
	}
	return nil
}

// PieceIDs returns the tile ids in definition order.
func (d Definition) PieceIDs() []string {
	ids := make([]string, len(d.Tiles))
	for i, t := range d.Tiles {
		ids[i] = t.ID
	}
	return ids
}

// Clone returns a deep copy of the definition.
func (d Definition) Clone() Definition {
	out := d
	out.Tiles = append([]Tile(nil), d.Tiles...)
	out.Solution = append([]string(nil), d.Solution...)
	if d.OnSolvedArgs != nil {
		out.OnSolvedArgs = append(json.RawMessage(nil), d.OnSolvedArgs...)
	}
	return out
}

// ValidationError describes a malformed definition or state.
type ValidationError struct {
	Field   string
	Message string
	Line    int // source line when loaded from a file, 0 otherwise
}

func (e *ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s: %s", e.Line, e.Field, e.Message)
	}
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}
