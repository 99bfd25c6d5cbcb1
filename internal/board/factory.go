package board

import (
	"context"
	"math/rand"
	"sync"

	"github.com/roach88/puzzlesync/internal/engine"
	"github.com/roach88/puzzlesync/internal/puzzle"
	"github.com/roach88/puzzlesync/internal/wire"
)

// Factory is the engine.BoardFactory that opens a headless board for every
// accepted OPEN.
type Factory struct {
	// Rand shuffles boards whose OPEN carried no usable initial state.
	Rand *rand.Rand
	// Observer is attached to every board the factory creates.
	Observer Observer

	mu     sync.Mutex
	boards map[string]*Board
}

// NewBoard implements engine.BoardFactory. Reopening a session replaces
// its board; the previous one is closed.
func (f *Factory) NewBoard(_ context.Context, c *engine.Coordinator, sessionID string, def puzzle.Definition, initial *wire.SyncState) (engine.Subscriber, error) {
	var start *puzzle.State
	if initial != nil {
		s := initial.State.Clone()
		start = &s
	}

	f.mu.Lock()
	if f.boards == nil {
		f.boards = make(map[string]*Board)
	}
	old := f.boards[sessionID]
	f.mu.Unlock()
	if old != nil {
		old.Close()
	}

	b := New(c, sessionID, def, start, f.Rand, f.Observer)

	f.mu.Lock()
	f.boards[sessionID] = b
	f.mu.Unlock()
	return b, nil
}

// Board returns the board opened for a session.
func (f *Factory) Board(sessionID string) (*Board, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.boards[sessionID]
	return b, ok
}

// Boards returns every open board.
func (f *Factory) Boards() []*Board {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Board, 0, len(f.boards))
	for _, b := range f.boards {
		out = append(out, b)
	}
	return out
}
