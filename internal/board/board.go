// Package board is a headless local board: the model a user interface
// would render. It applies local moves, pushes them to the session and
// accepts remote snapshots from the coordinator.
package board

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"

	"github.com/roach88/puzzlesync/internal/engine"
	"github.com/roach88/puzzlesync/internal/puzzle"
	"github.com/roach88/puzzlesync/internal/wire"
)

// Coordinator is the part of engine.Coordinator a board uses.
type Coordinator interface {
	IsOwner() bool
	PushState(ctx context.Context, sessionID string, state puzzle.State) error
	RequestSolve(ctx context.Context, sessionID string, state puzzle.State) error
	ClaimSolve(ctx context.Context, sessionID string, state puzzle.State) (bool, error)
	Register(sessionID string, sub engine.Subscriber)
	Unregister(sessionID string, sub engine.Subscriber)
}

// Change describes one update of a board's state.
type Change struct {
	SessionID string
	State     puzzle.State
	Remote    bool
	Solved    bool
}

// Observer is notified after every change. It runs without the board
// lock held and must not block.
type Observer func(b *Board, ch Change)

// Board holds one session's definition and current arrangement.
type Board struct {
	coord     Coordinator
	sessionID string
	def       puzzle.Definition
	observer  Observer

	mu       sync.Mutex
	state    puzzle.State
	solved   bool
	reported bool
	closed   bool
}

// New creates a board and registers it with the coordinator. The initial
// state is used when it fits the definition; otherwise every piece starts
// in the tray, shuffled with rng when the definition asks for it.
func New(c Coordinator, sessionID string, def puzzle.Definition, initial *puzzle.State, rng *rand.Rand, observer Observer) *Board {
	state := puzzle.InitialState(def, initial, rng)
	b := &Board{
		coord:     c,
		sessionID: sessionID,
		def:       def.Clone(),
		observer:  observer,
		state:     state,
		solved:    puzzle.IsSolved(def, state),
	}
	c.Register(sessionID, b)
	return b
}

// Open opens a session as owner and creates the owner's own board. The
// board's starting arrangement is sent as the OPEN's initial state so
// every participant starts from the same layout.
func Open(ctx context.Context, c *engine.Coordinator, def puzzle.Definition, opts engine.OpenOptions, rng *rand.Rand, observer Observer) (*Board, wire.Envelope, error) {
	initial := puzzle.InitialState(def, opts.InitialState, rng)
	opts.InitialState = &initial
	env, err := c.OpenSession(ctx, def, opts)
	if err != nil {
		return nil, wire.Envelope{}, err
	}
	return New(c, env.SessionID, def, &initial, nil, observer), env, nil
}

// SessionID returns the session the board belongs to.
func (b *Board) SessionID() string { return b.sessionID }

// Definition returns a copy of the board's definition.
func (b *Board) Definition() puzzle.Definition { return b.def.Clone() }

// State returns a copy of the current arrangement.
func (b *Board) State() puzzle.State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.Clone()
}

// Solved reports whether the board shows the solved arrangement.
func (b *Board) Solved() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.solved
}

// ApplyRemote replaces the whole arrangement with an accepted remote
// snapshot. States that do not fit the definition are ignored.
//
// An owner board that a snapshot leaves solved claims the solve too, so
// the side effect still runs when the solver's SOLVED never arrives.
func (b *Board) ApplyRemote(sessionID string, s wire.SyncState) {
	if sessionID != b.sessionID {
		return
	}
	if err := puzzle.ValidateState(b.def, s.State); err != nil {
		slog.Debug("board ignoring remote state", "session", sessionID, "error", err)
		return
	}
	owner := b.coord.IsOwner()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.state = s.State.Clone()
	b.solved = puzzle.IsSolved(b.def, b.state)
	claim := owner && b.solved && !b.reported
	if claim {
		b.reported = true
	}
	ch := Change{SessionID: b.sessionID, State: b.state.Clone(), Remote: true, Solved: b.solved}
	b.mu.Unlock()

	b.notify(ch)

	if claim {
		if err := b.reportSolved(context.Background(), ch.State); err != nil {
			slog.Warn("claim solve from remote state failed", "session", b.sessionID, "error", err)
		}
	}
}

// PlaceInSlot moves the piece at from into slot and shares the result.
func (b *Board) PlaceInSlot(ctx context.Context, from puzzle.Location, slot int) error {
	return b.move(ctx, func(s puzzle.State) (puzzle.State, error) {
		return puzzle.PlaceInSlot(s, from, slot)
	})
}

// ReturnToTray moves the piece at from back to the tray and shares the
// result.
func (b *Board) ReturnToTray(ctx context.Context, from puzzle.Location) error {
	return b.move(ctx, func(s puzzle.State) (puzzle.State, error) {
		return puzzle.ReturnToTray(s, from)
	})
}

func (b *Board) move(ctx context.Context, apply func(puzzle.State) (puzzle.State, error)) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return fmt.Errorf("board %s is closed", b.sessionID)
	}
	if b.solved {
		b.mu.Unlock()
		return fmt.Errorf("board %s is already solved", b.sessionID)
	}
	next, err := apply(b.state)
	if err != nil {
		b.mu.Unlock()
		return err
	}
	b.state = next
	b.solved = puzzle.IsSolved(b.def, next)
	report := b.solved && !b.reported
	if report {
		b.reported = true
	}
	ch := Change{SessionID: b.sessionID, State: next.Clone(), Solved: b.solved}
	b.mu.Unlock()

	b.notify(ch)

	// A participant's SOLVED goes out before the solved STATE, so owners
	// credit the solver rather than claiming from the snapshot.
	owner := b.coord.IsOwner()
	if report && !owner {
		if err := b.reportSolved(ctx, ch.State); err != nil {
			return err
		}
	}
	if err := b.coord.PushState(ctx, b.sessionID, ch.State); err != nil {
		return fmt.Errorf("push state: %w", err)
	}
	if report && owner {
		return b.reportSolved(ctx, ch.State)
	}
	return nil
}

// reportSolved hands the solved arrangement to the owners. An owner board
// claims the solve itself; the board shows solved either way.
func (b *Board) reportSolved(ctx context.Context, state puzzle.State) error {
	if !b.coord.IsOwner() {
		if err := b.coord.RequestSolve(ctx, b.sessionID, state); err != nil {
			return fmt.Errorf("request solve: %w", err)
		}
		return nil
	}
	ran, err := b.coord.ClaimSolve(ctx, b.sessionID, state)
	if err != nil {
		return fmt.Errorf("claim solve: %w", err)
	}
	if !ran {
		slog.Debug("solve already claimed elsewhere", "session", b.sessionID)
	}
	return nil
}

// Close unregisters the board. Remote states are ignored afterwards.
func (b *Board) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()
	b.coord.Unregister(b.sessionID, b)
}

func (b *Board) notify(ch Change) {
	if b.observer == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("board observer panicked", "session", b.sessionID, "panic", r)
		}
	}()
	b.observer(b, ch)
}
