package engine

import (
	"context"
	"sync"

	"github.com/roach88/puzzlesync/internal/puzzle"
	"github.com/roach88/puzzlesync/internal/wire"
)

// Subscriber is a local board bound to a session. ApplyRemote receives an
// accepted remote snapshot that wholly replaces the board's state.
//
// Subscribers are kept in a set, so implementations must be comparable
// (pointer receivers).
type Subscriber interface {
	ApplyRemote(sessionID string, state wire.SyncState)
}

// SolvedEvent describes a session whose solve lock was acquired.
type SolvedEvent struct {
	SessionID string
	// Definition is nil when no definition was known for the session.
	Definition *puzzle.Definition
	State      puzzle.State
	// SolvedBy is the participant that reported the solve.
	SolvedBy string
}

// SolvedSink runs the side effect of a solved session. It is called at
// most once per session per solve-lock window.
type SolvedSink interface {
	Solved(ctx context.Context, ev SolvedEvent) error
}

// SolvedFunc adapts a function to SolvedSink.
type SolvedFunc func(ctx context.Context, ev SolvedEvent) error

// Solved calls f.
func (f SolvedFunc) Solved(ctx context.Context, ev SolvedEvent) error { return f(ctx, ev) }

// NopSink ignores solved sessions.
type NopSink struct{}

// Solved does nothing.
func (NopSink) Solved(context.Context, SolvedEvent) error { return nil }

// Status is the derived lifecycle position of a session.
type Status string

const (
	StatusUnknown       Status = "UNKNOWN"
	StatusOpenPending   Status = "OPEN_PENDING"
	StatusActive        Status = "ACTIVE"
	StatusSolvedPending Status = "SOLVED_PENDING"
	StatusSolved        Status = "SOLVED"
)

type sessionRow struct {
	subscribers map[Subscriber]struct{}
	definition  *puzzle.Definition
	handler     SolvedSink

	openBroadcastID string
	acks            map[string]struct{}

	solving bool
	solved  bool
}

// Registry maps sessions to their local subscribers, last-known definition
// and solved handler. Rows are created on first reference and live for the
// process lifetime.
//
// Thread-safety: all methods are safe for concurrent use.
// SubscribersOf returns a snapshot so delivery never observes a set that
// changes underneath it.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*sessionRow
	byOpen   map[string]string // open broadcast id -> session id
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*sessionRow),
		byOpen:   make(map[string]string),
	}
}

// row returns the session row, creating it. Callers hold r.mu.
func (r *Registry) row(sessionID string) *sessionRow {
	row, ok := r.sessions[sessionID]
	if !ok {
		row = &sessionRow{
			subscribers: make(map[Subscriber]struct{}),
			acks:        make(map[string]struct{}),
		}
		r.sessions[sessionID] = row
	}
	return row
}

// Register adds a subscriber to the session.
func (r *Registry) Register(sessionID string, sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.row(sessionID).subscribers[sub] = struct{}{}
}

// Unregister removes a subscriber. Unknown sessions are a no-op.
func (r *Registry) Unregister(sessionID string, sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if row, ok := r.sessions[sessionID]; ok {
		delete(row.subscribers, sub)
	}
}

// SubscribersOf returns a snapshot of the session's subscribers in no
// particular order.
func (r *Registry) SubscribersOf(sessionID string) []Subscriber {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.sessions[sessionID]
	if !ok {
		return nil
	}
	subs := make([]Subscriber, 0, len(row.subscribers))
	for sub := range row.subscribers {
		subs = append(subs, sub)
	}
	return subs
}

// SetDefinition replaces the session's definition.
func (r *Registry) SetDefinition(sessionID string, def puzzle.Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := def.Clone()
	r.row(sessionID).definition = &d
}

// DefinitionOf returns a copy of the session's definition.
func (r *Registry) DefinitionOf(sessionID string) (puzzle.Definition, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.sessions[sessionID]
	if !ok || row.definition == nil {
		return puzzle.Definition{}, false
	}
	return row.definition.Clone(), true
}

// SetSolvedHandler installs the side effect for the session.
func (r *Registry) SetSolvedHandler(sessionID string, sink SolvedSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.row(sessionID).handler = sink
}

// SolvedHandlerOf returns the session's handler, or nil.
func (r *Registry) SolvedHandlerOf(sessionID string) SolvedSink {
	r.mu.Lock()
	defer r.mu.Unlock()
	if row, ok := r.sessions[sessionID]; ok {
		return row.handler
	}
	return nil
}

// MarkOpened records that the local participant broadcast an OPEN.
func (r *Registry) MarkOpened(sessionID, broadcastID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.row(sessionID).openBroadcastID = broadcastID
	if broadcastID != "" {
		r.byOpen[broadcastID] = sessionID
	}
}

// RecordAck notes that participant acknowledged the OPEN with the given
// broadcast id. It returns the session, if the broadcast was ours.
func (r *Registry) RecordAck(broadcastID, participant string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sessionID, ok := r.byOpen[broadcastID]
	if !ok {
		return "", false
	}
	r.row(sessionID).acks[participant] = struct{}{}
	return sessionID, true
}

// Acks returns the number of participants that acknowledged our OPEN.
func (r *Registry) Acks(sessionID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if row, ok := r.sessions[sessionID]; ok {
		return len(row.acks)
	}
	return 0
}

func (r *Registry) markSolving(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.row(sessionID).solving = true
}

func (r *Registry) markSolved(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row := r.row(sessionID)
	row.solving = false
	row.solved = true
}

// Status derives the session's lifecycle position.
func (r *Registry) Status(sessionID string) Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.sessions[sessionID]
	switch {
	case !ok:
		return StatusUnknown
	case row.solved:
		return StatusSolved
	case row.solving:
		return StatusSolvedPending
	case row.openBroadcastID != "" && len(row.acks) == 0 && len(row.subscribers) == 0:
		return StatusOpenPending
	case len(row.subscribers) > 0 || row.definition != nil:
		return StatusActive
	default:
		return StatusUnknown
	}
}

// Sessions returns the ids of every known session.
func (r *Registry) Sessions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}
