package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/puzzlesync/internal/puzzle"
	"github.com/roach88/puzzlesync/internal/transport"
	"github.com/roach88/puzzlesync/internal/wire"
)

// Sender emits envelopes on every configured transport.
// Implemented by transport.Set.
type Sender interface {
	Send(ctx context.Context, out transport.Outbound) error
}

// BoardFactory instantiates a local board when an OPEN is accepted. The
// returned subscriber is registered for the session.
type BoardFactory interface {
	NewBoard(ctx context.Context, c *Coordinator, sessionID string, def puzzle.Definition, initial *wire.SyncState) (Subscriber, error)
}

// Options configures a Coordinator.
type Options struct {
	// ParticipantID is the unique id of the local participant. Required.
	ParticipantID string
	// Owner marks the local participant as holding the owner role.
	Owner bool
	// Channel is the transport channel name.
	Channel string
	// Sender emits envelopes. Required.
	Sender Sender

	// Optional collaborators; nil selects the in-process default.
	Roster  *Roster
	Dedup   Deduper
	Lock    SolveLocker
	Clock   Clock
	IDs     IDGenerator
	Boards  BoardFactory
	Sink    SolvedSink
	Tracker *SequenceTracker
}

// OpenOptions are the optional parts of OpenSession.
type OpenOptions struct {
	// SessionID reuses an id; empty generates one from the broadcast id.
	SessionID string
	// InitialState must fit the definition when set.
	InitialState *puzzle.State
	// TargetUserIDs restricts who opens a board; empty means everyone.
	TargetUserIDs []string
	// IncludeOwners lets other owners open the board too. By default the
	// OPEN is sent with excludeOwner set.
	IncludeOwners bool
	// OnSolved runs when the session is solved. Nil uses the coordinator's
	// default sink.
	OnSolved SolvedSink
}

// Coordinator wires the dedup cache, registry, sequence tracker and solve
// lock together and dispatches inbound envelopes.
//
// Thread-safety model:
//   - Receive(): safe from any goroutine (enqueues)
//   - Run() or Drain(): exactly one goroutine processes the queue
//   - OpenSession, PushState, RequestSolve, ClaimSolve, Ping, Register,
//     Unregister, RegisterSolvedHandler, DefinitionOf, Status: safe from
//     any goroutine
type Coordinator struct {
	self    string
	owner   bool
	channel string
	sender  Sender

	roster   *Roster
	dedup    Deduper
	lock     SolveLocker
	clock    Clock
	ids      IDGenerator
	boards   BoardFactory
	sink     SolvedSink
	registry *Registry
	tracker  *SequenceTracker
	counters *SequenceCounter
	queue    *eventQueue

	mu      sync.Mutex
	pending map[string]puzzle.State // session -> latest unsent local state
}

// New creates a Coordinator.
func New(opts Options) (*Coordinator, error) {
	if opts.ParticipantID == "" {
		return nil, fmt.Errorf("new coordinator: participant id is required")
	}
	if opts.Sender == nil {
		return nil, fmt.Errorf("new coordinator: sender is required")
	}

	c := &Coordinator{
		self:     opts.ParticipantID,
		owner:    opts.Owner,
		channel:  opts.Channel,
		sender:   opts.Sender,
		roster:   opts.Roster,
		dedup:    opts.Dedup,
		lock:     opts.Lock,
		clock:    opts.Clock,
		ids:      opts.IDs,
		boards:   opts.Boards,
		sink:     opts.Sink,
		tracker:  opts.Tracker,
		registry: NewRegistry(),
		counters: NewSequenceCounter(),
		queue:    newEventQueue(),
		pending:  make(map[string]puzzle.State),
	}
	if c.clock == nil {
		c.clock = SystemClock{}
	}
	if c.roster == nil {
		c.roster = NewRoster(c.clock, 0)
	}
	c.roster.Add(Member{ID: c.self, Owner: c.owner})
	if c.dedup == nil {
		c.dedup = NewDedupCache(c.clock, 0, 0)
	}
	if c.lock == nil {
		c.lock = NewSolveLock(c.clock, 0)
	}
	if c.ids == nil {
		c.ids = UUIDv7Generator{}
	}
	if c.sink == nil {
		c.sink = NopSink{}
	}
	if c.tracker == nil {
		c.tracker = NewSequenceTracker(c.self)
	}
	return c, nil
}

// ParticipantID returns the local participant id.
func (c *Coordinator) ParticipantID() string { return c.self }

// IsOwner reports whether the local participant holds the owner role.
func (c *Coordinator) IsOwner() bool { return c.owner }

// Roster returns the participant roster.
func (c *Coordinator) Roster() *Roster { return c.roster }

// Receive queues an inbound envelope. It is the transport.Handler for every
// transport; from names the transport for diagnostics only.
func (c *Coordinator) Receive(env wire.Envelope, from string) {
	if !c.queue.Enqueue(Event{Type: EventTypeEnvelope, Envelope: &env, Transport: from}) {
		slog.Debug("dropping envelope: coordinator stopped",
			"action", env.Action,
			"broadcast", env.BroadcastID,
			"transport", from,
		)
	}
}

// Run processes queued events until ctx is cancelled or Stop is called.
//
// Must be called from exactly one goroutine. Processing errors are logged
// and the loop continues.
func (c *Coordinator) Run(ctx context.Context) error {
	slog.Info("coordinator starting", "participant", c.self, "owner", c.owner)

	for {
		if ev, ok := c.queue.TryDequeue(); ok {
			c.process(ctx, ev)
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("coordinator stopping: context cancelled")
			c.queue.Close()
			return ctx.Err()
		case <-c.queue.Wait():
			if c.queue.Closed() && c.queue.Len() == 0 {
				slog.Info("coordinator stopping: queue closed")
				return nil
			}
		}
	}
}

// Drain processes queued events until the queue is empty. It is the
// synchronous alternative to Run and must not be used while Run is active.
func (c *Coordinator) Drain(ctx context.Context) int {
	n := 0
	for {
		ev, ok := c.queue.TryDequeue()
		if !ok {
			return n
		}
		c.process(ctx, ev)
		n++
	}
}

// Stop closes the queue. Run returns once the remaining events are drained.
func (c *Coordinator) Stop() {
	c.queue.Close()
}

// QueueLen returns the number of unprocessed events.
func (c *Coordinator) QueueLen() int {
	return c.queue.Len()
}

func (c *Coordinator) process(ctx context.Context, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("event processing panicked", "type", ev.Type, "panic", r)
		}
	}()

	switch ev.Type {
	case EventTypeEnvelope:
		if ev.Envelope == nil {
			slog.Error("envelope event missing envelope")
			return
		}
		c.dispatch(ctx, *ev.Envelope, ev.Transport)
	case EventTypeFlush:
		c.flush(ctx, ev.SessionID)
	default:
		slog.Error("unknown event type", "type", ev.Type)
	}
}

// OpenSession announces a session to the other participants. Only owners
// may open sessions; others get a NOT_OWNER error and nothing is sent.
func (c *Coordinator) OpenSession(ctx context.Context, def puzzle.Definition, opts OpenOptions) (wire.Envelope, error) {
	if !c.owner {
		return wire.Envelope{}, newSyncError(ErrCodeNotOwner, opts.SessionID, "only an owner can open a session")
	}
	if err := def.Validate(); err != nil {
		return wire.Envelope{}, newSyncError(ErrCodeInvalidDefinition, opts.SessionID, "%v", err)
	}

	h := c.header()
	sessionID := opts.SessionID
	if sessionID == "" {
		sessionID = h.BroadcastID
	}

	var initial *wire.SyncState
	if opts.InitialState != nil {
		if err := puzzle.ValidateState(def, *opts.InitialState); err != nil {
			return wire.Envelope{}, newSyncError(ErrCodeInvalidState, sessionID, "initial state: %v", err)
		}
		s := wire.NewSyncState(*opts.InitialState)
		initial = &s
	}

	c.registry.SetDefinition(sessionID, def)
	c.registry.MarkOpened(sessionID, h.BroadcastID)
	if opts.OnSolved != nil {
		c.registry.SetSolvedHandler(sessionID, opts.OnSolved)
	}
	c.dedup.SeenOrRecord(ctx, h.BroadcastID)

	env := wire.NewOpen(h, sessionID, def, wire.OpenOptions{
		InitialState:  initial,
		TargetUserIDs: opts.TargetUserIDs,
		ExcludeOwner:  !opts.IncludeOwners,
	})

	recipients := opts.TargetUserIDs
	if len(recipients) == 0 {
		if opts.IncludeOwners {
			recipients = c.roster.ReachableMembers(c.self)
		} else {
			recipients = c.roster.ReachableParticipants(c.self)
		}
	}
	c.emit(ctx, env, recipients)

	slog.Info("session opened",
		"session", sessionID,
		"broadcast", h.BroadcastID,
		"title", def.Title,
		"targets", len(opts.TargetUserIDs),
	)
	return env, nil
}

// PushState queues the local state of a session for sending. Calls made
// before the next loop tick are coalesced and only the latest state is
// sent, stamped with the session's next sequence number.
func (c *Coordinator) PushState(ctx context.Context, sessionID string, state puzzle.State) error {
	if sessionID == "" {
		return newSyncError(ErrCodeUnknownSession, "", "session id is required")
	}
	if def, ok := c.registry.DefinitionOf(sessionID); ok {
		if err := puzzle.ValidateState(def, state); err != nil {
			return newSyncError(ErrCodeInvalidState, sessionID, "%v", err)
		}
	}

	c.mu.Lock()
	_, scheduled := c.pending[sessionID]
	c.pending[sessionID] = state.Clone()
	c.mu.Unlock()

	if scheduled {
		return nil
	}
	if !c.queue.Enqueue(Event{Type: EventTypeFlush, SessionID: sessionID}) {
		c.mu.Lock()
		delete(c.pending, sessionID)
		c.mu.Unlock()
		return newSyncError(ErrCodeStopped, sessionID, "coordinator stopped")
	}
	return nil
}

// PendingState returns the state waiting for the next flush, if any.
func (c *Coordinator) PendingState(sessionID string) (puzzle.State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.pending[sessionID]
	if !ok {
		return puzzle.State{}, false
	}
	return s.Clone(), true
}

func (c *Coordinator) flush(ctx context.Context, sessionID string) {
	c.mu.Lock()
	state, ok := c.pending[sessionID]
	delete(c.pending, sessionID)
	c.mu.Unlock()
	if !ok {
		return
	}

	seq := c.counters.Next(sessionID)
	env := wire.NewState(c.header(), sessionID, wire.NewSyncState(state).WithSequence(seq), nil)
	c.emit(ctx, env, c.roster.ReachableMembers(c.self))

	slog.Debug("state sent", "session", sessionID, "sequence", seq)
}

// RequestSolve asks the owners to run the solved side effect. Owners
// calling it claim the solve locally instead.
func (c *Coordinator) RequestSolve(ctx context.Context, sessionID string, state puzzle.State) error {
	if sessionID == "" {
		return newSyncError(ErrCodeUnknownSession, "", "session id is required")
	}
	if c.owner {
		_, err := c.ClaimSolve(ctx, sessionID, state)
		return err
	}

	h := c.header()
	c.dedup.SeenOrRecord(ctx, h.BroadcastID)
	env := wire.NewSolved(h, sessionID, wire.NewSyncState(state))
	c.emit(ctx, env, c.roster.ReachableOwners(c.self))

	slog.Info("solve requested", "session", sessionID, "broadcast", h.BroadcastID)
	return nil
}

// ClaimSolve is the owner-local solve path: it acquires the solve lock and
// runs the solved handler. It returns whether this call ran the side
// effect.
func (c *Coordinator) ClaimSolve(ctx context.Context, sessionID string, state puzzle.State) (bool, error) {
	if !c.owner {
		return false, newSyncError(ErrCodeNotOwner, sessionID, "only an owner can claim a solve")
	}
	def, ok := c.registry.DefinitionOf(sessionID)
	if !ok {
		return false, newSyncError(ErrCodeUnknownSession, sessionID, "no definition for session")
	}
	if err := puzzle.ValidateState(def, state); err != nil {
		return false, newSyncError(ErrCodeInvalidState, sessionID, "%v", err)
	}
	return c.settle(ctx, sessionID, &def, state, c.self), nil
}

// Ping emits a presence probe. Participants answer with ACK.
func (c *Coordinator) Ping(ctx context.Context) {
	c.emit(ctx, wire.NewPing(c.header()), nil)
}

// Register binds a local board to a session.
func (c *Coordinator) Register(sessionID string, sub Subscriber) {
	c.registry.Register(sessionID, sub)
}

// Unregister detaches a local board.
func (c *Coordinator) Unregister(sessionID string, sub Subscriber) {
	c.registry.Unregister(sessionID, sub)
}

// RegisterSolvedHandler sets the side effect for a session. An optional
// definition is recorded too, for owners that did not open the session.
func (c *Coordinator) RegisterSolvedHandler(sessionID string, sink SolvedSink, def *puzzle.Definition) {
	if def != nil {
		c.registry.SetDefinition(sessionID, *def)
	}
	c.registry.SetSolvedHandler(sessionID, sink)
}

// DefinitionOf returns the last-known definition of a session.
func (c *Coordinator) DefinitionOf(sessionID string) (puzzle.Definition, bool) {
	return c.registry.DefinitionOf(sessionID)
}

// SubscribersOf returns the boards registered for a session.
func (c *Coordinator) SubscribersOf(sessionID string) []Subscriber {
	return c.registry.SubscribersOf(sessionID)
}

// Status returns the derived lifecycle state of a session.
func (c *Coordinator) Status(sessionID string) Status {
	return c.registry.Status(sessionID)
}

// Acks returns how many participants acknowledged our OPEN of a session.
func (c *Coordinator) Acks(sessionID string) int {
	return c.registry.Acks(sessionID)
}

// Sessions returns every session the coordinator knows about.
func (c *Coordinator) Sessions() []string {
	return c.registry.Sessions()
}

// settle acquires the solve lock and runs the handler on success. The
// lock is never rolled back, even when the handler fails.
func (c *Coordinator) settle(ctx context.Context, sessionID string, def *puzzle.Definition, state puzzle.State, solvedBy string) bool {
	if !c.lock.TryAcquire(ctx, sessionID) {
		slog.Debug("solve already claimed", "session", sessionID, "solved_by", solvedBy)
		return false
	}
	c.registry.markSolving(sessionID)
	defer c.registry.markSolved(sessionID)

	sink := c.registry.SolvedHandlerOf(sessionID)
	if sink == nil {
		sink = c.sink
	}
	ev := SolvedEvent{SessionID: sessionID, Definition: def, State: state.Clone(), SolvedBy: solvedBy}
	if err := safeSolved(ctx, sink, ev); err != nil {
		slog.Error("solved handler failed", "session", sessionID, "error", err)
	} else {
		slog.Info("session solved", "session", sessionID, "solved_by", solvedBy)
	}
	return true
}

func safeSolved(ctx context.Context, sink SolvedSink, ev SolvedEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("solved handler panicked: %v", r)
		}
	}()
	return sink.Solved(ctx, ev)
}

func (c *Coordinator) header() wire.Header {
	return wire.Header{
		BroadcastID: c.ids.Generate(),
		SenderID:    c.self,
		TS:          c.clock.Now().UnixMilli(),
	}
}

// emit sends on every transport. Failures are logged, never returned:
// the operation that triggered the send has fired either way.
func (c *Coordinator) emit(ctx context.Context, env wire.Envelope, recipients []string) {
	out := transport.Outbound{Channel: c.channel, Envelope: env, Recipients: recipients}
	if err := c.sender.Send(ctx, out); err != nil {
		slog.Warn("send failed",
			"action", env.Action,
			"broadcast", env.BroadcastID,
			"session", env.SessionID,
			"error", err,
		)
	}
}
