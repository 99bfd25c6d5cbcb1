package harness

import (
	"context"
	"fmt"
	"math/rand"
	"slices"
	"sync"
	"time"

	"github.com/roach88/puzzlesync/internal/board"
	"github.com/roach88/puzzlesync/internal/engine"
	"github.com/roach88/puzzlesync/internal/puzzle"
	"github.com/roach88/puzzlesync/internal/store"
	"github.com/roach88/puzzlesync/internal/testutil"
	"github.com/roach88/puzzlesync/internal/transport"
	"github.com/roach88/puzzlesync/internal/wire"
)

// shuffleSeed seeds every board shuffle in a run.
const shuffleSeed = 1

var faultModes = map[string]transport.Fault{
	"deliver":   transport.Deliver,
	"drop":      transport.Drop,
	"duplicate": transport.Duplicate,
	"hold":      transport.Hold,
}

var faultNames = map[transport.Fault]string{
	transport.Deliver:   "deliver",
	transport.Drop:      "drop",
	transport.Duplicate: "duplicate",
	transport.Hold:      "hold",
}

// node is one participant of a run.
type node struct {
	id      string
	owner   bool
	coord   *engine.Coordinator
	factory *board.Factory
	own     map[string]*board.Board
	changes *testutil.Recorder[board.Change]
	solved  *testutil.Recorder[engine.SolvedEvent]
}

func (n *node) board(sessionID string) (*board.Board, bool) {
	if b, ok := n.own[sessionID]; ok {
		return b, true
	}
	return n.factory.Board(sessionID)
}

// Harness executes one scenario. Build it with Run.
type Harness struct {
	clock    *testutil.FakeClock
	ledger   *store.Store
	networks map[string]*transport.Network
	nodes    map[string]*node
	order    []string

	mu     sync.Mutex
	faults map[string]map[string]transport.Fault // network -> recipient -> fault
	trace  []TraceEvent
}

// Run executes a scenario and evaluates its assertions. The returned
// error is reserved for scenarios that cannot run at all; failed steps
// and assertions are reported in the Result.
//
// Each run gets a fresh in-memory ledger, networks and clock.
func Run(s *Scenario) (*Result, error) {
	if err := s.Puzzle.Validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: definition: %w", s.Name, err)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory ledger: %w", err)
	}
	defer st.Close()

	h := &Harness{
		clock:  testutil.NewFakeClock(testutil.Epoch),
		ledger: st,
		networks: map[string]*transport.Network{
			NetworkPrimary:  transport.NewNetwork(NetworkPrimary, false),
			NetworkFallback: transport.NewNetwork(NetworkFallback, true),
		},
		nodes:  make(map[string]*node),
		faults: make(map[string]map[string]transport.Fault),
	}
	for name, network := range h.networks {
		network.SetFault(h.faultFunc(name))
	}
	if err := h.join(s); err != nil {
		return nil, err
	}

	ctx := context.Background()
	result := NewResult()

	sessionID, err := h.open(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}
	result.SessionID = sessionID

	for i, step := range s.Steps {
		if err := h.execute(ctx, step, sessionID); err != nil {
			result.AddError(fmt.Sprintf("steps[%d]: %v", i, err))
		}
	}
	h.settle(ctx)

	h.mu.Lock()
	result.Trace = append(result.Trace, h.trace...)
	h.mu.Unlock()

	for _, msg := range h.evaluate(ctx, s.Assertions, sessionID) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) join(s *Scenario) error {
	members := make([]engine.Member, 0, len(s.Participants))
	for _, p := range s.Participants {
		members = append(members, engine.Member{ID: p.ID, Owner: p.Owner})
	}

	var shared engine.SolveLocker
	if s.SharedLock {
		shared = engine.NewSolveLock(h.clock, 0)
	}

	for i, p := range s.Participants {
		n := &node{
			id:      p.ID,
			owner:   p.Owner,
			own:     make(map[string]*board.Board),
			changes: &testutil.Recorder[board.Change]{},
			solved:  &testutil.Recorder[engine.SolvedEvent]{},
		}
		n.factory = &board.Factory{
			Rand:     rand.New(rand.NewSource(shuffleSeed + int64(i))),
			Observer: n.observe,
		}

		sink := engine.SolvedSink(engine.SolvedFunc(func(_ context.Context, ev engine.SolvedEvent) error {
			n.solved.Add(ev)
			return nil
		}))
		if p.Owner {
			sink = &store.LedgerSink{Store: h.ledger, Next: sink, Clock: h.clock}
		}

		primary := h.networks[NetworkPrimary].Join(p.ID)
		fallback := h.networks[NetworkFallback].Join(p.ID)
		c, err := engine.New(engine.Options{
			ParticipantID: p.ID,
			Owner:         p.Owner,
			Channel:       s.Name,
			Sender:        transport.NewSet(primary, fallback),
			Roster:        engine.NewRoster(h.clock, 0, members...),
			Lock:          shared,
			Clock:         h.clock,
			IDs:           engine.NewCountingGenerator(p.ID),
			Boards:        n.factory,
			Sink:          sink,
		})
		if err != nil {
			return fmt.Errorf("participant %s: %w", p.ID, err)
		}
		primary.Attach(c.Receive)
		fallback.Attach(c.Receive)

		n.coord = c
		h.nodes[p.ID] = n
		h.order = append(h.order, p.ID)
	}
	return nil
}

func (n *node) observe(_ *board.Board, ch board.Change) {
	n.changes.Add(ch)
}

func (h *Harness) open(ctx context.Context, s *Scenario) (string, error) {
	n := h.nodes[s.Open.By]
	b, env, err := board.Open(ctx, n.coord, s.Puzzle, engine.OpenOptions{
		SessionID:     s.Open.Session,
		TargetUserIDs: s.Open.Targets,
		IncludeOwners: s.Open.IncludeOwners,
	}, rand.New(rand.NewSource(shuffleSeed)), n.observe)
	if err != nil {
		return "", err
	}
	n.own[env.SessionID] = b
	return env.SessionID, nil
}

func (h *Harness) execute(ctx context.Context, step Step, sessionID string) error {
	switch {
	case step.Place != nil:
		return h.move(ctx, *step.Place, sessionID, true)
	case step.Tray != nil:
		return h.move(ctx, *step.Tray, sessionID, false)
	case step.Deliver:
		h.settle(ctx)
	case step.Advance != "":
		d, err := time.ParseDuration(step.Advance)
		if err != nil {
			return err
		}
		h.clock.Advance(d)
	case step.DuplicateLast != "":
		if !h.networks[NetworkPrimary].Redeliver(step.DuplicateLast) {
			return fmt.Errorf("nothing was delivered to %s yet", step.DuplicateLast)
		}
	case step.Fault != nil:
		h.setFault(*step.Fault)
	case step.Release != nil:
		for _, name := range []string{NetworkPrimary, NetworkFallback} {
			h.networks[name].Release(step.Release.Reverse)
		}
	case step.Ping != "":
		h.nodes[step.Ping].coord.Ping(ctx)
	}
	return nil
}

func (h *Harness) move(ctx context.Context, m Move, sessionID string, place bool) error {
	if m.Session != "" {
		sessionID = m.Session
	}
	b, ok := h.nodes[m.By].board(sessionID)
	if !ok {
		return fmt.Errorf("%s has no board for session %s", m.By, sessionID)
	}
	from, ok := locate(b.State(), m.Piece)
	if !ok {
		return fmt.Errorf("piece %s is not on %s's board", m.Piece, m.By)
	}
	if place {
		return b.PlaceInSlot(ctx, from, m.Slot)
	}
	return b.ReturnToTray(ctx, from)
}

// locate finds a piece in the tray or the slots.
func locate(s puzzle.State, piece string) (puzzle.Location, bool) {
	if i := slices.Index(s.TrayOrder, piece); i >= 0 {
		return puzzle.Location{Area: puzzle.AreaTray, Index: i}, true
	}
	if i := slices.Index(s.SlotAssignment, piece); i >= 0 {
		return puzzle.Location{Area: puzzle.AreaSlot, Index: i}, true
	}
	return puzzle.Location{}, false
}

// settle drains every coordinator until no events remain.
func (h *Harness) settle(ctx context.Context) {
	for {
		n := 0
		for _, id := range h.order {
			n += h.nodes[id].coord.Drain(ctx)
		}
		if n == 0 {
			return
		}
	}
}

func (h *Harness) setFault(f FaultStep) {
	h.mu.Lock()
	defer h.mu.Unlock()
	networks := []string{NetworkPrimary, NetworkFallback}
	if f.Network != "" {
		networks = []string{f.Network}
	}
	for _, name := range networks {
		if h.faults[name] == nil {
			h.faults[name] = make(map[string]transport.Fault)
		}
		h.faults[name][f.To] = faultModes[f.Mode]
	}
}

// faultFunc applies the configured fault and records the delivery.
func (h *Harness) faultFunc(network string) transport.FaultFunc {
	return func(d transport.Delivery) transport.Fault {
		h.mu.Lock()
		defer h.mu.Unlock()
		fault := h.faults[network][d.To]
		ev := TraceEvent{
			Network:   network,
			From:      d.From,
			To:        d.To,
			Action:    string(d.Envelope.Action),
			Session:   d.Envelope.SessionID,
			Broadcast: d.Envelope.BroadcastID,
			Fault:     faultNames[fault],
		}
		if d.Envelope.Action == wire.ActionState && d.Envelope.State != nil && d.Envelope.State.HasSequence() {
			ev.Sequence = *d.Envelope.State.Sequence
		}
		h.trace = append(h.trace, ev)
		return fault
	}
}
