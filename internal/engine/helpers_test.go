package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/puzzlesync/internal/puzzle"
	"github.com/roach88/puzzlesync/internal/testutil"
	"github.com/roach88/puzzlesync/internal/transport"
	"github.com/roach88/puzzlesync/internal/wire"
)

// recordingSender captures every outbound envelope.
type recordingSender struct {
	testutil.Recorder[transport.Outbound]
	err error
}

func (s *recordingSender) Send(_ context.Context, out transport.Outbound) error {
	s.Add(out)
	return s.err
}

// actions returns the actions of everything sent so far.
func (s *recordingSender) actions() []wire.Action {
	var out []wire.Action
	for _, o := range s.All() {
		out = append(out, o.Envelope.Action)
	}
	return out
}

// recordingBoard captures remote states applied to it.
type recordingBoard struct {
	testutil.Recorder[wire.SyncState]
}

func (b *recordingBoard) ApplyRemote(_ string, s wire.SyncState) { b.Add(s) }

type panickingBoard struct{}

func (*panickingBoard) ApplyRemote(string, wire.SyncState) { panic("board exploded") }

// recordingSink captures solved events.
type recordingSink struct {
	testutil.Recorder[SolvedEvent]
	err error
}

func (s *recordingSink) Solved(_ context.Context, ev SolvedEvent) error {
	s.Add(ev)
	return s.err
}

// boardFactory creates recording boards and remembers them per session.
type boardFactory struct {
	boards map[string]*recordingBoard
	calls  int
	err    error
}

func newBoardFactory() *boardFactory {
	return &boardFactory{boards: make(map[string]*recordingBoard)}
}

func (f *boardFactory) NewBoard(_ context.Context, _ *Coordinator, sessionID string, _ puzzle.Definition, initial *wire.SyncState) (Subscriber, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	b := &recordingBoard{}
	if initial != nil {
		b.Add(initial.Clone())
	}
	f.boards[sessionID] = b
	return b, nil
}

func testDefinition() puzzle.Definition {
	return puzzle.Normalize(puzzle.Input{Tiles: []puzzle.TileInput{{ID: "p1"}, {ID: "p2"}}})
}

func startState() puzzle.State {
	return puzzle.State{TrayOrder: []string{"p1", "p2"}, SlotAssignment: puzzle.Slots{"", ""}}
}

func midState() puzzle.State {
	return puzzle.State{TrayOrder: []string{"p2"}, SlotAssignment: puzzle.Slots{"p1", ""}}
}

func solvedState() puzzle.State {
	return puzzle.State{TrayOrder: []string{}, SlotAssignment: puzzle.Slots{"p1", "p2"}}
}

// members is the shared role table: A and G are owners, B and C are not.
func members() []Member {
	return []Member{
		{ID: "A", Owner: true},
		{ID: "B"},
		{ID: "C"},
		{ID: "G", Owner: true},
	}
}

type fixture struct {
	c      *Coordinator
	sender *recordingSender
	clock  *testutil.FakeClock
	boards *boardFactory
	sink   *recordingSink
}

func newFixture(t *testing.T, id string, owner bool) *fixture {
	t.Helper()
	clock := testutil.NewFakeClock(testutil.Epoch)
	f := &fixture{
		sender: &recordingSender{},
		clock:  clock,
		boards: newBoardFactory(),
		sink:   &recordingSink{},
	}
	c, err := New(Options{
		ParticipantID: id,
		Owner:         owner,
		Channel:       "table-1",
		Sender:        f.sender,
		Roster:        NewRoster(clock, 0, members()...),
		Clock:         clock,
		IDs:           NewCountingGenerator(id),
		Boards:        f.boards,
		Sink:          f.sink,
	})
	require.NoError(t, err)
	f.c = c
	return f
}

// deliver hands env to the coordinator and processes it.
func (f *fixture) deliver(env wire.Envelope) {
	f.c.Receive(env, "test")
	f.c.Drain(context.Background())
}

func header(id, sender string, ts int64) wire.Header {
	return wire.Header{BroadcastID: id, SenderID: sender, TS: ts}
}

func stateFrom(sender, sessionID string, s puzzle.State, seq *int64, ts int64) wire.Envelope {
	ss := wire.NewSyncState(s)
	if seq != nil {
		ss = ss.WithSequence(*seq)
	}
	return wire.NewState(header(sender+"-state", sender, ts), sessionID, ss, nil)
}

func seq(n int64) *int64 { return &n }
