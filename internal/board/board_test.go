package board

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/puzzlesync/internal/engine"
	"github.com/roach88/puzzlesync/internal/puzzle"
	"github.com/roach88/puzzlesync/internal/testutil"
	"github.com/roach88/puzzlesync/internal/transport"
	"github.com/roach88/puzzlesync/internal/wire"
)

type peer struct {
	c       *engine.Coordinator
	factory *Factory
	solved  *testutil.Recorder[engine.SolvedEvent]
	changes *testutil.Recorder[Change]
}

type room struct {
	t     *testing.T
	net   *transport.Network
	clock *testutil.FakeClock
	peers []*peer
}

func newRoom(t *testing.T) *room {
	return &room{t: t, net: transport.NewNetwork("primary", false), clock: testutil.NewFakeClock(testutil.Epoch)}
}

func (r *room) join(id string, owner bool) *peer {
	r.t.Helper()
	lb := r.net.Join(id)
	p := &peer{
		solved:  &testutil.Recorder[engine.SolvedEvent]{},
		changes: &testutil.Recorder[Change]{},
	}
	p.factory = &Factory{
		Rand:     rand.New(rand.NewSource(1)),
		Observer: func(_ *Board, ch Change) { p.changes.Add(ch) },
	}
	c, err := engine.New(engine.Options{
		ParticipantID: id,
		Owner:         owner,
		Sender:        lb,
		Roster:        engine.NewRoster(r.clock, 0, engine.Member{ID: "A", Owner: true}, engine.Member{ID: "B"}),
		Clock:         r.clock,
		IDs:           engine.NewCountingGenerator(id),
		Boards:        p.factory,
		Sink: engine.SolvedFunc(func(_ context.Context, ev engine.SolvedEvent) error {
			p.solved.Add(ev)
			return nil
		}),
	})
	require.NoError(r.t, err)
	lb.Attach(c.Receive)
	p.c = c
	r.peers = append(r.peers, p)
	return p
}

func (r *room) settle() {
	for {
		n := 0
		for _, p := range r.peers {
			n += p.c.Drain(context.Background())
		}
		if n == 0 {
			return
		}
	}
}

func testDefinition() puzzle.Definition {
	return puzzle.Normalize(puzzle.Input{Tiles: []puzzle.TileInput{{ID: "p1"}, {ID: "p2"}}})
}

func tray(i int) puzzle.Location { return puzzle.Location{Area: puzzle.AreaTray, Index: i} }

// openRoom opens session S from A and returns both boards.
func openRoom(t *testing.T) (*room, *peer, *peer, *Board, *Board) {
	t.Helper()
	r := newRoom(t)
	a := r.join("A", true)
	b := r.join("B", false)

	boardA, env, err := Open(context.Background(), a.c, testDefinition(), engine.OpenOptions{SessionID: "S"}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, "S", env.SessionID)
	r.settle()

	boardB, ok := b.factory.Board("S")
	require.True(t, ok)
	return r, a, b, boardA, boardB
}

func TestOpen_SharesInitialLayout(t *testing.T) {
	r := newRoom(t)
	a := r.join("A", true)
	b := r.join("B", false)

	def := testDefinition()
	def.Shuffle = true
	boardA, env, err := Open(context.Background(), a.c, def, engine.OpenOptions{SessionID: "S"}, rand.New(rand.NewSource(7)), nil)
	require.NoError(t, err)
	r.settle()

	require.NotNil(t, env.InitialState)
	assert.Equal(t, boardA.State(), env.InitialState.State)
	assert.Contains(t, a.c.SubscribersOf("S"), engine.Subscriber(boardA))

	boardB, ok := b.factory.Board("S")
	require.True(t, ok)
	assert.Equal(t, boardA.State(), boardB.State())
	assert.Contains(t, b.c.SubscribersOf("S"), engine.Subscriber(boardB))
	assert.Len(t, b.factory.Boards(), 1)
}

func TestOpen_NonOwnerFails(t *testing.T) {
	r := newRoom(t)
	b := r.join("B", false)

	_, _, err := Open(context.Background(), b.c, testDefinition(), engine.OpenOptions{}, nil, nil)
	assert.True(t, engine.IsNotOwner(err))
}

func TestBoard_MoveReachesOtherBoard(t *testing.T) {
	r, _, b, boardA, boardB := openRoom(t)
	ctx := context.Background()

	require.NoError(t, boardB.PlaceInSlot(ctx, tray(0), 0))
	r.settle()

	want := puzzle.State{TrayOrder: []string{"p2"}, SlotAssignment: puzzle.Slots{"p1", ""}}
	assert.Equal(t, want, boardB.State())
	assert.Equal(t, want, boardA.State())

	require.NoError(t, boardB.ReturnToTray(ctx, puzzle.Location{Area: puzzle.AreaSlot, Index: 0}))
	r.settle()
	assert.Equal(t, []string{"p2", "p1"}, boardA.State().TrayOrder)

	local := b.changes.All()
	require.Len(t, local, 2)
	assert.False(t, local[0].Remote)
}

func TestBoard_ParticipantSolveRunsOwnerSideEffectOnce(t *testing.T) {
	r, a, b, boardA, boardB := openRoom(t)
	ctx := context.Background()

	require.NoError(t, boardB.PlaceInSlot(ctx, tray(0), 0))
	require.NoError(t, boardB.PlaceInSlot(ctx, tray(0), 1))
	r.settle()

	assert.True(t, boardB.Solved())
	assert.True(t, boardA.Solved())
	require.Equal(t, 1, a.solved.Len())
	ev, _ := a.solved.Last()
	assert.Equal(t, "B", ev.SolvedBy)
	assert.Equal(t, 0, b.solved.Len())
	assert.Equal(t, engine.StatusSolved, a.c.Status("S"))

	err := boardB.PlaceInSlot(ctx, puzzle.Location{Area: puzzle.AreaSlot, Index: 0}, 1)
	assert.Error(t, err, "solved boards are frozen")
}

func TestBoard_OwnerSolveClaimsLocally(t *testing.T) {
	r, a, _, boardA, boardB := openRoom(t)
	ctx := context.Background()

	require.NoError(t, boardA.PlaceInSlot(ctx, tray(0), 0))
	require.NoError(t, boardA.PlaceInSlot(ctx, tray(0), 1))
	r.settle()

	require.Equal(t, 1, a.solved.Len())
	ev, _ := a.solved.Last()
	assert.Equal(t, "A", ev.SolvedBy)
	assert.True(t, boardB.Solved())
}

func TestBoard_OwnerClaimsSolveFromRemoteState(t *testing.T) {
	r, a, _, boardA, _ := openRoom(t)

	// B's SOLVED is lost; only its solved STATE reaches A.
	solved := puzzle.State{TrayOrder: []string{}, SlotAssignment: puzzle.Slots{"p1", "p2"}}
	boardA.ApplyRemote("S", wire.NewSyncState(solved).WithSequence(5))
	r.settle()

	assert.True(t, boardA.Solved())
	require.Equal(t, 1, a.solved.Len())
	ev, _ := a.solved.Last()
	assert.Equal(t, "A", ev.SolvedBy)
	assert.Equal(t, engine.StatusSolved, a.c.Status("S"))

	// A second solved snapshot does not claim again.
	boardA.ApplyRemote("S", wire.NewSyncState(solved).WithSequence(6))
	assert.Equal(t, 1, a.solved.Len())
}

func TestBoard_LostSolvedStillRunsSideEffect(t *testing.T) {
	r, a, _, boardA, boardB := openRoom(t)
	ctx := context.Background()
	r.net.SetFault(func(d transport.Delivery) transport.Fault {
		if d.Envelope.Action == wire.ActionSolved {
			return transport.Drop
		}
		return transport.Deliver
	})

	require.NoError(t, boardB.PlaceInSlot(ctx, tray(0), 0))
	require.NoError(t, boardB.PlaceInSlot(ctx, tray(0), 1))
	r.settle()

	assert.True(t, boardA.Solved())
	assert.Equal(t, 1, a.solved.Len())
	assert.Equal(t, engine.StatusSolved, a.c.Status("S"))
}

func TestBoard_ParticipantDoesNotClaimFromRemoteState(t *testing.T) {
	r, a, b, _, boardB := openRoom(t)

	solved := puzzle.State{TrayOrder: []string{}, SlotAssignment: puzzle.Slots{"p1", "p2"}}
	boardB.ApplyRemote("S", wire.NewSyncState(solved).WithSequence(3))
	r.settle()

	assert.True(t, boardB.Solved())
	assert.Equal(t, 0, b.solved.Len())
	assert.Equal(t, 0, a.solved.Len(), "no SOLVED is sent for a remote solve")
}

func TestBoard_RemoteSnapshotReplacesState(t *testing.T) {
	_, _, _, boardA, _ := openRoom(t)

	snapshot := puzzle.State{TrayOrder: []string{"p1"}, SlotAssignment: puzzle.Slots{"", "p2"}}
	boardA.ApplyRemote("S", wire.NewSyncState(snapshot).WithSequence(4))
	assert.Equal(t, snapshot, boardA.State())

	boardA.ApplyRemote("other", wire.NewSyncState(puzzle.State{}))
	boardA.ApplyRemote("S", wire.NewSyncState(puzzle.State{TrayOrder: []string{"p9"}}))
	assert.Equal(t, snapshot, boardA.State(), "foreign and invalid snapshots are ignored")
}

func TestBoard_CloseUnregisters(t *testing.T) {
	r, a, _, boardA, boardB := openRoom(t)
	ctx := context.Background()

	boardA.Close()
	boardA.Close()
	assert.Empty(t, a.c.SubscribersOf("S"))

	require.NoError(t, boardB.PlaceInSlot(ctx, tray(0), 0))
	r.settle()
	assert.Equal(t, []string{"p1", "p2"}, boardA.State().TrayOrder)
	assert.Error(t, boardA.PlaceInSlot(ctx, tray(0), 0))
}

func TestBoard_InvalidMove(t *testing.T) {
	_, _, b, _, boardB := openRoom(t)

	err := boardB.PlaceInSlot(context.Background(), tray(5), 0)
	assert.Error(t, err)
	assert.Equal(t, 0, b.changes.Len())
}

func TestBoard_ObserverPanicContained(t *testing.T) {
	r := newRoom(t)
	a := r.join("A", true)
	boardA, _, err := Open(context.Background(), a.c, testDefinition(), engine.OpenOptions{SessionID: "S"}, nil,
		func(*Board, Change) { panic("renderer crashed") })
	require.NoError(t, err)

	require.NoError(t, boardA.PlaceInSlot(context.Background(), tray(0), 0))
	assert.Equal(t, puzzle.Slots{"p1", ""}, boardA.State().SlotAssignment)
}

func TestFactory_ReopenReplacesBoard(t *testing.T) {
	r, a, b, _, first := openRoom(t)

	_, _, err := Open(context.Background(), a.c, testDefinition(), engine.OpenOptions{SessionID: "S"}, nil, nil)
	require.NoError(t, err)
	r.settle()

	second, ok := b.factory.Board("S")
	require.True(t, ok)
	assert.NotSame(t, first, second)
	assert.Equal(t, []engine.Subscriber{second}, b.c.SubscribersOf("S"))
}
