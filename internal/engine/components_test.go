package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/puzzlesync/internal/testutil"
	"github.com/roach88/puzzlesync/internal/wire"
)

func TestDedupCache_TTLBoundary(t *testing.T) {
	clock := testutil.NewFakeClock(testutil.Epoch)
	cache := NewDedupCache(clock, 0, 0)
	ctx := context.Background()

	assert.False(t, cache.SeenOrRecord(ctx, "b-1"), "first sighting")
	assert.True(t, cache.SeenOrRecord(ctx, "b-1"), "repeat within ttl")

	clock.Advance(59 * time.Second)
	assert.True(t, cache.SeenOrRecord(ctx, "b-1"))

	clock.Advance(2 * time.Second)
	assert.False(t, cache.SeenOrRecord(ctx, "b-1"), "expired after 61s")
	assert.True(t, cache.SeenOrRecord(ctx, "b-1"), "re-recorded")
}

func TestDedupCache_ExactlyAtTTLIsExpired(t *testing.T) {
	clock := testutil.NewFakeClock(testutil.Epoch)
	cache := NewDedupCache(clock, time.Minute, 0)
	ctx := context.Background()

	cache.SeenOrRecord(ctx, "b-1")
	clock.Advance(time.Minute)
	assert.False(t, cache.SeenOrRecord(ctx, "b-1"))
}

func TestDedupCache_EmptyIDNeverDeduplicated(t *testing.T) {
	cache := NewDedupCache(nil, 0, 0)
	ctx := context.Background()
	assert.False(t, cache.SeenOrRecord(ctx, ""))
	assert.False(t, cache.SeenOrRecord(ctx, ""))
	assert.Equal(t, 0, cache.Len())
}

func TestDedupCache_EvictsOldest(t *testing.T) {
	cache := NewDedupCache(testutil.NewFakeClock(testutil.Epoch), 0, 2)
	ctx := context.Background()

	cache.SeenOrRecord(ctx, "b-1")
	cache.SeenOrRecord(ctx, "b-2")
	cache.SeenOrRecord(ctx, "b-3")

	assert.Equal(t, 2, cache.Len())
	assert.True(t, cache.SeenOrRecord(ctx, "b-3"))
	assert.False(t, cache.SeenOrRecord(ctx, "b-1"), "evicted id is treated as new")
}

func TestDedupCache_ConcurrentFirstSighting(t *testing.T) {
	cache := NewDedupCache(nil, 0, 0)
	var fresh atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !cache.SeenOrRecord(context.Background(), "b-1") {
				fresh.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), fresh.Load())
}

func TestSolveLock_SingleAcquisitionPerWindow(t *testing.T) {
	clock := testutil.NewFakeClock(testutil.Epoch)
	lock := NewSolveLock(clock, 0)
	ctx := context.Background()

	assert.True(t, lock.TryAcquire(ctx, "S"))
	assert.False(t, lock.TryAcquire(ctx, "S"))
	assert.True(t, lock.TryAcquire(ctx, "T"), "sessions are independent")
	assert.True(t, lock.Held("S"))

	clock.Advance(4*time.Minute + 59*time.Second)
	assert.False(t, lock.TryAcquire(ctx, "S"))

	clock.Advance(time.Second)
	assert.False(t, lock.Held("S"))
	assert.True(t, lock.TryAcquire(ctx, "S"), "reacquirable after 5 minutes")
}

func TestSolveLock_ConcurrentAcquire(t *testing.T) {
	lock := NewSolveLock(nil, 0)
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if lock.TryAcquire(context.Background(), "S") {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestSequenceTracker_RejectsSelf(t *testing.T) {
	tr := NewSequenceTracker("A")
	assert.False(t, tr.Accept("S", "A", Update{Sequence: seq(1), TS: 1}))
	_, ok := tr.Position("S", "A")
	assert.False(t, ok)
}

func TestSequenceTracker_SequenceOrdering(t *testing.T) {
	tr := NewSequenceTracker("A")

	assert.True(t, tr.Accept("S", "B", Update{Sequence: seq(1), TS: 100}))
	assert.False(t, tr.Accept("S", "B", Update{Sequence: seq(1), TS: 200}), "duplicate sequence")
	assert.True(t, tr.Accept("S", "B", Update{Sequence: seq(3), TS: 50}), "sequence wins over ts")
	assert.False(t, tr.Accept("S", "B", Update{Sequence: seq(2), TS: 300}), "late arrival")

	pos, ok := tr.Position("S", "B")
	require.True(t, ok)
	require.NotNil(t, pos.LastSequence)
	assert.Equal(t, int64(3), *pos.LastSequence)
	assert.Equal(t, int64(0), pos.LastTimestamp, "sequenced updates do not advance ts")
}

func TestSequenceTracker_FirstUpdateAcceptsAnySequence(t *testing.T) {
	tr := NewSequenceTracker("A")
	assert.True(t, tr.Accept("S", "B", Update{Sequence: seq(0)}))
	assert.False(t, tr.Accept("S", "B", Update{Sequence: seq(-1)}))
}

func TestSequenceTracker_TimestampOrdering(t *testing.T) {
	tr := NewSequenceTracker("A")

	assert.True(t, tr.Accept("S", "B", Update{TS: 100}))
	assert.False(t, tr.Accept("S", "B", Update{TS: 100}))
	assert.False(t, tr.Accept("S", "B", Update{TS: 99}))
	assert.True(t, tr.Accept("S", "B", Update{TS: 101}))
}

func TestSequenceTracker_IndependentKeys(t *testing.T) {
	tr := NewSequenceTracker("A")

	require.True(t, tr.Accept("S", "B", Update{Sequence: seq(5)}))
	assert.True(t, tr.Accept("S", "C", Update{Sequence: seq(1)}), "other sender")
	assert.True(t, tr.Accept("T", "B", Update{Sequence: seq(1)}), "other session")
}

func TestSequenceTracker_PositionIsCopy(t *testing.T) {
	tr := NewSequenceTracker("A")
	require.True(t, tr.Accept("S", "B", Update{Sequence: seq(2)}))

	pos, _ := tr.Position("S", "B")
	*pos.LastSequence = 99

	assert.False(t, tr.Accept("S", "B", Update{Sequence: seq(2)}))
	assert.True(t, tr.Accept("S", "B", Update{Sequence: seq(3)}))
}

func TestSequenceTracker_Monotonic(t *testing.T) {
	// Property: the accepted sequences form a strictly increasing
	// subsequence of any delivery order.
	orders := [][]int64{
		{1, 2, 3, 4, 5},
		{5, 4, 3, 2, 1},
		{2, 1, 2, 4, 3, 5, 5},
		{1, 1, 1, 2, 2, 3},
	}
	for _, order := range orders {
		t.Run(fmt.Sprint(order), func(t *testing.T) {
			tr := NewSequenceTracker("A")
			var accepted []int64
			for _, n := range order {
				if tr.Accept("S", "B", Update{Sequence: seq(n)}) {
					accepted = append(accepted, n)
				}
			}
			require.NotEmpty(t, accepted)
			assert.Equal(t, order[0], accepted[0])
			for i := 1; i < len(accepted); i++ {
				assert.Greater(t, accepted[i], accepted[i-1])
			}
		})
	}
}

func TestRegistry_RegisterUnregister(t *testing.T) {
	r := NewRegistry()
	b1, b2 := &recordingBoard{}, &recordingBoard{}

	r.Register("S", b1)
	r.Register("S", b1)
	r.Register("S", b2)
	assert.Len(t, r.SubscribersOf("S"), 2)

	r.Unregister("S", b1)
	assert.Equal(t, []Subscriber{b2}, r.SubscribersOf("S"))

	r.Unregister("missing", b1)
	assert.Empty(t, r.SubscribersOf("missing"))
}

func TestRegistry_SubscribersOfIsSnapshot(t *testing.T) {
	r := NewRegistry()
	b1 := &recordingBoard{}
	r.Register("S", b1)

	snap := r.SubscribersOf("S")
	r.Register("S", &recordingBoard{})
	r.Unregister("S", b1)

	assert.Equal(t, []Subscriber{b1}, snap)
}

func TestRegistry_DefinitionIsCopied(t *testing.T) {
	r := NewRegistry()
	def := testDefinition()
	r.SetDefinition("S", def)
	def.Solution[0] = "changed"

	got, ok := r.DefinitionOf("S")
	require.True(t, ok)
	assert.Equal(t, "p1", got.Solution[0])

	got.Solution[0] = "changed"
	again, _ := r.DefinitionOf("S")
	assert.Equal(t, "p1", again.Solution[0])

	_, ok = r.DefinitionOf("missing")
	assert.False(t, ok)
}

func TestRegistry_Status(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, StatusUnknown, r.Status("S"))

	r.SetDefinition("S", testDefinition())
	r.MarkOpened("S", "b-1")
	assert.Equal(t, StatusOpenPending, r.Status("S"))

	sessionID, ok := r.RecordAck("b-1", "B")
	require.True(t, ok)
	assert.Equal(t, "S", sessionID)
	assert.Equal(t, StatusActive, r.Status("S"))
	assert.Equal(t, 1, r.Acks("S"))

	_, ok = r.RecordAck("b-unknown", "B")
	assert.False(t, ok)

	r.markSolving("S")
	assert.Equal(t, StatusSolvedPending, r.Status("S"))
	r.markSolved("S")
	assert.Equal(t, StatusSolved, r.Status("S"))

	assert.ElementsMatch(t, []string{"S"}, r.Sessions())
}

func TestRoster_Reachability(t *testing.T) {
	clock := testutil.NewFakeClock(testutil.Epoch)
	r := NewRoster(clock, time.Minute, members()...)

	assert.Equal(t, []string{"B", "C"}, r.ReachableParticipants("A"), "nobody seen: everyone")
	assert.Equal(t, []string{"G"}, r.ReachableOwners("A"))
	assert.Equal(t, []string{"B", "C", "G"}, r.ReachableMembers("A"))

	r.Seen("B")
	assert.Equal(t, []string{"B"}, r.ReachableParticipants("A"))
	assert.Equal(t, []string{"B"}, r.ReachableMembers("A"))

	clock.Advance(time.Minute)
	assert.Equal(t, []string{"B", "C"}, r.ReachableParticipants("A"), "presence expired")
}

func TestRoster_SeenAddsUnknownAsParticipant(t *testing.T) {
	clock := testutil.NewFakeClock(testutil.Epoch)
	r := NewRoster(clock, 0)

	r.Seen("Z")
	r.Seen("")
	assert.False(t, r.IsOwner("Z"))
	at, ok := r.LastSeen("Z")
	require.True(t, ok)
	assert.Equal(t, testutil.Epoch, at)
	assert.Equal(t, []string{"Z"}, r.ReachableParticipants("A"))
}

func TestSequenceCounter(t *testing.T) {
	c := NewSequenceCounter()
	assert.Equal(t, int64(0), c.Current("S"))
	assert.Equal(t, int64(1), c.Next("S"))
	assert.Equal(t, int64(2), c.Next("S"))
	assert.Equal(t, int64(1), c.Next("T"))
	assert.Equal(t, int64(2), c.Current("S"))
}

func TestGenerators(t *testing.T) {
	fixed := NewFixedGenerator("x", "y")
	assert.Equal(t, "x", fixed.Generate())
	assert.Equal(t, "y", fixed.Generate())
	assert.Panics(t, func() { fixed.Generate() })

	counting := NewCountingGenerator("A")
	assert.Equal(t, "A-1", counting.Generate())
	assert.Equal(t, "A-2", counting.Generate())

	a, b := UUIDv7Generator{}.Generate(), UUIDv7Generator{}.Generate()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}

func TestEventQueue(t *testing.T) {
	q := newEventQueue()
	_, ok := q.TryDequeue()
	assert.False(t, ok)

	env := wire.NewPing(header("b-1", "B", 1))
	require.True(t, q.Enqueue(Event{Type: EventTypeEnvelope, Envelope: &env}))
	require.True(t, q.Enqueue(Event{Type: EventTypeFlush, SessionID: "S"}))
	assert.Equal(t, 2, q.Len())

	select {
	case <-q.Wait():
	default:
		t.Fatal("enqueue did not signal")
	}

	ev, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, EventTypeEnvelope, ev.Type)

	q.Close()
	assert.True(t, q.Closed())
	assert.False(t, q.Enqueue(Event{Type: EventTypeFlush}))

	ev, ok = q.TryDequeue()
	require.True(t, ok, "close keeps queued events")
	assert.Equal(t, "S", ev.SessionID)
}

func TestSyncError(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", newSyncError(ErrCodeNotOwner, "S", "only %s", "owners"))

	assert.True(t, IsNotOwner(err))
	assert.False(t, IsUnknownSession(err))
	assert.False(t, IsNotOwner(errors.New("plain")))

	var se *SyncError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "S", se.SessionID)
	assert.Contains(t, se.Error(), "NOT_OWNER")
	assert.Contains(t, se.Error(), "only owners")
}
