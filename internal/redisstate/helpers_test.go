package redisstate

import (
	"context"
	"sync/atomic"

	"github.com/roach88/puzzlesync/internal/engine"
	"github.com/roach88/puzzlesync/internal/puzzle"
	"github.com/roach88/puzzlesync/internal/transport"
	"github.com/roach88/puzzlesync/internal/wire"
)

type nopSender struct{}

func (nopSender) Send(context.Context, transport.Outbound) error { return nil }

func testDefinition() puzzle.Definition {
	return puzzle.Normalize(puzzle.Input{Tiles: []puzzle.TileInput{{ID: "p1"}, {ID: "p2"}}})
}

func solvedState() puzzle.State {
	return puzzle.State{TrayOrder: []string{}, SlotAssignment: puzzle.Slots{"p1", "p2"}}
}

// countingFactory counts the boards opened for accepted OPENs.
type countingFactory struct {
	opened atomic.Int32
}

func (f *countingFactory) NewBoard(context.Context, *engine.Coordinator, string, puzzle.Definition, *wire.SyncState) (engine.Subscriber, error) {
	f.opened.Add(1)
	return nopSubscriber{}, nil
}

type nopSubscriber struct{}

func (nopSubscriber) ApplyRemote(string, wire.SyncState) {}
