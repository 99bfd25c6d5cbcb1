package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/puzzlesync/internal/engine"
)

// LedgerSink runs the next sink and records every attempt, successful or
// not, in the ledger.
type LedgerSink struct {
	Store *Store
	// Next is the real side effect; nil records only.
	Next  engine.SolvedSink
	Clock engine.Clock
}

// Solved implements engine.SolvedSink. The side effect's error, or its
// panic as an error, is recorded and returned so the coordinator logs it.
func (l *LedgerSink) Solved(ctx context.Context, ev engine.SolvedEvent) error {
	sideErr := l.next(ctx, ev)

	clock := l.Clock
	if clock == nil {
		clock = engine.SystemClock{}
	}
	sv := Solve{
		SessionID: ev.SessionID,
		SolvedBy:  ev.SolvedBy,
		State:     ev.State,
		SolvedAt:  clock.Now(),
	}
	if ev.Definition != nil {
		sv.Title = ev.Definition.Title
	}
	if sideErr != nil {
		sv.Error = sideErr.Error()
	}

	if err := l.Store.RecordSolve(ctx, sv); err != nil {
		slog.Error("ledger write failed", "session", ev.SessionID, "error", err)
		return errors.Join(sideErr, err)
	}
	return sideErr
}

func (l *LedgerSink) next(ctx context.Context, ev engine.SolvedEvent) (err error) {
	if l.Next == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("solved side effect panicked: %v", r)
		}
	}()
	return l.Next.Solved(ctx, ev)
}
