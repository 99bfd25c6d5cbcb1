package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/puzzlesync/internal/puzzle"
	"github.com/roach88/puzzlesync/internal/wire"
)

// dispatch routes one inbound envelope. Called only from the processing
// goroutine.
func (c *Coordinator) dispatch(ctx context.Context, env wire.Envelope, from string) {
	if err := env.Validate(); err != nil {
		if !env.Action.Valid() {
			slog.Warn("dropping envelope with unknown action",
				"action", string(env.Action),
				"sender", env.SenderID,
				"transport", from,
			)
			return
		}
		drop(env, from, err.Error())
		return
	}

	if env.SenderID != c.self {
		c.roster.Seen(env.SenderID)
	}

	switch env.Action {
	case wire.ActionOpen:
		c.handleOpen(ctx, env, from)
	case wire.ActionState:
		c.handleState(env, from)
	case wire.ActionSolved:
		c.handleSolved(ctx, env, from)
	case wire.ActionPing:
		c.handlePing(ctx, env, from)
	case wire.ActionAck:
		c.handleAck(env, from)
	default:
		slog.Warn("dropping envelope with unknown action", "action", string(env.Action), "transport", from)
	}
}

func drop(env wire.Envelope, from, reason string) {
	slog.Debug("dropping envelope",
		"action", env.Action,
		"broadcast", env.BroadcastID,
		"session", env.SessionID,
		"sender", env.SenderID,
		"transport", from,
		"reason", reason,
	)
}

func (c *Coordinator) handleOpen(ctx context.Context, env wire.Envelope, from string) {
	switch {
	case env.SenderID == c.self:
		drop(env, from, "self-originated")
		return
	case !c.roster.IsOwner(env.SenderID):
		drop(env, from, "sender is not an owner")
		return
	case !env.Addresses(c.self):
		drop(env, from, "not targeted")
		return
	case env.ExcludeOwner && c.owner:
		drop(env, from, "owners excluded")
		return
	}

	def := *env.Definition
	if err := def.Validate(); err != nil {
		drop(env, from, "invalid definition: "+err.Error())
		return
	}
	if c.dedup.SeenOrRecord(ctx, env.BroadcastID) {
		drop(env, from, "duplicate broadcast")
		return
	}

	c.registry.SetDefinition(env.SessionID, def)

	initial := env.InitialState
	if initial != nil {
		if err := puzzle.ValidateState(def, initial.State); err != nil {
			slog.Debug("ignoring invalid initial state", "session", env.SessionID, "error", err)
			initial = nil
		}
	}

	if c.boards != nil {
		sub, err := c.newBoard(ctx, env.SessionID, def, initial)
		if err != nil {
			slog.Error("board open failed", "session", env.SessionID, "error", err)
		} else if sub != nil {
			c.registry.Register(env.SessionID, sub)
		}
	}

	slog.Info("session joined",
		"session", env.SessionID,
		"owner", env.SenderID,
		"title", def.Title,
		"transport", from,
	)

	ack := wire.NewAck(wire.Header{
		BroadcastID: env.BroadcastID,
		SenderID:    c.self,
		TS:          c.clock.Now().UnixMilli(),
	}, env.SenderID)
	c.emit(ctx, ack, []string{env.SenderID})
}

func (c *Coordinator) newBoard(ctx context.Context, sessionID string, def puzzle.Definition, initial *wire.SyncState) (sub Subscriber, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("board factory panicked: %v", r)
		}
	}()
	return c.boards.NewBoard(ctx, c, sessionID, def, initial)
}

func (c *Coordinator) handleState(env wire.Envelope, from string) {
	if !env.Addresses(c.self) {
		drop(env, from, "not targeted")
		return
	}
	if def, ok := c.registry.DefinitionOf(env.SessionID); ok {
		if err := puzzle.ValidateState(def, env.State.State); err != nil {
			drop(env, from, "invalid state: "+err.Error())
			return
		}
	}
	if !c.tracker.Accept(env.SessionID, env.SenderID, Update{Sequence: env.State.Sequence, TS: env.TS}) {
		drop(env, from, "stale or self-originated state")
		return
	}

	for _, sub := range c.registry.SubscribersOf(env.SessionID) {
		deliver(sub, env.SessionID, env.State.Clone())
	}
}

// deliver isolates one subscriber: a panic is logged and the remaining
// subscribers still receive the update.
func deliver(sub Subscriber, sessionID string, state wire.SyncState) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("subscriber panicked", "session", sessionID, "panic", r)
		}
	}()
	sub.ApplyRemote(sessionID, state)
}

func (c *Coordinator) handleSolved(ctx context.Context, env wire.Envelope, from string) {
	if !c.owner {
		drop(env, from, "local participant is not an owner")
		return
	}
	if env.SenderID == c.self {
		drop(env, from, "self-originated")
		return
	}

	var def *puzzle.Definition
	if d, ok := c.registry.DefinitionOf(env.SessionID); ok {
		if err := puzzle.ValidateState(d, env.State.State); err != nil {
			drop(env, from, "invalid state: "+err.Error())
			return
		}
		def = &d
	}
	if c.dedup.SeenOrRecord(ctx, env.BroadcastID) {
		drop(env, from, "duplicate broadcast")
		return
	}

	c.settle(ctx, env.SessionID, def, env.State.State, env.SenderID)
}

func (c *Coordinator) handlePing(ctx context.Context, env wire.Envelope, from string) {
	if env.SenderID == c.self {
		drop(env, from, "self-originated")
		return
	}
	ack := wire.NewAck(wire.Header{
		BroadcastID: env.BroadcastID,
		SenderID:    c.self,
		TS:          c.clock.Now().UnixMilli(),
	}, env.SenderID)
	c.emit(ctx, ack, []string{env.SenderID})
}

func (c *Coordinator) handleAck(env wire.Envelope, from string) {
	if env.SenderID == c.self || env.OriginalSenderID != c.self {
		return
	}
	if sessionID, ok := c.registry.RecordAck(env.BroadcastID, env.SenderID); ok {
		slog.Debug("open acknowledged", "session", sessionID, "participant", env.SenderID, "transport", from)
	}
}
