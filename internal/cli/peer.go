package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/puzzlesync/internal/board"
	"github.com/roach88/puzzlesync/internal/config"
	"github.com/roach88/puzzlesync/internal/engine"
	"github.com/roach88/puzzlesync/internal/redisstate"
	"github.com/roach88/puzzlesync/internal/store"
	"github.com/roach88/puzzlesync/internal/transport"
)

// peer is one participant process on a channel: the coordinator, its
// transports and, for owners, the solve ledger.
type peer struct {
	cfg     config.Config
	clock   engine.Clock
	coord   *engine.Coordinator
	set     *transport.Set
	factory *board.Factory
	rng     *rand.Rand

	ws     *transport.WebSocket
	redis  *redis.Client
	ledger *store.Store
}

type peerOptions struct {
	// Owner forces the owner role even when the participant is not listed
	// in cfg.Owners.
	Owner bool
	// Sink is the solved side effect. The ledger, when enabled, records
	// every attempt around it.
	Sink engine.SolvedSink
	// Observer receives board changes of boards opened by incoming OPENs.
	Observer board.Observer
	// Settled runs after the side effect and its ledger record.
	Settled func(engine.SolvedEvent)
}

// connectPeer dials the relay, and Redis when configured, and builds the
// coordinator on top of them.
func connectPeer(ctx context.Context, cfg config.Config, po peerOptions) (*peer, error) {
	if cfg.ParticipantID == "" {
		return nil, NewExitError(ExitCommandError, "participant id is required (--participant or PUZZLESYNC_PARTICIPANT)")
	}
	owner := po.Owner || cfg.IsOwner(cfg.ParticipantID)
	if owner && !cfg.IsOwner(cfg.ParticipantID) {
		cfg.Owners = append(slices.Clone(cfg.Owners), cfg.ParticipantID)
	}

	p := &peer{
		cfg:   cfg,
		clock: engine.SystemClock{},
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	p.ws = transport.NewWebSocket(cfg.RelayURL, cfg.Channel, cfg.ParticipantID)
	if err := p.ws.Connect(ctx); err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to connect to relay", err)
	}
	transports := []transport.Transport{p.ws}

	var dedup engine.Deduper = engine.NewDedupCache(p.clock, cfg.DedupTTL, 0)
	var lock engine.SolveLocker = engine.NewSolveLock(p.clock, cfg.SolveLockTTL)
	if cfg.RedisURL != "" {
		client, err := redisstate.Connect(ctx, cfg.RedisURL)
		if err != nil {
			p.Close()
			return nil, WrapExitError(ExitCommandError, "failed to connect to redis", err)
		}
		p.redis = client
		transports = append(transports, transport.NewRedis(client, cfg.Channel, cfg.ParticipantID))
		dedup = redisstate.NewDedup(client, cfg.ParticipantID, p.clock, cfg.DedupTTL)
		lock = redisstate.NewSolveLock(client, p.clock, cfg.SolveLockTTL)
	}

	sink := po.Sink
	if owner && cfg.LedgerPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LedgerPath), 0o755); err != nil {
			p.Close()
			return nil, WrapExitError(ExitCommandError, "failed to create ledger directory", err)
		}
		st, err := store.Open(cfg.LedgerPath)
		if err != nil {
			p.Close()
			return nil, WrapExitError(ExitCommandError, "failed to open ledger", err)
		}
		p.ledger = st
		sink = &store.LedgerSink{Store: st, Next: po.Sink, Clock: p.clock}
	}

	if po.Settled != nil {
		inner := sink
		if inner == nil {
			inner = engine.NopSink{}
		}
		sink = engine.SolvedFunc(func(ctx context.Context, ev engine.SolvedEvent) error {
			err := inner.Solved(ctx, ev)
			po.Settled(ev)
			return err
		})
	}

	p.set = transport.NewSet(transports...)
	p.factory = &board.Factory{Rand: p.rng, Observer: po.Observer}

	coord, err := engine.New(engine.Options{
		ParticipantID: cfg.ParticipantID,
		Owner:         owner,
		Channel:       cfg.Channel,
		Sender:        p.set,
		Roster:        engine.NewRoster(p.clock, cfg.PresenceWindow, cfg.Members()...),
		Dedup:         dedup,
		Lock:          lock,
		Clock:         p.clock,
		Boards:        p.factory,
		Sink:          sink,
	})
	if err != nil {
		p.Close()
		return nil, WrapExitError(ExitCommandError, "failed to create coordinator", err)
	}
	p.coord = coord

	slog.Info("peer connected",
		"participant", cfg.ParticipantID,
		"owner", owner,
		"channel", cfg.Channel,
		"relay", cfg.RelayURL,
		"redis", cfg.RedisURL != "",
		"ledger", p.ledger != nil,
	)
	return p, nil
}

// Run processes envelopes until ctx is done or a transport fails. A PING
// goes out on start and every half presence window to keep the roster
// fresh.
func (p *peer) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.coord.Run(ctx) })
	g.Go(func() error {
		if err := p.set.Listen(ctx, p.coord.Receive); err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		p.heartbeat(ctx)
		return nil
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (p *peer) heartbeat(ctx context.Context) {
	interval := p.cfg.PresenceWindow / 2
	if interval <= 0 {
		interval = engine.DefaultPresenceWindow / 2
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.coord.Ping(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.coord.Ping(ctx)
		}
	}
}

// Close releases transports and the ledger.
func (p *peer) Close() {
	if p.coord != nil {
		p.coord.Stop()
	}
	if p.ws != nil {
		if err := p.ws.Close(); err != nil {
			slog.Debug("close relay connection", "error", err)
		}
	}
	if p.redis != nil {
		if err := p.redis.Close(); err != nil {
			slog.Debug("close redis client", "error", err)
		}
	}
	if p.ledger != nil {
		if err := p.ledger.Close(); err != nil {
			slog.Warn("close ledger", "error", err)
		}
	}
}
