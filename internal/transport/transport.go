// Package transport moves envelopes between participants.
//
// Two kinds of transport exist. The primary (WebSocket through a Relay) is
// low-latency and broadcasts to everyone connected. The fallback (Redis)
// is slower but reaches participants the primary may have missed; it
// honors an explicit recipient list. Both may deliver the same envelope,
// so everything above this layer is idempotent by construction.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/puzzlesync/internal/wire"
)

// Outbound is one envelope to send.
type Outbound struct {
	Channel  string
	Envelope wire.Envelope
	// Recipients limits delivery on transports that support addressing.
	// Broadcast transports ignore it.
	Recipients []string
}

// Handler receives every decoded inbound envelope. from names the
// transport that delivered it.
type Handler func(env wire.Envelope, from string)

// Transport sends and receives envelopes. Send is fire-and-forget: a nil
// error does not mean anyone received the envelope.
type Transport interface {
	Name() string
	Send(ctx context.Context, out Outbound) error
	// Listen delivers inbound envelopes to h until ctx is done or the
	// transport fails.
	Listen(ctx context.Context, h Handler) error
}

// Set fans every send out to all of its transports and runs all of their
// receive loops against one handler.
type Set struct {
	transports []Transport
}

// NewSet creates a set. Order only affects send order.
func NewSet(transports ...Transport) *Set {
	return &Set{transports: append([]Transport(nil), transports...)}
}

// Transports returns the members of the set.
func (s *Set) Transports() []Transport {
	return append([]Transport(nil), s.transports...)
}

// Send tries every transport. A failing or panicking transport does not
// stop the others; the failures are returned joined.
func (s *Set) Send(ctx context.Context, out Outbound) error {
	var errs []error
	for _, t := range s.transports {
		if err := safeSend(ctx, t, out); err != nil {
			slog.Debug("transport send failed",
				"transport", t.Name(),
				"action", out.Envelope.Action,
				"error", err,
			)
			errs = append(errs, fmt.Errorf("%s: %w", t.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func safeSend(ctx context.Context, t Transport, out Outbound) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("send panicked: %v", r)
		}
	}()
	return t.Send(ctx, out)
}

// Listen runs every transport's receive loop with h. One transport failing
// does not stop the others. Listen returns when all loops have returned.
func (s *Set) Listen(ctx context.Context, h Handler) error {
	var g errgroup.Group
	for _, t := range s.transports {
		g.Go(func() error {
			err := t.Listen(ctx, h)
			if err != nil && ctx.Err() == nil {
				slog.Warn("transport stopped", "transport", t.Name(), "error", err)
				return fmt.Errorf("%s: %w", t.Name(), err)
			}
			return nil
		})
	}
	return g.Wait()
}
