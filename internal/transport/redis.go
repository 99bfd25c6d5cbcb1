package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/roach88/puzzlesync/internal/wire"
)

// KeyPrefix namespaces the pub/sub channels used by the fallback.
const KeyPrefix = "puzzlesync:"

// Carrier wraps an envelope on the fallback transport. It names its
// author and, optionally, the only participants that should act on it.
type Carrier struct {
	Author     string        `json:"author"`
	Recipients []string      `json:"recipients,omitempty"`
	Envelope   wire.Envelope `json:"envelope"`
}

// Addressed reports whether participant should process the carrier: the
// recipient list is empty, lists the participant, or the participant
// wrote it.
func (c Carrier) Addressed(participant string) bool {
	return len(c.Recipients) == 0 ||
		slices.Contains(c.Recipients, participant) ||
		c.Author == participant
}

// Redis is the fallback transport over Redis pub/sub.
type Redis struct {
	client  *redis.Client
	channel string
	self    string

	ready     chan struct{}
	readyOnce sync.Once
}

// NewRedis creates a fallback transport for participant self on channel.
func NewRedis(client *redis.Client, channel, self string) *Redis {
	return &Redis{
		client:  client,
		channel: channel,
		self:    self,
		ready:   make(chan struct{}),
	}
}

// Name identifies the transport in logs.
func (r *Redis) Name() string { return "redis" }

// Ready is closed once the first Listen's subscription is confirmed.
func (r *Redis) Ready() <-chan struct{} { return r.ready }

func (r *Redis) key(channel string) string {
	if channel == "" {
		channel = r.channel
	}
	return KeyPrefix + channel
}

// Send publishes a carrier addressed to out.Recipients.
func (r *Redis) Send(ctx context.Context, out Outbound) error {
	if err := out.Envelope.Validate(); err != nil {
		return fmt.Errorf("redis send: %w", err)
	}
	data, err := wire.MarshalCanonical(Carrier{
		Author:     r.self,
		Recipients: out.Recipients,
		Envelope:   out.Envelope,
	})
	if err != nil {
		return fmt.Errorf("redis send: %w", err)
	}
	if err := r.client.Publish(ctx, r.key(out.Channel), data).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Listen subscribes to the channel and delivers carriers addressed to
// this participant.
func (r *Redis) Listen(ctx context.Context, h Handler) error {
	pubsub := r.client.Subscribe(ctx, r.key(""))
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe: %w", err)
	}
	r.readyOnce.Do(func() { close(r.ready) })
	slog.Debug("subscribed to fallback channel", "channel", r.key(""))

	msgs := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			r.handle(msg.Payload, h)
		}
	}
}

func (r *Redis) handle(payload string, h Handler) {
	var c Carrier
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		slog.Debug("dropping undecodable carrier", "transport", r.Name(), "error", err)
		return
	}
	if c.Author == "" {
		slog.Debug("dropping carrier without author", "transport", r.Name())
		return
	}
	if !c.Addressed(r.self) {
		return
	}
	if err := c.Envelope.Validate(); err != nil {
		slog.Debug("dropping invalid envelope", "transport", r.Name(), "error", err)
		return
	}
	h(c.Envelope, r.Name())
}
