package engine

import (
	"sync"
	"time"
)

// Clock supplies wall-clock time. TTL expiry and envelope timestamps read
// it; tests inject a fake.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real time.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// SequenceCounter hands out per-session sequence numbers for outgoing
// STATE envelopes. Each session counts independently from 1.
//
// Thread-safety: SequenceCounter is safe for concurrent use.
type SequenceCounter struct {
	mu  sync.Mutex
	seq map[string]int64
}

// NewSequenceCounter creates a counter with every session at 0.
func NewSequenceCounter() *SequenceCounter {
	return &SequenceCounter{seq: make(map[string]int64)}
}

// Next returns the next sequence number for the session.
func (c *SequenceCounter) Next(sessionID string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq[sessionID]++
	return c.seq[sessionID]
}

// Current returns the last number handed out for the session, or 0.
func (c *SequenceCounter) Current(sessionID string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq[sessionID]
}
