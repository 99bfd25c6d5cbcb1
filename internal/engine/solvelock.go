package engine

import (
	"context"
	"sync"
	"time"
)

// DefaultSolveLockTTL is how long a session stays solved before the lock
// can be acquired again.
const DefaultSolveLockTTL = 5 * time.Minute

// SolveLocker grants the right to run a session's solved side effect.
// Implemented by SolveLock (in-process) and redisstate.SolveLock (shared
// across owner processes).
type SolveLocker interface {
	TryAcquire(ctx context.Context, sessionID string) bool
}

// SolveLock is a per-session single-acquisition gate. There is no release:
// a held lock only expires after its TTL.
//
// Thread-safety: TryAcquire is atomic.
type SolveLock struct {
	mu       sync.Mutex
	clock    Clock
	ttl      time.Duration
	acquired map[string]time.Time
}

// NewSolveLock creates a lock table. A non-positive ttl selects the default.
func NewSolveLock(clock Clock, ttl time.Duration) *SolveLock {
	if clock == nil {
		clock = SystemClock{}
	}
	if ttl <= 0 {
		ttl = DefaultSolveLockTTL
	}
	return &SolveLock{clock: clock, ttl: ttl, acquired: make(map[string]time.Time)}
}

// TryAcquire returns true for the first caller per session per TTL window.
func (l *SolveLock) TryAcquire(_ context.Context, sessionID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if at, ok := l.acquired[sessionID]; ok && now.Sub(at) < l.ttl {
		return false
	}
	l.acquired[sessionID] = now
	return true
}

// Held reports whether the session's lock is currently held.
func (l *SolveLock) Held(sessionID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	at, ok := l.acquired[sessionID]
	return ok && l.clock.Now().Sub(at) < l.ttl
}
