package engine

import (
	"slices"
	"sync"
	"time"
)

// DefaultPresenceWindow is how long a participant counts as reachable
// after its last envelope.
const DefaultPresenceWindow = 2 * time.Minute

// Member is a participant with a fixed role.
type Member struct {
	ID    string
	Owner bool
}

// Roster knows every participant's role and when each was last heard
// from. Roles are injected; presence is learned from received envelopes.
//
// Thread-safety: all methods are safe for concurrent use.
type Roster struct {
	mu       sync.Mutex
	clock    Clock
	window   time.Duration
	members  map[string]Member
	lastSeen map[string]time.Time
}

// NewRoster creates a roster. A non-positive window selects the default.
func NewRoster(clock Clock, window time.Duration, members ...Member) *Roster {
	if clock == nil {
		clock = SystemClock{}
	}
	if window <= 0 {
		window = DefaultPresenceWindow
	}
	r := &Roster{
		clock:    clock,
		window:   window,
		members:  make(map[string]Member, len(members)),
		lastSeen: make(map[string]time.Time),
	}
	for _, m := range members {
		r.members[m.ID] = m
	}
	return r
}

// Add registers or updates a member.
func (r *Roster) Add(m Member) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[m.ID] = m
}

// IsOwner reports whether id holds the owner role. Unknown ids do not.
func (r *Roster) IsOwner(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.members[id].Owner
}

// Seen records that id was just heard from. Unknown ids are added as
// non-owners.
func (r *Roster) Seen(id string) {
	if id == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[id]; !ok {
		r.members[id] = Member{ID: id}
	}
	r.lastSeen[id] = r.clock.Now()
}

// LastSeen returns when id was last heard from.
func (r *Roster) LastSeen(id string) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	at, ok := r.lastSeen[id]
	return at, ok
}

// ReachableParticipants returns non-owner ids other than self.
func (r *Roster) ReachableParticipants(self string) []string {
	return r.reachable(self, func(m Member) bool { return !m.Owner })
}

// ReachableOwners returns owner ids other than self.
func (r *Roster) ReachableOwners(self string) []string {
	return r.reachable(self, func(m Member) bool { return m.Owner })
}

// ReachableMembers returns every id other than self.
func (r *Roster) ReachableMembers(self string) []string {
	return r.reachable(self, func(Member) bool { return true })
}

// reachable returns matching members seen within the presence window.
// When none have been seen, every matching member is returned, so the
// fallback still reaches participants before any presence is known.
func (r *Roster) reachable(self string, match func(Member) bool) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	var seen, all []string
	for id, m := range r.members {
		if id == self || !match(m) {
			continue
		}
		all = append(all, id)
		if at, ok := r.lastSeen[id]; ok && now.Sub(at) < r.window {
			seen = append(seen, id)
		}
	}
	out := seen
	if len(out) == 0 {
		out = all
	}
	slices.Sort(out)
	return out
}
