package engine

import "sync"

// Update is the ordering information carried by an incoming STATE.
type Update struct {
	Sequence *int64 // nil when the sender only orders by timestamp
	TS       int64  // sender wall clock, milliseconds
}

// Position is the last accepted ordering value for one (session, sender).
type Position struct {
	LastSequence  *int64
	LastTimestamp int64
}

type positionKey struct {
	session string
	sender  string
}

// SequenceTracker decides whether an incoming state update is newer than
// everything already accepted from the same sender in the same session.
//
// Thread-safety: Accept is atomic per call.
type SequenceTracker struct {
	mu        sync.Mutex
	self      string
	positions map[positionKey]Position
}

// NewSequenceTracker creates a tracker for the local participant self.
func NewSequenceTracker(self string) *SequenceTracker {
	return &SequenceTracker{
		self:      self,
		positions: make(map[positionKey]Position),
	}
}

// Accept reports whether the update should be applied and, if so, records
// it:
//
//   - updates from the local participant are always rejected
//   - with a sequence: accept only if it is greater than the last one
//   - without: accept only if ts is greater than the last timestamp
//
// A sequence, when present, is authoritative and the timestamp is not
// advanced. A timestamp-only update leaves the stored sequence untouched.
func (t *SequenceTracker) Accept(sessionID, senderID string, u Update) bool {
	if senderID == t.self {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	key := positionKey{session: sessionID, sender: senderID}
	pos := t.positions[key]

	if u.Sequence != nil {
		if pos.LastSequence != nil && *u.Sequence <= *pos.LastSequence {
			return false
		}
		seq := *u.Sequence
		pos.LastSequence = &seq
		t.positions[key] = pos
		return true
	}

	if u.TS <= pos.LastTimestamp {
		return false
	}
	pos.LastTimestamp = u.TS
	t.positions[key] = pos
	return true
}

// Position returns a copy of the recorded position.
func (t *SequenceTracker) Position(sessionID, senderID string) (Position, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pos, ok := t.positions[positionKey{session: sessionID, sender: senderID}]
	if ok && pos.LastSequence != nil {
		seq := *pos.LastSequence
		pos.LastSequence = &seq
	}
	return pos, ok
}
