package wire

import "github.com/roach88/puzzlesync/internal/puzzle"

// SyncState is a board snapshot as it travels between participants: the
// arrangement plus the sender's sequence number for the session.
//
// Sequence is nil for senders that only order by timestamp.
type SyncState struct {
	puzzle.State
	Sequence *int64 `json:"sequence,omitempty"`
}

// NewSyncState wraps a board state without a sequence number.
func NewSyncState(s puzzle.State) SyncState {
	return SyncState{State: s.Clone()}
}

// WithSequence returns a copy stamped with seq.
func (s SyncState) WithSequence(seq int64) SyncState {
	out := s.Clone()
	out.Sequence = &seq
	return out
}

// Clone returns a deep copy.
func (s SyncState) Clone() SyncState {
	out := SyncState{State: s.State.Clone()}
	if s.Sequence != nil {
		seq := *s.Sequence
		out.Sequence = &seq
	}
	return out
}

// HasSequence reports whether the sender stamped a sequence number.
func (s SyncState) HasSequence() bool {
	return s.Sequence != nil
}
