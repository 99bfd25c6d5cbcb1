package wire

import (
	"fmt"
	"slices"

	"github.com/roach88/puzzlesync/internal/puzzle"
)

// Envelope is the unit of transmission. Build one with the New* helpers;
// an envelope is never modified after it has been sent.
type Envelope struct {
	Action           Action             `json:"action"`
	BroadcastID      string             `json:"broadcastId,omitempty"`
	SessionID        string             `json:"sessionId,omitempty"`
	SenderID         string             `json:"senderId"`
	TargetUserIDs    []string           `json:"targetUserIds,omitempty"`
	ExcludeOwner     bool               `json:"excludeOwner,omitempty"`
	TS               int64              `json:"ts"`
	Definition       *puzzle.Definition `json:"definition,omitempty"`
	InitialState     *SyncState         `json:"initialState,omitempty"`
	State            *SyncState         `json:"state,omitempty"`
	OriginalSenderID string             `json:"originalSenderId,omitempty"`
}

// Header carries the fields every envelope has.
type Header struct {
	BroadcastID string
	SenderID    string
	TS          int64 // milliseconds since epoch
}

// OpenOptions are the optional parts of an OPEN envelope.
type OpenOptions struct {
	InitialState  *SyncState
	TargetUserIDs []string
	ExcludeOwner  bool
}

// NewOpen builds an OPEN envelope announcing a session.
func NewOpen(h Header, sessionID string, def puzzle.Definition, opts OpenOptions) Envelope {
	d := def.Clone()
	env := Envelope{
		Action:        ActionOpen,
		BroadcastID:   h.BroadcastID,
		SessionID:     sessionID,
		SenderID:      h.SenderID,
		TS:            h.TS,
		TargetUserIDs: cloneIDs(opts.TargetUserIDs),
		ExcludeOwner:  opts.ExcludeOwner,
		Definition:    &d,
	}
	if opts.InitialState != nil {
		s := opts.InitialState.Clone()
		env.InitialState = &s
	}
	return env
}

// NewState builds a STATE envelope.
func NewState(h Header, sessionID string, state SyncState, targets []string) Envelope {
	s := state.Clone()
	return Envelope{
		Action:        ActionState,
		BroadcastID:   h.BroadcastID,
		SessionID:     sessionID,
		SenderID:      h.SenderID,
		TS:            h.TS,
		TargetUserIDs: cloneIDs(targets),
		State:         &s,
	}
}

// NewSolved builds a SOLVED envelope. It is only meaningful to owners.
func NewSolved(h Header, sessionID string, state SyncState) Envelope {
	s := state.Clone()
	return Envelope{
		Action:      ActionSolved,
		BroadcastID: h.BroadcastID,
		SessionID:   sessionID,
		SenderID:    h.SenderID,
		TS:          h.TS,
		State:       &s,
	}
}

// NewPing builds a presence probe.
func NewPing(h Header) Envelope {
	return Envelope{
		Action:      ActionPing,
		BroadcastID: h.BroadcastID,
		SenderID:    h.SenderID,
		TS:          h.TS,
	}
}

// NewAck answers a PING or acknowledges an OPEN. The broadcast id echoes
// the envelope being acknowledged.
func NewAck(h Header, originalSenderID string) Envelope {
	return Envelope{
		Action:           ActionAck,
		BroadcastID:      h.BroadcastID,
		SenderID:         h.SenderID,
		TS:               h.TS,
		OriginalSenderID: originalSenderID,
	}
}

// Validate checks the fields each action requires.
func (e Envelope) Validate() error {
	if !e.Action.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownAction, string(e.Action))
	}
	if e.SenderID == "" {
		return fmt.Errorf("%s envelope: senderId is required", e.Action)
	}
	switch e.Action {
	case ActionOpen:
		if e.SessionID == "" {
			return fmt.Errorf("OPEN envelope: sessionId is required")
		}
		if e.Definition == nil {
			return fmt.Errorf("OPEN envelope: definition is required")
		}
	case ActionState, ActionSolved:
		if e.SessionID == "" {
			return fmt.Errorf("%s envelope: sessionId is required", e.Action)
		}
		if e.State == nil {
			return fmt.Errorf("%s envelope: state is required", e.Action)
		}
	case ActionAck:
		if e.OriginalSenderID == "" {
			return fmt.Errorf("ACK envelope: originalSenderId is required")
		}
	case ActionPing:
	}
	return nil
}

// Addresses reports whether the envelope is meant for participantID. An
// empty target list addresses everyone.
func (e Envelope) Addresses(participantID string) bool {
	if len(e.TargetUserIDs) == 0 {
		return true
	}
	return slices.Contains(e.TargetUserIDs, participantID)
}

func (e Envelope) String() string {
	if e.SessionID == "" {
		return fmt.Sprintf("%s(%s from %s)", e.Action, e.BroadcastID, e.SenderID)
	}
	return fmt.Sprintf("%s(%s session=%s from %s)", e.Action, e.BroadcastID, e.SessionID, e.SenderID)
}

func cloneIDs(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	return append([]string(nil), ids...)
}
