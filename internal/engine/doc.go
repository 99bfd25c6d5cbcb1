// Package engine implements the session coordinator that keeps a puzzle
// board consistent across participants.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// Inbound envelopes and debounced state flushes are queued and processed
// one at a time by Coordinator.Run. Every check-then-record step (dedup,
// sequence gate, solve lock) is atomic on its own component, so the public
// operations may also be called from other goroutines.
//
// Inbound Flow:
//  1. A transport decodes a frame and calls Coordinator.Receive
//  2. Run dequeues the envelope and dispatches on its Action
//  3. OPEN is gated by sender role, targeting and the DedupCache
//  4. STATE is gated by the SequenceTracker, then fanned out to subscribers
//  5. SOLVED is gated by role and the SolveLock, then the solved handler runs
//  6. PING is answered with ACK; ACK feeds the Roster
//
// Failures inside dispatch are logged and never stop the loop. Malformed or
// unauthorized remote input is dropped at Debug level. Local misuse of the
// public operations returns a *SyncError.
//
// Time:
// TTLs (dedup, solve lock, presence) read an injected Clock so tests can
// advance virtual time instead of sleeping.
package engine
