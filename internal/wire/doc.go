// Package wire defines the envelope exchanged between participants of a
// puzzle session and its canonical JSON encoding.
//
// Both transports carry the same envelope. The fallback transport wraps it
// in its own carrier, but the fields below are identical on every path:
//
//	action, broadcastId, sessionId, senderId, targetUserIds, excludeOwner,
//	ts, definition, initialState, state, originalSenderId
//
// wire imports only puzzle; the engine and transports import wire.
package wire
