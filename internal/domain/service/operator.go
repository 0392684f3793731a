package service

import "context"

// OperatorBridge is the router's view of the operator side: whether a human
// is attached to a session and how to reach them.
type OperatorBridge interface {
	// Bound reports whether an operator conversation is attached to session.
	Bound(sessionID string) bool

	// Forward delivers text into the operator conversation bound to
	// sessionID. Returns an error when no binding exists or delivery fails.
	Forward(ctx context.Context, sessionID, text string) error
}

// EscalationNotifier posts the one-way handoff alert carrying the anonymized
// transcript, before any operator has issued a connect command.
type EscalationNotifier interface {
	NotifyEscalation(ctx context.Context, sessionID string, history []string) error
}

// UserTransport delivers out-of-band frames to a connected end user, for
// example the operator-joined notice or forwarded operator replies.
type UserTransport interface {
	SendSystem(sessionID, text string) error
	SendAgentMessage(sessionID, text, sender string) error
}
