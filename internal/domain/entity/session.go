package entity

import "regexp"

// SessionMode says who answers a session: the model or a human operator.
type SessionMode string

const (
	ModeAI    SessionMode = "AI"
	ModeHuman SessionMode = "HUMAN"
)

// ParseMode maps a stored status value to a mode. Anything unknown,
// including the empty string for an absent key, defaults to AI.
func ParseMode(s string) SessionMode {
	if SessionMode(s) == ModeHuman {
		return ModeHuman
	}
	return ModeAI
}

// sessionIDPattern is the shape of session tokens accepted from operator
// commands. User transports treat session ids as opaque strings.
var sessionIDPattern = regexp.MustCompile(`^sess_[A-Za-z0-9]+$`)

// IsOperatorSessionID reports whether id may be referenced in an operator
// connect or close command.
func IsOperatorSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}
