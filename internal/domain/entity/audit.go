package entity

import "time"

// Role says who authored an audited message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// AuditMessage is one append-only line of a session transcript. Content
// holds the re-personalized text the user actually saw, not the anonymized
// form that traveled to the model.
type AuditMessage struct {
	SessionID string
	Role      Role
	Content   string
	Timestamp time.Time
}

// NewUserMessage builds an audit row for a user utterance.
func NewUserMessage(sessionID, content string) (*AuditMessage, error) {
	return newAuditMessage(sessionID, RoleUser, content)
}

// NewAssistantMessage builds an audit row for an assistant or operator reply.
func NewAssistantMessage(sessionID, content string) (*AuditMessage, error) {
	return newAuditMessage(sessionID, RoleAssistant, content)
}

func newAuditMessage(sessionID string, role Role, content string) (*AuditMessage, error) {
	if sessionID == "" {
		return nil, ErrEmptySessionID
	}
	return &AuditMessage{
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}, nil
}
