package repository

import (
	"context"
	"time"

	"github.com/PhillHH/chat-agent/internal/domain/entity"
)

// SessionSummary is the admin list view of one audited session.
type SessionSummary struct {
	ID           string
	CreatedAt    time.Time
	Notes        string
	MessageCount int
}

// SessionDetail is one session with its full ordered transcript.
type SessionDetail struct {
	ID        string
	CreatedAt time.Time
	Notes     string
	Messages  []*entity.AuditMessage
}

// ExportRow is one flattened line of the training export.
type ExportRow struct {
	SessionID        string
	SessionCreatedAt time.Time
	SessionNotes     string
	MessageRole      string
	MessageTime      time.Time
	MessageContent   string
}

// AuditRepository persists the append-only conversation transcript and the
// session bookkeeping around it.
type AuditRepository interface {
	// Save appends one message, creating the session row on first contact.
	Save(ctx context.Context, message *entity.AuditMessage) error

	// ListSessions returns session summaries, newest first.
	ListSessions(ctx context.Context, offset, limit int) ([]*SessionSummary, error)

	// GetSession returns one session with its transcript in time order.
	GetSession(ctx context.Context, sessionID string) (*SessionDetail, error)

	// SetNotes replaces the reviewer notes of a session.
	SetNotes(ctx context.Context, sessionID, notes string) error

	// ForEachExportRow streams every (session, message) pair in session
	// creation order for the training export.
	ForEachExportRow(ctx context.Context, fn func(row *ExportRow) error) error
}
