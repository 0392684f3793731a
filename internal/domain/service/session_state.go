package service

import (
	"context"

	"github.com/PhillHH/chat-agent/internal/domain/entity"
)

// SessionState reads and writes the per-session answering mode. An absent
// entry means AI; setting HUMAN starts the 24h handover window.
type SessionState interface {
	Mode(ctx context.Context, sessionID string) (entity.SessionMode, error)
	SetMode(ctx context.Context, sessionID string, mode entity.SessionMode) error
}
