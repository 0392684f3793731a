package models

import "time"

// SessionModel is one audited chat session. Rows are created on first
// contact and never deleted; reviewers attach notes in the admin backend.
type SessionModel struct {
	ID        string `gorm:"primaryKey;size:64"`
	CreatedAt time.Time
	Notes     string `gorm:"type:text"`
}

func (SessionModel) TableName() string {
	return "chat_sessions"
}
