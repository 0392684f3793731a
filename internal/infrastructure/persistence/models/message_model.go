package models

import "time"

// MessageModel is one transcript line. Content holds the re-personalized
// text, so this table is the only place cleartext PII is allowed to rest.
type MessageModel struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	SessionID string    `gorm:"index;size:64;not null"`
	Role      string    `gorm:"size:50;not null"` // user, assistant
	Content   string    `gorm:"type:text;not null"`
	Timestamp time.Time `gorm:"index"`
}

func (MessageModel) TableName() string {
	return "chat_messages"
}
