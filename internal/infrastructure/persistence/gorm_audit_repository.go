package persistence

import (
	"context"
	"database/sql"
	"errors"

	"gorm.io/gorm"

	"github.com/PhillHH/chat-agent/internal/domain/entity"
	"github.com/PhillHH/chat-agent/internal/domain/repository"
	"github.com/PhillHH/chat-agent/internal/infrastructure/persistence/models"
	domainErrors "github.com/PhillHH/chat-agent/pkg/errors"
)

// GormAuditRepository implements repository.AuditRepository on gorm.
type GormAuditRepository struct {
	db *gorm.DB
}

// NewGormAuditRepository creates the gorm audit repository.
func NewGormAuditRepository(db *gorm.DB) repository.AuditRepository {
	return &GormAuditRepository{
		db: db,
	}
}

// Save appends one transcript line, creating the session row on first
// contact with this session id.
func (r *GormAuditRepository) Save(ctx context.Context, message *entity.AuditMessage) error {
	session := models.SessionModel{ID: message.SessionID}
	if err := r.db.WithContext(ctx).
		Where(models.SessionModel{ID: message.SessionID}).
		FirstOrCreate(&session).Error; err != nil {
		return domainErrors.NewAuditFailedError("failed to ensure session row", err)
	}

	model := models.MessageModel{
		SessionID: message.SessionID,
		Role:      string(message.Role),
		Content:   message.Content,
		Timestamp: message.Timestamp,
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return domainErrors.NewAuditFailedError("failed to save message", err)
	}
	return nil
}

// ListSessions returns session summaries, newest first.
func (r *GormAuditRepository) ListSessions(ctx context.Context, offset, limit int) ([]*repository.SessionSummary, error) {
	var sessions []models.SessionModel
	err := r.db.WithContext(ctx).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&sessions).Error
	if err != nil {
		return nil, domainErrors.NewInternalError("failed to list sessions: " + err.Error())
	}

	summaries := make([]*repository.SessionSummary, 0, len(sessions))
	for _, s := range sessions {
		var count int64
		err := r.db.WithContext(ctx).
			Model(&models.MessageModel{}).
			Where("session_id = ?", s.ID).
			Count(&count).Error
		if err != nil {
			return nil, domainErrors.NewInternalError("failed to count messages: " + err.Error())
		}
		summaries = append(summaries, &repository.SessionSummary{
			ID:           s.ID,
			CreatedAt:    s.CreatedAt,
			Notes:        s.Notes,
			MessageCount: int(count),
		})
	}
	return summaries, nil
}

// GetSession returns one session with its transcript in arrival order.
func (r *GormAuditRepository) GetSession(ctx context.Context, sessionID string) (*repository.SessionDetail, error) {
	var session models.SessionModel
	if err := r.db.WithContext(ctx).First(&session, "id = ?", sessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainErrors.NewNotFoundError("session not found")
		}
		return nil, domainErrors.NewInternalError("failed to find session: " + err.Error())
	}

	var messageModels []models.MessageModel
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("timestamp asc, id asc").
		Find(&messageModels).Error
	if err != nil {
		return nil, domainErrors.NewInternalError("failed to load messages: " + err.Error())
	}

	messages := make([]*entity.AuditMessage, 0, len(messageModels))
	for _, m := range messageModels {
		messages = append(messages, &entity.AuditMessage{
			SessionID: m.SessionID,
			Role:      entity.Role(m.Role),
			Content:   m.Content,
			Timestamp: m.Timestamp,
		})
	}

	return &repository.SessionDetail{
		ID:        session.ID,
		CreatedAt: session.CreatedAt,
		Notes:     session.Notes,
		Messages:  messages,
	}, nil
}

// SetNotes replaces the reviewer notes of a session.
func (r *GormAuditRepository) SetNotes(ctx context.Context, sessionID, notes string) error {
	result := r.db.WithContext(ctx).
		Model(&models.SessionModel{}).
		Where("id = ?", sessionID).
		Update("notes", notes)
	if result.Error != nil {
		return domainErrors.NewInternalError("failed to update notes: " + result.Error.Error())
	}
	if result.RowsAffected == 0 {
		return domainErrors.NewNotFoundError("session not found")
	}
	return nil
}

// ForEachExportRow streams the joined transcript in session creation order.
// Rows are scanned one at a time so the export never loads the whole table.
func (r *GormAuditRepository) ForEachExportRow(ctx context.Context, fn func(row *repository.ExportRow) error) error {
	rows, err := r.db.WithContext(ctx).
		Model(&models.MessageModel{}).
		Select("chat_sessions.id, chat_sessions.created_at, chat_sessions.notes, chat_messages.role, chat_messages.timestamp, chat_messages.content").
		Joins("JOIN chat_sessions ON chat_sessions.id = chat_messages.session_id").
		Order("chat_sessions.created_at asc, chat_messages.id asc").
		Rows()
	if err != nil {
		return domainErrors.NewInternalError("failed to open export cursor: " + err.Error())
	}
	defer rows.Close()

	for rows.Next() {
		var row repository.ExportRow
		var notes sql.NullString
		if err := rows.Scan(
			&row.SessionID,
			&row.SessionCreatedAt,
			&notes,
			&row.MessageRole,
			&row.MessageTime,
			&row.MessageContent,
		); err != nil {
			return domainErrors.NewInternalError("failed to scan export row: " + err.Error())
		}
		row.SessionNotes = notes.String
		if err := fn(&row); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return domainErrors.NewInternalError("export cursor failed: " + err.Error())
	}
	return nil
}
