package handlers

import (
	"encoding/csv"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/PhillHH/chat-agent/internal/domain/repository"
	"github.com/PhillHH/chat-agent/pkg/errors"
)

// AdminHandler serves the review backend: session listing, transcripts,
// reviewer notes and the CSV training export. The whole surface sits behind
// a config toggle and answers 403 while disabled.
type AdminHandler struct {
	audit   repository.AuditRepository
	enabled bool
	logger  *zap.Logger
}

// NewAdminHandler creates the admin backend handler.
func NewAdminHandler(audit repository.AuditRepository, enabled bool, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		audit:   audit,
		enabled: enabled,
		logger:  logger,
	}
}

// SessionItem is the list view of one session.
type SessionItem struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	Notes        string    `json:"notes,omitempty"`
	MessageCount int       `json:"message_count"`
}

// SessionDetailResponse is one session with its transcript.
type SessionDetailResponse struct {
	ID        string        `json:"id"`
	CreatedAt time.Time     `json:"created_at"`
	Notes     string        `json:"notes,omitempty"`
	Messages  []MessageItem `json:"messages"`
}

// MessageItem is one transcript row.
type MessageItem struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// NoteUpdateRequest carries replacement reviewer notes. An empty string
// clears them.
type NoteUpdateRequest struct {
	Notes string `json:"notes"`
}

func (h *AdminHandler) guard(c *gin.Context) bool {
	if h.enabled {
		return true
	}
	c.JSON(http.StatusForbidden, gin.H{"error": "Admin backend disabled"})
	return false
}

// ListSessions handles GET /admin/sessions?skip=0&limit=20.
func (h *AdminHandler) ListSessions(c *gin.Context) {
	if !h.guard(c) {
		return
	}

	skip, err := strconv.Atoi(c.DefaultQuery("skip", "0"))
	if err != nil || skip < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid skip parameter"})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit parameter"})
		return
	}

	summaries, err := h.audit.ListSessions(c.Request.Context(), skip, limit)
	if err != nil {
		h.logger.Error("Failed to list sessions", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list sessions"})
		return
	}

	items := make([]SessionItem, 0, len(summaries))
	for _, s := range summaries {
		items = append(items, SessionItem{
			ID:           s.ID,
			CreatedAt:    s.CreatedAt,
			Notes:        s.Notes,
			MessageCount: s.MessageCount,
		})
	}

	c.JSON(http.StatusOK, items)
}

// GetSession handles GET /admin/sessions/:session_id.
func (h *AdminHandler) GetSession(c *gin.Context) {
	if !h.guard(c) {
		return
	}

	sessionID := c.Param("session_id")

	detail, err := h.audit.GetSession(c.Request.Context(), sessionID)
	if err != nil {
		if errors.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
			return
		}
		h.logger.Error("Failed to load session", zap.String("session_id", sessionID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load session"})
		return
	}

	messages := make([]MessageItem, 0, len(detail.Messages))
	for _, m := range detail.Messages {
		messages = append(messages, MessageItem{
			Role:      string(m.Role),
			Content:   m.Content,
			Timestamp: m.Timestamp,
		})
	}

	c.JSON(http.StatusOK, SessionDetailResponse{
		ID:        detail.ID,
		CreatedAt: detail.CreatedAt,
		Notes:     detail.Notes,
		Messages:  messages,
	})
}

// UpdateNote handles POST /admin/sessions/:session_id/note.
func (h *AdminHandler) UpdateNote(c *gin.Context) {
	if !h.guard(c) {
		return
	}

	sessionID := c.Param("session_id")

	var req NoteUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.audit.SetNotes(c.Request.Context(), sessionID, req.Notes); err != nil {
		if errors.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
			return
		}
		h.logger.Error("Failed to update notes", zap.String("session_id", sessionID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update notes"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":    sessionID,
		"notes": req.Notes,
	})
}

// Export handles GET /admin/export. The CSV is streamed row by row straight
// from the store cursor.
func (h *AdminHandler) Export(c *gin.Context) {
	if !h.guard(c) {
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", "attachment; filename=training_data.csv")

	w := csv.NewWriter(c.Writer)
	if err := w.Write([]string{"session_id", "session_created_at", "session_notes", "message_role", "message_time", "message_content"}); err != nil {
		h.logger.Error("Failed to write export header", zap.Error(err))
		return
	}

	err := h.audit.ForEachExportRow(c.Request.Context(), func(row *repository.ExportRow) error {
		return w.Write([]string{
			row.SessionID,
			row.SessionCreatedAt.Format(time.RFC3339),
			row.SessionNotes,
			row.MessageRole,
			row.MessageTime.Format(time.RFC3339),
			row.MessageContent,
		})
	})
	w.Flush()
	if err != nil {
		// Mid-stream, the status line is long gone. Log and cut the body.
		h.logger.Error("Export aborted", zap.Error(err))
		return
	}
	if err := w.Error(); err != nil {
		h.logger.Error("Export write failed", zap.Error(err))
	}
}
