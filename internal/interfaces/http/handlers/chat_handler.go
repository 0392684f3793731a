package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/PhillHH/chat-agent/internal/application/usecase"
	"github.com/PhillHH/chat-agent/pkg/errors"
)

// ChatHandler terminates the customer-facing POST endpoint. The response
// body is plain text, flushed chunk by chunk as the restored answer arrives.
type ChatHandler struct {
	chat   *usecase.HandleChatUseCase
	logger *zap.Logger
}

// NewChatHandler creates the chat endpoint handler.
func NewChatHandler(chat *usecase.HandleChatUseCase, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		chat:   chat,
		logger: logger,
	}
}

// UserMessageRequest is the inbound customer turn.
type UserMessageRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	Message   string `json:"message" binding:"required"`
}

// SendMessage handles POST /chat/message. The holding message, the streamed
// answer and the escalation sentence all arrive in the same plain body.
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req UserMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sink := &streamSink{w: c.Writer}

	status, err := h.chat.Execute(c.Request.Context(), req.SessionID, req.Message, sink)
	if err != nil {
		if c.Writer.Written() {
			// Headers are on the wire; the truncated body is all the client
			// gets to see.
			h.logger.Error("Chat turn failed mid-stream",
				zap.String("session_id", req.SessionID),
				zap.Error(err))
			return
		}
		h.writeError(c, req.SessionID, err)
		return
	}

	h.logger.Debug("Chat turn finished",
		zap.String("session_id", req.SessionID),
		zap.String("status", string(status)))
}

func (h *ChatHandler) writeError(c *gin.Context, sessionID string, err error) {
	if errors.IsInvalidInput(err) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.logger.Error("Chat turn failed",
		zap.String("session_id", sessionID),
		zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Filter service failed."})
}

// streamSink adapts the gin response writer to the turn sink. Headers go out
// with the first fragment, so error responses before any output keep their
// own status and content type.
type streamSink struct {
	w gin.ResponseWriter
}

var _ usecase.Sink = (*streamSink)(nil)

func (s *streamSink) Fragment(text string) error {
	if !s.w.Written() {
		s.w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		s.w.Header().Set("Cache-Control", "no-cache")
		s.w.Header().Set("X-Accel-Buffering", "no")
	}
	if _, err := io.WriteString(s.w, text); err != nil {
		return err
	}
	s.w.Flush()
	return nil
}

func (s *streamSink) System(text string) error {
	if s.w.Written() {
		text = "\n\n" + text
	}
	return s.Fragment(text)
}
