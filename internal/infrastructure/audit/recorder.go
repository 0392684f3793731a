// Package audit moves transcript writes off the streaming path. A single
// worker drains a buffered queue, so enqueue order is commit order and a
// slow database never stalls a running response.
package audit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/PhillHH/chat-agent/internal/domain/entity"
	"github.com/PhillHH/chat-agent/internal/domain/repository"
	"github.com/PhillHH/chat-agent/internal/domain/service"
	"github.com/PhillHH/chat-agent/pkg/safego"
)

const commitTimeout = 10 * time.Second

// Recorder implements service.AuditRecorder.
type Recorder struct {
	repo   repository.AuditRepository
	queue  chan *entity.AuditMessage
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewRecorder starts the drain worker.
func NewRecorder(repo repository.AuditRepository, bufferSize int, logger *zap.Logger) *Recorder {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	r := &Recorder{
		repo:   repo,
		queue:  make(chan *entity.AuditMessage, bufferSize),
		logger: logger,
	}
	r.wg.Add(1)
	go r.drain()
	return r
}

// Compile-time interface check
var _ service.AuditRecorder = (*Recorder)(nil)

// RecordUser enqueues a user transcript line.
func (r *Recorder) RecordUser(sessionID, content string) {
	msg, err := entity.NewUserMessage(sessionID, content)
	if err != nil {
		r.logger.Error("Audit message rejected", zap.Error(err))
		return
	}
	r.enqueue(msg)
}

// RecordAssistant enqueues an assistant transcript line.
func (r *Recorder) RecordAssistant(sessionID, content string) {
	msg, err := entity.NewAssistantMessage(sessionID, content)
	if err != nil {
		r.logger.Error("Audit message rejected", zap.Error(err))
		return
	}
	r.enqueue(msg)
}

// enqueue is non-blocking. A full buffer drops the message with an error
// log; audit loss must never surface to the chat user.
func (r *Recorder) enqueue(msg *entity.AuditMessage) {
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		r.logger.Warn("Audit recorder closed, dropping message",
			zap.String("session_id", msg.SessionID),
			zap.String("role", string(msg.Role)),
		)
		return
	}
	defer r.mu.RUnlock()

	select {
	case r.queue <- msg:
	default:
		r.logger.Error("Audit buffer full, dropping message",
			zap.String("session_id", msg.SessionID),
			zap.String("role", string(msg.Role)),
		)
	}
}

// Close stops intake, drains the queue, and waits for the worker.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	r.wg.Wait()
	r.logger.Info("Audit recorder closed")
}

func (r *Recorder) drain() {
	defer r.wg.Done()
	for msg := range r.queue {
		r.commit(msg)
	}
}

// commit writes one line. Failures are logged without content; the text
// would put PII into the log stream.
func (r *Recorder) commit(msg *entity.AuditMessage) {
	defer safego.Recover(r.logger, "audit.commit")

	ctx, cancel := context.WithTimeout(context.Background(), commitTimeout)
	defer cancel()

	if err := r.repo.Save(ctx, msg); err != nil {
		r.logger.Error("Audit write failed, message dropped",
			zap.String("session_id", msg.SessionID),
			zap.String("role", string(msg.Role)),
			zap.Error(err),
		)
	}
}
