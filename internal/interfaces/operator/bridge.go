// Package operator binds support staff conversations to customer sessions.
// A bound operator receives mirrored traffic for the session and can answer
// the customer directly; the bridge parses the small command grammar the
// operators type (connect, close) and forwards everything else verbatim.
package operator

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/PhillHH/chat-agent/internal/domain/entity"
	"github.com/PhillHH/chat-agent/internal/domain/service"
	"github.com/PhillHH/chat-agent/pkg/errors"
)

// Operator reply texts. The staff channel speaks German like the rest of
// the user-facing surface.
const (
	connectedReply   = "✅ Verbunden mit Session: %s. Sie können jetzt chatten."
	notConnectedHelp = "⚠️ Nicht verbunden. Bitte antworten Sie mit 'connect <session_id>', um einen Chat zu übernehmen."
	closedReply      = "✅ Chat mit Session %s geschlossen. Die KI übernimmt wieder."
	customerOffline  = "⚠️ Der Kunde ist gerade nicht erreichbar. Die Nachricht wurde nicht zugestellt."
	operatorJoined   = "Ein Mitarbeiter ist dem Chat beigetreten."
	operatorLeft     = "Der Mitarbeiter hat den Chat verlassen. Die KI übernimmt wieder."
	agentSenderName  = "Agent"
)

// connectPattern is deliberately unanchored so "please connect sess_42" from
// a chatty client still binds.
var connectPattern = regexp.MustCompile(`(?i)connect\s+(sess_[a-zA-Z0-9]+)`)

// Conversation is the transport-side handle the bridge uses to push text
// back to an operator. Each channel adapter (Bot Framework, Telegram)
// supplies its own implementation.
type Conversation interface {
	Send(ctx context.Context, text string) error
}

// Bridge maintains the operator<->session binding table. Bindings are
// bijective: a session has at most one operator conversation and a
// conversation serves at most one session. Rebinding on either side evicts
// the previous pairing.
type Bridge struct {
	transport service.UserTransport
	state     service.SessionState
	logger    *zap.Logger

	mu        sync.RWMutex
	bySession map[string]*binding // session id -> binding
	byConv    map[string]*binding // conversation key -> binding
}

type binding struct {
	sessionID string
	convKey   string
	conv      Conversation
}

var _ service.OperatorBridge = (*Bridge)(nil)

// NewBridge creates the binding registry. transport delivers operator
// answers to the customer, state flips the session back to AI on close.
func NewBridge(transport service.UserTransport, state service.SessionState, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{
		transport: transport,
		state:     state,
		logger:    logger,
		bySession: make(map[string]*binding),
		byConv:    make(map[string]*binding),
	}
}

// HandleOperatorMessage routes one inbound operator message. The returned
// string is the reply for the operator channel; empty means stay silent.
func (b *Bridge) HandleOperatorMessage(ctx context.Context, convKey string, conv Conversation, text string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ""
	}

	if m := connectPattern.FindStringSubmatch(trimmed); m != nil {
		return b.connect(convKey, conv, m[1])
	}
	if isCloseCommand(trimmed) {
		return b.close(ctx, convKey)
	}

	return b.forward(ctx, convKey, trimmed)
}

// connect binds the conversation to the session, evicting stale pairings on
// both sides. Binding does not require the session to be live; operators may
// connect before the customer reconnects.
func (b *Bridge) connect(convKey string, conv Conversation, sessionID string) string {
	b.mu.Lock()
	if old, ok := b.byConv[convKey]; ok {
		delete(b.bySession, old.sessionID)
	}
	if old, ok := b.bySession[sessionID]; ok {
		delete(b.byConv, old.convKey)
	}
	bind := &binding{sessionID: sessionID, convKey: convKey, conv: conv}
	b.bySession[sessionID] = bind
	b.byConv[convKey] = bind
	b.mu.Unlock()

	b.logger.Info("Operator connected to session",
		zap.String("session_id", sessionID),
		zap.String("conversation", convKey))

	if err := b.transport.SendSystem(sessionID, operatorJoined); err != nil {
		b.logger.Debug("Customer not reachable for join notice",
			zap.String("session_id", sessionID),
			zap.Error(err))
	}

	return fmt.Sprintf(connectedReply, sessionID)
}

// close releases the binding and hands the session back to the AI.
func (b *Bridge) close(ctx context.Context, convKey string) string {
	b.mu.Lock()
	bind, ok := b.byConv[convKey]
	if ok {
		delete(b.byConv, convKey)
		delete(b.bySession, bind.sessionID)
	}
	b.mu.Unlock()

	if !ok {
		return notConnectedHelp
	}

	if err := b.state.SetMode(ctx, bind.sessionID, entity.ModeAI); err != nil {
		b.logger.Error("Failed to reset session mode on close",
			zap.String("session_id", bind.sessionID),
			zap.Error(err))
	}
	if err := b.transport.SendSystem(bind.sessionID, operatorLeft); err != nil {
		b.logger.Debug("Customer not reachable for leave notice",
			zap.String("session_id", bind.sessionID),
			zap.Error(err))
	}

	b.logger.Info("Operator closed session",
		zap.String("session_id", bind.sessionID),
		zap.String("conversation", convKey))

	return fmt.Sprintf(closedReply, bind.sessionID)
}

// forward relays free text from a bound operator to the customer.
func (b *Bridge) forward(ctx context.Context, convKey, text string) string {
	b.mu.RLock()
	bind, ok := b.byConv[convKey]
	b.mu.RUnlock()

	if !ok {
		return notConnectedHelp
	}

	if err := b.transport.SendAgentMessage(bind.sessionID, text, agentSenderName); err != nil {
		b.logger.Warn("Operator message not delivered",
			zap.String("session_id", bind.sessionID),
			zap.Error(err))
		return customerOffline
	}
	return ""
}

// === service.OperatorBridge ===

// Bound reports whether an operator conversation is attached to the session.
func (b *Bridge) Bound(sessionID string) bool {
	b.mu.RLock()
	_, ok := b.bySession[sessionID]
	b.mu.RUnlock()
	return ok
}

// Forward mirrors gateway traffic to the bound operator conversation.
func (b *Bridge) Forward(ctx context.Context, sessionID, text string) error {
	b.mu.RLock()
	bind, ok := b.bySession[sessionID]
	b.mu.RUnlock()

	if !ok {
		return errors.NewOperatorUnboundError("no operator bound to session")
	}
	if err := bind.conv.Send(ctx, text); err != nil {
		return errors.NewOperatorDeliveryError("operator channel send failed", err)
	}
	return nil
}

// Unbind drops the binding for a session without touching the session mode.
// Used when the customer side disappears for good.
func (b *Bridge) Unbind(sessionID string) {
	b.mu.Lock()
	if bind, ok := b.bySession[sessionID]; ok {
		delete(b.bySession, sessionID)
		delete(b.byConv, bind.convKey)
	}
	b.mu.Unlock()
}

func isCloseCommand(text string) bool {
	return strings.EqualFold(text, "close")
}
