// Package notify posts escalation alerts to a Teams incoming webhook.
// The card carries only de-identified history lines; placeholders stay
// placeholders on the operator side until a reply flows back.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/PhillHH/chat-agent/internal/domain/service"
	domainErrors "github.com/PhillHH/chat-agent/pkg/errors"
)

// TeamsNotifier implements service.EscalationNotifier against an incoming
// webhook. An empty webhook URL disables it without error.
type TeamsNotifier struct {
	webhookURL string
	client     *http.Client
	logger     *zap.Logger
}

// NewTeamsNotifier creates the notifier.
func NewTeamsNotifier(webhookURL string, logger *zap.Logger) *TeamsNotifier {
	return &TeamsNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// Compile-time interface check
var _ service.EscalationNotifier = (*TeamsNotifier)(nil)

// --- Adaptive Card wire format ---

type card struct {
	Type        string       `json:"type"`
	Attachments []attachment `json:"attachments"`
}

type attachment struct {
	ContentType string      `json:"contentType"`
	Content     cardContent `json:"content"`
}

type cardContent struct {
	Schema  string      `json:"$schema"`
	Type    string      `json:"type"`
	Version string      `json:"version"`
	Body    []textBlock `json:"body"`
}

type textBlock struct {
	Type   string `json:"type"`
	Text   string `json:"text"`
	Size   string `json:"size,omitempty"`
	Weight string `json:"weight,omitempty"`
	Wrap   bool   `json:"wrap,omitempty"`
}

// NotifyEscalation posts the escalation card. The caller treats failures
// as log-only; the session hand-over must not depend on the webhook.
func (n *TeamsNotifier) NotifyEscalation(ctx context.Context, sessionID string, history []string) error {
	if n.webhookURL == "" {
		n.logger.Info("Teams webhook not configured, skipping escalation notification",
			zap.String("session_id", sessionID))
		return nil
	}

	payload, err := json.Marshal(buildCard(sessionID, history))
	if err != nil {
		return domainErrors.NewInternalError("failed to build escalation card: " + err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return domainErrors.NewInternalError("failed to build webhook request: " + err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return domainErrors.NewInternalError("webhook post failed: " + err.Error())
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domainErrors.NewInternalError(
			fmt.Sprintf("webhook returned status %d", resp.StatusCode))
	}

	n.logger.Info("Escalation notification sent",
		zap.String("session_id", sessionID),
		zap.Int("history_lines", len(history)),
	)
	return nil
}

func buildCard(sessionID string, history []string) card {
	return card{
		Type: "message",
		Attachments: []attachment{{
			ContentType: "application/vnd.microsoft.card.adaptive",
			Content: cardContent{
				Schema:  "http://adaptivecards.io/schemas/adaptive-card.json",
				Type:    "AdaptiveCard",
				Version: "1.4",
				Body: []textBlock{
					{Type: "TextBlock", Text: "Eskalation erforderlich", Size: "Medium", Weight: "Bolder"},
					{Type: "TextBlock", Text: "Session ID: " + sessionID, Wrap: true},
					{Type: "TextBlock", Text: "Verlauf:", Weight: "Bolder"},
					{Type: "TextBlock", Text: strings.Join(history, "\n"), Wrap: true},
				},
			},
		}},
	}
}
