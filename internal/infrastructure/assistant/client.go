// Package assistant is the HTTP client for the OpenAI Assistants v2 API.
// Each chat session maps to one thread so the model keeps its own
// conversation memory; the gateway only ever ships de-identified text here.
package assistant

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/PhillHH/chat-agent/internal/domain/service"
	domainErrors "github.com/PhillHH/chat-agent/pkg/errors"
)

const betaHeader = "assistants=v2"

// appTag marks every thread, message and run this gateway creates.
const appTag = "SecureGateway"

// Client implements service.Assistant.
type Client struct {
	baseURL     string
	apiKey      string
	assistantID string
	timeout     time.Duration
	client      *http.Client
	logger      *zap.Logger

	mu      sync.Mutex
	threads map[string]string // session id -> thread id
	flight  singleflight.Group
}

// Options configures the API client.
type Options struct {
	BaseURL     string
	APIKey      string
	AssistantID string
	// Timeout bounds the short management calls (thread, message, history).
	// Run streams are bounded by the caller's context and the idle timeout.
	Timeout time.Duration
}

// NewClient creates the Assistants API client.
func NewClient(opts Options, logger *zap.Logger) *Client {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ResponseHeaderTimeout: 300 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   5,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
	}

	return &Client{
		baseURL:     baseURL,
		apiKey:      opts.APIKey,
		assistantID: opts.AssistantID,
		timeout:     opts.Timeout,
		client:      &http.Client{Transport: transport},
		threads:     make(map[string]string),
		logger:      logger.With(zap.String("component", "assistant")),
	}
}

// Compile-time interface check
var _ service.Assistant = (*Client)(nil)

// Stream posts prompt to the session's thread and runs the assistant,
// forwarding text deltas into deltas. The caller owns the channel and
// closes it after Stream returns.
func (c *Client) Stream(ctx context.Context, sessionID, prompt string, deltas chan<- string) error {
	threadID, err := c.threadFor(ctx, sessionID)
	if err != nil {
		return domainErrors.NewLLMStreamFailedError("resolve thread", err)
	}

	if err := c.createMessage(ctx, threadID, sessionID, prompt); err != nil {
		return domainErrors.NewLLMStreamFailedError("post message", err)
	}

	body, err := json.Marshal(runCreateRequest{
		AssistantID: c.assistantID,
		Stream:      true,
		Metadata:    c.metadata(sessionID),
	})
	if err != nil {
		return domainErrors.NewLLMStreamFailedError("marshal run request", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/threads/"+threadID+"/runs", bytes.NewReader(body))
	if err != nil {
		return domainErrors.NewLLMStreamFailedError("build run request", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		return domainErrors.NewLLMStreamFailedError("run request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domainErrors.NewLLMStreamFailedError(
			fmt.Sprintf("run returned status %d", resp.StatusCode),
			fmt.Errorf("%s", readSnippet(resp.Body)))
	}

	// Context cancellation body-close watchdog
	streamDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			c.logger.Info("Context cancelled, force-closing run stream",
				zap.String("session_id", sessionID),
				zap.Error(ctx.Err()))
			resp.Body.Close()
		case <-streamDone:
		}
	}()

	result, err := parseRunStream(ctx, resp.Body, deltas, c.logger)
	close(streamDone)
	if err != nil {
		if result.RunID != "" && ctx.Err() != nil {
			c.cancelRun(threadID, result.RunID)
		}
		return domainErrors.NewLLMStreamFailedError("run stream failed", err)
	}
	return nil
}

// History returns the session's thread transcript as "User:"/"Assistant:"
// lines, oldest first. Any failure degrades to an empty history so the
// escalation path never blocks on it.
func (c *Client) History(ctx context.Context, sessionID string) []string {
	c.mu.Lock()
	threadID, ok := c.threads[sessionID]
	c.mu.Unlock()
	if !ok {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodGet, "/threads/"+threadID+"/messages?order=asc&limit=100", nil)
	if err != nil {
		c.logger.Warn("History request build failed", zap.Error(err))
		return nil
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("History fetch failed", zap.String("session_id", sessionID), zap.Error(err))
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("History fetch returned non-200",
			zap.String("session_id", sessionID),
			zap.Int("status", resp.StatusCode))
		return nil
	}

	var list messageList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		c.logger.Warn("History decode failed", zap.Error(err))
		return nil
	}

	lines := make([]string, 0, len(list.Data))
	for _, msg := range list.Data {
		text := joinText(msg.Content)
		if text == "" {
			continue
		}
		if msg.Role == "user" {
			lines = append(lines, "User: "+text)
		} else {
			lines = append(lines, "Assistant: "+text)
		}
	}
	return lines
}

// threadFor returns the session's thread id, creating the thread on first
// use. Singleflight collapses concurrent first turns of the same session
// into one create call.
func (c *Client) threadFor(ctx context.Context, sessionID string) (string, error) {
	c.mu.Lock()
	if id, ok := c.threads[sessionID]; ok {
		c.mu.Unlock()
		return id, nil
	}
	c.mu.Unlock()

	v, err, _ := c.flight.Do(sessionID, func() (interface{}, error) {
		c.mu.Lock()
		if id, ok := c.threads[sessionID]; ok {
			c.mu.Unlock()
			return id, nil
		}
		c.mu.Unlock()

		id, err := c.createThread(ctx, sessionID)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.threads[sessionID] = id
		c.mu.Unlock()

		c.logger.Info("Thread created",
			zap.String("session_id", sessionID),
			zap.String("thread_id", id))
		return id, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Client) createThread(ctx context.Context, sessionID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var thread threadEnvelope
	err := c.doJSON(ctx, http.MethodPost, "/threads",
		threadCreateRequest{Metadata: c.metadata(sessionID)}, &thread)
	if err != nil {
		return "", err
	}
	if thread.ID == "" {
		return "", fmt.Errorf("thread create returned no id")
	}
	return thread.ID, nil
}

func (c *Client) createMessage(ctx context.Context, threadID, sessionID, prompt string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	return c.doJSON(ctx, http.MethodPost, "/threads/"+threadID+"/messages",
		messageCreateRequest{
			Role:     "user",
			Content:  prompt,
			Metadata: c.metadata(sessionID),
		}, nil)
}

// cancelRun is a best-effort cleanup after the caller abandoned a stream.
// It runs on a fresh context because the caller's one is already dead.
func (c *Client) cancelRun(threadID, runID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := c.doJSON(ctx, http.MethodPost, "/threads/"+threadID+"/runs/"+runID+"/cancel", nil, nil)
	if err != nil {
		c.logger.Warn("Run cancel failed",
			zap.String("run_id", runID),
			zap.Error(err))
		return
	}
	c.logger.Info("Run cancelled", zap.String("run_id", runID))
}

func (c *Client) metadata(sessionID string) map[string]string {
	return map[string]string{
		"session_id": sessionID,
		"app":        appTag,
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("OpenAI-Beta", betaHeader)
	return req, nil
}

// doJSON performs a request with optional JSON payload and decodes the
// response into out when non-nil.
func (c *Client) doJSON(ctx context.Context, method, path string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API error %d: %s", resp.StatusCode, readSnippet(resp.Body))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
	}
	return nil
}

func readSnippet(r io.Reader) string {
	snippet, _ := io.ReadAll(io.LimitReader(r, 512))
	return string(snippet)
}
