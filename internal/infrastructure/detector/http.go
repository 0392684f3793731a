// Package detector talks to the NER sidecar over HTTP. The sidecar owns the
// model; this side only ships text and labels and gets spans back.
package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/PhillHH/chat-agent/internal/domain/pii"
	domainErrors "github.com/PhillHH/chat-agent/pkg/errors"
)

// HTTPDetector implements pii.Detector against a JSON endpoint.
type HTTPDetector struct {
	url     string
	client  *http.Client
	breaker *breaker
	logger  *zap.Logger
}

type predictRequest struct {
	Text   string   `json:"text"`
	Labels []string `json:"labels"`
}

// NewHTTPDetector creates a client for the sidecar at url.
func NewHTTPDetector(url string, timeout time.Duration, logger *zap.Logger) *HTTPDetector {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPDetector{
		url: url,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		breaker: newBreaker(5, 30*time.Second),
		logger:  logger,
	}
}

// Predict posts text and candidate labels and decodes the returned spans.
// Offsets come back as byte positions into text; the scanner bounds-checks
// them again before substituting. While the sidecar is down the breaker
// rejects calls immediately instead of burning the full request timeout.
func (d *HTTPDetector) Predict(ctx context.Context, text string, labels []string) ([]pii.Entity, error) {
	if !d.breaker.allow() {
		return nil, domainErrors.NewFilterFailedError("detector circuit open", nil)
	}

	body, err := json.Marshal(predictRequest{Text: text, Labels: labels})
	if err != nil {
		return nil, domainErrors.NewFilterFailedError("encode detector request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return nil, domainErrors.NewFilterFailedError("build detector request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		// A cancelled caller says nothing about sidecar health.
		if !errors.Is(err, context.Canceled) {
			d.recordFailure()
		}
		return nil, domainErrors.NewFilterFailedError("detector unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		d.logger.Error("Detector returned non-200",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", snippet),
		)
		if resp.StatusCode >= http.StatusInternalServerError {
			d.recordFailure()
		}
		return nil, domainErrors.NewFilterFailedError(
			fmt.Sprintf("detector returned status %d", resp.StatusCode), nil)
	}

	var entities []pii.Entity
	if err := json.NewDecoder(resp.Body).Decode(&entities); err != nil {
		d.recordFailure()
		return nil, domainErrors.NewFilterFailedError("decode detector response", err)
	}

	if d.breaker.success() {
		d.logger.Info("Detector circuit closed again")
	}
	return entities, nil
}

func (d *HTTPDetector) recordFailure() {
	if d.breaker.failure() {
		d.logger.Warn("Detector circuit opened",
			zap.String("url", d.url),
		)
	}
}
