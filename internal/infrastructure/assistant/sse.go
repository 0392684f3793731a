package assistant

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"
)

// runResult summarizes a parsed run stream.
type runResult struct {
	RunID  string
	Status string
}

// Terminal run states after which no more deltas arrive.
const (
	runStatusCompleted = "completed"
	runStatusFailed    = "failed"
	runStatusCancelled = "cancelled"
	runStatusExpired   = "expired"
)

// parseRunStream reads an Assistants run event stream and forwards message
// text deltas. Unlike chat completions, every frame is a named event: an
// "event:" line announces the type and the following "data:" line carries
// the payload.
//
// Termination protection mirrors the chat-completions parser:
//
//	L1: Break on a terminal run status (don't wait for the done event)
//	L2: 60s read idle timeout (detect stale connections)
//	L3: Caller's context deadline
func parseRunStream(ctx context.Context, reader io.Reader, deltas chan<- string, logger *zap.Logger) (runResult, error) {
	idleTimeout := 60 * time.Second
	tReader := &timedReader{r: reader, timeout: idleTimeout}

	scanner := bufio.NewScanner(tReader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024) // 1MB max line

	var result runResult
	var event string
	var emitted int

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		line := scanner.Text()

		if strings.HasPrefix(line, "event: ") {
			event = strings.TrimPrefix(line, "event: ")
			continue
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}

		switch event {
		case "thread.message.delta":
			var delta messageDelta
			if err := json.Unmarshal([]byte(data), &delta); err != nil {
				logger.Debug("Skip unparseable message delta", zap.Error(err))
				continue
			}
			if text := joinText(delta.Delta.Content); text != "" {
				select {
				case deltas <- text:
					emitted++
				case <-ctx.Done():
					return result, ctx.Err()
				}
			}

		case "thread.run.created", "thread.run.queued", "thread.run.in_progress":
			var run runEnvelope
			if err := json.Unmarshal([]byte(data), &run); err == nil && run.ID != "" {
				result.RunID = run.ID
			}

		case "thread.run.completed":
			result.Status = runStatusCompleted
		case "thread.run.failed", "thread.run.cancelled", "thread.run.expired":
			var run runEnvelope
			if err := json.Unmarshal([]byte(data), &run); err == nil {
				if run.ID != "" {
					result.RunID = run.ID
				}
				result.Status = run.Status
				if run.LastError != nil {
					return result, fmt.Errorf("run %s: %s: %s", run.Status, run.LastError.Code, run.LastError.Message)
				}
			}
			if result.Status == "" {
				result.Status = strings.TrimPrefix(event, "thread.run.")
			}
			return result, fmt.Errorf("run ended with status %s", result.Status)

		case "error":
			var apiErr apiError
			if err := json.Unmarshal([]byte(data), &apiErr); err == nil && apiErr.Error.Message != "" {
				return result, fmt.Errorf("stream error: %s", apiErr.Error.Message)
			}
			return result, fmt.Errorf("stream error: %s", truncateForLog(data, 200))
		}

		// L1: terminal status seen, stop reading
		if result.Status == runStatusCompleted {
			logger.Debug("Run stream completed",
				zap.String("run_id", result.RunID),
				zap.Int("deltas", emitted),
			)
			break
		}
	}

	// L2: distinguish idle timeout from real scan errors
	if err := scanner.Err(); err != nil {
		if isIdleTimeoutErr(err) {
			logger.Warn("Run stream idle timeout, API stalled",
				zap.Duration("idle_timeout", idleTimeout),
				zap.Int("deltas_so_far", emitted),
			)
			return result, fmt.Errorf("run stream stalled: no data for %v", idleTimeout)
		}
		return result, fmt.Errorf("run stream scan error: %w", err)
	}

	if result.Status != runStatusCompleted {
		return result, fmt.Errorf("run stream ended without completion (status %q)", result.Status)
	}
	return result, nil
}

// --- SSE idle timeout support ---

var errIdleTimeout = fmt.Errorf("SSE read idle timeout")

// timedReader wraps an io.Reader and applies a per-Read deadline.
type timedReader struct {
	r       io.Reader
	timeout time.Duration
}

func (t *timedReader) Read(p []byte) (int, error) {
	type result struct {
		n   int
		err error
	}
	ch := make(chan result, 1)
	go func() {
		n, err := t.r.Read(p)
		ch <- result{n, err}
	}()

	select {
	case res := <-ch:
		return res.n, res.err
	case <-time.After(t.timeout):
		return 0, errIdleTimeout
	}
}

func isIdleTimeoutErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "SSE read idle timeout")
}

func truncateForLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
