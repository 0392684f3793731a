package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	domainErrors "github.com/PhillHH/chat-agent/pkg/errors"
)

// fakeAPI serves the slice of the Assistants v2 surface the client touches:
// thread create, message create, streaming run, message listing. Every
// request is checked for the auth and beta headers.
type fakeAPI struct {
	t *testing.T

	runSSE     string // body served for run requests
	runStatus  int    // non-zero forces that status on run requests
	history    string // body served for GET messages
	wantPrompt string // when set, the posted message content must match

	threadCreates atomic.Int32
	runStarts     atomic.Int32
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
		f.t.Errorf("Authorization = %q", got)
	}
	if got := r.Header.Get("OpenAI-Beta"); got != "assistants=v2" {
		f.t.Errorf("OpenAI-Beta = %q", got)
	}

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/threads":
		f.threadCreates.Add(1)
		var req threadCreateRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Metadata["app"] != appTag {
			f.t.Errorf("thread metadata app = %q", req.Metadata["app"])
		}
		if req.Metadata["session_id"] == "" {
			f.t.Error("thread metadata is missing the session id")
		}
		fmt.Fprint(w, `{"id":"thread_abc"}`)

	case r.Method == http.MethodPost && r.URL.Path == "/threads/thread_abc/messages":
		var req messageCreateRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Role != "user" {
			f.t.Errorf("message role = %q", req.Role)
		}
		if f.wantPrompt != "" && req.Content != f.wantPrompt {
			f.t.Errorf("message content = %q, want %q", req.Content, f.wantPrompt)
		}
		fmt.Fprint(w, `{"id":"msg_1"}`)

	case r.Method == http.MethodPost && r.URL.Path == "/threads/thread_abc/runs":
		f.runStarts.Add(1)
		if f.runStatus != 0 {
			http.Error(w, `{"error":{"message":"rate limited"}}`, f.runStatus)
			return
		}
		if got := r.Header.Get("Accept"); got != "text/event-stream" {
			f.t.Errorf("run Accept = %q", got)
		}
		var req runCreateRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.AssistantID != "asst_1" {
			f.t.Errorf("assistant id = %q", req.AssistantID)
		}
		if !req.Stream {
			f.t.Error("run request did not ask for streaming")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, f.runSSE)

	case r.Method == http.MethodGet && r.URL.Path == "/threads/thread_abc/messages":
		if got := r.URL.Query().Get("order"); got != "asc" {
			f.t.Errorf("history order = %q, want asc", got)
		}
		fmt.Fprint(w, f.history)

	default:
		f.t.Errorf("unexpected call %s %s", r.Method, r.URL.Path)
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	return NewClient(Options{
		BaseURL:     url,
		APIKey:      "test-key",
		AssistantID: "asst_1",
		Timeout:     2 * time.Second,
	}, zap.NewNop())
}

const completedRun = "event: thread.run.created\n" +
	"data: {\"id\":\"run_1\",\"status\":\"queued\"}\n" +
	"\n" +
	"event: thread.message.delta\n" +
	"data: {\"delta\":{\"content\":[{\"type\":\"text\",\"text\":{\"value\":\"Hallo <PERS\"}}]}}\n" +
	"\n" +
	"event: thread.message.delta\n" +
	"data: {\"delta\":{\"content\":[{\"type\":\"text\",\"text\":{\"value\":\"ON_0a1b2c3d>!\"}}]}}\n" +
	"\n" +
	"event: thread.run.completed\n" +
	"data: {\"id\":\"run_1\",\"status\":\"completed\"}\n" +
	"\n" +
	"event: done\n" +
	"data: [DONE]\n"

// === Stream ===

func TestClient_StreamFullTurn(t *testing.T) {
	api := &fakeAPI{t: t, runSSE: completedRun, wantPrompt: "Wie heißen Sie?"}
	srv := httptest.NewServer(api)
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	deltas := make(chan string, 32)
	if err := c.Stream(context.Background(), "sess_1", "Wie heißen Sie?", deltas); err != nil {
		t.Fatalf("Stream: %v", err)
	}
	close(deltas)

	var got []string
	for d := range deltas {
		got = append(got, d)
	}
	if joined := strings.Join(got, ""); joined != "Hallo <PERSON_0a1b2c3d>!" {
		t.Errorf("deltas = %q", joined)
	}
	// The client must not reassemble fragments; splitting a placeholder
	// across deltas is the downstream restorer's problem.
	if len(got) != 2 {
		t.Errorf("delta count = %d, want 2", len(got))
	}
}

func TestClient_StreamReusesThread(t *testing.T) {
	api := &fakeAPI{t: t, runSSE: completedRun}
	srv := httptest.NewServer(api)
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	for i := 0; i < 2; i++ {
		deltas := make(chan string, 32)
		if err := c.Stream(context.Background(), "sess_1", "Nachricht", deltas); err != nil {
			t.Fatalf("Stream %d: %v", i, err)
		}
		close(deltas)
		for range deltas {
		}
	}

	if got := api.threadCreates.Load(); got != 1 {
		t.Errorf("thread creates = %d, want 1 (one thread per session)", got)
	}
	if got := api.runStarts.Load(); got != 2 {
		t.Errorf("run starts = %d, want 2", got)
	}
}

func TestClient_StreamRunFailed(t *testing.T) {
	failedRun := "event: thread.run.created\n" +
		"data: {\"id\":\"run_2\",\"status\":\"queued\"}\n" +
		"\n" +
		"event: thread.run.failed\n" +
		"data: {\"id\":\"run_2\",\"status\":\"failed\",\"last_error\":{\"code\":\"server_error\",\"message\":\"boom\"}}\n"

	api := &fakeAPI{t: t, runSSE: failedRun}
	srv := httptest.NewServer(api)
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	deltas := make(chan string, 32)
	err := c.Stream(context.Background(), "sess_1", "Nachricht", deltas)
	if !domainErrors.IsLLMStreamFailed(err) {
		t.Fatalf("err = %v, want LLM_STREAM_FAILED", err)
	}
}

func TestClient_StreamRejectedRun(t *testing.T) {
	api := &fakeAPI{t: t, runStatus: http.StatusTooManyRequests}
	srv := httptest.NewServer(api)
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	deltas := make(chan string, 32)
	err := c.Stream(context.Background(), "sess_1", "Nachricht", deltas)
	if !domainErrors.IsLLMStreamFailed(err) {
		t.Fatalf("err = %v, want LLM_STREAM_FAILED", err)
	}
}

// === History ===

func TestClient_HistoryFormatsTranscript(t *testing.T) {
	api := &fakeAPI{t: t, history: `{"object":"list","data":[
		{"id":"msg_1","role":"user","content":[{"type":"text","text":{"value":"Ich heiße <PERSON_0a1b2c3d>"}}]},
		{"id":"msg_2","role":"assistant","content":[{"type":"text","text":{"value":"Guten Tag!"}}]},
		{"id":"msg_3","role":"assistant","content":[{"type":"image_file"}]}
	]}`}
	srv := httptest.NewServer(api)
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	c.mu.Lock()
	c.threads["sess_9"] = "thread_abc"
	c.mu.Unlock()

	lines := c.History(context.Background(), "sess_9")
	want := []string{
		"User: Ich heiße <PERSON_0a1b2c3d>",
		"Assistant: Guten Tag!",
	}
	if len(lines) != len(want) {
		t.Fatalf("lines = %q, want %q", lines, want)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestClient_HistoryUnknownSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected call %s %s for a session without a thread", r.Method, r.URL.Path)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	if lines := c.History(context.Background(), "sess_neu"); lines != nil {
		t.Errorf("lines = %q, want nil", lines)
	}
}

func TestClient_HistoryDegradesToEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	c.mu.Lock()
	c.threads["sess_9"] = "thread_abc"
	c.mu.Unlock()

	// Escalation must proceed without a transcript rather than fail.
	if lines := c.History(context.Background(), "sess_9"); lines != nil {
		t.Errorf("lines = %q, want nil on API failure", lines)
	}
}
