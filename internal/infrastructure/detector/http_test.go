package detector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/PhillHH/chat-agent/internal/domain/pii"
	domainErrors "github.com/PhillHH/chat-agent/pkg/errors"
)

// === request / response ===

func TestHTTPDetector_PredictDecodesSpans(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req predictRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("request body did not decode: %v", err)
		}
		if req.Text != "Ich bin Peter" {
			t.Errorf("text = %q", req.Text)
		}
		if len(req.Labels) != 1 || req.Labels[0] != "person" {
			t.Errorf("labels = %v", req.Labels)
		}
		json.NewEncoder(w).Encode([]pii.Entity{
			{Text: "Peter", Start: 8, End: 13, Label: "person", Score: 0.97},
		})
	}))
	defer srv.Close()

	d := NewHTTPDetector(srv.URL, time.Second, zap.NewNop())
	entities, err := d.Predict(context.Background(), "Ich bin Peter", []string{"person"})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if len(entities) != 1 || entities[0].Text != "Peter" || entities[0].Label != "person" {
		t.Fatalf("entities = %+v", entities)
	}
}

func TestHTTPDetector_NonOKIsFilterFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	d := NewHTTPDetector(srv.URL, time.Second, zap.NewNop())
	_, err := d.Predict(context.Background(), "hallo", []string{"person"})
	if !domainErrors.IsFilterFailed(err) {
		t.Fatalf("err = %v, want FILTER_FAILED", err)
	}
}

// === circuit integration ===

func TestHTTPDetector_CircuitOpensAndStopsDialing(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := NewHTTPDetector(srv.URL, time.Second, zap.NewNop())
	d.breaker = newBreaker(2, time.Minute)

	for i := 0; i < 2; i++ {
		if _, err := d.Predict(context.Background(), "hallo", nil); err == nil {
			t.Fatal("expected an error from the failing sidecar")
		}
	}
	if got := hits.Load(); got != 2 {
		t.Fatalf("sidecar hits = %d, want 2", got)
	}

	// Tripped now; the next call must not reach the server.
	if _, err := d.Predict(context.Background(), "hallo", nil); !domainErrors.IsFilterFailed(err) {
		t.Fatalf("err = %v, want FILTER_FAILED from the open circuit", err)
	}
	if got := hits.Load(); got != 2 {
		t.Fatalf("sidecar hits = %d after trip, want still 2", got)
	}
}
