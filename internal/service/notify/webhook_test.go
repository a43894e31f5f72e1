package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"SignalForge/internal/domain/models"
	"SignalForge/pkg/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return l
}

func TestWebhookDeliverPostsSignalJSON(t *testing.T) {
	var got models.Signal
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %s", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, testLogger(t))
	sig := models.NewSignal("BTCUSDT", models.TF1m, map[string]float64{"sma_20": 42000.5}, models.PriorityHigh)
	if err := w.Deliver(context.Background(), sig); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if got.Pair != "BTCUSDT" || got.Values["sma_20"] != 42000.5 {
		t.Fatalf("unexpected payload: %+v", got)
	}
}

func TestWebhookDeliverNon2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, testLogger(t))
	sig := models.NewSignal("BTCUSDT", models.TF1m, nil, models.PriorityNormal)
	if err := w.Deliver(context.Background(), sig); err == nil {
		t.Fatal("expected error on 502 response")
	}
}

func TestEscapeMarkdown(t *testing.T) {
	if got := escapeMarkdown("sma_20: 1.5"); got != `sma\_20: 1\.5` {
		t.Fatalf("escaped = %q", got)
	}
	if got := escapeMarkdown("plain"); got != "plain" {
		t.Fatalf("escaped = %q", got)
	}
}
