package delivery

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hooklinehq/hookline/internal/domain"
)

func testPartner(url string) domain.Partner {
	return domain.Partner{
		Name:       "Acme Corp",
		WebhookURL: url,
		SecretKey:  "s3cret",
		IsActive:   true,
	}
}

func testQueuedEvent() domain.QueuedEvent {
	return domain.QueuedEvent{
		EventID:   "event_0123456789abcdef01234567",
		EventType: "order.created",
		Data:      domain.EventData{OrderID: "ord_42", Value: 99.5},
		Timestamp: "2025-03-01T12:00:00Z",
	}
}

func noSleep(s *HTTPSender) {
	s.sleep = func(ctx context.Context, d time.Duration) error { return nil }
}

func TestHTTPSender_Success(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sender := NewHTTPSender()
	outcome := sender.Send(context.Background(), testPartner(server.URL), testQueuedEvent())

	if !outcome.Success {
		t.Fatalf("expected success, got error %q", outcome.Error)
	}
	if outcome.StatusCode != 200 {
		t.Errorf("expected status 200, got %d", outcome.StatusCode)
	}
	if outcome.Attempt != 1 {
		t.Errorf("expected attempt 1, got %d", outcome.Attempt)
	}
	if calls != 1 {
		t.Errorf("expected exactly one call on success, got %d", calls)
	}
}

func TestHTTPSender_HeadersAndSignature(t *testing.T) {
	var gotHeaders http.Header
	var gotBody []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sender := NewHTTPSender()
	event := testQueuedEvent()
	sender.Send(context.Background(), testPartner(server.URL), event)

	if ct := gotHeaders.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if id := gotHeaders.Get("X-Event-Id"); id != event.EventID {
		t.Errorf("X-Event-Id = %q, want %q", id, event.EventID)
	}
	if typ := gotHeaders.Get("X-Event-Type"); typ != event.EventType {
		t.Errorf("X-Event-Type = %q, want %q", typ, event.EventType)
	}

	// Signature must cover the literal body bytes.
	mac := hmac.New(sha256.New, []byte("s3cret"))
	mac.Write(gotBody)
	want := hex.EncodeToString(mac.Sum(nil))
	if sig := gotHeaders.Get("X-Signature-256"); sig != want {
		t.Errorf("X-Signature-256 = %q, want %q", sig, want)
	}
	if !VerifySignature("s3cret", gotBody, gotHeaders.Get("X-Signature-256")) {
		t.Error("VerifySignature rejected the sender's own signature")
	}

	var payload map[string]any
	if err := json.Unmarshal(gotBody, &payload); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if payload["eventId"] != event.EventID {
		t.Errorf("body eventId = %v", payload["eventId"])
	}
	if payload["eventType"] != event.EventType {
		t.Errorf("body eventType = %v", payload["eventType"])
	}
}

func TestHTTPSender_RetriesOnServerError(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sender := NewHTTPSender()
	noSleep(sender)
	outcome := sender.Send(context.Background(), testPartner(server.URL), testQueuedEvent())

	if !outcome.Success {
		t.Fatalf("expected eventual success, got %q", outcome.Error)
	}
	if outcome.Attempt != 3 {
		t.Errorf("expected 3 attempts, got %d", outcome.Attempt)
	}
}

func TestHTTPSender_FailureAfterMaxAttempts(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	sender := NewHTTPSender()
	noSleep(sender)
	outcome := sender.Send(context.Background(), testPartner(server.URL), testQueuedEvent())

	if outcome.Success {
		t.Fatal("expected failure")
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
	if outcome.StatusCode != 503 {
		t.Errorf("expected status 503, got %d", outcome.StatusCode)
	}
	if outcome.Error != "Failed with status code 503" {
		t.Errorf("unexpected error: %q", outcome.Error)
	}
}

func TestHTTPSender_TimeoutClassification(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	sender := NewHTTPSender().WithRetryPolicy(2, time.Millisecond, 50*time.Millisecond)
	noSleep(sender)
	outcome := sender.Send(context.Background(), testPartner(server.URL), testQueuedEvent())

	if outcome.Success {
		t.Fatal("expected timeout failure")
	}
	if outcome.StatusCode != 500 {
		t.Errorf("expected fallback status 500, got %d", outcome.StatusCode)
	}
	if outcome.Error != "Request timed out after 50ms" {
		t.Errorf("unexpected error: %q", outcome.Error)
	}
}

func TestHTTPSender_ConnectionErrorReportedAs500(t *testing.T) {
	sender := NewHTTPSender().WithRetryPolicy(2, time.Millisecond, time.Second)
	noSleep(sender)

	// Closed server: every attempt fails at the transport layer.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	outcome := sender.Send(context.Background(), testPartner(url), testQueuedEvent())

	if outcome.Success {
		t.Fatal("expected failure")
	}
	if outcome.StatusCode != 500 {
		t.Errorf("expected fallback status 500, got %d", outcome.StatusCode)
	}
	if !strings.Contains(outcome.Error, "connection refused") {
		t.Errorf("expected transport error message, got %q", outcome.Error)
	}
}

func TestHTTPSender_BackoffDoublesPerAttempt(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	sender := NewHTTPSender().WithRetryPolicy(4, 100*time.Millisecond, time.Second)
	var waits []time.Duration
	sender.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	sender.Send(context.Background(), testPartner(server.URL), testQueuedEvent())

	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}
	if len(waits) != len(want) {
		t.Fatalf("expected %d backoff waits, got %d", len(want), len(waits))
	}
	for i, d := range waits {
		if d != want[i] {
			t.Errorf("wait %d: got %s, want %s", i, d, want[i])
		}
	}
}

func TestHTTPSender_ContextCancelStopsBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sender := NewHTTPSender().WithRetryPolicy(3, time.Hour, time.Second)
	sender.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	outcome := sender.Send(ctx, testPartner(server.URL), testQueuedEvent())

	if outcome.Success {
		t.Fatal("expected failure")
	}
	if outcome.Attempt != 2 {
		t.Errorf("expected cancellation before attempt 2 ran, got attempt %d", outcome.Attempt)
	}
}
