package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hooklinehq/hookline/internal/domain"
)

type fakeProcessor struct {
	got    []domain.Event
	result domain.BatchResult
}

func (f *fakeProcessor) ProcessBatch(ctx context.Context, events []domain.Event) domain.BatchResult {
	f.got = events
	return f.result
}

type fakePartnerStore struct {
	partners map[string]domain.Partner
	err      error
}

func (f *fakePartnerStore) GetPartnerByAPIKey(ctx context.Context, apiKey string) (domain.Partner, error) {
	if f.err != nil {
		return domain.Partner{}, f.err
	}
	p, ok := f.partners[apiKey]
	if !ok {
		return domain.Partner{}, sql.ErrNoRows
	}
	return p, nil
}

type fakePinger struct{ err error }

func (f *fakePinger) Ping(ctx context.Context) error { return f.err }

func authedStore() *fakePartnerStore {
	return &fakePartnerStore{partners: map[string]domain.Partner{
		"key-123": {Name: "Acme Corp", IsActive: true},
	}}
}

func successResult(n int) domain.BatchResult {
	results := make([]domain.EventResult, n)
	for i := range results {
		results[i] = domain.EventResult{
			EventID:   fmt.Sprintf("event_%024d", i),
			EventType: "order.created",
			Status:    domain.EventStatusSuccess,
		}
	}
	return domain.BatchResult{
		Message: fmt.Sprintf("All %d events successfully enqueued", n),
		Results: results,
	}
}

func postEvents(t *testing.T, h *Handler, apiKey, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader(body))
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

const validBatch = `[{"eventType":"order.created","data":{"orderId":"ord_1","value":10.5}}]`

func TestSubmitEvents_Accepted(t *testing.T) {
	proc := &fakeProcessor{result: successResult(1)}
	h := NewHandler(proc, authedStore())

	w := postEvents(t, h, "key-123", validBatch)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 (body %s)", w.Code, w.Body.String())
	}

	var resp BatchResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response: %v", err)
	}
	if resp.Message != "All 1 events successfully enqueued" {
		t.Errorf("message = %q", resp.Message)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(resp.Results))
	}

	if len(proc.got) != 1 || proc.got[0].EventType != "order.created" || proc.got[0].Data.OrderID != "ord_1" {
		t.Errorf("processor received %+v", proc.got)
	}
}

func TestSubmitEvents_MultiStatusOnErrors(t *testing.T) {
	proc := &fakeProcessor{result: domain.BatchResult{
		Message:   "Some events failed to enqueue: connection refused",
		HasErrors: true,
		Results: []domain.EventResult{
			{EventID: "event_x", EventType: "order.created", Status: domain.EventStatusFailed, Error: "connection refused"},
		},
	}}
	h := NewHandler(proc, authedStore())

	w := postEvents(t, h, "key-123", validBatch)

	if w.Code != http.StatusMultiStatus {
		t.Fatalf("status = %d, want 207", w.Code)
	}
}

func TestSubmitEvents_MissingAPIKey(t *testing.T) {
	proc := &fakeProcessor{}
	h := NewHandler(proc, authedStore())

	w := postEvents(t, h, "", validBatch)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if proc.got != nil {
		t.Error("processor must not run without auth")
	}
}

func TestSubmitEvents_UnknownAPIKey(t *testing.T) {
	h := NewHandler(&fakeProcessor{}, authedStore())

	w := postEvents(t, h, "wrong-key", validBatch)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	var resp ErrorResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Error != "Invalid API key or inactive partner" {
		t.Errorf("error = %q", resp.Error)
	}
}

func TestSubmitEvents_AuthStoreErrorIs500(t *testing.T) {
	store := &fakePartnerStore{err: errors.New("connection reset")}
	h := NewHandler(&fakeProcessor{}, store)

	w := postEvents(t, h, "key-123", validBatch)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
}

func TestSubmitEvents_InvalidJSON(t *testing.T) {
	h := NewHandler(&fakeProcessor{}, authedStore())

	w := postEvents(t, h, "key-123", "{not json")

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestSubmitEvents_ValidationFailure(t *testing.T) {
	proc := &fakeProcessor{}
	h := NewHandler(proc, authedStore())

	w := postEvents(t, h, "key-123", `[{"eventType":"","data":{"orderId":"ord_1","value":1}}]`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if proc.got != nil {
		t.Error("processor must not run on invalid batch")
	}
}

func TestSubmitEvents_BodyTooLarge(t *testing.T) {
	h := NewHandler(&fakeProcessor{}, authedStore())

	var buf bytes.Buffer
	buf.WriteString(`[`)
	for i := 0; buf.Len() < maxRequestBodySize+1024; i++ {
		if i > 0 {
			buf.WriteString(",")
		}
		buf.WriteString(`{"eventType":"order.created","data":{"orderId":"ord_1","value":1}}`)
	}
	buf.WriteString(`]`)

	w := postEvents(t, h, "key-123", buf.String())

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", w.Code)
	}
}

func TestHealth_Simple(t *testing.T) {
	h := NewHandler(&fakeProcessor{}, authedStore())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp HealthResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Status != "ok" {
		t.Errorf("status = %q", resp.Status)
	}
}

func TestHealth_VerboseDegraded(t *testing.T) {
	h := NewHandler(&fakeProcessor{}, authedStore()).
		WithHealthChecker(&fakePinger{err: errors.New("connection refused")})

	req := httptest.NewRequest(http.MethodGet, "/health?verbose=true", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	var resp HealthResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Status != "degraded" {
		t.Errorf("status = %q", resp.Status)
	}
	if !strings.HasPrefix(resp.Components["database"], "unhealthy") {
		t.Errorf("database component = %q", resp.Components["database"])
	}
}

func TestHealth_VerboseHealthy(t *testing.T) {
	h := NewHandler(&fakeProcessor{}, authedStore()).WithHealthChecker(&fakePinger{})

	req := httptest.NewRequest(http.MethodGet, "/health?verbose=true", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestUnknownRouteIs404(t *testing.T) {
	h := NewHandler(&fakeProcessor{}, authedStore())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/events", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("GET on events = %d, want 404", w.Code)
	}
}
