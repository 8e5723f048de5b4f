// Package api exposes the HTTP intake surface: partner-authenticated
// batch submission and health probes.
package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/hooklinehq/hookline/internal/domain"
)

// DefaultBatchMaxSize caps the number of events per submission.
const DefaultBatchMaxSize = 100

// maxRequestBodySize is the maximum allowed request body size (1MB).
const maxRequestBodySize = 1 << 20

// BatchProcessor accepts validated batches for durable enqueueing.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, events []domain.Event) domain.BatchResult
}

// PartnerStore resolves API keys to active partners.
type PartnerStore interface {
	GetPartnerByAPIKey(ctx context.Context, apiKey string) (domain.Partner, error)
}

// HealthChecker provides database health status for the /health endpoint.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	processor BatchProcessor
	partners  PartnerStore
	db        HealthChecker
	batchMax  int
}

func NewHandler(processor BatchProcessor, partners PartnerStore) *Handler {
	return &Handler{
		processor: processor,
		partners:  partners,
		batchMax:  DefaultBatchMaxSize,
	}
}

// WithHealthChecker sets the database health checker for verbose /health responses.
func (h *Handler) WithHealthChecker(db HealthChecker) *Handler {
	h.db = db
	return h
}

// WithBatchMaxSize overrides the per-submission event cap.
func (h *Handler) WithBatchMaxSize(n int) *Handler {
	if n > 0 {
		h.batchMax = n
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	switch {
	case path == "/health" && r.Method == http.MethodGet:
		h.health(w, r)

	case path == "/api/v1/events" && r.Method == http.MethodPost:
		h.submitEvents(w, r)

	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	// Check if verbose mode requested via ?verbose=true
	verbose := r.URL.Query().Get("verbose") == "true"

	if !verbose || h.db == nil {
		writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
		return
	}

	resp := HealthResponse{
		Status:     "ok",
		Components: make(map[string]string),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		resp.Status = "degraded"
		resp.Components["database"] = "unhealthy: " + err.Error()
	} else {
		resp.Components["database"] = "healthy"
	}

	statusCode := http.StatusOK
	if resp.Status == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, resp)
}

func (h *Handler) submitEvents(w http.ResponseWriter, r *http.Request) {
	partner, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	// Limit request body size to prevent DoS via large payloads
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var events []EventRequest
	if err := json.NewDecoder(r.Body).Decode(&events); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}

	if err := validateBatch(events, h.batchMax); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result := h.processor.ProcessBatch(r.Context(), toDomain(events))

	statusCode := http.StatusAccepted
	if result.HasErrors {
		statusCode = http.StatusMultiStatus
	}
	log.Printf("api: partner=%s submitted %d events, status=%d", partner.Name, len(events), statusCode)

	writeJSON(w, statusCode, BatchResponse{
		Message: result.Message,
		Results: result.Results,
	})
}

// authenticate resolves the X-API-Key header to an active partner. On
// failure the response has already been written.
func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) (domain.Partner, bool) {
	apiKey := r.Header.Get("X-API-Key")
	if apiKey == "" {
		writeError(w, http.StatusUnauthorized, "API key is required")
		return domain.Partner{}, false
	}

	partner, err := h.partners.GetPartnerByAPIKey(r.Context(), apiKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusUnauthorized, "Invalid API key or inactive partner")
			return domain.Partner{}, false
		}
		log.Printf("api: authentication error: %v", err)
		writeError(w, http.StatusInternalServerError, "Authentication failed")
		return domain.Partner{}, false
	}
	return partner, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: json encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
