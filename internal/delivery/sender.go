package delivery

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hooklinehq/hookline/internal/domain"
)

const (
	defaultMaxAttempts = 3
	defaultRetryDelay  = 2500 * time.Millisecond
	defaultTimeout     = 5 * time.Second

	// fallbackStatusCode is reported when no HTTP status was observed
	// (timeouts, connection errors).
	fallbackStatusCode = http.StatusInternalServerError
)

// webhookPayload is the canonical body posted to partner endpoints.
// It is marshaled exactly once per delivery so the signature always
// covers the literal bytes sent.
type webhookPayload struct {
	EventID   string           `json:"eventId"`
	EventType string           `json:"eventType"`
	Data      domain.EventData `json:"data"`
}

// HTTPSender delivers events to partner webhooks with HMAC signatures
// and bounded in-call retries.
type HTTPSender struct {
	client      *http.Client
	maxAttempts int
	retryDelay  time.Duration
	timeout     time.Duration
	metrics     MetricsSink // optional, nil = disabled

	// sleep is swapped out in tests to skip real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewHTTPSender() *HTTPSender {
	return &HTTPSender{
		client:      &http.Client{},
		maxAttempts: defaultMaxAttempts,
		retryDelay:  defaultRetryDelay,
		timeout:     defaultTimeout,
		sleep:       sleepContext,
	}
}

// WithRetryPolicy overrides the attempt count, base backoff delay and
// per-attempt timeout.
func (s *HTTPSender) WithRetryPolicy(maxAttempts int, retryDelay, timeout time.Duration) *HTTPSender {
	if maxAttempts > 0 {
		s.maxAttempts = maxAttempts
	}
	if retryDelay > 0 {
		s.retryDelay = retryDelay
	}
	if timeout > 0 {
		s.timeout = timeout
	}
	return s
}

// WithMetrics attaches a metrics sink to the sender.
func (s *HTTPSender) WithMetrics(sink MetricsSink) *HTTPSender {
	s.metrics = sink
	return s
}

// Send posts the event to the partner's webhook URL, signing the body
// with the partner's secret. Headers: X-Event-Id, X-Event-Type,
// X-Signature-256. A 2xx response ends the call immediately; any other
// outcome is retried with exponential backoff until attempts run out.
func (s *HTTPSender) Send(ctx context.Context, partner domain.Partner, event domain.QueuedEvent) domain.DeliveryOutcome {
	outcome := domain.DeliveryOutcome{
		PartnerName: partner.Name,
		EventID:     event.EventID,
	}

	body, err := json.Marshal(webhookPayload{
		EventID:   event.EventID,
		EventType: event.EventType,
		Data:      event.Data,
	})
	if err != nil {
		outcome.StatusCode = fallbackStatusCode
		outcome.Error = fmt.Sprintf("marshal payload: %v", err)
		return outcome
	}
	signature := computeSignature(partner.SecretKey, body)

	var lastErr string
	var lastStatus int
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		outcome.Attempt = attempt

		if attempt > 1 {
			backoff := s.backoffDelay(attempt)
			if err := s.sleep(ctx, backoff); err != nil {
				outcome.StatusCode = fallbackStatusCode
				outcome.Error = err.Error()
				return outcome
			}
		}

		start := time.Now()
		status, err := s.attempt(ctx, partner.WebhookURL, body, signature, event)
		duration := time.Since(start)

		if s.metrics != nil {
			s.metrics.DeliveryAttemptCompleted(attempt, classifyAttempt(status, err), duration)
		}

		if err == nil && status >= 200 && status < 300 {
			outcome.Success = true
			outcome.StatusCode = status
			return outcome
		}

		switch {
		case err == nil:
			lastStatus = status
			lastErr = fmt.Sprintf("Failed with status code %d", status)
		case errors.Is(err, context.DeadlineExceeded):
			lastStatus = 0
			lastErr = fmt.Sprintf("Request timed out after %dms", s.timeout.Milliseconds())
		default:
			lastStatus = 0
			lastErr = err.Error()
		}
	}

	if lastErr == "" {
		lastErr = "Max retries reached for partner webhook."
	}
	if lastStatus == 0 {
		lastStatus = fallbackStatusCode
	}
	outcome.StatusCode = lastStatus
	outcome.Error = lastErr
	return outcome
}

// attempt performs a single POST with the per-attempt timeout applied.
func (s *HTTPSender) attempt(ctx context.Context, url string, body []byte, signature string, event domain.QueuedEvent) (int, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctxTimeout, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Id", event.EventID)
	req.Header.Set("X-Event-Type", event.EventType)
	req.Header.Set("X-Signature-256", signature)

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	return resp.StatusCode, nil
}

// backoffDelay returns retryDelay * 2^(attempt-2): the wait before the
// given attempt, doubling after each failure.
func (s *HTTPSender) backoffDelay(attempt int) time.Duration {
	delay := s.retryDelay
	for i := 2; i < attempt; i++ {
		delay *= 2
	}
	return delay
}

// sleepContext blocks for d or until the context is cancelled.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// classifyAttempt buckets one attempt's result for metrics labels.
func classifyAttempt(status int, err error) string {
	switch {
	case err != nil && errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case err != nil:
		return "error"
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500:
		return "5xx"
	default:
		return "other"
	}
}

func computeSignature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature is for partners to verify incoming webhooks.
func VerifySignature(secret string, body []byte, signature string) bool {
	expected := computeSignature(secret, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}
