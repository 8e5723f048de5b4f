package circuitbreaker

import (
	"testing"
	"time"
)

const hookURL = "https://partner.test/hook"

func TestBreaker_ClosedUntilThreshold(t *testing.T) {
	cb := New(3, time.Minute)

	cb.RecordFailure(hookURL)
	cb.RecordFailure(hookURL)

	if err := cb.Allow(hookURL); err != nil {
		t.Fatalf("circuit opened below threshold: %v", err)
	}

	cb.RecordFailure(hookURL)

	if err := cb.Allow(hookURL); err != ErrCircuitOpen {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestBreaker_UnknownEndpointAllowed(t *testing.T) {
	cb := New(1, time.Minute)
	if err := cb.Allow("https://never-seen.test"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBreaker_SuccessResetsFailureRun(t *testing.T) {
	cb := New(2, time.Minute)

	cb.RecordFailure(hookURL)
	cb.RecordSuccess(hookURL)
	cb.RecordFailure(hookURL)

	if err := cb.Allow(hookURL); err != nil {
		t.Fatalf("failure run should have been reset: %v", err)
	}
}

func TestBreaker_HalfOpenProbeAfterCooldown(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	cb := New(1, 30*time.Second)
	cb.clock = func() time.Time { return now }

	cb.RecordFailure(hookURL)
	if err := cb.Allow(hookURL); err != ErrCircuitOpen {
		t.Fatalf("expected open circuit, got %v", err)
	}

	now = now.Add(31 * time.Second)

	// First caller after cooldown gets the probe slot.
	if err := cb.Allow(hookURL); err != nil {
		t.Fatalf("expected half-open probe, got %v", err)
	}
	// Concurrent callers keep waiting while the probe is in flight.
	if err := cb.Allow(hookURL); err != ErrCircuitOpen {
		t.Fatalf("expected ErrCircuitOpen during probe, got %v", err)
	}

	cb.RecordSuccess(hookURL)
	if err := cb.Allow(hookURL); err != nil {
		t.Fatalf("expected closed circuit after probe success, got %v", err)
	}
}

func TestBreaker_ProbeFailureReopens(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	cb := New(1, 30*time.Second)
	cb.clock = func() time.Time { return now }

	cb.RecordFailure(hookURL)
	now = now.Add(time.Minute)
	if err := cb.Allow(hookURL); err != nil {
		t.Fatalf("expected probe slot, got %v", err)
	}

	cb.RecordFailure(hookURL)
	if err := cb.Allow(hookURL); err != ErrCircuitOpen {
		t.Fatalf("expected reopened circuit, got %v", err)
	}
}
