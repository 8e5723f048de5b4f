package reconciler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeStore struct {
	mu        sync.Mutex
	calls     int
	gotNow    time.Time
	gotLimit  int
	recovered int64
	err       error
}

func (f *fakeStore) RequeueExpiredLeases(ctx context.Context, now time.Time, limit int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.gotNow = now
	f.gotLimit = limit
	return f.recovered, f.err
}

type fakeMetrics struct {
	mu       sync.Mutex
	requeued []int
}

func (f *fakeMetrics) JobsRequeued(count int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requeued = append(f.requeued, count)
}

func TestRunCycle_PassesBatchSizeAndClock(t *testing.T) {
	store := &fakeStore{}
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	r := New(Config{Interval: time.Minute, BatchSize: 25}, store)
	r.clock = func() time.Time { return now }

	r.runCycle(context.Background())

	if store.calls != 1 {
		t.Fatalf("expected 1 store call, got %d", store.calls)
	}
	if !store.gotNow.Equal(now) {
		t.Errorf("now = %s, want %s", store.gotNow, now)
	}
	if store.gotLimit != 25 {
		t.Errorf("limit = %d, want 25", store.gotLimit)
	}
}

func TestRunCycle_RecordsRecoveredCount(t *testing.T) {
	store := &fakeStore{recovered: 7}
	metrics := &fakeMetrics{}
	r := New(DefaultConfig(), store).WithMetrics(metrics)

	r.runCycle(context.Background())

	if len(metrics.requeued) != 1 || metrics.requeued[0] != 7 {
		t.Errorf("metrics = %v, want [7]", metrics.requeued)
	}
}

func TestRunCycle_NoMetricsWhenNothingRecovered(t *testing.T) {
	store := &fakeStore{recovered: 0}
	metrics := &fakeMetrics{}
	r := New(DefaultConfig(), store).WithMetrics(metrics)

	r.runCycle(context.Background())

	if len(metrics.requeued) != 0 {
		t.Errorf("expected no metric writes, got %v", metrics.requeued)
	}
}

func TestRunCycle_StoreErrorDoesNotPanic(t *testing.T) {
	store := &fakeStore{err: errors.New("connection reset")}
	r := New(DefaultConfig(), store)

	r.runCycle(context.Background())
}

func TestNew_AppliesDefaults(t *testing.T) {
	r := New(Config{}, &fakeStore{})
	if r.config.Interval != time.Minute {
		t.Errorf("interval = %s, want 1m", r.config.Interval)
	}
	if r.config.BatchSize != 100 {
		t.Errorf("batch size = %d, want 100", r.config.BatchSize)
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	store := &fakeStore{}
	r := New(Config{Interval: 10 * time.Millisecond, BatchSize: 10}, store)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}

	store.mu.Lock()
	calls := store.calls
	store.mu.Unlock()
	if calls < 2 {
		t.Errorf("expected startup cycle plus ticks, got %d calls", calls)
	}
}
