package resilience

import (
	"testing"
	"time"
)

func newTestBreaker(cfg CircuitBreakerConfig) (*CircuitBreaker, *time.Time) {
	cb := NewCircuitBreaker("tool-1", cfg, nil)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	cb.now = func() time.Time { return now }
	return cb, &now
}

func TestBreakerTripsAtFailureThreshold(t *testing.T) {
	cb, _ := newTestBreaker(CircuitBreakerConfig{FailureThreshold: 3})

	for i := 0; i < 2; i++ {
		cb.RecordFailure()
	}
	if cb.State() != StateClosed {
		t.Fatalf("state = %s before threshold", cb.State())
	}
	cb.RecordFailure()
	if cb.State() != StateOpen {
		t.Fatalf("state = %s after threshold", cb.State())
	}
	if cb.CanExecute() {
		t.Error("open breaker must reject calls")
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	cb, _ := newTestBreaker(CircuitBreakerConfig{FailureThreshold: 3})

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	cb.RecordFailure()
	if cb.State() != StateClosed {
		t.Errorf("non-consecutive failures should not trip, state = %s", cb.State())
	}
}

func TestBreakerRecoveryToHalfOpen(t *testing.T) {
	cb, now := newTestBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		RecoveryTimeout:  time.Minute,
		HalfOpenMaxCalls: 2,
		SuccessThreshold: 2,
	})

	cb.RecordFailure()
	if cb.CanExecute() {
		t.Fatal("open breaker must reject before the recovery timeout")
	}

	*now = now.Add(61 * time.Second)
	if !cb.CanExecute() {
		t.Fatal("recovered breaker should admit a probe")
	}
	if cb.State() != StateHalfOpen {
		t.Fatalf("state = %s, want half_open", cb.State())
	}

	// One probe slot left.
	if !cb.CanExecute() {
		t.Fatal("second probe should be admitted")
	}
	if cb.CanExecute() {
		t.Error("probe budget exhausted, call must be rejected")
	}
}

func TestBreakerClosesAfterSuccessThreshold(t *testing.T) {
	cb, now := newTestBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		RecoveryTimeout:  time.Minute,
		HalfOpenMaxCalls: 3,
		SuccessThreshold: 2,
	})

	cb.RecordFailure()
	*now = now.Add(2 * time.Minute)
	cb.CanExecute()
	cb.RecordSuccess()
	if cb.State() != StateHalfOpen {
		t.Fatalf("state = %s after one success", cb.State())
	}
	cb.RecordSuccess()
	if cb.State() != StateClosed {
		t.Fatalf("state = %s after success threshold", cb.State())
	}
}

func TestBreakerReopensOnHalfOpenFailure(t *testing.T) {
	cb, now := newTestBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		RecoveryTimeout:  time.Minute,
	})

	cb.RecordFailure()
	*now = now.Add(2 * time.Minute)
	cb.CanExecute()
	if cb.State() != StateHalfOpen {
		t.Fatalf("state = %s, want half_open", cb.State())
	}
	cb.RecordFailure()
	if cb.State() != StateOpen {
		t.Fatalf("any half-open failure must reopen, state = %s", cb.State())
	}
}

func TestBreakerResetAndForceOpen(t *testing.T) {
	cb, _ := newTestBreaker(CircuitBreakerConfig{FailureThreshold: 1})

	cb.ForceOpen()
	if cb.State() != StateOpen {
		t.Fatalf("state = %s after ForceOpen", cb.State())
	}
	cb.Reset()
	if cb.State() != StateClosed {
		t.Fatalf("state = %s after Reset", cb.State())
	}
	if !cb.CanExecute() {
		t.Error("reset breaker must admit calls")
	}
}

func TestBreakerStateChangeListener(t *testing.T) {
	cb, _ := newTestBreaker(CircuitBreakerConfig{FailureThreshold: 1})

	var transitions []string
	cb.OnStateChange(func(toolID string, from, to BreakerState) {
		transitions = append(transitions, from.String()+"->"+to.String())
	})

	cb.RecordFailure()
	cb.Reset()
	if len(transitions) != 2 {
		t.Fatalf("expected 2 transitions, got %v", transitions)
	}
	if transitions[0] != "closed->open" || transitions[1] != "open->closed" {
		t.Errorf("transitions = %v", transitions)
	}
}

func TestRegistryReturnsSameBreaker(t *testing.T) {
	r := NewCircuitBreakerRegistry(DefaultCircuitBreakerConfig(), nil)

	a := r.Get("tool-a")
	if a != r.Get("tool-a") {
		t.Error("registry must return the same breaker per tool id")
	}
	if a == r.Get("tool-b") {
		t.Error("different tools must get different breakers")
	}

	snap := r.Snapshot()
	if len(snap) != 2 {
		t.Errorf("expected 2 breakers in snapshot, got %d", len(snap))
	}
}
