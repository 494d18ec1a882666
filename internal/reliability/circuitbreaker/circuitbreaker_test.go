package circuitbreaker

import (
	"testing"
	"time"
)

func TestBreakerOpensAtThreshold(t *testing.T) {
	cb := New(3, 1, time.Minute)

	for i := 0; i < 3; i++ {
		if !cb.AllowRequest() {
			t.Fatalf("call %d: expected closed breaker to allow", i+1)
		}
		cb.RecordFailure()
	}

	if cb.GetState() != StateOpen {
		t.Fatalf("state = %v, want open", cb.GetState())
	}
	if cb.AllowRequest() {
		t.Fatal("open breaker must reject")
	}
}

func TestBreakerRecoversThroughHalfOpen(t *testing.T) {
	cb := New(1, 2, 10*time.Millisecond)

	cb.RecordFailure()
	if cb.GetState() != StateOpen {
		t.Fatalf("state = %v, want open", cb.GetState())
	}

	time.Sleep(20 * time.Millisecond)
	if !cb.AllowRequest() {
		t.Fatal("expected half-open probe after timeout")
	}
	if cb.GetState() != StateHalfOpen {
		t.Fatalf("state = %v, want half-open", cb.GetState())
	}

	cb.RecordSuccess()
	cb.RecordSuccess()
	if cb.GetState() != StateClosed {
		t.Fatalf("state = %v, want closed after successes", cb.GetState())
	}
}

func TestHalfOpenFailureReopens(t *testing.T) {
	cb := New(1, 2, 10*time.Millisecond)

	cb.RecordFailure()
	time.Sleep(20 * time.Millisecond)
	cb.AllowRequest()
	cb.RecordFailure()

	if cb.GetState() != StateOpen {
		t.Fatalf("state = %v, want open after half-open failure", cb.GetState())
	}
}
