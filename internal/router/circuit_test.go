package router

import (
	"testing"
	"time"
)

func TestBreaker_StartsClosedAndAllows(t *testing.T) {
	b := NewBreaker(3, 5*time.Second)
	if b.State() != StateClosed {
		t.Errorf("expected StateClosed, got %s", b.State())
	}
	if !b.Allow() {
		t.Error("expected Allow=true for closed breaker")
	}
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := NewBreaker(3, 5*time.Second)

	b.RecordFailure()
	b.RecordFailure()
	if b.State() != StateClosed {
		t.Error("expected StateClosed after 2 failures")
	}

	b.RecordFailure()
	if b.State() != StateOpen {
		t.Errorf("expected StateOpen after 3 failures, got %s", b.State())
	}
	if b.Allow() {
		t.Error("expected Allow=false for open breaker")
	}
}

func TestBreaker_HalfOpenAfterProbeInterval(t *testing.T) {
	b := NewBreaker(1, time.Minute)

	now := time.Now()
	b.now = func() time.Time { return now }

	b.RecordFailure()
	if b.State() != StateOpen {
		t.Fatal("expected StateOpen")
	}

	now = now.Add(2 * time.Minute)
	if b.State() != StateHalfOpen {
		t.Errorf("expected StateHalfOpen after probe interval, got %s", b.State())
	}
	if !b.Allow() {
		t.Error("expected Allow=true for half-open breaker")
	}
}

func TestBreaker_HalfOpen_SuccessCloses(t *testing.T) {
	b := NewBreaker(1, time.Minute)
	now := time.Now()
	b.now = func() time.Time { return now }

	b.RecordFailure()
	now = now.Add(2 * time.Minute)

	b.Allow()
	b.RecordSuccess()

	if b.State() != StateClosed {
		t.Errorf("expected StateClosed after successful probe, got %s", b.State())
	}
}

func TestBreaker_HalfOpen_FailureReopens(t *testing.T) {
	b := NewBreaker(1, time.Minute)
	now := time.Now()
	b.now = func() time.Time { return now }

	b.RecordFailure()
	now = now.Add(2 * time.Minute)

	b.Allow()
	b.RecordFailure()

	if b.State() != StateOpen {
		t.Errorf("expected StateOpen after failed probe, got %s", b.State())
	}
}

func TestBreaker_SuccessDoesNotResetInClosed(t *testing.T) {
	b := NewBreaker(3, 5*time.Second)

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()

	b.RecordFailure()
	if b.State() != StateOpen {
		t.Errorf("expected StateOpen, got %s", b.State())
	}
}

func TestBreaker_Reset(t *testing.T) {
	b := NewBreaker(1, 5*time.Second)
	b.RecordFailure()
	if b.State() != StateOpen {
		t.Fatal("expected StateOpen")
	}

	b.Reset()
	if b.State() != StateClosed {
		t.Errorf("expected StateClosed after reset, got %s", b.State())
	}
	if !b.Allow() {
		t.Error("expected Allow=true after reset")
	}
}

func TestBreakerState_String(t *testing.T) {
	tests := []struct {
		state BreakerState
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half_open"},
		{BreakerState(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %s, want %s", tt.state, got, tt.want)
		}
	}
}
