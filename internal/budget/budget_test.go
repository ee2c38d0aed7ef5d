package budget

import (
	"context"
	"testing"
)

func TestTracker_NilRedis_FailOpen(t *testing.T) {
	tr := NewTracker(nil)
	result, err := tr.Check(context.Background(), "agent-1", 25.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Allowed {
		t.Error("expected allowed when Redis is nil")
	}
	if result.LimitCents != 2500 {
		t.Errorf("expected limit=2500, got %d", result.LimitCents)
	}
}

func TestTracker_ZeroLimitMeansUnlimited(t *testing.T) {
	tr := NewTracker(nil)
	result, err := tr.Check(context.Background(), "global", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Allowed {
		t.Error("expected allowed with no limit configured")
	}
}

func TestTracker_NilRedis_Record(t *testing.T) {
	tr := NewTracker(nil)
	if err := tr.Record(context.Background(), "agent-1", 0.42); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTracker_SubCentCostIsNoop(t *testing.T) {
	tr := NewTracker(nil)
	if err := tr.Record(context.Background(), "agent-1", 0.001); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
