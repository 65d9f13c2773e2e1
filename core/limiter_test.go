package core

import "testing"

func TestStepLimiter(t *testing.T) {
	l := NewStepLimiter(2)
	if l.Remaining() != 2 {
		t.Fatalf("expected 2 remaining, got %d", l.Remaining())
	}
	if !l.Take() || !l.Take() {
		t.Fatal("first two steps must be allowed")
	}
	if l.Remaining() != 0 {
		t.Fatalf("expected 0 remaining, got %d", l.Remaining())
	}
	if l.Take() || l.Take() {
		t.Fatal("steps beyond the maximum must be rejected")
	}
	if l.Count() != 4 {
		t.Fatalf("expected count 4, got %d", l.Count())
	}
}

func TestStepLimiter_Unlimited(t *testing.T) {
	l := NewStepLimiter(0)
	for range 1000 {
		if !l.Take() {
			t.Fatal("unlimited limiter rejected a step")
		}
	}
	if l.Remaining() != -1 {
		t.Fatalf("expected -1 for unlimited, got %d", l.Remaining())
	}
}
