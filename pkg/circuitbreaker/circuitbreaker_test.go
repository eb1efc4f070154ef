package circuitbreaker

import (
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func fail() (interface{}, error)    { return nil, errBoom }
func succeed() (interface{}, error) { return "ok", nil }

func TestOpensAfterThreshold(t *testing.T) {
	cb := New(2, 1, time.Minute)

	for i := 0; i < 2; i++ {
		if _, err := cb.Execute(fail); !errors.Is(err, errBoom) {
			t.Fatalf("call %d: expected underlying error, got %v", i+1, err)
		}
	}
	if cb.State() != Open {
		t.Fatalf("expected Open after threshold, got %s", cb.State())
	}
	if _, err := cb.Execute(succeed); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	cb := New(2, 1, time.Minute)

	cb.Execute(fail)
	cb.Execute(succeed)
	cb.Execute(fail)

	if cb.State() != Closed {
		t.Fatalf("expected Closed, got %s", cb.State())
	}
}

func TestHalfOpenRecovery(t *testing.T) {
	cb := New(1, 2, 10*time.Millisecond)

	cb.Execute(fail)
	if cb.State() != Open {
		t.Fatalf("expected Open, got %s", cb.State())
	}

	time.Sleep(20 * time.Millisecond)

	// Two successes in half-open state close the circuit.
	for i := 0; i < 2; i++ {
		if _, err := cb.Execute(succeed); err != nil {
			t.Fatalf("half-open call %d: %v", i+1, err)
		}
	}
	if cb.State() != Closed {
		t.Fatalf("expected Closed after recovery, got %s", cb.State())
	}
}

func TestHalfOpenFailureReopens(t *testing.T) {
	cb := New(1, 1, 10*time.Millisecond)

	cb.Execute(fail)
	time.Sleep(20 * time.Millisecond)

	cb.Execute(fail)
	if cb.State() != Open {
		t.Fatalf("expected Open after half-open failure, got %s", cb.State())
	}
}
