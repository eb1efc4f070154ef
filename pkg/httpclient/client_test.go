package httpclient

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ragchat/pkg/circuitbreaker"
)

func TestDoWithoutBreaker(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	c := New(Options{})
	req, _ := http.NewRequest(http.MethodGet, ts.URL, nil)
	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

func TestBreakerTripsOnServerErrors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal", http.StatusInternalServerError)
	}))
	defer ts.Close()

	c := New(Options{
		BreakerEnabled:   true,
		FailureThreshold: 2,
		SuccessThreshold: 1,
		BreakerTimeout:   time.Minute,
	})

	// First two calls fail against the server and trip the circuit.
	for i := 0; i < 2; i++ {
		req, _ := http.NewRequest(http.MethodGet, ts.URL, nil)
		if _, err := c.Do(req); err == nil {
			t.Fatalf("call %d: expected error on 500 response", i+1)
		}
	}

	// The third is rejected without reaching the server.
	req, _ := http.NewRequest(http.MethodGet, ts.URL, nil)
	_, err := c.Do(req)
	if !errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
}
