// Trackrelay - Live Device Telemetry Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackrelay

package breaker

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/trackrelay/internal/metrics"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	cb := New[int](Config{Name: "test-open", FailureThreshold: 2, Timeout: time.Minute})
	boom := errors.New("boom")

	for i := 0; i < 2; i++ {
		if _, err := cb.Execute(func() (int, error) { return 0, boom }); !errors.Is(err, boom) {
			t.Fatalf("call %d: expected boom, got %v", i, err)
		}
	}

	if cb.State() != gobreaker.StateOpen {
		t.Fatalf("Expected open state, got %s", cb.State())
	}

	called := false
	_, err := cb.Execute(func() (int, error) { called = true; return 1, nil })
	if !IsOpen(err) {
		t.Errorf("Expected open-state error, got %v", err)
	}
	if called {
		t.Error("Expected function not to run while open")
	}

	if got := testutil.ToFloat64(metrics.CircuitBreakerState.WithLabelValues("test-open")); got != 2 {
		t.Errorf("Expected state gauge 2, got %v", got)
	}
}

func TestBreakerIsSuccessful(t *testing.T) {
	benign := errors.New("not found")
	cb := New[int](Config{
		Name:             "test-benign",
		FailureThreshold: 1,
		IsSuccessful:     func(err error) bool { return err == nil || errors.Is(err, benign) },
	})

	for i := 0; i < 3; i++ {
		_, _ = cb.Execute(func() (int, error) { return 0, benign })
	}

	if cb.State() != gobreaker.StateClosed {
		t.Errorf("Expected closed state after benign errors, got %s", cb.State())
	}
}

func TestIsOpen(t *testing.T) {
	if IsOpen(errors.New("other")) {
		t.Error("Expected plain error not to be an open-state error")
	}
	if !IsOpen(gobreaker.ErrTooManyRequests) {
		t.Error("Expected ErrTooManyRequests to count as open")
	}
}
