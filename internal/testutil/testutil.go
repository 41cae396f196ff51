// Package testutil provides shared test utilities and fixtures.
//
// This package centralises common test helpers to reduce code duplication
// across test files and improve test maintainability.
package testutil

import (
	"math"
	"testing"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// AssertInDelta checks that got is within delta of want. NaN values always fail.
func AssertInDelta(t *testing.T, name string, got, want, delta float64) {
	t.Helper()
	if math.IsNaN(got) {
		t.Errorf("%s = NaN, want %v", name, want)
		return
	}
	if math.Abs(got-want) > delta {
		t.Errorf("%s = %v, want %v (±%v)", name, got, want, delta)
	}
}

// AssertProbability checks that p is a valid probability in [0, 1].
func AssertProbability(t *testing.T, name string, p float64) {
	t.Helper()
	if math.IsNaN(p) || p < 0 || p > 1 {
		t.Errorf("%s = %v, want value in [0, 1]", name, p)
	}
}
