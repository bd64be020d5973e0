// Package testutil provides shared test utilities and signal fixtures.
package testutil

import (
	"math"
	"math/cmplx"
	"testing"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t testing.TB, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// Tone returns n unit-amplitude samples of a complex exponential advancing
// cyclesPerSample cycles per sample.
func Tone(n int, cyclesPerSample float64) []complex128 {
	out := make([]complex128, n)
	for i := range out {
		out[i] = cmplx.Exp(complex(0, 2*math.Pi*cyclesPerSample*float64(i)))
	}
	return out
}

// Argmax returns the index of the largest value, the first on ties.
func Argmax(v []float64) int {
	best := 0
	for i := range v {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}
