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

// AssertNear checks that got is within tol of want.
func AssertNear(t *testing.T, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("value = %g, want %g (tol %g)", got, want, tol)
	}
}

// AssertNearRel checks that got matches want within a relative tolerance.
// For expected values below 1 an absolute tolerance of rel is used instead.
func AssertNearRel(t *testing.T, got, want, rel float64) {
	t.Helper()
	scale := math.Abs(want)
	if scale < 1 {
		scale = 1
	}
	if math.Abs(got-want) > rel*scale {
		t.Errorf("value = %g, want %g (rel tol %g)", got, want, rel)
	}
}

// IdentityExtrinsic returns a 4x4 row-major identity transform.
func IdentityExtrinsic() [16]float64 {
	return [16]float64{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// YawExtrinsic returns a row-major extrinsic rotating yawRad about Z with the
// given translation.
func YawExtrinsic(yawRad, tx, ty, tz float64) [16]float64 {
	c, s := math.Cos(yawRad), math.Sin(yawRad)
	return [16]float64{
		c, -s, 0, tx,
		s, c, 0, ty,
		0, 0, 1, tz,
		0, 0, 0, 1,
	}
}
