package scan

import (
	"sync/atomic"

	"github.com/banshee-data/scanreplay/internal/monitoring"
)

// Backend converts range scans to vehicle-frame point clouds. Implementations
// must agree on point count for identical inputs; ordering is backend-defined.
type Backend interface {
	Name() string
	Convert(scan *RangeScan, calib Calibration) (*PointCloud, error)
}

// SequentialBackend is the reference implementation. Output order is
// pixel-scan order.
type SequentialBackend struct{}

// Name implements Backend.
func (SequentialBackend) Name() string { return "sequential" }

// Convert implements Backend.
func (SequentialBackend) Convert(scan *RangeScan, calib Calibration) (*PointCloud, error) {
	return Convert(scan, calib)
}

// FallbackBackend tries a primary backend and degrades to a fallback on any
// conversion error. Degradation is sticky for the lifetime of the value so a
// broken kernel is not retried on every frame.
type FallbackBackend struct {
	Primary  Backend
	Fallback Backend

	degraded atomic.Bool
}

// NewFallbackBackend wraps primary with a sequential fallback.
func NewFallbackBackend(primary Backend) *FallbackBackend {
	return &FallbackBackend{Primary: primary, Fallback: SequentialBackend{}}
}

// Name implements Backend.
func (b *FallbackBackend) Name() string {
	if b.degraded.Load() {
		return b.Fallback.Name()
	}
	return b.Primary.Name()
}

// Degraded reports whether the backend has fallen back permanently.
func (b *FallbackBackend) Degraded() bool { return b.degraded.Load() }

// Convert implements Backend. A primary failure converts the same scan
// synchronously on the fallback, so no data is lost.
func (b *FallbackBackend) Convert(scan *RangeScan, calib Calibration) (*PointCloud, error) {
	if !b.degraded.Load() {
		cloud, err := b.Primary.Convert(scan, calib)
		if err == nil {
			return cloud, nil
		}
		if b.degraded.CompareAndSwap(false, true) {
			monitoring.Logf("[scan] %s backend failed (%v); falling back to %s for the rest of the session",
				b.Primary.Name(), err, b.Fallback.Name())
		}
	}
	return b.Fallback.Convert(scan, calib)
}

// DefaultBackend returns the conversion backend for a session: the parallel
// kernel with sticky sequential fallback when useKernel is set, otherwise the
// sequential backend alone.
func DefaultBackend(useKernel bool) Backend {
	if !useKernel {
		return SequentialBackend{}
	}
	return NewFallbackBackend(NewKernelBackend(KernelOptions{}))
}
