package scan

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/scanreplay/internal/monitoring"
)

// defaultLaneCap bounds the kernel lane count. Beyond eight lanes the shared
// output cursor becomes the bottleneck before the arithmetic does.
const defaultLaneCap = 8

// device is the process-wide execution target for kernel dispatches. It
// bounds the number of concurrently executing lanes with a semaphore. It is
// created lazily on first dispatch and cached across calls. A lane panic
// marks the device lost; the next acquire replaces it rather than crashing.
type device struct {
	lanes int
	sem   chan struct{}
	lost  atomic.Bool
}

var (
	deviceMu  sync.Mutex
	activeDev *device
)

func defaultLanes() int {
	n := runtime.NumCPU()
	if n > defaultLaneCap {
		n = defaultLaneCap
	}
	if n < 1 {
		n = 1
	}
	return n
}

// acquireDevice returns the shared device, creating or recreating it as
// needed. lanes <= 0 selects the default lane count.
func acquireDevice(lanes int) *device {
	if lanes <= 0 {
		lanes = defaultLanes()
	}
	deviceMu.Lock()
	defer deviceMu.Unlock()
	if activeDev != nil && !activeDev.lost.Load() {
		return activeDev
	}
	if activeDev != nil {
		monitoring.Logf("[scan] kernel device lost; recreating with %d lanes", lanes)
	}
	activeDev = &device{lanes: lanes, sem: make(chan struct{}, lanes)}
	return activeDev
}

// dispatch runs the span functions across the device lanes and blocks until
// all complete. Returns an error if any span panicked; the device is then
// marked lost and will be recreated on the next acquire.
func (d *device) dispatch(spans []func()) error {
	var failed atomic.Bool
	var wg sync.WaitGroup
	wg.Add(len(spans))
	for _, span := range spans {
		go func(run func()) {
			d.sem <- struct{}{}
			defer func() {
				<-d.sem
				if r := recover(); r != nil {
					failed.Store(true)
					d.lost.Store(true)
					monitoring.Logf("[scan] kernel lane panic: %v", r)
				}
				wg.Done()
			}()
			run()
		}(span)
	}
	wg.Wait()
	if failed.Load() {
		return fmt.Errorf("kernel dispatch failed on device with %d lanes", d.lanes)
	}
	return nil
}

// invalidateDevice marks the shared device lost. Exposed for tests exercising
// the recreate-on-next-use path.
func invalidateDevice() {
	deviceMu.Lock()
	defer deviceMu.Unlock()
	if activeDev != nil {
		activeDev.lost.Store(true)
	}
}
