package unitpool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/banshee-data/scanreplay/internal/monitoring"
	"github.com/banshee-data/scanreplay/internal/scan"
)

// DefaultWorkers is the pool size when Options.Workers is zero. Units are
// large, so a small pool keeps memory bounded while hiding decompression
// latency.
const DefaultWorkers = 3

// ErrPoolClosed is returned for requests issued or still queued when the pool
// shuts down.
var ErrPoolClosed = errors.New("unitpool: pool closed")

// RawRow is one decoded row of a unit: a timestamped range-scan payload for
// one sensor.
type RawRow struct {
	Timestamp int64
	SensorID  int
	Scan      *scan.RangeScan
}

// Source is one worker's private handle on the dataset.
type Source interface {
	// ReadUnit decodes all rows of the given unit.
	ReadUnit(ctx context.Context, unitIndex int) ([]RawRow, error)
	Close() error
}

// Opener creates independent Sources over the same dataset.
type Opener interface {
	NumUnits() int
	OpenSource() (Source, error)
}

// FramePayload is one converted frame from a decoded unit.
type FramePayload struct {
	Timestamp int64
	Cloud     *scan.PointCloud
	PerSensor map[int]*scan.PointCloud
}

// Result answers one unit request. Frames is nil when Err is set. Frame order
// within the slice is unspecified; consumers key by timestamp.
type Result struct {
	UnitIndex    int
	Frames       []FramePayload
	DecodeNanos  int64
	ConvertNanos int64
	Err          error
}

// Options configures a Pool.
type Options struct {
	Workers int
	Backend scan.Backend
}

type request struct {
	unitIndex int
	result    chan Result
}

// Pool dispatches unit decode requests across its workers.
type Pool struct {
	opener   Opener
	numUnits int

	ctx      context.Context
	cancel   context.CancelFunc
	requests chan request
	idle     chan *worker
	openErrs chan error
	ready    chan struct{}
	initErr  chan error
	done     chan struct{}

	// dispatchDone closes when the scheduler loop has exited and will hand
	// out no further jobs; workers drain their job buffer only after this.
	dispatchDone chan struct{}

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New starts the workers and returns once at least one of them has opened the
// source (partial readiness: the first unit can start before all workers are
// up). If every worker fails to open, the dataset load fails as a whole.
// Calibrations are copied into each worker, never shared by reference.
func New(ctx context.Context, opener Opener, calibs *scan.CalibrationSet, opts Options) (*Pool, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	backend := opts.Backend
	if backend == nil {
		backend = scan.SequentialBackend{}
	}

	poolCtx, cancel := context.WithCancel(ctx)
	p := &Pool{
		opener:   opener,
		numUnits: opener.NumUnits(),
		ctx:      poolCtx,
		cancel:   cancel,
		requests: make(chan request),
		idle:     make(chan *worker, workers),
		openErrs: make(chan error, workers),
		ready:    make(chan struct{}),
		initErr:  make(chan error, 1),
		done:     make(chan struct{}),

		dispatchDone: make(chan struct{}),
	}

	for i := 0; i < workers; i++ {
		w := &worker{
			id:      i,
			pool:    p,
			backend: backend,
			calibs:  calibs.Clone(),
			jobs:    make(chan request, 1),
		}
		p.wg.Add(1)
		go w.open()
	}

	p.wg.Add(1)
	go p.dispatch(workers)

	select {
	case <-p.ready:
		return p, nil
	case err := <-p.initErr:
		p.Close()
		return nil, err
	case <-ctx.Done():
		p.Close()
		return nil, ctx.Err()
	}
}

// NumUnits returns the number of decodable units in the source.
func (p *Pool) NumUnits() int { return p.numUnits }

// Request asks for a unit decode and returns the channel its Result will be
// delivered on. The channel is buffered; the caller may abandon it.
func (p *Pool) Request(ctx context.Context, unitIndex int) <-chan Result {
	res := make(chan Result, 1)
	if unitIndex < 0 || unitIndex >= p.numUnits {
		res <- Result{UnitIndex: unitIndex, Err: fmt.Errorf("unitpool: unit %d out of range [0,%d)", unitIndex, p.numUnits)}
		return res
	}
	select {
	case p.requests <- request{unitIndex: unitIndex, result: res}:
	case <-p.done:
		res <- Result{UnitIndex: unitIndex, Err: ErrPoolClosed}
	case <-ctx.Done():
		res <- Result{UnitIndex: unitIndex, Err: ctx.Err()}
	}
	return res
}

// Close tears the pool down. Queued requests and requests assigned to a
// worker but not yet started are rejected with ErrPoolClosed; a decode
// already in progress still delivers its buffered result, which the caller
// is free to ignore. Every Request channel receives exactly one value.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.done)
		p.cancel()
	})
	p.wg.Wait()
}

// dispatch is the scheduler loop: it pairs queued requests with idle workers
// in FIFO order and tracks worker readiness. Workers observe the done channel
// themselves, so shutdown here only needs to reject the queue.
func (p *Pool) dispatch(workers int) {
	defer p.wg.Done()

	var pending []request
	var idleWorkers []*worker
	readySignalled := false
	failedOpens := 0

	defer func() {
		for _, req := range pending {
			req.result <- Result{UnitIndex: req.unitIndex, Err: ErrPoolClosed}
		}
		// Only now may workers drain jobs assigned but never picked up.
		close(p.dispatchDone)
	}()

	for {
		select {
		case <-p.done:
			return

		case w := <-p.idle:
			if !readySignalled {
				readySignalled = true
				close(p.ready)
			}
			if len(pending) > 0 {
				w.jobs <- pending[0]
				pending = pending[1:]
			} else {
				idleWorkers = append(idleWorkers, w)
			}

		case err := <-p.openErrs:
			failedOpens++
			monitoring.Logf("[unitpool] worker failed to open source: %v", err)
			if failedOpens == workers {
				p.initErr <- fmt.Errorf("unitpool: no worker could open the source: %w", err)
				return
			}

		case req := <-p.requests:
			if len(idleWorkers) > 0 {
				w := idleWorkers[len(idleWorkers)-1]
				idleWorkers = idleWorkers[:len(idleWorkers)-1]
				w.jobs <- req
			} else {
				pending = append(pending, req)
			}
		}
	}
}
