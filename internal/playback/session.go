// Package playback orchestrates unit decoding into a frame cache that a
// viewer can scrub through. A Session eagerly loads the front of the
// dataset, prefetches the rest in the background, and hands out frames by
// index without ever blocking the presentation path.
package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/banshee-data/scanreplay/internal/monitoring"
	"github.com/banshee-data/scanreplay/internal/telemetry"
	"github.com/banshee-data/scanreplay/internal/unitpool"
)

// ErrSessionReset is delivered to waiters whose unit load was abandoned by
// a Reset.
var ErrSessionReset = errors.New("playback: session reset")

// ErrSessionClosed rejects operations after Close.
var ErrSessionClosed = errors.New("playback: session closed")

type unitState int

const (
	unitUnseen unitState = iota
	unitInFlight
	unitLoaded
)

// Config wires a Session together.
type Config struct {
	// Pool decodes units. The Session takes ownership and closes it.
	Pool *unitpool.Pool

	// Timestamps is the dataset's master frame index: frame i shows the
	// capture at Timestamps[i]. Must be strictly ascending.
	Timestamps []int64

	// Annotations optionally attaches poses and detections to frames.
	Annotations *AnnotationIndex

	// Telemetry, when non-nil, records per-unit timings as units land.
	Telemetry *telemetry.Store
}

// Session owns the frame cache and the unit state machine for one playback
// of a dataset.
type Session struct {
	ID string

	pool       *unitpool.Pool
	cache      *frameCache
	timestamps []int64
	tsIndex    map[int64]int
	ann        *AnnotationIndex
	store      *telemetry.Store

	mu      sync.Mutex
	states  []unitState
	waiters map[int][]chan error
	gen     int
	current int
	onAvail func(frameIndex int)
	closed  bool
}

// NewSession builds a session and synchronously awaits the first unit (and
// the second when the dataset has one) so frame 0 is viewable the moment
// the call returns. A failure to load unit 0 is fatal; a failure on unit 1
// is logged and left for prefetch to retry.
func NewSession(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.Pool == nil {
		return nil, errors.New("playback: nil pool")
	}
	if len(cfg.Timestamps) == 0 {
		return nil, errors.New("playback: empty frame index")
	}
	tsIndex := make(map[int64]int, len(cfg.Timestamps))
	for i, ts := range cfg.Timestamps {
		if i > 0 && ts <= cfg.Timestamps[i-1] {
			return nil, fmt.Errorf("playback: frame index not ascending at %d", i)
		}
		tsIndex[ts] = i
	}

	s := &Session{
		ID:         uuid.NewString(),
		pool:       cfg.Pool,
		cache:      newFrameCache(len(cfg.Timestamps)),
		timestamps: cfg.Timestamps,
		tsIndex:    tsIndex,
		ann:        cfg.Annotations,
		store:      cfg.Telemetry,
		states:     make([]unitState, cfg.Pool.NumUnits()),
		waiters:    make(map[int][]chan error),
	}

	if err := s.EnsureUnit(ctx, 0); err != nil {
		s.pool.Close()
		return nil, fmt.Errorf("playback: load first unit: %w", err)
	}
	if s.pool.NumUnits() > 1 {
		if err := s.EnsureUnit(ctx, 1); err != nil {
			monitoring.Logf("[playback] eager load of unit 1 failed (will retry): %v", err)
		}
	}
	return s, nil
}

// EnsureUnit blocks until the given unit is loaded into the cache, failed,
// or ctx expires. Concurrent calls for the same unit share a single pool
// request, and a unit that already loaded returns immediately without a
// second decode. A failed load reverts the unit so a later call retries it.
func (s *Session) EnsureUnit(ctx context.Context, unitIndex int) error {
	if unitIndex < 0 || unitIndex >= len(s.states) {
		return fmt.Errorf("playback: unit %d out of range", unitIndex)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	switch s.states[unitIndex] {
	case unitLoaded:
		s.mu.Unlock()
		return nil
	case unitInFlight:
		ch := make(chan error, 1)
		s.waiters[unitIndex] = append(s.waiters[unitIndex], ch)
		s.mu.Unlock()
		select {
		case err := <-ch:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.states[unitIndex] = unitInFlight
	gen := s.gen
	s.mu.Unlock()

	var res unitpool.Result
	select {
	case res = <-s.pool.Request(ctx, unitIndex):
	case <-ctx.Done():
		res = unitpool.Result{UnitIndex: unitIndex, Err: ctx.Err()}
	}
	return s.complete(unitIndex, gen, res)
}

// complete applies one pool result to the cache and the state machine,
// unless a Reset happened since the request was dispatched.
func (s *Session) complete(unitIndex, gen int, res unitpool.Result) error {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return ErrSessionReset
	}

	if res.Err != nil {
		s.states[unitIndex] = unitUnseen
		s.notifyLocked(unitIndex, res.Err)
		s.mu.Unlock()
		return res.Err
	}

	s.states[unitIndex] = unitLoaded
	points := 0
	sawCurrent := false
	for _, payload := range res.Frames {
		idx, ok := s.tsIndex[payload.Timestamp]
		if !ok {
			monitoring.Logf("[playback] unit %d carried unknown timestamp %d; dropping frame", unitIndex, payload.Timestamp)
			continue
		}
		f := &Frame{
			Index:        idx,
			Timestamp:    payload.Timestamp,
			Cloud:        payload.Cloud,
			PerSensor:    payload.PerSensor,
			Pose:         s.ann.PoseAt(payload.Timestamp),
			Detections:   s.ann.DetectionsAt(payload.Timestamp),
			DecodeNanos:  res.DecodeNanos,
			ConvertNanos: res.ConvertNanos,
		}
		if s.cache.put(f) {
			points += f.Cloud.Count
			if idx == s.current {
				sawCurrent = true
			}
		}
	}
	s.notifyLocked(unitIndex, nil)
	onAvail := s.onAvail
	current := s.current
	s.mu.Unlock()

	if sawCurrent && onAvail != nil {
		onAvail(current)
	}
	if s.store != nil {
		err := s.store.RecordUnit(telemetry.UnitTiming{
			SessionID:    s.ID,
			UnitIndex:    unitIndex,
			Frames:       len(res.Frames),
			Points:       points,
			DecodeNanos:  res.DecodeNanos,
			ConvertNanos: res.ConvertNanos,
		})
		if err != nil {
			monitoring.Logf("[playback] telemetry write failed: %v", err)
		}
	}
	return nil
}

// notifyLocked delivers err to everyone waiting on unitIndex. Caller holds
// s.mu.
func (s *Session) notifyLocked(unitIndex int, err error) {
	for _, ch := range s.waiters[unitIndex] {
		ch <- err
	}
	delete(s.waiters, unitIndex)
}

// StartPrefetch dispatches every not-yet-loaded unit to the pool without
// blocking the caller. Failed units are logged and remain retryable by a
// later StartPrefetch or EnsureUnit.
func (s *Session) StartPrefetch(ctx context.Context) {
	for u := 0; u < len(s.states); u++ {
		s.mu.Lock()
		skip := s.closed || s.states[u] != unitUnseen
		s.mu.Unlock()
		if skip {
			continue
		}
		go func(unitIndex int) {
			if err := s.EnsureUnit(ctx, unitIndex); err != nil {
				monitoring.Logf("[playback] prefetch of unit %d failed: %v", unitIndex, err)
			}
		}(u)
	}
}

// Frame returns the cached frame at index, or nil when it has not been
// decoded yet. It never triggers a decode.
func (s *Session) Frame(index int) *Frame {
	return s.cache.get(index)
}

// NumFrames returns the size of the master frame index.
func (s *Session) NumFrames() int { return len(s.timestamps) }

// NumUnits returns the dataset's unit count.
func (s *Session) NumUnits() int { return s.pool.NumUnits() }

// CachedFrames returns how many frames are currently cached.
func (s *Session) CachedFrames() int { return s.cache.len() }

// Frontier returns the highest frame index reachable without crossing a
// gap, or -1 when frame 0 is not cached.
func (s *Session) Frontier() int { return s.cache.frontier() }

// SetCurrent moves the playhead and returns the frame under it, or nil if
// that frame has not been decoded yet. When it later lands, the callback
// registered with OnFrameAvailable fires for it.
func (s *Session) SetCurrent(index int) *Frame {
	if index < 0 {
		index = 0
	}
	if max := len(s.timestamps) - 1; index > max {
		index = max
	}
	s.mu.Lock()
	s.current = index
	s.mu.Unlock()
	return s.cache.get(index)
}

// Current returns the playhead position.
func (s *Session) Current() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// OnFrameAvailable registers a callback fired when the frame under the
// playhead becomes available after having been requested while missing.
// The callback runs on the goroutine that loaded the unit and must not
// block.
func (s *Session) OnFrameAvailable(fn func(frameIndex int)) {
	s.mu.Lock()
	s.onAvail = fn
	s.mu.Unlock()
}

// Reset clears the cache and returns every unit to the unseen state.
// In-flight results from before the reset are discarded rather than
// resurrected into the cleared cache; their waiters get ErrSessionReset.
func (s *Session) Reset() {
	s.mu.Lock()
	s.gen++
	for i := range s.states {
		s.states[i] = unitUnseen
	}
	for unitIndex := range s.waiters {
		s.notifyLocked(unitIndex, ErrSessionReset)
	}
	s.current = 0
	// Wipe the cache before releasing the lock: a unit reloaded in between
	// would be marked loaded while its frames were about to be erased.
	s.cache.reset()
	s.mu.Unlock()
}

// Close shuts down the decode pool and rejects further loads.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for unitIndex := range s.waiters {
		s.notifyLocked(unitIndex, ErrSessionClosed)
	}
	s.mu.Unlock()
	s.pool.Close()
}
