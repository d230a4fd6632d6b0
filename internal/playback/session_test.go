package playback

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/scanreplay/internal/scan"
	"github.com/banshee-data/scanreplay/internal/testutil"
	"github.com/banshee-data/scanreplay/internal/unitpool"
)

// fakeOpener serves canned rows and tracks how often each unit is read, so
// tests can assert the at-most-once decode guarantee.
type fakeOpener struct {
	units [][]unitpool.RawRow
	reads []atomic.Int32

	// failures[u] counts down injected read errors for unit u.
	failures map[int]*atomic.Int32

	// gateUnit reads block on gate until it is closed; -1 gates nothing.
	gateUnit int
	gate     chan struct{}
}

func newFakeOpener(units [][]unitpool.RawRow) *fakeOpener {
	return &fakeOpener{
		units:    units,
		reads:    make([]atomic.Int32, len(units)),
		failures: make(map[int]*atomic.Int32),
		gateUnit: -1,
	}
}

func (o *fakeOpener) failNext(unitIndex int, times int32) {
	var n atomic.Int32
	n.Store(times)
	o.failures[unitIndex] = &n
}

func (o *fakeOpener) NumUnits() int { return len(o.units) }

func (o *fakeOpener) OpenSource() (unitpool.Source, error) {
	return &fakeSource{o: o}, nil
}

type fakeSource struct {
	o *fakeOpener
}

func (s *fakeSource) ReadUnit(ctx context.Context, unitIndex int) ([]unitpool.RawRow, error) {
	s.o.reads[unitIndex].Add(1)
	if unitIndex == s.o.gateUnit {
		select {
		case <-s.o.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if rem := s.o.failures[unitIndex]; rem != nil && rem.Add(-1) >= 0 {
		return nil, errors.New("injected read failure")
	}
	return s.o.units[unitIndex], nil
}

func (s *fakeSource) Close() error { return nil }

func testScan(t *testing.T) *scan.RangeScan {
	t.Helper()
	// 1x2 image, pixel channels [range intensity elongation validity].
	data := []float32{
		5, 0.5, 0.1, 1,
		7, 0.25, 0.2, 1,
	}
	rs, err := scan.NewRangeScan(1, 1, 2, data)
	require.NoError(t, err)
	return rs
}

func testCalibs(t *testing.T) *scan.CalibrationSet {
	t.Helper()
	set, err := scan.NewCalibrationSet([]scan.Calibration{{
		SensorID:       1,
		Extrinsic:      testutil.IdentityExtrinsic(),
		MinInclination: -0.1,
		MaxInclination: 0.1,
	}})
	require.NoError(t, err)
	return set
}

// fixedUnits builds numUnits units of framesPerUnit single-sensor frames
// each, along with the matching master index.
func fixedUnits(t *testing.T, numUnits, framesPerUnit int) ([][]unitpool.RawRow, []int64) {
	t.Helper()
	var timestamps []int64
	units := make([][]unitpool.RawRow, numUnits)
	ts := int64(1_000)
	for u := 0; u < numUnits; u++ {
		for f := 0; f < framesPerUnit; f++ {
			units[u] = append(units[u], unitpool.RawRow{
				Timestamp: ts, SensorID: 1, Scan: testScan(t),
			})
			timestamps = append(timestamps, ts)
			ts += 100
		}
	}
	return units, timestamps
}

func newTestSession(t *testing.T, opener *fakeOpener, timestamps []int64) *Session {
	t.Helper()
	pool, err := unitpool.New(context.Background(), opener, testCalibs(t), unitpool.Options{Workers: 2})
	require.NoError(t, err)
	s, err := NewSession(context.Background(), Config{Pool: pool, Timestamps: timestamps})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestSessionEagerLoadsFirstUnits(t *testing.T) {
	units, timestamps := fixedUnits(t, 4, 2)
	opener := newFakeOpener(units)
	s := newTestSession(t, opener, timestamps)

	// First two units are viewable immediately, nothing else was touched.
	require.NotNil(t, s.Frame(0))
	assert.Greater(t, s.Frame(0).Cloud.Count, 0)
	require.NotNil(t, s.Frame(3))
	assert.Nil(t, s.Frame(4))

	assert.Equal(t, int32(1), opener.reads[0].Load())
	assert.Equal(t, int32(1), opener.reads[1].Load())
	assert.Equal(t, int32(0), opener.reads[2].Load())
	assert.Equal(t, 3, s.Frontier())
}

func TestEnsureUnitDecodesAtMostOnce(t *testing.T) {
	units, timestamps := fixedUnits(t, 4, 2)
	opener := newFakeOpener(units)
	s := newTestSession(t, opener, timestamps)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.EnsureUnit(context.Background(), 3))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), opener.reads[3].Load(), "concurrent requests share one decode")

	// A loaded unit is never reprocessed.
	require.NoError(t, s.EnsureUnit(context.Background(), 3))
	assert.Equal(t, int32(1), opener.reads[3].Load())
}

func TestFailedUnitIsRetryable(t *testing.T) {
	units, timestamps := fixedUnits(t, 4, 2)
	opener := newFakeOpener(units)
	opener.failNext(2, 1)
	s := newTestSession(t, opener, timestamps)

	err := s.EnsureUnit(context.Background(), 2)
	require.Error(t, err)
	assert.Nil(t, s.Frame(4))

	// The failure reverted the unit, so a second attempt decodes it.
	require.NoError(t, s.EnsureUnit(context.Background(), 2))
	require.NotNil(t, s.Frame(4))
	assert.Equal(t, int32(2), opener.reads[2].Load())
}

func TestStartPrefetchFillsCache(t *testing.T) {
	units, timestamps := fixedUnits(t, 5, 3)
	opener := newFakeOpener(units)
	s := newTestSession(t, opener, timestamps)

	s.StartPrefetch(context.Background())
	waitFor(t, func() bool { return s.CachedFrames() == len(timestamps) }, "prefetch never completed")

	assert.Equal(t, len(timestamps)-1, s.Frontier())
	for u := range units {
		assert.Equal(t, int32(1), opener.reads[u].Load(), "unit %d", u)
	}

	// A second prefetch pass finds everything loaded and decodes nothing.
	s.StartPrefetch(context.Background())
	time.Sleep(20 * time.Millisecond)
	for u := range units {
		assert.Equal(t, int32(1), opener.reads[u].Load(), "unit %d after second pass", u)
	}
}

func TestResetDiscardsInFlightResults(t *testing.T) {
	units, timestamps := fixedUnits(t, 4, 2)
	opener := newFakeOpener(units)
	opener.gateUnit = 2
	opener.gate = make(chan struct{})
	s := newTestSession(t, opener, timestamps)

	errCh := make(chan error, 1)
	go func() { errCh <- s.EnsureUnit(context.Background(), 2) }()
	waitFor(t, func() bool { return opener.reads[2].Load() == 1 }, "decode never started")

	s.Reset()
	close(opener.gate)

	err := <-errCh
	assert.ErrorIs(t, err, ErrSessionReset)

	// The stale result must not resurface in the cleared cache.
	assert.Equal(t, 0, s.CachedFrames())
	assert.Nil(t, s.Frame(0))
	assert.Equal(t, -1, s.Frontier())

	// Everything is decodable again from scratch.
	require.NoError(t, s.EnsureUnit(context.Background(), 0))
	require.NotNil(t, s.Frame(0))
}

// A unit finishing its load while Reset runs must never end up marked
// loaded with its frames wiped: EnsureUnit returning nil implies the unit's
// frames are servable. Stressed because the interleaving window is narrow.
func TestResetKeepsLoadedUnitsServable(t *testing.T) {
	units, timestamps := fixedUnits(t, 2, 2)
	s := newTestSession(t, newFakeOpener(units), timestamps)

	for i := 0; i < 300; i++ {
		done := make(chan struct{})
		go func() {
			defer close(done)
			s.EnsureUnit(context.Background(), 0)
		}()
		s.Reset()
		<-done

		require.NoError(t, s.EnsureUnit(context.Background(), 0), "round %d", i)
		require.NotNil(t, s.Frame(0), "round %d: unit 0 loaded but frame 0 missing", i)
		s.Reset()
	}
}

func TestSetCurrentNotifiesWhenFrameLands(t *testing.T) {
	units, timestamps := fixedUnits(t, 4, 2)
	opener := newFakeOpener(units)
	s := newTestSession(t, opener, timestamps)

	landed := make(chan int, 1)
	s.OnFrameAvailable(func(frameIndex int) { landed <- frameIndex })

	// Frame 6 lives in unit 3, which is not loaded yet.
	require.Nil(t, s.SetCurrent(6))
	require.NoError(t, s.EnsureUnit(context.Background(), 3))

	select {
	case idx := <-landed:
		assert.Equal(t, 6, idx)
	case <-time.After(time.Second):
		t.Fatal("frame-available callback never fired")
	}
	require.NotNil(t, s.SetCurrent(6))
}

func TestSessionRejectsBadConfig(t *testing.T) {
	units, timestamps := fixedUnits(t, 2, 2)

	_, err := NewSession(context.Background(), Config{Timestamps: timestamps})
	assert.Error(t, err)

	pool, err := unitpool.New(context.Background(), newFakeOpener(units), testCalibs(t), unitpool.Options{Workers: 1})
	require.NoError(t, err)
	_, err = NewSession(context.Background(), Config{Pool: pool, Timestamps: []int64{5, 5}})
	assert.Error(t, err, "non-ascending frame index")
	pool.Close()
}

func TestEnsureUnitOutOfRange(t *testing.T) {
	units, timestamps := fixedUnits(t, 2, 2)
	s := newTestSession(t, newFakeOpener(units), timestamps)

	assert.Error(t, s.EnsureUnit(context.Background(), -1))
	assert.Error(t, s.EnsureUnit(context.Background(), 2))
}
