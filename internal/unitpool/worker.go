package unitpool

import (
	"fmt"
	"time"

	"github.com/banshee-data/scanreplay/internal/scan"
)

// worker decodes units end-to-end on its own Source. It holds a private copy
// of the calibration set and shares nothing mutable with its siblings.
type worker struct {
	id      int
	pool    *Pool
	backend scan.Backend
	calibs  *scan.CalibrationSet
	src     Source
	jobs    chan request
}

// open acquires the worker's source handle and enters the job loop, or
// reports the open failure and exits.
func (w *worker) open() {
	defer w.pool.wg.Done()

	src, err := w.pool.opener.OpenSource()
	if err != nil {
		w.pool.openErrs <- fmt.Errorf("worker %d: %w", w.id, err)
		return
	}
	w.src = src
	defer w.src.Close()

	// First idle notification doubles as the readiness signal.
	w.pool.idle <- w
	w.run()
}

func (w *worker) run() {
	for {
		select {
		case <-w.pool.done:
			w.drainJobs()
			return
		case req := <-w.jobs:
			req.result <- w.process(req)
			w.pool.idle <- w
		}
	}
}

// drainJobs rejects any request the scheduler assigned to this worker that
// the select above never picked up. The scheduler may still be pairing idle
// workers with requests while shutdown races it, so the drain waits for the
// scheduler loop to exit before inspecting the buffer.
func (w *worker) drainJobs() {
	<-w.pool.dispatchDone
	for {
		select {
		case req := <-w.jobs:
			req.result <- Result{UnitIndex: req.unitIndex, Err: ErrPoolClosed}
		default:
			return
		}
	}
}

// process decodes one unit and converts each distinct timestamp it contains
// into a frame payload. Decode and convert are timed separately for
// diagnostics.
func (w *worker) process(req request) Result {
	res := Result{UnitIndex: req.unitIndex}

	decodeStart := time.Now()
	rows, err := w.src.ReadUnit(w.pool.ctx, req.unitIndex)
	if err != nil {
		res.Err = fmt.Errorf("decode unit %d: %w", req.unitIndex, err)
		return res
	}
	res.DecodeNanos = time.Since(decodeStart).Nanoseconds()

	convertStart := time.Now()
	frames, err := w.convertRows(rows)
	if err != nil {
		res.Err = fmt.Errorf("convert unit %d: %w", req.unitIndex, err)
		return res
	}
	res.ConvertNanos = time.Since(convertStart).Nanoseconds()
	res.Frames = frames
	return res
}

// convertRows groups the unit's rows by timestamp and runs the conversion
// once per group. Group order follows first appearance in the unit, but
// callers index frames by timestamp, not position.
func (w *worker) convertRows(rows []RawRow) ([]FramePayload, error) {
	byTimestamp := make(map[int64][]*scan.RangeScan)
	order := make([]int64, 0)
	for _, row := range rows {
		if _, seen := byTimestamp[row.Timestamp]; !seen {
			order = append(order, row.Timestamp)
		}
		byTimestamp[row.Timestamp] = append(byTimestamp[row.Timestamp], row.Scan)
	}

	frames := make([]FramePayload, 0, len(order))
	for _, ts := range order {
		merged, perSensor, err := scan.ConvertAll(byTimestamp[ts], w.calibs, w.backend)
		if err != nil {
			return nil, fmt.Errorf("timestamp %d: %w", ts, err)
		}
		frames = append(frames, FramePayload{Timestamp: ts, Cloud: merged, PerSensor: perSensor})
	}
	return frames, nil
}
