package scan

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// KernelOptions configures the parallel backend.
type KernelOptions struct {
	// Lanes is the number of parallel execution lanes. Zero selects
	// min(NumCPU, 8).
	Lanes int
}

// KernelBackend is the data-parallel implementation of range-image
// conversion: one independent unit of work per pixel row span, with a shared
// atomic output cursor performing stream compaction — each valid pixel claims
// the next free output slot. Point order is therefore unspecified; count,
// bounds and channel sums match the sequential backend.
//
// Inclination/azimuth tables are built once per (sensor, shape) and handed to
// the lanes as input buffers rather than recomputed per dispatch. Calibration
// is immutable for the life of a dataset, so the cache key is sound.
type KernelBackend struct {
	opts KernelOptions

	mu     sync.Mutex
	tables map[tableKey]*angleTables
}

type tableKey struct {
	sensorID int
	height   int
	width    int
}

// NewKernelBackend returns a kernel backend with the given options.
func NewKernelBackend(opts KernelOptions) *KernelBackend {
	return &KernelBackend{opts: opts, tables: make(map[tableKey]*angleTables)}
}

// Name implements Backend.
func (k *KernelBackend) Name() string { return "kernel" }

func (k *KernelBackend) tablesFor(scan *RangeScan, calib Calibration) (*angleTables, error) {
	key := tableKey{sensorID: scan.SensorID, height: scan.Height, width: scan.Width}
	k.mu.Lock()
	defer k.mu.Unlock()
	if t, ok := k.tables[key]; ok {
		return t, nil
	}
	t, err := buildAngleTables(scan.Height, scan.Width, calib)
	if err != nil {
		return nil, err
	}
	k.tables[key] = t
	return t, nil
}

// Convert implements Backend.
func (k *KernelBackend) Convert(scan *RangeScan, calib Calibration) (*PointCloud, error) {
	if scan == nil {
		return nil, fmt.Errorf("kernel convert: nil scan")
	}
	tables, err := k.tablesFor(scan, calib)
	if err != nil {
		return nil, fmt.Errorf("kernel convert sensor %d: %w", scan.SensorID, err)
	}

	dev := acquireDevice(k.opts.Lanes)
	m := affine(calib.Extrinsic)

	// Worst case every pixel is valid. Lanes write disjoint slots claimed
	// from the shared cursor, so the buffer needs no further coordination.
	out := make([]float32, scan.Pixels()*PointStride)
	var cursor atomic.Int64

	spans := rowSpans(scan.Height, dev.lanes)
	jobs := make([]func(), 0, len(spans))
	for _, sp := range spans {
		rowLo, rowHi := sp[0], sp[1]
		jobs = append(jobs, func() {
			for row := rowLo; row < rowHi; row++ {
				sinIncl := tables.rowSin[row]
				cosIncl := tables.rowCos[row]
				for col := 0; col < scan.Width; col++ {
					r := scan.at(row, col, ChannelRange)
					if r <= 0 {
						continue
					}
					x := r * cosIncl * tables.colCos[col]
					y := r * cosIncl * tables.colSin[col]
					z := r * sinIncl
					slot := cursor.Add(1) - 1
					base := int(slot) * PointStride
					out[base+0] = m[0]*x + m[1]*y + m[2]*z + m[3]
					out[base+1] = m[4]*x + m[5]*y + m[6]*z + m[7]
					out[base+2] = m[8]*x + m[9]*y + m[10]*z + m[11]
					out[base+3] = scan.at(row, col, ChannelIntensity)
					out[base+4] = r
					out[base+5] = scan.at(row, col, ChannelElongation)
				}
			}
		})
	}

	if err := dev.dispatch(jobs); err != nil {
		return nil, fmt.Errorf("kernel convert sensor %d: %w", scan.SensorID, err)
	}
	n := int(cursor.Load())
	debugf("kernel sensor %d: %d spans over %d lanes compacted %d/%d pixels",
		scan.SensorID, len(spans), dev.lanes, n, scan.Pixels())
	return &PointCloud{Count: n, Data: out[:n*PointStride]}, nil
}

// rowSpans splits [0, height) into at most lanes contiguous [lo, hi) spans.
func rowSpans(height, lanes int) [][2]int {
	if lanes > height {
		lanes = height
	}
	spans := make([][2]int, 0, lanes)
	base := height / lanes
	rem := height % lanes
	lo := 0
	for i := 0; i < lanes; i++ {
		hi := lo + base
		if i < rem {
			hi++
		}
		spans = append(spans, [2]int{lo, hi})
		lo = hi
	}
	return spans
}
