package scanlog

import (
	"compress/gzip"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/scanreplay/internal/scan"
)

// WriterOptions configures a dataset writer.
type WriterOptions struct {
	// DatasetID names the dataset; a random id is generated when empty.
	DatasetID string
	// FramesPerUnit is the unit rotation threshold (default 50).
	FramesPerUnit int
}

// Writer builds a scanlog dataset directory frame by frame. Frames must be
// appended in ascending timestamp order; the writer rotates to a new unit
// chunk every FramesPerUnit frames and finalises the header on Close.
type Writer struct {
	dir    string
	header Header

	chunk        *os.File
	gz           *gzip.Writer
	enc          *gob.Encoder
	framesInUnit int
	lastTs       int64
	closed       bool
}

// NewWriter creates the dataset directory structure and returns a writer.
func NewWriter(dir string, calibs []CalibrationRecord, opts WriterOptions) (*Writer, error) {
	if opts.FramesPerUnit <= 0 {
		opts.FramesPerUnit = DefaultFramesPerUnit
	}
	if opts.DatasetID == "" {
		opts.DatasetID = uuid.NewString()
	}
	if err := os.MkdirAll(filepath.Join(dir, "units"), 0o755); err != nil {
		return nil, fmt.Errorf("scanlog: create dataset directory: %w", err)
	}
	return &Writer{
		dir: dir,
		header: Header{
			Version:       FormatVersion,
			DatasetID:     opts.DatasetID,
			CreatedNs:     time.Now().UnixNano(),
			FramesPerUnit: opts.FramesPerUnit,
			Calibrations:  calibs,
		},
		lastTs: -1,
	}, nil
}

// AppendFrame writes one frame's rows and its annotations.
func (w *Writer) AppendFrame(timestamp int64, scans []*scan.RangeScan, pose *Pose, detections []Detection) error {
	if w.closed {
		return fmt.Errorf("scanlog: writer closed")
	}
	if timestamp <= w.lastTs {
		return fmt.Errorf("scanlog: timestamp %d not ascending (last %d)", timestamp, w.lastTs)
	}

	if w.framesInUnit == w.header.FramesPerUnit {
		if err := w.finishUnit(); err != nil {
			return err
		}
	}
	if w.chunk == nil {
		if err := w.startUnit(); err != nil {
			return err
		}
	}

	for _, s := range scans {
		rec := rowRecord{
			TimestampNs: timestamp,
			SensorID:    s.SensorID,
			Height:      s.Height,
			Width:       s.Width,
			Values:      s.Data,
		}
		if err := w.enc.Encode(rec); err != nil {
			return fmt.Errorf("scanlog: encode row: %w", err)
		}
	}

	w.header.Timestamps = append(w.header.Timestamps, timestamp)
	if pose != nil {
		p := *pose
		p.Timestamp = timestamp
		w.header.Poses = append(w.header.Poses, p)
	}
	for _, d := range detections {
		d.Timestamp = timestamp
		w.header.Detections = append(w.header.Detections, d)
	}

	w.framesInUnit++
	w.lastTs = timestamp
	return nil
}

func (w *Writer) startUnit() error {
	path := filepath.Join(w.dir, "units", unitFileName(w.header.NumUnits))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("scanlog: create unit chunk: %w", err)
	}
	w.chunk = f
	w.gz = gzip.NewWriter(f)
	w.enc = gob.NewEncoder(w.gz)
	w.framesInUnit = 0
	return nil
}

func (w *Writer) finishUnit() error {
	if w.chunk == nil {
		return nil
	}
	if err := w.gz.Close(); err != nil {
		return fmt.Errorf("scanlog: close unit gzip stream: %w", err)
	}
	if err := w.chunk.Close(); err != nil {
		return fmt.Errorf("scanlog: close unit chunk: %w", err)
	}
	w.chunk = nil
	w.gz = nil
	w.enc = nil
	w.header.NumUnits++
	return nil
}

// Close finalises the current unit and writes the dataset header.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.finishUnit(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(&w.header, "", "  ")
	if err != nil {
		return fmt.Errorf("scanlog: marshal header: %w", err)
	}
	if err := os.WriteFile(filepath.Join(w.dir, HeaderFile), data, 0o644); err != nil {
		return fmt.Errorf("scanlog: write header: %w", err)
	}
	return nil
}
