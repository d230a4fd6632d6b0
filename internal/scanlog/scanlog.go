// Package scanlog reads and writes the columnar sensor-log container.
//
// A dataset is a directory: a JSON header carrying the dataset-wide tables
// (master frame-timestamp index, per-sensor calibrations, poses, detections)
// and one compressed chunk file per row-group unit under units/. Each unit is
// a gzip stream of gob-encoded rows; decompression is the expensive step, so
// units are the granularity of parallel decode.
package scanlog

import (
	"fmt"

	"github.com/banshee-data/scanreplay/internal/scan"
)

// FormatVersion identifies the container layout.
const FormatVersion = "1.0"

// HeaderFile is the name of the dataset header within the dataset directory.
const HeaderFile = "header.json"

// DefaultFramesPerUnit is the unit rotation threshold used by the writer
// when none is configured.
const DefaultFramesPerUnit = 50

// Header is the dataset-wide metadata. Everything except the row data lives
// here: the one-row-per-frame master index and the annotation tables are
// always fully loaded, only units are decoded lazily.
type Header struct {
	Version       string              `json:"version"`
	DatasetID     string              `json:"dataset_id"`
	CreatedNs     int64               `json:"created_ns"`
	FramesPerUnit int                 `json:"frames_per_unit"`
	NumUnits      int                 `json:"num_units"`
	Timestamps    []int64             `json:"timestamps"`
	Calibrations  []CalibrationRecord `json:"calibrations"`
	Poses         []Pose              `json:"poses,omitempty"`
	Detections    []Detection         `json:"detections,omitempty"`
}

// CalibrationRecord is the serialised form of a sensor calibration.
type CalibrationRecord struct {
	SensorID         int         `json:"sensor_id"`
	Extrinsic        [16]float64 `json:"extrinsic"`
	BeamInclinations []float64   `json:"beam_inclinations,omitempty"`
	MinInclination   float64     `json:"min_inclination"`
	MaxInclination   float64     `json:"max_inclination"`
}

// ToCalibration converts the record into the conversion model.
func (r CalibrationRecord) ToCalibration() scan.Calibration {
	return scan.Calibration{
		SensorID:       r.SensorID,
		Extrinsic:      r.Extrinsic,
		Beams:          r.BeamInclinations,
		MinInclination: r.MinInclination,
		MaxInclination: r.MaxInclination,
	}
}

// Pose is the vehicle pose for one frame timestamp (row-major 4x4,
// vehicle frame -> global frame).
type Pose struct {
	Timestamp int64       `json:"timestamp"`
	Transform [16]float64 `json:"transform"`
}

// Detection is one labelled 3D box for a frame timestamp, in vehicle frame.
type Detection struct {
	Timestamp int64   `json:"timestamp"`
	Label     string  `json:"label"`
	CenterX   float64 `json:"cx"`
	CenterY   float64 `json:"cy"`
	CenterZ   float64 `json:"cz"`
	Length    float64 `json:"length"`
	Width     float64 `json:"width"`
	Height    float64 `json:"height"`
	Heading   float64 `json:"heading"`
}

// rowRecord is the gob wire form of one sensor row inside a unit chunk.
type rowRecord struct {
	TimestampNs int64
	SensorID    int
	Height      int
	Width       int
	Values      []float32
}

func unitFileName(unitIndex int) string {
	return fmt.Sprintf("unit_%04d.sl.gz", unitIndex)
}
