package scan

import (
	"fmt"
	"math"

	"github.com/banshee-data/scanreplay/internal/monitoring"
)

// angleTables holds the per-row and per-column trig values for one
// (shape, calibration) pair. Precomputing these avoids re-evaluating
// sin/cos for every pixel; it has no semantic effect on the output.
type angleTables struct {
	height, width int
	rowSin        []float32
	rowCos        []float32
	colSin        []float32
	colCos        []float32
}

func buildAngleTables(height, width int, calib Calibration) (*angleTables, error) {
	incl, err := calib.RowInclinations(height)
	if err != nil {
		return nil, err
	}
	t := &angleTables{
		height: height,
		width:  width,
		rowSin: make([]float32, height),
		rowCos: make([]float32, height),
		colSin: make([]float32, width),
		colCos: make([]float32, width),
	}
	for row, a := range incl {
		sin, cos := math.Sincos(a)
		t.rowSin[row] = float32(sin)
		t.rowCos[row] = float32(cos)
	}
	corr := calib.AzimuthCorrection()
	for col := 0; col < width; col++ {
		ratio := (float64(width) - float64(col) - 0.5) / float64(width)
		az := (ratio*2-1)*math.Pi - corr
		sin, cos := math.Sincos(az)
		t.colSin[col] = float32(sin)
		t.colCos[col] = float32(cos)
	}
	debugf("angle tables %dx%d: inclination [%.4f, %.4f] azimuth correction %.4f",
		height, width, incl[len(incl)-1], incl[0], corr)
	return t, nil
}

// affine extracts the 3x4 rotation+translation block of a row-major 4x4
// extrinsic as float32 for the inner loop.
func affine(extrinsic [16]float64) [12]float32 {
	var m [12]float32
	for i := 0; i < 12; i++ {
		m[i] = float32(extrinsic[i])
	}
	return m
}

// Convert projects a range scan into a vehicle-frame point cloud using the
// sequential backend. Only pixels with range > 0 are emitted, in pixel-scan
// order (row-major).
func Convert(scan *RangeScan, calib Calibration) (*PointCloud, error) {
	if scan == nil {
		return nil, fmt.Errorf("convert: nil scan")
	}
	tables, err := buildAngleTables(scan.Height, scan.Width, calib)
	if err != nil {
		return nil, fmt.Errorf("convert sensor %d: %w", scan.SensorID, err)
	}
	return convertSequential(scan, calib, tables), nil
}

// convertSequential is the shared inner conversion; tables must match the
// scan's shape.
func convertSequential(scan *RangeScan, calib Calibration, tables *angleTables) *PointCloud {
	m := affine(calib.Extrinsic)
	out := NewPointCloud(scan.Pixels())
	for row := 0; row < scan.Height; row++ {
		sinIncl := tables.rowSin[row]
		cosIncl := tables.rowCos[row]
		for col := 0; col < scan.Width; col++ {
			r := scan.at(row, col, ChannelRange)
			if r <= 0 {
				continue
			}
			// Spherical -> Cartesian in the sensor frame.
			x := r * cosIncl * tables.colCos[col]
			y := r * cosIncl * tables.colSin[col]
			z := r * sinIncl
			// Affine into the vehicle frame.
			vx := m[0]*x + m[1]*y + m[2]*z + m[3]
			vy := m[4]*x + m[5]*y + m[6]*z + m[7]
			vz := m[8]*x + m[9]*y + m[10]*z + m[11]
			out.Append(vx, vy, vz,
				scan.at(row, col, ChannelIntensity),
				r,
				scan.at(row, col, ChannelElongation))
		}
	}
	return out
}

// ConvertAll converts one frame's scans across all sensors with the given
// backend and concatenates the results. A scan whose sensor has no
// calibration is skipped with a diagnostic rather than failing the frame.
// The per-sensor breakdown is returned alongside the merged cloud.
func ConvertAll(scans []*RangeScan, calibs *CalibrationSet, backend Backend) (*PointCloud, map[int]*PointCloud, error) {
	perSensor := make(map[int]*PointCloud, len(scans))
	clouds := make([]*PointCloud, 0, len(scans))
	for _, s := range scans {
		calib, ok := calibs.Get(s.SensorID)
		if !ok {
			monitoring.Logf("[scan] no calibration for sensor %d; skipping its scan", s.SensorID)
			continue
		}
		cloud, err := backend.Convert(s, calib)
		if err != nil {
			return nil, nil, fmt.Errorf("convert sensor %d: %w", s.SensorID, err)
		}
		perSensor[s.SensorID] = cloud
		clouds = append(clouds, cloud)
	}
	return Merge(clouds...), perSensor, nil
}
