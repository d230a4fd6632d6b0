package scan

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Calibration holds the immutable per-sensor parameters needed to project a
// range image into the vehicle frame: the 4x4 row-major extrinsic transform
// (sensor->vehicle) and the beam-inclination model.
type Calibration struct {
	SensorID  int
	Extrinsic [16]float64

	// Beams is the explicit per-row inclination table in radians, ascending
	// min->max. When empty, inclinations are interpolated linearly between
	// MinInclination and MaxInclination.
	Beams          []float64
	MinInclination float64
	MaxInclination float64
}

// AzimuthCorrection returns the sensor's yaw relative to the vehicle X axis,
// extracted from the rotation block of the extrinsic.
func (c Calibration) AzimuthCorrection() float64 {
	return math.Atan2(c.Extrinsic[4], c.Extrinsic[0])
}

// Validate checks the calibration's structural invariants: a plausible sensor
// id, an approximately orthonormal rotation block, and an ascending beam table.
func (c Calibration) Validate() error {
	if c.SensorID <= 0 {
		return fmt.Errorf("calibration: invalid sensor id %d", c.SensorID)
	}

	r := mat.NewDense(3, 3, []float64{
		c.Extrinsic[0], c.Extrinsic[1], c.Extrinsic[2],
		c.Extrinsic[4], c.Extrinsic[5], c.Extrinsic[6],
		c.Extrinsic[8], c.Extrinsic[9], c.Extrinsic[10],
	})
	var rtr mat.Dense
	rtr.Mul(r.T(), r)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			want := 0.0
			if i == j {
				want = 1.0
			}
			if math.Abs(rtr.At(i, j)-want) > 1e-3 {
				return fmt.Errorf("calibration sensor %d: rotation block is not orthonormal (R^T R [%d,%d] = %.6f)",
					c.SensorID, i, j, rtr.At(i, j))
			}
		}
	}

	if len(c.Beams) > 0 {
		if !sort.Float64sAreSorted(c.Beams) {
			return fmt.Errorf("calibration sensor %d: beam inclinations must be ascending", c.SensorID)
		}
	} else if c.MinInclination > c.MaxInclination {
		return fmt.Errorf("calibration sensor %d: min inclination %.4f exceeds max %.4f",
			c.SensorID, c.MinInclination, c.MaxInclination)
	}
	return nil
}

// RowInclinations returns the per-row inclination angles for an image of the
// given height. Row 0 corresponds to the top of the image, i.e. the maximum
// angle, so an explicit ascending table is reversed. Without an explicit table
// the angles are interpolated from max (row 0) down to min (last row).
func (c Calibration) RowInclinations(height int) ([]float64, error) {
	if height <= 0 {
		return nil, fmt.Errorf("calibration sensor %d: invalid scan height %d", c.SensorID, height)
	}
	incl := make([]float64, height)
	if len(c.Beams) > 0 {
		if len(c.Beams) != height {
			return nil, fmt.Errorf("calibration sensor %d: beam table has %d entries, scan height is %d",
				c.SensorID, len(c.Beams), height)
		}
		for row := 0; row < height; row++ {
			incl[row] = c.Beams[height-1-row]
		}
		return incl, nil
	}
	if height == 1 {
		incl[0] = c.MaxInclination
		return incl, nil
	}
	span := c.MaxInclination - c.MinInclination
	for row := 0; row < height; row++ {
		t := float64(row) / float64(height-1)
		incl[row] = c.MaxInclination - t*span
	}
	return incl, nil
}

// CalibrationSet is an explicit sensor-id lookup over a dataset's
// calibrations. Absence of a sensor is a handled branch, not an error.
type CalibrationSet struct {
	bySensor map[int]Calibration
}

// NewCalibrationSet validates each calibration and builds the lookup.
// Duplicate sensor ids are rejected.
func NewCalibrationSet(calibs []Calibration) (*CalibrationSet, error) {
	set := &CalibrationSet{bySensor: make(map[int]Calibration, len(calibs))}
	for _, c := range calibs {
		if err := c.Validate(); err != nil {
			return nil, err
		}
		if _, dup := set.bySensor[c.SensorID]; dup {
			return nil, fmt.Errorf("duplicate calibration for sensor %d", c.SensorID)
		}
		set.bySensor[c.SensorID] = c
	}
	return set, nil
}

// Get returns the calibration for a sensor id and whether one exists.
func (s *CalibrationSet) Get(sensorID int) (Calibration, bool) {
	c, ok := s.bySensor[sensorID]
	return c, ok
}

// Sensors returns the calibrated sensor ids in ascending order.
func (s *CalibrationSet) Sensors() []int {
	ids := make([]int, 0, len(s.bySensor))
	for id := range s.bySensor {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Clone returns an independent copy of the set. Workers receive their own
// copy so calibration data never crosses goroutines by reference.
func (s *CalibrationSet) Clone() *CalibrationSet {
	out := &CalibrationSet{bySensor: make(map[int]Calibration, len(s.bySensor))}
	for id, c := range s.bySensor {
		if len(c.Beams) > 0 {
			beams := make([]float64, len(c.Beams))
			copy(beams, c.Beams)
			c.Beams = beams
		}
		out.bySensor[id] = c
	}
	return out
}

// Len returns the number of calibrated sensors.
func (s *CalibrationSet) Len() int { return len(s.bySensor) }
