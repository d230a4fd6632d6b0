package scan

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// PointStride is the number of scalars per point record:
// x, y, z, intensity, range, elongation.
const PointStride = 6

// PointCloud is a tightly packed buffer of vehicle-frame points.
// Invariant: len(Data) == Count*PointStride.
type PointCloud struct {
	Count int
	Data  []float32
}

// NewPointCloud returns an empty cloud with capacity for n points.
func NewPointCloud(n int) *PointCloud {
	return &PointCloud{Data: make([]float32, 0, n*PointStride)}
}

// Append adds one point record.
func (p *PointCloud) Append(x, y, z, intensity, rng, elongation float32) {
	p.Data = append(p.Data, x, y, z, intensity, rng, elongation)
	p.Count++
}

// XYZ returns the coordinates of point i.
func (p *PointCloud) XYZ(i int) (x, y, z float32) {
	base := i * PointStride
	return p.Data[base], p.Data[base+1], p.Data[base+2]
}

// Bounds returns the axis-aligned bounding box of the cloud. For an empty
// cloud both corners are zero.
func (p *PointCloud) Bounds() (min, max [3]float64) {
	if p.Count == 0 {
		return min, max
	}
	for a := 0; a < 3; a++ {
		min[a] = math.Inf(1)
		max[a] = math.Inf(-1)
	}
	for i := 0; i < p.Count; i++ {
		base := i * PointStride
		for a := 0; a < 3; a++ {
			v := float64(p.Data[base+a])
			if v < min[a] {
				min[a] = v
			}
			if v > max[a] {
				max[a] = v
			}
		}
	}
	return min, max
}

// IntensitySum returns the sum of the intensity channel across all points.
func (p *PointCloud) IntensitySum() float64 {
	vals := make([]float64, p.Count)
	for i := 0; i < p.Count; i++ {
		vals[i] = float64(p.Data[i*PointStride+3])
	}
	return floats.Sum(vals)
}

// Merge concatenates clouds in argument order. The merged count is the sum of
// the inputs' counts; no deduplication or reprojection is performed.
func Merge(clouds ...*PointCloud) *PointCloud {
	total := 0
	for _, c := range clouds {
		if c != nil {
			total += c.Count
		}
	}
	out := NewPointCloud(total)
	for _, c := range clouds {
		if c == nil || c.Count == 0 {
			continue
		}
		out.Data = append(out.Data, c.Data...)
		out.Count += c.Count
	}
	return out
}
