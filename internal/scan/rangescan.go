package scan

import "fmt"

// Channel layout of a range image pixel.
const (
	ChannelRange      = 0
	ChannelIntensity  = 1
	ChannelElongation = 2
	ChannelValidity   = 3

	// ScanChannels is the number of scalar channels per pixel.
	ScanChannels = 4
)

// RangeScan is one sensor's spherical range image for one frame. The shape is
// validated once at construction; the converters index Data without
// re-checking invariants.
type RangeScan struct {
	SensorID int
	Height   int
	Width    int
	Data     []float32
}

// NewRangeScan validates shape against the flat buffer and returns the scan.
// A mismatched buffer is a caller contract violation and fails fast.
func NewRangeScan(sensorID, height, width int, data []float32) (*RangeScan, error) {
	if height <= 0 || width <= 0 {
		return nil, fmt.Errorf("range scan sensor %d: invalid shape %dx%d", sensorID, height, width)
	}
	if want := height * width * ScanChannels; len(data) != want {
		return nil, fmt.Errorf("range scan sensor %d: buffer has %d values, shape %dx%dx%d requires %d",
			sensorID, len(data), height, width, ScanChannels, want)
	}
	return &RangeScan{SensorID: sensorID, Height: height, Width: width, Data: data}, nil
}

// Pixels returns the number of pixels in the image.
func (s *RangeScan) Pixels() int { return s.Height * s.Width }

// at returns one channel of pixel (row, col).
func (s *RangeScan) at(row, col, channel int) float32 {
	return s.Data[(row*s.Width+col)*ScanChannels+channel]
}
