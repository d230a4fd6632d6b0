package scanlog

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/banshee-data/scanreplay/internal/scan"
)

// SynthOptions configures synthetic dataset generation.
type SynthOptions struct {
	Frames        int
	Sensors       int
	Height        int
	Width         int
	FramesPerUnit int
	Seed          int64
	// StartTimestamp and TimestampStepNs control the master index; steps
	// default to 100ms (10 Hz capture).
	StartTimestamp  int64
	TimestampStepNs int64
	DatasetID       string
}

// Synthesize writes a deterministic synthetic dataset: spaced sensors with
// yawed extrinsics, plausible range returns with invalid pixels, a vehicle
// pose advancing along X, and a handful of detections per frame.
func Synthesize(dir string, opts SynthOptions) error {
	if opts.Frames <= 0 || opts.Sensors <= 0 {
		return fmt.Errorf("scanlog: synthesize requires frames and sensors > 0")
	}
	if opts.Height <= 0 {
		opts.Height = 8
	}
	if opts.Width <= 0 {
		opts.Width = 32
	}
	if opts.TimestampStepNs <= 0 {
		opts.TimestampStepNs = 100_000_000
	}
	if opts.StartTimestamp <= 0 {
		opts.StartTimestamp = 1_000_000_000
	}

	rng := rand.New(rand.NewSource(opts.Seed))

	calibs := make([]CalibrationRecord, 0, opts.Sensors)
	for i := 0; i < opts.Sensors; i++ {
		yaw := 2 * math.Pi * float64(i) / float64(opts.Sensors)
		c, s := math.Cos(yaw), math.Sin(yaw)
		calibs = append(calibs, CalibrationRecord{
			SensorID: i + 1,
			Extrinsic: [16]float64{
				c, -s, 0, 1.5 * c,
				s, c, 0, 1.5 * s,
				0, 0, 1, 2.0,
				0, 0, 0, 1,
			},
			MinInclination: -0.31,
			MaxInclination: 0.1,
		})
	}

	w, err := NewWriter(dir, calibs, WriterOptions{
		DatasetID:     opts.DatasetID,
		FramesPerUnit: opts.FramesPerUnit,
	})
	if err != nil {
		return err
	}

	for frame := 0; frame < opts.Frames; frame++ {
		ts := opts.StartTimestamp + int64(frame)*opts.TimestampStepNs
		scans := make([]*scan.RangeScan, 0, opts.Sensors)
		for sensor := 1; sensor <= opts.Sensors; sensor++ {
			scans = append(scans, synthScan(rng, sensor, opts.Height, opts.Width))
		}

		x := 2.5 * float64(frame)
		pose := &Pose{Transform: [16]float64{
			1, 0, 0, x,
			0, 1, 0, 0,
			0, 0, 1, 0,
			0, 0, 0, 1,
		}}

		var dets []Detection
		for i := 0; i < 1+rng.Intn(3); i++ {
			dets = append(dets, Detection{
				Label:   "vehicle",
				CenterX: rng.Float64()*40 - 20,
				CenterY: rng.Float64()*20 - 10,
				CenterZ: 0.8,
				Length:  4.5, Width: 1.9, Height: 1.6,
				Heading: rng.Float64() * 2 * math.Pi,
			})
		}

		if err := w.AppendFrame(ts, scans, pose, dets); err != nil {
			w.Close()
			return err
		}
	}
	return w.Close()
}

func synthScan(rng *rand.Rand, sensorID, height, width int) *scan.RangeScan {
	data := make([]float32, height*width*scan.ScanChannels)
	for i := 0; i < height*width; i++ {
		r := float32(rng.Float64()*70 + 2)
		if rng.Float64() < 0.15 {
			r = 0 // dropout
		}
		data[i*scan.ScanChannels+scan.ChannelRange] = r
		data[i*scan.ScanChannels+scan.ChannelIntensity] = float32(rng.Float64())
		data[i*scan.ScanChannels+scan.ChannelElongation] = float32(rng.Float64() * 0.2)
		if r > 0 {
			data[i*scan.ScanChannels+scan.ChannelValidity] = 1
		}
	}
	s, err := scan.NewRangeScan(sensorID, height, width, data)
	if err != nil {
		// Shapes here are constructed; a failure is a bug in this generator.
		panic(err)
	}
	return s
}
