package scan

import (
	"math"
	"strings"
	"testing"

	"github.com/banshee-data/scanreplay/internal/monitoring"
	"github.com/banshee-data/scanreplay/internal/testutil"
)

// synthScan builds a scan from a range value per pixel; intensity is the
// pixel's scan-order index and elongation is zero.
func synthScan(t *testing.T, sensorID, height, width int, ranges []float32) *RangeScan {
	t.Helper()
	if len(ranges) != height*width {
		t.Fatalf("synthScan: %d ranges for %dx%d", len(ranges), height, width)
	}
	data := make([]float32, height*width*ScanChannels)
	for i, r := range ranges {
		data[i*ScanChannels+ChannelRange] = r
		data[i*ScanChannels+ChannelIntensity] = float32(i)
		data[i*ScanChannels+ChannelValidity] = 1
	}
	s, err := NewRangeScan(sensorID, height, width, data)
	testutil.AssertNoError(t, err)
	return s
}

// Identity calibration, one pixel at inclination 0 and azimuth 0: the point
// must land on the vehicle X axis at the measured range.
func TestConvertIdentityRoundTrip(t *testing.T) {
	scan := synthScan(t, 1, 1, 1, []float32{5})
	calib := Calibration{SensorID: 1, Extrinsic: testutil.IdentityExtrinsic()}

	pc, err := Convert(scan, calib)
	testutil.AssertNoError(t, err)
	if pc.Count != 1 {
		t.Fatalf("Count = %d, want 1", pc.Count)
	}
	x, y, z := pc.XYZ(0)
	testutil.AssertNear(t, float64(x), 5, 1e-5)
	testutil.AssertNear(t, float64(y), 0, 1e-5)
	testutil.AssertNear(t, float64(z), 0, 1e-5)
}

// A yawed sensor's azimuth correction must cancel its yaw: the zero-azimuth
// beam still lands on the vehicle X axis, offset by the translation.
func TestConvertAzimuthCorrectionCancelsYaw(t *testing.T) {
	scan := synthScan(t, 2, 1, 1, []float32{5})
	calib := Calibration{SensorID: 2, Extrinsic: testutil.YawExtrinsic(math.Pi/2, 1, 2, 0.5)}

	pc, err := Convert(scan, calib)
	testutil.AssertNoError(t, err)
	if pc.Count != 1 {
		t.Fatalf("Count = %d, want 1", pc.Count)
	}
	x, y, z := pc.XYZ(0)
	testutil.AssertNear(t, float64(x), 6, 1e-5)
	testutil.AssertNear(t, float64(y), 2, 1e-5)
	testutil.AssertNear(t, float64(z), 0.5, 1e-5)
}

// Pixels with range <= 0 are dropped; survivors appear in pixel-scan order.
func TestConvertFiltersInvalidPixels(t *testing.T) {
	scan := synthScan(t, 1, 2, 3, []float32{5.0, -1, 0, 10.0, 3.0, -1})
	calib := Calibration{SensorID: 1, Extrinsic: testutil.IdentityExtrinsic()}

	pc, err := Convert(scan, calib)
	testutil.AssertNoError(t, err)
	if pc.Count != 3 {
		t.Fatalf("Count = %d, want 3", pc.Count)
	}
	for i, wantRange := range []float32{5, 10, 3} {
		if got := pc.Data[i*PointStride+4]; got != wantRange {
			t.Errorf("point %d range = %g, want %g", i, got, wantRange)
		}
	}
}

func TestConvertExplicitBeamTable(t *testing.T) {
	// Two-row scan with an ascending beam table: the top row gets the max
	// inclination, so its point is above the horizontal plane.
	scan := synthScan(t, 1, 2, 1, []float32{4, 4})
	calib := Calibration{
		SensorID:  1,
		Extrinsic: testutil.IdentityExtrinsic(),
		Beams:     []float64{-0.2, 0.4},
	}

	pc, err := Convert(scan, calib)
	testutil.AssertNoError(t, err)
	if pc.Count != 2 {
		t.Fatalf("Count = %d, want 2", pc.Count)
	}
	_, _, zTop := pc.XYZ(0)
	_, _, zBottom := pc.XYZ(1)
	testutil.AssertNear(t, float64(zTop), 4*math.Sin(0.4), 1e-5)
	testutil.AssertNear(t, float64(zBottom), 4*math.Sin(-0.2), 1e-5)
}

func TestConvertBeamTableMismatchFails(t *testing.T) {
	scan := synthScan(t, 1, 3, 1, []float32{1, 2, 3})
	calib := Calibration{SensorID: 1, Extrinsic: testutil.IdentityExtrinsic(), Beams: []float64{-0.1, 0.1}}
	_, err := Convert(scan, calib)
	testutil.AssertError(t, err)
}

func TestConvertAllSkipsUncalibratedSensor(t *testing.T) {
	var logged []string
	orig := monitoring.Logf
	monitoring.SetLogger(func(format string, v ...interface{}) {
		logged = append(logged, format)
	})
	defer monitoring.SetLogger(orig)

	calibs, err := NewCalibrationSet([]Calibration{{SensorID: 1, Extrinsic: testutil.IdentityExtrinsic()}})
	testutil.AssertNoError(t, err)

	scans := []*RangeScan{
		synthScan(t, 1, 1, 2, []float32{5, 6}),
		synthScan(t, 9, 1, 2, []float32{7, 8}), // sensor 9 has no calibration
	}
	merged, perSensor, err := ConvertAll(scans, calibs, SequentialBackend{})
	testutil.AssertNoError(t, err)

	if merged.Count != 2 {
		t.Errorf("merged count = %d, want 2 (uncalibrated sensor skipped)", merged.Count)
	}
	if _, ok := perSensor[9]; ok {
		t.Error("per-sensor breakdown should not contain the skipped sensor")
	}
	found := false
	for _, msg := range logged {
		if strings.Contains(msg, "no calibration") {
			found = true
		}
	}
	if !found {
		t.Error("expected a diagnostic for the missing calibration")
	}
}

func TestConvertAllMergeCountsAcrossSensors(t *testing.T) {
	calibs, err := NewCalibrationSet([]Calibration{
		{SensorID: 1, Extrinsic: testutil.IdentityExtrinsic()},
		{SensorID: 2, Extrinsic: testutil.YawExtrinsic(0.5, 1, 0, 0)},
	})
	testutil.AssertNoError(t, err)

	scans := []*RangeScan{
		synthScan(t, 1, 2, 2, []float32{1, 0, 2, 3}),  // 3 valid
		synthScan(t, 2, 1, 4, []float32{4, 5, -1, 6}), // 3 valid
	}
	merged, perSensor, err := ConvertAll(scans, calibs, SequentialBackend{})
	testutil.AssertNoError(t, err)

	if merged.Count != perSensor[1].Count+perSensor[2].Count {
		t.Errorf("merged count %d != sum of per-sensor counts %d+%d",
			merged.Count, perSensor[1].Count, perSensor[2].Count)
	}
	if merged.Count != 6 {
		t.Errorf("merged count = %d, want 6", merged.Count)
	}
}

func TestDebugLoggerCapturesConversionDiagnostics(t *testing.T) {
	var buf strings.Builder
	SetDebugLogger(&buf)
	defer SetDebugLogger(nil)

	scan := synthScan(t, 1, 2, 4, []float32{1, 2, 3, 4, 5, 6, 7, 8})
	calib := Calibration{SensorID: 1, Extrinsic: testutil.IdentityExtrinsic()}

	_, err := Convert(scan, calib)
	testutil.AssertNoError(t, err)
	if !strings.Contains(buf.String(), "angle tables 2x4") {
		t.Errorf("debug output missing table diagnostics: %q", buf.String())
	}

	kb := NewKernelBackend(KernelOptions{Lanes: 2})
	_, err = kb.Convert(scan, calib)
	testutil.AssertNoError(t, err)
	if !strings.Contains(buf.String(), "kernel sensor 1") {
		t.Errorf("debug output missing kernel diagnostics: %q", buf.String())
	}

	// Disabled logger goes back to emitting nothing.
	SetDebugLogger(nil)
	before := buf.Len()
	_, err = Convert(scan, calib)
	testutil.AssertNoError(t, err)
	if buf.Len() != before {
		t.Error("debug output written while logger disabled")
	}
}
