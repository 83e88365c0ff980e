package icm20602

import "testing"

func TestSelfTestDefaultCalibrationFails(t *testing.T) {
	d, ft, _, _ := newTestDriver(t)

	// give the sample counter something to count
	ft.frames = [][]byte{frame(1, 2, 3, 40, 4, 5, 6)}
	if _, _, err := d.Measure(); err != nil {
		t.Fatalf("tick: %v", err)
	}

	// offset 0 / scale 1 everywhere means nobody ever calibrated this
	// sensor; both halves must refuse to vouch for it
	if err := d.AccelSelfTest(); err == nil {
		t.Error("accel self test passed with default calibration")
	}
	if err := d.Gyro().SelfTest(); err == nil {
		t.Error("gyro self test passed with default calibration")
	}
	if err := d.SelfTest(); err == nil {
		t.Error("combined self test passed with default calibration")
	}
}

func TestSelfTestNoSamples(t *testing.T) {
	d, _, _, _ := newTestDriver(t)

	if err := d.AccelSelfTest(); err == nil {
		t.Error("accel self test passed without any measurement")
	}
	if err := d.Gyro().SelfTest(); err == nil {
		t.Error("gyro self test passed without any measurement")
	}
}

func TestSelfTestCalibratedPasses(t *testing.T) {
	d, ft, _, _ := newTestDriver(t)

	ft.frames = [][]byte{frame(1, 2, 3, 40, 4, 5, 6)}
	if _, _, err := d.Measure(); err != nil {
		t.Fatalf("tick: %v", err)
	}

	if err := d.SetAccelCalibration(AxisCalibration{
		XOffset: 0.12, XScale: 1.01,
		YOffset: -0.07, YScale: 0.99,
		ZOffset: 0.21, ZScale: 1.02,
	}); err != nil {
		t.Fatalf("SetAccelCalibration: %v", err)
	}
	d.Gyro().SetCalibration(AxisCalibration{
		XOffset: 0.005, XScale: 1,
		YOffset: -0.017, YScale: 1.02,
		ZOffset: 0.008, ZScale: 0.98,
	})

	if err := d.SelfTest(); err != nil {
		t.Errorf("self test failed on plausible calibration: %v", err)
	}
}

func TestGyroSelfTestSingleZeroOffset(t *testing.T) {
	d, ft, _, _ := newTestDriver(t)

	ft.frames = [][]byte{frame(1, 2, 3, 40, 4, 5, 6)}
	if _, _, err := d.Measure(); err != nil {
		t.Fatalf("tick: %v", err)
	}

	// one axis landing on exactly zero bias is a legitimate outcome of
	// a real calibration run
	d.Gyro().SetCalibration(AxisCalibration{
		XOffset: 0, XScale: 1,
		YOffset: 0.01, YScale: 1,
		ZOffset: -0.02, ZScale: 1,
	})
	if err := d.Gyro().SelfTest(); err != nil {
		t.Errorf("gyro self test failed with a single zero offset: %v", err)
	}

	// but all three at zero means uncalibrated
	d.Gyro().SetCalibration(AxisCalibration{XScale: 1, YScale: 1, ZScale: 1})
	if err := d.Gyro().SelfTest(); err == nil {
		t.Error("gyro self test passed with all offsets zero")
	}
}

func TestSelfTestImplausibleCalibration(t *testing.T) {
	d, ft, _, _ := newTestDriver(t)

	ft.frames = [][]byte{frame(1, 2, 3, 40, 4, 5, 6)}
	if _, _, err := d.Measure(); err != nil {
		t.Fatalf("tick: %v", err)
	}

	// gyro bias above 0.34 rad/s means a broken sensor, not a
	// calibration
	d.Gyro().SetCalibration(AxisCalibration{
		XOffset: 0.5, XScale: 1,
		YOffset: 0.01, YScale: 1,
		ZOffset: 0.01, ZScale: 1,
	})
	if err := d.Gyro().SelfTest(); err == nil {
		t.Error("gyro self test passed with 0.5 rad/s bias")
	}
}
