package icm20602

import "fmt"

// Gyro is the gyroscope facet of an ICM20602. It shares the physical
// device, the measurement pipeline and the health monitor with the
// accelerometer; only calibration, filtering and self-test are
// per-facet. The gyro range is fixed at 2000 deg/s in this design.
type Gyro struct {
	d *ICM20602
}

// RangeDPS returns the gyroscope full-scale range in deg/s.
func (g *Gyro) RangeDPS() int {
	return 2000
}

// SetLowPass reconfigures the low-pass cutoff for the gyro axes, in
// Hz: the shared on-chip DLPF moves to the nearest band and the
// software filters take the exact cutoff. Zero disables software
// filtering.
func (g *Gyro) SetLowPass(cutoffHz float64) error {
	if cutoffHz < 0 {
		return fmt.Errorf("%w: negative cutoff %v", ErrConfigRejected, cutoffHz)
	}
	d := g.d
	d.mu.Lock()
	defer d.mu.Unlock()
	d.setDLPFLocked(uint16(cutoffHz))
	d.gyroFilterX.SetCutoffFrequency(float64(d.sampleRate), cutoffHz)
	d.gyroFilterY.SetCutoffFrequency(float64(d.sampleRate), cutoffHz)
	d.gyroFilterZ.SetCutoffFrequency(float64(d.sampleRate), cutoffHz)
	return nil
}

// LowPass returns the software gyro cutoff in Hz.
func (g *Gyro) LowPass() float64 {
	g.d.mu.Lock()
	defer g.d.mu.Unlock()
	return g.d.gyroFilterX.CutoffFrequency()
}

// SetCalibration installs a gyroscope calibration. Unlike the accel
// half there is no plausibility gate; gyro offsets are legitimately
// near zero after a good calibration.
func (g *Gyro) SetCalibration(c AxisCalibration) {
	g.d.mu.Lock()
	defer g.d.mu.Unlock()
	g.d.gyroCal = c
}

// Calibration returns a copy of the active gyroscope calibration.
func (g *Gyro) Calibration() AxisCalibration {
	g.d.mu.Lock()
	defer g.d.mu.Unlock()
	return g.d.gyroCal
}
