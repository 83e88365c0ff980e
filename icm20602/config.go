package icm20602

import (
	"fmt"
	"math"
)

// SetAccelRange selects the smallest supported accelerometer full-scale
// range that covers maxG. Requests above 16 g clamp to 16 g rather than
// being rejected.
func (d *ICM20602) SetAccelRange(maxG int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.setAccelRangeLocked(maxG)
}

func (d *ICM20602) setAccelRangeLocked(maxG int) {
	var (
		afsSel  byte
		lsbPerG float64
		rangeG  float64
	)
	switch {
	case maxG > 8:
		afsSel, lsbPerG, rangeG = 3, 2048, 16
	case maxG > 4:
		afsSel, lsbPerG, rangeG = 2, 4096, 8
	case maxG > 2:
		afsSel, lsbPerG, rangeG = 1, 8192, 4
	default:
		afsSel, lsbPerG, rangeG = 0, 16384, 2
	}

	d.writeCheckedReg(RegAccelConfig, afsSel<<3)
	d.accelRangeScale = OneG / lsbPerG
	d.accelRangeMS2 = rangeG * OneG
}

// AccelRange returns the selected accelerometer full-scale range in g.
func (d *ICM20602) AccelRange() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int(math.Round(d.accelRangeMS2 / OneG))
}

// SetSampleRate programs the on-chip sample rate divider for the
// requested rate in Hz. The divider is an integer against a 1 kHz base,
// so the achieved rate generally differs from the request; read it back
// with SampleRate rather than assuming the request was met. The usable
// range is 5 Hz to 1 kHz. A rate of 0 selects the default.
func (d *ICM20602) SetSampleRate(hz int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.setSampleRateLocked(hz)
}

func (d *ICM20602) setSampleRateLocked(hz int) {
	if hz == 0 {
		hz = DefaultSampleRate
	}
	div := 1000 / hz
	if div > maxSampleDivider {
		div = maxSampleDivider
	}
	if div < 1 {
		div = 1
	}
	d.writeCheckedReg(RegSampleRateDiv, byte(div-1))
	d.sampleRate = 1000 / div
}

// SampleRate returns the achieved on-chip sample rate in Hz.
func (d *ICM20602) SampleRate() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sampleRate
}

// setDLPFLocked maps a cutoff in Hz onto the nearest on-chip digital
// low-pass filter band at or above it. Zero, or anything above the
// filter's top band, disables the hardware filter.
func (d *ICM20602) setDLPFLocked(cutoffHz uint16) {
	var filter byte
	switch {
	case cutoffHz == 0:
		filter = BitsDLPF4000HzNoLPF
	case cutoffHz <= 5:
		filter = BitsDLPF5Hz
	case cutoffHz <= 10:
		filter = BitsDLPF10Hz
	case cutoffHz <= 20:
		filter = BitsDLPF20Hz
	case cutoffHz <= 42:
		filter = BitsDLPF42Hz
	case cutoffHz <= 98:
		filter = BitsDLPF98Hz
	case cutoffHz <= 188:
		filter = BitsDLPF188Hz
	default:
		filter = BitsDLPF4000HzNoLPF
	}
	d.writeCheckedReg(RegConfig, filter)
}

// SetAccelLowPass reconfigures the low-pass cutoff for the
// accelerometer axes, in Hz: the on-chip DLPF moves to the nearest
// band and the software filters take the exact cutoff. Zero disables
// software filtering. The hardware filter is shared with the gyro
// half; the last cutoff set wins there.
func (d *ICM20602) SetAccelLowPass(cutoffHz float64) error {
	if cutoffHz < 0 {
		return fmt.Errorf("%w: negative cutoff %v", ErrConfigRejected, cutoffHz)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.setDLPFLocked(uint16(cutoffHz))
	d.accelFilterX.SetCutoffFrequency(float64(d.sampleRate), cutoffHz)
	d.accelFilterY.SetCutoffFrequency(float64(d.sampleRate), cutoffHz)
	d.accelFilterZ.SetCutoffFrequency(float64(d.sampleRate), cutoffHz)
	return nil
}

// AccelLowPass returns the software accelerometer cutoff in Hz.
func (d *ICM20602) AccelLowPass() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.accelFilterX.CutoffFrequency()
}

// SetAccelCalibration installs an accelerometer calibration after a
// plausibility check: the three scale factors are each expected near
// 1.0, so their sum must lie in (2, 4). Implausible models are rejected
// and the current calibration kept.
func (d *ICM20602) SetAccelCalibration(c AxisCalibration) error {
	sum := c.XScale + c.YScale + c.ZScale
	if sum <= 2.0 || sum >= 4.0 {
		return fmt.Errorf("%w: accel scale sum %v implausible", ErrConfigRejected, sum)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.accelCal = c
	return nil
}

// AccelCalibration returns a copy of the active accelerometer
// calibration.
func (d *ICM20602) AccelCalibration() AxisCalibration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.accelCal
}
