package icm20602

import "math"

// LowPassFilter2p is a second-order Butterworth low-pass filter in
// direct form 2, one instance per axis. A cutoff of zero or below makes
// the filter a pass-through.
type LowPassFilter2p struct {
	cutoffFreq float64
	a1, a2     float64
	b0, b1, b2 float64
	delay1     float64
	delay2     float64
}

// NewLowPassFilter2p returns a filter configured for the given sample
// rate and cutoff, both in Hz.
func NewLowPassFilter2p(sampleFreq, cutoffFreq float64) *LowPassFilter2p {
	f := &LowPassFilter2p{}
	f.SetCutoffFrequency(sampleFreq, cutoffFreq)
	return f
}

// SetCutoffFrequency recomputes the filter coefficients. The delay
// elements are intentionally left alone so a running filter does not
// glitch when reconfigured.
func (f *LowPassFilter2p) SetCutoffFrequency(sampleFreq, cutoffFreq float64) {
	f.cutoffFreq = cutoffFreq
	if cutoffFreq <= 0 {
		return
	}
	fr := sampleFreq / cutoffFreq
	ohm := math.Tan(math.Pi / fr)
	c := 1.0 + 2.0*math.Cos(math.Pi/4.0)*ohm + ohm*ohm
	f.b0 = ohm * ohm / c
	f.b1 = 2.0 * f.b0
	f.b2 = f.b0
	f.a1 = 2.0 * (ohm*ohm - 1.0) / c
	f.a2 = (1.0 - 2.0*math.Cos(math.Pi/4.0)*ohm + ohm*ohm) / c
}

// CutoffFrequency returns the configured cutoff in Hz.
func (f *LowPassFilter2p) CutoffFrequency() float64 {
	return f.cutoffFreq
}

// Apply runs one sample through the filter and returns the filtered
// value.
func (f *LowPassFilter2p) Apply(sample float64) float64 {
	if f.cutoffFreq <= 0 {
		// no filtering
		return sample
	}
	delay0 := sample - f.delay1*f.a1 - f.delay2*f.a2
	if math.IsNaN(delay0) || math.IsInf(delay0, 0) {
		// don't allow bad values to propagate via the filter
		delay0 = sample
	}
	output := delay0*f.b0 + f.delay1*f.b1 + f.delay2*f.b2
	f.delay2 = f.delay1
	f.delay1 = delay0
	return output
}

// Reset sets the filter state to the given value and returns it, useful
// for priming the filter at startup.
func (f *LowPassFilter2p) Reset(sample float64) float64 {
	dval := sample / (f.b0 + f.b1 + f.b2)
	f.delay1 = dval
	f.delay2 = dval
	return f.Apply(sample)
}
