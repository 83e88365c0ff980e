package icm20602

import "time"

// Vector3 is a measurement triple in sensor body frame.
type Vector3 [3]float64

func (v Vector3) add(o Vector3) Vector3 {
	return Vector3{v[0] + o[0], v[1] + o[1], v[2] + o[2]}
}

func (v Vector3) scale(s float64) Vector3 {
	return Vector3{v[0] * s, v[1] * s, v[2] * s}
}

func cross(a, b Vector3) Vector3 {
	return Vector3{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

// Integrator accumulates filtered samples into a delta value (delta
// velocity for the accel half, delta angle for the gyro half) and flushes
// on a fixed time interval, decoupling the publication rate from the
// sample rate. The gyro integrator applies a coning correction to the
// accumulated angle.
type Integrator struct {
	resetInterval time.Duration
	coning        bool

	alpha      Vector3 // accumulated integral
	lastVal    Vector3
	lastTime   time.Time
	integralDT time.Duration
}

// NewIntegrator returns an integrator that flushes every resetInterval.
func NewIntegrator(resetInterval time.Duration, coning bool) *Integrator {
	return &Integrator{resetInterval: resetInterval, coning: coning}
}

// Put accumulates one sample taken at time t. When the accumulated
// duration reaches the reset interval it returns the integral, the
// duration it covers and ready=true, and starts a fresh accumulation.
// The accumulated duration is monotonic and zero immediately after each
// flush.
func (i *Integrator) Put(t time.Time, val Vector3) (integral Vector3, dt time.Duration, ready bool) {
	if i.lastTime.IsZero() {
		// first sample only primes the trapezoid
		i.lastTime = t
		i.lastVal = val
		return Vector3{}, 0, false
	}

	step := t.Sub(i.lastTime)
	if step <= 0 {
		return Vector3{}, 0, false
	}
	dts := step.Seconds()

	// trapezoidal integration
	delta := i.lastVal.add(val).scale(dts * 0.5)
	if i.coning {
		// second-order coning correction (Miller form): accounts for
		// rotation of the integration axis within the step.
		delta = delta.add(cross(i.lastVal, val).scale(dts * dts / 12.0))
	}

	i.alpha = i.alpha.add(delta)
	i.integralDT += step
	i.lastTime = t
	i.lastVal = val

	if i.integralDT < i.resetInterval {
		return Vector3{}, 0, false
	}

	integral = i.alpha
	dt = i.integralDT
	i.alpha = Vector3{}
	i.integralDT = 0
	return integral, dt, true
}

// Reset discards the running accumulation, e.g. across a sensor reset.
func (i *Integrator) Reset() {
	i.alpha = Vector3{}
	i.integralDT = 0
	i.lastTime = time.Time{}
	i.lastVal = Vector3{}
}
