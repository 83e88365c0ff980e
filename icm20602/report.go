package icm20602

import (
	"errors"
	"time"
)

// Sentinel errors surfaced by the driver. Transient per-tick faults are
// absorbed into counters; only configuration-time errors are returned to
// the immediate caller.
var (
	// ErrBusFault marks a failed or implausible (all-zero) transfer.
	// It never triggers an implicit full reset: a reset costs tens of
	// milliseconds with the bus frozen, which is unacceptable recovery
	// latency mid-flight. The caller decides whether to retry.
	ErrBusFault = errors.New("icm20602: bus transfer fault")

	// ErrConfigRejected marks an out-of-bounds configuration request.
	// State is left unchanged.
	ErrConfigRejected = errors.New("icm20602: configuration rejected")

	// ErrNotDetected is returned when the WHO_AM_I probe fails.
	ErrNotDetected = errors.New("icm20602: sensor not detected")
)

// Clock supplies monotonic time for duplicate suppression, integrator
// flush timing and reset-wait deadlines.
type Clock interface {
	Now() time.Time
}

// Publisher receives ready measurement reports. Publication is
// fire-and-forget; the driver expects no acknowledgement.
type Publisher interface {
	PublishAccel(*AccelReport)
	PublishGyro(*GyroReport)
}

// AxisCalibration holds per-axis offset/scale calibration for one sensor
// half. Offsets are in physical units (m/s^2 or rad/s), scales are
// dimensionless and expected near 1.0.
type AxisCalibration struct {
	XOffset float64
	XScale  float64
	YOffset float64
	YScale  float64
	ZOffset float64
	ZScale  float64
}

// DefaultCalibration is the identity calibration (offset 0, scale 1).
func DefaultCalibration() AxisCalibration {
	return AxisCalibration{XScale: 1, YScale: 1, ZScale: 1}
}

// AccelReport is one published accelerometer measurement.
type AccelReport struct {
	Timestamp time.Time
	// ErrorCount is the cumulative sum of bad transfers and bad
	// register reads, letting downstream consumers decide how much to
	// trust this sensor.
	ErrorCount uint64

	XRaw, YRaw, ZRaw int16
	X, Y, Z          float64 // filtered, m/s^2

	XIntegral, YIntegral, ZIntegral float64 // delta velocity, m/s
	IntegralDT                      time.Duration

	Scaling  float64 // raw LSB to m/s^2
	RangeMS2 float64 // full scale, m/s^2

	TemperatureRaw int16
	Temperature    float64 // deg C
}

// GyroReport is one published gyroscope measurement.
type GyroReport struct {
	Timestamp  time.Time
	ErrorCount uint64

	XRaw, YRaw, ZRaw int16
	X, Y, Z          float64 // filtered, rad/s

	XIntegral, YIntegral, ZIntegral float64 // delta angle, rad
	IntegralDT                      time.Duration

	Scaling   float64 // raw LSB to rad/s
	RangeRadS float64 // full scale, rad/s

	TemperatureRaw int16
	Temperature    float64 // deg C
}

// HealthSnapshot is a point-in-time view of the driver's fault counters
// and register-monitor state, for diagnostics.
type HealthSnapshot struct {
	SampleCount   uint64
	GoodTransfers uint64
	BadTransfers  uint64
	BadRegisters  uint64
	Duplicates    uint64
	ResetRetries  uint64

	RegisterWait uint8
	CheckedNext  uint8
	// Mismatches lists watched registers whose live value currently
	// disagrees with the shadow copy.
	Mismatches []RegisterMismatch

	LastTemperature float64
}

// RegisterMismatch records one live-vs-shadow register disagreement.
type RegisterMismatch struct {
	Register byte
	Value    byte
	Expected byte
}
