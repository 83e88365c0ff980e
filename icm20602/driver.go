// Package icm20602 is a driver for the InvenSense ICM-20602 6-axis
// inertial sensor on a register-oriented serial bus. It periodically
// pulls raw motion frames, rejects corrupted or duplicated data,
// converts to scaled, filtered and time-integrated measurements, and
// continuously verifies the sensor's configuration registers against
// shadow copies, recovering automatically when they are corrupted.
package icm20602

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

// timerReduction is how much faster than the sample period the tick
// loop runs. We sample slightly fast and throw away duplicates by
// comparing accelerometer values; the reduction is enough to cope with
// worst-case timing jitter from other timers, and prevents aliasing due
// to a beat between the host clock and the sensor's internal clock.
const timerReduction = 200 * time.Microsecond

// registerWaitCount is how many consecutive good transfers the pipeline
// must see after a register-corruption recovery before publication
// resumes. Guards against flapping on a marginal bus.
const registerWaitCount = 20

const (
	fullResetSettle  = 10 * time.Millisecond
	rewriteSettle    = 3 * time.Millisecond
	frameLen         = 15 // status + 3 accel + temp + 3 gyro, 16-bit BE
	resetTries       = 5
	maxSampleDivider = 200
)

// ICM20602 owns one physical sensor and exposes the accelerometer
// directly plus a gyroscope facet via Gyro(). All shared mutable state
// is guarded by mu: the periodic tick and any configuration call from
// another goroutine exclude each other for the duration of the register
// write.
type ICM20602 struct {
	transport Transport
	clock     Clock
	pub       Publisher
	rotation  Rotation
	bus       string // metric label

	gyro *Gyro

	mu sync.Mutex

	accelCal        AxisCalibration
	gyroCal         AxisCalibration
	accelRangeScale float64
	accelRangeMS2   float64
	gyroRangeScale  float64
	gyroRangeRadS   float64
	sampleRate      int

	accelFilterX *LowPassFilter2p
	accelFilterY *LowPassFilter2p
	accelFilterZ *LowPassFilter2p
	gyroFilterX  *LowPassFilter2p
	gyroFilterY  *LowPassFilter2p
	gyroFilterZ  *LowPassFilter2p

	accelInt *Integrator
	gyroInt  *Integrator

	checkedValues [numCheckedRegisters]byte
	checkedNext   uint8
	registerWait  uint8
	resetWait     time.Time

	lastAccel    [6]byte
	gotDuplicate bool

	// inFactoryTest suppresses measurement processing while a
	// deliberate fault is being injected, so induced errors never
	// reach downstream consumers.
	inFactoryTest atomic.Bool

	samples       uint64
	goodTransfers uint64
	badTransfers  uint64
	badRegisters  uint64
	duplicates    uint64
	resetRetries  uint64

	lastTemperature float64

	quit     chan struct{}
	interval time.Duration
}

// New probes the sensor on the given transport, resets it into the
// default configuration (1 kHz, 8 g, 2000 dps, 42 Hz DLPF) and returns
// the driver. pub may be nil if the caller only uses the Measure return
// values.
func New(transport Transport, clk Clock, pub Publisher, rotation Rotation, busLabel string) (*ICM20602, error) {
	d := &ICM20602{
		transport:  transport,
		clock:      clk,
		pub:        pub,
		rotation:   rotation,
		bus:        busLabel,
		accelCal:   DefaultCalibration(),
		gyroCal:    DefaultCalibration(),
		sampleRate: DefaultSampleRate,

		accelFilterX: NewLowPassFilter2p(DefaultSampleRate, DefaultFilterFreq),
		accelFilterY: NewLowPassFilter2p(DefaultSampleRate, DefaultFilterFreq),
		accelFilterZ: NewLowPassFilter2p(DefaultSampleRate, DefaultFilterFreq),
		gyroFilterX:  NewLowPassFilter2p(DefaultSampleRate, DefaultFilterFreq),
		gyroFilterY:  NewLowPassFilter2p(DefaultSampleRate, DefaultFilterFreq),
		gyroFilterZ:  NewLowPassFilter2p(DefaultSampleRate, DefaultFilterFreq),

		accelInt: NewIntegrator(time.Second/MaxOutputRate, false),
		gyroInt:  NewIntegrator(time.Second/MaxOutputRate, true),
	}
	d.gyro = &Gyro{d: d}

	if err := d.probe(); err != nil {
		return nil, err
	}
	if err := d.Reset(); err != nil {
		return nil, err
	}
	return d, nil
}

// Gyro returns the gyroscope facet of this sensor. Both facets share
// the one physical device and the one measurement pipeline.
func (d *ICM20602) Gyro() *Gyro {
	return d.gyro
}

func (d *ICM20602) probe() error {
	who, err := d.transport.ReadReg(RegWhoAmI, LowSpeed)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotDetected, err)
	}
	if who != WhoAmIValue {
		return fmt.Errorf("%w: WHO_AM_I %02x, want %02x", ErrNotDetected, who, WhoAmIValue)
	}
	return nil
}

// readReg reads a single register, logging and returning zero on a
// transport error. Matches the original driver's treatment of register
// reads as infallible-with-logging; frame reads are the fallible path.
func (d *ICM20602) readReg(reg byte, speed BusSpeed) byte {
	v, err := d.transport.ReadReg(reg, speed)
	if err != nil {
		log.Warnf("icm20602: register %02x read failed: %v", reg, err)
		return 0
	}
	return v
}

func (d *ICM20602) writeReg(reg byte, value byte) {
	if err := d.transport.WriteReg(reg, value); err != nil {
		log.Warnf("icm20602: register %02x write failed: %v", reg, err)
	}
}

// writeCheckedReg writes a configuration register and updates the
// shadow copy transactionally, so the health monitor never flags a
// write the driver itself just made.
func (d *ICM20602) writeCheckedReg(reg byte, value byte) {
	d.writeReg(reg, value)
	for i, r := range checkedRegisters {
		if r == reg {
			d.checkedValues[i] = value
		}
	}
}

// Reset resets the chip and reprograms the measurement configuration.
// Scale and offset calibration survive. The shadow array ends up holding
// exactly the values this sequence writes, in order, so early monitor
// ticks never see a false mismatch.
//
// The sequence holds the driver lock for its full duration, tens of
// milliseconds with the bus dedicated to it. That latency window is by
// design: a reset interrupted midway leaves the sensor in an
// inconsistent, hard-to-diagnose state.
func (d *ICM20602) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.resetLocked()
}

func (d *ICM20602) resetLocked() error {
	tries := resetTries
	for ; tries > 0; tries-- {
		d.writeReg(RegPwrMgmt1, BitHReset)
		// The chip starts up in sleep mode and can take a while to
		// come out of reset.
		time.Sleep(fullResetSettle)
		if d.readReg(RegPwrMgmt1, HighSpeed)&BitHReset != 0 {
			// reset bit never cleared; sensor is wedged
			break
		}

		// Wake up and auto-select the best available clock source.
		d.writeCheckedReg(RegPwrMgmt1, BitsBestClockPLL)
		time.Sleep(time.Millisecond)

		if d.readReg(RegPwrMgmt1, LowSpeed) == BitsBestClockPLL {
			break
		}
		d.resetRetries++
		metricResetRetries.With(prometheus.Labels{"bus": d.bus}).Inc()
		time.Sleep(2 * time.Millisecond)
	}

	if d.readReg(RegPwrMgmt1, LowSpeed) != BitsBestClockPLL {
		return fmt.Errorf("icm20602: reset failed after %d tries", resetTries)
	}
	time.Sleep(time.Millisecond)

	d.setSampleRateLocked(d.sampleRate)
	time.Sleep(time.Millisecond)

	d.setDLPFLocked(DefaultOnchipFilterFreq)
	time.Sleep(time.Millisecond)

	d.writeCheckedReg(RegGyroConfig, BitsFS2000DPS)
	time.Sleep(time.Millisecond)

	// 2000 deg/s = (2000/180)*pi rad/s at 16.4 LSB per deg/s.
	d.gyroRangeScale = 0.0174532 / 16.4
	d.gyroRangeRadS = 2000.0 / 180.0 * 3.14159265358979

	d.setAccelRangeLocked(DefaultAccelRange)
	time.Sleep(time.Millisecond)

	d.writeCheckedReg(RegIntEnable, BitDataReadyIntEn)
	time.Sleep(time.Millisecond)
	d.writeCheckedReg(RegIntPinCfg, BitIntAnyReadClear)
	time.Sleep(2 * time.Millisecond)

	return nil
}

// Start begins automatic measurement at the given tick interval. The
// loop actually runs timerReduction faster than requested; duplicate
// frames are detected and discarded by the pipeline. The tick and the
// register monitor run strictly serialized in one goroutine.
func (d *ICM20602) Start(interval time.Duration) error {
	if interval < time.Millisecond {
		return fmt.Errorf("%w: tick interval %v above maximum sane rate", ErrConfigRejected, interval)
	}
	d.Stop()

	d.mu.Lock()
	d.interval = interval
	// Re-tune the software filter banks for the new tick rate, keeping
	// the configured cutoffs.
	rate := 1.0 / interval.Seconds()
	d.accelFilterX.SetCutoffFrequency(rate, d.accelFilterX.CutoffFrequency())
	d.accelFilterY.SetCutoffFrequency(rate, d.accelFilterY.CutoffFrequency())
	d.accelFilterZ.SetCutoffFrequency(rate, d.accelFilterZ.CutoffFrequency())
	d.gyroFilterX.SetCutoffFrequency(rate, d.gyroFilterX.CutoffFrequency())
	d.gyroFilterY.SetCutoffFrequency(rate, d.gyroFilterY.CutoffFrequency())
	d.gyroFilterZ.SetCutoffFrequency(rate, d.gyroFilterZ.CutoffFrequency())
	quit := make(chan struct{})
	d.quit = quit
	d.mu.Unlock()

	go d.run(interval-timerReduction, quit)
	return nil
}

func (d *ICM20602) run(period time.Duration, quit chan struct{}) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, _, err := d.Measure(); err != nil {
				log.Debugf("icm20602: measure: %v", err)
			}
			d.CheckRegisters()
		case <-quit:
			return
		}
	}
}

// Stop halts automatic measurement and clears the duplicate-detection
// state.
func (d *ICM20602) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.quit != nil {
		close(d.quit)
		d.quit = nil
	}
	d.lastAccel = [6]byte{}
	d.gotDuplicate = false
}

// Close stops measurement and releases the transport.
func (d *ICM20602) Close() error {
	d.Stop()
	return d.transport.Close()
}
