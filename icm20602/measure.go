package icm20602

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/prometheus/client_golang/prometheus"
)

// Measure runs one pipeline tick: fetch a raw frame, validate it,
// convert to scaled and filtered measurements, and publish whichever
// halves have an integrator flush due. The returned reports are nil for
// halves with no flush this tick; most callers rely on the Publisher
// instead and ignore the return values.
func (d *ICM20602) Measure() (*AccelReport, *GyroReport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.measureLocked()
}

func (d *ICM20602) measureLocked() (*AccelReport, *GyroReport, error) {
	if d.inFactoryTest.Load() {
		// deliberate fault injection in progress
		return nil, nil, nil
	}
	now := d.clock.Now()
	if now.Before(d.resetWait) {
		// recovery settle window, leave the bus alone
		return nil, nil, nil
	}

	d.samples++
	metricSamples.With(prometheus.Labels{"bus": d.bus}).Inc()

	var buf [frameLen]byte
	if err := d.transport.ReadFrame(RegIntStatus, buf[:], HighSpeed); err != nil {
		d.badTransfers++
		metricBadTransfers.With(prometheus.Labels{"bus": d.bus}).Inc()
		return nil, nil, fmt.Errorf("%w: %v", ErrBusFault, err)
	}

	// Sampling slightly faster than the sensor produces data means the
	// accel words can repeat while the gyro is still fresh. Discard the
	// whole frame when the accel bytes repeat, but never two in a row,
	// so a genuinely static sensor still reports.
	if !d.gotDuplicate && bytes.Equal(buf[1:7], d.lastAccel[:]) {
		d.duplicates++
		metricDuplicates.With(prometheus.Labels{"bus": d.bus}).Inc()
		d.gotDuplicate = true
		return nil, nil, nil
	}
	d.gotDuplicate = false
	copy(d.lastAccel[:], buf[1:7])

	accelX := int16(binary.BigEndian.Uint16(buf[1:3]))
	accelY := int16(binary.BigEndian.Uint16(buf[3:5]))
	accelZ := int16(binary.BigEndian.Uint16(buf[5:7]))
	tempRaw := int16(binary.BigEndian.Uint16(buf[7:9]))
	gyroX := int16(binary.BigEndian.Uint16(buf[9:11]))
	gyroY := int16(binary.BigEndian.Uint16(buf[11:13]))
	gyroZ := int16(binary.BigEndian.Uint16(buf[13:15]))

	if accelX == 0 && accelY == 0 && accelZ == 0 && tempRaw == 0 &&
		gyroX == 0 && gyroY == 0 && gyroZ == 0 {
		// all zero data, almost certainly a wire fault
		d.badTransfers++
		metricBadTransfers.With(prometheus.Labels{"bus": d.bus}).Inc()
		return nil, nil, fmt.Errorf("%w: all-zero frame", ErrBusFault)
	}

	d.goodTransfers++
	metricGoodTransfers.With(prometheus.Labels{"bus": d.bus}).Inc()

	if d.registerWait > 0 {
		// The health monitor demanded a run of consecutive good
		// transfers before results resume; this tick counts toward it
		// but publishes nothing until the run completes.
		d.registerWait--
		if d.registerWait > 0 {
			return nil, nil, nil
		}
	}

	// Swap X/Y and negate the new Y to go from sensor frame to the
	// conventional body frame.
	accelX, accelY = accelY, negate16(accelX)
	gyroX, gyroY = gyroY, negate16(gyroX)

	errorCount := d.badTransfers + d.badRegisters

	temperature := float64(tempRaw)/326.8 + 25.0
	d.lastTemperature = temperature
	metricTemperature.With(prometheus.Labels{"bus": d.bus}).Set(temperature)

	ax, ay, az := d.rotation.Apply(float64(accelX), float64(accelY), float64(accelZ))
	accel := Vector3{
		(ax*d.accelRangeScale - d.accelCal.XOffset) * d.accelCal.XScale,
		(ay*d.accelRangeScale - d.accelCal.YOffset) * d.accelCal.YScale,
		(az*d.accelRangeScale - d.accelCal.ZOffset) * d.accelCal.ZScale,
	}
	accel[0] = d.accelFilterX.Apply(accel[0])
	accel[1] = d.accelFilterY.Apply(accel[1])
	accel[2] = d.accelFilterZ.Apply(accel[2])

	gx, gy, gz := d.rotation.Apply(float64(gyroX), float64(gyroY), float64(gyroZ))
	gyro := Vector3{
		(gx*d.gyroRangeScale - d.gyroCal.XOffset) * d.gyroCal.XScale,
		(gy*d.gyroRangeScale - d.gyroCal.YOffset) * d.gyroCal.YScale,
		(gz*d.gyroRangeScale - d.gyroCal.ZOffset) * d.gyroCal.ZScale,
	}
	gyro[0] = d.gyroFilterX.Apply(gyro[0])
	gyro[1] = d.gyroFilterY.Apply(gyro[1])
	gyro[2] = d.gyroFilterZ.Apply(gyro[2])

	accelInt, accelDT, accelNotify := d.accelInt.Put(now, accel)
	gyroInt, gyroDT, gyroNotify := d.gyroInt.Put(now, gyro)

	var arb *AccelReport
	if accelNotify {
		arb = &AccelReport{
			Timestamp:  now,
			ErrorCount: errorCount,

			XRaw: accelX,
			YRaw: accelY,
			ZRaw: accelZ,
			X:    accel[0],
			Y:    accel[1],
			Z:    accel[2],

			XIntegral:  accelInt[0],
			YIntegral:  accelInt[1],
			ZIntegral:  accelInt[2],
			IntegralDT: accelDT,

			Scaling:  d.accelRangeScale,
			RangeMS2: d.accelRangeMS2,

			TemperatureRaw: tempRaw,
			Temperature:    temperature,
		}
	}

	var grb *GyroReport
	if gyroNotify {
		grb = &GyroReport{
			Timestamp:  now,
			ErrorCount: errorCount,

			XRaw: gyroX,
			YRaw: gyroY,
			ZRaw: gyroZ,
			X:    gyro[0],
			Y:    gyro[1],
			Z:    gyro[2],

			XIntegral:  gyroInt[0],
			YIntegral:  gyroInt[1],
			ZIntegral:  gyroInt[2],
			IntegralDT: gyroDT,

			Scaling:   d.gyroRangeScale,
			RangeRadS: d.gyroRangeRadS,

			TemperatureRaw: tempRaw,
			Temperature:    temperature,
		}
	}

	if d.pub != nil {
		if arb != nil {
			d.pub.PublishAccel(arb)
		}
		if grb != nil {
			d.pub.PublishGyro(grb)
		}
	}
	return arb, grb, nil
}

// negate16 negates a raw axis value, saturating at the most-negative
// input: -32768 has no 16-bit negation, so it maps to 32767.
func negate16(v int16) int16 {
	if v == math.MinInt16 {
		return math.MaxInt16
	}
	return -v
}
