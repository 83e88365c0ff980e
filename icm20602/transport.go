package icm20602

import (
	"fmt"

	"github.com/kidoman/embd"
	_ "github.com/kidoman/embd/host/all"
	_ "github.com/kidoman/embd/host/rpi"
)

// BusSpeed selects the SPI clock used for a transfer. The ICM-20602 only
// supports high clock rates on the sensor-data and interrupt-status
// registers; configuration registers need the low rate, which seems to be
// a propagation-delay requirement for changing sensor configuration.
type BusSpeed int

const (
	LowSpeed  BusSpeed = iota // configuration registers, 1 MHz
	HighSpeed                 // sensor data registers, 10 MHz
)

const (
	lowSpeedHz  = 1000000
	highSpeedHz = 10000000

	dirRead = 0x80
)

// Transport is the register-oriented bus the driver talks through. All
// calls are synchronous and bounded in duration.
type Transport interface {
	// ReadReg reads a single register at the given speed.
	ReadReg(reg byte, speed BusSpeed) (byte, error)
	// ReadFrame reads len(buf) bytes in one transaction starting at reg.
	ReadFrame(reg byte, buf []byte, speed BusSpeed) error
	// WriteReg writes a single register. Writes always run at low speed.
	WriteReg(reg byte, value byte) error
	Close() error
}

// spiTransport drives the sensor over SPI via embd. embd fixes the clock
// per bus handle, so two handles are held open: a slow one for
// configuration traffic and a fast one for data reads.
type spiTransport struct {
	low  embd.SPIBus
	high embd.SPIBus
}

// NewSPITransport opens the SPI channel the sensor is attached to.
func NewSPITransport(channel byte) (Transport, error) {
	if err := embd.InitSPI(); err != nil {
		return nil, fmt.Errorf("icm20602: couldn't init SPI: %v", err)
	}
	t := &spiTransport{
		low:  embd.NewSPIBus(embd.SPIMode3, channel, lowSpeedHz, 8, 0),
		high: embd.NewSPIBus(embd.SPIMode3, channel, highSpeedHz, 8, 0),
	}
	return t, nil
}

func (t *spiTransport) bus(speed BusSpeed) embd.SPIBus {
	if speed == HighSpeed {
		return t.high
	}
	return t.low
}

func (t *spiTransport) ReadReg(reg byte, speed BusSpeed) (byte, error) {
	data := []byte{reg | dirRead, 0}
	if err := t.bus(speed).TransferAndReceiveData(data); err != nil {
		return 0, fmt.Errorf("icm20602: error reading register %02x: %v", reg, err)
	}
	return data[1], nil
}

func (t *spiTransport) ReadFrame(reg byte, buf []byte, speed BusSpeed) error {
	data := make([]byte, len(buf)+1)
	data[0] = reg | dirRead
	if err := t.bus(speed).TransferAndReceiveData(data); err != nil {
		return fmt.Errorf("icm20602: error reading frame at %02x: %v", reg, err)
	}
	copy(buf, data[1:])
	return nil
}

func (t *spiTransport) WriteReg(reg byte, value byte) error {
	data := []byte{reg, value}
	if err := t.low.TransferAndReceiveData(data); err != nil {
		return fmt.Errorf("icm20602: error writing %02x to register %02x: %v", value, reg, err)
	}
	return nil
}

func (t *spiTransport) Close() error {
	if err := t.low.Close(); err != nil {
		return err
	}
	if err := t.high.Close(); err != nil {
		return err
	}
	return embd.CloseSPI()
}
