package icm20602

import (
	"encoding/binary"
	"errors"
	"testing"
	"time"
)

// fakeClock is a manually advanced Clock so tests control the reset-wait
// deadlines and integrator flush timing exactly.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2021, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.t = c.t.Add(d)
}

type regWrite struct {
	reg   byte
	value byte
}

// fakeTransport is an in-memory register file. Writing H_RESET to
// PWR_MGMT_1 completes instantly: the self-clearing reset bit reads back
// as zero.
type fakeTransport struct {
	regs       map[byte]byte
	frames     [][]byte
	frameErr   error
	writes     []regWrite
	frameReads []BusSpeed
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		regs: map[byte]byte{RegWhoAmI: WhoAmIValue},
	}
}

func (t *fakeTransport) ReadReg(reg byte, speed BusSpeed) (byte, error) {
	return t.regs[reg], nil
}

func (t *fakeTransport) ReadFrame(reg byte, buf []byte, speed BusSpeed) error {
	t.frameReads = append(t.frameReads, speed)
	if t.frameErr != nil {
		return t.frameErr
	}
	if len(t.frames) == 0 {
		return errors.New("no frame queued")
	}
	copy(buf, t.frames[0])
	if len(t.frames) > 1 {
		t.frames = t.frames[1:]
	}
	return nil
}

func (t *fakeTransport) WriteReg(reg byte, value byte) error {
	t.writes = append(t.writes, regWrite{reg, value})
	if reg == RegPwrMgmt1 && value&BitHReset != 0 {
		t.regs[reg] = 0
		return nil
	}
	t.regs[reg] = value
	return nil
}

func (t *fakeTransport) Close() error {
	return nil
}

// countWrites returns how many times reg was written with value.
func (t *fakeTransport) countWrites(reg, value byte) int {
	n := 0
	for _, w := range t.writes {
		if w.reg == reg && w.value == value {
			n++
		}
	}
	return n
}

func (t *fakeTransport) lastWrite(reg byte) (byte, bool) {
	for i := len(t.writes) - 1; i >= 0; i-- {
		if t.writes[i].reg == reg {
			return t.writes[i].value, true
		}
	}
	return 0, false
}

// capturePublisher records everything published.
type capturePublisher struct {
	accel []*AccelReport
	gyro  []*GyroReport
}

func (p *capturePublisher) PublishAccel(r *AccelReport) {
	p.accel = append(p.accel, r)
}

func (p *capturePublisher) PublishGyro(r *GyroReport) {
	p.gyro = append(p.gyro, r)
}

// frame builds a raw 15-byte frame with the given decoded values.
func frame(ax, ay, az, temp, gx, gy, gz int16) []byte {
	buf := make([]byte, frameLen)
	buf[0] = 0x01 // data ready
	binary.BigEndian.PutUint16(buf[1:3], uint16(ax))
	binary.BigEndian.PutUint16(buf[3:5], uint16(ay))
	binary.BigEndian.PutUint16(buf[5:7], uint16(az))
	binary.BigEndian.PutUint16(buf[7:9], uint16(temp))
	binary.BigEndian.PutUint16(buf[9:11], uint16(gx))
	binary.BigEndian.PutUint16(buf[11:13], uint16(gy))
	binary.BigEndian.PutUint16(buf[13:15], uint16(gz))
	return buf
}

func newTestDriver(t *testing.T) (*ICM20602, *fakeTransport, *fakeClock, *capturePublisher) {
	t.Helper()
	ft := newFakeTransport()
	clk := newFakeClock()
	pub := &capturePublisher{}
	d, err := New(ft, clk, pub, RotationNone, "test")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d, ft, clk, pub
}

func TestProbeWrongWhoAmI(t *testing.T) {
	ft := newFakeTransport()
	ft.regs[RegWhoAmI] = 0x68
	_, err := New(ft, newFakeClock(), nil, RotationNone, "test")
	if !errors.Is(err, ErrNotDetected) {
		t.Fatalf("got %v, want ErrNotDetected", err)
	}
}

func TestResetProgramsDefaults(t *testing.T) {
	d, ft, _, _ := newTestDriver(t)

	if d.SampleRate() != DefaultSampleRate {
		t.Errorf("sample rate = %d, want %d", d.SampleRate(), DefaultSampleRate)
	}
	if d.AccelRange() != DefaultAccelRange {
		t.Errorf("accel range = %d, want %d", d.AccelRange(), DefaultAccelRange)
	}
	if v, ok := ft.lastWrite(RegGyroConfig); !ok || v != BitsFS2000DPS {
		t.Errorf("GYRO_CONFIG = %02x, want %02x", v, BitsFS2000DPS)
	}
	if v, ok := ft.lastWrite(RegConfig); !ok || v != BitsDLPF42Hz {
		t.Errorf("CONFIG = %02x, want %02x", v, BitsDLPF42Hz)
	}

	// shadows must match what was written, so a clean sensor never
	// trips the monitor
	for i := 0; i < numCheckedRegisters*2; i++ {
		d.CheckRegisters()
	}
	h := d.Health()
	if h.BadRegisters != 0 {
		t.Errorf("bad registers after clean reset = %d", h.BadRegisters)
	}
	if len(h.Mismatches) != 0 {
		t.Errorf("unexpected mismatches: %+v", h.Mismatches)
	}
}

func TestDuplicateSuppression(t *testing.T) {
	d, ft, clk, _ := newTestDriver(t)

	ft.frames = [][]byte{frame(100, 200, 300, 40, 1, 2, 3)}
	if _, _, err := d.Measure(); err != nil {
		t.Fatalf("first tick: %v", err)
	}

	clk.Advance(time.Millisecond)
	a, g, err := d.Measure()
	if err != nil {
		t.Fatalf("duplicate tick: %v", err)
	}
	if a != nil || g != nil {
		t.Error("duplicate frame produced results")
	}
	if h := d.Health(); h.Duplicates != 1 {
		t.Errorf("duplicates = %d, want 1", h.Duplicates)
	}

	// a third identical frame is accepted: never drop two in a row, a
	// static sensor must still report
	clk.Advance(time.Millisecond)
	if _, _, err := d.Measure(); err != nil {
		t.Fatalf("third tick: %v", err)
	}
	if h := d.Health(); h.Duplicates != 1 {
		t.Errorf("duplicates = %d, want still 1", h.Duplicates)
	}
}

func TestAllZeroFrameIsBusFault(t *testing.T) {
	d, ft, clk, _ := newTestDriver(t)

	// prime last_raw_accel with real data first
	ft.frames = [][]byte{frame(5, 6, 7, 40, 1, 2, 3), frame(0, 0, 0, 0, 0, 0, 0)}
	if _, _, err := d.Measure(); err != nil {
		t.Fatalf("first tick: %v", err)
	}
	resetsBefore := ft.countWrites(RegPwrMgmt1, BitHReset)

	clk.Advance(time.Millisecond)
	_, _, err := d.Measure()
	if !errors.Is(err, ErrBusFault) {
		t.Fatalf("got %v, want ErrBusFault", err)
	}
	if h := d.Health(); h.BadTransfers != 1 {
		t.Errorf("bad transfers = %d, want 1", h.BadTransfers)
	}
	if n := ft.countWrites(RegPwrMgmt1, BitHReset); n != resetsBefore {
		t.Error("all-zero frame triggered a reset")
	}
}

func TestTransferErrorIsBusFault(t *testing.T) {
	d, ft, _, _ := newTestDriver(t)

	ft.frameErr = errors.New("spi: short transfer")
	_, _, err := d.Measure()
	if !errors.Is(err, ErrBusFault) {
		t.Fatalf("got %v, want ErrBusFault", err)
	}
	if h := d.Health(); h.BadTransfers != 1 {
		t.Errorf("bad transfers = %d, want 1", h.BadTransfers)
	}
}

func TestNegate16Saturation(t *testing.T) {
	if got := negate16(-32768); got != 32767 {
		t.Errorf("negate16(-32768) = %d, want 32767", got)
	}
	if got := negate16(32767); got != -32767 {
		t.Errorf("negate16(32767) = %d, want -32767", got)
	}
	if got := negate16(0); got != 0 {
		t.Errorf("negate16(0) = %d, want 0", got)
	}
}

func TestAxisRemap(t *testing.T) {
	d, ft, clk, _ := newTestDriver(t)

	// prime the integrators
	ft.frames = [][]byte{frame(1, 2, 3, 40, 4, 5, 6)}
	if _, _, err := d.Measure(); err != nil {
		t.Fatalf("prime tick: %v", err)
	}

	// advance beyond the integrator flush interval so the next tick
	// publishes
	clk.Advance(5 * time.Millisecond)
	ft.frames = [][]byte{frame(-32768, 1000, 3, 40, -32768, 500, 6)}
	a, g, err := d.Measure()
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if a == nil || g == nil {
		t.Fatal("expected both halves to flush")
	}
	// body X is sensor Y; body Y is the negated sensor X, saturated
	if a.XRaw != 1000 || a.YRaw != 32767 || a.ZRaw != 3 {
		t.Errorf("accel raw = (%d,%d,%d), want (1000,32767,3)", a.XRaw, a.YRaw, a.ZRaw)
	}
	if g.XRaw != 500 || g.YRaw != 32767 || g.ZRaw != 6 {
		t.Errorf("gyro raw = (%d,%d,%d), want (500,32767,6)", g.XRaw, g.YRaw, g.ZRaw)
	}
}

func TestTemperatureTransform(t *testing.T) {
	d, ft, clk, _ := newTestDriver(t)

	ft.frames = [][]byte{frame(1, 2, 3, 0, 4, 5, 6)}
	if _, _, err := d.Measure(); err != nil {
		t.Fatalf("prime tick: %v", err)
	}
	clk.Advance(5 * time.Millisecond)
	ft.frames = [][]byte{frame(7, 8, 9, 3268, 10, 11, 12)}
	a, _, err := d.Measure()
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if a == nil {
		t.Fatal("expected accel flush")
	}
	// raw/326.8 + 25
	if want := 35.0; a.Temperature < want-0.001 || a.Temperature > want+0.001 {
		t.Errorf("temperature = %v, want %v", a.Temperature, want)
	}
}

func TestPublisherReceivesReports(t *testing.T) {
	d, ft, clk, pub := newTestDriver(t)

	ft.frames = [][]byte{frame(1, 2, 3, 40, 4, 5, 6)}
	if _, _, err := d.Measure(); err != nil {
		t.Fatalf("prime tick: %v", err)
	}
	clk.Advance(5 * time.Millisecond)
	ft.frames = [][]byte{frame(7, 8, 9, 40, 10, 11, 12)}
	if _, _, err := d.Measure(); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(pub.accel) != 1 || len(pub.gyro) != 1 {
		t.Fatalf("published %d accel, %d gyro reports, want 1 each",
			len(pub.accel), len(pub.gyro))
	}
	if pub.accel[0].IntegralDT == 0 {
		t.Error("accel report has zero integral duration")
	}
}
