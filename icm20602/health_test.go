package icm20602

import (
	"testing"
	"time"
)

func TestFullResetRecovery(t *testing.T) {
	d, ft, clk, _ := newTestDriver(t)

	// prime the integrators with good data
	ft.frames = [][]byte{frame(1, 2, 3, 40, 4, 5, 6)}
	if _, _, err := d.Measure(); err != nil {
		t.Fatalf("prime tick: %v", err)
	}
	clk.Advance(time.Millisecond)
	ft.frames = [][]byte{frame(2, 3, 4, 40, 5, 6, 7)}
	if _, _, err := d.Measure(); err != nil {
		t.Fatalf("prime tick: %v", err)
	}
	resetsBefore := ft.countWrites(RegPwrMgmt1, BitHReset)

	// corrupt PWR_MGMT_1, the first checked register: its corruption is
	// the signature of a full unintended chip reset
	ft.regs[RegPwrMgmt1] = 0x55
	d.CheckRegisters()

	if n := ft.countWrites(RegPwrMgmt1, BitHReset); n != resetsBefore+1 {
		t.Fatalf("reset writes = %d, want %d", n, resetsBefore+1)
	}
	h := d.Health()
	if h.BadRegisters != 1 {
		t.Errorf("bad registers = %d, want 1", h.BadRegisters)
	}
	if h.RegisterWait != registerWaitCount {
		t.Errorf("register wait = %d, want %d", h.RegisterWait, registerWaitCount)
	}
	if h.CheckedNext != 0 {
		t.Errorf("cursor = %d, want 0", h.CheckedNext)
	}

	// before the settle deadline the pipeline must not touch the bus
	samplesBefore := d.Health().SampleCount
	clk.Advance(time.Millisecond)
	ft.frames = [][]byte{frame(3, 4, 5, 40, 6, 7, 8)}
	if a, g, err := d.Measure(); a != nil || g != nil || err != nil {
		t.Fatalf("tick inside settle window: %v %v %v", a, g, err)
	}
	if d.Health().SampleCount != samplesBefore {
		t.Error("pipeline touched the bus inside the settle window")
	}

	clk.Advance(fullResetSettle)

	// 19 valid ticks count toward recovery but publish nothing
	for i := int16(0); i < 19; i++ {
		clk.Advance(time.Millisecond)
		ft.frames = [][]byte{frame(10+i, 20+i, 30+i, 40, 1+i, 2+i, 3+i)}
		a, g, err := d.Measure()
		if err != nil {
			t.Fatalf("recovery tick %d: %v", i, err)
		}
		if a != nil || g != nil {
			t.Fatalf("recovery tick %d published results", i)
		}
	}
	good := d.Health().GoodTransfers
	if good < 19 {
		t.Errorf("good transfers = %d, want at least 19", good)
	}

	// the 20th valid tick resumes publication
	clk.Advance(5 * time.Millisecond)
	ft.frames = [][]byte{frame(100, 101, 102, 40, 50, 51, 52)}
	a, g, err := d.Measure()
	if err != nil {
		t.Fatalf("20th tick: %v", err)
	}
	if a == nil || g == nil {
		t.Fatal("20th valid tick did not resume publication")
	}
}

func TestSingleRegisterRewrite(t *testing.T) {
	d, ft, clk, _ := newTestDriver(t)

	// a mismatch at a non-zero cursor while a fix is already pending
	// gets the cheap targeted response
	d.mu.Lock()
	d.registerWait = 5
	d.checkedNext = 1 // USER_CTRL
	d.mu.Unlock()
	ft.regs[RegUserCtrl] = 0x55
	resetsBefore := ft.countWrites(RegPwrMgmt1, BitHReset)

	d.CheckRegisters()

	if n := ft.countWrites(RegPwrMgmt1, BitHReset); n != resetsBefore {
		t.Fatal("single-register corruption escalated to a full reset")
	}
	if v, ok := ft.lastWrite(RegUserCtrl); !ok || v != 0x00 {
		t.Errorf("USER_CTRL rewritten with %02x, want shadow 00", v)
	}
	h := d.Health()
	if h.RegisterWait != registerWaitCount {
		t.Errorf("register wait = %d, want %d", h.RegisterWait, registerWaitCount)
	}
	if h.BadRegisters != 1 {
		t.Errorf("bad registers = %d, want 1", h.BadRegisters)
	}

	// inside the 3ms settle window the monitor stays off the bus
	clk.Advance(time.Millisecond)
	d.CheckRegisters()
	if got := d.Health().BadRegisters; got != 1 {
		t.Errorf("monitor ran inside settle window, bad registers = %d", got)
	}

	clk.Advance(rewriteSettle)
	d.CheckRegisters()
	h = d.Health()
	if h.BadRegisters != 1 {
		t.Errorf("rewritten register still mismatching, bad registers = %d", h.BadRegisters)
	}
	if h.CheckedNext != 2 {
		t.Errorf("cursor = %d, want 2 after a clean check", h.CheckedNext)
	}
}

func TestFullResetWhenNoFixPending(t *testing.T) {
	d, ft, _, _ := newTestDriver(t)

	// even at a non-zero cursor, corruption with no fix pending means we
	// cannot tell how much else is wrong; escalate
	d.mu.Lock()
	d.checkedNext = 3 // CONFIG
	d.mu.Unlock()
	ft.regs[RegConfig] = 0x55
	resetsBefore := ft.countWrites(RegPwrMgmt1, BitHReset)

	d.CheckRegisters()

	if n := ft.countWrites(RegPwrMgmt1, BitHReset); n != resetsBefore+1 {
		t.Fatal("expected a full reset when no fix was pending")
	}
	if h := d.Health(); h.CheckedNext != 0 {
		t.Errorf("cursor = %d, want 0 after full reset", h.CheckedNext)
	}
}

func TestHealthReportsLiveMismatches(t *testing.T) {
	d, ft, _, _ := newTestDriver(t)

	ft.regs[RegGyroConfig] = 0x00
	h := d.Health()
	if len(h.Mismatches) != 1 {
		t.Fatalf("mismatches = %d, want 1", len(h.Mismatches))
	}
	m := h.Mismatches[0]
	if m.Register != RegGyroConfig || m.Value != 0x00 || m.Expected != BitsFS2000DPS {
		t.Errorf("mismatch = %+v", m)
	}
}

func TestTriggerErrorInjection(t *testing.T) {
	d, ft, _, _ := newTestDriver(t)

	ft.frames = [][]byte{frame(1, 2, 3, 40, 4, 5, 6)}
	samplesBefore := d.Health().SampleCount
	resetsBefore := ft.countWrites(RegPwrMgmt1, BitHReset)

	d.TriggerError()

	// the injected fault is a full-rate frame read over the low-speed
	// configuration bus, not a register corruption
	if len(ft.frameReads) == 0 {
		t.Fatal("TriggerError issued no frame read")
	}
	if got := ft.frameReads[len(ft.frameReads)-1]; got != LowSpeed {
		t.Errorf("injected read speed = %v, want LowSpeed", got)
	}
	if n := ft.countWrites(RegPwrMgmt1, BitHReset); n != resetsBefore {
		t.Error("TriggerError reset the sensor")
	}

	// the injected transfer never counts as a pipeline sample
	if got := d.Health().SampleCount; got != samplesBefore {
		t.Errorf("sample count = %d, want %d", got, samplesBefore)
	}

	// and the registers came through untouched
	if len(d.Health().Mismatches) != 0 {
		t.Errorf("unexpected mismatches after injection: %+v", d.Health().Mismatches)
	}
}

func TestDumpRegisters(t *testing.T) {
	d, ft, _, _ := newTestDriver(t)

	dump := d.DumpRegisters()
	if len(dump) != regDumpLast+1 {
		t.Fatalf("dump length = %d, want %d", len(dump), regDumpLast+1)
	}
	if dump[RegGyroConfig] != ft.regs[RegGyroConfig] {
		t.Errorf("dump[GYRO_CONFIG] = %02x, want %02x",
			dump[RegGyroConfig], ft.regs[RegGyroConfig])
	}
}
