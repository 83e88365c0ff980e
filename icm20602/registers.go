package icm20602

// Register map and configuration bits for the InvenSense ICM-20602.
// https://invensense.tdk.com/wp-content/uploads/2016/10/DS-000176-ICM-20602-v1.0.pdf

const (
	RegSelfTestXAccel = 0x0D
	RegSelfTestYAccel = 0x0E
	RegSelfTestZAccel = 0x0F
	RegSampleRateDiv  = 0x19
	RegConfig         = 0x1A
	RegGyroConfig     = 0x1B
	RegAccelConfig    = 0x1C
	RegAccelConfig2   = 0x1D
	RegFIFOEnable     = 0x23
	RegIntPinCfg      = 0x37
	RegIntEnable      = 0x38
	RegIntStatus      = 0x3A
	RegAccelXOutH     = 0x3B
	RegTempOutH       = 0x41
	RegGyroXOutH      = 0x43
	RegSelfTestXGyro  = 0x50
	RegSelfTestYGyro  = 0x51
	RegSelfTestZGyro  = 0x52
	RegUserCtrl       = 0x6A
	RegPwrMgmt1       = 0x6B
	RegPwrMgmt2       = 0x6C
	RegFIFOCountH     = 0x72
	RegFIFOCountL     = 0x73
	RegFIFOReadWrite  = 0x74
	RegWhoAmI         = 0x75

	// regDumpLast is the highest register included in DumpRegisters.
	regDumpLast = 0x6C
)

const (
	BitSleep  = 0x40
	BitHReset = 0x80

	// PWR_MGMT_1 clock source: auto-select best available PLL.
	BitsBestClockPLL = 0x03

	BitsFS250DPS  = 0x00
	BitsFS500DPS  = 0x08
	BitsFS1000DPS = 0x10
	BitsFS2000DPS = 0x18

	BitsDLPF4000HzNoLPF = 0x07
	BitsDLPF188Hz       = 0x01
	BitsDLPF98Hz        = 0x02
	BitsDLPF42Hz        = 0x03
	BitsDLPF20Hz        = 0x04
	BitsDLPF10Hz        = 0x05
	BitsDLPF5Hz         = 0x06

	BitIntAnyReadClear = 0x10
	BitDataReadyIntEn  = 0x00

	WhoAmIValue = 0x12
)

const (
	// OneG is standard gravity in m/s^2, used for accel scaling.
	OneG = 9.80665

	DefaultSampleRate = 1000 // Hz, both halves
	DefaultAccelRange = 8    // g

	// MaxOutputRate is the maximum publication rate per half. The
	// integrators accumulate between flushes so no data is lost at
	// lower output rates.
	MaxOutputRate = 280 // Hz

	// DefaultFilterFreq is the software low-pass cutoff applied on top
	// of the on-chip DLPF.
	DefaultFilterFreq = 30 // Hz

	// DefaultOnchipFilterFreq is the hardware DLPF selection written
	// during reset. 90 Hz was tried and ruins quality without improving
	// system response.
	DefaultOnchipFilterFreq = 42 // Hz
)

// numCheckedRegisters is the size of the watched configuration register
// set verified round-robin by CheckRegisters.
const numCheckedRegisters = 8

// checkedRegisters lists the configuration registers whose values are
// verified against shadow copies to detect bus corruption or an
// unintended sensor reset. PWR_MGMT_1 is deliberately first: a wrong
// value there is the signature of a full chip reset.
var checkedRegisters = [numCheckedRegisters]byte{
	RegPwrMgmt1,
	RegUserCtrl,
	RegSampleRateDiv,
	RegConfig,
	RegGyroConfig,
	RegAccelConfig,
	RegIntEnable,
	RegIntPinCfg,
}
