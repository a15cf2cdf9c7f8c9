package mag

import "fmt"

// Register is an addressable MLX90393 configuration register.
type Register uint8

const (
	RegConf1 Register = 0x00
	RegConf2 Register = 0x01
	RegConf3 Register = 0x02
)

// Command is a one-byte MLX90393 opcode. Mode-start and read-measurement
// commands are OR-ed with an Axis mask before being sent.
type Command uint8

const (
	CmdNop             Command = 0x00
	CmdStartBurst      Command = 0x10
	CmdStartWakeup     Command = 0x20
	CmdStartSingle     Command = 0x30
	CmdReadMeasurement Command = 0x40
	CmdReadRegister    Command = 0x50
	CmdWriteRegister   Command = 0x60
	CmdMemoryStore     Command = 0x70
	CmdExitMode        Command = 0x80
	CmdMemoryRecall    Command = 0xD0
	CmdReset           Command = 0xF0
)

// Axis selects which axes a command addresses.
type Axis uint8

const (
	AxisX   Axis = 0x02
	AxisY   Axis = 0x04
	AxisZ   Axis = 0x08
	AxisAll Axis = 0x0E
)

func (a Axis) String() string {
	switch a {
	case AxisX:
		return "X"
	case AxisY:
		return "Y"
	case AxisZ:
		return "Z"
	case AxisAll:
		return "ALL"
	}
	return fmt.Sprintf("Axis(0x%02X)", uint8(a))
}

// Gain is the analog gain selection, from 5x down to 1x. The value is the
// 3-bit field stored at bits 4-6 of CONF1.
type Gain uint8

const (
	Gain5X Gain = iota
	Gain4X
	Gain3X
	Gain2_5X
	Gain2X
	Gain1_67X
	Gain1_33X
	Gain1X
)

var gainNames = [...]string{"GAIN5X", "GAIN4X", "GAIN3X", "GAIN2_5X", "GAIN2X", "GAIN1_67X", "GAIN1_33X", "GAIN1X"}

func (g Gain) String() string {
	if int(g) < len(gainNames) {
		return gainNames[g]
	}
	return fmt.Sprintf("Gain(%d)", uint8(g))
}

// GainFromBits decodes a 3-bit gain field. Malformed bus data is an error,
// never a panic.
func GainFromBits(b uint8) (Gain, error) {
	if b > uint8(Gain1X) {
		return 0, fmt.Errorf("mag: invalid gain bits 0x%02X", b)
	}
	return Gain(b), nil
}

// Resolution is the per-axis ADC resolution, 16 to 19 bits. The value is a
// 2-bit field; CONF3 holds one field per axis.
type Resolution uint8

const (
	Res16 Resolution = iota
	Res17
	Res18
	Res19
)

func (r Resolution) String() string {
	if r <= Res19 {
		return fmt.Sprintf("RES%d", 16+int(r))
	}
	return fmt.Sprintf("Resolution(%d)", uint8(r))
}

// ResolutionFromBits decodes a 2-bit resolution field.
func ResolutionFromBits(b uint8) (Resolution, error) {
	if b > uint8(Res19) {
		return 0, fmt.Errorf("mag: invalid resolution bits 0x%02X", b)
	}
	return Resolution(b), nil
}

// Filter is the digital filter setting, 0-7, at bits 2-4 of CONF3.
type Filter uint8

const (
	Filter0 Filter = iota
	Filter1
	Filter2
	Filter3
	Filter4
	Filter5
	Filter6
	Filter7
)

func (f Filter) String() string {
	if f <= Filter7 {
		return fmt.Sprintf("FILTER%d", uint8(f))
	}
	return fmt.Sprintf("Filter(%d)", uint8(f))
}

// FilterFromBits decodes a 3-bit filter field.
func FilterFromBits(b uint8) (Filter, error) {
	if b > uint8(Filter7) {
		return 0, fmt.Errorf("mag: invalid filter bits 0x%02X", b)
	}
	return Filter(b), nil
}

// Oversampling is the oversampling ratio, 0-3, at bits 0-1 of CONF3.
type Oversampling uint8

const (
	OSR0 Oversampling = iota
	OSR1
	OSR2
	OSR3
)

func (o Oversampling) String() string {
	if o <= OSR3 {
		return fmt.Sprintf("OSR%d", uint8(o))
	}
	return fmt.Sprintf("Oversampling(%d)", uint8(o))
}

// OversamplingFromBits decodes a 2-bit oversampling field.
func OversamplingFromBits(b uint8) (Oversampling, error) {
	if b > uint8(OSR3) {
		return 0, fmt.Errorf("mag: invalid oversampling bits 0x%02X", b)
	}
	return Oversampling(b), nil
}

// Register field layout. Gain lives in CONF1; the per-axis resolutions,
// filter and oversampling share CONF3; the trigger-interval and wakeup
// comparator enables live in CONF2.
const (
	conf1GainMask  = 0x0070
	conf1GainShift = 4

	conf3ResXMask  = 0x0060
	conf3ResXShift = 5
	conf3ResYMask  = 0x0180
	conf3ResYShift = 7
	conf3ResZMask  = 0x0600
	conf3ResZShift = 9

	conf3FilterMask  = 0x001C
	conf3FilterShift = 2

	conf3OSRMask = 0x0003

	conf2TriggerIntervalBit = 0x8000
	conf2WakeupComparator   = 0x0010
)

// scalePair is the µT-per-LSB sensitivity for the XY axes and the Z axis.
type scalePair struct {
	xy float64
	z  float64
}

// gainResScale is the device sensitivity table, indexed [resolution][gain],
// for HALLCONF = 0xC. Values are µT per LSB.
var gainResScale = [4][8]scalePair{
	{ // RES16
		{0.751, 1.210},
		{0.601, 0.968},
		{0.451, 0.726},
		{0.376, 0.605},
		{0.300, 0.484},
		{0.250, 0.403},
		{0.200, 0.323},
		{0.150, 0.242},
	},
	{ // RES17
		{1.502, 2.420},
		{1.202, 1.936},
		{0.901, 1.452},
		{0.751, 1.210},
		{0.601, 0.968},
		{0.501, 0.807},
		{0.401, 0.645},
		{0.300, 0.484},
	},
	{ // RES18
		{3.004, 4.840},
		{2.403, 3.872},
		{1.803, 2.904},
		{1.502, 2.420},
		{1.202, 1.936},
		{1.001, 1.613},
		{0.801, 1.291},
		{0.601, 0.968},
	},
	{ // RES19
		{6.009, 9.680},
		{4.840, 7.744},
		{3.605, 5.808},
		{3.004, 4.840},
		{2.403, 3.872},
		{2.003, 3.227},
		{1.602, 2.581},
		{1.202, 1.936},
	},
}

// ScaleFor returns the µT-per-LSB factor for one axis at the given
// resolution and gain. X and Y share the XY column; Z has its own.
func ScaleFor(res Resolution, g Gain, axis Axis) float64 {
	p := gainResScale[res][g]
	if axis == AxisZ {
		return p.z
	}
	return p.xy
}

// Decode converts a raw signed 16-bit axis reading into µT.
func Decode(raw int16, res Resolution, g Gain, axis Axis) float64 {
	return float64(raw) * ScaleFor(res, g, axis)
}
