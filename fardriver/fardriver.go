// Package fardriver decodes the 16-byte telemetry frames a FarDriver-style
// motor controller pushes over its BLE serial characteristic, and derives the
// physical quantities (speed, power, temperatures) shown on the instrument.
package fardriver

const (
	// Frame layout
	FrameSize   = 16
	FrameHeader = 0xAA

	// Meaningful frame type indices. The wire format reserves many other
	// indices; frames carrying them are accepted but produce no update.
	FrameTypeDrivetrain = 0
	FrameTypeBattery    = 1
	FrameTypeController = 4
	FrameTypeMotor      = 13

	// Drivetrain conversion constants
	DefaultGearRatio          = 4.0
	DefaultWheelCircumference = 1.350 // meters

	// Raw field scale factors
	CurrentScale = 0.01 // i16 -> amps
	VoltageScale = 0.1  // u16 -> volts
)

// KeepAliveFrame is the fixed host-to-controller frame that prevents the link
// from idling out. The controller expects it roughly every two seconds and
// never acknowledges it.
var KeepAliveFrame = []byte{0xAA, 0x13, 0xEC, 0x07, 0x01, 0xF1, 0xA2, 0x5D}

// Gear is the drivetrain gear selection reported in drivetrain frames.
type Gear uint8

const (
	GearDisabled Gear = iota
	GearLow
	GearMid
	GearHigh
)

func (g Gear) String() string {
	switch g {
	case GearLow:
		return "low"
	case GearMid:
		return "mid"
	case GearHigh:
		return "high"
	case GearDisabled:
		fallthrough
	default:
		return "disabled"
	}
}

// TelemetrySnapshot holds the latest decoded values. Fields keep their zero
// defaults until a frame of the relevant kind has been received. The decoder
// is the only writer; consumers read copies via Decoder.Snapshot.
type TelemetrySnapshot struct {
	Throttle       uint16  // raw ADC, 0-4095 domain, not clamped
	Gear           Gear
	RPM            uint16  // rear-wheel equivalent
	ControllerTemp float64 // degrees C
	MotorTemp      float64 // degrees C
	Speed          float64 // km/h
	Power          float64 // kW, negative while driving, positive on regen
	Voltage        float64 // volts
}

// TripRecorder receives distance and peak observations derived from decoded
// drivetrain and battery frames.
type TripRecorder interface {
	// AddDistance accumulates an incremental distance. propelling is true
	// while the motor is turning, which gates persistence throttling.
	AddDistance(km float64, propelling bool)
	// ObserveSpeed offers a speed sample for peak tracking.
	ObserveSpeed(kmh float64)
	// ObservePower offers a power sample for peak tracking. Samples are
	// expected as positive magnitudes for driving draw.
	ObservePower(kw float64)
}

// DecoderStats counts frame-level events for diagnostics. Checksum mismatches
// are counted but do not reject frames (validation is advisory on this wire
// format).
type DecoderStats struct {
	FramesReceived     uint64
	FramesDropped      uint64
	ChecksumMismatches uint64
}
