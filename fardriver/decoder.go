package fardriver

import (
	"encoding/binary"
	"math"
	"sync"
	"time"
)

// Config carries decoder construction parameters. Zero values fall back to
// the defaults above; Trips may be nil when no accounting is wanted.
type Config struct {
	Logger             Logger
	Trips              TripRecorder
	GearRatio          float64
	WheelCircumference float64
	// Clock supplies monotonic time for distance integration. Defaults to
	// time.Now; tests substitute a manual clock.
	Clock func() time.Time
}

// Decoder turns raw wire frames into the telemetry snapshot and feeds the
// trip recorder. HandleFrame must not be called concurrently (the session
// loop is the single caller); Snapshot and Stats are safe from any goroutine.
type Decoder struct {
	mu     sync.RWMutex
	logger Logger
	trips  TripRecorder
	clock  func() time.Time

	gearRatio          float64
	wheelCircumference float64

	snapshot TelemetrySnapshot

	// Distance integrates between consecutive drivetrain frames. The first
	// frame after boot contributes nothing.
	lastDrivetrain time.Time
	haveDrivetrain bool

	stats DecoderStats
}

func NewDecoder(config Config) *Decoder {
	d := &Decoder{
		logger:             config.Logger,
		trips:              config.Trips,
		clock:              config.Clock,
		gearRatio:          config.GearRatio,
		wheelCircumference: config.WheelCircumference,
	}
	if d.logger == nil {
		d.logger = &StdLogger{logger: noopPrintf{}}
	}
	if d.clock == nil {
		d.clock = time.Now
	}
	if d.gearRatio == 0 {
		d.gearRatio = DefaultGearRatio
	}
	if d.wheelCircumference == 0 {
		d.wheelCircumference = DefaultWheelCircumference
	}
	return d
}

type noopPrintf struct{}

func (noopPrintf) Printf(format string, v ...interface{}) {}

// HandleFrame processes one incoming wire frame. Malformed and unknown
// frames are dropped silently; only the counters record them.
func (d *Decoder) HandleFrame(frame []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stats.FramesReceived++

	if len(frame) != FrameSize || frame[0] != FrameHeader {
		d.stats.FramesDropped++
		d.logger.Debug("dropping malformed frame (%d bytes)", len(frame))
		return nil
	}

	d.logger.DebugFrame("RX", frame)

	// Checksum is advisory on this wire format: mismatches are counted and
	// logged but the frame is decoded anyway.
	if !ChecksumValid(frame) {
		d.stats.ChecksumMismatches++
		d.logger.Warn("frame checksum mismatch: type=%d got=0x%02X want=0x%02X",
			frame[1], frame[14], Checksum(frame))
	}

	payload := frame[2:14]

	switch frame[1] {
	case FrameTypeDrivetrain:
		d.decodeDrivetrain(payload)
	case FrameTypeBattery:
		d.decodeBattery(payload)
	case FrameTypeController:
		d.decodeController(payload)
	case FrameTypeMotor:
		d.decodeMotor(payload)
	default:
		d.stats.FramesDropped++
		d.logger.Debug("ignoring frame type %d", frame[1])
	}

	return nil
}

func (d *Decoder) decodeDrivetrain(p []byte) {
	// Gear code in bits 2-3: 00=high, 11=mid, 10=low, 01=disabled.
	// Decoded value is code-1; the unsigned wrap for code 00 clamps to High.
	g := ((p[0] >> 2) & 0x03) - 1
	if g > 2 {
		g = 3
	}

	rpm := binary.BigEndian.Uint16(p[2:4])
	iq := float64(int16(binary.BigEndian.Uint16(p[6:8]))) * CurrentScale
	id := float64(int16(binary.BigEndian.Uint16(p[8:10]))) * CurrentScale

	rearRPM := float64(rpm) / d.gearRatio
	distPerMin := rearRPM * d.wheelCircumference // meters per minute
	speed := distPerMin * 0.06                   // km/h

	now := d.clock()
	var deltaKm float64
	if d.haveDrivetrain {
		elapsedMs := float64(now.Sub(d.lastDrivetrain)) / float64(time.Millisecond)
		deltaKm = distPerMin / 60000.0 * elapsedMs / 1000.0
	}
	d.lastDrivetrain = now
	d.haveDrivetrain = true

	// Current magnitude and instantaneous power against the last known
	// voltage. Driving draw is negative; a negative axis current means the
	// controller is regenerating, which flips the sign.
	is := math.Sqrt(iq*iq + id*id)
	power := -(is * d.snapshot.Voltage) / 1000.0
	if iq < 0 || id < 0 {
		power = -power
	}

	d.snapshot.Gear = Gear(g)
	d.snapshot.RPM = uint16(rearRPM)
	d.snapshot.Speed = speed
	d.snapshot.Power = power

	if d.trips != nil {
		d.trips.AddDistance(deltaKm, rpm > 0)
		d.trips.ObserveSpeed(speed)
	}
}

func (d *Decoder) decodeBattery(p []byte) {
	d.snapshot.Voltage = float64(binary.BigEndian.Uint16(p[0:2])) * VoltageScale

	// Peak power accounting deliberately lags by one message cycle: the
	// power derived from the last drivetrain frame is pushed here,
	// sign-inverted so driving draw records as a positive magnitude.
	if d.trips != nil {
		d.trips.ObservePower(-d.snapshot.Power)
	}
}

func (d *Decoder) decodeController(p []byte) {
	d.snapshot.ControllerTemp = float64(p[0])
}

func (d *Decoder) decodeMotor(p []byte) {
	d.snapshot.MotorTemp = float64(p[0])
	d.snapshot.Throttle = binary.BigEndian.Uint16(p[2:4])
}

// Snapshot returns a copy of the latest decoded values.
func (d *Decoder) Snapshot() TelemetrySnapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.snapshot
}

// Stats returns the frame-level counters.
func (d *Decoder) Stats() DecoderStats {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.stats
}
