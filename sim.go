package main

import (
	"context"
	"encoding/binary"
	"math"
	"sync"
	"time"

	"github.com/C-broderick-225/EKSR-Instrument/fardriver"
)

// simEmitPeriod mimics the real controller's notification rate.
const simEmitPeriod = 30 * time.Millisecond

// SimTransport emulates a FarDriver controller: it cycles through the four
// meaningful frame types at the real controller's update rate with plausible
// riding values. Selected with the -sim flag for development without
// hardware.
type SimTransport struct {
	log    *LeveledLogger
	period time.Duration

	mu            sync.Mutex
	handler       func([]byte)
	lastKeepAlive time.Time

	disc chan error
	stop chan struct{}
	once sync.Once
}

func NewSimTransport(logger *LeveledLogger) *SimTransport {
	return &SimTransport{
		log:    logger,
		period: simEmitPeriod,
		disc:   make(chan error, 1),
		stop:   make(chan struct{}),
	}
}

func (t *SimTransport) Connect(ctx context.Context, handler func(frame []byte)) error {
	t.mu.Lock()
	t.handler = handler
	t.mu.Unlock()

	t.log.Info("Simulated controller connected")
	go t.emitLoop(ctx)
	return nil
}

func (t *SimTransport) Send(data []byte) error {
	t.mu.Lock()
	t.lastKeepAlive = time.Now()
	t.mu.Unlock()

	t.log.DebugFrame("SIM RX", data)
	return nil
}

func (t *SimTransport) Disconnects() <-chan error {
	return t.disc
}

func (t *SimTransport) Close() error {
	t.once.Do(func() { close(t.stop) })
	return nil
}

func (t *SimTransport) emitLoop(ctx context.Context) {
	ticker := time.NewTicker(t.period)
	defer ticker.Stop()

	frameTypes := []byte{
		fardriver.FrameTypeDrivetrain,
		fardriver.FrameTypeBattery,
		fardriver.FrameTypeController,
		fardriver.FrameTypeMotor,
	}

	var (
		next      int
		elapsedMs float64
	)

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stop:
			return
		case <-ticker.C:
			frame := t.buildFrame(frameTypes[next], elapsedMs)
			next = (next + 1) % len(frameTypes)
			elapsedMs += float64(t.period / time.Millisecond)

			t.mu.Lock()
			handler := t.handler
			t.mu.Unlock()
			if handler != nil {
				handler(frame)
			}
		}
	}
}

// buildFrame fills one wire frame with the emulator's riding profile: rpm
// oscillating around 1200, 5.00 A quadrature and 2.00 A direct current,
// 90.0 V pack, 40/50 degree temperatures and a mid-range throttle.
func (t *SimTransport) buildFrame(frameType byte, elapsedMs float64) []byte {
	payload := make([]byte, 12)

	switch frameType {
	case fardriver.FrameTypeDrivetrain:
		payload[0] = 0x0C // gear bits 2-3 = 11 (mid)
		rpm := uint16(1200 + 200*math.Sin(elapsedMs/1000.0))
		binary.BigEndian.PutUint16(payload[2:4], rpm)
		binary.BigEndian.PutUint16(payload[6:8], 500)  // iq 5.00 A
		binary.BigEndian.PutUint16(payload[8:10], 200) // id 2.00 A
	case fardriver.FrameTypeBattery:
		binary.BigEndian.PutUint16(payload[0:2], 900) // 90.0 V
	case fardriver.FrameTypeController:
		payload[0] = 40
	case fardriver.FrameTypeMotor:
		payload[0] = 50
		binary.BigEndian.PutUint16(payload[2:4], 2048)
	}

	return fardriver.BuildFrame(frameType, payload)
}
