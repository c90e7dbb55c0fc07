package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
)

const instrumentHashKey = "instrument"

type IPCTx struct {
	log   *LeveledLogger
	redis *redis.Client
	mu    sync.Mutex
	ctx   context.Context
}

func NewIPCTx(logger *LeveledLogger, redis *redis.Client) *IPCTx {
	return &IPCTx{
		log:   logger,
		redis: redis,
		ctx:   context.Background(),
	}
}

func (tx *IPCTx) Destroy() {}

func (tx *IPCTx) SendTelemetry(data TelemetryStatus) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	pipe := tx.redis.Pipeline()

	pipe.HSet(tx.ctx, instrumentHashKey, map[string]interface{}{
		"speed":    fmt.Sprintf("%.1f", data.Speed),
		"rpm":      data.RPM,
		"power":    fmt.Sprintf("%.2f", data.Power),
		"voltage":  fmt.Sprintf("%.1f", data.Voltage),
		"gear":     data.Gear,
		"throttle": data.Throttle,
	})

	// Publish telemetry changes
	pipe.Publish(tx.ctx, "instrument telemetry", nil)

	_, err := pipe.Exec(tx.ctx)
	if err != nil {
		return fmt.Errorf("failed to send telemetry: %v", err)
	}

	return nil
}

func (tx *IPCTx) SendThermal(data ThermalStatus) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if err := tx.redis.HSet(tx.ctx, instrumentHashKey,
		"controller-temp", fmt.Sprintf("%.0f", data.ControllerTemp),
		"motor-temp", fmt.Sprintf("%.0f", data.MotorTemp),
	).Err(); err != nil {
		return fmt.Errorf("failed to send thermal status: %v", err)
	}

	return nil
}

func (tx *IPCTx) SendTrips(data TripStatus) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	pipe := tx.redis.Pipeline()

	fields := map[string]interface{}{}
	for label, state := range map[string]OdometerState{
		OdometerTotal: data.Total,
		OdometerTrip1: data.Trip1,
		OdometerTrip2: data.Trip2,
	} {
		fields[label+":km"] = fmt.Sprintf("%.1f", state.DistanceKm)
		fields[label+":peak-speed"] = fmt.Sprintf("%.1f", state.PeakSpeed)
		fields[label+":peak-power"] = fmt.Sprintf("%.1f", state.PeakPower)
	}
	pipe.HSet(tx.ctx, instrumentHashKey, fields)

	// Publish odometer updates
	pipe.Publish(tx.ctx, "instrument trip", nil)

	_, err := pipe.Exec(tx.ctx)
	if err != nil {
		return fmt.Errorf("failed to send trip status: %v", err)
	}

	return nil
}

func (tx *IPCTx) SendBattery(data BatteryStatus) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	pipe := tx.redis.Pipeline()

	pipe.HSet(tx.ctx, instrumentHashKey,
		"battery:voltage", fmt.Sprintf("%.1f", data.Voltage),
		"battery:low", map[bool]string{true: "yes", false: "no"}[data.Low],
	)

	// Publish battery state changes
	pipe.Publish(tx.ctx, "instrument battery", nil)

	_, err := pipe.Exec(tx.ctx)
	if err != nil {
		return fmt.Errorf("failed to send battery status: %v", err)
	}

	return nil
}

func (tx *IPCTx) SendRegen(active bool) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	pipe := tx.redis.Pipeline()

	pipe.HSet(tx.ctx, instrumentHashKey,
		"regen", map[bool]string{true: "on", false: "off"}[active],
	)

	// Publish regen state changes
	pipe.Publish(tx.ctx, "instrument regen", nil)

	_, err := pipe.Exec(tx.ctx)
	if err != nil {
		return fmt.Errorf("failed to send regen status: %v", err)
	}

	return nil
}

func (tx *IPCTx) SendLinkStatus(state LinkState) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	pipe := tx.redis.Pipeline()

	pipe.HSet(tx.ctx, instrumentHashKey, "link", state.String())

	// Publish link transitions
	pipe.Publish(tx.ctx, "instrument link", nil)

	_, err := pipe.Exec(tx.ctx)
	if err != nil {
		return fmt.Errorf("failed to send link status: %v", err)
	}

	return nil
}
