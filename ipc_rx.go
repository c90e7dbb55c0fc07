package main

import (
	"context"

	"github.com/go-redis/redis/v8"
)

const commandChannel = "instrument:commands"

// IPCRx receives commands from the external display process. The only
// commands today are the trip meter resets triggered from the touch UI.
type IPCRx struct {
	log   *LeveledLogger
	redis *redis.Client
	trips *TripSet
	ipcTx *IPCTx

	ctx    context.Context
	cancel context.CancelFunc

	commandSubscription *redis.PubSub
}

func NewIPCRx(logger *LeveledLogger, redis *redis.Client, trips *TripSet, ipcTx *IPCTx) *IPCRx {
	ctx, cancel := context.WithCancel(context.Background())

	rx := &IPCRx{
		log:    logger,
		redis:  redis,
		trips:  trips,
		ipcTx:  ipcTx,
		ctx:    ctx,
		cancel: cancel,
	}

	rx.commandSubscription = rx.redis.Subscribe(rx.ctx, commandChannel)
	go rx.handleCommandSubscription()

	return rx
}

func (rx *IPCRx) handleCommandSubscription() {
	rx.log.Info("Starting command subscription handler")

	for {
		msg, err := rx.commandSubscription.Receive(rx.ctx)
		if err != nil {
			if err == context.Canceled {
				return
			}
			// Check for closed client - panic to trigger systemd restart
			if err.Error() == "redis: client is closed" {
				rx.log.Error("Redis connection lost on command subscription - restarting service")
				panic("Redis disconnected")
			}
			rx.log.Error("Command subscription error: %v", err)
			continue
		}

		switch m := msg.(type) {
		case *redis.Message:
			rx.log.Debug("Command received: %s", m.Payload)
			rx.handleCommand(m.Payload)

		case *redis.Subscription:
			rx.log.Debug("Command subscription event: %s %s", m.Channel, m.Kind)
		}
	}
}

func (rx *IPCRx) handleCommand(command string) {
	var label string

	switch command {
	case "reset-trip1":
		label = OdometerTrip1
	case "reset-trip2":
		label = OdometerTrip2
	default:
		rx.log.Warn("Unknown command: %s", command)
		return
	}

	if err := rx.trips.Reset(label); err != nil {
		rx.log.Error("Failed to reset %s: %v", label, err)
		return
	}

	total, trip1, trip2 := rx.trips.State()
	if err := rx.ipcTx.SendTrips(TripStatus{Total: total, Trip1: trip1, Trip2: trip2}); err != nil {
		rx.log.Error("Failed to publish trips after reset: %v", err)
	}
}

func (rx *IPCRx) Destroy() {
	if rx.cancel != nil {
		rx.cancel()
	}

	if rx.commandSubscription != nil {
		rx.commandSubscription.Close()
	}
}
