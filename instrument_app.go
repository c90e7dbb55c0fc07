package main

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/C-broderick-225/EKSR-Instrument/fardriver"
)

type InstrumentApp struct {
	log       *LeveledLogger
	redis     *redis.Client
	store     *BoltTripStore
	trips     *TripSet
	decoder   *fardriver.Decoder
	transport Transport
	session   *Session
	battery   *BatteryMonitor
	regen     *RegenIndicator
	ipcTx     *IPCTx
	ipcRx     *IPCRx
	diag      *Diag
	ctx       context.Context
	cancel    context.CancelFunc

	mu          sync.Mutex
	lastSpeed   float64
	lastTotalKm float64
}

// writeDefaultRedisState writes default values to Redis
func (app *InstrumentApp) writeDefaultRedisState() {
	if err := app.ipcTx.SendTelemetry(TelemetryStatus{Gear: fardriver.GearDisabled.String()}); err != nil {
		app.log.Printf("Failed to send default telemetry: %v", err)
	}

	if err := app.ipcTx.SendThermal(ThermalStatus{}); err != nil {
		app.log.Printf("Failed to send default thermal status: %v", err)
	}

	total, trip1, trip2 := app.trips.State()
	if err := app.ipcTx.SendTrips(TripStatus{Total: total, Trip1: trip1, Trip2: trip2}); err != nil {
		app.log.Printf("Failed to send default trip status: %v", err)
	}

	if err := app.ipcTx.SendLinkStatus(LinkSearching); err != nil {
		app.log.Printf("Failed to send default link status: %v", err)
	}

	app.log.Printf("Default Redis state written")
}

func NewInstrumentApp(opts *Options) (*InstrumentApp, error) {
	ctx, cancel := context.WithCancel(context.Background())

	app := &InstrumentApp{
		log:    NewLeveledLogger(log.New(log.Writer(), fmt.Sprintf("%s: ", ProjectName), log.LstdFlags), opts.LogLevel),
		ctx:    ctx,
		cancel: cancel,
	}

	// Initialize Redis client with timeouts
	app.redis = redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", opts.RedisServerAddr, opts.RedisServerPort),
		Password:     "",
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	// Test Redis connection with timeout
	connectCtx, connectCancel := context.WithTimeout(ctx, 5*time.Second)
	defer connectCancel()

	app.log.Printf("Connecting to Redis at %s:%d...", opts.RedisServerAddr, opts.RedisServerPort)

	if err := app.redis.Ping(connectCtx).Err(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to connect to Redis: %v", err)
	}
	app.log.Printf("Successfully connected to Redis")

	app.ipcTx = NewIPCTx(app.log, app.redis)
	app.log.Printf("IPC TX component initialized")

	app.diag = NewDiag(app.log, app.redis)
	app.log.Printf("Diagnostics component initialized")

	// Open odometer storage and hydrate the trip meters
	store, err := OpenBoltTripStore(opts.TripDBPath)
	if err != nil {
		cancel()
		return nil, err
	}
	app.store = store
	app.trips = NewTripSet(app.log, store)
	app.log.Printf("Trip accountant initialized from %s", opts.TripDBPath)

	app.decoder = fardriver.NewDecoder(fardriver.Config{
		Logger:             app.log,
		Trips:              app.trips,
		GearRatio:          opts.GearRatio,
		WheelCircumference: opts.WheelCircumference,
	})
	app.log.Printf("Frame decoder initialized (gear ratio %.1f, wheel %.3f m)",
		opts.GearRatio, opts.WheelCircumference)

	app.battery = NewBatteryMonitor(app.log, app.ipcTx)
	app.regen = NewRegenIndicator(app.log, app.ipcTx)

	if opts.Simulate {
		app.transport = NewSimTransport(app.log)
		app.log.Printf("Using simulated controller transport")
	} else {
		app.transport = NewBLETransport(app.log)
		app.log.Printf("Using BLE controller transport")
	}

	app.session = NewSession(app.log, app.transport, app.decoder, app.trips, KeepAliveInterval)
	app.session.SetStateCallback(app.handleLinkState)
	app.session.SetFrameCallback(app.handleFrameUpdate)
	app.log.Printf("Link session initialized")

	// Write default values to Redis now that trips are loaded
	app.writeDefaultRedisState()

	// Start health check goroutine
	go app.redisHealthCheck()

	app.ipcRx = NewIPCRx(app.log, app.redis, app.trips, app.ipcTx)
	if app.ipcRx == nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize IPC RX")
	}
	app.log.Printf("IPC RX component initialized")

	return app, nil
}

// Run services the link session until it terminates or the app is destroyed.
func (app *InstrumentApp) Run() error {
	return app.session.Run(app.ctx)
}

// handleFrameUpdate mirrors the latest decoded state into Redis. It runs on
// the session goroutine after every decoded frame.
func (app *InstrumentApp) handleFrameUpdate() {
	app.mu.Lock()
	defer app.mu.Unlock()

	snapshot := app.decoder.Snapshot()

	// Only update telemetry if speed has changed
	if snapshot.Speed != app.lastSpeed {
		telemetry := TelemetryStatus{
			Speed:    snapshot.Speed,
			RPM:      snapshot.RPM,
			Power:    snapshot.Power,
			Voltage:  snapshot.Voltage,
			Gear:     snapshot.Gear.String(),
			Throttle: snapshot.Throttle,
		}

		if err := app.ipcTx.SendTelemetry(telemetry); err != nil {
			app.log.Printf("Failed to send telemetry: %v", err)
		} else {
			app.lastSpeed = snapshot.Speed
		}
	}

	thermal := ThermalStatus{
		ControllerTemp: snapshot.ControllerTemp,
		MotorTemp:      snapshot.MotorTemp,
	}
	if err := app.ipcTx.SendThermal(thermal); err != nil {
		app.log.Printf("Failed to send thermal status: %v", err)
	}

	total, trip1, trip2 := app.trips.State()
	if total.DistanceKm != app.lastTotalKm {
		if err := app.ipcTx.SendTrips(TripStatus{Total: total, Trip1: trip1, Trip2: trip2}); err != nil {
			app.log.Printf("Failed to send trip status: %v", err)
		} else {
			app.lastTotalKm = total.DistanceKm
		}
	}

	app.battery.Update(snapshot.Voltage)
	app.regen.Update(snapshot.Power, snapshot.RPM)

	app.diag.ReportDecodeStats(app.decoder.Stats())
}

func (app *InstrumentApp) handleLinkState(state LinkState) {
	if err := app.ipcTx.SendLinkStatus(state); err != nil {
		app.log.Printf("Failed to send link status: %v", err)
	}

	app.diag.ReportLinkEvent(state, "")

	// Flush trip counters when the link drops so a restart resumes from
	// the latest figures.
	if state == LinkDisconnected {
		app.trips.Persist()
	}
}

func (app *InstrumentApp) redisHealthCheck() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-app.ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(app.ctx, 2*time.Second)
			if err := app.redis.Ping(ctx).Err(); err != nil {
				app.log.Printf("Redis health check failed: %v", err)
			}
			cancel()
		}
	}
}

func (app *InstrumentApp) Destroy() {
	app.log.Printf("Shutting down instrument service...")

	if app.cancel != nil {
		app.cancel()
	}

	if app.ipcRx != nil {
		app.ipcRx.Destroy()
		app.log.Printf("IPC RX shutdown complete")
	}

	if app.transport != nil {
		if err := app.transport.Close(); err != nil {
			app.log.Printf("Error closing transport: %v", err)
		} else {
			app.log.Printf("Transport shutdown complete")
		}
	}

	if app.regen != nil {
		app.regen.Destroy()
	}

	if app.battery != nil {
		app.battery.Destroy()
	}

	if app.trips != nil {
		app.trips.Persist()
		app.log.Printf("Trip counters persisted")
	}

	if app.store != nil {
		if err := app.store.Close(); err != nil {
			app.log.Printf("Error closing trip database: %v", err)
		} else {
			app.log.Printf("Trip database closed")
		}
	}

	if app.diag != nil {
		app.diag.Destroy()
	}

	if app.ipcTx != nil {
		app.ipcTx.Destroy()
	}

	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.log.Printf("Error closing Redis connection: %v", err)
		} else {
			app.log.Printf("Redis connection closed")
		}
	}

	app.log.Printf("Instrument service shutdown complete")
}
