package main

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"tinygo.org/x/bluetooth"
)

// FarDriver controllers expose a serial-style GATT service: telemetry frames
// arrive as notifications on the FFEC characteristic, keep-alives are written
// back to the same characteristic.
var (
	fardriverServiceUUID = bluetooth.New16BitUUID(0xFFE0)
	fardriverCharUUID    = bluetooth.New16BitUUID(0xFFEC)
)

// BLETransport is the real-hardware Transport: it scans for the controller's
// service, connects and subscribes to telemetry notifications.
type BLETransport struct {
	log     *LeveledLogger
	adapter *bluetooth.Adapter

	mu        sync.Mutex
	device    bluetooth.Device
	char      bluetooth.DeviceCharacteristic
	connected bool

	disc chan error
}

func NewBLETransport(logger *LeveledLogger) *BLETransport {
	return &BLETransport{
		log:     logger,
		adapter: bluetooth.DefaultAdapter,
		disc:    make(chan error, 1),
	}
}

func (t *BLETransport) Connect(ctx context.Context, handler func(frame []byte)) error {
	if err := t.adapter.Enable(); err != nil {
		return fmt.Errorf("failed to enable BLE adapter: %w", err)
	}

	t.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			return
		}
		t.mu.Lock()
		wasConnected := t.connected
		t.connected = false
		t.mu.Unlock()
		if wasConnected {
			select {
			case t.disc <- errors.New("peripheral disconnected"):
			default:
			}
		}
	})

	result, err := t.scan(ctx)
	if err != nil {
		return err
	}

	t.log.Info("Connecting to %s (%s)...", result.LocalName(), result.Address.String())

	device, err := t.adapter.Connect(result.Address, bluetooth.ConnectionParams{})
	if err != nil {
		return fmt.Errorf("connect to %s failed: %w", result.Address.String(), err)
	}

	services, err := device.DiscoverServices([]bluetooth.UUID{fardriverServiceUUID})
	if err != nil || len(services) == 0 {
		device.Disconnect()
		return fmt.Errorf("telemetry service not found: %v", err)
	}

	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{fardriverCharUUID})
	if err != nil || len(chars) == 0 {
		device.Disconnect()
		return fmt.Errorf("telemetry characteristic not found: %v", err)
	}

	if err := chars[0].EnableNotifications(func(buf []byte) {
		handler(buf)
	}); err != nil {
		device.Disconnect()
		return fmt.Errorf("failed to subscribe to telemetry: %w", err)
	}

	t.mu.Lock()
	t.device = device
	t.char = chars[0]
	t.connected = true
	t.mu.Unlock()

	t.log.Info("Connected and subscribed to controller telemetry")
	return nil
}

// scan blocks until an advertiser carrying the telemetry service is found or
// ctx expires.
func (t *BLETransport) scan(ctx context.Context) (bluetooth.ScanResult, error) {
	t.log.Info("Scanning for controller...")

	found := make(chan bluetooth.ScanResult, 1)
	scanErr := make(chan error, 1)

	go func() {
		scanErr <- t.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
			if !result.AdvertisementPayload.HasServiceUUID(fardriverServiceUUID) {
				return
			}
			t.log.Info("Found controller %s (%s)", result.LocalName(), result.Address.String())
			adapter.StopScan()
			select {
			case found <- result:
			default:
			}
		})
	}()

	select {
	case <-ctx.Done():
		t.adapter.StopScan()
		return bluetooth.ScanResult{}, ctx.Err()
	case err := <-scanErr:
		if err != nil {
			return bluetooth.ScanResult{}, fmt.Errorf("scan failed: %w", err)
		}
		// Scan returned after StopScan; the result is already queued.
		select {
		case result := <-found:
			return result, nil
		default:
			return bluetooth.ScanResult{}, errors.New("scan stopped before the controller was found")
		}
	case result := <-found:
		return result, nil
	}
}

func (t *BLETransport) Send(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.connected {
		return errors.New("not connected")
	}
	_, err := t.char.WriteWithoutResponse(data)
	return err
}

func (t *BLETransport) Disconnects() <-chan error {
	return t.disc
}

func (t *BLETransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.connected {
		return nil
	}
	t.connected = false
	return t.device.Disconnect()
}
