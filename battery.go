package main

import (
	"math"
	"sync"
)

const (
	// Pack voltage thresholds for the low-battery indicator. The recover
	// threshold sits above the trip threshold so the indicator does not
	// flap on voltage sag under load.
	BatteryLowVoltage     = 72.0
	BatteryRecoverVoltage = 75.0

	// Minimum voltage delta worth republishing.
	batteryPublishDelta = 0.5
)

// BatteryMonitor watches the decoded pack voltage and maintains the
// low-battery indication for the display.
type BatteryMonitor struct {
	log   *LeveledLogger
	ipcTx *IPCTx
	mu    sync.Mutex

	known       bool
	low         bool
	lastVoltage float64
}

func NewBatteryMonitor(logger *LeveledLogger, ipcTx *IPCTx) *BatteryMonitor {
	return &BatteryMonitor{
		log:   logger,
		ipcTx: ipcTx,
	}
}

func (b *BatteryMonitor) Destroy() {}

// Update feeds the latest decoded voltage. A zero voltage means no battery
// frame has arrived yet and is ignored.
func (b *BatteryMonitor) Update(voltage float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if voltage == 0 {
		return
	}

	low := b.low
	if voltage < BatteryLowVoltage {
		low = true
	} else if voltage >= BatteryRecoverVoltage {
		low = false
	}

	changed := !b.known || low != b.low ||
		math.Abs(voltage-b.lastVoltage) >= batteryPublishDelta
	if !changed {
		return
	}

	if low != b.low {
		if low {
			b.log.Warn("Battery low: %.1f V", voltage)
		} else {
			b.log.Info("Battery recovered: %.1f V", voltage)
		}
	}

	b.known = true
	b.low = low
	b.lastVoltage = voltage

	if err := b.ipcTx.SendBattery(BatteryStatus{Voltage: voltage, Low: low}); err != nil {
		b.log.Printf("Failed to send battery status: %v", err)
	}
}

// Low returns the current low-battery indication.
func (b *BatteryMonitor) Low() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.low
}
