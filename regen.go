package main

import "sync"

// RegenIndicator tracks whether the controller is currently regenerating:
// decoded power turns positive while the motor is still turning. The display
// uses it to recolor the power readout.
type RegenIndicator struct {
	log   *LeveledLogger
	ipcTx *IPCTx
	mu    sync.Mutex

	active bool
}

func NewRegenIndicator(logger *LeveledLogger, ipcTx *IPCTx) *RegenIndicator {
	return &RegenIndicator{
		log:   logger,
		ipcTx: ipcTx,
	}
}

func (r *RegenIndicator) Destroy() {}

// Update feeds the latest decoded power and rear-wheel RPM.
func (r *RegenIndicator) Update(powerKw float64, rpm uint16) {
	r.mu.Lock()
	defer r.mu.Unlock()

	active := powerKw > 0 && rpm > 0
	if active == r.active {
		return
	}
	r.active = active

	r.log.Info("Regen %s", map[bool]string{true: "active", false: "inactive"}[active])

	if err := r.ipcTx.SendRegen(active); err != nil {
		r.log.Printf("Failed to send regen status: %v", err)
	}
}

// Active returns the current regen indication.
func (r *RegenIndicator) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}
