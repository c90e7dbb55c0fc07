package main

import (
	"fmt"
	"math"
	"sync"

	"github.com/C-broderick-225/EKSR-Instrument/fardriver"
)

const (
	// TripSaveThresholdKm throttles persistence to roughly every 100 m of
	// Total advance, and only while the motor is turning. Saving on every
	// frame would wear the flash; gating on propulsion avoids a spurious
	// save at power-off when RPM falls to zero.
	TripSaveThresholdKm = 0.1

	OdometerTotal = "total"
	OdometerTrip1 = "trip1"
	OdometerTrip2 = "trip2"
)

// OdometerState is the externally visible portion of one odometer.
type OdometerState struct {
	DistanceKm float64
	PeakSpeed  float64
	PeakPower  float64
}

type odometer struct {
	label      string
	resettable bool
	OdometerState
}

func (o *odometer) observeSpeed(kmh float64) {
	if kmh > o.PeakSpeed {
		o.PeakSpeed = kmh
	}
}

func (o *odometer) observePower(kw float64) {
	if kw > o.PeakPower {
		o.PeakPower = kw
	}
}

// TripSet holds the three odometers: the lifetime Total plus two user trip
// meters. It implements fardriver.TripRecorder.
type TripSet struct {
	log   *LeveledLogger
	store TripStore

	mu          sync.Mutex
	total       odometer
	trip1       odometer
	trip2       odometer
	sinceSaveKm float64
}

// NewTripSet constructs the odometers and hydrates them from storage.
// Missing or unreadable stored values default to zero.
func NewTripSet(logger *LeveledLogger, store TripStore) *TripSet {
	t := &TripSet{
		log:   logger,
		store: store,
		total: odometer{label: OdometerTotal},
		trip1: odometer{label: OdometerTrip1, resettable: true},
		trip2: odometer{label: OdometerTrip2, resettable: true},
	}

	for _, o := range []*odometer{&t.total, &t.trip1, &t.trip2} {
		t.loadOdometer(o)
	}

	t.log.Info("Odometers loaded: total=%.1f km, trip1=%.1f km, trip2=%.1f km",
		t.total.DistanceKm, t.trip1.DistanceKm, t.trip2.DistanceKm)

	return t
}

func (t *TripSet) loadOdometer(o *odometer) {
	o.DistanceKm = t.loadField(o.label + "_km")
	o.PeakSpeed = t.loadField(o.label + "_speed")
	o.PeakPower = t.loadField(o.label + "_power")
}

// loadField reads one fixed-point field. A read failure is treated as "no
// persisted data" per the storage error policy.
func (t *TripSet) loadField(key string) float64 {
	raw, ok, err := t.store.Get(key)
	if err != nil {
		t.log.Warn("Failed to load %s, defaulting to 0: %v", key, err)
		return 0
	}
	if !ok {
		return 0
	}
	return float64(raw) / 10.0
}

// AddDistance accumulates an incremental distance on all three odometers and
// persists once Total has advanced past the save threshold while propelling.
func (t *TripSet) AddDistance(km float64, propelling bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.total.DistanceKm += km
	t.trip1.DistanceKm += km
	t.trip2.DistanceKm += km
	t.sinceSaveKm += km

	if propelling && t.sinceSaveKm >= TripSaveThresholdKm {
		t.persistLocked()
		t.sinceSaveKm = 0
	}
}

// ObserveSpeed updates peak speed on all odometers.
func (t *TripSet) ObserveSpeed(kmh float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.total.observeSpeed(kmh)
	t.trip1.observeSpeed(kmh)
	t.trip2.observeSpeed(kmh)
}

// ObservePower updates peak power on all odometers. Samples arrive as
// positive magnitudes for driving draw; a regen sample is negative and never
// beats the stored peak.
func (t *TripSet) ObservePower(kw float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.total.observePower(kw)
	t.trip1.observePower(kw)
	t.trip2.observePower(kw)
}

// Reset zeroes one trip meter and persists it immediately. Total refuses.
func (t *TripSet) Reset(label string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	o, err := t.odometerByLabel(label)
	if err != nil {
		return err
	}
	if !o.resettable {
		return fmt.Errorf("odometer %s is not resettable", label)
	}

	o.OdometerState = OdometerState{}
	t.persistOdometerLocked(o)
	t.log.Info("Odometer %s reset", label)
	return nil
}

// StartRide marks the beginning of a new link session: Trip2 auto-resets so
// it always reads per-ride figures.
func (t *TripSet) StartRide() {
	if err := t.Reset(OdometerTrip2); err != nil {
		t.log.Error("Failed to auto-reset trip2: %v", err)
	}
}

// Persist forces an immediate save of all three odometers.
func (t *TripSet) Persist() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.persistLocked()
	t.sinceSaveKm = 0
}

// State returns copies of the three odometer states.
func (t *TripSet) State() (total, trip1, trip2 OdometerState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total.OdometerState, t.trip1.OdometerState, t.trip2.OdometerState
}

func (t *TripSet) odometerByLabel(label string) (*odometer, error) {
	switch label {
	case OdometerTotal:
		return &t.total, nil
	case OdometerTrip1:
		return &t.trip1, nil
	case OdometerTrip2:
		return &t.trip2, nil
	}
	return nil, fmt.Errorf("unknown odometer %q", label)
}

func (t *TripSet) persistLocked() {
	t.persistOdometerLocked(&t.total)
	t.persistOdometerLocked(&t.trip1)
	t.persistOdometerLocked(&t.trip2)
}

// persistOdometerLocked writes the three fixed-point fields (value x10, one
// decimal digit). A failed write is logged and lost; there is no retry.
func (t *TripSet) persistOdometerLocked(o *odometer) {
	fields := map[string]float64{
		o.label + "_km":    o.DistanceKm,
		o.label + "_speed": o.PeakSpeed,
		o.label + "_power": o.PeakPower,
	}
	for key, value := range fields {
		if err := t.store.Put(key, uint32(math.Round(value*10))); err != nil {
			t.log.Warn("Failed to persist %s: %v", key, err)
		}
	}
}

// Ensure TripSet implements the decoder's recorder interface at compile time
var _ fardriver.TripRecorder = (*TripSet)(nil)
