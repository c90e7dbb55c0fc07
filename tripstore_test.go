package main

import (
	"path/filepath"
	"testing"
)

func TestBoltTripStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trips.db")

	store, err := OpenBoltTripStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	if err := store.Put("total_km", 123); err != nil {
		t.Fatalf("put: %v", err)
	}

	value, found, err := store.Get("total_km")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !found {
		t.Fatal("expected key to be found")
	}
	if value != 123 {
		t.Errorf("expected 123, got %d", value)
	}
}

func TestBoltTripStore_MissingKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trips.db")

	store, err := OpenBoltTripStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	_, found, err := store.Get("trip9_km")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if found {
		t.Error("missing key must not be found")
	}
}

func TestBoltTripStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trips.db")

	store, err := OpenBoltTripStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := store.Put("trip1_km", 45); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	store, err = OpenBoltTripStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store.Close()

	value, found, err := store.Get("trip1_km")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !found || value != 45 {
		t.Errorf("expected 45 after reopen, got %d (found=%v)", value, found)
	}
}

func TestBoltTripStore_Overwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trips.db")

	store, err := OpenBoltTripStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	store.Put("total_km", 10)
	store.Put("total_km", 20)

	value, _, err := store.Get("total_km")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if value != 20 {
		t.Errorf("expected 20, got %d", value)
	}
}
