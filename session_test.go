package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/C-broderick-225/EKSR-Instrument/fardriver"
)

// fakeTransport implements Transport with scripted behavior.
type fakeTransport struct {
	mu      sync.Mutex
	handler func(frame []byte)
	sent    [][]byte
	disc    chan error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{disc: make(chan error, 1)}
}

func (t *fakeTransport) Connect(ctx context.Context, handler func(frame []byte)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = handler
	return nil
}

func (t *fakeTransport) Send(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	t.sent = append(t.sent, buf)
	return nil
}

func (t *fakeTransport) Disconnects() <-chan error { return t.disc }
func (t *fakeTransport) Close() error              { return nil }

func (t *fakeTransport) sentFrames() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]byte, len(t.sent))
	copy(out, t.sent)
	return out
}

func (t *fakeTransport) deliver(frame []byte) {
	t.mu.Lock()
	handler := t.handler
	t.mu.Unlock()
	handler(frame)
}

type sessionFixture struct {
	session   *Session
	transport *fakeTransport
	decoder   *fardriver.Decoder
	trips     *TripSet
	states    chan LinkState
	frames    chan struct{}
	done      chan error
}

func newSessionFixture(t *testing.T, keepAlive time.Duration) *sessionFixture {
	t.Helper()

	transport := newFakeTransport()
	trips := NewTripSet(newTestLogger(), newFakeStore())
	decoder := fardriver.NewDecoder(fardriver.Config{Trips: trips})

	f := &sessionFixture{
		transport: transport,
		decoder:   decoder,
		trips:     trips,
		states:    make(chan LinkState, 8),
		frames:    make(chan struct{}, 64),
		done:      make(chan error, 1),
	}
	f.session = NewSession(newTestLogger(), transport, decoder, trips, keepAlive)
	f.session.SetStateCallback(func(s LinkState) { f.states <- s })
	f.session.SetFrameCallback(func() { f.frames <- struct{}{} })
	return f
}

func (f *sessionFixture) run(ctx context.Context) {
	go func() { f.done <- f.session.Run(ctx) }()
}

func waitState(t *testing.T, ch chan LinkState, expected LinkState) {
	t.Helper()
	select {
	case got := <-ch:
		if got != expected {
			t.Fatalf("expected state %s, got %s", expected, got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for state %s", expected)
	}
}

func TestSession_ConnectTransitions(t *testing.T) {
	f := newSessionFixture(t, time.Hour)
	f.trips.AddDistance(3.0, true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.run(ctx)

	waitState(t, f.states, LinkConnected)

	if f.session.State() != LinkConnected {
		t.Errorf("expected connected, got %s", f.session.State())
	}

	// A new session starts a fresh per-ride trip meter
	_, trip1, trip2 := f.trips.State()
	if trip2.DistanceKm != 0 {
		t.Errorf("trip2 should reset on connect, got %f", trip2.DistanceKm)
	}
	if trip1.DistanceKm != 3.0 {
		t.Errorf("trip1 must survive connect, got %f", trip1.DistanceKm)
	}
}

func TestSession_FramesDiscardedBeforeConnect(t *testing.T) {
	f := newSessionFixture(t, time.Hour)

	// Deliver straight to the handler without running the session
	f.session.handleFrame(fardriver.BuildFrame(fardriver.FrameTypeBattery, make([]byte, 12)))

	if got := f.session.FramesDiscarded(); got != 1 {
		t.Errorf("expected 1 discarded frame, got %d", got)
	}
	if got := f.decoder.Stats().FramesReceived; got != 0 {
		t.Errorf("discarded frame must not reach the decoder, got %d received", got)
	}
}

func TestSession_FrameDecodedThroughQueue(t *testing.T) {
	f := newSessionFixture(t, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.run(ctx)
	waitState(t, f.states, LinkConnected)

	payload := make([]byte, 12)
	binary.BigEndian.PutUint16(payload[0:2], 843)
	f.transport.deliver(fardriver.BuildFrame(fardriver.FrameTypeBattery, payload))

	select {
	case <-f.frames:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame callback")
	}

	if got := f.decoder.Snapshot().Voltage; got < 84.2 || got > 84.4 {
		t.Errorf("expected 84.3 V decoded, got %f", got)
	}
}

func TestSession_KeepAliveSent(t *testing.T) {
	f := newSessionFixture(t, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.run(ctx)
	waitState(t, f.states, LinkConnected)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, frame := range f.transport.sentFrames() {
			if bytes.Equal(frame, fardriver.KeepAliveFrame) {
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("keep-alive frame never sent")
}

func TestSession_DisconnectTerminatesRun(t *testing.T) {
	f := newSessionFixture(t, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.run(ctx)
	waitState(t, f.states, LinkConnected)

	f.transport.disc <- nil

	waitState(t, f.states, LinkDisconnected)

	select {
	case err := <-f.done:
		if err == nil {
			t.Error("a dropped link must surface an error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after disconnect")
	}

	if f.session.State() != LinkDisconnected {
		t.Errorf("expected disconnected, got %s", f.session.State())
	}
}

func TestSession_ContextCancelStopsRun(t *testing.T) {
	f := newSessionFixture(t, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	f.run(ctx)
	waitState(t, f.states, LinkConnected)

	cancel()

	select {
	case err := <-f.done:
		if err == nil {
			t.Error("cancelled run must return the context error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestLinkState_String(t *testing.T) {
	tests := []struct {
		state    LinkState
		expected string
	}{
		{LinkSearching, "searching"},
		{LinkConnected, "connected"},
		{LinkDisconnected, "disconnected"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.expected {
			t.Errorf("state %d: expected %s, got %s", tt.state, tt.expected, got)
		}
	}
}
