package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/C-broderick-225/EKSR-Instrument/fardriver"
)

const (
	// KeepAliveInterval is how often the keep-alive frame is written to the
	// controller while connected.
	KeepAliveInterval = 2000 * time.Millisecond

	// frameQueueDepth buffers transport notifications ahead of the session
	// loop. The controller sends a frame roughly every 30 ms.
	frameQueueDepth = 32
)

type LinkState int

const (
	LinkSearching LinkState = iota
	LinkConnected
	LinkDisconnected
)

func (s LinkState) String() string {
	switch s {
	case LinkSearching:
		return "searching"
	case LinkConnected:
		return "connected"
	case LinkDisconnected:
		fallthrough
	default:
		return "disconnected"
	}
}

// Transport abstracts the wireless link to the controller. Implementations:
// BLETransport (real hardware) and SimTransport (emulated controller).
type Transport interface {
	// Connect performs discovery and establishes the link, registering
	// handler for received frames. It blocks until connected or failed.
	Connect(ctx context.Context, handler func(frame []byte)) error
	// Send writes one host-to-peripheral frame. No acknowledgement is
	// expected or checked.
	Send(data []byte) error
	// Disconnects delivers asynchronous link-loss events.
	Disconnects() <-chan error
	Close() error
}

// Session owns the link state machine: discovery, keep-alive pacing and the
// single-consumer frame queue that feeds the decoder. Decode runs only on the
// session goroutine, so at most one decode is in flight at any time.
type Session struct {
	log       *LeveledLogger
	transport Transport
	decoder   *fardriver.Decoder
	trips     *TripSet
	keepAlive time.Duration

	onState func(LinkState)
	onFrame func()

	mu              sync.RWMutex
	state           LinkState
	framesDiscarded uint64

	frames chan []byte
}

func NewSession(logger *LeveledLogger, transport Transport, decoder *fardriver.Decoder, trips *TripSet, keepAlive time.Duration) *Session {
	return &Session{
		log:       logger,
		transport: transport,
		decoder:   decoder,
		trips:     trips,
		keepAlive: keepAlive,
		state:     LinkSearching,
		frames:    make(chan []byte, frameQueueDepth),
	}
}

// SetStateCallback registers a callback invoked on every state transition.
func (s *Session) SetStateCallback(callback func(LinkState)) {
	s.onState = callback
}

// SetFrameCallback registers a callback invoked after every decoded frame.
func (s *Session) SetFrameCallback(callback func()) {
	s.onFrame = callback
}

// State returns the current link state.
func (s *Session) State() LinkState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// FramesDiscarded counts frames that arrived outside a Connected session.
func (s *Session) FramesDiscarded() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.framesDiscarded
}

// handleFrame is invoked from the transport's notification context. It queues
// the frame for the session goroutine; it never decodes in place.
func (s *Session) handleFrame(frame []byte) {
	s.mu.Lock()
	if s.state != LinkConnected {
		// Frames outside an established session are discarded.
		s.framesDiscarded++
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	// The transport may reuse its notification buffer.
	buf := make([]byte, len(frame))
	copy(buf, frame)

	select {
	case s.frames <- buf:
	default:
		s.log.Debug("frame queue full, dropping frame")
	}
}

// Run drives one link session to completion: search, connect, then service
// frames and keep-alives until the link drops or ctx is cancelled. A
// Disconnected transition is terminal for the session; the caller exits and
// the process supervisor restarts the service.
func (s *Session) Run(ctx context.Context) error {
	s.setState(LinkSearching)

	if err := s.transport.Connect(ctx, s.handleFrame); err != nil {
		s.setState(LinkDisconnected)
		return fmt.Errorf("connect failed: %w", err)
	}

	s.setState(LinkConnected)

	// A fresh session means a fresh per-ride trip meter.
	s.trips.StartRide()

	keepAlive := time.NewTicker(s.keepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			s.setState(LinkDisconnected)
			return ctx.Err()

		case frame := <-s.frames:
			if err := s.decoder.HandleFrame(frame); err != nil {
				s.log.Error("Frame decode error: %v", err)
			}
			if s.onFrame != nil {
				s.onFrame()
			}

		case <-keepAlive.C:
			s.log.DebugFrame("TX", fardriver.KeepAliveFrame)
			if err := s.transport.Send(fardriver.KeepAliveFrame); err != nil {
				s.log.Warn("Keep-alive send failed: %v", err)
			}

		case err := <-s.transport.Disconnects():
			s.setState(LinkDisconnected)
			if err == nil {
				err = errors.New("link closed by peripheral")
			}
			return err
		}
	}
}

func (s *Session) setState(state LinkState) {
	s.mu.Lock()
	if s.state == state {
		s.mu.Unlock()
		return
	}
	previous := s.state
	s.state = state
	callback := s.onState
	s.mu.Unlock()

	s.log.Info("Link state: %s -> %s", previous, state)

	if callback != nil {
		callback(state)
	}
}
