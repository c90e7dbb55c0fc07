package fardriver

import (
	"bytes"
	"testing"
)

func TestChecksum(t *testing.T) {
	frame := make([]byte, FrameSize)
	frame[0] = FrameHeader
	frame[1] = 0x01
	frame[2] = 0x02
	frame[3] = 0x04

	if got := Checksum(frame); got != 0x07 {
		t.Errorf("expected 0x07, got 0x%02X", got)
	}
}

func TestChecksum_IgnoresHeaderAndTrailer(t *testing.T) {
	frame := make([]byte, FrameSize)
	frame[1] = 0x55

	sum := Checksum(frame)

	frame[0] = 0xFF
	frame[14] = 0xFF
	frame[15] = 0xFF

	if got := Checksum(frame); got != sum {
		t.Errorf("checksum must cover bytes 1..13 only: 0x%02X != 0x%02X", got, sum)
	}
}

func TestBuildFrame(t *testing.T) {
	payload := []byte{0x10, 0x20, 0x30}
	frame := BuildFrame(FrameTypeBattery, payload)

	if len(frame) != FrameSize {
		t.Fatalf("expected %d bytes, got %d", FrameSize, len(frame))
	}
	if frame[0] != FrameHeader {
		t.Errorf("header: expected 0x%02X, got 0x%02X", FrameHeader, frame[0])
	}
	if frame[1] != FrameTypeBattery {
		t.Errorf("type: expected %d, got %d", FrameTypeBattery, frame[1])
	}
	if !bytes.Equal(frame[2:5], payload) {
		t.Errorf("payload mismatch: %v", frame[2:5])
	}
	if !ChecksumValid(frame) {
		t.Error("built frame must carry a valid checksum")
	}
	if frame[15] != 0 {
		t.Errorf("reserved byte: expected 0, got 0x%02X", frame[15])
	}
}

func TestChecksumValid_WrongLength(t *testing.T) {
	if ChecksumValid([]byte{0xAA, 0x00}) {
		t.Error("short frame must not validate")
	}
}

func TestKeepAliveFrame(t *testing.T) {
	expected := []byte{0xAA, 0x13, 0xEC, 0x07, 0x01, 0xF1, 0xA2, 0x5D}
	if !bytes.Equal(KeepAliveFrame, expected) {
		t.Errorf("keep-alive bytes changed: %v", KeepAliveFrame)
	}
}
