package fardriver

// Checksum computes the XOR of frame bytes 1..13, the value producers store
// in byte 14. Byte 15 is reserved and always zero.
func Checksum(frame []byte) byte {
	var sum byte
	for i := 1; i <= 13; i++ {
		sum ^= frame[i]
	}
	return sum
}

// ChecksumValid reports whether the stored checksum matches the payload.
// The decoder treats a mismatch as advisory: the frame is still decoded,
// the mismatch only counted.
func ChecksumValid(frame []byte) bool {
	if len(frame) != FrameSize {
		return false
	}
	return Checksum(frame) == frame[14]
}

// BuildFrame assembles a well-formed wire frame from a type index and up to
// 12 payload bytes. Used by the simulated peripheral and test fixtures.
func BuildFrame(frameType byte, payload []byte) []byte {
	frame := make([]byte, FrameSize)
	frame[0] = FrameHeader
	frame[1] = frameType
	copy(frame[2:14], payload)
	frame[14] = Checksum(frame)
	return frame
}
