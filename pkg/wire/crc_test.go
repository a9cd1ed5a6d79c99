package wire

import (
	"bytes"
	"testing"
)

func TestCalculateCRC_KnownVectors(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected uint16
	}{
		{"Empty data", []byte{}, 0xFFFF},
		{"Single byte 0x05", []byte{0x05}, 0x10D9},
		{"Two bytes", []byte{0x05, 0x64}, 0xC0F2},
		{"DNP3 link header", []byte{0x05, 0x64, 0x05, 0xC0, 0x01, 0x00, 0x00, 0x04}, 0x21E9},
		{"All zeros", make([]byte, 16), 0xFFFF},
		{"All 0xFF", bytes.Repeat([]byte{0xFF}, 16), 0x0053},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CalculateCRC(tt.data); got != tt.expected {
				t.Errorf("CalculateCRC() = 0x%04X, expected 0x%04X", got, tt.expected)
			}
		})
	}
}

func TestAppendCRC_RealFrameHeader(t *testing.T) {
	// header of a DNP3 reset-link frame captured on the wire
	frame := []byte{0x05, 0x64, 0x05, 0xC0, 0x01, 0x00, 0x00, 0x04, 0xE9, 0x21}

	if got := AppendCRC(frame[:8]); !bytes.Equal(got, frame) {
		t.Errorf("AppendCRC() = % X, expected % X", got, frame)
	}
	if !VerifyCRC(frame) {
		t.Error("VerifyCRC() = false for captured header")
	}
}

func TestAppendCRC_Verifies(t *testing.T) {
	data := []byte{0xA5, 0x5A, 0x03, 0x00, 0x07, 0x01}
	withCRC := AppendCRC(data)

	if len(withCRC) != len(data)+2 {
		t.Fatalf("len = %d, want %d", len(withCRC), len(data)+2)
	}
	if !VerifyCRC(withCRC) {
		t.Error("VerifyCRC() = false for freshly appended CRC")
	}

	withCRC[2] ^= 0x01
	if VerifyCRC(withCRC) {
		t.Error("VerifyCRC() = true after corruption")
	}
	if VerifyCRC([]byte{0x01}) {
		t.Error("VerifyCRC() = true for one byte")
	}
}

func TestBlockCRCs_RoundTrip(t *testing.T) {
	for _, n := range []int{1, 15, 16, 17, 32, 100} {
		data := make([]byte, n)
		for i := range data {
			data[i] = byte(i * 7)
		}

		encoded := addBlockCRCs(data)
		if len(encoded) != encodedSize(n) {
			t.Errorf("n=%d: encoded len = %d, want %d", n, len(encoded), encodedSize(n))
		}

		decoded, err := removeBlockCRCs(encoded)
		if err != nil {
			t.Fatalf("n=%d: removeBlockCRCs() error = %v", n, err)
		}
		if !bytes.Equal(decoded, data) {
			t.Errorf("n=%d: round trip mismatch", n)
		}

		encoded[0] ^= 0xFF
		if _, err := removeBlockCRCs(encoded); err != ErrInvalidCRC {
			t.Errorf("n=%d: corrupted block error = %v, want %v", n, err, ErrInvalidCRC)
		}
	}
}
