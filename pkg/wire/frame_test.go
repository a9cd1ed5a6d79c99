package wire

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"avaneesh/lorawan-node/pkg/lorawan"
)

func TestFrame_SerializeParse(t *testing.T) {
	tests := []struct {
		name    string
		frame   *Frame
		wireLen int
	}{
		{"Empty payload", NewFrame(MsgPing, 1, nil), HeaderSize},
		{"Short payload", NewFrame(MsgSend, 2, []byte{1, 2, 3}), HeaderSize + 3 + 2},
		{"Two blocks", NewFrame(MsgResponse, 200, make([]byte, 20)), HeaderSize + 20 + 4},
		{"Max payload", NewFrame(MsgEvent, 0, make([]byte, MaxPayloadSize)), HeaderSize + MaxPayloadSize + 2*(MaxPayloadSize/BlockSize)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := tt.frame.Serialize()
			if err != nil {
				t.Fatalf("Serialize() error = %v", err)
			}
			if len(data) != tt.wireLen {
				t.Errorf("len = %d, want %d", len(data), tt.wireLen)
			}

			got, n, err := Parse(data)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if n != len(data) {
				t.Errorf("consumed = %d, want %d", n, len(data))
			}
			if got.Type != tt.frame.Type || got.Seq != tt.frame.Seq {
				t.Errorf("got %s, want %s", got, tt.frame)
			}
			if len(tt.frame.Payload) > 0 && !bytes.Equal(got.Payload, tt.frame.Payload) {
				t.Error("payload mismatch")
			}
		})
	}
}

func TestFrame_SerializeTooLong(t *testing.T) {
	_, err := NewFrame(MsgSend, 1, make([]byte, MaxPayloadSize+1)).Serialize()
	if err != ErrFrameTooLong {
		t.Errorf("error = %v, want %v", err, ErrFrameTooLong)
	}
}

func TestParse_Errors(t *testing.T) {
	good, _ := NewFrame(MsgSend, 9, []byte("payload")).Serialize()

	badStart := bytes.Clone(good)
	badStart[0] = 0x00

	badHeader := bytes.Clone(good)
	badHeader[5] ^= 0x01

	badPayload := bytes.Clone(good)
	badPayload[HeaderSize] ^= 0x01

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"Too short", good[:HeaderSize-1], ErrFrameTooShort},
		{"Truncated payload", good[:len(good)-1], ErrFrameTooShort},
		{"Bad start bytes", badStart, ErrInvalidStartBytes},
		{"Bad header CRC", badHeader, ErrInvalidCRC},
		{"Bad payload CRC", badPayload, ErrInvalidCRC},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := Parse(tt.data); err != tt.want {
				t.Errorf("Parse() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestReader_ResynchronizesAfterNoise(t *testing.T) {
	var stream bytes.Buffer
	stream.Write([]byte{0x00, 0xA5, 0x13, 0x37})
	if err := WriteFrame(&stream, NewFrame(MsgEvent, 0, EncodeEvent(lorawan.EventTxDone))); err != nil {
		t.Fatal(err)
	}
	stream.Write([]byte{0xA5, 0x00})
	if err := WriteFrame(&stream, NewFrame(MsgResponse, 4, Response{Code: 5}.Encode())); err != nil {
		t.Fatal(err)
	}

	r := NewReader(&stream)

	first, err := r.ReadFrame()
	if err != nil {
		t.Fatalf("first ReadFrame() error = %v", err)
	}
	if first.Type != MsgEvent {
		t.Errorf("first type = %s, want %s", first.Type, MsgEvent)
	}

	second, err := r.ReadFrame()
	if err != nil {
		t.Fatalf("second ReadFrame() error = %v", err)
	}
	if second.Type != MsgResponse || second.Seq != 4 {
		t.Errorf("second = %s", second)
	}
	if r.Discarded() != 6 {
		t.Errorf("Discarded() = %d, want 6", r.Discarded())
	}

	if _, err := r.ReadFrame(); !errors.Is(err, io.EOF) {
		t.Errorf("ReadFrame() at end error = %v, want EOF", err)
	}
}

func TestReader_CorruptPayloadIsConsumed(t *testing.T) {
	bad, _ := NewFrame(MsgSend, 1, []byte{1, 2, 3}).Serialize()
	bad[HeaderSize+1] ^= 0xFF
	good, _ := NewFrame(MsgPing, 2, nil).Serialize()

	r := NewReader(bytes.NewReader(append(bad, good...)))

	if _, err := r.ReadFrame(); err != ErrInvalidCRC {
		t.Fatalf("ReadFrame() error = %v, want %v", err, ErrInvalidCRC)
	}
	f, err := r.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	if f.Type != MsgPing || f.Seq != 2 {
		t.Errorf("got %s", f)
	}
}
