package wire

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
)

// Frame is one message exchanged with the modem
type Frame struct {
	Type    MessageType
	Seq     uint8
	Payload []byte
}

// NewFrame creates a new frame
func NewFrame(t MessageType, seq uint8, payload []byte) *Frame {
	return &Frame{Type: t, Seq: seq, Payload: payload}
}

// Serialize converts the frame to wire format:
//
//	A5 5A | len (LE16) | type | seq | header CRC | payload in 16 byte blocks, each followed by its CRC
func (f *Frame) Serialize() ([]byte, error) {
	n := len(f.Payload)
	if n > MaxPayloadSize {
		return nil, ErrFrameTooLong
	}

	header := make([]byte, 6, HeaderSize+encodedSize(n))
	header[0] = StartByte1
	header[1] = StartByte2
	header[2] = byte(n)
	header[3] = byte(n >> 8)
	header[4] = byte(f.Type)
	header[5] = f.Seq

	crc := CalculateCRC(header)
	result := append(header, byte(crc), byte(crc>>8))
	return append(result, addBlockCRCs(f.Payload)...), nil
}

// Parse parses one frame from the start of data and returns the number of bytes consumed
func Parse(data []byte) (*Frame, int, error) {
	if len(data) < HeaderSize {
		return nil, 0, ErrFrameTooShort
	}
	if data[0] != StartByte1 || data[1] != StartByte2 {
		return nil, 0, ErrInvalidStartBytes
	}
	if !VerifyCRC(data[:HeaderSize]) {
		return nil, 0, ErrInvalidCRC
	}

	n := int(data[2]) | int(data[3])<<8
	if n > MaxPayloadSize {
		return nil, 0, ErrInvalidLength
	}

	size := HeaderSize + encodedSize(n)
	if len(data) < size {
		return nil, 0, ErrFrameTooShort
	}

	frame := &Frame{
		Type: MessageType(data[4]),
		Seq:  data[5],
	}
	if n > 0 {
		payload, err := removeBlockCRCs(data[HeaderSize:size])
		if err != nil {
			return nil, 0, err
		}
		frame.Payload = payload
	}

	return frame, size, nil
}

// String returns a string representation of the frame
func (f *Frame) String() string {
	return fmt.Sprintf("Frame{Type=%s, Seq=%d, Len=%d}", f.Type, f.Seq, len(f.Payload))
}

// Clone creates a deep copy of the frame
func (f *Frame) Clone() *Frame {
	return &Frame{Type: f.Type, Seq: f.Seq, Payload: bytes.Clone(f.Payload)}
}

// Reader reads frames from a byte stream. Bytes that do not start a valid
// frame header are skipped, so the reader resynchronizes after line noise.
type Reader struct {
	r         *bufio.Reader
	discarded uint64
}

// NewReader creates a frame reader over r
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReaderSize(r, MaxFrameSize)}
}

// ReadFrame blocks until a complete frame is available.
// A frame with a valid header but a corrupt payload is consumed and reported as ErrInvalidCRC.
func (r *Reader) ReadFrame() (*Frame, error) {
	for {
		header, err := r.r.Peek(HeaderSize)
		if err != nil {
			return nil, err
		}

		if header[0] != StartByte1 || header[1] != StartByte2 || !VerifyCRC(header) {
			r.skip(1)
			continue
		}

		n := int(header[2]) | int(header[3])<<8
		if n > MaxPayloadSize {
			r.skip(1)
			continue
		}

		size := HeaderSize + encodedSize(n)
		data, err := r.r.Peek(size)
		if err != nil {
			return nil, err
		}

		frame, consumed, err := Parse(data)
		if err != nil {
			consumed = size
		}
		if _, derr := r.r.Discard(consumed); derr != nil {
			return nil, derr
		}
		return frame, err
	}
}

// Discarded returns the number of noise bytes skipped while searching for a frame header
func (r *Reader) Discarded() uint64 {
	return r.discarded
}

func (r *Reader) skip(n int) {
	d, _ := r.r.Discard(n)
	r.discarded += uint64(d)
}

// WriteFrame serializes f and writes it to w
func WriteFrame(w io.Writer, f *Frame) error {
	data, err := f.Serialize()
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
