package channel

import (
	"context"
	"errors"

	"avaneesh/lorawan-node/pkg/wire"
)

var (
	ErrChannelClosed = errors.New("channel is closed")
	ErrNoConnection  = errors.New("no connection")
)

// ConnectionStateListener receives notifications about connection state changes
type ConnectionStateListener interface {
	// OnConnectionEstablished is called when a new connection is established
	OnConnectionEstablished()

	// OnConnectionLost is called when a connection is lost
	OnConnectionLost()
}

// PhysicalChannel carries modem frames over a byte stream.
// TCP, QUIC, serial ports and any io.ReadWriteCloser are supported.
type PhysicalChannel interface {
	// Read blocks until the next valid frame arrives, ctx is done or the channel closes.
	// Corrupt frames are counted and skipped.
	Read(ctx context.Context) (*wire.Frame, error)

	// Write sends one frame. Safe for concurrent use.
	Write(ctx context.Context, frame *wire.Frame) error

	// Close releases the connection and unblocks pending Read/Write
	Close() error

	// Statistics returns transport-level statistics
	Statistics() TransportStats

	// SetConnectionStateListener sets a listener for connection state changes
	SetConnectionStateListener(listener ConnectionStateListener)
}

// TransportStats provides transport-level statistics
type TransportStats struct {
	BytesSent      uint64 // Total bytes sent
	BytesReceived  uint64 // Total bytes received in valid frames
	FramesSent     uint64 // Frames written
	FramesReceived uint64 // Valid frames read
	CRCErrors      uint64 // Frames dropped for a bad payload CRC
	BytesDiscarded uint64 // Noise skipped while looking for a frame header
	WriteErrors    uint64 // Number of write errors
	ReadErrors     uint64 // Number of read errors
	Connects       uint64 // Number of connections (for connection-oriented transports)
	Disconnects    uint64 // Number of disconnections
}
