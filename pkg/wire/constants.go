package wire

import "errors"

// Start bytes
const (
	StartByte1 uint8 = 0xA5
	StartByte2 uint8 = 0x5A
)

// Frame sizes
const (
	HeaderSize     = 8    // start bytes, length, type, sequence, header CRC
	BlockSize      = 16   // payload CRC block size
	MaxPayloadSize = 1024 // maximum payload carried by one frame
	MaxFrameSize   = HeaderSize + MaxPayloadSize + 2*(MaxPayloadSize/BlockSize)
)

// MessageType identifies the frame content
type MessageType uint8

// Requests sent by the host, answered by one MsgResponse with the same sequence number
const (
	MsgInitialize          MessageType = 0x01
	MsgSetConfirmedRetries MessageType = 0x02
	MsgEnableADR           MessageType = 0x03
	MsgDisableADR          MessageType = 0x04
	MsgConnect             MessageType = 0x05
	MsgDisconnect          MessageType = 0x06
	MsgSend                MessageType = 0x07
	MsgReceive             MessageType = 0x08
	MsgPing                MessageType = 0x09
)

// Sent by the modem
const (
	MsgResponse MessageType = 0x80 // status for a request
	MsgEvent    MessageType = 0xC0 // unsolicited stack event, sequence 0
)

// String returns string representation of MessageType
func (m MessageType) String() string {
	switch m {
	case MsgInitialize:
		return "INITIALIZE"
	case MsgSetConfirmedRetries:
		return "SET_CONFIRMED_RETRIES"
	case MsgEnableADR:
		return "ENABLE_ADR"
	case MsgDisableADR:
		return "DISABLE_ADR"
	case MsgConnect:
		return "CONNECT"
	case MsgDisconnect:
		return "DISCONNECT"
	case MsgSend:
		return "SEND"
	case MsgReceive:
		return "RECEIVE"
	case MsgPing:
		return "PING"
	case MsgResponse:
		return "RESPONSE"
	case MsgEvent:
		return "EVENT"
	default:
		return "UNKNOWN"
	}
}

// IsRequest reports whether m is sent by the host
func (m MessageType) IsRequest() bool {
	return m >= MsgInitialize && m <= MsgPing
}

var (
	ErrFrameTooShort     = errors.New("frame too short")
	ErrFrameTooLong      = errors.New("frame too long")
	ErrInvalidStartBytes = errors.New("invalid start bytes")
	ErrInvalidLength     = errors.New("invalid length field")
	ErrInvalidCRC        = errors.New("CRC check failed")
	ErrShortPayload      = errors.New("payload too short for message")
)
