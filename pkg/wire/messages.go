package wire

import (
	"encoding/binary"
	"fmt"

	"avaneesh/lorawan-node/pkg/lorawan"
)

// connectPayloadSize is type, trials, DevEUI, AppEUI and AppKey
const connectPayloadSize = 2 + 8 + 8 + 16

// EncodeConnect encodes the join parameters of a MsgConnect request
func EncodeConnect(p lorawan.ConnectParams) []byte {
	buf := make([]byte, 0, connectPayloadSize)
	buf = append(buf, byte(p.Type), p.NbTrials)
	buf = append(buf, p.Keys.DevEUI[:]...)
	buf = append(buf, p.Keys.AppEUI[:]...)
	buf = append(buf, p.Keys.AppKey[:]...)
	return buf
}

// DecodeConnect decodes a MsgConnect payload
func DecodeConnect(b []byte) (lorawan.ConnectParams, error) {
	var p lorawan.ConnectParams
	if len(b) < connectPayloadSize {
		return p, fmt.Errorf("%w: connect needs %d bytes, got %d", ErrShortPayload, connectPayloadSize, len(b))
	}
	p.Type = lorawan.ConnectionType(b[0])
	p.NbTrials = b[1]
	copy(p.Keys.DevEUI[:], b[2:10])
	copy(p.Keys.AppEUI[:], b[10:18])
	copy(p.Keys.AppKey[:], b[18:34])
	return p, nil
}

// SendRequest is the payload of a MsgSend request
type SendRequest struct {
	Port  uint8
	Flags uint8
	Data  []byte
}

// Encode encodes the request as port, flags, data
func (r SendRequest) Encode() []byte {
	buf := make([]byte, 0, 2+len(r.Data))
	buf = append(buf, r.Port, r.Flags)
	return append(buf, r.Data...)
}

// DecodeSendRequest decodes a MsgSend payload
func DecodeSendRequest(b []byte) (SendRequest, error) {
	if len(b) < 2 {
		return SendRequest{}, fmt.Errorf("%w: send needs 2 bytes, got %d", ErrShortPayload, len(b))
	}
	return SendRequest{Port: b[0], Flags: b[1], Data: append([]byte(nil), b[2:]...)}, nil
}

// EncodeReceiveRequest encodes the buffer capacity offered by a MsgReceive request
func EncodeReceiveRequest(capacity int) []byte {
	return binary.LittleEndian.AppendUint16(nil, uint16(capacity))
}

// DecodeReceiveRequest decodes a MsgReceive payload
func DecodeReceiveRequest(b []byte) (int, error) {
	if len(b) < 2 {
		return 0, fmt.Errorf("%w: receive needs 2 bytes, got %d", ErrShortPayload, len(b))
	}
	return int(binary.LittleEndian.Uint16(b)), nil
}

// Response is the payload of a MsgResponse: a signed result code
// (a lorawan.Status or a byte count) followed by optional data
type Response struct {
	Code int16
	Data []byte
}

// Encode encodes the response
func (r Response) Encode() []byte {
	buf := binary.LittleEndian.AppendUint16(make([]byte, 0, 2+len(r.Data)), uint16(r.Code))
	return append(buf, r.Data...)
}

// Status returns the code as a stack status
func (r Response) Status() lorawan.Status {
	return lorawan.Status(r.Code)
}

// DecodeResponse decodes a MsgResponse payload
func DecodeResponse(b []byte) (Response, error) {
	if len(b) < 2 {
		return Response{}, fmt.Errorf("%w: response needs 2 bytes, got %d", ErrShortPayload, len(b))
	}
	return Response{
		Code: int16(binary.LittleEndian.Uint16(b)),
		Data: append([]byte(nil), b[2:]...),
	}, nil
}

// Downlink is the data of a successful MsgReceive response
type Downlink struct {
	Port  uint8
	Flags uint8
	Data  []byte
}

// Encode encodes the downlink as port, flags, data
func (d Downlink) Encode() []byte {
	buf := make([]byte, 0, 2+len(d.Data))
	buf = append(buf, d.Port, d.Flags)
	return append(buf, d.Data...)
}

// DecodeDownlink decodes the data of a MsgReceive response
func DecodeDownlink(b []byte) (Downlink, error) {
	if len(b) < 2 {
		return Downlink{}, fmt.Errorf("%w: downlink needs 2 bytes, got %d", ErrShortPayload, len(b))
	}
	return Downlink{Port: b[0], Flags: b[1], Data: append([]byte(nil), b[2:]...)}, nil
}

// EncodeEvent encodes a MsgEvent payload
func EncodeEvent(ev lorawan.Event) []byte {
	return []byte{byte(ev)}
}

// DecodeEvent decodes a MsgEvent payload
func DecodeEvent(b []byte) (lorawan.Event, error) {
	if len(b) < 1 {
		return 0, fmt.Errorf("%w: event needs 1 byte", ErrShortPayload)
	}
	return lorawan.Event(b[0]), nil
}
