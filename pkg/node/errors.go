package node

import (
	"errors"
	"fmt"

	"avaneesh/lorawan-node/pkg/lorawan"
)

var (
	ErrNilStack         = errors.New("stack is required")
	ErrNodeClosed       = errors.New("node is closed")
	ErrBusy             = errors.New("a transmission is already pending")
	ErrPayloadTooLarge  = errors.New("payload exceeds maximum size")
	ErrRetriesExhausted = errors.New("transmission retries exhausted")
	ErrTruncatedPayload = errors.New("received length exceeds buffer capacity")
	ErrConnectFailed    = errors.New("join request rejected by stack")
	ErrInitializeFailed = errors.New("stack initialization failed")
	ErrNotConnected     = errors.New("node left the network while waiting for join")
)

// TransmissionError reports an uplink that failed or is being retried.
// Status is set when the stack refused the send; otherwise Event names the
// stack event that ended the transmission.
type TransmissionError struct {
	Status   lorawan.Status
	Event    lorawan.Event
	Retrying bool  // a resend has been scheduled
	Attempt  int   // resends made so far for this transmission
	Err      error // underlying cause, e.g. ErrRetriesExhausted
}

func (e *TransmissionError) Error() string {
	var msg string
	if e.Status != lorawan.StatusOK {
		msg = fmt.Sprintf("node: send rejected: %s", e.Status)
	} else {
		msg = fmt.Sprintf("node: transmission failed: %s", e.Event)
	}
	if e.Retrying {
		msg += fmt.Sprintf(" (resend %d scheduled)", e.Attempt)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TransmissionError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Status.Err()
}

// ReceptionError reports a failed or unusable downlink.
// Status is set when Receive returned an error code; otherwise Event names
// the stack event, or Err explains why the payload was rejected.
type ReceptionError struct {
	Status lorawan.Status
	Event  lorawan.Event
	Length int
	Err    error
}

func (e *ReceptionError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("node: reception failed: %v (length %d)", e.Err, e.Length)
	case e.Status != lorawan.StatusOK:
		return fmt.Sprintf("node: receive returned %s", e.Status)
	default:
		return fmt.Sprintf("node: reception failed: %s", e.Event)
	}
}

func (e *ReceptionError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Status.Err()
}
