package lorawan

import "fmt"

// MaxPayload is the largest application payload the stack hands over in one frame.
const MaxPayload = 255

// DefaultNbTrials is the number of join attempts the stack makes per Connect.
const DefaultNbTrials uint8 = 5

// Message flags passed to Stack.Send and returned by Stack.Receive
const (
	MsgUnconfirmed uint8 = 0x01
	MsgConfirmed   uint8 = 0x02
	MsgMulticast   uint8 = 0x04
	MsgProprietary uint8 = 0x08
)

// Status is a result code returned by the stack.
// Send returns a non-negative byte count on success, so every error code is negative.
type Status int16

const (
	StatusOK                  Status = 0
	StatusBusy                Status = -1000
	StatusWouldBlock          Status = -1001
	StatusServiceUnknown      Status = -1002
	StatusParameterInvalid    Status = -1003
	StatusFrequencyInvalid    Status = -1004
	StatusDatarateInvalid     Status = -1005
	StatusFreqAndDRInvalid    Status = -1006
	StatusNoNetworkJoined     Status = -1009
	StatusLengthError         Status = -1010
	StatusDeviceOff           Status = -1011
	StatusNotInitialized      Status = -1012
	StatusUnsupported         Status = -1013
	StatusCryptoFail          Status = -1014
	StatusPortInvalid         Status = -1015
	StatusConnectInProgress   Status = -1016
	StatusNoActiveSessions    Status = -1017
	StatusIdle                Status = -1018
	StatusDutyCycleRestricted Status = -1020
	StatusNoChannelFound      Status = -1021
	StatusNoFreeChannelFound  Status = -1022
	StatusAlreadyConnected    Status = -1024
)

var statusNames = map[Status]string{
	StatusOK:                  "OK",
	StatusBusy:                "Busy",
	StatusWouldBlock:          "WouldBlock",
	StatusServiceUnknown:      "ServiceUnknown",
	StatusParameterInvalid:    "ParameterInvalid",
	StatusFrequencyInvalid:    "FrequencyInvalid",
	StatusDatarateInvalid:     "DatarateInvalid",
	StatusFreqAndDRInvalid:    "FreqAndDRInvalid",
	StatusNoNetworkJoined:     "NoNetworkJoined",
	StatusLengthError:         "LengthError",
	StatusDeviceOff:           "DeviceOff",
	StatusNotInitialized:      "NotInitialized",
	StatusUnsupported:         "Unsupported",
	StatusCryptoFail:          "CryptoFail",
	StatusPortInvalid:         "PortInvalid",
	StatusConnectInProgress:   "ConnectInProgress",
	StatusNoActiveSessions:    "NoActiveSessions",
	StatusIdle:                "Idle",
	StatusDutyCycleRestricted: "DutyCycleRestricted",
	StatusNoChannelFound:      "NoChannelFound",
	StatusNoFreeChannelFound:  "NoFreeChannelFound",
	StatusAlreadyConnected:    "AlreadyConnected",
}

// String returns string representation of Status
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(%d)", int16(s))
}

// OK reports whether s is StatusOK
func (s Status) OK() bool {
	return s == StatusOK
}

// Err returns nil for StatusOK and a *StatusError otherwise
func (s Status) Err() error {
	if s == StatusOK {
		return nil
	}
	return &StatusError{Status: s}
}

// StatusError carries a failed stack status through error returns
type StatusError struct {
	Status Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("lorawan: %s (%d)", e.Status, int16(e.Status))
}

// Is matches another *StatusError with the same status
func (e *StatusError) Is(target error) bool {
	t, ok := target.(*StatusError)
	return ok && t.Status == e.Status
}

// Event is a notification raised by the stack
type Event uint8

const (
	EventConnected Event = iota
	EventDisconnected
	EventTxDone
	EventTxTimeout
	EventTxError
	EventTxCryptoError
	EventTxSchedulingError
	EventRxDone
	EventRxTimeout
	EventRxError
	EventJoinFailure
	EventUplinkRequired
	EventAutomaticUplinkError
)

// String returns string representation of Event
func (e Event) String() string {
	switch e {
	case EventConnected:
		return "Connected"
	case EventDisconnected:
		return "Disconnected"
	case EventTxDone:
		return "TxDone"
	case EventTxTimeout:
		return "TxTimeout"
	case EventTxError:
		return "TxError"
	case EventTxCryptoError:
		return "TxCryptoError"
	case EventTxSchedulingError:
		return "TxSchedulingError"
	case EventRxDone:
		return "RxDone"
	case EventRxTimeout:
		return "RxTimeout"
	case EventRxError:
		return "RxError"
	case EventJoinFailure:
		return "JoinFailure"
	case EventUplinkRequired:
		return "UplinkRequired"
	case EventAutomaticUplinkError:
		return "AutomaticUplinkError"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(e))
	}
}

// IsTxError reports whether e terminates a transmission unsuccessfully
func (e Event) IsTxError() bool {
	switch e {
	case EventTxTimeout, EventTxError, EventTxCryptoError, EventTxSchedulingError:
		return true
	}
	return false
}

// IsRxError reports whether e is a failed reception
func (e Event) IsRxError() bool {
	return e == EventRxTimeout || e == EventRxError
}

// Known reports whether e is one of the defined events
func (e Event) Known() bool {
	return e <= EventAutomaticUplinkError
}

// ConnectionType selects the activation procedure
type ConnectionType uint8

const (
	ConnectionOTAA ConnectionType = iota
	ConnectionABP
)

// String returns string representation of ConnectionType
func (c ConnectionType) String() string {
	switch c {
	case ConnectionOTAA:
		return "OTAA"
	case ConnectionABP:
		return "ABP"
	default:
		return "Unknown"
	}
}
