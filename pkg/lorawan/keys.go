package lorawan

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidEUI = errors.New("invalid EUI")
	ErrInvalidKey = errors.New("invalid key")
)

// EUI64 is an IEEE EUI-64 identifier (DevEUI, AppEUI/JoinEUI)
type EUI64 [8]byte

// AES128Key is a LoRaWAN root or session key
type AES128Key [16]byte

// String returns the EUI as upper-case hex
func (e EUI64) String() string {
	return strings.ToUpper(hex.EncodeToString(e[:]))
}

// IsZero reports whether every byte is zero
func (e EUI64) IsZero() bool {
	return e == EUI64{}
}

// String never prints key material
func (k AES128Key) String() string {
	return "[redacted]"
}

// IsZero reports whether every byte is zero
func (k AES128Key) IsZero() bool {
	return k == AES128Key{}
}

// Keys holds the OTAA credentials of the device
type Keys struct {
	DevEUI EUI64
	AppEUI EUI64
	AppKey AES128Key
}

// String returns the identities only
func (k Keys) String() string {
	return fmt.Sprintf("Keys{DevEUI=%s, AppEUI=%s}", k.DevEUI, k.AppEUI)
}

// ParseEUI parses 16 hex digits, optionally separated by ':', '-' or spaces
func ParseEUI(s string) (EUI64, error) {
	var eui EUI64
	b, err := decodeHex(s)
	if err != nil || len(b) != len(eui) {
		return eui, fmt.Errorf("%w: %q", ErrInvalidEUI, s)
	}
	copy(eui[:], b)
	return eui, nil
}

// ParseKey parses 32 hex digits, optionally separated by ':', '-' or spaces
func ParseKey(s string) (AES128Key, error) {
	var key AES128Key
	b, err := decodeHex(s)
	if err != nil || len(b) != len(key) {
		return key, fmt.Errorf("%w: expected 16 bytes", ErrInvalidKey)
	}
	copy(key[:], b)
	return key, nil
}

// ParseKeys parses the three OTAA credentials
func ParseKeys(devEUI, appEUI, appKey string) (Keys, error) {
	var keys Keys
	var err error

	if keys.DevEUI, err = ParseEUI(devEUI); err != nil {
		return keys, fmt.Errorf("dev_eui: %w", err)
	}
	if keys.AppEUI, err = ParseEUI(appEUI); err != nil {
		return keys, fmt.Errorf("app_eui: %w", err)
	}
	if keys.AppKey, err = ParseKey(appKey); err != nil {
		return keys, fmt.Errorf("app_key: %w", err)
	}
	return keys, nil
}

func decodeHex(s string) ([]byte, error) {
	s = strings.NewReplacer(":", "", "-", "", " ", "").Replace(strings.TrimSpace(s))
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	return hex.DecodeString(s)
}

// Pinmap names the SPI and DIO pins wiring the radio to the host board
type Pinmap struct {
	MOSI  string
	MISO  string
	SCLK  string
	NSS   string
	Reset string
	DIO0  string
	DIO1  string
}

// DefaultPinmap returns the wiring of the reference SX1276 shield
func DefaultPinmap() Pinmap {
	return Pinmap{
		MOSI:  "D11",
		MISO:  "D12",
		SCLK:  "D13",
		NSS:   "A0",
		Reset: "A1",
		DIO0:  "D2",
		DIO1:  "D3",
	}
}

// ConnectParams is passed to Stack.Connect
type ConnectParams struct {
	Type     ConnectionType
	Keys     Keys
	NbTrials uint8
}

// NewOTAAParams builds the join parameters for over-the-air activation
func NewOTAAParams(keys Keys, nbTrials uint8) ConnectParams {
	if nbTrials == 0 {
		nbTrials = DefaultNbTrials
	}
	return ConnectParams{
		Type:     ConnectionOTAA,
		Keys:     keys,
		NbTrials: nbTrials,
	}
}
