package channel

import (
	"fmt"

	"go.bug.st/serial"

	"avaneesh/lorawan-node/pkg/internal/logger"
)

// DefaultBaudRate is the UART speed of common LoRaWAN modem modules
const DefaultBaudRate = 115200

// SerialChannelConfig configures a UART channel
type SerialChannelConfig struct {
	Port     string // e.g. /dev/ttyUSB0 or COM3
	BaudRate int    // 0 = DefaultBaudRate
	Logger   logger.Logger
}

// SerialChannel implements PhysicalChannel over a serial port, 8N1
type SerialChannel struct {
	*StreamChannel
	port serial.Port
}

// NewSerialChannel opens the serial port
func NewSerialChannel(config SerialChannelConfig) (*SerialChannel, error) {
	if config.Port == "" {
		return nil, fmt.Errorf("serial port is required")
	}
	if config.BaudRate == 0 {
		config.BaudRate = DefaultBaudRate
	}

	mode := &serial.Mode{
		BaudRate: config.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(config.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", config.Port, err)
	}

	// Drop whatever the modem sent before we were listening.
	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to reset %s: %w", config.Port, err)
	}

	return &SerialChannel{
		StreamChannel: NewStreamChannel("serial://"+config.Port, port, config.Logger),
		port:          port,
	}, nil
}

// SerialPorts lists the serial ports present on the system
func SerialPorts() ([]string, error) {
	return serial.GetPortsList()
}
