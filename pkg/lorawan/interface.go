package lorawan

import "time"

// Dispatcher is the event queue the stack posts its work onto.
// Every closure runs on the dispatcher's single goroutine.
type Dispatcher interface {
	Call(fn func()) error
	CallIn(delay time.Duration, fn func()) error
}

// EventHandler receives stack events on the dispatcher goroutine
type EventHandler func(ev Event)

// Stack is the LoRaWAN MAC collaborator driving the radio.
//
// Implementations own join cryptography, ADR, duty cycle and frame encoding.
// They must deliver every event by posting onto the Dispatcher passed to
// Initialize, never by calling the handler from their own goroutines.
type Stack interface {
	// Initialize attaches the stack to the dispatcher
	Initialize(d Dispatcher) Status

	// SetEventHandler registers the single event sink
	SetEventHandler(h EventHandler)

	// SetConfirmedMsgRetries sets how often the stack repeats a confirmed uplink
	SetConfirmedMsgRetries(count uint8) Status

	// EnableAdaptiveDatarate lets the network server drive data rate and power
	EnableAdaptiveDatarate() Status

	// DisableAdaptiveDatarate returns to fixed data rate
	DisableAdaptiveDatarate() Status

	// Connect starts a join; StatusConnectInProgress is not an error
	Connect(params ConnectParams) Status

	// Disconnect leaves the network; completion is reported by EventDisconnected
	Disconnect() Status

	// Send queues an uplink and returns the scheduled byte count or a negative Status
	Send(port uint8, data []byte, flags uint8) int16

	// Receive copies the pending downlink into buf and returns its length or a negative Status
	Receive(buf []byte) (n int16, port uint8, flags uint8)
}
