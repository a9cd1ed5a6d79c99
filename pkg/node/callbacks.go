package node

import "sync"

// CallbackKind identifies a slot in the callback registry
type CallbackKind int

const (
	CallbackConnected CallbackKind = iota
	CallbackDisconnected
	CallbackTransmitted
	CallbackTransmissionError
	CallbackReceived
	CallbackReceptionError
	CallbackJoinFailure
	CallbackUplinkRequired
)

// String returns string representation of CallbackKind
func (k CallbackKind) String() string {
	switch k {
	case CallbackConnected:
		return "Connected"
	case CallbackDisconnected:
		return "Disconnected"
	case CallbackTransmitted:
		return "Transmitted"
	case CallbackTransmissionError:
		return "TransmissionError"
	case CallbackReceived:
		return "Received"
	case CallbackReceptionError:
		return "ReceptionError"
	case CallbackJoinFailure:
		return "JoinFailure"
	case CallbackUplinkRequired:
		return "UplinkRequired"
	default:
		return "Unknown"
	}
}

// ReceiveHandler gets the downlink payload and the port it arrived on.
// data is owned by the handler.
type ReceiveHandler func(data []byte, port uint8)

// Callbacks lists every application handler; nil fields are left empty.
type Callbacks struct {
	Connected         func()
	Disconnected      func()
	Transmitted       func()
	TransmissionError func(err error)
	Received          ReceiveHandler
	ReceptionError    func(err error)
	JoinFailure       func()
	UplinkRequired    func()
}

// registry holds at most one handler per kind.
// Handlers are read on the dispatcher goroutine and may be replaced from any goroutine.
type registry struct {
	mu       sync.RWMutex
	handlers map[CallbackKind]any
}

func newRegistry() *registry {
	return &registry{handlers: make(map[CallbackKind]any)}
}

func (r *registry) apply(cb Callbacks) {
	if cb.Connected != nil {
		r.set(CallbackConnected, cb.Connected)
	}
	if cb.Disconnected != nil {
		r.set(CallbackDisconnected, cb.Disconnected)
	}
	if cb.Transmitted != nil {
		r.set(CallbackTransmitted, cb.Transmitted)
	}
	if cb.TransmissionError != nil {
		r.set(CallbackTransmissionError, cb.TransmissionError)
	}
	if cb.Received != nil {
		r.set(CallbackReceived, cb.Received)
	}
	if cb.ReceptionError != nil {
		r.set(CallbackReceptionError, cb.ReceptionError)
	}
	if cb.JoinFailure != nil {
		r.set(CallbackJoinFailure, cb.JoinFailure)
	}
	if cb.UplinkRequired != nil {
		r.set(CallbackUplinkRequired, cb.UplinkRequired)
	}
}

func (r *registry) set(kind CallbackKind, handler any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = handler
}

func (r *registry) clear(kind CallbackKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, kind)
}

func (r *registry) get(kind CallbackKind) any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[kind]
}

func (r *registry) has(kind CallbackKind) bool {
	return r.get(kind) != nil
}

// notify runs a func() handler; absent handlers are a no-op.
func (r *registry) notify(kind CallbackKind) {
	if h, ok := r.get(kind).(func()); ok {
		h()
	}
}

func (r *registry) notifyError(kind CallbackKind, err error) {
	if h, ok := r.get(kind).(func(error)); ok {
		h(err)
	}
}

func (r *registry) notifyReceived(data []byte, port uint8) {
	if h, ok := r.get(CallbackReceived).(ReceiveHandler); ok {
		h(data, port)
	}
}

// replace stores handler, or empties the slot when the typed handler was nil.
func (r *registry) replace(kind CallbackKind, handler any, isNil bool) {
	if isNil {
		r.clear(kind)
		return
	}
	r.set(kind, handler)
}

// OnConnected registers the handler run after a successful join
func (n *Node) OnConnected(cb func()) {
	n.callbacks.replace(CallbackConnected, cb, cb == nil)
}

// OnDisconnected registers the handler run when the stack reports disconnection
func (n *Node) OnDisconnected(cb func()) {
	n.callbacks.replace(CallbackDisconnected, cb, cb == nil)
}

// OnTransmitted registers the handler run once per completed uplink
func (n *Node) OnTransmitted(cb func()) {
	n.callbacks.replace(CallbackTransmitted, cb, cb == nil)
}

// OnTransmissionError registers the handler run once per failed uplink event.
// err is a *TransmissionError.
func (n *Node) OnTransmissionError(cb func(err error)) {
	n.callbacks.replace(CallbackTransmissionError, cb, cb == nil)
}

// OnReceived registers the downlink handler
func (n *Node) OnReceived(cb ReceiveHandler) {
	n.callbacks.replace(CallbackReceived, cb, cb == nil)
}

// OnReceptionError registers the handler for failed downlinks.
// err is a *ReceptionError.
func (n *Node) OnReceptionError(cb func(err error)) {
	n.callbacks.replace(CallbackReceptionError, cb, cb == nil)
}

// OnJoinFailure registers the handler run when the join procedure fails
func (n *Node) OnJoinFailure(cb func()) {
	n.callbacks.replace(CallbackJoinFailure, cb, cb == nil)
}

// OnUplinkRequired registers the handler run when the network server asks for an uplink
func (n *Node) OnUplinkRequired(cb func()) {
	n.callbacks.replace(CallbackUplinkRequired, cb, cb == nil)
}

// HasCallback reports whether a handler is registered for kind
func (n *Node) HasCallback(kind CallbackKind) bool {
	return n.callbacks.has(kind)
}
