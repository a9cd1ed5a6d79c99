package node

import (
	"bytes"
	"fmt"

	"avaneesh/lorawan-node/pkg/lorawan"
)

// DefaultPort is the application port used by SendDefault
const DefaultPort uint8 = 1

// PendingTransmission is the single uplink the node is working on.
// It is re-submitted unchanged on every retry.
type PendingTransmission struct {
	Payload     []byte
	Port        uint8
	Acknowledge bool

	// resends after transmission error events, touched only on the dispatcher
	attempts int
}

// Flags returns the stack message flags for this transmission
func (p *PendingTransmission) Flags() uint8 {
	if p.Acknowledge {
		return lorawan.MsgConfirmed
	}
	return lorawan.MsgUnconfirmed
}

// Send queues an uplink. The call returns as soon as the request is handed to
// the event loop; completion is reported through OnTransmitted or
// OnTransmissionError. Only one transmission may be pending at a time,
// a second call returns ErrBusy until the first completes or is dropped.
// A stack that answers lorawan.StatusWouldBlock is retried after Config.RetryDelay;
// any other rejection drops the request and fires OnTransmissionError with a
// *TransmissionError carrying the stack's Status.
func (n *Node) Send(data []byte, port uint8, acknowledge bool) error {
	if len(data) > lorawan.MaxPayload {
		return fmt.Errorf("%w: %d > %d bytes", ErrPayloadTooLarge, len(data), lorawan.MaxPayload)
	}
	if n.stopped() {
		return ErrNodeClosed
	}

	p := &PendingTransmission{
		Payload:     bytes.Clone(data),
		Port:        port,
		Acknowledge: acknowledge,
	}
	if p.Payload == nil {
		p.Payload = []byte{}
	}

	n.pendingMu.Lock()
	if n.pending != nil {
		n.pendingMu.Unlock()
		return ErrBusy
	}
	n.pending = p
	n.pendingMu.Unlock()

	if err := n.queue.Call(func() { n.transmit(p) }); err != nil {
		n.releasePending(p)
		return fmt.Errorf("node: schedule send: %w", err)
	}

	n.stats.uplinksRequested.Add(1)
	return nil
}

// SendDefault sends an unconfirmed uplink on DefaultPort
func (n *Node) SendDefault(data []byte) error {
	return n.Send(data, DefaultPort, false)
}

// Pending returns a copy of the transmission in progress, if any
func (n *Node) Pending() (PendingTransmission, bool) {
	n.pendingMu.Lock()
	defer n.pendingMu.Unlock()
	if n.pending == nil {
		return PendingTransmission{}, false
	}
	return PendingTransmission{
		Payload:     bytes.Clone(n.pending.Payload),
		Port:        n.pending.Port,
		Acknowledge: n.pending.Acknowledge,
	}, true
}

// transmit hands p to the stack; runs on the dispatcher goroutine
func (n *Node) transmit(p *PendingTransmission) {
	if !n.isPending(p) {
		return
	}

	n.stackMu.Lock()
	rc := n.stack.Send(p.Port, p.Payload, p.Flags())
	n.stackMu.Unlock()

	switch {
	case rc >= 0:
		n.stats.uplinksScheduled.Add(1)
		n.logger.Debug("Node %s: %d bytes scheduled for transmission", n.id, rc)

	case lorawan.Status(rc) == lorawan.StatusWouldBlock:
		n.logger.Debug("Node %s: send - WOULD BLOCK, retry in %s", n.id, n.config.RetryDelay)
		if err := n.queue.CallIn(n.config.RetryDelay, func() { n.transmit(p) }); err != nil {
			n.logger.Error("Node %s: cannot schedule retry: %v", n.id, err)
			n.dropPending(p, &TransmissionError{Status: lorawan.StatusWouldBlock, Err: err})
			return
		}
		n.stats.wouldBlockRetries.Add(1)

	default:
		status := lorawan.Status(rc)
		n.logger.Error("Node %s: send() - Error code %d (%s)", n.id, rc, status)
		n.dropPending(p, &TransmissionError{Status: status})
	}
}

// onTxDone completes the pending transmission
func (n *Node) onTxDone() {
	n.pendingMu.Lock()
	n.pending = nil
	n.pendingMu.Unlock()

	n.stats.uplinksDone.Add(1)
	n.logger.Info("Node %s: Message Sent to Network Server", n.id)
	n.callbacks.notify(CallbackTransmitted)
}

// onTxError schedules a bounded resend of the pending transmission, then
// reports the event to the application exactly once.
func (n *Node) onTxError(ev lorawan.Event) {
	n.stats.txErrors.Add(1)
	terr := &TransmissionError{Event: ev}

	n.pendingMu.Lock()
	p := n.pending
	n.pendingMu.Unlock()

	if p != nil {
		policy := n.config.TxRetry
		switch {
		case p.attempts < policy.MaxRetries:
			p.attempts++
			delay := policy.Delay(p.attempts)
			if err := n.queue.CallIn(delay, func() { n.transmit(p) }); err != nil {
				n.releasePending(p)
				n.stats.uplinksFailed.Add(1)
				terr.Err = err
			} else {
				n.stats.txErrorRetries.Add(1)
				terr.Retrying = true
				n.logger.Info("Node %s: resend %d/%d in %s", n.id, p.attempts, policy.MaxRetries, delay)
			}
			terr.Attempt = p.attempts

		case policy.MaxRetries > 0:
			n.releasePending(p)
			n.stats.uplinksFailed.Add(1)
			terr.Attempt = p.attempts
			terr.Err = ErrRetriesExhausted

		default:
			n.releasePending(p)
			n.stats.uplinksFailed.Add(1)
		}
	}

	n.logger.Warn("Node %s: Transmission Error - %s", n.id, ev)
	n.callbacks.notifyError(CallbackTransmissionError, terr)
}

func (n *Node) isPending(p *PendingTransmission) bool {
	n.pendingMu.Lock()
	defer n.pendingMu.Unlock()
	return n.pending == p
}

// releasePending clears the slot if it still holds p
func (n *Node) releasePending(p *PendingTransmission) {
	n.pendingMu.Lock()
	defer n.pendingMu.Unlock()
	if n.pending == p {
		n.pending = nil
	}
}

// dropPending abandons p and reports err
func (n *Node) dropPending(p *PendingTransmission, err *TransmissionError) {
	n.releasePending(p)
	n.stats.uplinksFailed.Add(1)
	n.callbacks.notifyError(CallbackTransmissionError, err)
}
