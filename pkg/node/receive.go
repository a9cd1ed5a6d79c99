package node

import (
	"bytes"

	"avaneesh/lorawan-node/pkg/lorawan"
)

// ReceivedMessage is one downlink pulled from the stack
type ReceivedMessage struct {
	Payload []byte
	Port    uint8
	Flags   uint8
}

// Confirmed reports whether the network asked for an acknowledgement
func (m ReceivedMessage) Confirmed() bool {
	return m.Flags&lorawan.MsgConfirmed != 0
}

// receive pulls exactly one message and delivers it; runs on the dispatcher goroutine
func (n *Node) receive() {
	buf := make([]byte, lorawan.MaxPayload)

	n.stackMu.Lock()
	rc, port, flags := n.stack.Receive(buf)
	n.stackMu.Unlock()

	switch {
	case rc == 0:
		n.logger.Debug("Node %s: receive - nothing to deliver", n.id)

	case rc < 0:
		n.stats.rxErrors.Add(1)
		status := lorawan.Status(rc)
		n.logger.Error("Node %s: receive() - Error code %d (%s)", n.id, rc, status)
		n.callbacks.notifyError(CallbackReceptionError, &ReceptionError{Status: status})

	case int(rc) > len(buf):
		n.stats.rxErrors.Add(1)
		n.logger.Error("Node %s: receive() reported %d bytes for a %d byte buffer", n.id, rc, len(buf))
		n.callbacks.notifyError(CallbackReceptionError, &ReceptionError{
			Event:  lorawan.EventRxDone,
			Length: int(rc),
			Err:    ErrTruncatedPayload,
		})

	default:
		msg := ReceivedMessage{
			Payload: bytes.Clone(buf[:rc]),
			Port:    port,
			Flags:   flags,
		}
		n.stats.downlinks.Add(1)
		n.stats.downlinkBytes.Add(uint64(len(msg.Payload)))
		n.logger.Info("Node %s: Received %d bytes on port %d", n.id, len(msg.Payload), msg.Port)
		n.callbacks.notifyReceived(msg.Payload, msg.Port)
	}
}
