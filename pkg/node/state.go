package node

import (
	"context"
	"errors"
	"fmt"

	"avaneesh/lorawan-node/pkg/lorawan"
)

// ConnectionState represents the join/connect progress of the node
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
)

// String returns string representation of ConnectionState
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	default:
		return "Unknown"
	}
}

// InitStep names one configuration step performed by New
type InitStep string

const (
	StepInitialize       InitStep = "initialize"
	StepConfirmedRetries InitStep = "confirmed_retries"
	StepAdaptiveDataRate InitStep = "adaptive_data_rate"
	StepConnect          InitStep = "connect"
)

// StepResult is the stack status returned by one step
type StepResult struct {
	Step   InitStep
	Status lorawan.Status
}

// Err returns nil when the step succeeded
func (r StepResult) Err() error {
	if r.Status.OK() || (r.Step == StepConnect && r.Status == lorawan.StatusConnectInProgress) {
		return nil
	}
	return fmt.Errorf("%s: %w", r.Step, r.Status.Err())
}

// InitReport collects the outcome of every configuration step
type InitReport struct {
	Steps []StepResult
}

// OK reports whether every step succeeded
func (r InitReport) OK() bool {
	return r.Err() == nil
}

// Err joins the errors of all failed steps
func (r InitReport) Err() error {
	var errs []error
	for _, s := range r.Steps {
		if err := s.Err(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Result returns the outcome of step, if it ran
func (r InitReport) Result(step InitStep) (StepResult, bool) {
	for _, s := range r.Steps {
		if s.Step == step {
			return s, true
		}
	}
	return StepResult{}, false
}

func (r *InitReport) record(step InitStep, status lorawan.Status) StepResult {
	res := StepResult{Step: step, Status: status}
	r.Steps = append(r.Steps, res)
	return res
}

// initialize configures the stack. Each step runs even when an earlier one failed.
func (n *Node) initialize() InitReport {
	var report InitReport

	n.stackMu.Lock()
	defer n.stackMu.Unlock()

	if res := report.record(StepInitialize, n.stack.Initialize(n.queue)); res.Err() != nil {
		n.logger.Error("Node %s: LoRa initialization failed: %v", n.id, res.Err())
	} else {
		n.logger.Debug("Node %s: LoRaWAN stack initialized", n.id)
	}

	n.stack.SetEventHandler(n.handleEvent)

	res := report.record(StepConfirmedRetries, n.stack.SetConfirmedMsgRetries(n.config.ConfirmedRetries))
	if res.Err() != nil {
		n.logger.Error("Node %s: set_confirmed_msg_retries failed: %v", n.id, res.Err())
	} else {
		n.logger.Debug("Node %s: CONFIRMED message retries: %d", n.id, n.config.ConfirmedRetries)
	}

	if n.config.AdaptiveDataRate {
		if res := report.record(StepAdaptiveDataRate, n.stack.EnableAdaptiveDatarate()); res.Err() != nil {
			n.logger.Error("Node %s: enable_adaptive_datarate failed: %v", n.id, res.Err())
		} else {
			n.logger.Debug("Node %s: Adaptive data rate (ADR) enabled", n.id)
		}
	}

	return report
}

// connect starts the join. The node is Connecting before the stack is asked,
// so a result event posted from Connect always finds the join in progress.
func (n *Node) connect(params lorawan.ConnectParams) StepResult {
	n.compareAndSetState(StateDisconnected, StateConnecting)

	n.stackMu.Lock()
	status := n.stack.Connect(params)
	n.stackMu.Unlock()

	res := StepResult{Step: StepConnect, Status: status}
	if err := res.Err(); err != nil {
		n.compareAndSetState(StateConnecting, StateDisconnected)
		n.logger.Error("Node %s: Connection error: %v", n.id, err)
		return res
	}

	n.logger.Info("Node %s: Connection - In Progress (%s)", n.id, params.Type)
	return res
}

// handleEvent is the single entry point for stack events.
// It always runs on the dispatcher goroutine.
func (n *Node) handleEvent(ev lorawan.Event) {
	switch {
	case ev == lorawan.EventConnected:
		n.stats.joins.Add(1)
		n.setState(StateConnected)
		n.logger.Info("Node %s: Connection - Successful", n.id)
		n.callbacks.notify(CallbackConnected)

	case ev == lorawan.EventDisconnected:
		n.stats.disconnects.Add(1)
		n.setState(StateDisconnected)
		n.queue.BreakDispatch()
		n.logger.Info("Node %s: Disconnected Successfully", n.id)
		n.callbacks.notify(CallbackDisconnected)

	case ev == lorawan.EventTxDone:
		n.onTxDone()

	case ev.IsTxError():
		n.onTxError(ev)

	case ev == lorawan.EventAutomaticUplinkError:
		n.stats.txErrors.Add(1)
		n.logger.Warn("Node %s: Automatic uplink failed", n.id)
		n.callbacks.notifyError(CallbackTransmissionError, &TransmissionError{Event: ev})

	case ev == lorawan.EventRxDone:
		n.logger.Debug("Node %s: Received message from Network Server", n.id)
		n.receive()

	case ev.IsRxError():
		n.stats.rxErrors.Add(1)
		n.logger.Warn("Node %s: Error in reception - %s", n.id, ev)
		n.callbacks.notifyError(CallbackReceptionError, &ReceptionError{Event: ev})

	case ev == lorawan.EventJoinFailure:
		n.stats.joinFailures.Add(1)
		// Only a join in progress can fail; a live session ends with EventDisconnected.
		n.compareAndSetState(StateConnecting, StateDisconnected)
		n.logger.Error("Node %s: OTAA Failed - Check Keys", n.id)
		n.callbacks.notify(CallbackJoinFailure)

	case ev == lorawan.EventUplinkRequired:
		n.logger.Info("Node %s: Uplink required by NS", n.id)
		n.callbacks.notify(CallbackUplinkRequired)

	default:
		n.stats.unknownEvents.Add(1)
		n.logger.Warn("Node %s: Unknown event happened: %s", n.id, ev)
	}
}

func (n *Node) setState(s ConnectionState) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	n.transitionLocked(s)
}

func (n *Node) compareAndSetState(from, to ConnectionState) bool {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	if n.state != from {
		return false
	}
	n.transitionLocked(to)
	return true
}

// transitionLocked wakes every waiter by closing the current signal channel.
func (n *Node) transitionLocked(s ConnectionState) {
	if n.state == s {
		return
	}
	n.logger.Debug("Node %s: state %s -> %s", n.id, n.state, s)
	n.state = s
	close(n.stateChanged)
	n.stateChanged = make(chan struct{})
}

// State returns the current connection state
func (n *Node) State() ConnectionState {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.state
}

// Connected reports whether the stack has reported a successful join
// and no disconnection since.
func (n *Node) Connected() bool {
	return n.State() == StateConnected
}

// WaitConnected blocks until the node is connected, ctx is done or the
// event loop stops. It returns ErrNotConnected when no join is in progress,
// including after a join failure; there is no automatic rejoin.
func (n *Node) WaitConnected(ctx context.Context) error {
	for {
		n.stateMu.Lock()
		state, changed := n.state, n.stateChanged
		n.stateMu.Unlock()

		switch state {
		case StateConnected:
			return nil
		case StateDisconnected:
			return ErrNotConnected
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		case <-n.done:
			if n.Connected() {
				return nil
			}
			return ErrNodeClosed
		}
	}
}
