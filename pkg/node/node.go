// Package node drives a LoRaWAN end device: it configures the stack, joins the
// network over OTAA, sends uplinks with automatic retry, delivers downlinks and
// forwards stack events to application callbacks. All stack events, retries and
// callbacks run on one dispatcher goroutine owned by the node.
package node

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"avaneesh/lorawan-node/pkg/events"
	"avaneesh/lorawan-node/pkg/internal/logger"
	"avaneesh/lorawan-node/pkg/lorawan"
)

// Node is a LoRaWAN end device bound to one stack
type Node struct {
	config    Config
	id        string
	stack     lorawan.Stack
	queue     *events.EventQueue
	logger    logger.Logger
	callbacks *registry
	stats     *Statistics

	// Serializes calls into the stack
	stackMu sync.Mutex

	// Connection state
	state        ConnectionState
	stateChanged chan struct{}
	stateMu      sync.Mutex

	// Transmission in progress
	pending   *PendingTransmission
	pendingMu sync.Mutex

	initReport InitReport

	// Lifecycle
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// New creates a node, starts its event loop, configures the stack and starts
// the join. With Config.WaitUntilConnected it blocks until the stack reports
// Connected or ctx is done; on failure the node is closed before returning.
func New(ctx context.Context, stack lorawan.Stack, cfg Config) (*Node, error) {
	if stack == nil {
		return nil, ErrNilStack
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	log := cfg.Logger
	if log == nil {
		log = logger.GetDefault()
	}

	runCtx, cancel := context.WithCancel(context.Background())

	n := &Node{
		config:       cfg,
		id:           cfg.Keys.DevEUI.String(),
		stack:        stack,
		queue:        events.NewEventQueue(cfg.QueueCapacity),
		logger:       log,
		callbacks:    newRegistry(),
		stats:        NewStatistics(),
		state:        StateDisconnected,
		stateChanged: make(chan struct{}),
		ctx:          runCtx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
	n.callbacks.apply(cfg.Callbacks)

	go n.processEvents()

	n.initReport = n.initialize()
	if cfg.StrictInit && !n.initReport.OK() {
		err := n.initReport.Err()
		n.Close()
		return nil, fmt.Errorf("%w: %w", ErrInitializeFailed, err)
	}

	res := n.connect(lorawan.NewOTAAParams(cfg.Keys, cfg.NbTrials))
	n.initReport.Steps = append(n.initReport.Steps, res)
	if err := res.Err(); err != nil && (cfg.StrictInit || cfg.WaitUntilConnected) {
		n.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}

	if cfg.WaitUntilConnected {
		if err := n.WaitConnected(ctx); err != nil {
			n.Close()
			return nil, fmt.Errorf("wait for join: %w", err)
		}
	}

	return n, nil
}

// processEvents runs the dispatcher until a disconnect breaks it or the node is closed
func (n *Node) processEvents() {
	defer close(n.done)

	err := n.queue.Dispatch(n.ctx)
	switch {
	case err == nil:
		n.logger.Info("Node %s: event loop stopped", n.id)
	case errors.Is(err, events.ErrQueueClosed), errors.Is(err, context.Canceled):
		n.logger.Debug("Node %s: event loop closed", n.id)
	default:
		n.logger.Error("Node %s: event loop failed: %v", n.id, err)
	}
}

// EnableAdaptiveDataRate turns on ADR in the stack
func (n *Node) EnableAdaptiveDataRate() error {
	if n.stopped() {
		return ErrNodeClosed
	}
	n.stackMu.Lock()
	defer n.stackMu.Unlock()
	if err := n.stack.EnableAdaptiveDatarate().Err(); err != nil {
		return fmt.Errorf("enable adaptive data rate: %w", err)
	}
	n.logger.Debug("Node %s: Adaptive data rate (ADR) enabled", n.id)
	return nil
}

// DisableAdaptiveDataRate turns off ADR in the stack
func (n *Node) DisableAdaptiveDataRate() error {
	if n.stopped() {
		return ErrNodeClosed
	}
	n.stackMu.Lock()
	defer n.stackMu.Unlock()
	if err := n.stack.DisableAdaptiveDatarate().Err(); err != nil {
		return fmt.Errorf("disable adaptive data rate: %w", err)
	}
	n.logger.Debug("Node %s: Adaptive data rate (ADR) disabled", n.id)
	return nil
}

// Disconnect asks the stack to leave the network. The Disconnected event that
// follows stops the event loop.
func (n *Node) Disconnect() error {
	if n.stopped() {
		return ErrNodeClosed
	}
	n.stackMu.Lock()
	status := n.stack.Disconnect()
	n.stackMu.Unlock()

	if err := status.Err(); err != nil {
		return fmt.Errorf("disconnect: %w", err)
	}
	return nil
}

// Close stops the event loop, drops queued work and closes the stack when it
// implements io.Closer. It waits for the event loop to return, so it must not
// be called from a callback.
func (n *Node) Close() error {
	n.closeOnce.Do(func() {
		n.closed.Store(true)
		n.queue.Close()
		n.cancel()
		<-n.done

		n.pendingMu.Lock()
		n.pending = nil
		n.pendingMu.Unlock()

		if c, ok := n.stack.(io.Closer); ok {
			n.stackMu.Lock()
			n.closeErr = c.Close()
			n.stackMu.Unlock()
		}
		n.logger.Info("Node %s: closed", n.id)
	})
	return n.closeErr
}

// Done is closed once the event loop has returned
func (n *Node) Done() <-chan struct{} {
	return n.done
}

// ID returns the DevEUI the node was configured with
func (n *Node) ID() string {
	return n.id
}

// Statistics returns a snapshot of the node counters
func (n *Node) Statistics() StatsSnapshot {
	return n.stats.Snapshot()
}

// InitReport returns the outcome of every configuration step run by New
func (n *Node) InitReport() InitReport {
	return n.initReport
}

func (n *Node) stopped() bool {
	if n.closed.Load() {
		return true
	}
	select {
	case <-n.done:
		return true
	default:
		return false
	}
}
