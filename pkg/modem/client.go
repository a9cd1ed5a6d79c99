// Package modem implements lorawan.Stack for LoRaWAN modems that run the MAC
// themselves and are driven over a framed serial, TCP or QUIC link.
package modem

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"avaneesh/lorawan-node/pkg/channel"
	"avaneesh/lorawan-node/pkg/internal/logger"
	"avaneesh/lorawan-node/pkg/lorawan"
	"avaneesh/lorawan-node/pkg/wire"
)

var (
	ErrTimeout      = errors.New("modem response timeout")
	ErrClientClosed = errors.New("modem client is closed")
	ErrLinkLost     = errors.New("modem link lost")
)

// DefaultResponseTimeout bounds every request to the modem
const DefaultResponseTimeout = 5 * time.Second

// maxBufferedDownlinks bounds downlinks pushed with RxDone but not yet received
const maxBufferedDownlinks = 8

// Config configures a modem client
type Config struct {
	// Name used in log messages
	Name string

	// Time to wait for each response
	ResponseTimeout time.Duration

	Logger logger.Logger
}

// Client drives a modem through a PhysicalChannel. Every Stack call is one
// request answered by a response with the same sequence number. Events sent
// by the modem are posted onto the dispatcher given to Initialize.
type Client struct {
	ch     channel.PhysicalChannel
	config Config
	logger logger.Logger

	seq atomic.Uint32

	pending   map[uint8]chan wire.Response
	pendingMu sync.Mutex

	dispatcher lorawan.Dispatcher
	handler    lorawan.EventHandler
	downlinks  []wire.Downlink
	mu         sync.Mutex

	stats struct {
		requests      atomic.Uint64
		responses     atomic.Uint64
		timeouts      atomic.Uint64
		unmatched     atomic.Uint64
		events        atomic.Uint64
		droppedEvents atomic.Uint64
		downlinks     atomic.Uint64
	}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
}

var _ lorawan.Stack = (*Client)(nil)

// NewClient creates a client and starts reading from ch.
// The client owns ch and closes it on Close.
func NewClient(ch channel.PhysicalChannel, config Config) *Client {
	if config.ResponseTimeout <= 0 {
		config.ResponseTimeout = DefaultResponseTimeout
	}
	if config.Name == "" {
		config.Name = "modem"
	}
	log := config.Logger
	if log == nil {
		log = logger.GetDefault()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		ch:      ch,
		config:  config,
		logger:  log,
		pending: make(map[uint8]chan wire.Response),
		ctx:     ctx,
		cancel:  cancel,
	}
	ch.SetConnectionStateListener(c)

	c.wg.Add(1)
	go c.readLoop()

	return c
}

// nextSeq returns the next request sequence number; 0 is reserved for events
func (c *Client) nextSeq() uint8 {
	for {
		if s := uint8(c.seq.Add(1)); s != 0 {
			return s
		}
	}
}

// request sends one request and waits for its response
func (c *Client) request(t wire.MessageType, payload []byte) (wire.Response, error) {
	if c.closed.Load() {
		return wire.Response{}, ErrClientClosed
	}

	seq := c.nextSeq()
	respCh := make(chan wire.Response, 1)

	c.pendingMu.Lock()
	c.pending[seq] = respCh
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, seq)
		c.pendingMu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(c.ctx, c.config.ResponseTimeout)
	defer cancel()

	c.stats.requests.Add(1)
	if err := c.ch.Write(ctx, wire.NewFrame(t, seq, payload)); err != nil {
		return wire.Response{}, fmt.Errorf("write %s: %w", t, err)
	}
	c.logger.Debug("Modem %s: sent %s seq=%d", c.config.Name, t, seq)

	select {
	case resp, ok := <-respCh:
		if !ok {
			return wire.Response{}, ErrLinkLost
		}
		return resp, nil
	case <-ctx.Done():
		if c.ctx.Err() != nil {
			return wire.Response{}, ErrClientClosed
		}
		c.stats.timeouts.Add(1)
		return wire.Response{}, fmt.Errorf("%s seq=%d: %w", t, seq, ErrTimeout)
	}
}

// status performs a request whose response carries only a status
func (c *Client) status(t wire.MessageType, payload []byte) lorawan.Status {
	resp, err := c.request(t, payload)
	if err != nil {
		c.logger.Error("Modem %s: %s failed: %v", c.config.Name, t, err)
		return lorawan.StatusDeviceOff
	}
	return resp.Status()
}

// readLoop routes responses to waiting requests and events to the dispatcher
func (c *Client) readLoop() {
	defer c.wg.Done()

	for {
		frame, err := c.ch.Read(c.ctx)
		if err != nil {
			if c.ctx.Err() == nil {
				c.logger.Error("Modem %s: read failed: %v", c.config.Name, err)
			}
			c.failPending()
			return
		}

		switch frame.Type {
		case wire.MsgResponse:
			c.onResponse(frame)
		case wire.MsgEvent:
			c.onEvent(frame)
		default:
			c.logger.Warn("Modem %s: unexpected %s", c.config.Name, frame)
		}
	}
}

func (c *Client) onResponse(frame *wire.Frame) {
	resp, err := wire.DecodeResponse(frame.Payload)
	if err != nil {
		c.logger.Warn("Modem %s: bad response seq=%d: %v", c.config.Name, frame.Seq, err)
		return
	}

	c.pendingMu.Lock()
	respCh, ok := c.pending[frame.Seq]
	if ok {
		delete(c.pending, frame.Seq)
	}
	c.pendingMu.Unlock()

	if !ok {
		c.stats.unmatched.Add(1)
		c.logger.Warn("Modem %s: dropped response seq=%d (no pending request)", c.config.Name, frame.Seq)
		return
	}

	c.stats.responses.Add(1)
	respCh <- resp
}

// onEvent posts a modem event. RxDone may carry the downlink, which is
// buffered for the Receive call that follows.
func (c *Client) onEvent(frame *wire.Frame) {
	ev, err := wire.DecodeEvent(frame.Payload)
	if err != nil {
		c.logger.Warn("Modem %s: bad event: %v", c.config.Name, err)
		return
	}
	c.stats.events.Add(1)
	c.logger.Debug("Modem %s: event %s", c.config.Name, ev)

	c.mu.Lock()
	if ev == lorawan.EventRxDone && len(frame.Payload) > 1 {
		dl, err := wire.DecodeDownlink(frame.Payload[1:])
		switch {
		case err != nil:
			c.logger.Warn("Modem %s: bad downlink: %v", c.config.Name, err)
		case len(c.downlinks) >= maxBufferedDownlinks:
			c.logger.Warn("Modem %s: downlink buffer full, dropping %d bytes", c.config.Name, len(dl.Data))
		default:
			c.downlinks = append(c.downlinks, dl)
		}
	}
	d, h := c.dispatcher, c.handler
	c.mu.Unlock()

	if d == nil || h == nil {
		c.stats.droppedEvents.Add(1)
		c.logger.Warn("Modem %s: dropped %s before initialization", c.config.Name, ev)
		return
	}

	if err := d.Call(func() { c.deliver(ev) }); err != nil {
		c.stats.droppedEvents.Add(1)
		c.logger.Error("Modem %s: cannot post %s: %v", c.config.Name, ev, err)
	}
}

// deliver runs on the dispatcher; the handler is re-read so SetEventHandler takes effect immediately
func (c *Client) deliver(ev lorawan.Event) {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	if h != nil {
		h(ev)
	}
}

// failPending wakes every waiting request with ErrLinkLost
func (c *Client) failPending() {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for seq, respCh := range c.pending {
		close(respCh)
		delete(c.pending, seq)
	}
}

// OnConnectionEstablished implements channel.ConnectionStateListener
func (c *Client) OnConnectionEstablished() {
	c.logger.Info("Modem %s: link up", c.config.Name)
}

// OnConnectionLost implements channel.ConnectionStateListener.
// Requests in flight cannot be answered on a new connection.
func (c *Client) OnConnectionLost() {
	c.logger.Warn("Modem %s: link lost", c.config.Name)
	c.failPending()
}

// Initialize implements lorawan.Stack
func (c *Client) Initialize(d lorawan.Dispatcher) lorawan.Status {
	c.mu.Lock()
	c.dispatcher = d
	c.mu.Unlock()
	return c.status(wire.MsgInitialize, nil)
}

// SetEventHandler implements lorawan.Stack
func (c *Client) SetEventHandler(h lorawan.EventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

// SetConfirmedMsgRetries implements lorawan.Stack
func (c *Client) SetConfirmedMsgRetries(count uint8) lorawan.Status {
	return c.status(wire.MsgSetConfirmedRetries, []byte{count})
}

// EnableAdaptiveDatarate implements lorawan.Stack
func (c *Client) EnableAdaptiveDatarate() lorawan.Status {
	return c.status(wire.MsgEnableADR, nil)
}

// DisableAdaptiveDatarate implements lorawan.Stack
func (c *Client) DisableAdaptiveDatarate() lorawan.Status {
	return c.status(wire.MsgDisableADR, nil)
}

// Connect implements lorawan.Stack
func (c *Client) Connect(params lorawan.ConnectParams) lorawan.Status {
	return c.status(wire.MsgConnect, wire.EncodeConnect(params))
}

// Disconnect implements lorawan.Stack
func (c *Client) Disconnect() lorawan.Status {
	return c.status(wire.MsgDisconnect, nil)
}

// Send implements lorawan.Stack
func (c *Client) Send(port uint8, data []byte, flags uint8) int16 {
	resp, err := c.request(wire.MsgSend, wire.SendRequest{Port: port, Flags: flags, Data: data}.Encode())
	if err != nil {
		c.logger.Error("Modem %s: send failed: %v", c.config.Name, err)
		return int16(lorawan.StatusDeviceOff)
	}
	return resp.Code
}

// Receive implements lorawan.Stack. A downlink pushed with RxDone is
// returned without a round trip; otherwise the modem is asked for one.
// The returned length may exceed len(buf), in which case buf holds a prefix.
func (c *Client) Receive(buf []byte) (int16, uint8, uint8) {
	c.mu.Lock()
	var dl *wire.Downlink
	if len(c.downlinks) > 0 {
		dl = &c.downlinks[0]
		c.downlinks = c.downlinks[1:]
	}
	c.mu.Unlock()

	if dl == nil {
		resp, err := c.request(wire.MsgReceive, wire.EncodeReceiveRequest(len(buf)))
		if err != nil {
			c.logger.Error("Modem %s: receive failed: %v", c.config.Name, err)
			return int16(lorawan.StatusDeviceOff), 0, 0
		}
		if resp.Code <= 0 {
			return resp.Code, 0, 0
		}
		d, err := wire.DecodeDownlink(resp.Data)
		if err != nil {
			c.logger.Error("Modem %s: bad downlink: %v", c.config.Name, err)
			return int16(lorawan.StatusParameterInvalid), 0, 0
		}
		dl = &d
	}

	c.stats.downlinks.Add(1)
	copy(buf, dl.Data)
	return int16(len(dl.Data)), dl.Port, dl.Flags
}

// Ping checks that the modem answers
func (c *Client) Ping() error {
	resp, err := c.request(wire.MsgPing, nil)
	if err != nil {
		return err
	}
	return resp.Status().Err()
}

// Close stops the read loop and closes the channel
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.cancel()
	err := c.ch.Close()
	c.wg.Wait()
	c.failPending()
	return err
}

// Statistics is a snapshot of client counters
type Statistics struct {
	Requests           uint64
	Responses          uint64
	Timeouts           uint64
	UnmatchedResponses uint64
	Events             uint64
	DroppedEvents      uint64
	Downlinks          uint64
	Transport          channel.TransportStats
}

// Statistics returns the client counters
func (c *Client) Statistics() Statistics {
	return Statistics{
		Requests:           c.stats.requests.Load(),
		Responses:          c.stats.responses.Load(),
		Timeouts:           c.stats.timeouts.Load(),
		UnmatchedResponses: c.stats.unmatched.Load(),
		Events:             c.stats.events.Load(),
		DroppedEvents:      c.stats.droppedEvents.Load(),
		Downlinks:          c.stats.downlinks.Load(),
		Transport:          c.ch.Statistics(),
	}
}
