// Package bridge connects a node to Redis. Uplink requests are popped from a
// list and handed to the node; downlinks and lifecycle notifications are
// published as JSON.
package bridge

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	backend "github.com/redis/go-redis/v9"

	"avaneesh/lorawan-node/pkg/internal/logger"
	"avaneesh/lorawan-node/pkg/node"
)

const (
	DefaultPopTimeout   = time.Second
	DefaultRequeueDelay = time.Second
	DefaultOutboxSize   = 64

	// bounds the push-back of a request the closed node refused
	requeueTimeout = 2 * time.Second
)

var ErrInvalidRequest = errors.New("invalid uplink request")

// Sender is the part of the node the bridge drives
type Sender interface {
	Send(data []byte, port uint8, acknowledge bool) error
}

// Config configures a Bridge
type Config struct {
	UplinkList      string
	DownlinkChannel string
	EventChannel    string

	// Blocking pop timeout; bounds how long Run takes to notice cancellation
	PopTimeout time.Duration

	// Wait before retrying an uplink the node refused as busy
	RequeueDelay time.Duration

	// Notifications buffered for publishing
	OutboxSize int

	Logger logger.Logger
}

// UplinkRequest is one entry of the uplink list
type UplinkRequest struct {
	Port       uint8  `json:"port"`
	Ack        bool   `json:"ack"`
	PayloadHex string `json:"payload_hex"`
}

// Payload decodes PayloadHex
func (r UplinkRequest) Payload() ([]byte, error) {
	b, err := hex.DecodeString(r.PayloadHex)
	if err != nil {
		return nil, fmt.Errorf("%w: payload_hex: %v", ErrInvalidRequest, err)
	}
	return b, nil
}

// Notification is published on the event or downlink channel
type Notification struct {
	Event      string    `json:"event"`
	Port       uint8     `json:"port,omitempty"`
	PayloadHex string    `json:"payload_hex,omitempty"`
	Error      string    `json:"error,omitempty"`
	Time       time.Time `json:"time"`
}

type outbound struct {
	channel string
	msg     Notification
}

// Bridge moves uplink requests from Redis to a node and node notifications to Redis
type Bridge struct {
	client *backend.Client
	config Config
	logger logger.Logger
	outbox chan outbound

	stats struct {
		uplinks   atomic.Uint64
		requeued  atomic.Uint64
		invalid   atomic.Uint64
		failed    atomic.Uint64
		published atomic.Uint64
		dropped   atomic.Uint64
	}
}

// New creates a bridge. Notifications are buffered until Run starts.
func New(client *backend.Client, config Config) *Bridge {
	if config.PopTimeout <= 0 {
		config.PopTimeout = DefaultPopTimeout
	}
	if config.RequeueDelay <= 0 {
		config.RequeueDelay = DefaultRequeueDelay
	}
	if config.OutboxSize <= 0 {
		config.OutboxSize = DefaultOutboxSize
	}
	log := config.Logger
	if log == nil {
		log = logger.GetDefault()
	}
	return &Bridge{
		client: client,
		config: config,
		logger: log,
		outbox: make(chan outbound, config.OutboxSize),
	}
}

// Callbacks returns node callbacks that publish every notification
func (b *Bridge) Callbacks() node.Callbacks {
	return node.Callbacks{
		Connected:         func() { b.notify("connected", nil) },
		Disconnected:      func() { b.notify("disconnected", nil) },
		Transmitted:       func() { b.notify("transmitted", nil) },
		TransmissionError: func(err error) { b.notify("transmission_error", err) },
		Received:          b.downlink,
		ReceptionError:    func(err error) { b.notify("reception_error", err) },
		JoinFailure:       func() { b.notify("join_failure", nil) },
		UplinkRequired:    func() { b.notify("uplink_required", nil) },
	}
}

// notify runs on the node dispatcher and must not block
func (b *Bridge) notify(event string, err error) {
	msg := Notification{Event: event, Time: time.Now().UTC()}
	if err != nil {
		msg.Error = err.Error()
	}
	b.enqueue(b.config.EventChannel, msg)
}

func (b *Bridge) downlink(data []byte, port uint8) {
	b.enqueue(b.config.DownlinkChannel, Notification{
		Event:      "downlink",
		Port:       port,
		PayloadHex: hex.EncodeToString(data),
		Time:       time.Now().UTC(),
	})
}

func (b *Bridge) enqueue(channel string, msg Notification) {
	if channel == "" {
		return
	}
	select {
	case b.outbox <- outbound{channel: channel, msg: msg}:
	default:
		b.stats.dropped.Add(1)
		b.logger.Warn("Bridge: outbox full, dropping %s", msg.Event)
	}
}

// Run pops uplink requests and publishes notifications until ctx is done.
// It returns node.ErrNodeClosed, even during shutdown, when the node refused a
// request; that request is pushed back onto the uplink list first.
// The Redis client is left open.
func (b *Bridge) Run(ctx context.Context, sender Sender) error {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		b.publishLoop(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	if b.config.UplinkList == "" {
		<-ctx.Done()
		return nil
	}

	b.logger.Info("Bridge: waiting for uplinks on %s", b.config.UplinkList)
	for {
		raw, err := b.pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if raw == "" {
			continue
		}
		if err := b.forward(ctx, sender, raw); err != nil {
			if ctx.Err() != nil && !errors.Is(err, node.ErrNodeClosed) {
				return nil
			}
			return err
		}
	}
}

// pop returns the next request, or "" when the pop timed out
func (b *Bridge) pop(ctx context.Context) (string, error) {
	res, err := b.client.BLPop(ctx, b.config.PopTimeout, b.config.UplinkList).Result()
	if errors.Is(err, backend.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to pop uplink: %w", err)
	}
	// BLPOP answers [key, value]
	if len(res) != 2 {
		return "", nil
	}
	return res[1], nil
}

// forward hands one request to the node. A busy node gets the request back
// at the head of the list after RequeueDelay.
func (b *Bridge) forward(ctx context.Context, sender Sender, raw string) error {
	var req UplinkRequest
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		b.stats.invalid.Add(1)
		b.logger.Warn("Bridge: dropping malformed request: %v", err)
		return nil
	}
	payload, err := req.Payload()
	if err != nil {
		b.stats.invalid.Add(1)
		b.logger.Warn("Bridge: dropping request: %v", err)
		return nil
	}

	err = sender.Send(payload, req.Port, req.Ack)
	switch {
	case err == nil:
		b.stats.uplinks.Add(1)
		b.logger.Debug("Bridge: forwarded %d bytes on port %d", len(payload), req.Port)
		return nil

	case errors.Is(err, node.ErrBusy):
		b.stats.requeued.Add(1)
		if perr := b.client.LPush(ctx, b.config.UplinkList, raw).Err(); perr != nil {
			return fmt.Errorf("failed to requeue uplink: %w", perr)
		}
		select {
		case <-time.After(b.config.RequeueDelay):
		case <-ctx.Done():
		}
		return nil

	case errors.Is(err, node.ErrNodeClosed):
		// Run's ctx may already be cancelled by the same shutdown.
		pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), requeueTimeout)
		defer cancel()
		if perr := b.client.LPush(pushCtx, b.config.UplinkList, raw).Err(); perr != nil {
			b.logger.Error("Bridge: lost uplink while stopping: %v", perr)
		}
		return err

	default:
		b.stats.failed.Add(1)
		b.logger.Warn("Bridge: node rejected uplink: %v", err)
		b.notify("transmission_error", err)
		return nil
	}
}

func (b *Bridge) publishLoop(ctx context.Context) {
	for {
		select {
		case out := <-b.outbox:
			b.publish(ctx, out)
		case <-ctx.Done():
			b.flush()
			return
		}
	}
}

// flush publishes what is left with a short deadline
func (b *Bridge) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for {
		select {
		case out := <-b.outbox:
			b.publish(ctx, out)
		default:
			return
		}
	}
}

func (b *Bridge) publish(ctx context.Context, out outbound) {
	data, err := json.Marshal(out.msg)
	if err != nil {
		b.logger.Error("Bridge: failed to marshal %s: %v", out.msg.Event, err)
		return
	}
	if err := b.client.Publish(ctx, out.channel, data).Err(); err != nil {
		b.stats.dropped.Add(1)
		b.logger.Warn("Bridge: failed to publish %s: %v", out.msg.Event, err)
		return
	}
	b.stats.published.Add(1)
}

// Statistics is a snapshot of bridge counters
type Statistics struct {
	Uplinks   uint64 // Requests accepted by the node
	Requeued  uint64 // Requests pushed back while the node was busy
	Invalid   uint64 // Malformed requests dropped
	Failed    uint64 // Requests the node rejected
	Published uint64 // Notifications published
	Dropped   uint64 // Notifications lost
}

// Statistics returns the bridge counters
func (b *Bridge) Statistics() Statistics {
	return Statistics{
		Uplinks:   b.stats.uplinks.Load(),
		Requeued:  b.stats.requeued.Load(),
		Invalid:   b.stats.invalid.Load(),
		Failed:    b.stats.failed.Load(),
		Published: b.stats.published.Load(),
		Dropped:   b.stats.dropped.Load(),
	}
}
