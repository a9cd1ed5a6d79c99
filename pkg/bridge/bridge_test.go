package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"avaneesh/lorawan-node/pkg/internal/logger"
	"avaneesh/lorawan-node/pkg/node"
)

type sent struct {
	data []byte
	port uint8
	ack  bool
}

// fakeSender returns the scripted errors in order, then nil
type fakeSender struct {
	mu    sync.Mutex
	errs  []error
	calls []sent
}

func (f *fakeSender) Send(data []byte, port uint8, ack bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sent{data: data, port: port, ack: ack})
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return err
	}
	return nil
}

func (f *fakeSender) sent() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.calls...)
}

func setup(t *testing.T, cfg Config) (*Bridge, *backend.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	if cfg.UplinkList == "" {
		cfg.UplinkList = "uplinks"
	}
	cfg.EventChannel = "events"
	cfg.DownlinkChannel = "downlinks"
	cfg.RequeueDelay = 10 * time.Millisecond
	cfg.Logger = logger.NewNoOpLogger()

	return New(client, cfg), client
}

// run starts the bridge and returns a function stopping it and reporting Run's error
func run(t *testing.T, b *Bridge, s Sender) func() error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- b.Run(ctx, s) }()

	var once sync.Once
	var err error
	stop := func() error {
		once.Do(func() {
			cancel()
			select {
			case err = <-errCh:
			case <-time.After(5 * time.Second):
				err = errors.New("bridge did not stop")
			}
		})
		return err
	}
	t.Cleanup(func() { stop() })
	return stop
}

func push(t *testing.T, client *backend.Client, values ...string) {
	t.Helper()
	for _, v := range values {
		require.NoError(t, client.RPush(context.Background(), "uplinks", v).Err())
	}
}

func TestBridge_ForwardsUplinks(t *testing.T) {
	b, client := setup(t, Config{})
	sender := &fakeSender{}
	stop := run(t, b, sender)

	push(t, client,
		`{"port": 10, "ack": true, "payload_hex": "cafe"}`,
		`{"port": 11, "payload_hex": ""}`,
	)

	require.Eventually(t, func() bool { return len(sender.sent()) == 2 }, 3*time.Second, 10*time.Millisecond)
	calls := sender.sent()
	assert.Equal(t, sent{data: []byte{0xCA, 0xFE}, port: 10, ack: true}, calls[0])
	assert.Equal(t, uint8(11), calls[1].port)
	assert.False(t, calls[1].ack)
	assert.Empty(t, calls[1].data)

	require.NoError(t, stop())
	assert.Equal(t, uint64(2), b.Statistics().Uplinks)
}

func TestBridge_RequeuesWhileBusy(t *testing.T) {
	b, client := setup(t, Config{})
	sender := &fakeSender{errs: []error{node.ErrBusy, node.ErrBusy}}
	run(t, b, sender)

	push(t, client, `{"port": 1, "payload_hex": "01"}`)

	require.Eventually(t, func() bool { return b.Statistics().Uplinks == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Len(t, sender.sent(), 3)
	assert.Equal(t, uint64(2), b.Statistics().Requeued)
}

func TestBridge_DropsInvalidRequests(t *testing.T) {
	b, client := setup(t, Config{})
	sender := &fakeSender{}
	run(t, b, sender)

	push(t, client,
		`not json`,
		`{"port": 1, "payload_hex": "zz"}`,
		`{"port": 2, "payload_hex": "02"}`,
	)

	require.Eventually(t, func() bool { return len(sender.sent()) == 1 }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, uint8(2), sender.sent()[0].port)
	assert.Equal(t, uint64(2), b.Statistics().Invalid)
}

func TestBridge_RejectedUplinkIsReported(t *testing.T) {
	b, client := setup(t, Config{})
	ctx := context.Background()

	sub := client.Subscribe(ctx, "events")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	sender := &fakeSender{errs: []error{node.ErrPayloadTooLarge}}
	run(t, b, sender)
	push(t, client, `{"port": 1, "payload_hex": "01"}`)

	select {
	case msg := <-sub.Channel():
		var n Notification
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &n))
		assert.Equal(t, "transmission_error", n.Event)
		assert.Contains(t, n.Error, node.ErrPayloadTooLarge.Error())
	case <-time.After(3 * time.Second):
		t.Fatal("no notification published")
	}
	assert.Equal(t, uint64(1), b.Statistics().Failed)
}

func TestBridge_StopsWhenNodeCloses(t *testing.T) {
	b, client := setup(t, Config{})
	sender := &fakeSender{errs: []error{node.ErrNodeClosed}}
	stop := run(t, b, sender)

	req := `{"port": 3, "payload_hex": "03"}`
	push(t, client, req)

	require.Eventually(t, func() bool { return len(sender.sent()) == 1 }, 3*time.Second, 10*time.Millisecond)
	assert.ErrorIs(t, stop(), node.ErrNodeClosed)

	left, err := client.LRange(context.Background(), "uplinks", 0, -1).Result()
	require.NoError(t, err)
	assert.Equal(t, []string{req}, left)
}

// closingSender stops the bridge's context before refusing, as a process
// shutdown that closes the node and cancels the bridge together would.
type closingSender struct {
	cancel context.CancelFunc
}

func (c closingSender) Send([]byte, uint8, bool) error {
	c.cancel()
	return node.ErrNodeClosed
}

func TestBridge_RequeuesWhenShutdownCancelsContext(t *testing.T) {
	b, client := setup(t, Config{})
	req := `{"port": 4, "payload_hex": "0a0b"}`
	push(t, client, req)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- b.Run(ctx, closingSender{cancel: cancel}) }()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, node.ErrNodeClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("bridge did not stop")
	}

	left, err := client.LRange(context.Background(), "uplinks", 0, -1).Result()
	require.NoError(t, err)
	assert.Equal(t, []string{req}, left)
}

func TestBridge_PublishesCallbacks(t *testing.T) {
	b, client := setup(t, Config{})
	ctx := context.Background()

	sub := client.Subscribe(ctx, "events", "downlinks")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	// Queued before Run starts
	cb := b.Callbacks()
	cb.Connected()
	cb.Received([]byte{0xBE, 0xEF}, 7)
	cb.ReceptionError(errors.New("crc"))

	run(t, b, &fakeSender{})

	got := make(map[string]Notification)
	timeout := time.After(3 * time.Second)
	for len(got) < 3 {
		select {
		case msg := <-sub.Channel():
			var n Notification
			require.NoError(t, json.Unmarshal([]byte(msg.Payload), &n))
			got[n.Event] = n
		case <-timeout:
			t.Fatalf("received only %d notifications", len(got))
		}
	}

	assert.Equal(t, "beef", got["downlink"].PayloadHex)
	assert.Equal(t, uint8(7), got["downlink"].Port)
	assert.Equal(t, "crc", got["reception_error"].Error)
	assert.False(t, got["connected"].Time.IsZero())
}

func TestBridge_OutboxOverflow(t *testing.T) {
	b, _ := setup(t, Config{OutboxSize: 1})
	cb := b.Callbacks()
	cb.Transmitted()
	cb.Transmitted()
	assert.Equal(t, uint64(1), b.Statistics().Dropped)
}
