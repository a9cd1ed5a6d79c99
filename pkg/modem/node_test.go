package modem_test

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"avaneesh/lorawan-node/pkg/channel"
	"avaneesh/lorawan-node/pkg/internal/logger"
	"avaneesh/lorawan-node/pkg/lorawan"
	"avaneesh/lorawan-node/pkg/modem"
	"avaneesh/lorawan-node/pkg/node"
	"avaneesh/lorawan-node/pkg/wire"
)

type downlink struct {
	data []byte
	port uint8
}

func startNode(t *testing.T, simCfg modem.SimulatorConfig, cb node.Callbacks) (*node.Node, *modem.Simulator, error) {
	t.Helper()
	log := logger.NewNoOpLogger()
	simCfg.Logger = log

	hostSide, modemSide := net.Pipe()
	modemCh := channel.NewStreamChannel("modem", modemSide, log)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	sim := modem.NewSimulator(modemCh, simCfg)
	simDone := make(chan struct{})
	go func() {
		defer close(simDone)
		sim.Run(ctx)
	}()
	t.Cleanup(func() {
		modemCh.Close()
		cancel()
		<-simDone
	})

	client := modem.NewClient(channel.NewStreamChannel("host", hostSide, log), modem.Config{
		ResponseTimeout: time.Second,
		Logger:          log,
	})

	keys, err := lorawan.ParseKeys("70-B3-D5-7E-D0-00-00-01", "0000000000000001", "000102030405060708090A0B0C0D0E0F")
	require.NoError(t, err)

	cfg := node.DefaultConfig(keys)
	cfg.Logger = log
	cfg.RetryDelay = 20 * time.Millisecond
	cfg.Callbacks = cb

	n, err := node.New(ctx, client, cfg)
	if err != nil {
		client.Close()
		return nil, sim, err
	}
	t.Cleanup(func() { n.Close() })
	return n, sim, nil
}

func TestNodeOverModem_JoinSendEcho(t *testing.T) {
	var (
		mu          sync.Mutex
		transmitted int
		received    []downlink
	)
	cb := node.Callbacks{
		Transmitted: func() {
			mu.Lock()
			transmitted++
			mu.Unlock()
		},
		Received: func(data []byte, port uint8) {
			mu.Lock()
			received = append(received, downlink{data: data, port: port})
			mu.Unlock()
		},
	}

	n, sim, err := startNode(t, modem.SimulatorConfig{Echo: true, JoinDelay: 10 * time.Millisecond}, cb)
	require.NoError(t, err)
	require.True(t, n.Connected())
	assert.True(t, n.InitReport().OK())
	assert.True(t, sim.ADR())
	assert.Equal(t, node.DefaultConfirmedRetries, sim.ConfirmedRetries())

	params, ok := sim.JoinParams()
	require.True(t, ok)
	assert.Equal(t, "70B3D57ED0000001", params.Keys.DevEUI.String())

	require.NoError(t, n.Send([]byte("hello"), 15, true))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return transmitted == 1 && len(received) == 1
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []byte("hello"), received[0].data)
	assert.Equal(t, uint8(15), received[0].port)
	mu.Unlock()

	ups := sim.Uplinks()
	require.Len(t, ups, 1)
	assert.Equal(t, lorawan.MsgConfirmed, ups[0].Flags)

	_, pending := n.Pending()
	assert.False(t, pending)
}

func TestNodeOverModem_QueuedDownlink(t *testing.T) {
	got := make(chan downlink, 1)
	n, sim, err := startNode(t, modem.SimulatorConfig{}, node.Callbacks{
		Received: func(data []byte, port uint8) { got <- downlink{data: data, port: port} },
	})
	require.NoError(t, err)

	sim.QueueDownlink(context.Background(), wire.Downlink{Port: 42, Flags: lorawan.MsgUnconfirmed, Data: []byte{1, 2, 3}})

	select {
	case dl := <-got:
		assert.Equal(t, []byte{1, 2, 3}, dl.data)
		assert.Equal(t, uint8(42), dl.port)
	case <-time.After(2 * time.Second):
		t.Fatal("downlink not delivered")
	}
	assert.Equal(t, uint64(1), n.Statistics().Downlinks)
}

func TestNodeOverModem_JoinFailure(t *testing.T) {
	failed := make(chan struct{}, 1)
	_, _, err := startNode(t, modem.SimulatorConfig{JoinFails: true}, node.Callbacks{
		JoinFailure: func() { failed <- struct{}{} },
	})
	require.ErrorIs(t, err, node.ErrNotConnected)

	select {
	case <-failed:
	case <-time.After(time.Second):
		t.Fatal("join failure callback not invoked")
	}
}

func TestNodeOverModem_Disconnect(t *testing.T) {
	disconnected := make(chan struct{}, 1)
	n, sim, err := startNode(t, modem.SimulatorConfig{}, node.Callbacks{
		Disconnected: func() { disconnected <- struct{}{} },
	})
	require.NoError(t, err)

	require.NoError(t, n.Disconnect())
	select {
	case <-disconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("disconnected callback not invoked")
	}
	assert.False(t, sim.Joined())

	select {
	case <-n.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher still running after disconnect")
	}
}
