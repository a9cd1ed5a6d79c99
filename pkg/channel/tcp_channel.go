package channel

import (
	"errors"
	"fmt"
	"net"
	"time"

	"avaneesh/lorawan-node/pkg/internal/logger"
)

// TCPChannel implements PhysicalChannel for TCP connections to a
// network-attached modem. As a client it redials after the connection
// drops; as a server the latest accepted connection replaces the previous one.
type TCPChannel struct {
	*core

	address        string
	isServer       bool
	listener       net.Listener
	reconnectDelay time.Duration
	dialTimeout    time.Duration
}

// TCPChannelConfig configures a TCP channel
type TCPChannelConfig struct {
	Address        string        // "host:port" format
	IsServer       bool          // true = listen, false = connect
	ReconnectDelay time.Duration // Delay between reconnection attempts (client only)
	DialTimeout    time.Duration // Timeout for each dial attempt
	ReadTimeout    time.Duration // Read timeout (0 = no timeout)
	WriteTimeout   time.Duration // Write timeout (0 = no timeout)
	Logger         logger.Logger
}

// NewTCPChannel creates a new TCP channel. A client dials once synchronously
// and fails if the modem is unreachable.
func NewTCPChannel(config TCPChannelConfig) (*TCPChannel, error) {
	if config.Address == "" {
		return nil, fmt.Errorf("address is required")
	}

	if config.ReconnectDelay == 0 {
		config.ReconnectDelay = 5 * time.Second
	}
	if config.DialTimeout == 0 {
		config.DialTimeout = 10 * time.Second
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = 10 * time.Second
	}

	tc := &TCPChannel{
		core:           newCore("tcp://"+config.Address, config.ReadTimeout, config.WriteTimeout, config.Logger),
		address:        config.Address,
		isServer:       config.IsServer,
		reconnectDelay: config.ReconnectDelay,
		dialTimeout:    config.DialTimeout,
	}
	tc.redial = true

	if config.IsServer {
		if err := tc.startServer(); err != nil {
			tc.cancel()
			return nil, err
		}
	} else {
		if err := tc.connect(); err != nil {
			tc.cancel()
			return nil, err
		}
	}

	return tc, nil
}

// Addr returns the listening address of a server channel
func (tc *TCPChannel) Addr() net.Addr {
	if tc.listener == nil {
		return nil
	}
	return tc.listener.Addr()
}

// startServer starts listening for incoming connections
func (tc *TCPChannel) startServer() error {
	listener, err := net.Listen("tcp", tc.address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", tc.address, err)
	}
	tc.listener = listener

	tc.wg.Add(1)
	go tc.acceptLoop()
	return nil
}

// acceptLoop accepts incoming connections until the listener closes
func (tc *TCPChannel) acceptLoop() {
	defer tc.wg.Done()

	for {
		conn, err := tc.listener.Accept()
		if err != nil {
			if tc.closed.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			tc.logger.Warn("Channel %s: accept failed: %v", tc.name, err)
			continue
		}
		tc.attach(conn)
	}
}

// connect establishes the first connection and starts the reconnect loop
func (tc *TCPChannel) connect() error {
	conn, err := net.DialTimeout("tcp", tc.address, tc.dialTimeout)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", tc.address, err)
	}
	tc.attach(conn)

	tc.wg.Add(1)
	go tc.reconnectLoop()
	return nil
}

// reconnectLoop redials after every lost connection
func (tc *TCPChannel) reconnectLoop() {
	defer tc.wg.Done()

	for {
		select {
		case <-tc.ctx.Done():
			return
		case <-tc.lost:
		}

		for {
			select {
			case <-tc.ctx.Done():
				return
			case <-time.After(tc.reconnectDelay):
			}

			conn, err := net.DialTimeout("tcp", tc.address, tc.dialTimeout)
			if err != nil {
				tc.logger.Debug("Channel %s: reconnect failed: %v", tc.name, err)
				continue
			}
			if tc.closed.Load() {
				conn.Close()
				return
			}
			tc.attach(conn)
			break
		}
	}
}

// Close implements PhysicalChannel.Close
func (tc *TCPChannel) Close() error {
	if !tc.shutdown() {
		return nil
	}
	if tc.listener != nil {
		tc.listener.Close()
	}
	tc.wg.Wait()
	return nil
}
