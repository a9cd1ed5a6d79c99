package channel

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"time"

	"github.com/quic-go/quic-go"

	"avaneesh/lorawan-node/pkg/internal/logger"
)

// ALPN protocol negotiated by modem QUIC connections
const quicProtocol = "lorawan-modem"

// QUICChannel implements PhysicalChannel over one bidirectional QUIC stream.
// The client opens the stream; the server accepts it once the client has
// written its first frame.
type QUICChannel struct {
	*core

	address        string
	isServer       bool
	listener       *quic.Listener
	reconnectDelay time.Duration
	tlsConfig      *tls.Config
	quicConfig     *quic.Config
}

// QUICChannelConfig configures a QUIC channel
type QUICChannelConfig struct {
	Address        string        // "host:port" format
	IsServer       bool          // true = listen, false = connect
	ReconnectDelay time.Duration // Delay between reconnection attempts (client only)
	ReadTimeout    time.Duration // Read timeout (0 = no timeout)
	WriteTimeout   time.Duration // Write timeout (0 = no timeout)
	KeepAlive      time.Duration // Keep-alive period (0 = 15s)
	TLSConfig      *tls.Config   // TLS config; nil generates a self-signed one for simulator use
	Logger         logger.Logger
}

// quicStream closes its connection together with the stream
type quicStream struct {
	*quic.Stream
	conn *quic.Conn
}

func (s quicStream) Close() error {
	err := s.Stream.Close()
	s.conn.CloseWithError(0, "stream closed")
	return err
}

// NewQUICChannel creates a new QUIC channel
func NewQUICChannel(config QUICChannelConfig) (*QUICChannel, error) {
	if config.Address == "" {
		return nil, fmt.Errorf("address is required")
	}

	if config.ReconnectDelay == 0 {
		config.ReconnectDelay = 5 * time.Second
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = 10 * time.Second
	}
	if config.KeepAlive == 0 {
		config.KeepAlive = 15 * time.Second
	}

	tlsConfig := config.TLSConfig
	if tlsConfig == nil {
		var err error
		tlsConfig, err = generateTLSConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to generate TLS config: %w", err)
		}
	}

	qc := &QUICChannel{
		core:           newCore("quic://"+config.Address, config.ReadTimeout, config.WriteTimeout, config.Logger),
		address:        config.Address,
		isServer:       config.IsServer,
		reconnectDelay: config.ReconnectDelay,
		tlsConfig:      tlsConfig,
		quicConfig:     &quic.Config{KeepAlivePeriod: config.KeepAlive},
	}
	qc.redial = true

	if config.IsServer {
		if err := qc.startServer(); err != nil {
			qc.cancel()
			return nil, err
		}
	} else {
		if err := qc.connect(); err != nil {
			qc.cancel()
			return nil, err
		}
	}

	return qc, nil
}

// generateTLSConfig generates a self-signed certificate for QUIC.
// It is meant for the modem simulator and tests only: peers are not
// authenticated, so a real deployment must supply its own TLS config.
func generateTLSConfig() (*tls.Config, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, err
	}

	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})

	tlsCert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		Certificates:       []tls.Certificate{tlsCert},
		NextProtos:         []string{quicProtocol},
		InsecureSkipVerify: true, // simulator and tests only
	}, nil
}

// Addr returns the listening address of a server channel
func (qc *QUICChannel) Addr() net.Addr {
	if qc.listener == nil {
		return nil
	}
	return qc.listener.Addr()
}

// startServer starts listening for incoming QUIC connections
func (qc *QUICChannel) startServer() error {
	listener, err := quic.ListenAddr(qc.address, qc.tlsConfig, qc.quicConfig)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", qc.address, err)
	}
	qc.listener = listener

	qc.wg.Add(1)
	go qc.acceptLoop()
	return nil
}

// acceptLoop accepts incoming QUIC connections
func (qc *QUICChannel) acceptLoop() {
	defer qc.wg.Done()

	for {
		conn, err := qc.listener.Accept(qc.ctx)
		if err != nil {
			if qc.closed.Load() || qc.ctx.Err() != nil {
				return
			}
			qc.logger.Warn("Channel %s: accept failed: %v", qc.name, err)
			continue
		}

		qc.wg.Add(1)
		go qc.acceptStream(conn)
	}
}

// acceptStream waits for the client's stream on conn
func (qc *QUICChannel) acceptStream(conn *quic.Conn) {
	defer qc.wg.Done()

	stream, err := conn.AcceptStream(qc.ctx)
	if err != nil {
		conn.CloseWithError(0, "no stream")
		return
	}
	qc.attach(quicStream{Stream: stream, conn: conn})
}

// dial opens a connection and its stream
func (qc *QUICChannel) dial() (quicStream, error) {
	conn, err := quic.DialAddr(qc.ctx, qc.address, qc.tlsConfig, qc.quicConfig)
	if err != nil {
		return quicStream{}, fmt.Errorf("failed to connect to %s: %w", qc.address, err)
	}

	stream, err := conn.OpenStreamSync(qc.ctx)
	if err != nil {
		conn.CloseWithError(0, "failed to open stream")
		return quicStream{}, fmt.Errorf("failed to open stream: %w", err)
	}
	return quicStream{Stream: stream, conn: conn}, nil
}

// connect establishes the first connection and starts the reconnect loop
func (qc *QUICChannel) connect() error {
	s, err := qc.dial()
	if err != nil {
		return err
	}
	qc.attach(s)

	qc.wg.Add(1)
	go qc.reconnectLoop()
	return nil
}

// reconnectLoop redials after every lost connection
func (qc *QUICChannel) reconnectLoop() {
	defer qc.wg.Done()

	for {
		select {
		case <-qc.ctx.Done():
			return
		case <-qc.lost:
		}

		for qc.ctx.Err() == nil {
			select {
			case <-qc.ctx.Done():
				return
			case <-time.After(qc.reconnectDelay):
			}

			s, err := qc.dial()
			if err != nil {
				qc.logger.Debug("Channel %s: reconnect failed: %v", qc.name, err)
				continue
			}
			qc.attach(s)
			break
		}
	}
}

// Close implements PhysicalChannel.Close
func (qc *QUICChannel) Close() error {
	if !qc.shutdown() {
		return nil
	}
	if qc.listener != nil {
		qc.listener.Close()
	}
	qc.wg.Wait()
	return nil
}
