package channel

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"avaneesh/lorawan-node/pkg/internal/logger"
	"avaneesh/lorawan-node/pkg/wire"
)

// deadliner is implemented by net.Conn and *quic.Stream
type deadliner interface {
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// session is one open byte stream and its frame reader
type session struct {
	rwc    io.ReadWriteCloser
	reader *wire.Reader
	once   sync.Once
}

func newSession(rwc io.ReadWriteCloser) *session {
	return &session{rwc: rwc, reader: wire.NewReader(rwc)}
}

func (s *session) close() {
	s.once.Do(func() { s.rwc.Close() })
}

// core holds the state shared by every channel: the current session,
// framing, statistics and listener notification.
type core struct {
	name         string
	readTimeout  time.Duration
	writeTimeout time.Duration
	logger       logger.Logger

	// redial is false for channels that cannot replace a lost stream
	redial bool

	// Current session; attached is closed and replaced whenever one is attached
	sess     *session
	attached chan struct{}
	lost     chan struct{}
	mu       sync.Mutex

	writeMu sync.Mutex

	listener   ConnectionStateListener
	listenerMu sync.RWMutex

	stats struct {
		bytesSent      atomic.Uint64
		bytesReceived  atomic.Uint64
		framesSent     atomic.Uint64
		framesReceived atomic.Uint64
		crcErrors      atomic.Uint64
		writeErrors    atomic.Uint64
		readErrors     atomic.Uint64
		connects       atomic.Uint64
		disconnects    atomic.Uint64
		discarded      atomic.Uint64
	}

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
}

func newCore(name string, readTimeout, writeTimeout time.Duration, log logger.Logger) *core {
	if log == nil {
		log = logger.GetDefault()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &core{
		name:         name,
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
		logger:       log,
		attached:     make(chan struct{}),
		lost:         make(chan struct{}, 1),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// attach makes rwc the current session, closing any previous one
func (c *core) attach(rwc io.ReadWriteCloser) {
	s := newSession(rwc)

	c.mu.Lock()
	if c.closed.Load() {
		c.mu.Unlock()
		s.close()
		return
	}
	prev := c.sess
	c.sess = s
	close(c.attached)
	c.attached = make(chan struct{})
	c.mu.Unlock()

	if prev != nil {
		prev.close()
		c.stats.disconnects.Add(1)
		c.notifyConnectionLost()
	}
	c.stats.connects.Add(1)
	c.logger.Info("Channel %s: connection established", c.name)
	c.notifyConnectionEstablished()
}

// detach drops s if it is still current
func (c *core) detach(s *session, err error) {
	c.mu.Lock()
	current := c.sess == s
	if current {
		c.sess = nil
	}
	c.mu.Unlock()

	s.close()
	if !current {
		return
	}

	c.stats.disconnects.Add(1)
	if !c.closed.Load() {
		c.logger.Warn("Channel %s: connection lost: %v", c.name, err)
	}
	c.notifyConnectionLost()

	select {
	case c.lost <- struct{}{}:
	default:
	}
}

// current waits for a session
func (c *core) current(ctx context.Context) (*session, error) {
	for {
		c.mu.Lock()
		s, attached := c.sess, c.attached
		c.mu.Unlock()

		if c.closed.Load() {
			return nil, ErrChannelClosed
		}
		if s != nil {
			return s, nil
		}
		if !c.redial {
			return nil, ErrNoConnection
		}

		select {
		case <-attached:
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.ctx.Done():
			return nil, ErrChannelClosed
		}
	}
}

// Read implements PhysicalChannel.Read
func (c *core) Read(ctx context.Context) (*wire.Frame, error) {
	for {
		s, err := c.current(ctx)
		if err != nil {
			return nil, err
		}

		before := s.reader.Discarded()
		frame, err := c.readFrame(ctx, s)
		c.stats.discarded.Add(s.reader.Discarded() - before)

		switch {
		case err == nil:
			c.stats.framesReceived.Add(1)
			c.stats.bytesReceived.Add(uint64(wire.HeaderSize + len(frame.Payload)))
			return frame, nil

		case errors.Is(err, wire.ErrInvalidCRC):
			c.stats.crcErrors.Add(1)
			c.logger.Debug("Channel %s: dropped corrupt frame", c.name)
			continue

		case ctx.Err() != nil:
			return nil, ctx.Err()

		case c.closed.Load():
			return nil, ErrChannelClosed

		case errors.Is(err, os.ErrDeadlineExceeded):
			c.stats.readErrors.Add(1)
			continue
		}

		c.stats.readErrors.Add(1)
		c.detach(s, err)
		if !c.redial {
			return nil, err
		}
	}
}

func (c *core) readFrame(ctx context.Context, s *session) (*wire.Frame, error) {
	d, ok := s.rwc.(deadliner)
	if !ok {
		return s.reader.ReadFrame()
	}

	var deadline time.Time
	if c.readTimeout > 0 {
		deadline = time.Now().Add(c.readTimeout)
	}
	d.SetReadDeadline(deadline)

	stop := context.AfterFunc(ctx, func() { d.SetReadDeadline(time.Now()) })
	defer stop()

	return s.reader.ReadFrame()
}

// Write implements PhysicalChannel.Write
func (c *core) Write(ctx context.Context, frame *wire.Frame) error {
	data, err := frame.Serialize()
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return ErrChannelClosed
	default:
	}

	c.mu.Lock()
	s := c.sess
	c.mu.Unlock()
	if s == nil {
		c.stats.writeErrors.Add(1)
		return ErrNoConnection
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if d, ok := s.rwc.(deadliner); ok {
		var deadline time.Time
		if c.writeTimeout > 0 {
			deadline = time.Now().Add(c.writeTimeout)
		}
		if dl, ok := ctx.Deadline(); ok && (deadline.IsZero() || dl.Before(deadline)) {
			deadline = dl
		}
		d.SetWriteDeadline(deadline)
	}

	if _, err := s.rwc.Write(data); err != nil {
		c.stats.writeErrors.Add(1)
		c.detach(s, err)
		return err
	}

	c.stats.bytesSent.Add(uint64(len(data)))
	c.stats.framesSent.Add(1)
	return nil
}

// shutdown closes the current session and waits for background goroutines
func (c *core) shutdown() bool {
	if !c.closed.CompareAndSwap(false, true) {
		return false
	}
	c.cancel()

	c.mu.Lock()
	s := c.sess
	c.sess = nil
	c.mu.Unlock()

	if s != nil {
		s.close()
		c.stats.disconnects.Add(1)
	}
	return true
}

// Statistics implements PhysicalChannel.Statistics
func (c *core) Statistics() TransportStats {
	return TransportStats{
		BytesSent:      c.stats.bytesSent.Load(),
		BytesReceived:  c.stats.bytesReceived.Load(),
		FramesSent:     c.stats.framesSent.Load(),
		FramesReceived: c.stats.framesReceived.Load(),
		CRCErrors:      c.stats.crcErrors.Load(),
		BytesDiscarded: c.stats.discarded.Load(),
		WriteErrors:    c.stats.writeErrors.Load(),
		ReadErrors:     c.stats.readErrors.Load(),
		Connects:       c.stats.connects.Load(),
		Disconnects:    c.stats.disconnects.Load(),
	}
}

// SetConnectionStateListener implements PhysicalChannel.SetConnectionStateListener
func (c *core) SetConnectionStateListener(listener ConnectionStateListener) {
	c.listenerMu.Lock()
	defer c.listenerMu.Unlock()
	c.listener = listener
}

func (c *core) notifyConnectionEstablished() {
	c.listenerMu.RLock()
	listener := c.listener
	c.listenerMu.RUnlock()

	if listener != nil {
		listener.OnConnectionEstablished()
	}
}

func (c *core) notifyConnectionLost() {
	c.listenerMu.RLock()
	listener := c.listener
	c.listenerMu.RUnlock()

	if listener != nil {
		listener.OnConnectionLost()
	}
}

// StreamChannel carries frames over a single io.ReadWriteCloser such as a
// serial port or a pipe. It does not reconnect: once the stream fails,
// Read returns the error.
type StreamChannel struct {
	*core
}

// NewStreamChannel wraps rwc. name is used in log messages.
func NewStreamChannel(name string, rwc io.ReadWriteCloser, log logger.Logger) *StreamChannel {
	sc := &StreamChannel{core: newCore(name, 0, 0, log)}
	sc.attach(rwc)
	return sc
}

// Close implements PhysicalChannel.Close
func (sc *StreamChannel) Close() error {
	sc.shutdown()
	return nil
}
