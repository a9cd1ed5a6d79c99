package modem

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	"avaneesh/lorawan-node/pkg/channel"
	"avaneesh/lorawan-node/pkg/internal/logger"
	"avaneesh/lorawan-node/pkg/lorawan"
	"avaneesh/lorawan-node/pkg/wire"
)

// SimulatorConfig configures a Simulator
type SimulatorConfig struct {
	// Delay between accepting a join and reporting its result
	JoinDelay time.Duration

	// Delay between accepting an uplink and reporting TxDone
	TxDelay time.Duration

	// Report EventJoinFailure instead of EventConnected
	JoinFails bool

	// Answer every uplink with a downlink carrying the same payload
	Echo bool

	Logger logger.Logger
}

// Simulator plays the modem side of the link: it answers requests and
// reports join, transmission and reception events like a network would.
type Simulator struct {
	ch     channel.PhysicalChannel
	config SimulatorConfig
	logger logger.Logger

	mu          sync.Mutex
	initialized bool
	joined      bool
	adr         bool
	retries     uint8
	join        *lorawan.ConnectParams
	uplinks     []wire.SendRequest
	downlinks   []wire.Downlink

	wg sync.WaitGroup
}

// NewSimulator creates a simulator answering on ch
func NewSimulator(ch channel.PhysicalChannel, config SimulatorConfig) *Simulator {
	log := config.Logger
	if log == nil {
		log = logger.GetDefault()
	}
	return &Simulator{ch: ch, config: config, logger: log}
}

// Run serves requests until ctx is done or the channel fails
func (s *Simulator) Run(ctx context.Context) error {
	defer s.wg.Wait()

	for {
		req, err := s.ch.Read(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, channel.ErrChannelClosed) {
				return nil
			}
			return err
		}
		if !req.Type.IsRequest() {
			s.logger.Warn("Simulator: ignoring %s", req)
			continue
		}

		resp, after := s.handle(req)
		if err := s.ch.Write(ctx, wire.NewFrame(wire.MsgResponse, req.Seq, resp.Encode())); err != nil {
			s.logger.Error("Simulator: write response: %v", err)
			continue
		}
		if after != nil {
			s.schedule(ctx, after)
		}
	}
}

func status(st lorawan.Status) wire.Response {
	return wire.Response{Code: int16(st)}
}

// handle returns the response and an optional follow-up run after it is written
func (s *Simulator) handle(req *wire.Frame) (wire.Response, func(ctx context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Debug("Simulator: %s", req)

	switch req.Type {
	case wire.MsgPing:
		return status(lorawan.StatusOK), nil

	case wire.MsgInitialize:
		s.initialized = true
		return status(lorawan.StatusOK), nil
	}

	if !s.initialized {
		return status(lorawan.StatusNotInitialized), nil
	}

	switch req.Type {
	case wire.MsgSetConfirmedRetries:
		if len(req.Payload) < 1 {
			return status(lorawan.StatusParameterInvalid), nil
		}
		s.retries = req.Payload[0]
		return status(lorawan.StatusOK), nil

	case wire.MsgEnableADR:
		s.adr = true
		return status(lorawan.StatusOK), nil

	case wire.MsgDisableADR:
		s.adr = false
		return status(lorawan.StatusOK), nil

	case wire.MsgConnect:
		params, err := wire.DecodeConnect(req.Payload)
		if err != nil {
			return status(lorawan.StatusParameterInvalid), nil
		}
		if s.joined {
			return status(lorawan.StatusAlreadyConnected), nil
		}
		s.join = &params
		result := lorawan.EventConnected
		if s.config.JoinFails {
			result = lorawan.EventJoinFailure
		}
		return status(lorawan.StatusConnectInProgress), func(ctx context.Context) {
			s.sleep(ctx, s.config.JoinDelay)
			s.mu.Lock()
			s.joined = result == lorawan.EventConnected
			s.mu.Unlock()
			s.emit(ctx, result, nil)
		}

	case wire.MsgDisconnect:
		s.joined = false
		return status(lorawan.StatusOK), func(ctx context.Context) {
			s.emit(ctx, lorawan.EventDisconnected, nil)
		}

	case wire.MsgSend:
		up, err := wire.DecodeSendRequest(req.Payload)
		switch {
		case err != nil:
			return status(lorawan.StatusParameterInvalid), nil
		case !s.joined:
			return status(lorawan.StatusNoNetworkJoined), nil
		case len(up.Data) > lorawan.MaxPayload:
			return status(lorawan.StatusLengthError), nil
		}
		s.uplinks = append(s.uplinks, up)
		return wire.Response{Code: int16(len(up.Data))}, func(ctx context.Context) {
			s.sleep(ctx, s.config.TxDelay)
			s.emit(ctx, lorawan.EventTxDone, nil)
			if s.config.Echo {
				s.emit(ctx, lorawan.EventRxDone, &wire.Downlink{
					Port:  up.Port,
					Flags: lorawan.MsgUnconfirmed,
					Data:  bytes.Clone(up.Data),
				})
			}
		}

	case wire.MsgReceive:
		if len(s.downlinks) == 0 {
			return status(lorawan.StatusOK), nil
		}
		dl := s.downlinks[0]
		s.downlinks = s.downlinks[1:]
		return wire.Response{Code: int16(len(dl.Data)), Data: dl.Encode()}, nil
	}

	return status(lorawan.StatusServiceUnknown), nil
}

func (s *Simulator) schedule(ctx context.Context, fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(ctx)
	}()
}

func (s *Simulator) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}

// emit sends an event frame; a downlink is attached to RxDone
func (s *Simulator) emit(ctx context.Context, ev lorawan.Event, dl *wire.Downlink) {
	if ctx.Err() != nil {
		return
	}
	payload := wire.EncodeEvent(ev)
	if dl != nil {
		payload = append(payload, dl.Encode()...)
	}
	if err := s.ch.Write(ctx, wire.NewFrame(wire.MsgEvent, 0, payload)); err != nil {
		s.logger.Warn("Simulator: emit %s: %v", ev, err)
	}
}

// Emit reports ev to the host immediately
func (s *Simulator) Emit(ctx context.Context, ev lorawan.Event) {
	s.emit(ctx, ev, nil)
}

// QueueDownlink stores a downlink and reports RxDone without carrying it,
// so the host fetches it with a receive request
func (s *Simulator) QueueDownlink(ctx context.Context, dl wire.Downlink) {
	s.mu.Lock()
	s.downlinks = append(s.downlinks, dl)
	s.mu.Unlock()
	s.emit(ctx, lorawan.EventRxDone, nil)
}

// Uplinks returns every uplink accepted so far
func (s *Simulator) Uplinks() []wire.SendRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]wire.SendRequest(nil), s.uplinks...)
}

// Joined reports whether the simulated device has joined
func (s *Simulator) Joined() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.joined
}

// ADR reports whether adaptive data rate is enabled
func (s *Simulator) ADR() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.adr
}

// JoinParams returns the parameters of the last join request
func (s *Simulator) JoinParams() (lorawan.ConnectParams, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.join == nil {
		return lorawan.ConnectParams{}, false
	}
	return *s.join, true
}

// ConfirmedRetries returns the retry count set by the host
func (s *Simulator) ConfirmedRetries() uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retries
}
