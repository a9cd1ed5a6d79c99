package node

import (
	"bytes"
	"sync"
	"time"

	"avaneesh/lorawan-node/pkg/lorawan"
)

type sendCall struct {
	Port  uint8
	Data  []byte
	Flags uint8
	At    time.Time
}

type rxResult struct {
	N     int16
	Data  []byte
	Port  uint8
	Flags uint8
}

// fakeStack is a scripted lorawan.Stack. Events are posted through the
// dispatcher like a real stack does.
type fakeStack struct {
	mu         sync.Mutex
	dispatcher lorawan.Dispatcher
	handler    lorawan.EventHandler

	initStatus    lorawan.Status
	retriesStatus lorawan.Status
	adrStatus     lorawan.Status
	connectStatus lorawan.Status

	// events posted from Connect, e.g. EventConnected
	onConnect []lorawan.Event

	// results returned by successive Send calls; len(data) once exhausted
	sendResults []int16
	sends       []sendCall

	receives []rxResult

	confirmedRetries uint8
	adr              bool
	connectParams    *lorawan.ConnectParams
	disconnects      int
	closed           int
}

func newFakeStack() *fakeStack {
	return &fakeStack{onConnect: []lorawan.Event{lorawan.EventConnected}}
}

func (s *fakeStack) Initialize(d lorawan.Dispatcher) lorawan.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dispatcher = d
	return s.initStatus
}

func (s *fakeStack) SetEventHandler(h lorawan.EventHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

func (s *fakeStack) SetConfirmedMsgRetries(count uint8) lorawan.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.confirmedRetries = count
	return s.retriesStatus
}

func (s *fakeStack) EnableAdaptiveDatarate() lorawan.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.adrStatus.OK() {
		s.adr = true
	}
	return s.adrStatus
}

func (s *fakeStack) DisableAdaptiveDatarate() lorawan.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adr = false
	return lorawan.StatusOK
}

func (s *fakeStack) Connect(params lorawan.ConnectParams) lorawan.Status {
	s.mu.Lock()
	s.connectParams = &params
	status := s.connectStatus
	evs := s.onConnect
	s.mu.Unlock()

	if status.OK() || status == lorawan.StatusConnectInProgress {
		for _, ev := range evs {
			s.Emit(ev)
		}
	}
	return status
}

func (s *fakeStack) Disconnect() lorawan.Status {
	s.mu.Lock()
	s.disconnects++
	s.mu.Unlock()
	s.Emit(lorawan.EventDisconnected)
	return lorawan.StatusOK
}

func (s *fakeStack) Send(port uint8, data []byte, flags uint8) int16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sends = append(s.sends, sendCall{Port: port, Data: bytes.Clone(data), Flags: flags, At: time.Now()})
	if len(s.sendResults) > 0 {
		rc := s.sendResults[0]
		s.sendResults = s.sendResults[1:]
		return rc
	}
	return int16(len(data))
}

func (s *fakeStack) Receive(buf []byte) (int16, uint8, uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.receives) == 0 {
		return 0, 0, 0
	}
	r := s.receives[0]
	s.receives = s.receives[1:]
	copy(buf, r.Data)
	return r.N, r.Port, r.Flags
}

func (s *fakeStack) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

// Emit posts ev to the node's event handler through the dispatcher
func (s *fakeStack) Emit(ev lorawan.Event) {
	s.mu.Lock()
	d := s.dispatcher
	s.mu.Unlock()
	if d == nil {
		return
	}
	_ = d.Call(func() {
		s.mu.Lock()
		h := s.handler
		s.mu.Unlock()
		if h != nil {
			h(ev)
		}
	})
}

func (s *fakeStack) queueReceive(r rxResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receives = append(s.receives, r)
}

func (s *fakeStack) sent() []sendCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sendCall(nil), s.sends...)
}

func (s *fakeStack) sendCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sends)
}

func (s *fakeStack) adrEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.adr
}

func (s *fakeStack) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
