package node

import "sync/atomic"

// Statistics tracks node-level counters
type Statistics struct {
	// Uplink path
	uplinksRequested  atomic.Uint64
	uplinksScheduled  atomic.Uint64
	uplinksDone       atomic.Uint64
	uplinksFailed     atomic.Uint64
	wouldBlockRetries atomic.Uint64
	txErrorRetries    atomic.Uint64
	txErrors          atomic.Uint64

	// Downlink path
	downlinks     atomic.Uint64
	downlinkBytes atomic.Uint64
	rxErrors      atomic.Uint64

	// Session
	joins         atomic.Uint64
	joinFailures  atomic.Uint64
	disconnects   atomic.Uint64
	unknownEvents atomic.Uint64
}

// StatsSnapshot is a point-in-time copy of Statistics
type StatsSnapshot struct {
	UplinksRequested  uint64 // Send calls accepted by the node
	UplinksScheduled  uint64 // Sends accepted by the stack, including resends
	UplinksDone       uint64 // TxDone events
	UplinksFailed     uint64 // Transmissions dropped after an error
	WouldBlockRetries uint64 // Resends after StatusWouldBlock
	TxErrorRetries    uint64 // Resends after a transmission error event
	TxErrors          uint64 // Transmission error events
	Downlinks         uint64 // Payloads delivered to the application
	DownlinkBytes     uint64 // Bytes delivered to the application
	RxErrors          uint64 // Failed receptions
	Joins             uint64 // Connected events
	JoinFailures      uint64 // JoinFailure events
	Disconnects       uint64 // Disconnected events
	UnknownEvents     uint64 // Events the node does not handle
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	return &Statistics{}
}

// Snapshot returns the current counter values
func (s *Statistics) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		UplinksRequested:  s.uplinksRequested.Load(),
		UplinksScheduled:  s.uplinksScheduled.Load(),
		UplinksDone:       s.uplinksDone.Load(),
		UplinksFailed:     s.uplinksFailed.Load(),
		WouldBlockRetries: s.wouldBlockRetries.Load(),
		TxErrorRetries:    s.txErrorRetries.Load(),
		TxErrors:          s.txErrors.Load(),
		Downlinks:         s.downlinks.Load(),
		DownlinkBytes:     s.downlinkBytes.Load(),
		RxErrors:          s.rxErrors.Load(),
		Joins:             s.joins.Load(),
		JoinFailures:      s.joinFailures.Load(),
		Disconnects:       s.disconnects.Load(),
		UnknownEvents:     s.unknownEvents.Load(),
	}
}

// Reset resets all statistics
func (s *Statistics) Reset() {
	for _, c := range []*atomic.Uint64{
		&s.uplinksRequested, &s.uplinksScheduled, &s.uplinksDone, &s.uplinksFailed,
		&s.wouldBlockRetries, &s.txErrorRetries, &s.txErrors,
		&s.downlinks, &s.downlinkBytes, &s.rxErrors,
		&s.joins, &s.joinFailures, &s.disconnects, &s.unknownEvents,
	} {
		c.Store(0)
	}
}
