package node

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exports node statistics as prometheus metrics
type Collector struct {
	node *Node

	uplinks       *prometheus.Desc
	retries       *prometheus.Desc
	txErrors      *prometheus.Desc
	downlinks     *prometheus.Desc
	downlinkBytes *prometheus.Desc
	rxErrors      *prometheus.Desc
	joins         *prometheus.Desc
	disconnects   *prometheus.Desc
	state         *prometheus.Desc
	pending       *prometheus.Desc
}

// NewCollector creates a collector for n. constLabels are attached to every metric.
func NewCollector(n *Node, constLabels prometheus.Labels) *Collector {
	static := prometheus.Labels{"dev_eui": n.ID()}
	for k, v := range constLabels {
		static[k] = v
	}

	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName("lorawan", "node", name), help, labels, static)
	}

	return &Collector{
		node:          n,
		uplinks:       desc("uplinks_total", "Uplinks by stage (requested, scheduled, done, failed).", "result"),
		retries:       desc("send_retries_total", "Automatic resends by cause.", "reason"),
		txErrors:      desc("tx_errors_total", "Transmission error events reported by the stack."),
		downlinks:     desc("downlinks_total", "Downlinks delivered to the application."),
		downlinkBytes: desc("downlink_bytes_total", "Downlink payload bytes delivered to the application."),
		rxErrors:      desc("rx_errors_total", "Failed receptions."),
		joins:         desc("joins_total", "Join outcomes.", "result"),
		disconnects:   desc("disconnects_total", "Disconnected events."),
		state:         desc("connection_state", "Connection state (0 disconnected, 1 connecting, 2 connected)."),
		pending:       desc("pending_transmission", "1 while an uplink is in progress."),
	}
}

// Describe implements prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.uplinks
	ch <- c.retries
	ch <- c.txErrors
	ch <- c.downlinks
	ch <- c.downlinkBytes
	ch <- c.rxErrors
	ch <- c.joins
	ch <- c.disconnects
	ch <- c.state
	ch <- c.pending
}

// Collect implements prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.node.Statistics()

	counter := func(d *prometheus.Desc, v uint64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}

	counter(c.uplinks, s.UplinksRequested, "requested")
	counter(c.uplinks, s.UplinksScheduled, "scheduled")
	counter(c.uplinks, s.UplinksDone, "done")
	counter(c.uplinks, s.UplinksFailed, "failed")
	counter(c.retries, s.WouldBlockRetries, "would_block")
	counter(c.retries, s.TxErrorRetries, "tx_error")
	counter(c.txErrors, s.TxErrors)
	counter(c.downlinks, s.Downlinks)
	counter(c.downlinkBytes, s.DownlinkBytes)
	counter(c.rxErrors, s.RxErrors)
	counter(c.joins, s.Joins, "success")
	counter(c.joins, s.JoinFailures, "failure")
	counter(c.disconnects, s.Disconnects)

	ch <- prometheus.MustNewConstMetric(c.state, prometheus.GaugeValue, float64(c.node.State()))

	var pending float64
	if _, ok := c.node.Pending(); ok {
		pending = 1
	}
	ch <- prometheus.MustNewConstMetric(c.pending, prometheus.GaugeValue, pending)
}
