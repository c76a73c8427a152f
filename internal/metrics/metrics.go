// Package metrics provides Prometheus metrics for echo sessions.
package metrics

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"
)

const (
	namespace = "echoprobe"
)

// Reasons a received datagram was not accepted as the awaited reply.
const (
	DiscardMalformed  = "malformed"
	DiscardNotReply   = "not_echo_reply"
	DiscardIdentifier = "identifier"
	DiscardStaleSeq   = "stale_sequence"
)

// Metrics contains all Prometheus metrics for an echo session.
type Metrics struct {
	RequestsSent     prometheus.Counter
	RepliesReceived  prometheus.Counter
	RepliesMissed    prometheus.Counter
	PacketsDiscarded *prometheus.CounterVec
	BytesSent        prometheus.Counter
	RTT              prometheus.Histogram
	SessionErrors    *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance registered with the default
// registerer.
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry creates a new Metrics instance with a custom registry.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RequestsSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_sent_total",
			Help:      "Total number of echo requests sent",
		}),
		RepliesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replies_received_total",
			Help:      "Total number of echo replies matched to a request",
		}),
		RepliesMissed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replies_missed_total",
			Help:      "Total number of requests whose wait window expired",
		}),
		PacketsDiscarded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_discarded_total",
			Help:      "Total number of received datagrams skipped while waiting, by reason",
		}, []string{"reason"}),
		BytesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_sent_total",
			Help:      "Total ICMP bytes written",
		}),
		RTT: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rtt_seconds",
			Help:      "Round-trip time of matched echo replies",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		SessionErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_errors_total",
			Help:      "Total number of fatal session errors by operation",
		}, []string{"op"}),
	}
}

// RecordSend records an echo request of n bytes being written.
func (m *Metrics) RecordSend(n int) {
	m.RequestsSent.Inc()
	m.BytesSent.Add(float64(n))
}

// RecordReply records a matched reply with its round-trip time.
func (m *Metrics) RecordReply(rttSeconds float64) {
	m.RepliesReceived.Inc()
	m.RTT.Observe(rttSeconds)
}

// RecordMiss records a wait window expiring without a reply.
func (m *Metrics) RecordMiss() {
	m.RepliesMissed.Inc()
}

// RecordDiscard records a datagram skipped while waiting.
func (m *Metrics) RecordDiscard(reason string) {
	m.PacketsDiscarded.WithLabelValues(reason).Inc()
}

// RecordError records a fatal session error.
func (m *Metrics) RecordError(op string) {
	m.SessionErrors.WithLabelValues(op).Inc()
}

// WriteText writes every metric family gathered from g in the Prometheus
// text exposition format.
func WriteText(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// WriteTextFile writes the text exposition to path atomically, so a
// node_exporter textfile collector never sees a partial file.
func WriteTextFile(path string, g prometheus.Gatherer) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("create metrics file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := WriteText(tmp, g); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close metrics file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename metrics file: %w", err)
	}
	return nil
}
