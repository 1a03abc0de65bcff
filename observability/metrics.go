// Package observability exposes prometheus collectors for the RPC engine.
// Collectors work unregistered; Register hooks them into a registry when a
// process wants to scrape them.
package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	framesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "xmm7360",
		Subsystem: "rpc",
		Name:      "frames_sent_total",
		Help:      "Frames written to the modem, by kind.",
	}, []string{"kind"})

	bytesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "xmm7360",
		Subsystem: "rpc",
		Name:      "bytes_sent_total",
		Help:      "Wire bytes written to the modem.",
	})

	framesReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "xmm7360",
		Subsystem: "rpc",
		Name:      "frames_received_total",
		Help:      "Frames read from the modem, by kind.",
	}, []string{"kind"})

	bytesReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "xmm7360",
		Subsystem: "rpc",
		Name:      "bytes_received_total",
		Help:      "Wire bytes read from the modem.",
	})

	unknownTransactions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "xmm7360",
		Subsystem: "rpc",
		Name:      "unknown_transactions_total",
		Help:      "Transacted frames that matched no pending call.",
	})

	framingAnomalies = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "xmm7360",
		Subsystem: "rpc",
		Name:      "framing_anomalies_total",
		Help:      "Frames dropped as malformed or with disagreeing length fields.",
	})

	pendingTransactions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "xmm7360",
		Subsystem: "rpc",
		Name:      "pending_transactions",
		Help:      "Transactions awaiting their completion frame.",
	})
)

var registerOnce sync.Once

// Register adds all collectors to r. Only the first call registers.
func Register(r prometheus.Registerer) {
	registerOnce.Do(func() {
		r.MustRegister(
			framesSent,
			bytesSent,
			framesReceived,
			bytesReceived,
			unknownTransactions,
			framingAnomalies,
			pendingTransactions,
		)
	})
}

func RecordFrameSent(kind string, bytes int) {
	framesSent.WithLabelValues(kind).Inc()
	bytesSent.Add(float64(bytes))
}

func RecordFrameReceived(kind string, bytes int) {
	framesReceived.WithLabelValues(kind).Inc()
	bytesReceived.Add(float64(bytes))
}

func RecordUnknownTransaction() {
	unknownTransactions.Inc()
}

func RecordFramingAnomaly() {
	framingAnomalies.Inc()
}

func SetPendingTransactions(n int) {
	pendingTransactions.Set(float64(n))
}
