// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DatagramsTotal counts datagrams handed to the IPv4 processor by outcome
	DatagramsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ipingest_datagrams_total",
			Help: "Total number of datagrams processed, by result",
		},
		[]string{"result"},
	)

	// FragmentsTotal counts fragment events (stored, evicted)
	FragmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ipingest_fragments_total",
			Help: "Total number of IP fragment events, by action",
		},
		[]string{"action"},
	)

	// ReassembledTotal counts datagrams completed by fragment reassembly
	ReassembledTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ipingest_reassembled_total",
			Help: "Total number of datagrams rebuilt from fragments",
		},
	)

	// ReassemblyActive tracks IP identifiers with a reassembly in progress
	ReassemblyActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ipingest_reassembly_active",
			Help: "Number of datagrams currently being reassembled",
		},
	)

	// ContextsActive tracks live flow contexts in the context store
	ContextsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ipingest_contexts_active",
			Help: "Number of live flow contexts",
		},
	)

	// DispatchTotal counts datagrams handed to transport decoders
	DispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ipingest_dispatch_total",
			Help: "Total number of datagrams dispatched to a transport decoder",
		},
		[]string{"protocol"},
	)
)

// Datagram results used as DatagramsTotal label values
const (
	ResultDispatched = "dispatched"
	ResultFragment   = "fragment"
	ResultError      = "error"
)

// Fragment actions used as FragmentsTotal label values
const (
	FragmentStored  = "stored"
	FragmentEvicted = "evicted"
)

// FramesSkippedTotal counts captured frames that carried no IP datagram
var FramesSkippedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "ipingest_frames_skipped_total",
		Help: "Total number of captured frames skipped for carrying no IP datagram",
	},
)
