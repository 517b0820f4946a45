/*
 * SPDX-License-Identifier: Apache-2.0
 */

// Package metrics exposes Prometheus collectors for the trace-to-pack
// pipeline: bytes written per pack, blocks emitted by the reducer,
// ordering-pass sort duration, and trace record counts by kind.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collectors bundles every metric the pipeline reports. Construct one
// with NewCollectors and register it with a prometheus.Registerer.
type Collectors struct {
	PackBytesWritten    prometheus.Counter
	BlocksEmitted       prometheus.Counter
	BlocksDropped       prometheus.Counter
	OrderingSortSeconds prometheus.Histogram
	TraceRecordsByKind  *prometheus.CounterVec
}

// NewCollectors returns an unregistered Collectors set.
func NewCollectors() *Collectors {
	return &Collectors{
		PackBytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bootwarm",
			Subsystem: "pack",
			Name:      "bytes_written_total",
			Help:      "Total bytes written across all pack files in the most recent run.",
		}),
		BlocksEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bootwarm",
			Subsystem: "reducer",
			Name:      "blocks_emitted_total",
			Help:      "Blocks the reducer emitted after intersecting candidates against the interval index.",
		}),
		BlocksDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bootwarm",
			Subsystem: "reducer",
			Name:      "blocks_dropped_total",
			Help:      "Candidate blocks the reducer dropped because nothing in the interval index overlapped them.",
		}),
		OrderingSortSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "bootwarm",
			Subsystem: "ordering",
			Name:      "sort_duration_seconds",
			Help:      "Wall time spent in the ordering pass per device.",
			Buckets:   prometheus.DefBuckets,
		}),
		TraceRecordsByKind: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bootwarm",
			Subsystem: "ingester",
			Name:      "trace_records_total",
			Help:      "Trace records the ingester observed, by tracepoint kind.",
		}, []string{"kind"}),
	}
}

// MustRegister registers every collector with reg, panicking on a
// duplicate-registration error the way the teacher's own startup code
// treats metric registration failures as unrecoverable.
func (c *Collectors) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		c.PackBytesWritten,
		c.BlocksEmitted,
		c.BlocksDropped,
		c.OrderingSortSeconds,
		c.TraceRecordsByKind,
	)
}
