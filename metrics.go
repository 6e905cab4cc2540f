package segdag

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
type MetricsCollector interface {
	// RecordAddHeads is called after each add-heads operation.
	// assigned is the number of newly assigned vertexes.
	RecordAddHeads(assigned int, duration time.Duration, err error)

	// RecordFlush is called after each flush operation.
	RecordFlush(duration time.Duration, err error)

	// RecordRemoteRoundTrip is called after each protocol round trip.
	// requested is the number of names or paths in the request.
	RecordRemoteRoundTrip(requested int, duration time.Duration, err error)

	// RecordSegmentsBuilt is called when the segment build inserts new
	// segments.
	RecordSegmentsBuilt(count int)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordAddHeads(int, time.Duration, error)        {}
func (NoopMetricsCollector) RecordFlush(time.Duration, error)                {}
func (NoopMetricsCollector) RecordRemoteRoundTrip(int, time.Duration, error) {}
func (NoopMetricsCollector) RecordSegmentsBuilt(int)                         {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	AddHeadsCount      atomic.Int64
	AddHeadsErrors     atomic.Int64
	AddHeadsAssigned   atomic.Int64
	AddHeadsTotalNanos atomic.Int64
	FlushCount         atomic.Int64
	FlushErrors        atomic.Int64
	FlushTotalNanos    atomic.Int64
	RemoteCount        atomic.Int64
	RemoteErrors       atomic.Int64
	RemoteRequested    atomic.Int64
	RemoteTotalNanos   atomic.Int64
	SegmentsBuilt      atomic.Int64
}

// RecordAddHeads implements MetricsCollector.
func (b *BasicMetricsCollector) RecordAddHeads(assigned int, duration time.Duration, err error) {
	b.AddHeadsCount.Add(1)
	b.AddHeadsAssigned.Add(int64(assigned))
	b.AddHeadsTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.AddHeadsErrors.Add(1)
	}
}

// RecordFlush implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFlush(duration time.Duration, err error) {
	b.FlushCount.Add(1)
	b.FlushTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.FlushErrors.Add(1)
	}
}

// RecordRemoteRoundTrip implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRemoteRoundTrip(requested int, duration time.Duration, err error) {
	b.RemoteCount.Add(1)
	b.RemoteRequested.Add(int64(requested))
	b.RemoteTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.RemoteErrors.Add(1)
	}
}

// RecordSegmentsBuilt implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSegmentsBuilt(count int) {
	b.SegmentsBuilt.Add(int64(count))
}

// MetricsStats is a point-in-time snapshot of a BasicMetricsCollector.
type MetricsStats struct {
	AddHeadsCount    int64
	AddHeadsAssigned int64
	FlushCount       int64
	RemoteCount      int64
	RemoteRequested  int64
	SegmentsBuilt    int64
}

// GetStats returns a consistent-enough snapshot of the counters.
func (b *BasicMetricsCollector) GetStats() MetricsStats {
	return MetricsStats{
		AddHeadsCount:    b.AddHeadsCount.Load(),
		AddHeadsAssigned: b.AddHeadsAssigned.Load(),
		FlushCount:       b.FlushCount.Load(),
		RemoteCount:      b.RemoteCount.Load(),
		RemoteRequested:  b.RemoteRequested.Load(),
		SegmentsBuilt:    b.SegmentsBuilt.Load(),
	}
}
