package melodex

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    similarCounter  prometheus.Counter
//	    similarHistogram prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordSimilar(k int, duration time.Duration, err error) {
//	    p.similarCounter.Inc()
//	    // ... record error state, duration, etc.
//	}
type MetricsCollector interface {
	// RecordRegister is called after each batch registration.
	// count is the number of files attempted, failed is the number that
	// failed, duration is the total time taken.
	RecordRegister(count, failed int, duration time.Duration)

	// RecordSimilar is called after each similarity query.
	// k is the number of neighbors requested, duration is the time taken,
	// err is nil if successful.
	RecordSimilar(k int, duration time.Duration, err error)

	// RecordSegmentScore is called after each segment scoring run.
	RecordSegmentScore(duration time.Duration, err error)

	// RecordChain is called after each chain walk. length is the number
	// of steps actually produced.
	RecordChain(length int, duration time.Duration, err error)

	// RecordSnapshot is called after each snapshot save or load.
	RecordSnapshot(duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordRegister(int, int, time.Duration)  {}
func (NoopMetricsCollector) RecordSimilar(int, time.Duration, error) {}
func (NoopMetricsCollector) RecordSegmentScore(time.Duration, error) {}
func (NoopMetricsCollector) RecordChain(int, time.Duration, error)   {}
func (NoopMetricsCollector) RecordSnapshot(time.Duration, error)     {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	RegisterBatches    atomic.Int64
	RegisterFiles      atomic.Int64
	RegisterFailed     atomic.Int64
	SimilarCount       atomic.Int64
	SimilarErrors      atomic.Int64
	SimilarTotalNanos  atomic.Int64
	SegmentScoreCount  atomic.Int64
	SegmentScoreErrors atomic.Int64
	ChainCount         atomic.Int64
	ChainErrors        atomic.Int64
	ChainSteps         atomic.Int64
	SnapshotCount      atomic.Int64
	SnapshotErrors     atomic.Int64
}

// RecordRegister implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRegister(count, failed int, duration time.Duration) {
	b.RegisterBatches.Add(1)
	b.RegisterFiles.Add(int64(count))
	b.RegisterFailed.Add(int64(failed))
}

// RecordSimilar implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSimilar(k int, duration time.Duration, err error) {
	b.SimilarCount.Add(1)
	b.SimilarTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.SimilarErrors.Add(1)
	}
}

// RecordSegmentScore implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSegmentScore(duration time.Duration, err error) {
	b.SegmentScoreCount.Add(1)
	if err != nil {
		b.SegmentScoreErrors.Add(1)
	}
}

// RecordChain implements MetricsCollector.
func (b *BasicMetricsCollector) RecordChain(length int, duration time.Duration, err error) {
	b.ChainCount.Add(1)
	b.ChainSteps.Add(int64(length))
	if err != nil {
		b.ChainErrors.Add(1)
	}
}

// RecordSnapshot implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSnapshot(duration time.Duration, err error) {
	b.SnapshotCount.Add(1)
	if err != nil {
		b.SnapshotErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		RegisterBatches:    b.RegisterBatches.Load(),
		RegisterFiles:      b.RegisterFiles.Load(),
		RegisterFailed:     b.RegisterFailed.Load(),
		SimilarCount:       b.SimilarCount.Load(),
		SimilarErrors:      b.SimilarErrors.Load(),
		SimilarAvgNanos:    b.getAvgSimilarNanos(),
		SegmentScoreCount:  b.SegmentScoreCount.Load(),
		SegmentScoreErrors: b.SegmentScoreErrors.Load(),
		ChainCount:         b.ChainCount.Load(),
		ChainErrors:        b.ChainErrors.Load(),
		ChainSteps:         b.ChainSteps.Load(),
		SnapshotCount:      b.SnapshotCount.Load(),
		SnapshotErrors:     b.SnapshotErrors.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgSimilarNanos() int64 {
	count := b.SimilarCount.Load()
	if count == 0 {
		return 0
	}
	return b.SimilarTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	RegisterBatches    int64
	RegisterFiles      int64
	RegisterFailed     int64
	SimilarCount       int64
	SimilarErrors      int64
	SimilarAvgNanos    int64
	SegmentScoreCount  int64
	SegmentScoreErrors int64
	ChainCount         int64
	ChainErrors        int64
	ChainSteps         int64
	SnapshotCount      int64
	SnapshotErrors     int64
}
