package vecgo

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
//	    searchHistogram prometheus.Histogram
//	    ioCounter       prometheus.Counter
//	}
//
//	func (p *PrometheusCollector) RecordSearch(stats Stats, duration time.Duration, err error) {
//	    p.searchHistogram.Observe(duration.Seconds())
//	    p.ioCounter.Add(float64(stats.IOs))
//	}
type MetricsCollector interface {
	// RecordOpen is called once after the index load completes.
	RecordOpen(n uint64, duration time.Duration, err error)

	// RecordSearch is called after each Search and RangeSearch call with
	// the per-query diagnostics the beam engine reports, and once per
	// BatchSearch call with zero-valued Stats. BatchSearch and
	// RangeSearch calls whose options are rejected are not recorded.
	RecordSearch(stats Stats, duration time.Duration, err error)

	// RecordClose is called once when the handle is closed.
	RecordClose(err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordOpen(uint64, time.Duration, error)   {}
func (NoopMetricsCollector) RecordSearch(Stats, time.Duration, error) {}
func (NoopMetricsCollector) RecordClose(error)                        {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	OpenCount   atomic.Int64
	OpenErrors  atomic.Int64

	SearchCount      atomic.Int64
	SearchErrors     atomic.Int64
	SearchTotalNanos atomic.Int64
	SearchTotalHops  atomic.Int64
	SearchTotalIOs   atomic.Int64
	OutOfBudgetCount atomic.Int64

	CloseCount  atomic.Int64
	CloseErrors atomic.Int64
}

// RecordOpen implements MetricsCollector.
func (b *BasicMetricsCollector) RecordOpen(n uint64, duration time.Duration, err error) {
	b.OpenCount.Add(1)
	if err != nil {
		b.OpenErrors.Add(1)
	}
}

// RecordSearch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSearch(stats Stats, duration time.Duration, err error) {
	b.SearchCount.Add(1)
	b.SearchTotalNanos.Add(duration.Nanoseconds())
	b.SearchTotalHops.Add(int64(stats.Hops))
	b.SearchTotalIOs.Add(int64(stats.IOs))

	if stats.OutOfBudget {
		b.OutOfBudgetCount.Add(1)
	}

	if err != nil {
		b.SearchErrors.Add(1)
	}
}

// RecordClose implements MetricsCollector.
func (b *BasicMetricsCollector) RecordClose(err error) {
	b.CloseCount.Add(1)
	if err != nil {
		b.CloseErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		OpenCount:        b.OpenCount.Load(),
		OpenErrors:       b.OpenErrors.Load(),
		SearchCount:      b.SearchCount.Load(),
		SearchErrors:     b.SearchErrors.Load(),
		SearchAvgNanos:   b.getAvgSearchNanos(),
		SearchAvgHops:    b.getAvgSearchHops(),
		SearchAvgIOs:     b.getAvgSearchIOs(),
		OutOfBudgetCount: b.OutOfBudgetCount.Load(),
		CloseCount:       b.CloseCount.Load(),
		CloseErrors:      b.CloseErrors.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgSearchNanos() int64 {
	count := b.SearchCount.Load()
	if count == 0 {
		return 0
	}
	return b.SearchTotalNanos.Load() / count
}

func (b *BasicMetricsCollector) getAvgSearchHops() int64 {
	count := b.SearchCount.Load()
	if count == 0 {
		return 0
	}
	return b.SearchTotalHops.Load() / count
}

func (b *BasicMetricsCollector) getAvgSearchIOs() int64 {
	count := b.SearchCount.Load()
	if count == 0 {
		return 0
	}
	return b.SearchTotalIOs.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	OpenCount        int64
	OpenErrors       int64
	SearchCount      int64
	SearchErrors     int64
	SearchAvgNanos   int64
	SearchAvgHops    int64
	SearchAvgIOs     int64
	OutOfBudgetCount int64
	CloseCount       int64
	CloseErrors      int64
}
