// Package metrics provides a small embedded time-series store for gateway
// runtime gauges and counters backed by tstorage.
package metrics

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/nakabonne/tstorage"
)

var (
	storage  tstorage.Storage
	initOnce sync.Once
	initErr  error

	countersMux sync.Mutex
	counters    = make(map[string]int64)
)

// InitMetrics opens the metrics storage under workdir/metrics.
func InitMetrics(workdir string) error {
	initOnce.Do(func() {
		storage, initErr = tstorage.NewStorage(
			tstorage.WithDataPath(filepath.Join(workdir, "metrics")),
			tstorage.WithTimestampPrecision(tstorage.Seconds),
			tstorage.WithRetention(7*24*time.Hour),
		)
	})
	return initErr
}

// SetGauge records the current value for a gauge metric.
func SetGauge(name string, value int64) {
	if storage == nil {
		return
	}
	_ = storage.InsertRows([]tstorage.Row{
		{
			Metric:    name,
			DataPoint: tstorage.DataPoint{Timestamp: time.Now().Unix(), Value: float64(value)},
		},
	})
}

// IncrCounter increments a named counter and records the running total.
func IncrCounter(name string, delta int64) {
	countersMux.Lock()
	counters[name] += delta
	total := counters[name]
	countersMux.Unlock()
	SetGauge(name, total)
}

// CounterValue returns the running total for a counter in this process.
func CounterValue(name string) int64 {
	countersMux.Lock()
	defer countersMux.Unlock()
	return counters[name]
}

// Select returns datapoints for a metric within [start, end].
func Select(name string, start, end int64) ([]*tstorage.DataPoint, error) {
	if storage == nil {
		return nil, nil
	}
	points, err := storage.Select(name, nil, start, end)
	if err != nil {
		if err == tstorage.ErrNoDataPoints {
			return nil, nil
		}
		return nil, err
	}
	return points, nil
}

// Close flushes and closes the metrics storage.
func Close() error {
	if storage == nil {
		return nil
	}
	return storage.Close()
}
