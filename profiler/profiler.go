// Package profiler - Runtime timing and metric collection for the detection pipeline.
package profiler

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// MetricsCollector defines the interface for collecting custom metrics.
type MetricsCollector interface {
	CollectMetrics() map[string]float64
}

// Profiler tracks operation timings and custom metrics and can emit periodic reports.
//
// A nil *Profiler is valid: every method is a no-op and StartOperation still measures the
// elapsed time for the caller.
type Profiler struct {
	// Configuration
	reportInterval time.Duration
	maxSamples     int
	logger         logrus.FieldLogger

	// State management
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.RWMutex
	startTime time.Time
	running   bool

	// Custom metrics
	customMetrics map[string]*MetricTracker
	collectors    []MetricsCollector

	// Performance tracking
	operationTimes map[string]*TimeTracker
}

// MetricTracker tracks statistics for a custom metric over a sliding window.
type MetricTracker struct {
	values []float64
	sum    float64
	min    float64
	max    float64
	count  int64
}

// TimeTracker tracks operation timing statistics over a sliding window.
type TimeTracker struct {
	durations []time.Duration
	totalTime time.Duration
	minTime   time.Duration
	maxTime   time.Duration
	count     int64
}

// MetricStats is a snapshot of a MetricTracker.
type MetricStats struct {
	Name    string  `json:"name"`
	Avg     float64 `json:"avg"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Samples int     `json:"samples"`
	Count   int64   `json:"count"`
}

// OperationStats is a snapshot of a TimeTracker.
type OperationStats struct {
	Name    string        `json:"name"`
	Avg     time.Duration `json:"avg"`
	Min     time.Duration `json:"min"`
	Max     time.Duration `json:"max"`
	Last    time.Duration `json:"last"`
	Samples int           `json:"samples"`
	Count   int64         `json:"count"`
}

// Snapshot holds the state of the profiler at one point in time.
type Snapshot struct {
	Uptime     time.Duration    `json:"uptime"`
	Goroutines int              `json:"goroutines"`
	HeapAlloc  uint64           `json:"heap_alloc"`
	Metrics    []MetricStats    `json:"metrics"`
	Operations []OperationStats `json:"operations"`
}

// ProfilingOptions configures the profiler.
type ProfilingOptions struct {
	// ReportInterval specifies how often to emit status reports (default: 2s)
	ReportInterval time.Duration
	// MaxSamples specifies maximum number of samples kept per series (default: 600)
	MaxSamples int
	// Logger receives the periodic reports (default: the logrus standard logger)
	Logger logrus.FieldLogger
}

// New creates a new profiler with the specified options.
//
// Arguments:
// - opts: Configuration options for the profiler
//
// Returns:
// - A configured Profiler instance
func New(opts ProfilingOptions) *Profiler {
	if opts.ReportInterval == 0 {
		opts.ReportInterval = 2 * time.Second
	}
	if opts.MaxSamples <= 0 {
		opts.MaxSamples = 600
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Profiler{
		reportInterval: opts.ReportInterval,
		maxSamples:     opts.MaxSamples,
		logger:         opts.Logger,
		ctx:            ctx,
		cancel:         cancel,
		startTime:      time.Now(),
		customMetrics:  make(map[string]*MetricTracker),
		operationTimes: make(map[string]*TimeTracker),
	}
}

// Start begins emitting periodic reports. Calling Start on a running profiler is a no-op.
func (p *Profiler) Start() {
	if p == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return
	}
	p.running = true
	p.startTime = time.Now()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		ticker := time.NewTicker(p.reportInterval)
		defer ticker.Stop()

		for {
			select {
			case <-p.ctx.Done():
				return
			case <-ticker.C:
				p.Collect()
				p.emitStatusReport()
			}
		}
	}()
}

// Stop stops the reporting goroutine and waits for it to exit.
func (p *Profiler) Stop() {
	if p == nil {
		return
	}

	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
}

// AddMetricsCollector registers a collector that is polled before every report.
func (p *Profiler) AddMetricsCollector(collector MetricsCollector) {
	if p == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.collectors = append(p.collectors, collector)
}

// RecordMetric records a custom metric value.
//
// Arguments:
// - name: The name of the metric
// - value: The metric value to record
func (p *Profiler) RecordMetric(name string, value float64) {
	if p == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.recordMetricLocked(name, value)
}

func (p *Profiler) recordMetricLocked(name string, value float64) {
	tracker, exists := p.customMetrics[name]
	if !exists {
		tracker = &MetricTracker{
			values: make([]float64, 0, p.maxSamples),
			min:    value,
			max:    value,
		}
		p.customMetrics[name] = tracker
	}

	tracker.values = append(tracker.values, value)
	if len(tracker.values) > p.maxSamples {
		tracker.sum -= tracker.values[0]
		tracker.values = tracker.values[1:]
	}

	tracker.sum += value
	tracker.count++

	if value < tracker.min {
		tracker.min = value
	}
	if value > tracker.max {
		tracker.max = value
	}
}

// StartOperation begins timing an operation.
//
// Arguments:
// - name: The name of the operation to track
//
// Returns:
// - A function to call when the operation completes; it records and returns the duration
func (p *Profiler) StartOperation(name string) func() time.Duration {
	start := time.Now()
	return func() time.Duration {
		duration := time.Since(start)
		p.RecordOperation(name, duration)
		return duration
	}
}

// RecordOperation records the completion time of an operation.
func (p *Profiler) RecordOperation(name string, duration time.Duration) {
	if p == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	tracker, exists := p.operationTimes[name]
	if !exists {
		tracker = &TimeTracker{
			minTime: duration,
			maxTime: duration,
		}
		p.operationTimes[name] = tracker
	}

	tracker.durations = append(tracker.durations, duration)
	if len(tracker.durations) > p.maxSamples {
		tracker.totalTime -= tracker.durations[0]
		tracker.durations = tracker.durations[1:]
	}

	tracker.totalTime += duration
	tracker.count++

	if duration < tracker.minTime {
		tracker.minTime = duration
	}
	if duration > tracker.maxTime {
		tracker.maxTime = duration
	}
}

// Operation returns the statistics of a single operation.
func (p *Profiler) Operation(name string) (OperationStats, bool) {
	if p == nil {
		return OperationStats{}, false
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	tracker, ok := p.operationTimes[name]
	if !ok {
		return OperationStats{}, false
	}
	return tracker.stats(name), true
}

// Metric returns the statistics of a single custom metric.
func (p *Profiler) Metric(name string) (MetricStats, bool) {
	if p == nil {
		return MetricStats{}, false
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	tracker, ok := p.customMetrics[name]
	if !ok {
		return MetricStats{}, false
	}
	return tracker.stats(name), true
}

// Stats returns a snapshot of every tracked operation and metric, sorted by name.
func (p *Profiler) Stats() Snapshot {
	if p == nil {
		return Snapshot{}
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	p.mu.RLock()
	defer p.mu.RUnlock()

	snapshot := Snapshot{
		Uptime:     time.Since(p.startTime),
		Goroutines: runtime.NumGoroutine(),
		HeapAlloc:  mem.HeapAlloc,
		Metrics:    make([]MetricStats, 0, len(p.customMetrics)),
		Operations: make([]OperationStats, 0, len(p.operationTimes)),
	}
	for name, tracker := range p.customMetrics {
		snapshot.Metrics = append(snapshot.Metrics, tracker.stats(name))
	}
	for name, tracker := range p.operationTimes {
		snapshot.Operations = append(snapshot.Operations, tracker.stats(name))
	}
	sort.Slice(snapshot.Metrics, func(i, j int) bool {
		return snapshot.Metrics[i].Name < snapshot.Metrics[j].Name
	})
	sort.Slice(snapshot.Operations, func(i, j int) bool {
		return snapshot.Operations[i].Name < snapshot.Operations[j].Name
	})

	return snapshot
}

// Collect polls the registered collectors and records their values. Running profilers call it
// before every report.
func (p *Profiler) Collect() {
	if p == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, collector := range p.collectors {
		for name, value := range collector.CollectMetrics() {
			p.recordMetricLocked(name, value)
		}
	}
}

// emitStatusReport logs one line per tracked series.
func (p *Profiler) emitStatusReport() {
	snapshot := p.Stats()

	p.logger.WithFields(logrus.Fields{
		"uptime":     snapshot.Uptime.Truncate(time.Millisecond),
		"goroutines": snapshot.Goroutines,
		"heap":       formatBytes(snapshot.HeapAlloc),
	}).Info("profiler status")

	for _, m := range snapshot.Metrics {
		p.logger.WithFields(logrus.Fields{
			"metric":  m.Name,
			"avg":     m.Avg,
			"min":     m.Min,
			"max":     m.Max,
			"samples": m.Samples,
		}).Info("profiler metric")
	}
	for _, op := range snapshot.Operations {
		p.logger.WithFields(logrus.Fields{
			"operation": op.Name,
			"avg":       op.Avg.Truncate(time.Microsecond),
			"min":       op.Min.Truncate(time.Microsecond),
			"max":       op.Max.Truncate(time.Microsecond),
			"count":     op.Count,
		}).Info("profiler timing")
	}
}

func (t *MetricTracker) stats(name string) MetricStats {
	s := MetricStats{
		Name:    name,
		Min:     t.min,
		Max:     t.max,
		Samples: len(t.values),
		Count:   t.count,
	}
	if len(t.values) > 0 {
		s.Avg = t.sum / float64(len(t.values))
	}
	return s
}

func (t *TimeTracker) stats(name string) OperationStats {
	s := OperationStats{
		Name:    name,
		Min:     t.minTime,
		Max:     t.maxTime,
		Samples: len(t.durations),
		Count:   t.count,
	}
	if len(t.durations) > 0 {
		s.Avg = t.totalTime / time.Duration(len(t.durations))
		s.Last = t.durations[len(t.durations)-1]
	}
	return s
}

// formatBytes formats byte counts in human-readable format.
func formatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
