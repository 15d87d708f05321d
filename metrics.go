package ftlmngt

import (
	"sync/atomic"
	"time"
)

// LatencyBuckets defines the latency histogram buckets in nanoseconds.
// Buckets cover from 1us to 10s with logarithmic spacing.
var LatencyBuckets = []uint64{
	1_000,          // 1us
	10_000,         // 10us
	100_000,        // 100us
	1_000_000,      // 1ms
	10_000_000,     // 10ms
	100_000_000,    // 100ms
	1_000_000_000,  // 1s
	10_000_000_000, // 10s
}

const numLatencyBuckets = 8

// Metrics tracks management-process performance and operational
// statistics for an FTL device.
type Metrics struct {
	// Process/step counters.
	ProcessesRun       atomic.Uint64
	ProcessesFailed    atomic.Uint64
	ProcessesRolledBack atomic.Uint64
	StepsRun           atomic.Uint64
	StepsFailed        atomic.Uint64
	StepsSkipped       atomic.Uint64
	ContinuationsTotal atomic.Uint64 // total continue_step re-entries observed

	// Collaborator call counters.
	CollaboratorCalls  atomic.Uint64
	CollaboratorErrors atomic.Uint64

	// Performance tracking.
	TotalStepLatencyNs atomic.Uint64
	StepCount          atomic.Uint64

	// Latency histogram buckets (cumulative counts), keyed on step duration.
	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	// Device lifecycle.
	StartTime atomic.Int64 // UnixNano
	StopTime  atomic.Int64 // UnixNano
}

// NewMetrics creates a new metrics instance.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordProcessComplete records the completion of a top-level or nested
// management process.
func (m *Metrics) RecordProcessComplete(status int, rolledBack bool, _ time.Duration) {
	m.ProcessesRun.Add(1)
	if status != 0 {
		m.ProcessesFailed.Add(1)
	}
	if rolledBack {
		m.ProcessesRolledBack.Add(1)
	}
}

// RecordStepComplete records the completion of a single step, forward or
// rollback.
func (m *Metrics) RecordStepComplete(status int, skipped bool, dur time.Duration) {
	m.StepsRun.Add(1)
	if status != 0 {
		m.StepsFailed.Add(1)
	}
	if skipped {
		m.StepsSkipped.Add(1)
	}
	m.recordLatency(uint64(dur.Nanoseconds()))
}

// RecordContinuation records a continue_step re-entry.
func (m *Metrics) RecordContinuation() {
	m.ContinuationsTotal.Add(1)
}

// RecordCollaboratorCall records a call into a subsystem collaborator.
func (m *Metrics) RecordCollaboratorCall(err error) {
	m.CollaboratorCalls.Add(1)
	if err != nil {
		m.CollaboratorErrors.Add(1)
	}
}

// recordLatency records step latency and updates the histogram.
func (m *Metrics) recordLatency(latencyNs uint64) {
	m.TotalStepLatencyNs.Add(latencyNs)
	m.StepCount.Add(1)

	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// Stop marks the device as stopped.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time snapshot of Metrics.
type MetricsSnapshot struct {
	ProcessesRun        uint64
	ProcessesFailed     uint64
	ProcessesRolledBack uint64
	StepsRun            uint64
	StepsFailed         uint64
	StepsSkipped        uint64
	ContinuationsTotal  uint64

	CollaboratorCalls  uint64
	CollaboratorErrors uint64

	AvgStepLatencyNs uint64
	UptimeNs         uint64

	LatencyP50Ns  uint64
	LatencyP99Ns  uint64
	LatencyP999Ns uint64

	LatencyHistogram [numLatencyBuckets]uint64

	StepFailureRate float64 // percentage of steps that failed
}

// Snapshot creates a point-in-time snapshot of metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		ProcessesRun:        m.ProcessesRun.Load(),
		ProcessesFailed:     m.ProcessesFailed.Load(),
		ProcessesRolledBack: m.ProcessesRolledBack.Load(),
		StepsRun:            m.StepsRun.Load(),
		StepsFailed:         m.StepsFailed.Load(),
		StepsSkipped:        m.StepsSkipped.Load(),
		ContinuationsTotal:  m.ContinuationsTotal.Load(),
		CollaboratorCalls:   m.CollaboratorCalls.Load(),
		CollaboratorErrors:  m.CollaboratorErrors.Load(),
	}

	totalLatencyNs := m.TotalStepLatencyNs.Load()
	stepCount := m.StepCount.Load()
	if stepCount > 0 {
		snap.AvgStepLatencyNs = totalLatencyNs / stepCount
	}

	startTime := m.StartTime.Load()
	stopTime := m.StopTime.Load()
	if stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}

	if snap.StepsRun > 0 {
		snap.StepFailureRate = float64(snap.StepsFailed) / float64(snap.StepsRun) * 100.0
	}

	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyBuckets[i].Load()
	}

	if stepCount > 0 {
		snap.LatencyP50Ns = m.calculatePercentile(0.50)
		snap.LatencyP99Ns = m.calculatePercentile(0.99)
		snap.LatencyP999Ns = m.calculatePercentile(0.999)
	}

	return snap
}

// calculatePercentile estimates the latency at the given percentile
// (0.0-1.0) using linear interpolation between histogram buckets.
func (m *Metrics) calculatePercentile(percentile float64) uint64 {
	totalSteps := m.StepCount.Load()
	if totalSteps == 0 {
		return 0
	}

	targetCount := uint64(float64(totalSteps) * percentile)

	prevBucket := uint64(0)
	for i, bucket := range LatencyBuckets {
		bucketCount := m.LatencyBuckets[i].Load()
		if bucketCount >= targetCount {
			prevCount := uint64(0)
			if i > 0 {
				prevCount = m.LatencyBuckets[i-1].Load()
			}
			if bucketCount == prevCount {
				return bucket
			}
			fraction := float64(targetCount-prevCount) / float64(bucketCount-prevCount)
			return prevBucket + uint64(fraction*float64(bucket-prevBucket))
		}
		prevBucket = bucket
	}

	return LatencyBuckets[numLatencyBuckets-1]
}

// Reset resets all metrics counters (useful for testing).
func (m *Metrics) Reset() {
	m.ProcessesRun.Store(0)
	m.ProcessesFailed.Store(0)
	m.ProcessesRolledBack.Store(0)
	m.StepsRun.Store(0)
	m.StepsFailed.Store(0)
	m.StepsSkipped.Store(0)
	m.ContinuationsTotal.Store(0)
	m.CollaboratorCalls.Store(0)
	m.CollaboratorErrors.Store(0)
	m.TotalStepLatencyNs.Store(0)
	m.StepCount.Store(0)
	for i := 0; i < numLatencyBuckets; i++ {
		m.LatencyBuckets[i].Store(0)
	}
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}

// Observer allows pluggable metrics collection without the engine's hot
// path depending on a concrete metrics implementation.
type Observer interface {
	ObserveProcessComplete(processName string, status int, rolledBack bool, dur time.Duration)
	ObserveStepComplete(processName, stepName string, status int, skipped bool, dur time.Duration)
	ObserveContinuation(processName, stepName string)
	ObserveCollaboratorCall(name string, dur time.Duration, err error)
}

// NoOpObserver is a no-op implementation of Observer.
type NoOpObserver struct{}

func (NoOpObserver) ObserveProcessComplete(string, int, bool, time.Duration)    {}
func (NoOpObserver) ObserveStepComplete(string, string, int, bool, time.Duration) {}
func (NoOpObserver) ObserveContinuation(string, string)                         {}
func (NoOpObserver) ObserveCollaboratorCall(string, time.Duration, error)       {}

// MetricsObserver implements Observer using the built-in Metrics.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an observer that records to the given metrics.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveProcessComplete(_ string, status int, rolledBack bool, dur time.Duration) {
	o.metrics.RecordProcessComplete(status, rolledBack, dur)
}

func (o *MetricsObserver) ObserveStepComplete(_, _ string, status int, skipped bool, dur time.Duration) {
	o.metrics.RecordStepComplete(status, skipped, dur)
}

func (o *MetricsObserver) ObserveContinuation(_, _ string) {
	o.metrics.RecordContinuation()
}

func (o *MetricsObserver) ObserveCollaboratorCall(_ string, _ time.Duration, err error) {
	o.metrics.RecordCollaboratorCall(err)
}

// Compile-time interface check.
var _ Observer = (*MetricsObserver)(nil)
