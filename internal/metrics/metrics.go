package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Counter names used across the pipeline.
const (
	CounterWebhooksReceived    = "webhooks_received"
	CounterWebhooksDuplicate   = "webhooks_duplicate"
	CounterTransitionConflicts = "transition_conflicts"
	CounterPaymentsCompleted   = "payments_completed"
	CounterPaymentsFailed      = "payments_failed"
	CounterInvoicesGenerated   = "invoices_generated"
	CounterCertificateFailures = "certificate_failures"
)

// timerData aggregates one timer's samples.
type timerData struct {
	Count       int64   `json:"count"`
	TotalTimeMs int64   `json:"total_time_ms"`
	MinTimeMs   int64   `json:"min_time_ms"`
	MaxTimeMs   int64   `json:"max_time_ms"`
	AvgTimeMs   float64 `json:"average_time_ms"`
}

// Metrics is an in-process metrics collector for the pipeline: counters for
// webhook/settlement activity, timers for settlement latency, and component
// health checks.
type Metrics struct {
	mu           sync.RWMutex
	counters     map[string]*int64
	gauges       map[string]*int64
	timers       map[string]*timerData
	healthChecks map[string]bool
	startTime    time.Time
}

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	return &Metrics{
		counters:     make(map[string]*int64),
		gauges:       make(map[string]*int64),
		timers:       make(map[string]*timerData),
		healthChecks: make(map[string]bool),
		startTime:    time.Now(),
	}
}

// IncrementCounter increments a counter by 1
func (m *Metrics) IncrementCounter(name string) {
	m.IncrementCounterBy(name, 1)
}

// IncrementCounterBy increments a counter by the specified value
func (m *Metrics) IncrementCounterBy(name string, value int64) {
	m.mu.RLock()
	counter, exists := m.counters[name]
	m.mu.RUnlock()

	if !exists {
		m.mu.Lock()
		if counter, exists = m.counters[name]; !exists {
			var c int64
			counter = &c
			m.counters[name] = counter
		}
		m.mu.Unlock()
	}

	atomic.AddInt64(counter, value)
}

// SetGauge sets a gauge to a specific value
func (m *Metrics) SetGauge(name string, value int64) {
	m.mu.RLock()
	gauge, exists := m.gauges[name]
	m.mu.RUnlock()

	if !exists {
		m.mu.Lock()
		if gauge, exists = m.gauges[name]; !exists {
			var g int64
			gauge = &g
			m.gauges[name] = gauge
		}
		m.mu.Unlock()
	}

	atomic.StoreInt64(gauge, value)
}

// RecordTimer records a timing measurement
func (m *Metrics) RecordTimer(name string, duration time.Duration) {
	ms := duration.Milliseconds()

	m.mu.Lock()
	defer m.mu.Unlock()

	timer, exists := m.timers[name]
	if !exists {
		timer = &timerData{MinTimeMs: ms, MaxTimeMs: ms}
		m.timers[name] = timer
	}

	timer.Count++
	timer.TotalTimeMs += ms
	if ms < timer.MinTimeMs {
		timer.MinTimeMs = ms
	}
	if ms > timer.MaxTimeMs {
		timer.MaxTimeMs = ms
	}
	timer.AvgTimeMs = float64(timer.TotalTimeMs) / float64(timer.Count)
}

// SetHealthCheck records a component's health status
func (m *Metrics) SetHealthCheck(name string, healthy bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthChecks[name] = healthy
}

// GetHealthChecks returns a copy of all health check statuses
func (m *Metrics) GetHealthChecks() map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]bool, len(m.healthChecks))
	for k, v := range m.healthChecks {
		out[k] = v
	}
	return out
}

// GetAllMetrics returns a snapshot of everything the collector holds
func (m *Metrics) GetAllMetrics() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counters := make(map[string]int64, len(m.counters))
	for name, counter := range m.counters {
		counters[name] = atomic.LoadInt64(counter)
	}

	gauges := make(map[string]int64, len(m.gauges))
	for name, gauge := range m.gauges {
		gauges[name] = atomic.LoadInt64(gauge)
	}

	timers := make(map[string]timerData, len(m.timers))
	for name, timer := range m.timers {
		timers[name] = *timer
	}

	health := make(map[string]bool, len(m.healthChecks))
	for name, status := range m.healthChecks {
		health[name] = status
	}

	return map[string]interface{}{
		"uptime_seconds": int64(time.Since(m.startTime).Seconds()),
		"counters":       counters,
		"gauges":         gauges,
		"timers":         timers,
		"health":         health,
	}
}
