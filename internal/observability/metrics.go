package observability

import (
	"sync"
	"time"
)

// RouteSnapshot aggregates the calls of one HTTP route or RPC method.
type RouteSnapshot struct {
	Count         int64   `json:"count"`
	Errors        int64   `json:"errors"`
	InFlight      int64   `json:"in_flight"`
	AvgLatencyMs  float64 `json:"avg_latency_ms"`
	MaxLatencyMs  float64 `json:"max_latency_ms"`
	LastLatencyMs float64 `json:"last_latency_ms"`
}

// WorkflowSnapshot aggregates finished runs of one workflow.
type WorkflowSnapshot struct {
	Runs                 map[string]int64 `json:"runs"`
	CompensationFailures int64            `json:"compensation_failures"`
	AvgLatencyMs         float64          `json:"avg_latency_ms"`
}

// WebhookSnapshot counts processed payment notifications by outcome.
type WebhookSnapshot struct {
	Received int64 `json:"received"`
	Applied  int64 `json:"applied"`
	Skipped  int64 `json:"skipped"`
	Failed   int64 `json:"failed"`
}

type Snapshot struct {
	UptimeSec       int64                       `json:"uptime_sec"`
	TotalRequests   int64                       `json:"total_requests"`
	TotalErrors     int64                       `json:"total_errors"`
	InFlight        int64                       `json:"in_flight"`
	RateLimitWaits  int64                       `json:"rate_limit_waits"`
	RateLimitWaitMs int64                       `json:"rate_limit_wait_ms"`
	Lifecycle       *LifecycleSnapshot          `json:"lifecycle,omitempty"`
	Routes          map[string]RouteSnapshot    `json:"routes"`
	Workflows       map[string]WorkflowSnapshot `json:"workflows"`
	Webhooks        WebhookSnapshot             `json:"webhooks"`
}

type routeStats struct {
	count        int64
	errors       int64
	inFlight     int64
	totalLatency time.Duration
	maxLatency   time.Duration
	lastLatency  time.Duration
}

type workflowStats struct {
	runs                 map[string]int64
	compensationFailures int64
	totalLatency         time.Duration
	finished             int64
}

type lifecycleStats struct {
	shutdownAt time.Time
	inflight   int64
}

type LifecycleSnapshot struct {
	ShutdownAt         time.Time `json:"shutdown_at"`
	InFlightAtShutdown int64     `json:"inflight_at_shutdown"`
}

// Metrics is an in-process metrics registry exposed as JSON. All methods are
// safe on a nil receiver.
type Metrics struct {
	mu             sync.Mutex
	start          time.Time
	routes         map[string]*routeStats
	workflows      map[string]*workflowStats
	webhooks       WebhookSnapshot
	rateLimitWaits int64
	rateLimitWait  time.Duration
	lifecycle      lifecycleStats
}

// CallSpan measures one in-flight call.
type CallSpan struct {
	metrics *Metrics
	route   string
	start   time.Time
}

func NewMetrics() *Metrics {
	return &Metrics{
		start:     time.Now(),
		routes:    make(map[string]*routeStats),
		workflows: make(map[string]*workflowStats),
	}
}

func (m *Metrics) Start(route string) *CallSpan {
	if m == nil {
		return &CallSpan{}
	}
	m.mu.Lock()
	m.ensureRoute(route).inFlight++
	m.mu.Unlock()
	return &CallSpan{
		metrics: m,
		route:   route,
		start:   time.Now(),
	}
}

func (s *CallSpan) End(err error) {
	if s == nil || s.metrics == nil {
		return
	}
	s.metrics.finish(s.route, time.Since(s.start), err != nil)
}

// RecordWorkflow counts a finished workflow run by final status.
func (m *Metrics) RecordWorkflow(workflow, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := m.ensureWorkflow(workflow)
	stats.runs[status]++
	stats.finished++
	stats.totalLatency += elapsed
}

func (m *Metrics) RecordCompensationFailure(workflow, step string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureWorkflow(workflow).compensationFailures++
}

// Webhook outcomes.
const (
	WebhookApplied = "applied"
	WebhookSkipped = "skipped"
	WebhookFailed  = "failed"
)

// RecordWebhook counts a received notification and its outcome.
func (m *Metrics) RecordWebhook(outcome string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.webhooks.Received++
	switch outcome {
	case WebhookApplied:
		m.webhooks.Applied++
	case WebhookSkipped:
		m.webhooks.Skipped++
	case WebhookFailed:
		m.webhooks.Failed++
	}
}

func (m *Metrics) AddRateLimitWait(d time.Duration) {
	if m == nil || d <= 0 {
		return
	}
	m.mu.Lock()
	m.rateLimitWaits++
	m.rateLimitWait += d
	m.mu.Unlock()
}

func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		UptimeSec:       int64(time.Since(m.start).Seconds()),
		Routes:          make(map[string]RouteSnapshot, len(m.routes)),
		Workflows:       make(map[string]WorkflowSnapshot, len(m.workflows)),
		Webhooks:        m.webhooks,
		RateLimitWaits:  m.rateLimitWaits,
		RateLimitWaitMs: int64(m.rateLimitWait / time.Millisecond),
	}

	for route, stats := range m.routes {
		avg := 0.0
		if stats.count > 0 {
			avg = float64(stats.totalLatency.Milliseconds()) / float64(stats.count)
		}
		snap.Routes[route] = RouteSnapshot{
			Count:         stats.count,
			Errors:        stats.errors,
			InFlight:      stats.inFlight,
			AvgLatencyMs:  avg,
			MaxLatencyMs:  float64(stats.maxLatency.Milliseconds()),
			LastLatencyMs: float64(stats.lastLatency.Milliseconds()),
		}
		snap.TotalRequests += stats.count
		snap.TotalErrors += stats.errors
		snap.InFlight += stats.inFlight
	}

	for name, stats := range m.workflows {
		runs := make(map[string]int64, len(stats.runs))
		for status, n := range stats.runs {
			runs[status] = n
		}
		avg := 0.0
		if stats.finished > 0 {
			avg = float64(stats.totalLatency.Milliseconds()) / float64(stats.finished)
		}
		snap.Workflows[name] = WorkflowSnapshot{
			Runs:                 runs,
			CompensationFailures: stats.compensationFailures,
			AvgLatencyMs:         avg,
		}
	}

	if !m.lifecycle.shutdownAt.IsZero() {
		snap.Lifecycle = &LifecycleSnapshot{
			ShutdownAt:         m.lifecycle.shutdownAt,
			InFlightAtShutdown: m.lifecycle.inflight,
		}
	}

	return snap
}

// InFlight reports the calls currently being served.
func (m *Metrics) InFlight() int64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, stats := range m.routes {
		n += stats.inFlight
	}
	return n
}

func (m *Metrics) ensureRoute(route string) *routeStats {
	stats, ok := m.routes[route]
	if !ok {
		stats = &routeStats{}
		m.routes[route] = stats
	}
	return stats
}

func (m *Metrics) ensureWorkflow(workflow string) *workflowStats {
	stats, ok := m.workflows[workflow]
	if !ok {
		stats = &workflowStats{runs: make(map[string]int64)}
		m.workflows[workflow] = stats
	}
	return stats
}

func (m *Metrics) finish(route string, dur time.Duration, failed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := m.ensureRoute(route)
	stats.inFlight--
	stats.count++
	if failed {
		stats.errors++
	}
	stats.totalLatency += dur
	if dur > stats.maxLatency {
		stats.maxLatency = dur
	}
	stats.lastLatency = dur
}

func (m *Metrics) MarkShutdown(inflight int64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.lifecycle.shutdownAt = time.Now()
	m.lifecycle.inflight = inflight
	m.mu.Unlock()
}
