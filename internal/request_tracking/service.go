// Package request_tracking records one entry per proxied request into a
// bounded in-memory ring, off the hot path through a small worker pool.
// The admin listing and the Prometheus counters read from here.
package request_tracking

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eternisai/cursor-bridge/internal/logger"
	"github.com/prometheus/client_golang/prometheus"
)

// RequestInfo is what the pipeline reports about one request.
type RequestInfo struct {
	Surface    string // "openai" or "anthropic"
	Model      string
	Alias      string
	Stream     bool
	Status     string // "ok", "error", "canceled"
	ErrorKind  string
	Latency    time.Duration
	FirstByte  time.Duration
	Timestamp  time.Time
	TokenUsage *TokenUsage
}

type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Metrics are registered once and shared by all services.
type Metrics struct {
	Total  *prometheus.CounterVec
	Errors *prometheus.CounterVec
	Active prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Total: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_requests_total",
			Help: "Proxied requests by surface and model.",
		}, []string{"surface", "model"}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_request_errors_total",
			Help: "Failed requests by surface and error kind.",
		}, []string{"surface", "kind"}),
		Active: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bridge_requests_active",
			Help: "Requests currently in flight.",
		}),
	}
	reg.MustRegister(m.Total, m.Errors, m.Active)
	return m
}

type logRequest struct {
	info RequestInfo
}

// Service is the async recorder.
type Service struct {
	logChan    chan logRequest
	workerPool sync.WaitGroup
	shutdown   chan struct{}
	closed     atomic.Bool
	logger     *logger.Logger
	metrics    *Metrics
	dropped    atomic.Int64

	mu       sync.Mutex
	ring     []RequestInfo
	ringNext int
	ringFull bool
}

// Config sizes the worker pool and the ring.
type Config struct {
	Workers    int
	BufferSize int
	Capacity   int
}

func NewService(cfg Config, metrics *Metrics, log *logger.Logger) *Service {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = 1000
	}
	s := &Service{
		logChan:  make(chan logRequest, cfg.BufferSize),
		shutdown: make(chan struct{}),
		logger:   log.WithComponent("request_tracking"),
		metrics:  metrics,
		ring:     make([]RequestInfo, cfg.Capacity),
	}

	for i := 0; i < cfg.Workers; i++ {
		s.workerPool.Add(1)
		go s.logWorker()
	}
	return s
}

func (s *Service) logWorker() {
	defer s.workerPool.Done()

	for {
		select {
		case req := <-s.logChan:
			s.record(req.info)
		case <-s.shutdown:
			// Drain what is already queued before exiting.
			for {
				select {
				case req := <-s.logChan:
					s.record(req.info)
				default:
					return
				}
			}
		}
	}
}

func (s *Service) record(info RequestInfo) {
	s.metrics.Total.WithLabelValues(info.Surface, info.Model).Inc()
	if info.Status == "error" {
		s.metrics.Errors.WithLabelValues(info.Surface, info.ErrorKind).Inc()
	}

	s.mu.Lock()
	s.ring[s.ringNext] = info
	s.ringNext = (s.ringNext + 1) % len(s.ring)
	if s.ringNext == 0 {
		s.ringFull = true
	}
	s.mu.Unlock()
}

// LogAsync enqueues without blocking; overflow is counted and dropped.
func (s *Service) LogAsync(_ context.Context, info RequestInfo) {
	if s.closed.Load() {
		return
	}
	if info.Timestamp.IsZero() {
		info.Timestamp = time.Now()
	}
	select {
	case s.logChan <- logRequest{info: info}:
	default:
		s.dropped.Add(1)
	}
}

// Recent returns up to n entries, newest first.
func (s *Service) Recent(n int) []RequestInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	size := s.ringNext
	if s.ringFull {
		size = len(s.ring)
	}
	if n > size {
		n = size
	}
	out := make([]RequestInfo, 0, n)
	for i := 0; i < n; i++ {
		idx := (s.ringNext - 1 - i + len(s.ring)) % len(s.ring)
		out = append(out, s.ring[idx])
	}
	return out
}

// Dropped reports how many entries overflowed the queue.
func (s *Service) Dropped() int64 { return s.dropped.Load() }

// Shutdown stops the workers after draining the queue.
func (s *Service) Shutdown() {
	if s.closed.CompareAndSwap(false, true) {
		close(s.shutdown)
		s.workerPool.Wait()
	}
}
