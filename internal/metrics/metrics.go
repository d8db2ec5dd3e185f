package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns its registry so tests and multiple servers do not collide on the global one.
type Metrics struct {
	registry        *prometheus.Registry
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	generations     *prometheus.CounterVec
	titleRewrites   prometheus.Counter
	messageEvents   *prometheus.CounterVec
	rateLimitBlocks *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gopherchat_http_requests_total",
			Help: "HTTP requests by route, method and status",
		}, []string{"route", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gopherchat_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gopherchat_generation_requests_total",
			Help: "Generation backend calls by provider and outcome",
		}, []string{"provider", "outcome"}),
		titleRewrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gopherchat_chat_title_rewrites_total",
			Help: "Chats retitled from their first message",
		}),
		messageEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gopherchat_message_events_consumed_total",
			Help: "Message-created events handled by the worker",
		}, []string{"result"}),
		rateLimitBlocks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gopherchat_rate_limited_requests_total",
			Help: "Requests rejected by the per-IP limiter",
		}, []string{"route"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.generations,
		m.titleRewrites,
		m.messageEvents,
		m.rateLimitBlocks,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveHTTP(route, method string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveGeneration(provider, outcome string) {
	m.generations.WithLabelValues(provider, outcome).Inc()
}

func (m *Metrics) IncTitleRewrite() {
	m.titleRewrites.Inc()
}

func (m *Metrics) ObserveMessageEvent(result string) {
	m.messageEvents.WithLabelValues(result).Inc()
}

func (m *Metrics) IncRateLimited(route string) {
	m.rateLimitBlocks.WithLabelValues(route).Inc()
}
