// Package observability содержит Prometheus метрики клиента анализа.
package observability

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector метрики сессий анализа и запросов к backend.
// Все методы безопасны для nil.
type Collector struct {
	gatherer prometheus.Gatherer

	SessionsTotal   *prometheus.CounterVec
	StageDuration   *prometheus.HistogramVec
	BackendRequests *prometheus.CounterVec
}

// NewCollector регистрирует метрики в reg (prometheus.DefaultRegisterer, если nil).
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	sessions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "quarry_analysis_sessions_total",
		Help: "Analysis sessions by terminal outcome.",
	}, []string{"source", "outcome"})
	sessions, err := registerCounterVec(reg, sessions, "quarry_analysis_sessions_total")
	if err != nil {
		return nil, err
	}

	stages := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "quarry_analysis_stage_duration_seconds",
		Help:    "Duration of analysis stages, including backend processing.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"stage"})
	stages, err = registerHistogramVec(reg, stages, "quarry_analysis_stage_duration_seconds")
	if err != nil {
		return nil, err
	}

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "quarry_backend_requests_total",
		Help: "Requests issued to the analysis backend by endpoint and result.",
	}, []string{"endpoint", "result"})
	requests, err = registerCounterVec(reg, requests, "quarry_backend_requests_total")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:        gatherer,
		SessionsTotal:   sessions,
		StageDuration:   stages,
		BackendRequests: requests,
	}, nil
}

// Gatherer возвращает gatherer, связанный с коллектором.
func (c *Collector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// ObserveSession учитывает завершенную сессию.
func (c *Collector) ObserveSession(source, outcome string) {
	if c == nil || c.SessionsTotal == nil {
		return
	}
	c.SessionsTotal.WithLabelValues(source, outcome).Inc()
}

// ObserveStage записывает длительность этапа.
func (c *Collector) ObserveStage(stage string, d time.Duration) {
	if c == nil || c.StageDuration == nil {
		return
	}
	c.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveRequest учитывает запрос к backend.
func (c *Collector) ObserveRequest(endpoint, result string) {
	if c == nil || c.BackendRequests == nil {
		return
	}
	c.BackendRequests.WithLabelValues(endpoint, result).Inc()
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
