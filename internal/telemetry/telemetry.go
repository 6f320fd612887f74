// Package telemetry exposes the agent's own health as Prometheus metrics.
package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Flush outcomes.
const (
	OutcomeSuccess   = "success"
	OutcomeTransient = "transient"
	OutcomeKill      = "kill"
	OutcomeSkipped   = "skipped"
)

// Metrics holds the agent's self-metrics on a private registry.
type Metrics struct {
	reg *prometheus.Registry

	SamplesProcessed prometheus.Counter
	SamplesSent      prometheus.Counter
	SamplesDropped   prometheus.Counter
	Flushes          *prometheus.CounterVec
	Checks           *prometheus.CounterVec
	BatchLength      prometheus.Gauge
	CollectErrors    *prometheus.CounterVec
	CollectDuration  *prometheus.HistogramVec
}

// New registers the agent metrics on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		reg: reg,
		SamplesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "diamond_agent_samples_processed_total",
			Help: "Samples handed to the publisher.",
		}),
		SamplesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "diamond_agent_samples_sent_total",
			Help: "Samples accepted by the ingestion API.",
		}),
		SamplesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "diamond_agent_samples_dropped_total",
			Help: "Samples discarded by backlog trimming.",
		}),
		Flushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "diamond_agent_flushes_total",
			Help: "Flush attempts by outcome.",
		}, []string{"outcome"}),
		Checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "diamond_agent_checks_total",
			Help: "TTL check posts by outcome.",
		}, []string{"outcome"}),
		BatchLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "diamond_agent_batch_length",
			Help: "Samples waiting in the publisher batch.",
		}),
		CollectErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "diamond_agent_collect_errors_total",
			Help: "Collection errors per collector.",
		}, []string{"collector"}),
		CollectDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "diamond_agent_collect_duration_seconds",
			Help:    "Collection duration per collector.",
			Buckets: prometheus.DefBuckets,
		}, []string{"collector"}),
	}
	reg.MustRegister(
		m.SamplesProcessed,
		m.SamplesSent,
		m.SamplesDropped,
		m.Flushes,
		m.Checks,
		m.BatchLength,
		m.CollectErrors,
		m.CollectDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry the metrics live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("Telemetry listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
