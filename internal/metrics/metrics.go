// Package metrics exposes replication counters to Prometheus. A nil *Metrics
// is valid and records nothing.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "ramen"

type Metrics struct {
	reg *prometheus.Registry

	Frames        *prometheus.CounterVec
	Messages      *prometheus.CounterVec
	Anomalies     *prometheus.CounterVec
	Records       *prometheus.GaugeVec
	FrameDuration prometheus.Histogram
	Fetches       *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		Frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "frames",
		}, []string{"result"}),
		Messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "messages",
		}, []string{"handler"}),
		Anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "anomalies",
		}, []string{"kind"}),
		Records: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "records",
		}, []string{"collection"}),
		FrameDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "frame_duration_seconds",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		}),
		Fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resource",
			Name:      "fetches",
		}, []string{"source", "result"}),
	}
	m.reg.MustRegister(m.Frames, m.Messages, m.Anomalies, m.Records, m.FrameDuration, m.Fetches)
	return m
}

// Registry returns the registry all collectors live in.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) Frame(result string, took time.Duration) {
	if m == nil {
		return
	}
	m.Frames.WithLabelValues(result).Inc()
	m.FrameDuration.Observe(took.Seconds())
}

func (m *Metrics) Message(handler string) {
	if m == nil {
		return
	}
	m.Messages.WithLabelValues(handler).Inc()
}

func (m *Metrics) Anomaly(kind string) {
	if m == nil {
		return
	}
	m.Anomalies.WithLabelValues(kind).Inc()
}

func (m *Metrics) SetRecords(collection string, n int) {
	if m == nil {
		return
	}
	m.Records.WithLabelValues(collection).Set(float64(n))
}

func (m *Metrics) Fetch(source, result string) {
	if m == nil {
		return
	}
	m.Fetches.WithLabelValues(source, result).Inc()
}

// Serve exposes /metrics on addr until ctx ends.
func (m *Metrics) Serve(ctx context.Context, addr string, log *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("metrics listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
