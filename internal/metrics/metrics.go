// Package metrics exposes Prometheus collectors for ingestion and retrieval.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const namespace = "docindex"

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	documents      *prometheus.CounterVec
	chunksUpserted prometheus.Counter
	chunksSkipped  *prometheus.CounterVec
	ocrRuns        *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec
	searches       *prometheus.CounterVec
	graphWrites    *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		documents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_ingested_total",
			Help:      "Documents processed by the ingestion pipeline, by outcome.",
		}, []string{"status"}),
		chunksUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_upserted_total",
			Help:      "Chunks written to the vector store.",
		}),
		chunksSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_skipped_total",
			Help:      "Chunks rejected before a vector store write, by reason.",
		}, []string{"reason"}),
		ocrRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ocr_runs_total",
			Help:      "OCR invocations, by outcome.",
		}, []string{"outcome"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline and store stages.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 4, 8),
		}, []string{"stage"}),
		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Searches served, by index and whether anything matched.",
		}, []string{"index", "result"}),
		graphWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "graph_items_merged_total",
			Help:      "Graph nodes and edges merged.",
		}, []string{"kind"}),
	}
	m.registry.MustRegister(
		m.documents, m.chunksUpserted, m.chunksSkipped, m.ocrRuns,
		m.stageDuration, m.searches, m.graphWrites,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) DocumentIngested(status string) {
	if m == nil {
		return
	}
	m.documents.WithLabelValues(status).Inc()
}

func (m *Metrics) ChunksUpserted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.chunksUpserted.Add(float64(n))
}

func (m *Metrics) ChunksSkipped(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.chunksSkipped.WithLabelValues(reason).Add(float64(n))
}

func (m *Metrics) OCRRun(outcome string) {
	if m == nil {
		return
	}
	m.ocrRuns.WithLabelValues(outcome).Inc()
}

// ObserveStage records the time elapsed since start under stage.
func (m *Metrics) ObserveStage(stage string, start time.Time) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

func (m *Metrics) Search(index string, hits int) {
	if m == nil {
		return
	}
	result := "hit"
	if hits == 0 {
		result = "empty"
	}
	m.searches.WithLabelValues(index, result).Inc()
}

func (m *Metrics) GraphMerged(nodes, edges int) {
	if m == nil {
		return
	}
	m.graphWrites.WithLabelValues("node").Add(float64(nodes))
	m.graphWrites.WithLabelValues("edge").Add(float64(edges))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done. An empty addr disables it.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("Serving metrics")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
