package worker

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry            *prometheus.Registry
	batchesTotal        *prometheus.CounterVec
	batchDuration       *prometheus.HistogramVec
	activeBatches       prometheus.Gauge
	filesTotal          *prometheus.CounterVec
	pixelsRenderedTotal prometheus.Counter
	computeTimeMSTotal  prometheus.Counter
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &metrics{
		registry: registry,
		batchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dicomflow_worker_batches_total",
			Help: "Total worker batches by source type and final status.",
		}, []string{"source_type", "status"}),
		batchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dicomflow_worker_batch_duration_seconds",
			Help:    "Total processing duration for each conversion batch.",
			Buckets: prometheus.DefBuckets,
		}, []string{"source_type", "status"}),
		activeBatches: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dicomflow_worker_active_batches",
			Help: "Current number of active conversion batches in the worker.",
		}),
		filesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dicomflow_worker_files_total",
			Help: "Total converted files by per-file outcome.",
		}, []string{"status"}),
		pixelsRenderedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dicomflow_usage_pixels_rendered_total",
			Help: "Total pixels rendered across all completed batches.",
		}),
		computeTimeMSTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dicomflow_usage_compute_time_ms_total",
			Help: "Total compute time in milliseconds across completed batches.",
		}),
	}

	registry.MustRegister(
		m.batchesTotal,
		m.batchDuration,
		m.activeBatches,
		m.filesTotal,
		m.pixelsRenderedTotal,
		m.computeTimeMSTotal,
	)
	return m
}

func (m *metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
