package main

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/modelingevolution/numeric/internal/analytics"
)

type promMetrics struct {
	ingestedTotal   prometheus.Counter
	badReqTotal     prometheus.Counter
	queueFullTotal  prometheus.Counter
	redisErrTotal   prometheus.Counter
	procTimeSeconds prometheus.Histogram
	avg             *prometheus.GaugeVec
	median          *prometheus.GaugeVec
	deviation       *prometheus.GaugeVec
	spike           *prometheus.GaugeVec
	spikeTotal      *prometheus.CounterVec
	windowCount     prometheus.Gauge
}

func buildPromMetrics() promMetrics {
	return promMetrics{
		ingestedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ingest_total",
			Help: "Total samples ingested",
		}),
		badReqTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ingest_bad_request_total",
			Help: "Total bad ingest requests",
		}),
		queueFullTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ingest_queue_full_total",
			Help: "Total ingest requests rejected because queue is full",
		}),
		redisErrTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "redis_error_total",
			Help: "Total redis errors",
		}),
		procTimeSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ingest_processing_seconds",
			Help:    "Latency for handling ingest requests",
			Buckets: prometheus.DefBuckets,
		}),
		avg: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "analytics_rolling_avg",
			Help: "Rolling average of the metric",
		}, []string{"metric"}),
		median: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "analytics_rolling_median",
			Help: "Rolling median of the metric",
		}, []string{"metric"}),
		deviation: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "analytics_deviation",
			Help: "Relative deviation of the last sample from the rolling median",
		}, []string{"metric"}),
		spike: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "analytics_spike",
			Help: "Spike flag (1 if the last sample is a spike)",
		}, []string{"metric"}),
		spikeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "analytics_spike_total",
			Help: "Total spikes detected",
		}, []string{"metric"}),
		windowCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "analytics_window_count",
			Help: "Number of samples in analytics window",
		}),
	}
}

func (m promMetrics) register(reg prometheus.Registerer) {
	reg.MustRegister(
		m.ingestedTotal,
		m.badReqTotal,
		m.queueFullTotal,
		m.redisErrTotal,
		m.procTimeSeconds,
		m.avg,
		m.median,
		m.deviation,
		m.spike,
		m.spikeTotal,
		m.windowCount,
	)
}

func (m promMetrics) observe(res analytics.Snapshot) {
	m.observeMetric("cpu", res.AvgCPU, res.MedianCPU, res.DevCPU, res.CPUSpike)
	m.observeMetric("rps", res.AvgRPS, res.MedianRPS, res.DevRPS, res.RPSSpike)
	m.windowCount.Set(float64(res.Samples))
}

func (m promMetrics) observeMetric(metric string, avg, median, dev float64, spike bool) {
	m.avg.WithLabelValues(metric).Set(avg)
	m.median.WithLabelValues(metric).Set(median)
	m.deviation.WithLabelValues(metric).Set(dev)
	if spike {
		m.spike.WithLabelValues(metric).Set(1)
		m.spikeTotal.WithLabelValues(metric).Inc()
	} else {
		m.spike.WithLabelValues(metric).Set(0)
	}
}
