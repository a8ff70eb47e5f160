package main

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/modelingevolution/numeric/internal/analytics"
	"github.com/modelingevolution/numeric/internal/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const defaultRecentLimit = 100

// sampleStore is the part of persistence.MetricStore the service needs.
type sampleStore interface {
	Check(ctx context.Context) error
	Save(ctx context.Context, m model.Sample) error
	Publish(ctx context.Context, snap analytics.Snapshot) error
	FetchLatest(ctx context.Context, deviceID string) (*model.Sample, error)
	Recent(ctx context.Context, limit int) ([]model.Sample, error)
}

type app struct {
	store    sampleStore
	analyzer *analytics.Analyzer
	queue    chan model.Sample
	ctx      context.Context
	cancel   context.CancelFunc
	logger   log.Logger
	gatherer prometheus.Gatherer
	prom     promMetrics
}

func newApp(ctx context.Context, store sampleStore, engine *analytics.Analyzer, queueSize int, logger log.Logger, reg *prometheus.Registry) *app {
	service := &app{
		store:    store,
		analyzer: engine,
		queue:    make(chan model.Sample, queueSize),
		logger:   logger,
		gatherer: reg,
		prom:     buildPromMetrics(),
	}
	service.ctx, service.cancel = context.WithCancel(ctx)
	service.prom.register(reg)

	return service
}

func (a *app) router() http.Handler {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/health", a.healthHandler).Methods(http.MethodGet)
	r.HandleFunc("/ingest", a.ingestHandler).Methods(http.MethodPost)
	r.HandleFunc("/analytics", a.analyticsHandler).Methods(http.MethodGet)
	r.HandleFunc("/latest", a.latestHandler).Methods(http.MethodGet)
	r.HandleFunc("/recent", a.recentHandler).Methods(http.MethodGet)
	return r
}

func (a *app) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.store.Check(ctx); err != nil {
		level.Warn(a.logger).Log("msg", "health check failed", "err", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("redis unavailable"))
		return
	}

	_, _ = w.Write([]byte("ok"))
}

func (a *app) ingestHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		a.prom.procTimeSeconds.Observe(time.Since(start).Seconds())
	}()

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var sample model.Sample
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(&sample); err != nil {
		a.prom.badReqTotal.Inc()
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("invalid json"))
		return
	}

	if !sample.Valid() {
		a.prom.badReqTotal.Inc()
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("invalid metric values"))
		return
	}

	if sample.Timestamp == 0 {
		sample.Timestamp = time.Now().Unix()
	}

	select {
	case a.queue <- sample:
		a.prom.ingestedTotal.Inc()
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("accepted"))
	default:
		a.prom.queueFullTotal.Inc()
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("queue full"))
	}
}

func (a *app) analyticsHandler(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, a.analyzer.Latest())
}

func (a *app) latestHandler(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("device_id")
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	metric, err := a.store.FetchLatest(ctx, deviceID)
	if err != nil {
		level.Error(a.logger).Log("msg", "fetch latest sample failed", "device_id", deviceID, "err", err)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("redis error"))
		return
	}
	if metric == nil {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("no data"))
		return
	}

	respondJSON(w, metric)
}

func (a *app) recentHandler(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecentLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte("invalid limit"))
			return
		}
		limit = parsed
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	samples, err := a.store.Recent(ctx, limit)
	if err != nil {
		level.Error(a.logger).Log("msg", "fetch recent samples failed", "err", err)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("redis error"))
		return
	}

	respondJSON(w, samples)
}

func (a *app) workerLoop() {
	for {
		select {
		case <-a.ctx.Done():
			return
		case sample := <-a.queue:
			a.process(sample)
		}
	}
}

// process runs one sample through the analyzer and publishes the result.
// Redis failures are counted and logged, the windows are updated regardless.
func (a *app) process(sample model.Sample) analytics.Snapshot {
	ctx, cancel := context.WithTimeout(a.ctx, 2*time.Second)
	defer cancel()

	if err := a.store.Save(ctx, sample); err != nil {
		a.prom.redisErrTotal.Inc()
		level.Error(a.logger).Log("msg", "store sample failed", "err", err)
	}

	res := a.analyzer.Process(sample)
	a.prom.observe(res)
	if res.CPUSpike || res.RPSSpike {
		level.Info(a.logger).Log("msg", "spike detected", "device_id", sample.DeviceID,
			"cpu", sample.CPU, "median_cpu", res.MedianCPU, "rps", sample.RPS, "median_rps", res.MedianRPS)
	}

	if err := a.store.Publish(ctx, res); err != nil {
		a.prom.redisErrTotal.Inc()
		level.Error(a.logger).Log("msg", "publish snapshot failed", "err", err)
	}
	return res
}

func respondJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
	}
}
