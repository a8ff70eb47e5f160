package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelingevolution/numeric/internal/analytics"
	"github.com/modelingevolution/numeric/internal/model"
	"github.com/modelingevolution/numeric/internal/persistence"
)

type testApp struct {
	*app
	srv   *miniredis.Miniredis
	store *persistence.MetricStore
}

func newTestApp(t *testing.T, window, queueSize int) testApp {
	t.Helper()

	srv := miniredis.RunT(t)
	store := persistence.NewMetricStore(srv.Addr(), "", 0)
	t.Cleanup(func() { _ = store.Stop() })

	engine, err := analytics.NewAnalyzer(window, 0.5)
	require.NoError(t, err)

	a := newApp(context.Background(), store, engine, queueSize, log.NewNopLogger(), prometheus.NewRegistry())
	t.Cleanup(a.cancel)
	return testApp{app: a, srv: srv, store: store}
}

func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestIngestHandler(t *testing.T) {
	a := newTestApp(t, 5, 1)
	h := a.router()

	rec := do(h, http.MethodPost, "/ingest", `{"device_id":"d1","cpu":10,"rps":5}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(a.prom.ingestedTotal))

	rec = do(h, http.MethodPost, "/ingest", `{"cpu":11,"rps":5}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(a.prom.queueFullTotal))

	rec = do(h, http.MethodPost, "/ingest", `{"cpu":"high"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(h, http.MethodPost, "/ingest", `{"cpu":1,"unknown":true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 2.0, testutil.ToFloat64(a.prom.badReqTotal))

	rec = do(h, http.MethodGet, "/ingest", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	sample := <-a.queue
	assert.Equal(t, "d1", sample.DeviceID)
	assert.NotZero(t, sample.Timestamp)
}

func TestProcessPublishesSnapshot(t *testing.T) {
	a := newTestApp(t, 5, 8)
	ctx := context.Background()

	var res analytics.Snapshot
	for i, cpu := range []float64{10, 11, 12, 11, 1000} {
		res = a.process(model.Sample{DeviceID: "d1", CPU: cpu, RPS: 1, Timestamp: int64(i + 1)})
	}
	assert.Equal(t, 11.0, res.MedianCPU)
	assert.True(t, res.CPUSpike)

	assert.Equal(t, 11.0, testutil.ToFloat64(a.prom.median.WithLabelValues("cpu")))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.prom.spike.WithLabelValues("cpu")))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.prom.spikeTotal.WithLabelValues("cpu")))
	assert.Equal(t, 0.0, testutil.ToFloat64(a.prom.spike.WithLabelValues("rps")))
	assert.Equal(t, 5.0, testutil.ToFloat64(a.prom.windowCount))

	published, err := a.store.FetchSnapshot(ctx)
	require.NoError(t, err)
	require.NotNil(t, published)
	assertSnapshot(t, res, *published)

	latest, err := a.store.FetchLatest(ctx, "d1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 1000.0, latest.CPU)

	rec := do(a.router(), http.MethodGet, "/analytics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got analytics.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assertSnapshot(t, res, got)
}

func assertSnapshot(t *testing.T, want, got analytics.Snapshot) {
	t.Helper()
	assert.Equal(t, want.TimeUnix, got.TimeUnix)
	assert.Equal(t, want.MedianCPU, got.MedianCPU)
	assert.Equal(t, want.MedianRPS, got.MedianRPS)
	assert.InDelta(t, want.AvgCPU, got.AvgCPU, 1e-9)
	assert.InDelta(t, want.DevCPU, got.DevCPU, 1e-9)
	assert.Equal(t, want.CPUSpike, got.CPUSpike)
	assert.Equal(t, want.RPSSpike, got.RPSSpike)
	assert.Equal(t, want.Samples, got.Samples)
	assert.Equal(t, want.Capacity, got.Capacity)
}

func TestProcessSurvivesRedisOutage(t *testing.T) {
	a := newTestApp(t, 3, 8)
	a.srv.Close()

	res := a.process(model.Sample{CPU: 4, RPS: 2, Timestamp: 1})
	assert.Equal(t, 4.0, res.MedianCPU)
	assert.Equal(t, 2.0, testutil.ToFloat64(a.prom.redisErrTotal))

	rec := do(a.router(), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLatestHandler(t *testing.T) {
	a := newTestApp(t, 3, 8)
	h := a.router()

	rec := do(h, http.MethodGet, "/latest", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, a.store.Save(context.Background(), model.Sample{DeviceID: "d2", CPU: 3, RPS: 9, Timestamp: 42}))

	rec = do(h, http.MethodGet, "/latest?device_id=d2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var got model.Sample
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, model.Sample{DeviceID: "d2", CPU: 3, RPS: 9, Timestamp: 42}, got)

	rec = do(h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestRecentHandler(t *testing.T) {
	a := newTestApp(t, 3, 8)
	h := a.router()
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		require.NoError(t, a.store.Save(ctx, model.Sample{CPU: float64(i), Timestamp: int64(i)}))
	}

	rec := do(h, http.MethodGet, "/recent?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got []model.Sample
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, []model.Sample{{CPU: 3, Timestamp: 3}, {CPU: 2, Timestamp: 2}}, got)

	rec = do(h, http.MethodGet, "/recent?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	a := newTestApp(t, 3, 8)
	a.process(model.Sample{CPU: 2, RPS: 3, Timestamp: 1})

	rec := do(a.router(), http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `analytics_rolling_median{metric="cpu"} 2`)
}

func TestWorkerLoopStopsOnCancel(t *testing.T) {
	a := newTestApp(t, 3, 8)
	done := make(chan struct{})
	go func() {
		a.workerLoop()
		close(done)
	}()

	a.queue <- model.Sample{CPU: 1, RPS: 1, Timestamp: 1}
	a.cancel()
	<-done
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&buf, "warn")
	require.NoError(t, err)

	require.NoError(t, level.Info(logger).Log("msg", "dropped"))
	assert.Empty(t, buf.String())

	require.NoError(t, level.Error(logger).Log("msg", "kept"))
	assert.Contains(t, buf.String(), "msg=kept")

	_, err = newLogger(&buf, "verbose")
	assert.Error(t, err)
}
