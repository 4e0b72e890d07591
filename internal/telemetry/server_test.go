package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crawlq/internal/queue"
)

type fakeStatus struct {
	health queue.HealthSummary
	err    error
}

func (f fakeStatus) Health(context.Context) (queue.HealthSummary, error) {
	return f.health, f.err
}

func TestHealthz(t *testing.T) {
	srv := NewServer(NewMetrics(), nil, nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestStatusReportsQueueCountsAndUpdatesGauges(t *testing.T) {
	metrics := NewMetrics()
	want := queue.HealthSummary{Total: 7, Pending: 3, InFlight: 1, Completed: 3, Failing: 2}
	srv := NewServer(metrics, fakeStatus{health: want}, nil)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got queue.HealthSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, want, got)
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.Pending))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.InFlight))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.Failing))
}

func TestStatusUnavailable(t *testing.T) {
	srv := NewServer(NewMetrics(), fakeStatus{err: errors.New("locked")}, nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	srv = NewServer(NewMetrics(), nil, nil)
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpointExposesCounters(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveEnqueued("detail", 3)
	metrics.ObserveCompleted("detail", 20*time.Millisecond)
	metrics.ObserveFailed("genre_page", time.Millisecond)

	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.Enqueued.WithLabelValues("detail")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Completed.WithLabelValues("detail")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Failed.WithLabelValues("genre_page")))

	srv := NewServer(metrics, nil, nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `crawlq_commands_enqueued_total{kind="detail"} 3`)
	assert.Contains(t, body, "crawlq_command_duration_seconds_bucket")
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveEnqueued("detail", 1)
		m.ObserveCompleted("detail", time.Second)
		m.ObserveFailed("detail", time.Second)
		m.SetQueue(queue.HealthSummary{Pending: 1})
	})
}

func TestServerStartAndShutdown(t *testing.T) {
	srv := NewServer(NewMetrics(), nil, nil)
	addr, err := srv.Start("127.0.0.1:0")
	require.NoError(t, err)

	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), "ok"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
}
