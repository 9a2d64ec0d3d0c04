package metrics_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pankajkoti/data-lake-with-spark/internal/metrics"
)

func TestObserveStorage(t *testing.T) {
	m := metrics.New()

	m.ObserveStorage("put", nil)
	m.ObserveStorage("put", nil)
	m.ObserveStorage("get", errors.New("boom"))

	assert.InDelta(t, 2, testutil.ToFloat64(m.StorageOperations.WithLabelValues("put", "success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.StorageOperations.WithLabelValues("get", "failure")), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(m.StorageOperations.WithLabelValues("get", "success")), 0)
}

func TestRegistryIsolated(t *testing.T) {
	a, b := metrics.New(), metrics.New()
	a.RowsWritten.WithLabelValues("songs").Add(3)

	assert.InDelta(t, 3, testutil.ToFloat64(a.RowsWritten.WithLabelValues("songs")), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(b.RowsWritten.WithLabelValues("songs")), 0)
}

func TestObserveStage(t *testing.T) {
	m := metrics.New()
	m.ObserveStage("catalog", time.Now().Add(-2*time.Second))

	count, err := testutil.GatherAndCount(m.Registry, "sparkify_etl_stage_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPush(t *testing.T) {
	var (
		mu     sync.Mutex
		path   string
		body   string
		method string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		path, method, body = r.URL.Path, r.Method, string(data)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := metrics.New()
	m.SongplayEvents.WithLabelValues("matched").Inc()

	require.NoError(t, m.Push(context.Background(), srv.URL, "sparkify_etl", "run-1"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, http.MethodPut, method)
	assert.True(t, strings.HasPrefix(path, "/metrics/job/sparkify_etl/instance/run-1"), path)
	assert.NotEmpty(t, body)
}

func TestPushFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := metrics.New().Push(context.Background(), srv.URL, "sparkify_etl", "")
	require.Error(t, err)
	assert.True(t, metrics.Error.Has(err))
}
