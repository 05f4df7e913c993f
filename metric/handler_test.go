package metric

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/simstation/errors"
)

func TestServer_Handler(t *testing.T) {
	registry := NewMetricsRegistry()
	registry.CoreMetrics().RecordMessagePublished("station", "PowerOutputTopic")

	server := NewServer(0, "", registry, nil)
	handler, err := server.Handler()
	require.NoError(t, err)

	ts := httptest.NewServer(handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "simstation_messages_published_total")

	resp, err = http.Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, "http://localhost:9090/metrics", server.Address())
}

func TestServer_CustomHealthHandler(t *testing.T) {
	unhealthy := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	handler, err := NewServer(9191, "/m", NewMetricsRegistry(), unhealthy).Handler()
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/m", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_RequiresRegistry(t *testing.T) {
	server := NewServer(9192, "/metrics", nil, nil)

	_, err := server.Handler()
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))

	assert.Error(t, server.Start())
	assert.NoError(t, server.Stop(0))
}
