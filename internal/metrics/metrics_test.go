package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()
	m.ObserveGeneration("gemini", "ok")
	m.ObserveGeneration("gemini", "ok")
	m.ObserveGeneration("gemini", "error")
	m.IncTitleRewrite()
	m.ObserveHTTP("/chat/:id", http.MethodGet, 200, 10*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.generations.WithLabelValues("gemini", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.generations.WithLabelValues("gemini", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.titleRewrites))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("/chat/:id", "GET", "200")))
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.IncTitleRewrite()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "gopherchat_chat_title_rewrites_total 1")
}
