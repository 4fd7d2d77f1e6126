package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()
	m.EventAdded()
	m.EventAdded()
	m.EventRemoved()
	m.ConflictCheck()
	m.CommandProcessed("book", nil)
	m.CommandProcessed("book", errors.New("busy"))
	m.CommandProcessed("book", nil)
	m.SetIndexedEvents(5)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.eventsAdded))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.eventsRemoved))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.conflictChecks))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.commands.WithLabelValues("book", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commands.WithLabelValues("book", "error")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.indexedEvents))
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.ObserveFreeTimeSearch(3 * time.Millisecond)
	m.SetSimTick(42)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "simcal_free_time_search_seconds_count 1"))
	assert.True(t, strings.Contains(body, "simcal_sim_tick 42"))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.EventAdded()
	m.EventRemoved()
	m.ConflictCheck()
	m.CommandProcessed("cancel", nil)
	m.ObserveFreeTimeSearch(time.Second)
	m.SetIndexedEvents(1)
	m.SetSimTick(1)
	assert.Nil(t, m.Registry())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
