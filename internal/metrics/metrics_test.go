package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAndHandler(t *testing.T) {
	m := New()
	m.EventsReceived.Inc()
	m.Classifications.WithLabelValues("TOO_HIGH_SINGLE").Add(2)
	m.SetArmed(true)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsReceived))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Classifications.WithLabelValues("TOO_HIGH_SINGLE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Armed))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sensorwatch_events_received_total 1")
}
