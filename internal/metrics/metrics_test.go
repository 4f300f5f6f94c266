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

func TestPendingGaugeTracksRequests(t *testing.T) {
	m := New()

	m.RequestSent("evaluation/runQuery")
	m.RequestSent("evaluation/runQuery")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.pending))

	m.ResponseReceived("evaluation/runQuery", false, 10*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.pending))

	m.RequestsAbandoned(1)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.pending))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requestsSent.WithLabelValues("evaluation/runQuery")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.responses.WithLabelValues("evaluation/runQuery", "result")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RequestSent("x")
		m.ResponseReceived("x", true, time.Second)
		m.ProgressReceived("ql/progressUpdated")
		m.FramingError()
		m.UnmatchedResponse()
		m.ToolCall("decode_bqrs", false)
	})
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.FramingError()
	m.ToolCall("register_database", true)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "codeql_relay_protocol_framing_errors_total 1")
	assert.Contains(t, body, `codeql_relay_mcp_tool_calls_total{status="error",tool="register_database"} 1`)
}
