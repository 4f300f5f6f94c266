package management

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/harper/codeql-relay/internal/config"
	"github.com/harper/codeql-relay/internal/db"
	"github.com/harper/codeql-relay/internal/metrics"
	"github.com/harper/codeql-relay/internal/queryserver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	running bool
	pending []queryserver.PendingInfo
}

func (f *fakeEngine) InstanceID() string   { return "inst-1" }
func (f *fakeEngine) CodeQLPath() string   { return "/opt/codeql/codeql" }
func (f *fakeEngine) Running() bool        { return f.running }
func (f *fakeEngine) StartedAt() time.Time { return time.Now().Add(-time.Minute) }
func (f *fakeEngine) Pending() int         { return len(f.pending) }
func (f *fakeEngine) FramingErrors() int64 { return 2 }
func (f *fakeEngine) PendingRequests() []queryserver.PendingInfo {
	return f.pending
}

func testConfig() *config.Config {
	return &config.Config{
		Engine: config.EngineConfig{CodeQLPath: "/opt/codeql/codeql", Mode: config.ModeProcess, CallbackWorkers: 4},
		Server: config.ServerConfig{MCPPort: 8000, ManagementPort: 8091},
	}
}

func get(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]interface{}
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	return rec, body
}

func TestHealthEndpoint(t *testing.T) {
	engine := &fakeEngine{running: true, pending: []queryserver.PendingInfo{{ID: 1, Method: queryserver.MethodRunQuery}}}
	srv := NewServer(testConfig(), engine, nil, nil, nil)

	rec, health := get(t, srv, "/api/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, true, health["engine_running"])
	assert.Equal(t, "/opt/codeql/codeql", health["codeql_path"])
	assert.Equal(t, "process", health["mode"])
	assert.Equal(t, 1.0, health["pending_requests"])
	assert.Equal(t, 2.0, health["framing_errors"])
	assert.GreaterOrEqual(t, health["uptime_seconds"], 59.0)
}

func TestHealthDegradedWhenEngineDown(t *testing.T) {
	srv := NewServer(testConfig(), &fakeEngine{}, nil, nil, nil)

	rec, health := get(t, srv, "/api/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "degraded", health["status"])
}

func TestConfigEndpoint(t *testing.T) {
	srv := NewServer(testConfig(), &fakeEngine{}, nil, nil, nil)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/config", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var cfg config.Config
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	assert.Equal(t, 8000, cfg.Server.MCPPort)
	assert.Equal(t, "/opt/codeql/codeql", cfg.Engine.CodeQLPath)
}

func TestConfigRejectsWrites(t *testing.T) {
	srv := NewServer(testConfig(), &fakeEngine{}, nil, nil, nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/config", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestPendingEndpoint(t *testing.T) {
	engine := &fakeEngine{running: true, pending: []queryserver.PendingInfo{
		{ID: 4, Method: queryserver.MethodRunQuery, Sent: time.Now().Add(-2 * time.Second)},
	}}
	srv := NewServer(testConfig(), engine, nil, nil, nil)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/pending", nil))
	var pending []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pending))
	require.Len(t, pending, 1)
	assert.Equal(t, 4.0, pending[0]["id"])
	assert.GreaterOrEqual(t, pending[0]["age_seconds"], 2.0)
}

func TestSessionsWithoutDatabase(t *testing.T) {
	srv := NewServer(testConfig(), &fakeEngine{}, nil, nil, nil)
	rec, _ := get(t, srv, "/api/sessions")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSessionsAndMessages(t *testing.T) {
	database, err := db.Open(filepath.Join(t.TempDir(), "messages.db"))
	require.NoError(t, err)
	defer database.Close()

	require.NoError(t, database.CreateSession("inst-1", "codeql", []string{"execute", "query-server2"}))
	database.ObserveFrame("inst-1", queryserver.DirectionRelayToEngine,
		[]byte(`{"jsonrpc":"2.0","id":1,"method":"evaluation/runQuery","params":{"progressId":1}}`))
	database.ObserveFrame("inst-1", queryserver.DirectionEngineToRelay,
		[]byte(`{"jsonrpc":"2.0","method":"ql/progressUpdated","params":{"id":1,"step":1,"maxStep":1,"message":"done"}}`))
	database.ObserveFrame("inst-1", queryserver.DirectionRelayToEngine,
		[]byte(`{"jsonrpc":"2.0","id":2,"method":"evaluation/registerDatabases","params":{"progressId":2}}`))

	srv := NewServer(testConfig(), &fakeEngine{}, database, nil, nil)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var sessions []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sessions))
	require.Len(t, sessions, 1)
	assert.Equal(t, "inst-1", sessions[0]["id"])
	assert.Equal(t, true, sessions[0]["is_active"])

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/inst-1/messages", nil))
	var all []db.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Len(t, all, 3)

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/inst-1/messages?request_id=1", nil))
	var trace []db.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &trace))
	assert.Len(t, trace, 2)

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/inst-1/messages?request_id=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/other/messages", nil))
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	m.RequestSent(queryserver.MethodRunQuery)
	srv := NewServer(testConfig(), &fakeEngine{}, nil, m, nil)

	ts := httptest.NewServer(srv)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `codeql_relay_protocol_requests_sent_total{method="evaluation/runQuery"} 1`)
}
