package mcpserver

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/harper/codeql-relay/internal/codeql"
	"github.com/harper/codeql-relay/internal/codeql/codeqltest"
	"github.com/harper/codeql-relay/internal/config"
	"github.com/harper/codeql-relay/internal/errors"
	"github.com/harper/codeql-relay/internal/metrics"
	"github.com/harper/codeql-relay/internal/queryserver"
	"github.com/harper/codeql-relay/internal/symbols"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type quickEvalCall struct {
	query, db, output string
	span              symbols.Span
}

// fakeQueryServer records what the tools ask of the query server.
type fakeQueryServer struct {
	runner *codeql.Runner

	mu         sync.Mutex
	registered [][]string
	evaluated  []string
	quickEvals []quickEvalCall
	decoded    []string

	err      error
	progress []queryserver.ProgressUpdate
}

func (f *fakeQueryServer) replay(onProgress queryserver.ProgressHandler) {
	for _, u := range f.progress {
		onProgress(u)
	}
}

func (f *fakeQueryServer) RegisterDatabasesAndWait(ctx context.Context, paths []string, onProgress queryserver.ProgressHandler) error {
	f.mu.Lock()
	f.registered = append(f.registered, paths)
	f.mu.Unlock()
	f.replay(onProgress)
	return f.err
}

func (f *fakeQueryServer) EvaluateAndWait(ctx context.Context, query, db, output string, onProgress queryserver.ProgressHandler) error {
	f.mu.Lock()
	f.evaluated = append(f.evaluated, query+"|"+db+"|"+output)
	f.mu.Unlock()
	f.replay(onProgress)
	return f.err
}

func (f *fakeQueryServer) QuickEvaluateAndWait(ctx context.Context, query, db, output string, span symbols.Span, onProgress queryserver.ProgressHandler) error {
	f.mu.Lock()
	f.quickEvals = append(f.quickEvals, quickEvalCall{query, db, output, span})
	f.mu.Unlock()
	f.replay(onProgress)
	return f.err
}

func (f *fakeQueryServer) DecodeBQRS(ctx context.Context, path, format string) (string, error) {
	f.mu.Lock()
	f.decoded = append(f.decoded, path+"|"+format)
	f.mu.Unlock()
	return `{"#select":{"tuples":[]}}`, f.err
}

func (f *fakeQueryServer) Runner() *codeql.Runner { return f.runner }

var testDefaults = config.DefaultsConfig{
	QuickEvalOutput:    "/tmp/quickeval.bqrs",
	EvalOutput:         "/tmp/eval.bqrs",
	AnalysisOutput:     "/tmp/analysis",
	SecurityScanOutput: "/tmp/security-scan",
}

func newTestServer(t *testing.T, cases ...codeqltest.Case) (*Server, *fakeQueryServer, *codeqltest.CLI) {
	t.Helper()
	cli := codeqltest.New(t, cases...)
	fake := &fakeQueryServer{runner: codeql.NewRunner(cli.Path)}
	return New(fake, Options{Defaults: testDefaults, SyntaxTimeout: 5 * time.Second}), fake, cli
}

func callRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	switch c := res.Content[0].(type) {
	case mcp.TextContent:
		return c.Text
	case *mcp.TextContent:
		return c.Text
	}
	t.Fatalf("unexpected content %T", res.Content[0])
	return ""
}

const sampleQuery = `import javascript

class Foo extends Bar {
  Foo() { this = this }
}

predicate isVulnerable(DataFlow::Node n) {
  not isSafe(n)
}
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func makeDatabase(t *testing.T, withSource bool) string {
	t.Helper()
	dir := t.TempDir()
	if withSource {
		writeFile(t, dir, "src.zip", "PK")
	}
	return dir
}

func TestToolSetMatchesCodeQLServer(t *testing.T) {
	s, _, _ := newTestServer(t)
	assert.ElementsMatch(t, []string{
		"register_database", "test_predicate", "decode_bqrs", "evaluate_query",
		"create_database", "list_supported_languages", "list_query_packs", "discover_queries",
		"find_security_queries", "analyze_database", "get_database_info", "run_security_scan",
	}, s.Tools())
	assert.NotNil(t, s.MCP())
}

func TestRegisterDatabase(t *testing.T) {
	s, fake, _ := newTestServer(t)
	db := makeDatabase(t, true)

	res, err := s.handleRegisterDatabase(context.Background(), callRequest(map[string]any{"db_path": db}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, "Database registered: "+db, resultText(t, res))
	assert.Equal(t, [][]string{{db}}, fake.registered)
}

func TestRegisterDatabaseValidation(t *testing.T) {
	s, fake, _ := newTestServer(t)

	missing := filepath.Join(t.TempDir(), "nope")
	res, err := s.handleRegisterDatabase(context.Background(), callRequest(map[string]any{"db_path": missing}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "Database path does not exist: "+missing)

	noSource := makeDatabase(t, false)
	res, err = s.handleRegisterDatabase(context.Background(), callRequest(map[string]any{"db_path": noSource}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "Missing required src.zip in: "+noSource)

	assert.Empty(t, fake.registered)
}

func TestRegisterDatabaseEngineFailure(t *testing.T) {
	s, fake, _ := newTestServer(t)
	fake.err = errors.New("query server exited before responding")

	res, err := s.handleRegisterDatabase(context.Background(), callRequest(map[string]any{"db_path": makeDatabase(t, true)}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "Database registration failed: query server exited before responding")
}

func TestMissingRequiredArgument(t *testing.T) {
	s, _, _ := newTestServer(t)
	res, err := s.handleRegisterDatabase(context.Background(), callRequest(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestTestPredicateQuickEvaluatesSymbol(t *testing.T) {
	s, fake, _ := newTestServer(t)
	query := writeFile(t, t.TempDir(), "q.ql", sampleQuery)

	res, err := s.handleTestPredicate(context.Background(), callRequest(map[string]any{
		"file": query, "db": "/dbs/app", "symbol": "isVulnerable",
	}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, "/tmp/quickeval.bqrs", resultText(t, res))

	require.Len(t, fake.quickEvals, 1)
	call := fake.quickEvals[0]
	assert.Equal(t, query, call.query)
	assert.Equal(t, "/dbs/app", call.db)
	assert.Equal(t, symbols.Span{StartLine: 7, StartCol: 11, EndLine: 7, EndCol: 23}, call.span)
}

func TestTestPredicateClassAndCustomOutput(t *testing.T) {
	s, fake, _ := newTestServer(t)
	query := writeFile(t, t.TempDir(), "q.ql", sampleQuery)

	res, err := s.handleTestPredicate(context.Background(), callRequest(map[string]any{
		"file": query, "db": "/dbs/app", "symbol": "Foo", "output_path": "/tmp/foo.bqrs",
	}))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/foo.bqrs", resultText(t, res))
	require.Len(t, fake.quickEvals, 1)
	assert.Equal(t, symbols.Span{StartLine: 3, StartCol: 7, EndLine: 3, EndCol: 10}, fake.quickEvals[0].span)
}

func TestTestPredicateErrors(t *testing.T) {
	s, fake, _ := newTestServer(t)
	dir := t.TempDir()
	query := writeFile(t, dir, "q.ql", sampleQuery)
	notQL := writeFile(t, dir, "q.txt", sampleQuery)

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"unknown symbol", map[string]any{"file": query, "db": "/db", "symbol": "Missing"},
			"Error: Symbol 'Missing' not found in " + query + ". Make sure the class or predicate name is correct."},
		{"wrong extension", map[string]any{"file": notQL, "db": "/db", "symbol": "Foo"},
			"Error: Query file must have .ql extension, got: .txt"},
		{"missing file", map[string]any{"file": filepath.Join(dir, "absent.ql"), "db": "/db", "symbol": "Foo"},
			"Error: Query file not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := s.handleTestPredicate(context.Background(), callRequest(tt.args))
			require.NoError(t, err)
			assert.True(t, res.IsError)
			assert.Contains(t, resultText(t, res), tt.want)
		})
	}
	assert.Empty(t, fake.quickEvals)
}

func TestTestPredicateEvaluationFailure(t *testing.T) {
	s, fake, _ := newTestServer(t)
	fake.err = errors.New("compilation failed")
	query := writeFile(t, t.TempDir(), "q.ql", sampleQuery)

	res, err := s.handleTestPredicate(context.Background(), callRequest(map[string]any{
		"file": query, "db": "/db", "symbol": "Foo",
	}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "CodeQL evaluation failed: compilation failed")
}

func TestEvaluateQueryChecksSyntaxFirst(t *testing.T) {
	s, fake, cli := newTestServer(t, codeqltest.Case{Prefix: "query compile"})
	query := writeFile(t, t.TempDir(), "q.ql", sampleQuery)

	res, err := s.handleEvaluateQuery(context.Background(), callRequest(map[string]any{
		"query_path": query, "db_path": "/dbs/app",
	}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, "/tmp/eval.bqrs", resultText(t, res))
	assert.Equal(t, []string{query + "|/dbs/app|/tmp/eval.bqrs"}, fake.evaluated)
	assert.Equal(t, []string{"query compile " + query + " --check-only"}, cli.Calls())
}

func TestEvaluateQuerySyntaxError(t *testing.T) {
	s, fake, _ := newTestServer(t, codeqltest.Case{
		Prefix: "query compile",
		Stderr: "ERROR: could not resolve type Bar\n",
		Exit:   1,
	})
	query := writeFile(t, t.TempDir(), "q.ql", sampleQuery)

	res, err := s.handleEvaluateQuery(context.Background(), callRequest(map[string]any{
		"query_path": query, "db_path": "/dbs/app",
	}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "Error: Query validation failed:\nERROR: could not resolve type Bar")
	assert.Empty(t, fake.evaluated)
}

func TestDecodeBQRSDefaultsToJSON(t *testing.T) {
	s, fake, _ := newTestServer(t)

	res, err := s.handleDecodeBQRS(context.Background(), callRequest(map[string]any{"bqrs_path": "/tmp/eval.bqrs"}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"#select":{"tuples":[]}}`, resultText(t, res))
	assert.Equal(t, []string{"/tmp/eval.bqrs|json"}, fake.decoded)

	_, err = s.handleDecodeBQRS(context.Background(), callRequest(map[string]any{"bqrs_path": "/tmp/x.bqrs", "fmt": "csv"}))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x.bqrs|csv", fake.decoded[1])
}

func TestListSupportedLanguages(t *testing.T) {
	s, _, _ := newTestServer(t, codeqltest.Case{
		Prefix: "resolve languages",
		Stdout: "go (/opt/codeql/go)\npython (/opt/codeql/python)\n",
	})

	res, err := s.handleListLanguages(context.Background(), callRequest(nil))
	require.NoError(t, err)
	assert.JSONEq(t, `["go","python"]`, resultText(t, res))
}

func TestCreateDatabase(t *testing.T) {
	s, _, cli := newTestServer(t, codeqltest.Case{Prefix: "database create"})
	src := t.TempDir()

	res, err := s.handleCreateDatabase(context.Background(), callRequest(map[string]any{
		"source_path": src, "language": "go", "db_path": "/tmp/db", "command": "make", "overwrite": true,
	}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, "Database created successfully at: /tmp/db", resultText(t, res))
	assert.Equal(t, []string{"database create /tmp/db --language=go --command make --overwrite --source-root " + src}, cli.Calls())
}

func TestAnalyzeDatabaseDefaults(t *testing.T) {
	s, _, cli := newTestServer(t, codeqltest.Case{Prefix: "database analyze"})

	res, err := s.handleAnalyzeDatabase(context.Background(), callRequest(map[string]any{
		"db_path": "/dbs/app", "query_or_suite": "codeql/go-queries",
	}))
	require.NoError(t, err)
	assert.Equal(t, "Analysis completed. Results saved to: /tmp/analysis.sarif", resultText(t, res))
	assert.Equal(t, []string{"database analyze /dbs/app codeql/go-queries --format=sarif-latest --output=/tmp/analysis.sarif"}, cli.Calls())
}

func TestCLIFailureBecomesToolError(t *testing.T) {
	s, _, _ := newTestServer(t, codeqltest.Case{Prefix: "database analyze", Stderr: "no such suite", Exit: 2})

	res, err := s.handleAnalyzeDatabase(context.Background(), callRequest(map[string]any{
		"db_path": "/dbs/app", "query_or_suite": "bogus.qls",
	}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "Analysis failed: no such suite")
}

func TestDiscoverQueriesNeedsPackOrLanguage(t *testing.T) {
	s, _, _ := newTestServer(t)
	res, err := s.handleDiscoverQueries(context.Background(), callRequest(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "specify either language or pack name")
}

func TestFindSecurityQueriesNeedsLanguageOrDatabase(t *testing.T) {
	s, _, _ := newTestServer(t)
	res, err := s.handleFindSecurityQueries(context.Background(), callRequest(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "Either language or db_path must be specified")
}

func TestInstrumentCountsFailures(t *testing.T) {
	cli := codeqltest.New(t)
	m := metrics.New()
	s := New(&fakeQueryServer{runner: codeql.NewRunner(cli.Path)}, Options{Defaults: testDefaults, Metrics: m})

	ok := s.instrument("ok_tool", func(ctx context.Context, r mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultText("fine"), nil
	})
	bad := s.instrument("bad_tool", func(ctx context.Context, r mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultError("nope"), nil
	})
	_, _ = ok(context.Background(), callRequest(nil))
	_, _ = bad(context.Background(), callRequest(nil))

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	statuses := map[string]string{}
	for _, f := range families {
		if f.GetName() != "codeql_relay_mcp_tool_calls_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			labels := map[string]string{}
			for _, l := range metric.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			statuses[labels["tool"]] = labels["status"]
		}
	}
	assert.Equal(t, map[string]string{"ok_tool": "ok", "bad_tool": "error"}, statuses)
}

func TestProgressRelayWithoutTokenOnlyLogs(t *testing.T) {
	s, fake, _ := newTestServer(t)
	fake.progress = []queryserver.ProgressUpdate{{ID: 1, Step: 1, MaxStep: 2, Message: "Loading"}}

	assert.NotPanics(t, func() {
		_, _ = s.handleRegisterDatabase(context.Background(), callRequest(map[string]any{"db_path": makeDatabase(t, true)}))
	})
}

func TestToolErrorAppendsSuggestedActions(t *testing.T) {
	err := errors.WithHint(errors.New("engine down"), "Restart the relay")
	res := toolError("Failed: ", err)
	assert.True(t, res.IsError)
	text := resultText(t, res)
	assert.Contains(t, text, "Failed: engine down")
	assert.Contains(t, text, "Suggested actions:\n- Restart the relay")
}
