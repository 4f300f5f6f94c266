// ABOUTME: MCP tool surface exposing the query server and codeql CLI to agents
// ABOUTME: Serves the CodeQL tool set over streamable HTTP or stdio with mark3labs/mcp-go

package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/harper/codeql-relay/internal/codeql"
	"github.com/harper/codeql-relay/internal/config"
	"github.com/harper/codeql-relay/internal/errors"
	"github.com/harper/codeql-relay/internal/logger"
	"github.com/harper/codeql-relay/internal/metrics"
	"github.com/harper/codeql-relay/internal/queryserver"
	"github.com/harper/codeql-relay/internal/symbols"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const (
	ServerName    = "CodeQL"
	ServerVersion = "1.0.0"
)

// QueryServer is the part of queryserver.Client the tools drive.
type QueryServer interface {
	RegisterDatabasesAndWait(ctx context.Context, paths []string, onProgress queryserver.ProgressHandler) error
	EvaluateAndWait(ctx context.Context, query, db, output string, onProgress queryserver.ProgressHandler) error
	QuickEvaluateAndWait(ctx context.Context, query, db, output string, span symbols.Span, onProgress queryserver.ProgressHandler) error
	DecodeBQRS(ctx context.Context, path, format string) (string, error)
	Runner() *codeql.Runner
}

var _ QueryServer = (*queryserver.Client)(nil)

type Options struct {
	Defaults config.DefaultsConfig
	// RequestTimeout bounds each query-server wait. Zero waits indefinitely.
	RequestTimeout time.Duration
	SyntaxTimeout  time.Duration
	Metrics        *metrics.Metrics
}

// Server wraps the query-server client and exposes it via Model Context Protocol
type Server struct {
	qs     QueryServer
	runner *codeql.Runner
	opts   Options
	server *server.MCPServer
	tools  []string
}

func New(qs QueryServer, opts Options) *Server {
	s := &Server{
		qs:     qs,
		runner: qs.Runner(),
		opts:   opts,
		server: server.NewMCPServer(
			ServerName,
			ServerVersion,
			server.WithToolCapabilities(true),
			server.WithRecovery(),
		),
	}
	s.registerQueryTools()
	s.registerCLITools()
	return s
}

// MCP returns the underlying server for transports.
func (s *Server) MCP() *server.MCPServer {
	return s.server
}

// Tools lists registered tool names in registration order.
func (s *Server) Tools() []string {
	return append([]string(nil), s.tools...)
}

// ServeStdio serves MCP over the process's stdin and stdout until stdin
// closes or ctx ends.
func (s *Server) ServeStdio(ctx context.Context) error {
	return server.NewStdioServer(s.server).Listen(ctx, os.Stdin, os.Stdout)
}

// HTTPServer returns the streamable HTTP transport, mounted at /mcp.
func (s *Server) HTTPServer() *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(s.server)
}

func (s *Server) addTool(tool mcp.Tool, handler server.ToolHandlerFunc) {
	s.tools = append(s.tools, tool.Name)
	s.server.AddTool(tool, s.instrument(tool.Name, handler))
}

// instrument logs and counts every call.
func (s *Server) instrument(name string, handler server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		result, err := handler(ctx, request)
		failed := err != nil || (result != nil && result.IsError)
		s.opts.Metrics.ToolCall(name, failed)
		if failed {
			logger.Info("Tool %s failed after %s", name, time.Since(start).Round(time.Millisecond))
		} else {
			logger.Debug("Tool %s finished in %s", name, time.Since(start).Round(time.Millisecond))
		}
		return result, err
	}
}

// waitContext applies the configured request timeout.
func (s *Server) waitContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.RequestTimeout > 0 {
		return context.WithTimeout(ctx, s.opts.RequestTimeout)
	}
	return context.WithCancel(ctx)
}

// progressRelay logs engine progress and forwards it to the MCP client when
// the call carried a progress token.
func (s *Server) progressRelay(ctx context.Context, request mcp.CallToolRequest, operation string) queryserver.ProgressHandler {
	var token mcp.ProgressToken
	if request.Params.Meta != nil {
		token = request.Params.Meta.ProgressToken
	}
	srv := server.ServerFromContext(ctx)

	return func(u queryserver.ProgressUpdate) {
		logger.Debug("[progress] %s: %s", operation, u.Message)
		if token == nil || srv == nil {
			return
		}
		params := map[string]any{
			"progressToken": token,
			"progress":      u.Step,
			"message":       u.Message,
		}
		if !u.Textual {
			params["total"] = u.MaxStep
		}
		if err := srv.SendNotificationToClient(ctx, "notifications/progress", params); err != nil {
			logger.Debug("progress notification dropped: %v", err)
		}
	}
}

// toolError renders err for the calling agent, followed by any suggested
// actions the error carries.
func toolError(prefix string, err error) *mcp.CallToolResult {
	msg := err.Error()
	if prefix != "" {
		msg = prefix + msg
	}
	if actions := errors.SuggestedActions(err); len(actions) > 0 {
		msg += "\n\nSuggested actions:\n- " + strings.Join(actions, "\n- ")
	}
	return mcp.NewToolResultError(msg)
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func stringOr(request mcp.CallToolRequest, key, fallback string) string {
	if v := request.GetString(key, ""); v != "" {
		return v
	}
	return fallback
}
