// ABOUTME: MCP tools backed by the persistent query server
// ABOUTME: Database registration, quick evaluation, full evaluation, and BQRS decoding

package mcpserver

import (
	"context"
	"fmt"

	"github.com/harper/codeql-relay/internal/errors"
	"github.com/harper/codeql-relay/internal/queryserver"
	"github.com/harper/codeql-relay/internal/symbols"
	"github.com/harper/codeql-relay/internal/validation"
	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerQueryTools() {
	s.addTool(mcp.NewTool("register_database",
		mcp.WithDescription("Register a CodeQL database with the query server. "+
			"The directory must contain src.zip. Register before running queries against it."),
		mcp.WithString("db_path",
			mcp.Required(),
			mcp.Description("Path to database directory"),
		),
	), s.handleRegisterDatabase)

	s.addTool(mcp.NewTool("test_predicate",
		mcp.WithDescription("Quick-evaluate a single class or predicate from a query file. "+
			"Much faster than full evaluation. Returns the path of a .bqrs result file; read it with decode_bqrs."),
		mcp.WithString("file", mcp.Required(), mcp.Description("Path to .ql query file")),
		mcp.WithString("db", mcp.Required(), mcp.Description("Path to CodeQL database")),
		mcp.WithString("symbol", mcp.Required(), mcp.Description("Name of the class or predicate to evaluate")),
		mcp.WithString("output_path", mcp.Description("Where to write results (default "+s.opts.Defaults.QuickEvalOutput+")")),
	), s.handleTestPredicate)

	s.addTool(mcp.NewTool("decode_bqrs",
		mcp.WithDescription("Convert a binary .bqrs result file into json, csv, or text."),
		mcp.WithString("bqrs_path", mcp.Required(), mcp.Description("Path to .bqrs file")),
		mcp.WithString("fmt",
			mcp.Description("Output format (default json)"),
			mcp.Enum(queryserver.FormatJSON, queryserver.FormatCSV, queryserver.FormatText, queryserver.FormatBQRS),
		),
	), s.handleDecodeBQRS)

	s.addTool(mcp.NewTool("evaluate_query",
		mcp.WithDescription("Run a complete query file against a database. "+
			"The query is syntax-checked first. Returns the path of a .bqrs result file."),
		mcp.WithString("query_path", mcp.Required(), mcp.Description("Path to .ql query file")),
		mcp.WithString("db_path", mcp.Required(), mcp.Description("Path to CodeQL database")),
		mcp.WithString("output_path", mcp.Description("Where to write results (default "+s.opts.Defaults.EvalOutput+")")),
	), s.handleEvaluateQuery)
}

func (s *Server) handleRegisterDatabase(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dbPath, err := request.RequireString("db_path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if _, err := validation.ValidateDatabase(dbPath); err != nil {
		return toolError("", err), nil
	}

	waitCtx, cancel := s.waitContext(ctx)
	defer cancel()
	if err := s.qs.RegisterDatabasesAndWait(waitCtx, []string{dbPath}, s.progressRelay(ctx, request, "register")); err != nil {
		return toolError("Database registration failed: ", err), nil
	}
	return mcp.NewToolResultText("Database registered: " + dbPath), nil
}

func (s *Server) handleTestPredicate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	file, err := request.RequireString("file")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	db, err := request.RequireString("db")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	symbol, err := request.RequireString("symbol")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	output := stringOr(request, "output_path", s.opts.Defaults.QuickEvalOutput)

	if err := validation.ValidateQueryFile(file); err != nil {
		return toolError("Error: ", err), nil
	}

	span, kind, err := symbols.Find(file, symbol)
	if err != nil {
		var nf *errors.NotFoundError
		if errors.As(err, &nf) && nf.Kind != errors.KindFile {
			return mcp.NewToolResultError(fmt.Sprintf(
				"Error: Symbol '%s' not found in %s. Make sure the class or predicate name is correct.", symbol, file)), nil
		}
		return toolError("Error: ", err), nil
	}

	waitCtx, cancel := s.waitContext(ctx)
	defer cancel()
	if err := s.qs.QuickEvaluateAndWait(waitCtx, file, db, output, span, s.progressRelay(ctx, request, "quickeval "+kind+" "+symbol)); err != nil {
		return toolError("CodeQL evaluation failed: ", err), nil
	}
	return mcp.NewToolResultText(output), nil
}

func (s *Server) handleDecodeBQRS(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("bqrs_path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	format := stringOr(request, "fmt", queryserver.DefaultBQRSFormat)

	out, err := s.qs.DecodeBQRS(ctx, path, format)
	if err != nil {
		return toolError("", err), nil
	}
	return mcp.NewToolResultText(out), nil
}

func (s *Server) handleEvaluateQuery(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query_path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	db, err := request.RequireString("db_path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	output := stringOr(request, "output_path", s.opts.Defaults.EvalOutput)

	if err := validation.ValidateQueryFile(query); err != nil {
		return toolError("Error: ", err), nil
	}
	if err := validation.ValidateQuerySyntax(ctx, s.runner, query, s.opts.SyntaxTimeout); err != nil {
		return toolError("Error: ", err), nil
	}

	waitCtx, cancel := s.waitContext(ctx)
	defer cancel()
	if err := s.qs.EvaluateAndWait(waitCtx, query, db, output, s.progressRelay(ctx, request, "evaluate")); err != nil {
		return toolError("CodeQL evaluation failed: ", err), nil
	}
	return mcp.NewToolResultText(output), nil
}
