// ABOUTME: MCP tools backed by one-shot codeql CLI commands
// ABOUTME: Database creation and metadata, pack and query discovery, and suite analysis

package mcpserver

import (
	"context"

	"github.com/harper/codeql-relay/internal/codeql"
	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerCLITools() {
	s.addTool(mcp.NewTool("create_database",
		mcp.WithDescription("Build a CodeQL database from source code. "+
			"Compiled languages need a build command. Register the result with register_database before querying."),
		mcp.WithString("source_path", mcp.Required(), mcp.Description("Root directory of the source code")),
		mcp.WithString("language", mcp.Required(), mcp.Description("Language identifier (see list_supported_languages)")),
		mcp.WithString("db_path", mcp.Required(), mcp.Description("Where to create the database directory")),
		mcp.WithString("command", mcp.Description("Build command for compiled languages")),
		mcp.WithBoolean("overwrite", mcp.Description("Replace an existing database at db_path")),
	), s.handleCreateDatabase)

	s.addTool(mcp.NewTool("list_supported_languages",
		mcp.WithDescription("List language identifiers supported by the installed CodeQL extractors."),
	), s.handleListLanguages)

	s.addTool(mcp.NewTool("list_query_packs",
		mcp.WithDescription("List installed query packs by language with their standard suites."),
	), s.handleListQueryPacks)

	s.addTool(mcp.NewTool("discover_queries",
		mcp.WithDescription("List query files in a pack, or in the standard pack for a language. "+
			"Specify either pack_name or language."),
		mcp.WithString("pack_name", mcp.Description("Pack identifier from list_query_packs")),
		mcp.WithString("language", mcp.Description("Language whose standard pack to list")),
		mcp.WithString("category", mcp.Description("Keep only queries whose path contains this category")),
	), s.handleDiscoverQueries)

	s.addTool(mcp.NewTool("find_security_queries",
		mcp.WithDescription("Group security queries for a language by vulnerability type. "+
			"The language can be detected from db_path."),
		mcp.WithString("language", mcp.Description("Target language")),
		mcp.WithString("vulnerability_type",
			mcp.Description("Restrict to one vulnerability type"),
			mcp.Enum(codeql.VulnerabilityTypes()...),
		),
		mcp.WithString("db_path", mcp.Description("Database used to detect the language")),
	), s.handleFindSecurityQueries)

	s.addTool(mcp.NewTool("analyze_database",
		mcp.WithDescription("Run a query suite or query against a database and write a report "+
			"(SARIF by default). The extension is added to output_path."),
		mcp.WithString("db_path", mcp.Required(), mcp.Description("Path to CodeQL database")),
		mcp.WithString("query_or_suite", mcp.Required(), mcp.Description("Suite identifier, .qls file, or query")),
		mcp.WithString("output_format", mcp.Description("Report format (default "+codeql.DefaultAnalysisFormat+")")),
		mcp.WithString("output_path", mcp.Description("Report base path (default "+s.opts.Defaults.AnalysisOutput+")")),
	), s.handleAnalyzeDatabase)

	s.addTool(mcp.NewTool("get_database_info",
		mcp.WithDescription("Report a database's language, line count, and properties. Results are cached."),
		mcp.WithString("db_path", mcp.Required(), mcp.Description("Path to database directory")),
	), s.handleGetDatabaseInfo)

	s.addTool(mcp.NewTool("run_security_scan",
		mcp.WithDescription("Run the security-extended suite for the database language and write a SARIF report."),
		mcp.WithString("db_path", mcp.Required(), mcp.Description("Path to CodeQL database")),
		mcp.WithString("language", mcp.Description("Target language (detected from the database when omitted)")),
		mcp.WithString("output_path", mcp.Description("Report base path (default "+s.opts.Defaults.SecurityScanOutput+")")),
	), s.handleRunSecurityScan)
}

func (s *Server) handleCreateDatabase(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	source, err := request.RequireString("source_path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	language, err := request.RequireString("language")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	dbPath, err := request.RequireString("db_path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	err = s.runner.CreateDatabase(ctx, codeql.CreateOptions{
		SourceRoot: source,
		Language:   language,
		DBPath:     dbPath,
		Command:    request.GetString("command", ""),
		Overwrite:  request.GetBool("overwrite", false),
	})
	if err != nil {
		return toolError("", err), nil
	}
	s.runner.ForgetDatabaseInfo(dbPath)
	return mcp.NewToolResultText("Database created successfully at: " + dbPath), nil
}

func (s *Server) handleListLanguages(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	langs, err := s.runner.SupportedLanguages(ctx)
	if err != nil {
		return toolError("", err), nil
	}
	if langs == nil {
		langs = []string{}
	}
	return jsonResult(langs)
}

func (s *Server) handleListQueryPacks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	listing, err := s.runner.QueryPacks(ctx)
	if err != nil {
		return toolError("", err), nil
	}
	return jsonResult(listing)
}

func (s *Server) handleDiscoverQueries(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	queries, err := s.runner.DiscoverQueries(ctx,
		request.GetString("pack_name", ""),
		request.GetString("language", ""),
		request.GetString("category", ""),
	)
	if err != nil {
		return toolError("", err), nil
	}
	if queries == nil {
		queries = []codeql.QueryInfo{}
	}
	return jsonResult(queries)
}

func (s *Server) handleFindSecurityQueries(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	grouped, err := s.runner.FindSecurityQueries(ctx,
		request.GetString("language", ""),
		request.GetString("vulnerability_type", ""),
		request.GetString("db_path", ""),
	)
	if err != nil {
		return toolError("", err), nil
	}
	return jsonResult(grouped)
}

func (s *Server) handleAnalyzeDatabase(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dbPath, err := request.RequireString("db_path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	suite, err := request.RequireString("query_or_suite")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	out, err := s.runner.AnalyzeDatabase(ctx, dbPath, suite,
		stringOr(request, "output_format", codeql.DefaultAnalysisFormat),
		stringOr(request, "output_path", s.opts.Defaults.AnalysisOutput),
	)
	if err != nil {
		return toolError("", err), nil
	}
	return mcp.NewToolResultText("Analysis completed. Results saved to: " + out), nil
}

func (s *Server) handleGetDatabaseInfo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dbPath, err := request.RequireString("db_path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	info, err := s.runner.DatabaseInfo(ctx, dbPath)
	if err != nil {
		return toolError("", err), nil
	}
	return jsonResult(info)
}

func (s *Server) handleRunSecurityScan(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dbPath, err := request.RequireString("db_path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	out, err := s.runner.RunSecurityScan(ctx, dbPath,
		request.GetString("language", ""),
		stringOr(request, "output_path", s.opts.Defaults.SecurityScanOutput),
	)
	if err != nil {
		return toolError("", err), nil
	}
	return mcp.NewToolResultText("Security scan completed. Results saved to: " + out), nil
}
