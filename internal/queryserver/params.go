// ABOUTME: Request parameter shapes for the query-server evaluation methods
// ABOUTME: All paths are made absolute before they go on the wire

package queryserver

import (
	"path/filepath"

	"github.com/harper/codeql-relay/internal/symbols"
)

const (
	MethodRegisterDatabases   = "evaluation/registerDatabases"
	MethodDeregisterDatabases = "evaluation/deregisterDatabases"
	MethodRunQuery            = "evaluation/runQuery"
)

type databasesBody struct {
	Databases []string `json:"databases"`
}

type databasesParams struct {
	Body       databasesBody `json:"body"`
	ProgressID int64         `json:"progressId"`
}

// Position is the quick-evaluation span of a symbol, 1-based.
type Position struct {
	FileName  string `json:"fileName"`
	Line      int    `json:"line"`
	Column    int    `json:"column"`
	EndLine   int    `json:"endLine"`
	EndColumn int    `json:"endColumn"`
}

type quickEvalTarget struct {
	QuickEvalPos Position `json:"quickEvalPos"`
}

type queryTarget struct{}

// Target selects a whole-query run or a quick evaluation of one span.
type Target struct {
	Query     *queryTarget     `json:"query,omitempty"`
	QuickEval *quickEvalTarget `json:"quickEval,omitempty"`
}

type runQueryBody struct {
	QueryPath               string            `json:"queryPath"`
	DB                      string            `json:"db"`
	OutputPath              string            `json:"outputPath"`
	Target                  Target            `json:"target"`
	AdditionalPacks         []string          `json:"additionalPacks"`
	ExternalInputs          map[string]string `json:"externalInputs"`
	SingletonExternalInputs map[string]string `json:"singletonExternalInputs"`
}

type runQueryParams struct {
	Body       runQueryBody `json:"body"`
	ProgressID int64        `json:"progressId"`
}

// absPath resolves p against the working directory, falling back to a
// cleaned p if the working directory is unavailable.
func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}

func absPaths(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		out = append(out, absPath(p))
	}
	return out
}

func newDatabasesParams(paths []string, progressID int64) databasesParams {
	return databasesParams{
		Body:       databasesBody{Databases: absPaths(paths)},
		ProgressID: progressID,
	}
}

func newRunQueryParams(query, db, output string, target Target, progressID int64) runQueryParams {
	return runQueryParams{
		Body: runQueryBody{
			QueryPath:               absPath(query),
			DB:                      absPath(db),
			OutputPath:              absPath(output),
			Target:                  target,
			AdditionalPacks:         []string{},
			ExternalInputs:          map[string]string{},
			SingletonExternalInputs: map[string]string{},
		},
		ProgressID: progressID,
	}
}

func wholeQueryTarget() Target {
	return Target{Query: &queryTarget{}}
}

func quickEvalTargetFor(query string, span symbols.Span) Target {
	return Target{QuickEval: &quickEvalTarget{QuickEvalPos: Position{
		FileName:  absPath(query),
		Line:      span.StartLine,
		Column:    span.StartCol,
		EndLine:   span.EndLine,
		EndColumn: span.EndCol,
	}}}
}
