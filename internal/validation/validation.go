// ABOUTME: Pre-flight checks for query files and database directories
// ABOUTME: Syntax checks run "codeql query compile --check-only" under a timeout

package validation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/harper/codeql-relay/internal/codeql"
	"github.com/harper/codeql-relay/internal/errors"
)

const DefaultSyntaxTimeout = 30 * time.Second

// ValidateQueryFile checks that path exists and is a .ql file.
func ValidateQueryFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		return errors.NewValidationError(path, "Query file not found: "+path)
	}
	if ext := filepath.Ext(path); ext != ".ql" {
		return errors.NewValidationError(path, "Query file must have .ql extension, got: "+ext)
	}
	return nil
}

// ValidateQuerySyntax compiles the query without evaluating it. A zero
// timeout means DefaultSyntaxTimeout.
func ValidateQuerySyntax(ctx context.Context, runner *codeql.Runner, path string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultSyntaxTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := runner.Run(ctx, "query", "compile", path, "--check-only")
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			return errors.NewValidationError(path, "Query validation timed out (complex query or system issue)")
		case codeql.IsNotInstalled(err):
			return errors.NewValidationError(path, "CodeQL CLI not found at: "+runner.Path())
		default:
			return errors.NewValidationError(path, fmt.Sprintf("Query validation error: %v", err))
		}
	}
	if res.ExitCode != 0 {
		return errors.NewValidationError(path, "Query validation failed:\n"+strings.TrimSpace(res.Stderr))
	}
	return nil
}

// ValidateDatabase checks that dir exists and holds the source archive the
// query server needs. The returned path is absolute.
func ValidateDatabase(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", errors.Wrapf(err, "resolve %s", dir)
	}
	if _, err := os.Stat(abs); err != nil {
		return "", errors.NewValidationError(dir, "Database path does not exist: "+dir)
	}
	if _, err := os.Stat(filepath.Join(abs, "src.zip")); err != nil {
		return "", errors.NewValidationError(dir, "Missing required src.zip in: "+dir)
	}
	return abs, nil
}
