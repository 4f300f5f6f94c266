// ABOUTME: Suite-based database analysis through "codeql database analyze"
// ABOUTME: Security scans pick the security-extended suite for the database language

package codeql

import (
	"context"
	"fmt"
	"strings"

	"github.com/harper/codeql-relay/internal/errors"
)

const DefaultAnalysisFormat = "sarif-latest"

var formatExtensions = map[string]string{
	"sarif-latest": ".sarif",
	"sarif":        ".sarif",
	"csv":          ".csv",
}

// OutputFile appends the extension for format to base.
func OutputFile(base, format string) string {
	ext, ok := formatExtensions[format]
	if !ok {
		ext = ".txt"
	}
	return base + ext
}

// AnalyzeDatabase runs a query or suite and returns the report path.
func (r *Runner) AnalyzeDatabase(ctx context.Context, dbPath, querySuite, format, outputBase string) (string, error) {
	if format == "" {
		format = DefaultAnalysisFormat
	}
	out := OutputFile(outputBase, format)

	res, err := r.Run(ctx, "database", "analyze", dbPath, querySuite, "--format="+format, "--output="+out)
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", commandFailed("Analysis failed", res)
	}
	return out, nil
}

// RunSecurityScan analyzes dbPath with the security-extended suite for
// language, detecting the language from the database when empty.
func (r *Runner) RunSecurityScan(ctx context.Context, dbPath, language, outputBase string) (string, error) {
	if language == "" {
		info, err := r.DatabaseInfo(ctx, dbPath)
		if err != nil {
			return "", err
		}
		if info.Language == "" {
			return "", errors.NewValidationError(dbPath, "Could not determine language from database")
		}
		language = info.Language
	}

	packs, err := r.QueryPacks(ctx)
	if err != nil {
		return "", err
	}
	pack, ok := packs.PackForLanguage(language)
	if !ok {
		return "", errors.NewValidationError(language, fmt.Sprintf("Unsupported language: %s. Supported: %s",
			language, strings.Join(packs.Languages(), ", ")))
	}
	suite := pack.SecurityExtendedSuite()
	if suite == "" {
		return "", errors.NewValidationError(language, "Invalid suites data for language: "+language)
	}

	out := OutputFile(outputBase, DefaultAnalysisFormat)
	res, err := r.Run(ctx, "database", "analyze", dbPath, suite, "--format="+DefaultAnalysisFormat, "--output="+out)
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", commandFailed("Security scan failed", res)
	}
	return out, nil
}
