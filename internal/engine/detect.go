// ABOUTME: Detection of the CodeQL CLI and of container runtimes for container mode
// ABOUTME: Provides CLI discovery, version reporting, and Docker socket checks

package engine

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/harper/codeql-relay/internal/codeql"
	"github.com/harper/codeql-relay/internal/errors"
)

const versionTimeout = 15 * time.Second

// Where a CLI candidate came from.
const (
	SourceConfig = "config"
	SourceEnv    = "CODEQL_PATH"
	SourcePath   = "PATH"
	SourceHome   = "home"
)

// CLIInfo describes the CodeQL CLI that will be launched.
type CLIInfo struct {
	Path    string `json:"path"`
	Source  string `json:"source"`
	Version string `json:"version,omitempty"`
}

func (c CLIInfo) String() string {
	version := c.Version
	if version == "" {
		version = "unknown"
	}
	return fmt.Sprintf("codeql v%s @ %s (from %s)", version, c.Path, c.Source)
}

type candidate struct {
	path   string
	source string
}

// LocateCLI resolves the CLI executable, trying the configured path, then
// CODEQL_PATH, then PATH, then ~/codeql/codeql.
func LocateCLI(configured string) (CLIInfo, error) {
	var candidates []candidate
	if configured != "" {
		candidates = append(candidates, candidate{configured, SourceConfig})
	}
	if env := os.Getenv("CODEQL_PATH"); env != "" && env != configured {
		candidates = append(candidates, candidate{env, SourceEnv})
	}
	candidates = append(candidates,
		candidate{"codeql", SourcePath},
		candidate{filepath.Join(getHome(), "codeql", "codeql"), SourceHome},
	)

	var tried []string
	for _, c := range candidates {
		if resolved, ok := resolve(c.path); ok {
			return CLIInfo{Path: resolved, Source: c.source}, nil
		}
		tried = append(tried, c.path)
	}
	return CLIInfo{}, errors.WithHint(
		errors.Newf("CodeQL CLI not found (tried %s)", strings.Join(tried, ", ")),
		"Install the CodeQL CLI bundle and set engine.codeql_path or CODEQL_PATH",
	)
}

// resolve accepts bare names looked up on PATH and explicit file paths.
func resolve(path string) (string, bool) {
	if !strings.ContainsRune(path, filepath.Separator) {
		found, err := exec.LookPath(path)
		return found, err == nil
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() || info.Mode()&0o111 == 0 {
		return "", false
	}
	return path, true
}

// Version runs `codeql version --format=terse`.
func Version(ctx context.Context, runner *codeql.Runner) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()

	res, err := runner.Run(ctx, "version", "--format=terse")
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", errors.Newf("codeql version failed: %s", strings.TrimSpace(res.Stderr))
	}
	return strings.TrimSpace(res.Stdout), nil
}

// Report is everything `codeql-relay detect` prints.
type Report struct {
	CLI      *CLIInfo      `json:"cli,omitempty"`
	CLIError string        `json:"cli_error,omitempty"`
	Runtimes []RuntimeInfo `json:"runtimes"`
	Best     *RuntimeInfo  `json:"best_runtime,omitempty"`
}

// Detect locates the CLI, reads its version, and probes container runtimes.
func Detect(ctx context.Context, configured string) Report {
	var report Report
	cli, err := LocateCLI(configured)
	if err != nil {
		report.CLIError = err.Error()
	} else {
		if v, err := Version(ctx, codeql.NewRunner(cli.Path)); err == nil {
			cli.Version = v
		}
		report.CLI = &cli
	}
	report.Runtimes = DetectAll()
	report.Best = best(report.Runtimes)
	return report
}

// getHome returns HOME with fallback to current directory
func getHome() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if cwd, err := os.Getwd(); err == nil {
		return cwd
	}
	return "."
}
