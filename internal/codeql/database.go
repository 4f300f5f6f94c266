// ABOUTME: Database creation and metadata lookup through the codeql CLI
// ABOUTME: Metadata is cached per absolute path with concurrent lookups collapsed

package codeql

import (
	"context"
	"encoding/json"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/harper/codeql-relay/internal/errors"
)

type CreateOptions struct {
	SourceRoot string
	Language   string
	DBPath     string
	// Command is the build command for compiled languages.
	Command   string
	Overwrite bool
}

// CreateDatabase runs "codeql database create".
func (r *Runner) CreateDatabase(ctx context.Context, opts CreateOptions) error {
	args := []string{"database", "create", opts.DBPath, "--language=" + opts.Language}
	if opts.Command != "" {
		args = append(args, "--command", opts.Command)
	}
	if opts.Overwrite {
		args = append(args, "--overwrite")
	}
	dir := "."
	if opts.SourceRoot != "" {
		args = append(args, "--source-root", opts.SourceRoot)
		dir = opts.SourceRoot
	}

	res, err := r.RunIn(ctx, dir, args...)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return commandFailed("Failed to create database", res)
	}
	return nil
}

type DatabaseInfo struct {
	Path        string            `json:"path"`
	Language    string            `json:"language"`
	LinesOfCode int               `json:"lines_of_code,omitempty"`
	Properties  map[string]string `json:"properties,omitempty"`
}

// DatabaseInfo resolves metadata for the database at path. Results are
// cached; failures are not.
func (r *Runner) DatabaseInfo(ctx context.Context, path string) (*DatabaseInfo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %s", path)
	}

	r.infoMu.RLock()
	cached, ok := r.infoCache[abs]
	r.infoMu.RUnlock()
	if ok {
		return cached, nil
	}

	v, err, _ := r.infoGroup.Do(abs, func() (interface{}, error) {
		r.infoMu.RLock()
		cached, ok := r.infoCache[abs]
		r.infoMu.RUnlock()
		if ok {
			return cached, nil
		}

		info, err := r.lookupDatabaseInfo(ctx, abs)
		if err != nil {
			return nil, err
		}
		r.infoMu.Lock()
		r.infoCache[abs] = info
		r.infoMu.Unlock()
		return info, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*DatabaseInfo), nil
}

// ForgetDatabaseInfo drops the cached entry for path.
func (r *Runner) ForgetDatabaseInfo(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return
	}
	r.infoMu.Lock()
	delete(r.infoCache, abs)
	r.infoMu.Unlock()
}

func (r *Runner) lookupDatabaseInfo(ctx context.Context, abs string) (*DatabaseInfo, error) {
	res, err := r.Run(ctx, "resolve", "database", abs)
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, commandFailed("Failed to get database info", res)
	}

	info := parseResolveDatabase(res.Stdout)
	info.Path = abs

	baseline, err := r.Run(ctx, "database", "print-baseline", "--", abs)
	if err == nil && baseline.ExitCode == 0 {
		info.LinesOfCode = parseBaseline(baseline.Stdout)
	}
	return info, nil
}

// parseResolveDatabase accepts the CLI's JSON output and falls back to
// "key: value" lines, where a bare line names the language.
func parseResolveDatabase(out string) *DatabaseInfo {
	info := &DatabaseInfo{Properties: map[string]string{}}

	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(out), &doc); err == nil {
		for k, v := range doc {
			switch val := v.(type) {
			case string:
				info.Properties[k] = val
			case []interface{}:
				if k == "languages" && len(val) > 0 {
					if lang, ok := val[0].(string); ok {
						info.Language = lang
					}
				}
			case float64, bool:
				info.Properties[k] = strings.TrimSpace(jsonScalar(val))
			}
		}
		if lang, ok := info.Properties["language"]; ok && info.Language == "" {
			info.Language = lang
			delete(info.Properties, "language")
		}
		return info
	}

	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if ok && !strings.Contains(value, ":") {
			key = strings.TrimSpace(key)
			value = strings.TrimSpace(value)
			if strings.Contains(strings.ToLower(key), "language") {
				info.Language = value
			} else {
				info.Properties[key] = value
			}
			continue
		}
		if !ok && info.Language == "" {
			info.Language = line
		}
	}
	return info
}

func jsonScalar(v interface{}) string {
	b, _ := json.Marshal(v)
	return string(b)
}

var firstNumber = regexp.MustCompile(`\d+`)

func parseBaseline(out string) int {
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "baseline of") && strings.Contains(line, "lines") {
			if m := firstNumber.FindString(line); m != "" {
				n, _ := strconv.Atoi(m)
				return n
			}
		}
	}
	return 0
}
