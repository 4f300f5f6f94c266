// ABOUTME: Language, pack, and query discovery through the codeql CLI
// ABOUTME: Includes the vulnerability keyword table used to group security queries

package codeql

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sort"
	"strings"

	"github.com/harper/codeql-relay/internal/errors"
)

// SupportedLanguages lists extractor names from "codeql resolve languages".
func (r *Runner) SupportedLanguages(ctx context.Context) ([]string, error) {
	res, err := r.Run(ctx, "resolve", "languages")
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, commandFailed("Error getting languages", res)
	}

	var langs []string
	for _, line := range strings.Split(strings.TrimSpace(res.Stdout), "\n") {
		if fields := strings.Fields(line); len(fields) > 0 {
			langs = append(langs, fields[0])
		}
	}
	return langs, nil
}

type QueryPack struct {
	Pack   string   `json:"pack"`
	Suites []string `json:"suites"`
}

// SecurityExtendedSuite is the suite RunSecurityScan uses.
func (p QueryPack) SecurityExtendedSuite() string {
	if len(p.Suites) < 2 {
		return ""
	}
	return p.Suites[1]
}

type PackListing struct {
	Packs map[string]QueryPack `json:"packs"`
	// Fallback is set when the CLI could not list packs and defaults were used.
	Fallback bool   `json:"fallback,omitempty"`
	Message  string `json:"message,omitempty"`
}

var defaultPacks = map[string]string{
	"python":     "codeql/python-queries",
	"javascript": "codeql/javascript-queries",
	"java":       "codeql/java-queries",
	"csharp":     "codeql/csharp-queries",
	"cpp":        "codeql/cpp-queries",
	"go":         "codeql/go-queries",
	"ruby":       "codeql/ruby-queries",
}

// Extractor names whose packs are listed under a broader display language.
var displayLanguages = map[string]string{
	"javascript": "javascript-typescript",
	"java":       "java-kotlin",
	"cpp":        "c-cpp",
}

// Languages accepted by DiscoverQueries and the pack each maps to.
var languagePacks = map[string]string{
	"python":     "codeql/python-queries",
	"javascript": "codeql/javascript-queries",
	"typescript": "codeql/javascript-queries",
	"java":       "codeql/java-queries",
	"kotlin":     "codeql/java-queries",
	"csharp":     "codeql/csharp-queries",
	"cpp":        "codeql/cpp-queries",
	"c":          "codeql/cpp-queries",
	"go":         "codeql/go-queries",
	"ruby":       "codeql/ruby-queries",
	"swift":      "codeql/swift-queries",
	"rust":       "codeql/rust-queries",
}

func packFor(packName string) (string, QueryPack) {
	packName, _, _ = strings.Cut(packName, "@")
	lang := strings.TrimSuffix(strings.TrimPrefix(packName, "codeql/"), "-queries")
	display := lang
	if d, ok := displayLanguages[lang]; ok {
		display = d
	}
	return display, QueryPack{
		Pack: packName,
		Suites: []string{
			packName + ":codeql-suites/" + lang + "-code-scanning.qls",
			packName + ":codeql-suites/" + lang + "-security-extended.qls",
			packName + ":codeql-suites/" + lang + "-security-and-quality.qls",
		},
	}
}

// QueryPacks lists installed query packs by display language. When the CLI
// cannot list packs the standard packs are returned with Fallback set.
func (r *Runner) QueryPacks(ctx context.Context) (*PackListing, error) {
	res, err := r.Run(ctx, "resolve", "packs", "--kind=query")
	if err != nil && !IsNotInstalled(err) {
		return nil, err
	}
	if err != nil || res.ExitCode != 0 {
		listing := &PackListing{
			Packs:    make(map[string]QueryPack, len(defaultPacks)),
			Fallback: true,
			Message:  "Could not dynamically list packs, using defaults",
		}
		for _, name := range defaultPacks {
			display, pack := packFor(name)
			listing.Packs[display] = pack
		}
		return listing, nil
	}

	listing := &PackListing{Packs: map[string]QueryPack{}}
	for _, line := range strings.Split(strings.TrimSpace(res.Stdout), "\n") {
		for _, field := range strings.Fields(line) {
			if strings.Contains(field, "codeql/") && strings.Contains(field, "-queries") {
				name, _, _ := strings.Cut(field, "(")
				display, pack := packFor(strings.TrimSpace(name))
				listing.Packs[display] = pack
				break
			}
		}
	}
	if len(listing.Packs) == 0 {
		listing.Message = "No query packs found. Install CodeQL packs first."
	}
	return listing, nil
}

// PackForLanguage finds the pack for an extractor or display language name.
func (l *PackListing) PackForLanguage(language string) (QueryPack, bool) {
	if p, ok := l.Packs[language]; ok {
		return p, true
	}
	if d, ok := displayLanguages[language]; ok {
		if p, ok := l.Packs[d]; ok {
			return p, true
		}
	}
	return QueryPack{}, false
}

// Languages lists the listing's keys in order.
func (l *PackListing) Languages() []string {
	out := make([]string, 0, len(l.Packs))
	for k := range l.Packs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type QueryInfo struct {
	Path     string `json:"path"`
	Language string `json:"language"`
	Filename string `json:"filename"`
}

// DiscoverQueries resolves the queries of a pack, or of the standard pack for
// language, keeping those whose path contains category.
func (r *Runner) DiscoverQueries(ctx context.Context, packName, language, category string) ([]QueryInfo, error) {
	args := []string{"resolve", "queries", "--format=bylanguage"}
	switch {
	case packName != "":
		args = append(args, packName)
	case language != "":
		pack, ok := languagePacks[strings.ToLower(language)]
		if !ok {
			return nil, errors.NewValidationError(language, "Unsupported language: "+language)
		}
		args = append(args, pack)
	default:
		return nil, errors.NewValidationError("", "specify either language or pack name")
	}

	res, err := r.Run(ctx, args...)
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, commandFailed("Error discovering queries", res)
	}
	return parseByLanguage(res.Stdout, category)
}

func parseByLanguage(out, category string) ([]QueryInfo, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		return nil, errors.Wrap(err, "parse resolve queries output")
	}
	if inner, ok := doc["byLanguage"]; ok {
		doc = nil
		if err := json.Unmarshal(inner, &doc); err != nil {
			return nil, errors.Wrap(err, "parse byLanguage section")
		}
	}

	extractors := make([]string, 0, len(doc))
	for k := range doc {
		extractors = append(extractors, k)
	}
	sort.Strings(extractors)

	category = strings.ToLower(category)
	queries := []QueryInfo{}
	for _, extractor := range extractors {
		var byPath map[string]json.RawMessage
		if err := json.Unmarshal(doc[extractor], &byPath); err != nil {
			continue
		}
		paths := make([]string, 0, len(byPath))
		for p := range byPath {
			paths = append(paths, p)
		}
		sort.Strings(paths)

		for _, p := range paths {
			if category != "" && !strings.Contains(strings.ToLower(p), category) {
				continue
			}
			queries = append(queries, QueryInfo{Path: p, Language: extractor, Filename: filepath.Base(p)})
		}
	}
	return queries, nil
}

type vulnPattern struct {
	name     string
	keywords []string
}

var vulnPatterns = []vulnPattern{
	{"sql_injection", []string{"sql", "injection", "sqli", "cwe-089"}},
	{"xss", []string{"xss", "cross-site", "scripting", "cwe-079"}},
	{"command_injection", []string{"command", "injection", "exec", "cwe-078"}},
	{"path_traversal", []string{"path", "traversal", "directory", "cwe-022"}},
	{"hardcoded_credentials", []string{"hardcoded", "credentials", "password", "cwe-798"}},
	{"csrf", []string{"csrf", "cross-site", "request", "forgery", "cwe-352"}},
	{"deserialization", []string{"deserialization", "pickle", "unmarshal", "cwe-502"}},
	{"xxe", []string{"xxe", "xml", "external", "entity", "cwe-611"}},
	{"ldap_injection", []string{"ldap", "injection", "cwe-090"}},
	{"code_injection", []string{"code", "injection", "eval", "cwe-094"}},
	{"buffer_overflow", []string{"buffer", "overflow", "bounds", "cwe-119", "cwe-120"}},
	{"use_after_free", []string{"use", "after", "free", "cwe-416"}},
	{"null_pointer", []string{"null", "pointer", "dereference", "cwe-476"}},
	{"integer_overflow", []string{"integer", "overflow", "cwe-190"}},
	{"weak_crypto", []string{"crypto", "cryptography", "weak", "md5", "sha1", "cwe-327"}},
	{"insecure_random", []string{"random", "insecure", "predictable", "cwe-338"}},
}

// VulnerabilityTypes lists the categories FindSecurityQueries groups by.
func VulnerabilityTypes() []string {
	out := make([]string, len(vulnPatterns))
	for i, p := range vulnPatterns {
		out[i] = p.name
	}
	return out
}

// FindSecurityQueries groups the security queries for a language by
// vulnerability type. The language comes from dbPath when not given.
func (r *Runner) FindSecurityQueries(ctx context.Context, language, vulnType, dbPath string) (map[string][]QueryInfo, error) {
	if language == "" && dbPath != "" {
		info, err := r.DatabaseInfo(ctx, dbPath)
		if err != nil {
			return nil, err
		}
		if info.Language == "" {
			return nil, errors.NewValidationError(dbPath, "Could not determine language from database")
		}
		language = info.Language
	}
	if language == "" {
		return nil, errors.NewValidationError("", "Either language or db_path must be specified")
	}

	queries, err := r.DiscoverQueries(ctx, "", language, "security")
	if err != nil {
		return nil, err
	}
	return groupByVulnerability(queries, vulnType), nil
}

func groupByVulnerability(queries []QueryInfo, vulnType string) map[string][]QueryInfo {
	vulnType = strings.ToLower(vulnType)
	grouped := map[string][]QueryInfo{}
	for _, q := range queries {
		path := strings.ToLower(q.Path)
		name := strings.ToLower(q.Filename)
		for _, p := range vulnPatterns {
			if vulnType != "" && vulnType != p.name {
				continue
			}
			for _, kw := range p.keywords {
				if strings.Contains(path, kw) || strings.Contains(name, kw) {
					grouped[p.name] = append(grouped[p.name], q)
					break
				}
			}
		}
	}
	return grouped
}
