// ABOUTME: Locates class and predicate declarations in QL source
// ABOUTME: Returns the 1-based span of the identifier token for quick evaluation

package symbols

import (
	"os"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/harper/codeql-relay/internal/errors"
)

// Span is the 1-based position of an identifier. EndCol is StartCol plus the
// identifier length.
type Span struct {
	StartLine int `json:"startLine"`
	StartCol  int `json:"startCol"`
	EndLine   int `json:"endLine"`
	EndCol    int `json:"endCol"`
}

// Words that can precede "name(" without it being a declaration.
var nonTypeWords = map[string]bool{
	"and": true, "or": true, "not": true, "implies": true,
	"if": true, "then": true, "else": true,
	"exists": true, "forall": true, "forex": true,
	"from": true, "where": true, "select": true,
	"in": true, "instanceof": true, "as": true,
	"import": true, "module": true, "class": true, "extends": true,
	"result": true, "this": true, "super": true,
	"any": true, "none": true, "count": true, "strictcount": true,
	"sum": true, "strictsum": true, "min": true, "max": true, "avg": true,
	"rank": true, "concat": true, "strictconcat": true, "unique": true,
	"order": true, "by": true, "asc": true, "desc": true,
}

// FindClass locates "class <name>" in the file at path.
func FindClass(path, name string) (Span, error) {
	text, err := readSource(path)
	if err != nil {
		return Span{}, err
	}
	return find(text, name, path, errors.KindClass)
}

// FindPredicate locates "predicate <name>(" or "<type> <name>(" in the file at path.
func FindPredicate(path, name string) (Span, error) {
	text, err := readSource(path)
	if err != nil {
		return Span{}, err
	}
	return find(text, name, path, errors.KindPredicate)
}

// FindClassInText is FindClass over source already in memory.
func FindClassInText(text, name string) (Span, error) {
	return find(text, name, "", errors.KindClass)
}

// FindPredicateInText is FindPredicate over source already in memory.
func FindPredicateInText(text, name string) (Span, error) {
	return find(text, name, "", errors.KindPredicate)
}

// Find tries a class first, then a predicate, and reports which matched.
func Find(path, name string) (Span, string, error) {
	text, err := readSource(path)
	if err != nil {
		return Span{}, "", err
	}
	if span, err := find(text, name, path, errors.KindClass); err == nil {
		return span, errors.KindClass, nil
	}
	span, err := find(text, name, path, errors.KindPredicate)
	if err != nil {
		return Span{}, "", err
	}
	return span, errors.KindPredicate, nil
}

func readSource(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", errors.NewFileNotFoundError(path)
		}
		return "", errors.Wrapf(err, "read %s", path)
	}
	return string(data), nil
}

func find(text, name, path, kind string) (Span, error) {
	notFound := errors.NewSymbolNotFoundError(kind, name, path)
	if name == "" {
		return Span{}, notFound
	}

	masked := mask(text)
	quoted := regexp.QuoteMeta(name)

	var re *regexp.Regexp
	if kind == errors.KindClass {
		re = regexp.MustCompile(`\bclass\s+(` + quoted + `)\b`)
	} else {
		re = regexp.MustCompile(`\b([A-Za-z_][A-Za-z0-9_]*(?:::[A-Za-z_][A-Za-z0-9_]*)*)\s+(` + quoted + `)\s*\(`)
	}

	for _, m := range re.FindAllStringSubmatchIndex(masked, -1) {
		nameStart := m[2]
		if kind == errors.KindPredicate {
			if nonTypeWords[masked[m[2]:m[3]]] {
				continue
			}
			nameStart = m[4]
		}
		return spanAt(masked, nameStart, name), nil
	}
	return Span{}, notFound
}

func spanAt(text string, offset int, name string) Span {
	before := text[:offset]
	line := strings.Count(before, "\n") + 1
	lineStart := strings.LastIndexByte(before, '\n') + 1
	col := utf8.RuneCountInString(before[lineStart:]) + 1
	return Span{
		StartLine: line,
		StartCol:  col,
		EndLine:   line,
		EndCol:    col + utf8.RuneCountInString(name),
	}
}

// mask blanks out comments and string literals rune for rune, keeping line
// breaks, so offsets in the result map to the same line and column.
func mask(text string) string {
	const (
		code = iota
		lineComment
		blockComment
		stringLit
	)

	var b strings.Builder
	b.Grow(len(text))
	state := code
	escaped := false

	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		next := byte(0)
		if i+size < len(text) {
			next = text[i+size]
		}

		switch state {
		case code:
			switch {
			case r == '/' && next == '/':
				state = lineComment
				b.WriteString("  ")
				i += 2
				continue
			case r == '/' && next == '*':
				state = blockComment
				b.WriteString("  ")
				i += 2
				continue
			case r == '"':
				state = stringLit
				escaped = false
				b.WriteByte(' ')
			default:
				b.WriteRune(r)
			}
		case lineComment:
			if r == '\n' {
				state = code
				b.WriteByte('\n')
			} else {
				b.WriteByte(' ')
			}
		case blockComment:
			switch {
			case r == '*' && next == '/':
				state = code
				b.WriteString("  ")
				i += 2
				continue
			case r == '\n':
				b.WriteByte('\n')
			default:
				b.WriteByte(' ')
			}
		case stringLit:
			switch {
			case escaped:
				escaped = false
				b.WriteByte(' ')
			case r == '\\':
				escaped = true
				b.WriteByte(' ')
			case r == '"':
				state = code
				b.WriteByte(' ')
			case r == '\n':
				b.WriteByte('\n')
			default:
				b.WriteByte(' ')
			}
		}
		i += size
	}
	return b.String()
}
