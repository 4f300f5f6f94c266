package symbols

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/harper/codeql-relay/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleQuery = `/**
 * @name Sample
 * @kind problem
 */
import javascript

class Foo extends Bar {
  Foo() { this = this }
}

predicate isVulnerable(DataFlow::Node n) {
  not isSafe(n)
}

boolean myPredicate(int x) {
  x = 1 and result = true
}

from Foo f
where isVulnerable(f)
select f, "class Hidden and predicate hiddenPred("
`

func writeQuery(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "query.ql")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestFindClass(t *testing.T) {
	path := writeQuery(t, sampleQuery)

	span, err := FindClass(path, "Foo")
	require.NoError(t, err)
	assert.Equal(t, Span{StartLine: 7, StartCol: 7, EndLine: 7, EndCol: 10}, span)
}

func TestFindClassOnLineFour(t *testing.T) {
	text := "import cpp\n\n// class Foo is documented below\nclass Foo extends Bar {\n}\n"
	span, err := FindClassInText(text, "Foo")
	require.NoError(t, err)
	assert.Equal(t, 4, span.StartLine)
	assert.Equal(t, span.StartLine, span.EndLine)
	assert.Equal(t, span.StartCol+3, span.EndCol)
	assert.Equal(t, 7, span.StartCol)
}

func TestFindPredicate(t *testing.T) {
	path := writeQuery(t, sampleQuery)

	tests := []struct {
		name string
		want Span
	}{
		{"isVulnerable", Span{StartLine: 11, StartCol: 11, EndLine: 11, EndCol: 23}},
		{"myPredicate", Span{StartLine: 15, StartCol: 9, EndLine: 15, EndCol: 20}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			span, err := FindPredicate(path, tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, span)
		})
	}
}

func TestCallsAreNotDeclarations(t *testing.T) {
	_, err := FindPredicateInText(sampleQuery, "isSafe")
	var nf *errors.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, errors.KindPredicate, nf.Kind)
}

func TestCommentsAndStringsIgnored(t *testing.T) {
	_, err := FindClassInText(sampleQuery, "Hidden")
	assert.Error(t, err)

	_, err = FindPredicateInText(sampleQuery, "hiddenPred")
	assert.Error(t, err)

	text := "/* class Foo */\n// class Foo\nclass Foo {}\n"
	span, err := FindClassInText(text, "Foo")
	require.NoError(t, err)
	assert.Equal(t, 3, span.StartLine)
}

func TestExactNameOnly(t *testing.T) {
	text := "class FooBar {}\nclass Foo {}\n"
	span, err := FindClassInText(text, "Foo")
	require.NoError(t, err)
	assert.Equal(t, 2, span.StartLine)

	_, err = FindClassInText("class FooBar {}", "Foo")
	assert.Error(t, err)
}

func TestFirstOccurrenceWins(t *testing.T) {
	text := "module A {\n  class Dup {}\n}\nmodule B {\n  class Dup {}\n}\n"
	span, err := FindClassInText(text, "Dup")
	require.NoError(t, err)
	assert.Equal(t, 2, span.StartLine)
}

func TestNotFoundMessages(t *testing.T) {
	path := writeQuery(t, sampleQuery)

	_, err := FindClass(path, "NonExistent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Class name 'NonExistent' not found")

	_, err = FindPredicate(path, "nonexistent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Predicate name 'nonexistent' not found")
}

func TestMissingFile(t *testing.T) {
	_, err := FindClass(filepath.Join(t.TempDir(), "missing.ql"), "Foo")
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestFindPrefersClass(t *testing.T) {
	path := writeQuery(t, sampleQuery)

	_, kind, err := Find(path, "Foo")
	require.NoError(t, err)
	assert.Equal(t, errors.KindClass, kind)

	span, kind, err := Find(path, "isVulnerable")
	require.NoError(t, err)
	assert.Equal(t, errors.KindPredicate, kind)
	assert.Equal(t, 11, span.StartLine)

	_, _, err = Find(path, "Nothing")
	assert.Error(t, err)
}

func TestUnicodeColumnsCountRunes(t *testing.T) {
	text := "/* é */ class Foo {}\n"
	span, err := FindClassInText(text, "Foo")
	require.NoError(t, err)
	assert.Equal(t, 15, span.StartCol)
}
