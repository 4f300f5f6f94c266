// ABOUTME: Scripted stand-in for the codeql CLI used by package tests
// ABOUTME: Matches argument prefixes to canned stdout, stderr, and exit codes

package codeqltest

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// Case answers every invocation whose arguments start with Prefix.
type Case struct {
	Prefix string
	Stdout string
	Stderr string
	Exit   int
	// Sleep delays the answer, in seconds.
	Sleep int
}

type CLI struct {
	Path string
	log  string
}

// New writes a shell script answering cases in order. Unmatched invocations
// exit 2 with the arguments on stderr.
func New(t *testing.T, cases ...Case) *CLI {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake codeql CLI needs a POSIX shell")
	}

	dir := t.TempDir()
	cli := &CLI{Path: filepath.Join(dir, "codeql"), log: filepath.Join(dir, "calls.log")}

	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	fmt.Fprintf(&b, "echo \"$*\" >> '%s'\n", cli.log)
	b.WriteString("case \"$*\" in\n")
	for i, c := range cases {
		out := filepath.Join(dir, fmt.Sprintf("out%d", i))
		errOut := filepath.Join(dir, fmt.Sprintf("err%d", i))
		writeFile(t, out, c.Stdout)
		writeFile(t, errOut, c.Stderr)

		fmt.Fprintf(&b, "  \"%s\"*)\n", c.Prefix)
		if c.Sleep > 0 {
			fmt.Fprintf(&b, "    sleep %d\n", c.Sleep)
		}
		fmt.Fprintf(&b, "    cat '%s'\n    cat '%s' >&2\n    exit %d\n    ;;\n", out, errOut, c.Exit)
	}
	b.WriteString("esac\necho \"unexpected codeql invocation: $*\" >&2\nexit 2\n")

	if err := os.WriteFile(cli.Path, []byte(b.String()), 0755); err != nil {
		t.Fatalf("write fake codeql: %v", err)
	}
	return cli
}

// Calls returns the argument lines of every invocation so far.
func (c *CLI) Calls() []string {
	data, err := os.ReadFile(c.log)
	if err != nil {
		return nil
	}
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
