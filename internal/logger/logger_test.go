// ABOUTME: Tests for structured logging with verbosity control
// ABOUTME: Validates level prefixes, formatting and encoder switching

package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetVerbose(t *testing.T) {
	// Default should be non-verbose
	if IsVerbose() {
		t.Error("Logger should default to non-verbose")
	}

	SetVerbose(true)
	if !IsVerbose() {
		t.Error("SetVerbose(true) did not enable verbose mode")
	}

	SetVerbose(false)
	if IsVerbose() {
		t.Error("SetVerbose(false) did not disable verbose mode")
	}
}

func TestDebugLevel(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(nil)
	defer SetVerbose(false)

	// Debug should not show when not verbose
	SetVerbose(false)
	Debug("test debug message")
	if buf.Len() > 0 {
		t.Error("Debug output when not verbose")
	}

	// Debug should show when verbose
	SetVerbose(true)
	buf.Reset()
	Debug("test debug message")
	assert.Contains(t, buf.String(), "[DEBUG]")
	assert.Contains(t, buf.String(), "test debug message")
}

func TestLevelPrefixes(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(nil)

	tests := []struct {
		name   string
		log    func(string, ...interface{})
		prefix string
	}{
		{"info", Info, "[INFO]"},
		{"warn", Warn, "[WARN]"},
		{"error", Error, "[ERROR]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			tt.log("test %s message", tt.name)
			assert.Contains(t, buf.String(), tt.prefix)
			assert.Contains(t, buf.String(), "test "+tt.name+" message")
		})
	}
}

func TestFormatting(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(nil)

	Info("formatted %s: %d", "test", 42)
	output := buf.String()

	if !strings.Contains(output, "formatted test: 42") {
		t.Errorf("Formatting failed, got: %q", output)
	}
}

func TestNamedStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(nil)

	Named("queryserver").Infow("request sent", "id", 7, "method", "evaluation/runQuery")

	out := buf.String()
	assert.Contains(t, out, "queryserver")
	assert.Contains(t, out, "request sent")
	assert.Contains(t, out, "evaluation/runQuery")
}

func TestSetJSON(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetJSON(true)
	defer SetOutput(nil)
	defer SetJSON(false)

	Warn("json %s", "output")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "json output", entry["msg"])
}
