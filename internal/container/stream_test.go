// ABOUTME: Unit tests for Docker stream demuxing functionality
// ABOUTME: Tests separation of multiplexed stdout/stderr streams

package container

import (
	"bytes"
	"encoding/json"
	"io"
	"testing"

	"github.com/docker/docker/pkg/stdcopy"
	"github.com/harper/codeql-relay/internal/framing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// readStreamsConcurrently reads both stdout and stderr concurrently to avoid deadlock
func readStreamsConcurrently(t *testing.T, stdout, stderr io.Reader) (stdoutData, stderrData []byte) {
	t.Helper()
	type result struct {
		data []byte
		err  error
	}

	stderrChan := make(chan result, 1)
	go func() {
		data, err := io.ReadAll(stderr)
		stderrChan <- result{data, err}
	}()

	stdoutData, err := io.ReadAll(stdout)
	require.NoError(t, err)
	res := <-stderrChan
	require.NoError(t, res.err)
	return stdoutData, res.data
}

type chunk struct {
	stream stdcopy.StdType
	data   string
}

func multiplex(t *testing.T, chunks ...chunk) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	for _, c := range chunks {
		_, err := stdcopy.NewStdWriter(&buf, c.stream).Write([]byte(c.data))
		require.NoError(t, err)
	}
	return &buf
}

func TestDemuxStreams(t *testing.T) {
	tests := []struct {
		name       string
		chunks     []chunk
		wantStdout string
		wantStderr string
	}{
		{"stdout only", []chunk{{stdcopy.Stdout, "stdout content\n"}}, "stdout content\n", ""},
		{"stderr only", []chunk{{stdcopy.Stderr, "stderr content\n"}}, "", "stderr content\n"},
		{
			"interleaved",
			[]chunk{
				{stdcopy.Stdout, "stdout line 1\n"},
				{stdcopy.Stderr, "error line 1\n"},
				{stdcopy.Stdout, "stdout line 2\n"},
				{stdcopy.Stderr, "error line 2\n"},
			},
			"stdout line 1\nstdout line 2\n",
			"error line 1\nerror line 2\n",
		},
		{"empty", nil, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stdout, stderr := demuxStreams(multiplex(t, tt.chunks...))
			gotOut, gotErr := readStreamsConcurrently(t, stdout, stderr)
			assert.Equal(t, tt.wantStdout, string(gotOut))
			assert.Equal(t, tt.wantStderr, string(gotErr))
		})
	}
}

func TestDemuxedStdoutCarriesFrames(t *testing.T) {
	frame, err := framing.Encode(json.RawMessage(`{"jsonrpc":"2.0","id":1,"result":{}}`))
	require.NoError(t, err)

	// Split a frame across two multiplexed chunks with log noise between.
	half := len(frame) / 2
	stdout, stderr := demuxStreams(multiplex(t,
		chunk{stdcopy.Stdout, string(frame[:half])},
		chunk{stdcopy.Stderr, "[INFO] evaluating\n"},
		chunk{stdcopy.Stdout, string(frame[half:])},
	))

	go func() { _, _ = io.Copy(io.Discard, stderr) }()

	body, err := framing.NewDecoder(stdout).Next()
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":1,"result":{}}`, string(body))
}
