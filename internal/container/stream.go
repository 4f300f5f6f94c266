// ABOUTME: Splits the engine container's attached stream into frame and log halves
// ABOUTME: stdout carries Content-Length frames, stderr feeds the engine log drain

package container

import (
	"io"

	"github.com/docker/docker/pkg/stdcopy"
	"github.com/harper/codeql-relay/internal/logger"
)

// demuxStreams separates the multiplexed attach stream. Both readers end with
// the stream, so the channel's frame reader and stderr drain exit together.
func demuxStreams(multiplexed io.Reader) (stdout, stderr io.ReadCloser) {
	stdoutPipe, stdoutWriter := io.Pipe()
	stderrPipe, stderrWriter := io.Pipe()

	go func() {
		_, err := stdcopy.StdCopy(stdoutWriter, stderrWriter, multiplexed)
		if err != nil && err != io.EOF {
			logger.Debug("engine container stream ended: %v", err)
		}
		stdoutWriter.CloseWithError(err)
		stderrWriter.CloseWithError(err)
	}()

	return stdoutPipe, stderrPipe
}
