// ABOUTME: Launcher abstraction for the query-server subprocess
// ABOUTME: Process mode uses os/exec; container mode plugs in a Docker launcher

package queryserver

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"syscall"

	"github.com/harper/codeql-relay/internal/errors"
	"github.com/kballard/go-shellquote"
)

// Process is a running engine with piped standard streams.
type Process interface {
	Stdin() io.WriteCloser
	Stdout() io.Reader
	Stderr() io.Reader
	// Terminate asks the engine to exit. It must not block.
	Terminate() error
	// Wait blocks until the engine has exited.
	Wait() error
	// ID is the pid or container id, for logs.
	ID() string
}

// Launcher starts an engine for a command line.
type Launcher interface {
	Launch(ctx context.Context, command string, args []string) (Process, error)
}

// ExecLauncher runs the engine as a local subprocess.
type ExecLauncher struct {
	Env map[string]string
	Dir string
}

// Launch starts command with piped stdio in l.Dir with l.Env added.
func (l ExecLauncher) Launch(ctx context.Context, command string, args []string) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.NewLaunchError(command, args, err)
	}

	cmd := exec.Command(command, args...)
	cmd.Dir = l.Dir
	cmd.Env = os.Environ()
	for k, v := range l.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, os.ExpandEnv(v)))
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.NewLaunchError(command, args, errors.Wrap(err, "failed to create stdin pipe"))
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.NewLaunchError(command, args, errors.Wrap(err, "failed to create stdout pipe"))
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, errors.NewLaunchError(command, args, errors.Wrap(err, "failed to create stderr pipe"))
	}

	if err := cmd.Start(); err != nil {
		return nil, errors.NewLaunchError(command, args, err)
	}

	return &execProcess{cmd: cmd, stdin: stdin, stdout: stdout, stderr: stderr}, nil
}

type execProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.Reader
	stderr io.Reader
}

func (p *execProcess) Stdin() io.WriteCloser { return p.stdin }
func (p *execProcess) Stdout() io.Reader     { return p.stdout }
func (p *execProcess) Stderr() io.Reader     { return p.stderr }
func (p *execProcess) Wait() error           { return p.cmd.Wait() }
func (p *execProcess) ID() string            { return "pid " + strconv.Itoa(p.cmd.Process.Pid) }

// Terminate sends SIGTERM and falls back to Kill where signals are unsupported.
func (p *execProcess) Terminate() error {
	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return nil
		}
		return p.cmd.Process.Kill()
	}
	return nil
}

func commandLine(command string, args []string) string {
	return shellquote.Join(append([]string{command}, args...)...)
}
