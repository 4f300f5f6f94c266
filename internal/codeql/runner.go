// ABOUTME: Runner for one-shot codeql CLI subcommands
// ABOUTME: Captures stdout and stderr and reports exit codes without treating them as launch failures

package codeql

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/harper/codeql-relay/internal/errors"
	"github.com/harper/codeql-relay/internal/logger"
	"github.com/kballard/go-shellquote"
	"golang.org/x/sync/singleflight"
)

// waitDelay bounds how long output pipes are drained after the context ends,
// since grandchildren of the CLI can hold them open.
const waitDelay = 2 * time.Second

// Result of a finished command. A non-zero ExitCode is not an error.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes codeql subcommands and caches database metadata.
type Runner struct {
	path string
	env  map[string]string

	infoMu    sync.RWMutex
	infoCache map[string]*DatabaseInfo
	infoGroup singleflight.Group
}

func NewRunner(path string) *Runner {
	return &Runner{path: path, infoCache: make(map[string]*DatabaseInfo)}
}

// WithEnv sets extra environment variables for every command.
func (r *Runner) WithEnv(env map[string]string) *Runner {
	r.env = env
	return r
}

func (r *Runner) Path() string {
	return r.path
}

func (r *Runner) Run(ctx context.Context, args ...string) (*Result, error) {
	return r.RunIn(ctx, "", args...)
}

// RunIn runs the CLI with dir as its working directory. The error is non-nil
// only when the command could not run to completion: a missing executable
// (*errors.LaunchError) or an expired context (wrapping ctx.Err()).
func (r *Runner) RunIn(ctx context.Context, dir string, args ...string) (*Result, error) {
	line := shellquote.Join(append([]string{r.path}, args...)...)
	logger.Debug("Running %s", line)

	cmd := exec.CommandContext(ctx, r.path, args...)
	cmd.Dir = dir
	cmd.WaitDelay = waitDelay
	if len(r.env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range r.env {
			cmd.Env = append(cmd.Env, k+"="+os.ExpandEnv(v))
		}
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() != nil {
		return nil, errors.Wrapf(ctx.Err(), "%s", line)
	}

	res := &Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			logger.Debug("%s exited with %d", line, res.ExitCode)
			return res, nil
		}
		return nil, errors.NewLaunchError(r.path, args, err)
	}
	return res, nil
}

// IsNotInstalled reports whether err means the CLI executable is missing.
func IsNotInstalled(err error) bool {
	var launch *errors.LaunchError
	if !errors.As(err, &launch) {
		return false
	}
	return errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist)
}

func commandFailed(prefix string, res *Result) error {
	return errors.Newf("%s: %s", prefix, strings.TrimSpace(res.Stderr))
}
