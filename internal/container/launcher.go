// ABOUTME: Docker launcher running the CodeQL query server inside a container
// ABOUTME: Handles Docker client, container lifecycle, and stdio attachment

package container

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"
	"github.com/harper/codeql-relay/internal/config"
	"github.com/harper/codeql-relay/internal/engine"
	"github.com/harper/codeql-relay/internal/errors"
	"github.com/harper/codeql-relay/internal/logger"
	"github.com/harper/codeql-relay/internal/queryserver"
)

const (
	pingTimeout      = 5 * time.Second
	stopTimeoutSecs  = 10
	logTailOnFailure = "50"
	managedLabel     = "codeql-relay.managed"
)

// Launcher starts the engine in a fresh container per launch.
type Launcher struct {
	config       config.ContainerConfig
	engineEnv    map[string]string
	dockerClient *client.Client
}

var _ queryserver.Launcher = (*Launcher)(nil)

// NewLauncher connects to Docker and checks the image is present. An empty
// docker_host falls back to the best detected runtime, then DOCKER_HOST.
func NewLauncher(ctx context.Context, cfg config.ContainerConfig, engineEnv map[string]string) (*Launcher, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	host := cfg.DockerHost
	if host == "" && os.Getenv("DOCKER_HOST") == "" {
		if rt := engine.DetectBest(); rt != nil {
			host = rt.DockerHost()
		}
	}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}

	dockerClient, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Docker client")
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if _, err := dockerClient.Ping(pingCtx); err != nil {
		dockerClient.Close()
		return nil, NewDockerUnavailableError(err)
	}
	if _, err := dockerClient.ImageInspect(pingCtx, cfg.Image); err != nil {
		dockerClient.Close()
		return nil, NewImageNotFoundError(cfg.Image, err)
	}

	return &Launcher{config: cfg, engineEnv: engineEnv, dockerClient: dockerClient}, nil
}

func (l *Launcher) Close() error {
	return l.dockerClient.Close()
}

// Launch creates, starts, and attaches to a container running command.
func (l *Launcher) Launch(ctx context.Context, command string, args []string) (queryserver.Process, error) {
	containerConfig, hostConfig, err := l.buildConfigs(command, args)
	if err != nil {
		return nil, errors.NewLaunchError(command, args, err)
	}

	name := "codeql-relay-" + uuid.NewString()[:8]
	resp, err := l.dockerClient.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, name)
	if err != nil {
		return nil, errors.NewLaunchError(command, args, errors.Wrap(err, "failed to create container"))
	}

	if err := l.dockerClient.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		l.discard(resp.ID)
		return nil, errors.NewLaunchError(command, args, errors.Wrap(err, "failed to start container"))
	}

	attachResp, err := l.dockerClient.ContainerAttach(ctx, resp.ID, container.AttachOptions{
		Stream: true,
		Stdin:  true,
		Stdout: true,
		Stderr: true,
	})
	if err != nil {
		l.discard(resp.ID)
		return nil, errors.NewLaunchError(command, args, NewAttachFailedError(err))
	}

	stdout, stderr := demuxStreams(attachResp.Reader)
	proc := &containerProcess{
		id:     resp.ID,
		name:   name,
		client: l.dockerClient,
		stdin:  &halfCloser{conn: attachResp.Conn, closeWrite: attachResp.CloseWrite},
		stdout: stdout,
		stderr: stderr,
		detach: attachResp.Close,
		exited: make(chan struct{}),
	}
	go proc.monitor()

	logger.Info("[%s] Engine container %s started from %s", name, shortID(resp.ID), l.config.Image)
	return proc, nil
}

// buildConfigs maps the container settings onto Docker's create options.
func (l *Launcher) buildConfigs(command string, args []string) (*container.Config, *container.HostConfig, error) {
	binds, err := buildBinds(l.config.Mounts)
	if err != nil {
		return nil, nil, err
	}
	memoryLimit, err := parseMemoryLimit(l.config.MemoryLimit)
	if err != nil {
		return nil, nil, errors.Wrap(err, "invalid memory limit")
	}

	containerConfig := &container.Config{
		Image:      l.config.Image,
		Entrypoint: []string{command},
		Cmd:        args,
		Env:        formatEnv(l.engineEnv),
		Labels:     map[string]string{managedLabel: "true"},
		Tty:        false, // CRITICAL: must be false for stream demuxing
		OpenStdin:  true,
		StdinOnce:  false,
	}
	hostConfig := &container.HostConfig{
		Binds:       binds,
		AutoRemove:  l.config.AutoRemove,
		NetworkMode: container.NetworkMode(l.config.NetworkMode),
		Resources: container.Resources{
			Memory:   memoryLimit,
			NanoCPUs: int64(l.config.CPULimit * 1e9),
		},
	}
	return containerConfig, hostConfig, nil
}

// buildBinds mounts each host directory at the same path inside the
// container so absolute paths in requests resolve unchanged.
func buildBinds(mounts []string) ([]string, error) {
	binds := make([]string, 0, len(mounts))
	for _, m := range mounts {
		path, mode, _ := strings.Cut(m, ":")
		if mode != "" && mode != "ro" && mode != "rw" {
			return nil, NewMountError(m, errors.Newf("unknown mount mode %q", mode))
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, NewMountError(m, err)
		}
		if info, err := os.Stat(abs); err != nil || !info.IsDir() {
			return nil, NewMountError(m, errors.New("not a directory"))
		}
		bind := abs + ":" + abs
		if mode != "" {
			bind += ":" + mode
		}
		binds = append(binds, bind)
	}
	return binds, nil
}

// formatEnv expands references against the relay's environment. Output is
// sorted so container configs are stable.
func formatEnv(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, fmt.Sprintf("%s=%s", k, os.ExpandEnv(v)))
	}
	sort.Strings(out)
	return out
}

func parseMemoryLimit(limit string) (int64, error) {
	if limit == "" {
		return 0, nil
	}

	// Simple parser for memory limits like "512m", "1g"
	var value float64
	var unit string
	_, err := fmt.Sscanf(limit, "%f%s", &value, &unit)
	if err != nil {
		return 0, err
	}

	switch unit {
	case "k", "K":
		return int64(value * 1024), nil
	case "m", "M":
		return int64(value * 1024 * 1024), nil
	case "g", "G":
		return int64(value * 1024 * 1024 * 1024), nil
	default:
		return 0, errors.Newf("unknown unit: %s", unit)
	}
}

// discard removes a container that never got going.
func (l *Launcher) discard(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := l.dockerClient.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil {
		logger.Warn("Failed to remove container %s: %v", shortID(id), err)
	}
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// halfCloser closes only the write side of the hijacked connection so the
// engine sees EOF on stdin while its output keeps flowing.
type halfCloser struct {
	conn       net.Conn
	closeWrite func() error
}

func (h *halfCloser) Write(p []byte) (int, error) { return h.conn.Write(p) }
func (h *halfCloser) Close() error                { return h.closeWrite() }

type containerProcess struct {
	id     string
	name   string
	client *client.Client
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser
	detach func()

	stopOnce sync.Once
	exited   chan struct{}
	exitErr  error
}

func (p *containerProcess) Stdin() io.WriteCloser { return p.stdin }
func (p *containerProcess) Stdout() io.Reader     { return p.stdout }
func (p *containerProcess) Stderr() io.Reader     { return p.stderr }
func (p *containerProcess) ID() string            { return "container " + shortID(p.id) }

// Terminate stops the container in the background.
func (p *containerProcess) Terminate() error {
	p.stopOnce.Do(func() {
		go func() {
			timeout := stopTimeoutSecs
			ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeout+5)*time.Second)
			defer cancel()
			if err := p.client.ContainerStop(ctx, p.id, container.StopOptions{Timeout: &timeout}); err != nil {
				logger.Warn("[%s] Failed to stop container: %v", p.name, err)
			}
		}()
	})
	return nil
}

func (p *containerProcess) Wait() error {
	<-p.exited
	return p.exitErr
}

func (p *containerProcess) monitor() {
	defer close(p.exited)
	defer p.detach()

	statusCh, errCh := p.client.ContainerWait(context.Background(), p.id, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		p.exitErr = errors.Wrap(err, "container wait failed")
	case status := <-statusCh:
		if status.StatusCode != 0 {
			p.exitErr = errors.Newf("container exited with code %d", status.StatusCode)
			p.logTail(status.StatusCode)
		}
	}
}

// logTail reports the last lines of a failed container.
func (p *containerProcess) logTail(code int64) {
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	logs, err := p.client.ContainerLogs(ctx, p.id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       logTailOnFailure,
	})
	if err != nil {
		return
	}
	defer logs.Close()

	var stdout, stderr strings.Builder
	_, _ = stdcopy.StdCopy(&stdout, &stderr, logs)
	logger.Warn("[%s] Container exited with code %d. Last %s lines:\nSTDERR:\n%s",
		p.name, code, logTailOnFailure, stderr.String())
}
