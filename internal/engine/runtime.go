// ABOUTME: Container runtime detection for Docker, Podman, and Colima
// ABOUTME: Used to pick a Docker host when the engine runs in container mode

package engine

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Runtime status values.
const (
	StatusAvailable   = "available"
	StatusCLIOnly     = "cli-only"
	StatusUnavailable = "unavailable"
	StatusRunning     = "running"
	StatusStopped     = "stopped"
)

// RuntimeInfo contains detected runtime information
type RuntimeInfo struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	SocketPath string `json:"socket_path,omitempty"`
	Version    string `json:"version,omitempty"`
}

func (r RuntimeInfo) String() string {
	return fmt.Sprintf("%s (%s) v%s @ %s", r.Name, r.Status, r.Version, r.SocketPath)
}

// DockerHost is the unix:// URL of the runtime socket, empty without one.
func (r RuntimeInfo) DockerHost() string {
	if r.SocketPath == "" {
		return ""
	}
	return "unix://" + r.SocketPath
}

// commandOutput is swapped in tests.
var commandOutput = func(name string, args ...string) ([]byte, error) {
	return exec.Command(name, args...).Output()
}

// DetectAll finds all available container runtimes
func DetectAll() []RuntimeInfo {
	return []RuntimeInfo{
		detectDocker(),
		detectColima(),
		detectPodman(),
	}
}

// DetectBest returns the best available runtime (priority: Colima > Docker > Podman)
func DetectBest() *RuntimeInfo {
	return best(DetectAll())
}

func best(all []RuntimeInfo) *RuntimeInfo {
	priorities := []struct {
		name     string
		statuses []string
	}{
		{"colima", []string{StatusRunning, StatusAvailable}},
		{"docker", []string{StatusAvailable}},
		{"podman", []string{StatusAvailable}},
	}
	for _, p := range priorities {
		for i := range all {
			if all[i].Name != p.name {
				continue
			}
			for _, s := range p.statuses {
				if all[i].Status == s {
					rt := all[i]
					return &rt
				}
			}
		}
	}
	return nil
}

// detectSocketRuntime covers runtimes whose CLI reports a client version and
// whose daemon listens on a fixed socket.
func detectSocketRuntime(name, socketPath string) RuntimeInfo {
	info := RuntimeInfo{Name: name}

	version, err := commandOutput(name, "version", "--format", "{{.Client.Version}}")
	if err != nil {
		info.Status = StatusUnavailable
		return info
	}
	info.Version = strings.TrimSpace(string(version))

	if _, err := os.Stat(socketPath); err == nil {
		info.Status = StatusAvailable
		info.SocketPath = socketPath
	} else {
		info.Status = StatusCLIOnly
	}
	return info
}

func detectDocker() RuntimeInfo {
	return detectSocketRuntime("docker", "/var/run/docker.sock")
}

func detectPodman() RuntimeInfo {
	return detectSocketRuntime("podman", "/var/run/podman/podman.sock")
}

func detectColima() RuntimeInfo {
	info := RuntimeInfo{Name: "colima"}

	version, err := commandOutput("colima", "version")
	if err != nil {
		info.Status = StatusUnavailable
		return info
	}

	// Parse version from output like "colima version 0.6.6"
	parts := strings.Fields(string(version))
	if len(parts) >= 3 {
		info.Version = parts[2]
	}

	statusOut, err := commandOutput("colima", "status")
	if err != nil || !strings.Contains(string(statusOut), "colima is running") {
		info.Status = StatusStopped
		return info
	}

	info.Status = StatusRunning
	socketPath := filepath.Join(getHome(), ".colima", "default", "docker.sock")
	if _, err := os.Stat(socketPath); err == nil {
		info.SocketPath = socketPath
	}
	return info
}
