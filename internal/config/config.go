// ABOUTME: Configuration loading and management for the CodeQL relay
// ABOUTME: Supports YAML files, defaults, and environment variable overrides

package config

import (
	"os"
	"strings"
	"time"

	"github.com/harper/codeql-relay/internal/errors"
	"github.com/harper/codeql-relay/internal/xdg"
	"github.com/kballard/go-shellquote"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	ModeProcess   = "process"
	ModeContainer = "container"

	TransportHTTP  = "http"
	TransportStdio = "stdio"

	EnvPrefix = "CODEQL_RELAY"
)

type Config struct {
	Engine   EngineConfig   `mapstructure:"engine" json:"engine"`
	Server   ServerConfig   `mapstructure:"server" json:"server"`
	Database DatabaseConfig `mapstructure:"database" json:"database"`
	Defaults DefaultsConfig `mapstructure:"defaults" json:"defaults"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path" json:"path"`
}

type ServerConfig struct {
	MCPTransport   string `mapstructure:"mcp_transport" json:"mcp_transport"`
	MCPHost        string `mapstructure:"mcp_host" json:"mcp_host"`
	MCPPort        int    `mapstructure:"mcp_port" json:"mcp_port"`
	ManagementHost string `mapstructure:"management_host" json:"management_host"`
	ManagementPort int    `mapstructure:"management_port" json:"management_port"`
}

type EngineConfig struct {
	CodeQLPath                string            `mapstructure:"codeql_path" json:"codeql_path"`
	Args                      []string          `mapstructure:"args" json:"args"`
	Mode                      string            `mapstructure:"mode" json:"mode"` // "process" or "container"
	Env                       map[string]string `mapstructure:"env" json:"-"`
	Container                 ContainerConfig   `mapstructure:"container" json:"container"`
	CallbackWorkers           int               `mapstructure:"callback_workers" json:"callback_workers"`
	RequestTimeoutSeconds     int               `mapstructure:"request_timeout_seconds" json:"request_timeout_seconds"`
	SyntaxCheckTimeoutSeconds int               `mapstructure:"syntax_check_timeout_seconds" json:"syntax_check_timeout_seconds"`
}

type ContainerConfig struct {
	Image       string   `mapstructure:"image" json:"image"`
	DockerHost  string   `mapstructure:"docker_host" json:"docker_host"`
	Mounts      []string `mapstructure:"mounts" json:"mounts"`
	NetworkMode string   `mapstructure:"network_mode" json:"network_mode"`
	MemoryLimit string   `mapstructure:"memory_limit" json:"memory_limit"`
	CPULimit    float64  `mapstructure:"cpu_limit" json:"cpu_limit"`
	AutoRemove  bool     `mapstructure:"auto_remove" json:"auto_remove"`
}

// DefaultsConfig holds the output locations tools fall back to when the
// caller does not name one.
type DefaultsConfig struct {
	QuickEvalOutput    string `mapstructure:"quickeval_output" json:"quickeval_output"`
	EvalOutput         string `mapstructure:"eval_output" json:"eval_output"`
	AnalysisOutput     string `mapstructure:"analysis_output" json:"analysis_output"`
	SecurityScanOutput string `mapstructure:"security_scan_output" json:"security_scan_output"`
}

// RequestTimeout is zero when requests may wait indefinitely.
func (e EngineConfig) RequestTimeout() time.Duration {
	return time.Duration(e.RequestTimeoutSeconds) * time.Second
}

func (e EngineConfig) SyntaxCheckTimeout() time.Duration {
	return time.Duration(e.SyntaxCheckTimeoutSeconds) * time.Second
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("engine.codeql_path", "codeql")
	v.SetDefault("engine.args", []string{})
	v.SetDefault("engine.mode", ModeProcess)
	v.SetDefault("engine.env", map[string]string{})
	v.SetDefault("engine.container.image", "")
	v.SetDefault("engine.container.docker_host", "")
	v.SetDefault("engine.container.mounts", []string{})
	v.SetDefault("engine.container.network_mode", "none")
	v.SetDefault("engine.container.memory_limit", "")
	v.SetDefault("engine.container.cpu_limit", 0.0)
	v.SetDefault("engine.container.auto_remove", true)
	v.SetDefault("engine.callback_workers", 4)
	v.SetDefault("engine.request_timeout_seconds", 0)
	v.SetDefault("engine.syntax_check_timeout_seconds", 30)

	v.SetDefault("server.mcp_transport", TransportHTTP)
	v.SetDefault("server.mcp_host", "0.0.0.0")
	v.SetDefault("server.mcp_port", 8000)
	v.SetDefault("server.management_host", "127.0.0.1")
	v.SetDefault("server.management_port", 8091)

	v.SetDefault("database.path", "$XDG_DATA_HOME/codeql-relay/messages.db")

	v.SetDefault("defaults.quickeval_output", "/tmp/quickeval.bqrs")
	v.SetDefault("defaults.eval_output", "/tmp/eval.bqrs")
	v.SetDefault("defaults.analysis_output", "/tmp/analysis")
	v.SetDefault("defaults.security_scan_output", "/tmp/security-scan")
}

// Load reads path, or the XDG config file when path is empty and that file
// exists. Environment variables override both.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("engine.codeql_path", EnvPrefix+"_ENGINE_CODEQL_PATH", "CODEQL_PATH")
	_ = v.BindEnv("server.mcp_port", EnvPrefix+"_SERVER_MCP_PORT", "PORT")

	if path == "" {
		if candidate := xdg.DefaultConfigFile(); fileExists(candidate) {
			path = candidate
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}

	// Args from the environment arrive as one string.
	if raw, ok := v.Get("engine.args").(string); ok {
		args, err := shellquote.Split(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "parse engine.args %q", raw)
		}
		cfg.Engine.Args = args
	}

	// IMPORTANT: Viper lowercases all map keys, but environment variables are case-sensitive
	// Parse YAML directly to preserve original key case for engine.env
	if path != "" {
		//nolint:gosec // config file path from validated user input
		if data, err := os.ReadFile(path); err == nil {
			var rawConfig struct {
				Engine struct {
					Env map[string]string `yaml:"env"`
				} `yaml:"engine"`
			}
			if yaml.Unmarshal(data, &rawConfig) == nil && len(rawConfig.Engine.Env) > 0 {
				cfg.Engine.Env = rawConfig.Engine.Env
			}
		}
	}

	cfg.Database.Path = xdg.ExpandPath(cfg.Database.Path)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Engine.Mode {
	case ModeProcess:
	case ModeContainer:
		if c.Engine.Container.Image == "" {
			return errors.NewValidationError("engine.container.image",
				"engine.container.image is required when engine.mode is 'container'")
		}
	default:
		return errors.NewValidationError("engine.mode",
			"invalid engine.mode: "+c.Engine.Mode+" (must be 'process' or 'container')")
	}

	switch c.Server.MCPTransport {
	case TransportHTTP, TransportStdio:
	default:
		return errors.NewValidationError("server.mcp_transport",
			"invalid server.mcp_transport: "+c.Server.MCPTransport+" (must be 'http' or 'stdio')")
	}

	if c.Engine.CallbackWorkers < 1 {
		return errors.NewValidationError("engine.callback_workers", "engine.callback_workers must be at least 1")
	}
	if c.Engine.RequestTimeoutSeconds < 0 || c.Engine.SyntaxCheckTimeoutSeconds < 0 {
		return errors.NewValidationError("engine", "timeouts must not be negative")
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
