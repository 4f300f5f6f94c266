// ABOUTME: Unit tests for watcher configuration loading and validation
// ABOUTME: Tests default config, file loading, clamping, and XDG path expansion
package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "ws://127.0.0.1:8091/ws/progress", cfg.Feed.URL)
	assert.Equal(t, 5, cfg.Feed.ReconnectAttempts)
	assert.Equal(t, "default", cfg.UI.Theme)
	assert.Equal(t, 25, cfg.UI.SidebarWidth)
	assert.True(t, cfg.UI.SidebarDefaultVisible)
	assert.True(t, cfg.UI.ShowCompleted)
}

func TestLoadConfig_NoFile(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)
	t.Setenv("XDG_DATA_HOME", filepath.Join(tmpDir, "data"))

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "default", cfg.UI.Theme)
	assert.Equal(t, filepath.Join(tmpDir, "data", "codeql-relay", "watch.log"), cfg.Logging.File)

	_, err = os.Stat(filepath.Join(tmpDir, "codeql-relay", "watch.yaml"))
	assert.NoError(t, err, "config file should be created")
}

func TestLoadConfig_ExistingFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "watch.yaml")

	configContent := `feed:
  url: "ws://relay.internal:9000/ws/progress"
  reconnect_attempts: 7
  timeout_seconds: 60
ui:
  theme: "dark"
  sidebar_width: 30
  sidebar_default_visible: false
  history_limit: 200
  show_completed: false
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "ws://relay.internal:9000/ws/progress", cfg.Feed.URL)
	assert.Equal(t, 7, cfg.Feed.ReconnectAttempts)
	assert.Equal(t, 60, cfg.Feed.TimeoutSeconds)
	assert.Equal(t, "dark", cfg.UI.Theme)
	assert.Equal(t, 30, cfg.UI.SidebarWidth)
	assert.False(t, cfg.UI.SidebarDefaultVisible)
	assert.Equal(t, 200, cfg.UI.HistoryLimit)
	assert.False(t, cfg.UI.ShowCompleted)
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "watch.yaml")

	invalidYAML := `feed:
  url: "ws://localhost:8091
ui:
    theme: [unclosed array
`
	require.NoError(t, os.WriteFile(configPath, []byte(invalidYAML), 0644))

	_, err := Load(configPath)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestValidate_SidebarWidth(t *testing.T) {
	cfg := DefaultConfig()

	cfg.UI.SidebarWidth = 10
	cfg.Validate()
	assert.Equal(t, 20, cfg.UI.SidebarWidth, "should clamp to 20")

	cfg.UI.SidebarWidth = 50
	cfg.Validate()
	assert.Equal(t, 40, cfg.UI.SidebarWidth, "should clamp to 40")
}

func TestValidate_HistoryLimit(t *testing.T) {
	tests := []struct {
		name     string
		input    int
		expected int
	}{
		{"below minimum", 10, 50},
		{"at minimum", 50, 50},
		{"in range", 5000, 5000},
		{"above maximum", 15000, 10000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.UI.HistoryLimit = tt.input
			cfg.Validate()
			assert.Equal(t, tt.expected, cfg.UI.HistoryLimit)
		})
	}
}

func TestValidate_Feed(t *testing.T) {
	tests := []struct {
		name                 string
		attempts, timeout    int
		wantAttempts, wantTO int
	}{
		{"in range", 3, 60, 3, 60},
		{"negative attempts", -1, 60, 0, 60},
		{"too many attempts", 20, 60, 10, 60},
		{"short timeout", 3, 2, 3, 5},
		{"long timeout", 3, 500, 3, 300},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Feed.ReconnectAttempts = tt.attempts
			cfg.Feed.TimeoutSeconds = tt.timeout
			cfg.Validate()
			assert.Equal(t, tt.wantAttempts, cfg.Feed.ReconnectAttempts)
			assert.Equal(t, tt.wantTO, cfg.Feed.TimeoutSeconds)
		})
	}
}
