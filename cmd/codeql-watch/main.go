// ABOUTME: Entry point for the codeql-watch progress TUI
// ABOUTME: Loads watcher config, routes logs away from the terminal, and runs Bubbletea
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/harper/codeql-relay/internal/errors"
	"github.com/harper/codeql-relay/internal/logger"
	"github.com/harper/codeql-relay/internal/tui"
	"github.com/harper/codeql-relay/internal/tui/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "dev"

var (
	flagConfig string
	flagURL    string
	flagTheme  string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "codeql-watch",
	Short:         "Watch query-server progress from a running codeql-relay",
	Version:       version,
	Args:          cobra.NoArgs,
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE:          run,
}

func init() {
	rootCmd.Flags().StringVar(&flagConfig, "config", "", "watcher config (default: $XDG_CONFIG_HOME/codeql-relay/watch.yaml)")
	rootCmd.Flags().StringVar(&flagURL, "url", "", "progress feed URL (overrides config)")
	rootCmd.Flags().StringVar(&flagTheme, "theme", "", "theme: default|dark|light")
}

func run(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	cfg, err := config.Load(flagConfig)
	if err != nil {
		return errors.Wrap(err, "loading config")
	}
	if flagURL != "" {
		cfg.Feed.URL = flagURL
	}
	if flagTheme != "" {
		cfg.UI.Theme = flagTheme
	}

	closeLog, err := routeLogs(cfg.Logging)
	if err != nil {
		return err
	}
	defer closeLog()

	m := tui.NewModel(cfg)
	defer m.Close()

	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		return errors.Wrap(err, "running watcher")
	}
	return nil
}

// routeLogs keeps log output off the terminal the TUI draws on.
func routeLogs(cfg config.LoggingConfig) (func(), error) {
	if !cfg.Enabled || cfg.File == "" {
		logger.SetOutput(io.Discard)
		return func() {}, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
		return nil, errors.Wrap(err, "creating log directory")
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "opening log file")
	}
	logger.SetOutput(f)
	logger.SetVerbose(true)
	return func() {
		logger.Sync()
		f.Close()
	}, nil
}
