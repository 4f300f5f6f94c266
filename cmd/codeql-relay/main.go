// ABOUTME: Entry point for the codeql-relay command line
// ABOUTME: Root cobra command with config, logging, and .env handling shared by subcommands

package main

import (
	"fmt"
	"os"

	"github.com/harper/codeql-relay/internal/config"
	"github.com/harper/codeql-relay/internal/errors"
	"github.com/harper/codeql-relay/internal/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	version = "dev"

	flagConfig  string
	flagVerbose bool
	flagLogJSON bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		logger.Sync()
		os.Exit(1)
	}
	logger.Sync()
}

var rootCmd = &cobra.Command{
	Use:           "codeql-relay",
	Short:         "Drive a CodeQL query server over JSON-RPC",
	Long:          "codeql-relay keeps a long-lived CodeQL query server, exposes it to agents over MCP, and runs one-shot evaluations from the shell.",
	Version:       version,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			return errors.Wrap(err, "loading .env")
		}
		logger.SetVerbose(flagVerbose)
		logger.SetJSON(flagLogJSON)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default: $XDG_CONFIG_HOME/codeql-relay/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&flagLogJSON, "log-json", false, "emit logs as JSON")

	rootCmd.AddCommand(serveCmd, evalCmd, quickEvalCmd, decodeCmd, findSymbolCmd, detectCmd)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, errors.Wrap(err, "loading config")
	}
	return cfg, nil
}
