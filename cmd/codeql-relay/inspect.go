// ABOUTME: find-symbol and detect commands for inspecting queries and the local setup
// ABOUTME: Print JSON or text reports without starting a query server

package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/harper/codeql-relay/internal/engine"
	"github.com/harper/codeql-relay/internal/symbols"
	"github.com/spf13/cobra"
)

var flagJSON bool

var findSymbolCmd = &cobra.Command{
	Use:   "find-symbol <query.ql> <name>",
	Short: "Locate the identifier span of a class or predicate",
	Args:  cobra.ExactArgs(2),
	RunE:  runFindSymbol,
}

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Report the CodeQL CLI and container runtimes found on this machine",
	Args:  cobra.NoArgs,
	RunE:  runDetect,
}

func init() {
	detectCmd.Flags().BoolVar(&flagJSON, "json", false, "print the report as JSON")
}

type symbolResult struct {
	Kind string `json:"kind"`
	symbols.Span
}

func runFindSymbol(cmd *cobra.Command, args []string) error {
	span, kind, err := symbols.Find(args[0], args[1])
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), symbolResult{Kind: kind, Span: span})
}

func runDetect(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	report := engine.Detect(cmd.Context(), cfg.Engine.CodeQLPath)
	out := cmd.OutOrStdout()
	if flagJSON {
		return writeJSON(out, report)
	}

	if report.CLI != nil {
		fmt.Fprintf(out, "CLI:      %s\n", report.CLI)
	} else {
		fmt.Fprintf(out, "CLI:      not found (%s)\n", report.CLIError)
	}
	for _, rt := range report.Runtimes {
		fmt.Fprintf(out, "Runtime:  %s\n", rt)
	}
	if report.Best != nil {
		fmt.Fprintf(out, "Container mode would use %s\n", report.Best.DockerHost())
	} else {
		fmt.Fprintln(out, "Container mode unavailable: no running container runtime")
	}
	fmt.Fprintf(out, "Engine mode: %s\n", cfg.Engine.Mode)
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
