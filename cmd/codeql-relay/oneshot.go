// ABOUTME: One-shot eval, quickeval, and decode commands against a fresh query server
// ABOUTME: Prints progress to stderr and result paths or decoded output to stdout

package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/harper/codeql-relay/internal/config"
	"github.com/harper/codeql-relay/internal/errors"
	"github.com/harper/codeql-relay/internal/queryserver"
	"github.com/harper/codeql-relay/internal/symbols"
	"github.com/harper/codeql-relay/internal/validation"
	"github.com/spf13/cobra"
)

var (
	flagOutput     string
	flagNoRegister bool
	flagDecode     string
	flagFormat     string
)

var evalCmd = &cobra.Command{
	Use:   "eval <query.ql> <database>",
	Short: "Evaluate a whole query against a database",
	Args:  cobra.ExactArgs(2),
	RunE:  runEval,
}

var quickEvalCmd = &cobra.Command{
	Use:   "quickeval <query.ql> <database> <symbol>",
	Short: "Quick-evaluate one class or predicate of a query",
	Args:  cobra.ExactArgs(3),
	RunE:  runQuickEval,
}

var decodeCmd = &cobra.Command{
	Use:   "decode <results.bqrs>",
	Short: "Decode a BQRS result file",
	Args:  cobra.ExactArgs(1),
	RunE:  runDecode,
}

func init() {
	for _, c := range []*cobra.Command{evalCmd, quickEvalCmd} {
		c.Flags().StringVarP(&flagOutput, "output", "o", "", "result file (default from config)")
		c.Flags().BoolVar(&flagNoRegister, "no-register", false, "skip registering the database first")
		c.Flags().StringVar(&flagDecode, "decode", "", "decode the results in this format (json|csv|text)")
	}
	decodeCmd.Flags().StringVarP(&flagFormat, "format", "f", queryserver.DefaultBQRSFormat, "output format: json|csv|text|bqrs")
}

func runEval(cmd *cobra.Command, args []string) error {
	query, db := args[0], args[1]
	return withClient(cmd.Context(), db, func(ctx context.Context, cfg *config.Config, client *queryserver.Client) (string, error) {
		output := stringOr(flagOutput, cfg.Defaults.EvalOutput)
		if err := validation.ValidateQuerySyntax(ctx, client.Runner(), query, cfg.Engine.SyntaxCheckTimeout()); err != nil {
			return "", err
		}
		return output, client.EvaluateAndWait(ctx, query, db, output, progressPrinter(cmd.ErrOrStderr()))
	})
}

func runQuickEval(cmd *cobra.Command, args []string) error {
	query, db, symbol := args[0], args[1], args[2]
	span, kind, err := symbols.Find(query, symbol)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Quick-evaluating %s %s at %d:%d-%d:%d\n",
		kind, symbol, span.StartLine, span.StartCol, span.EndLine, span.EndCol)

	return withClient(cmd.Context(), db, func(ctx context.Context, cfg *config.Config, client *queryserver.Client) (string, error) {
		output := stringOr(flagOutput, cfg.Defaults.QuickEvalOutput)
		return output, client.QuickEvaluateAndWait(ctx, query, db, output, span, progressPrinter(cmd.ErrOrStderr()))
	})
}

// withClient validates db, starts a query server, registers db unless told
// not to, runs fn, and prints or decodes the result file it names.
func withClient(parent context.Context, db string, fn func(context.Context, *config.Config, *queryserver.Client) (string, error)) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if _, err := validation.ValidateDatabase(db); err != nil {
		return err
	}

	ctx, cancel := requestContext(parent, cfg)
	defer cancel()

	client, cleanup, err := newClient(ctx, cfg, queryserver.Options{})
	if err != nil {
		return err
	}
	defer cleanup()

	if !flagNoRegister {
		if err := client.RegisterDatabasesAndWait(ctx, []string{db}, progressPrinter(os.Stderr)); err != nil {
			return errors.Wrap(err, "Database registration failed")
		}
	}

	output, err := fn(ctx, cfg, client)
	if err != nil {
		return errors.Wrap(err, "CodeQL evaluation failed")
	}

	if flagDecode == "" {
		fmt.Println(output)
		return nil
	}
	decoded, err := client.DecodeBQRS(ctx, output, flagDecode)
	if err != nil {
		return err
	}
	fmt.Print(decoded)
	return nil
}

func runDecode(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// Decoding runs the CLI directly; the query server is never started.
	client := queryserver.New(queryserver.Options{CodeQLPath: cfg.Engine.CodeQLPath})
	out, err := client.DecodeBQRS(cmd.Context(), args[0], flagFormat)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), out)
	return nil
}

func requestContext(parent context.Context, cfg *config.Config) (context.Context, context.CancelFunc) {
	if d := cfg.Engine.RequestTimeout(); d > 0 {
		return context.WithTimeout(parent, d)
	}
	return context.WithCancel(parent)
}

func progressPrinter(w io.Writer) queryserver.ProgressHandler {
	return func(u queryserver.ProgressUpdate) {
		if u.Textual {
			fmt.Fprintf(w, "  %s\n", u.Message)
			return
		}
		fmt.Fprintf(w, "[%d/%d] %s\n", u.Step, u.MaxStep, u.Message)
	}
}

func stringOr(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
