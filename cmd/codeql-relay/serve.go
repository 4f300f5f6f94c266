// ABOUTME: serve command running the query server behind MCP and the management API
// ABOUTME: Wires the message log, metrics, progress feed, and transports, then waits for a signal

package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/harper/codeql-relay/internal/config"
	"github.com/harper/codeql-relay/internal/db"
	"github.com/harper/codeql-relay/internal/errors"
	"github.com/harper/codeql-relay/internal/logger"
	"github.com/harper/codeql-relay/internal/management"
	"github.com/harper/codeql-relay/internal/mcpserver"
	"github.com/harper/codeql-relay/internal/metrics"
	"github.com/harper/codeql-relay/internal/queryserver"
	"github.com/harper/codeql-relay/internal/websocket"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

var (
	flagTransport string
	flagNoLog     bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the query server and expose it over MCP",
	Long: "Starts a long-lived CodeQL query server, serves the CodeQL MCP tool set over " +
		"streamable HTTP or stdio, and runs the management API with the progress feed.",
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&flagTransport, "transport", "", "MCP transport: http|stdio (overrides config)")
	serveCmd.Flags().BoolVar(&flagNoLog, "no-message-log", false, "do not record protocol messages to SQLite")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if flagTransport != "" {
		cfg.Server.MCPTransport = flagTransport
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	hub := websocket.NewHub(m)
	defer hub.Close()

	var database *db.DB
	if !flagNoLog {
		database, err = db.Open(cfg.Database.Path)
		if err != nil {
			logger.Warn("Message log disabled: %v", err)
			database = nil
		} else {
			defer database.Close()
		}
	}

	opts := queryserver.Options{
		Metrics:   m,
		Listeners: []queryserver.Listener{hub},
	}
	if database != nil {
		opts.Observer = database
	}

	client, cleanup, err := newClient(ctx, cfg, opts)
	if err != nil {
		return err
	}
	defer cleanup()
	logger.Info("Query server %s started (%s, mode %s)", client.InstanceID(), client.CodeQLPath(), cfg.Engine.Mode)

	if database != nil {
		if err := database.CreateSession(client.InstanceID(), client.CodeQLPath(), client.Args()); err != nil {
			logger.Warn("Failed to record session: %v", err)
		}
		defer func() {
			if err := database.CloseSession(client.InstanceID()); err != nil {
				logger.Warn("Failed to close session: %v", err)
			}
		}()
	}

	tools := mcpserver.New(client, mcpserver.Options{
		Defaults:       cfg.Defaults,
		RequestTimeout: cfg.Engine.RequestTimeout(),
		SyntaxTimeout:  cfg.Engine.SyntaxCheckTimeout(),
		Metrics:        m,
	})

	mgmt := &http.Server{
		Addr:              hostPort(cfg.Server.ManagementHost, cfg.Server.ManagementPort),
		Handler:           management.NewServer(cfg, client, database, m, hub),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Management API listening on %s", mgmt.Addr)
		if err := mgmt.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "management server")
		}
		return nil
	})

	g.Go(func() error {
		select {
		case <-client.Done():
			return errors.New("query server exited")
		case <-gctx.Done():
			return nil
		}
	})

	switch cfg.Server.MCPTransport {
	case config.TransportStdio:
		g.Go(func() error {
			logger.Info("Serving MCP over stdio")
			err := tools.ServeStdio(gctx)
			if gctx.Err() != nil {
				return nil
			}
			if err != nil {
				return errors.Wrap(err, "mcp stdio")
			}
			// stdin closed: the agent is gone.
			return errStdioClosed
		})
	default:
		httpServer := tools.HTTPServer()
		addr := hostPort(cfg.Server.MCPHost, cfg.Server.MCPPort)
		g.Go(func() error {
			logger.Info("Serving MCP over HTTP on %s/mcp", addr)
			if err := httpServer.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return errors.Wrap(err, "mcp http")
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return mgmt.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errStdioClosed) {
		return err
	}
	return nil
}

var errStdioClosed = errors.New("mcp stdio closed")

func hostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
