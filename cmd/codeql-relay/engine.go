// ABOUTME: Query-server construction shared by serve and the one-shot commands
// ABOUTME: Picks the process or container launcher from config and starts the client

package main

import (
	"context"

	"github.com/harper/codeql-relay/internal/config"
	"github.com/harper/codeql-relay/internal/container"
	"github.com/harper/codeql-relay/internal/engine"
	"github.com/harper/codeql-relay/internal/logger"
	"github.com/harper/codeql-relay/internal/queryserver"
)

// newClient fills opts from cfg, starts the query server, and returns a
// cleanup that shuts it down.
func newClient(ctx context.Context, cfg *config.Config, opts queryserver.Options) (*queryserver.Client, func(), error) {
	launcher, closeLauncher, err := buildLauncher(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	opts.CodeQLPath = cfg.Engine.CodeQLPath
	if cfg.Engine.Mode == config.ModeProcess {
		cli, err := engine.LocateCLI(cfg.Engine.CodeQLPath)
		if err != nil {
			closeLauncher()
			return nil, nil, err
		}
		logger.Debug("Using codeql at %s (from %s)", cli.Path, cli.Source)
		opts.CodeQLPath = cli.Path
	}
	opts.ExtraArgs = cfg.Engine.Args
	opts.Launcher = launcher
	opts.CallbackWorkers = cfg.Engine.CallbackWorkers

	client := queryserver.New(opts)
	if err := client.Start(ctx); err != nil {
		closeLauncher()
		return nil, nil, err
	}

	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := client.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Query server shutdown: %v", err)
		}
		closeLauncher()
	}
	return client, cleanup, nil
}

func buildLauncher(ctx context.Context, cfg *config.Config) (queryserver.Launcher, func(), error) {
	if cfg.Engine.Mode != config.ModeContainer {
		return queryserver.ExecLauncher{Env: cfg.Engine.Env}, func() {}, nil
	}

	l, err := container.NewLauncher(ctx, cfg.Engine.Container, cfg.Engine.Env)
	if err != nil {
		return nil, nil, err
	}
	return l, func() {
		if err := l.Close(); err != nil {
			logger.Debug("closing docker client: %v", err)
		}
	}, nil
}
