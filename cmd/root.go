package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/okian/skillcert/internal/adapters/backend"
	"github.com/okian/skillcert/internal/config"
	"github.com/okian/skillcert/pkg/logger"
)

func newRootCmd() *cobra.Command {
	serve := newServeCmd()
	cmd := &cobra.Command{
		Use:           "skillcert",
		Short:         "Employee skill evaluation engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve.RunE,
	}
	cmd.AddCommand(serve, newLevelsCmd())
	return cmd
}

// setup loads the configuration, initializes logging and builds the backend
// client shared by every command.
func setup(ctx context.Context) (*config.Config, *backend.Client, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, nil, err
	}
	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		return nil, nil, fmt.Errorf("init logging: %w", err)
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(ctx, "invalid log_level; falling back to info",
			logger.String("log_level", cfg.LogLevel),
			logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	client, err := backend.New(cfg.BackendURL,
		backend.WithToken(cfg.BackendToken),
		backend.WithTimeout(cfg.BackendTimeout()),
		backend.WithMaxPages(cfg.ResultsMaxPages),
		backend.WithLogger(logger.Named("backend")))
	if err != nil {
		return nil, nil, err
	}
	return cfg, client, nil
}
