package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-enrollment-api/internal/app"
	"github.com/noah-isme/sma-enrollment-api/pkg/config"
	"github.com/noah-isme/sma-enrollment-api/pkg/database"
	"github.com/noah-isme/sma-enrollment-api/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logr.Sync() //nolint:errcheck

	load := func(ctx context.Context) (*deps, error) {
		container, err := app.New(ctx, cfg, logr)
		if err != nil {
			return nil, err
		}
		return &deps{
			accounts: container.AccountSvc,
			migrate:  func(ctx context.Context) error { return database.Migrate(ctx, container.DB) },
			close:    container.Close,
		}, nil
	}

	if err := newRootCmd(load).ExecuteContext(context.Background()); err != nil {
		logr.Error("command failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
