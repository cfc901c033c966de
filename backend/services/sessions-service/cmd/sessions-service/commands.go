package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"chargepark/backend/libs/logging"
	"chargepark/backend/services/sessions-service/internal/app"
	"chargepark/backend/services/sessions-service/internal/config"
	"chargepark/backend/services/sessions-service/internal/db"
	"chargepark/backend/services/sessions-service/internal/monitor"
)

const serviceName = "sessions-service"

var cfgPath string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           serviceName,
		Short:         "Charging session lifecycle service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "configuration file (defaults to $CONFIG_FILE)")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API and background monitors",
			RunE:  serve,
		},
		&cobra.Command{
			Use:       "sweep <monitor>",
			Short:     "Run a single monitor sweep and exit (" + strings.Join(monitor.Names(), ", ") + ")",
			Args:      cobra.ExactArgs(1),
			ValidArgs: monitor.Names(),
			RunE:      sweep,
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply the database schema",
			RunE:  migrate,
		},
	)
	return root
}

func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.NewLogger(serviceName)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logger, nil
}

func serve(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("failed to init application", zap.Error(err))
		return err
	}
	defer application.Close()

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("application stopped with error", zap.Error(err))
		return err
	}
	return nil
}

func sweep(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("failed to init application", zap.Error(err))
		return err
	}
	defer application.Close()

	result, err := application.Sweep(ctx, args[0])
	if err != nil {
		return err
	}
	logger.Info("sweep finished",
		zap.String("monitor", args[0]),
		zap.Int("scanned", result.Scanned),
		zap.Int("acted", result.Acted),
		zap.Int("failed", result.Failed),
	)
	return nil
}

func migrate(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	sqlDB, err := db.NewPostgres(cfg.Database.DSN, cfg.PoolOptions())
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer sqlDB.Close()

	if err := db.Migrate(cmd.Context(), sqlDB); err != nil {
		return err
	}
	logger.Info("schema applied")
	return nil
}
