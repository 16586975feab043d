package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"proof-reward-system/config"
	"proof-reward-system/logger"
	"proof-reward-system/models"
	"proof-reward-system/utils"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "proof-reward-system",
		Short:         "Proof-of-completion submissions, moderation and reward claims",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API and scheduled jobs",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runServe(cmd.Context(), configPath)
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Create or upgrade the submissions table and exit",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runMigrate(configPath)
			},
		},
		&cobra.Command{
			Use:   "export",
			Short: "Write one submissions snapshot to object storage and exit",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runExport(cmd.Context(), configPath)
			},
		},
	)
	return root
}

func loadConfig(path string) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	log := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		ServiceName: "proof-reward-system",
	})
	return cfg, log, nil
}

func runServe(ctx context.Context, configPath string) error {
	cfg, log, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := buildServer(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer srv.close()

	srv.scheduler.Start()

	listenErr := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		log.Info("server listening", zap.String("addr", addr))
		listenErr <- srv.app.Listen(addr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-listenErr:
		if err != nil {
			return fmt.Errorf("server stopped: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := srv.app.ShutdownWithContext(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	// detached claims must settle before the store and collaborator go away
	if err := srv.claims.Wait(shutdownCtx); err != nil {
		log.Error("claims still in flight at shutdown", zap.Error(err))
		errs = append(errs, err)
	}
	if err := srv.scheduler.Shutdown(); err != nil {
		errs = append(errs, fmt.Errorf("scheduler shutdown: %w", err))
	}
	return errors.Join(errs...)
}

func runMigrate(configPath string) error {
	cfg, log, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	db, err := utils.OpenDatabase(cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer closeDatabase(db, log)

	if err := models.Migrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	log.Info("migration complete", zap.String("driver", cfg.Database.Driver))
	return nil
}

func runExport(ctx context.Context, configPath string) error {
	cfg, log, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if !cfg.Export.Enabled() {
		return errors.New("export.bucket is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	db, err := utils.OpenDatabase(cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer closeDatabase(db, log)

	if err := models.Migrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	exporter, err := buildExportWorker(ctx, cfg, db, log)
	if err != nil {
		return err
	}
	key, err := exporter.Export(ctx)
	if err != nil {
		return err
	}
	fmt.Println(key)
	return nil
}
