package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/garyjia/purchase-workflow/internal/config"
	"github.com/garyjia/purchase-workflow/internal/container"
	"github.com/garyjia/purchase-workflow/pkg/database"
	"github.com/garyjia/purchase-workflow/pkg/utils"
)

const version = "1.0.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "purchase-workflow",
		Short:         "Purchase request approval workflow service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/config.yaml", "path to the YAML config file")

	serve := newServeCmd(&configPath)
	root.AddCommand(serve, newMigrateCmd(&configPath))
	root.RunE = serve.RunE

	return root
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, realtime hub and reminder worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := bootstrap(*configPath)
			if err != nil {
				return err
			}
			defer logger.Sync()

			return serve(cmd.Context(), cfg, logger)
		},
	}
}

func newMigrateCmd(configPath *string) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := bootstrap(*configPath)
			if err != nil {
				return err
			}
			defer logger.Sync()

			db, err := database.New(database.Config{
				Path:            cfg.Database.Path,
				MaxOpenConns:    1,
				MaxIdleConns:    1,
				ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
				BusyTimeout:     cfg.Database.BusyTimeout,
			}, logger)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer db.Close()

			migrator := database.NewMigrator(db, logger)
			if dryRun {
				pending, err := migrator.Pending()
				if err != nil {
					return fmt.Errorf("failed to list migrations: %w", err)
				}
				for _, m := range pending {
					fmt.Fprintf(cmd.OutOrStdout(), "%03d_%s\n", m.Version, m.Name)
				}
				return nil
			}

			applied, err := migrator.RunMigrations()
			if err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}

			logger.Info("Migrations complete", zap.Int("applied", applied))
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list pending migrations without applying them")
	return cmd
}

// bootstrap loads configuration and builds the process logger
func bootstrap(configPath string) (*config.Config, *zap.Logger, error) {
	if _, err := os.Stat(configPath); err != nil {
		// Fall back to defaults and environment variables
		configPath = ""
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := utils.NewLogger(cfg.LoggerSettings())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return cfg, logger, nil
}

func serve(parent context.Context, cfg *config.Config, logger *zap.Logger) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting purchase workflow service",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port))

	if cfg.Logger.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	c, err := container.NewContainer(cfg.ToContainerConfig(), logger)
	if err != nil {
		return fmt.Errorf("failed to create container: %w", err)
	}

	if err := c.Start(ctx); err != nil {
		return fmt.Errorf("failed to start container: %w", err)
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Error("Container shutdown error", zap.Error(err))
		}
	}()

	server, err := c.HTTPServer()
	if err != nil {
		return err
	}

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("http server: %w", err)
	}

	logger.Info("Server exited successfully")
	return nil
}
