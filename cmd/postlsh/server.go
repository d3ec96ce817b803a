package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/google/uuid"
	"github.com/hyperjump/postlsh/internal/config"
	"github.com/hyperjump/postlsh/internal/ingest"
	"github.com/hyperjump/postlsh/internal/kv"
	"github.com/hyperjump/postlsh/internal/lsh"
	"github.com/hyperjump/postlsh/internal/search"
	"github.com/hyperjump/postlsh/internal/server"
	"github.com/hyperjump/postlsh/pkg/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the HTTP server",
	Long: `Start the HTTP server.

Configuration is layered: built-in defaults, then the --config YAML file,
then a .env file in the working directory, then the environment
(REDIS_HOST, REDIS_PORT, RUST_API_HOST, RUST_API_PORT, LSH_* ...).

The server stops on SIGINT, SIGTERM or any message on the shutdown channel.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		debug, _ := cmd.Flags().GetBool("debug")
		return runServer(configPath, debug)
	},
}

var initCmd = &cobra.Command{
	Use:   "init <path>",
	Short: "Write a config file with default settings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Save(args[0], defaultConfig()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", args[0])
		return nil
	},
}

func init() {
	serverCmd.Flags().String("config", "", "config file path (optional)")
	serverCmd.Flags().Bool("debug", false, "enable debug logging (per-request and per-message)")
	rootCmd.AddCommand(serverCmd, initCmd)
}

func defaultConfig() *config.Config {
	cfg := &config.Config{LSH: config.LSHConfig{Seed: config.DefaultSeed}}
	config.ApplyDefaults(cfg)
	return cfg
}

// Components holds the long-lived dependencies of the server.
type Components struct {
	// Requests serves the HTTP handlers; Background serves backfill,
	// ingestion and the shutdown watcher.
	Requests   kv.Store
	Background kv.Store
	Index      *lsh.Index
}

// Close releases both store connections.
func (c *Components) Close() {
	if c.Requests != nil {
		_ = c.Requests.Close()
	}
	if c.Background != nil {
		_ = c.Background.Close()
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	c := &Components{
		Requests:   newRedisStore(cfg.Redis, clientName("requests")),
		Background: newRedisStore(cfg.Redis, clientName("background")),
	}
	for _, s := range []kv.Store{c.Requests, c.Background} {
		if err := s.Ping(ctx); err != nil {
			c.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr(), err)
		}
	}
	logger.Info("connected to redis", zap.String("addr", cfg.Redis.Addr()), zap.Int("db", cfg.Redis.DB))

	idx, err := lsh.NewSRP(cfg.LSH.Projections, cfg.LSH.Tables, cfg.LSH.Dim, cfg.LSH.Seed)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("create index: %w", err)
	}
	c.Index = idx
	logger.Info("index created",
		zap.Int("projections", cfg.LSH.Projections),
		zap.Int("tables", cfg.LSH.Tables),
		zap.Int("dim", cfg.LSH.Dim),
		zap.Int64("seed", cfg.LSH.Seed))
	return c, nil
}

// clientName tags a connection in CLIENT LIST with its role and process.
func clientName(role string) string {
	return fmt.Sprintf("postlsh-%s-%s", role, uuid.NewString()[:8])
}

func newRedisStore(cfg config.RedisConfig, name string) *kv.Redis {
	return kv.NewRedis(kv.RedisOptions{
		Addr:       cfg.Addr(),
		Password:   cfg.Password,
		DB:         cfg.DB,
		ClientName: name,
	})
}

func runServer(configPath string, debugFlag bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	debugMode := cfg.Debug || debugFlag
	logger, err := utils.NewLogger("postlsh", debugMode)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer utils.SyncLogger(logger)
	logger.Info("config loaded", zap.String("config_path", configPath), zap.Bool("debug", debugMode))
	return serve(cfg, logger)
}

// serve runs the service until a signal or a shutdown message. Every failure
// is logged before it is returned.
func serve(cfg *config.Config, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize components", zap.Error(err))
		return err
	}
	defer components.Close()

	if _, err := ingest.Backfill(ctx, components.Background, components.Index, cfg.Ingest.BackfillBatch, logger); err != nil {
		logger.Error("Backfill failed", zap.Error(err))
		return err
	}

	stop := new(atomic.Bool)
	watcher := ingest.NewShutdownWatcher(components.Background, stop, cancel, logger)
	worker := ingest.NewWorker(components.Background, components.Index,
		ingest.WithLogger(logger),
		ingest.WithStopFlag(stop),
		ingest.WithPool(cfg.Ingest.Workers),
		ingest.WithMaxReconnects(cfg.Ingest.MaxReconnects),
	)
	go func() {
		if err := worker.Run(ctx); err != nil {
			logger.Error("ingestion stopped", zap.Error(err))
		}
	}()
	go func() {
		if err := watcher.Run(ctx); err != nil {
			logger.Error("shutdown watcher stopped", zap.Error(err))
		}
	}()

	engine := search.NewEngine(components.Requests, components.Index, logger)
	srv := server.NewServer(components.Requests, components.Index, engine, &cfg.Server, logger)
	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	sigCtx, stopSignals := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stopSignals()
	select {
	case <-sigCtx.Done():
	case err := <-serveErr:
		logger.Error("Server failed", zap.Error(err))
		return fmt.Errorf("server failed: %w", err)
	}

	logger.Info("Shutting down...")
	watcher.Trigger()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("Shutdown failed", zap.Error(err))
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("server stopped", zap.Int("vectors", components.Index.Len()))
	return nil
}
