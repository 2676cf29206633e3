// Embedd serves dense, sparse, and late-interaction text embeddings
// over HTTP.
//
// Configuration is loaded from ~/.config/embedd/config.yaml and
// EMBEDD_-prefixed environment variables. The three category default
// models are loaded eagerly at startup unless warmup is disabled.
//
// Usage:
//
//	# Start server with defaults
//	embedd
//
//	# Configure via flags or environment
//	embedd --config ./config.yaml
//	EMBEDD_SERVER_PORT=9000 embedd
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/embedd/internal/config"
	"github.com/fyrsmithlabs/embedd/internal/embeddings"
	httpserver "github.com/fyrsmithlabs/embedd/internal/http"
	"github.com/fyrsmithlabs/embedd/internal/logging"
	"github.com/fyrsmithlabs/embedd/internal/registry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:          "embedd",
	Short:        "Local text-embedding HTTP service",
	Long:         "Embedd serves dense, sparse (SPLADE), and late-interaction (ColBERT) text embeddings from local ONNX models over HTTP.",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(cmd.Context())
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(*cobra.Command, []string) {
		fmt.Printf("embedd by Fyrsmith Labs\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Commit:     %s\n", gitCommit)
		fmt.Printf("Build Date: %s\n", buildDate)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default ~/.config/embedd/config.yaml)")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// run starts the embedd server and blocks until the context is
// cancelled or the server fails.
func run(ctx context.Context) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() {
		_ = logger.Sync() // Best-effort sync on shutdown
	}()

	logger.Info("starting embedd",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("models_dir", cfg.Models.Dir))

	registries, err := buildRegistries(cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing model registries: %w", err)
	}
	defer closeRegistries(registries, logger)

	if cfg.Models.Warmup {
		logger.Info("warming default models")
		if err := warmDefaults(ctx, cfg, registries); err != nil {
			return fmt.Errorf("warming default models: %w", err)
		}
	}

	server, err := httpserver.NewServer(registries, logger, &httpserver.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
		Defaults: httpserver.Defaults{
			Dense:           cfg.Models.DenseDefault,
			Sparse:          cfg.Models.SparseDefault,
			LateInteraction: cfg.Models.LateInteractionDefault,
		},
	})
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down", zap.Duration("timeout", cfg.Server.ShutdownTimeout.Duration()))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}

// buildRegistries wires one bounded registry per model category.
func buildRegistries(cfg *config.Config, logger *zap.Logger) (*httpserver.Registries, error) {
	dense, err := registry.New[embeddings.DenseModel]("dense", cfg.Models.DenseCapacity,
		func(ctx context.Context, name string) (embeddings.DenseModel, error) {
			return embeddings.NewDenseModel(ctx, embeddings.DenseConfig{
				Model:     name,
				CacheDir:  cfg.Models.Dir,
				MaxLength: cfg.Models.MaxLength,
			})
		}, logger)
	if err != nil {
		return nil, err
	}

	sparse, err := registry.New[embeddings.SparseModel]("sparse", cfg.Models.SparseCapacity,
		func(ctx context.Context, name string) (embeddings.SparseModel, error) {
			return embeddings.NewSparseModel(ctx, embeddings.TransformerConfig{
				Model:     name,
				ModelsDir: cfg.Models.Dir,
				MaxLength: cfg.Models.MaxLength,
			})
		}, logger)
	if err != nil {
		return nil, err
	}

	late, err := registry.New[embeddings.LateInteractionModel]("late-interaction", cfg.Models.LateInteractionCapacity,
		func(ctx context.Context, name string) (embeddings.LateInteractionModel, error) {
			return embeddings.NewLateInteractionModel(ctx, embeddings.TransformerConfig{
				Model:     name,
				ModelsDir: cfg.Models.Dir,
				MaxLength: cfg.Models.MaxLength,
			})
		}, logger)
	if err != nil {
		return nil, err
	}

	return &httpserver.Registries{
		Dense:           dense,
		Sparse:          sparse,
		LateInteraction: late,
	}, nil
}

// warmDefaults eagerly loads the three category default models. Any
// failure is fatal to startup.
func warmDefaults(ctx context.Context, cfg *config.Config, r *httpserver.Registries) error {
	if err := r.Dense.Warm(ctx, cfg.Models.DenseDefault); err != nil {
		return err
	}
	if err := r.Sparse.Warm(ctx, cfg.Models.SparseDefault); err != nil {
		return err
	}
	return r.LateInteraction.Warm(ctx, cfg.Models.LateInteractionDefault)
}

func closeRegistries(r *httpserver.Registries, logger *zap.Logger) {
	for name, closer := range map[string]interface{ Close() error }{
		"dense":            r.Dense,
		"sparse":           r.Sparse,
		"late-interaction": r.LateInteraction,
	} {
		if err := closer.Close(); err != nil {
			logger.Warn("closing registry", zap.String("category", name), zap.Error(err))
		}
	}
}
