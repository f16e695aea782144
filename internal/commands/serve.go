package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/RichardoC/relaychat/internal/api"
	"github.com/RichardoC/relaychat/internal/backend"
	"github.com/RichardoC/relaychat/internal/config"
	"github.com/RichardoC/relaychat/internal/db"
	"github.com/RichardoC/relaychat/internal/llm"
	"github.com/RichardoC/relaychat/internal/metrics"
	"github.com/RichardoC/relaychat/internal/server"
	"github.com/RichardoC/relaychat/web"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the chat relay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return Serve(cmd.Context(), root.configPath)
		},
	}
}

// Serve loads the configuration at configPath and runs the relay until ctx
// is cancelled or the process receives SIGINT or SIGTERM.
func Serve(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := newRelay(cfg, logger)
	if err != nil {
		logger.Error("failed to start relay", zap.Error(err))
		return err
	}

	logger.Info("Starting relay",
		zap.String("addr", cfg.Server.Addr),
		zap.Bool("backend_configured", cfg.Backend.URL != ""),
		zap.Bool("history", cfg.StorageEnabled()))

	if err := srv.Run(ctx); err != nil {
		logger.Error("relay stopped with error", zap.Error(err))
		return err
	}
	logger.Info("Relay stopped")
	return nil
}

// newRelay wires the relay's collaborators from cfg. Resources that need
// closing are registered with the returned server.
func newRelay(cfg *config.Config, logger *zap.Logger) (*server.Server, error) {
	m := metrics.New()

	titles, err := llm.New(cfg.Titles.BaseURL, cfg.Titles.APIKey, cfg.Titles.Model, logger.Named("titles"))
	if err != nil {
		return nil, err
	}

	tokens := llm.NewTokenCounter("")
	go func() {
		if err := tokens.EnsureLoaded(); err != nil {
			logger.Warn("token encoding unavailable, estimating usage", zap.Error(err))
		}
	}()

	deps := api.Deps{
		Backend: backend.New(backend.Options{
			BaseURL: cfg.Backend.URL,
			APIKey:  cfg.Backend.APIKey,
			Logger:  logger.Named("backend"),
		}),
		Titles:       titles,
		Tokens:       tokens,
		Metrics:      m,
		Upload:       cfg.Upload,
		HistoryLimit: cfg.Storage.HistoryLimit,
		Assets:       web.Assets(),
		Logger:       logger,
	}

	var database *db.Database
	if cfg.StorageEnabled() {
		database, err = db.New(cfg.Storage.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database %s: %w", cfg.Storage.Path, err)
		}
		deps.Store = database
	}

	handler := api.NewHandler(deps)
	srv := server.New(cfg.Server, handler.Routes(), logger, m)

	// closed in reverse order: pending titles finish before the database goes
	if database != nil {
		srv.OnShutdown(database)
	}
	srv.OnShutdown(handler)
	return srv, nil
}
