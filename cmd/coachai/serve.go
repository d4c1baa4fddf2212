package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/healthmate/coachai/internal/agent"
	"github.com/healthmate/coachai/internal/auth"
	"github.com/healthmate/coachai/internal/config"
	"github.com/healthmate/coachai/internal/mcp"
	"github.com/healthmate/coachai/internal/memory"
	"github.com/healthmate/coachai/internal/observability"
	"github.com/healthmate/coachai/internal/server"
	"github.com/healthmate/coachai/internal/tools"
)

const shutdownTimeout = 10 * time.Second

func buildServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the CoachAI server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file (environment still wins)")
	return cmd
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)
	logger.Info("CoachAI starting",
		"environment", cfg.Environment,
		"log_level", cfg.SlogLevel().String(),
		"region", cfg.AWS.Region,
		"model", cfg.Model.ID,
	)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics()
	tracer, shutdownTracer := observability.NewTracer(observability.TraceConfig{
		ServiceName:    "coachai",
		ServiceVersion: version,
		Environment:    cfg.Environment,
		Endpoint:       cfg.Observability.TraceEndpoint,
		Insecure:       cfg.Observability.TraceInsecure,
	})

	creds, err := auth.NewM2MSource(auth.M2MConfig{
		ProviderName: cfg.M2M.ProviderName,
		TokenURL:     cfg.M2M.TokenURL,
		ClientID:     cfg.M2M.ClientID,
		ClientSecret: cfg.M2M.ClientSecret,
		Scope:        cfg.M2M.Scope,
	}, logger)
	if err != nil {
		return fmt.Errorf("m2m credentials: %w", err)
	}

	gateway := mcp.NewClient(cfg.GatewayEndpoint(), creds, metrics, tracer, logger)
	registry := tools.NewRegistry(gateway, metrics, tracer, logger)

	runtime, err := agent.NewBedrockRuntime(ctx, agent.BedrockConfig{
		Region:          cfg.AWS.Region,
		AccessKeyID:     cfg.AWS.AccessKeyID,
		SecretAccessKey: cfg.AWS.SecretAccessKey,
		SessionToken:    cfg.AWS.SessionToken,
	}, logger)
	if err != nil {
		return fmt.Errorf("model runtime: %w", err)
	}

	store := memory.NewInMemoryStore()
	coach := agent.NewCoach(runtime, registry, store, cfg.Model.ID, cfg.Memory.HistoryWindow, logger)

	srv := server.New(cfg, coach, metrics, tracer, logger)
	if err := srv.Start(); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	srv.Stop(shutdownCtx)
	if err := shutdownTracer(shutdownCtx); err != nil {
		logger.Warn("tracer shutdown error", "error", err)
	}
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.FromEnv(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
