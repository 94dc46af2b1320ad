package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fitgate/fitgate/internal/auth"
	"github.com/fitgate/fitgate/internal/config"
	"github.com/fitgate/fitgate/internal/dispatch"
	"github.com/fitgate/fitgate/internal/instrumentation"
	"github.com/fitgate/fitgate/internal/logging"
	fitmcp "github.com/fitgate/fitgate/internal/mcp"
	"github.com/fitgate/fitgate/internal/provider"
	"github.com/fitgate/fitgate/internal/provider/weather"
	"github.com/fitgate/fitgate/internal/session"
	"github.com/fitgate/fitgate/internal/tools"
	"github.com/fitgate/fitgate/internal/vault"
)

func newServeCmd() *cobra.Command {
	var (
		listenAddr  string
		metricsAddr string
		transport   string
		stdioUser   string
		logLevel    string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the fitness data gateway",
		Long: `Start the gateway server.

Supports two transport types:
  - tcp: newline-delimited JSON-RPC over TCP (default). Multi-tenant;
    clients authenticate with a session token on each request.
  - stdio: Model Context Protocol over standard input/output. Single
    tenant; requires --user to select the account to serve.

Configuration is read from the environment (FITGATE_* variables,
DATABASE_URL). Flags override environment values where given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("listen-addr") {
				cfg.ListenAddr = listenAddr
			}
			if cmd.Flags().Changed("metrics-addr") {
				cfg.MetricsAddr = metricsAddr
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if transport == "stdio" && stdioUser == "" {
				return fmt.Errorf("--user is required with --transport stdio")
			}
			return runServe(cfg, transport, stdioUser)
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen-addr", ":8765", "TCP listen address for the JSON-RPC server")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "Metrics server address")
	cmd.Flags().StringVar(&transport, "transport", "tcp", "Transport type: tcp or stdio")
	cmd.Flags().StringVar(&stdioUser, "user", "", "Account email to serve in stdio mode")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")

	return cmd
}

func runServe(cfg *config.Config, transport, stdioUser string) error {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	instr, err := instrumentation.NewProvider("fitgate", version, cfg.MetricsEnabled)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		if err := instr.Shutdown(context.Background()); err != nil {
			logger.Warn("instrumentation shutdown", logging.Err(err))
		}
	}()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	masterKey, err := cfg.MasterKeyBytes()
	if err != nil {
		return err
	}
	v, err := vault.New(store, masterKey)
	if err != nil {
		return fmt.Errorf("failed to initialize vault: %w", err)
	}

	signingSecret, err := cfg.SigningSecretBytes()
	if err != nil {
		return err
	}
	authManager, err := auth.New(signingSecret, cfg.TokenExpiry)
	if err != nil {
		return fmt.Errorf("failed to initialize auth manager: %w", err)
	}

	registry := provider.NewRegistry(provider.NewStrava())

	sessions := session.NewManager(v, registry, logger,
		session.WithMaxSessions(cfg.MaxSessions),
		session.WithMetrics(instr.Metrics()))

	toolRegistry := tools.NewRegistry()
	if err := tools.RegisterFitnessTools(toolRegistry, weather.NewClient(), logger); err != nil {
		return fmt.Errorf("failed to register tools: %w", err)
	}

	if transport == "stdio" {
		return runStdio(ctx, v, sessions, toolRegistry, stdioUser)
	}

	dispatcher := dispatch.New(dispatch.Config{
		Auth:          authManager,
		Vault:         v,
		Sessions:      sessions,
		Tools:         toolRegistry,
		Logger:        logger,
		Metrics:       instr.Metrics(),
		ServerName:    "fitgate",
		ServerVersion: version,
		IdleTimeout:   cfg.IdleTimeout,
	})

	if err := dispatcher.Listen(cfg.ListenAddr); err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.ListenAddr, err)
	}
	logger.Info("server listening",
		slog.String("addr", dispatcher.Addr().String()),
		slog.String("transport", transport))

	var metricsServer *http.Server
	if cfg.MetricsEnabled && instr.Enabled() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", instr.Handler())
		metricsServer = &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			logger.Info("metrics server listening", slog.String("addr", cfg.MetricsAddr))
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server failed", logging.Err(err))
			}
		}()
	}

	err = dispatcher.Serve(ctx)

	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if serr := metricsServer.Shutdown(shutdownCtx); serr != nil {
			logger.Warn("metrics server shutdown", logging.Err(serr))
		}
	}

	logger.Info("server stopped")
	return err
}

// runStdio serves the tool set for a single account over stdio.
func runStdio(ctx context.Context, v *vault.Vault, sessions *session.Manager, toolRegistry *tools.Registry, email string) error {
	user, err := v.GetUserByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to resolve user %q: %w", email, err)
	}
	srv := fitmcp.NewServer("fitgate", version, toolRegistry, sessions, user.ID)
	return fitmcp.ServeStdio(srv)
}

// openStore selects the credential store backend: Postgres when
// DATABASE_URL is set, otherwise in-memory.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (vault.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.Info("using in-memory credential store")
		return vault.NewMemoryStore(), func() {}, nil
	}
	pg, err := vault.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	logger.Info("using postgres credential store")
	return pg, pg.Close, nil
}
