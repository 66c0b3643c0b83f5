package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ovenworks/banneton/internal/access"
	"github.com/ovenworks/banneton/internal/agent"
	"github.com/ovenworks/banneton/internal/audit"
	"github.com/ovenworks/banneton/internal/execctx"
	"github.com/ovenworks/banneton/internal/llm"
	"github.com/ovenworks/banneton/internal/policy"
	"github.com/ovenworks/banneton/internal/server"
	"github.com/ovenworks/banneton/internal/store"
	"github.com/ovenworks/banneton/internal/tenant"
	"github.com/ovenworks/banneton/internal/tool"
	"github.com/ovenworks/banneton/internal/tool/catalog"
	"github.com/ovenworks/banneton/internal/trigger"
)

var (
	serveAddr       string
	serveDigestCron string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	Long: `Starts the banneton API server: authenticated chat, tool listings,
audit trail access, and the scheduled low-stock digest.

API keys map to tenants via the api_keys section of the config file:

  api_keys:
    "key-for-ronis": ten_a1b2c3d4`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	serveCmd.Flags().StringVar(&serveDigestCron, "digest-cron", trigger.DefaultDigestCron, "cron expression for the low-stock digest")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ctx, span := tracer.Start(ctx, "serve")
	defer span.End()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	st, err := store.Open(cfg.StoreDBPath())
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	auditStore, err := audit.NewStore(cfg.AuditDBPath(), cfg.SigningKey)
	if err != nil {
		return fmt.Errorf("opening audit store: %w", err)
	}
	defer auditStore.Close()
	recorder := audit.NewRecorder(auditStore)

	engine, err := policy.NewEngine(ctx)
	if err != nil {
		return fmt.Errorf("preparing policy engine: %w", err)
	}
	validator := access.NewValidator(st, engine)

	registry := tool.NewRegistry()
	if err := catalog.Register(registry, tool.Deps{Validator: validator, Recorder: recorder}); err != nil {
		return fmt.Errorf("registering tool catalog: %w", err)
	}

	var provider llm.Provider = llm.NewOpenAIProvider(cfg.OpenAIKey)
	if base := viper.GetString("openai_base_url"); base != "" {
		provider = llm.NewOpenAIProviderWithBaseURL(cfg.OpenAIKey, base)
	}

	orchestrator := agent.New(agent.Config{
		Registry:      registry,
		Provider:      provider,
		Model:         cfg.Model,
		MaxIterations: cfg.MaxIterations,
	})

	scheduler := trigger.NewScheduler(st, recorder)
	if err := scheduler.RegisterLowStockDigest(serveDigestCron, trigger.DefaultLowStockThreshold); err != nil {
		return err
	}
	scheduler.Start()
	defer scheduler.Stop()

	apiKeys := viper.GetStringMapString("api_keys")
	if len(apiKeys) == 0 {
		log.Warn().Msg("no api_keys configured; every request will be rejected")
	}

	srv := server.NewServer(
		orchestrator,
		registry,
		execctx.NewFactory(st),
		auditStore,
		apiKeys,
		server.WithTenantManager(tenant.NewManager(st)),
	)

	addr := serveAddr
	if addr == "" {
		addr = cfg.ListenAddr
	}
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      srv.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	log.Info().
		Str("addr", addr).
		Str("model", cfg.Model).
		Int("tools", registry.Len()).
		Int("cron_entries", scheduler.Entries()).
		Msg("banneton_serve_started")

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown_signal_received")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info().Msg("server_stopped")
	return nil
}
