package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ovenworks/banneton/internal/access"
	"github.com/ovenworks/banneton/internal/agent"
	"github.com/ovenworks/banneton/internal/audit"
	"github.com/ovenworks/banneton/internal/execctx"
	"github.com/ovenworks/banneton/internal/llm"
	"github.com/ovenworks/banneton/internal/policy"
	"github.com/ovenworks/banneton/internal/store"
	"github.com/ovenworks/banneton/internal/tool"
	"github.com/ovenworks/banneton/internal/tool/catalog"
)

var (
	chatTenantID string
	chatUserID   string
)

var chatCmd = &cobra.Command{
	Use:   "chat <message>",
	Short: "Run a one-shot conversation from the command line",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatTenantID, "tenant", "", "tenant ID (required)")
	chatCmd.Flags().StringVar(&chatUserID, "user", "", "user ID (required)")
	_ = chatCmd.MarkFlagRequired("tenant")
	_ = chatCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, span := tracer.Start(cmd.Context(), "chat")
	defer span.End()

	message, err := agent.ValidateMessage(strings.Join(args, " "))
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
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

	engine, err := policy.NewEngine(ctx)
	if err != nil {
		return fmt.Errorf("preparing policy engine: %w", err)
	}

	registry := tool.NewRegistry()
	deps := tool.Deps{
		Validator: access.NewValidator(st, engine),
		Recorder:  audit.NewRecorder(auditStore),
	}
	if err := catalog.Register(registry, deps); err != nil {
		return fmt.Errorf("registering tool catalog: %w", err)
	}

	var provider llm.Provider = llm.NewOpenAIProvider(cfg.OpenAIKey)
	if base := viper.GetString("openai_base_url"); base != "" {
		provider = llm.NewOpenAIProviderWithBaseURL(cfg.OpenAIKey, base)
	}

	ec, err := execctx.NewFactory(st).Create(ctx, chatTenantID, chatUserID)
	if err != nil {
		return fmt.Errorf("resolving execution context: %w", err)
	}

	orchestrator := agent.New(agent.Config{
		Registry:      registry,
		Provider:      provider,
		Model:         cfg.Model,
		MaxIterations: cfg.MaxIterations,
	})

	resp, err := orchestrator.Run(ctx, ec, message)
	if err != nil {
		return err
	}

	for _, call := range resp.ToolCalls {
		status := "ok"
		if !call.Result.Success {
			status = "failed: " + call.Result.Error
		}
		fmt.Printf("[tool] %s (%s)\n", call.Name, status)
	}
	if resp.FallbackMode {
		fmt.Println("[fallback mode]")
	}
	fmt.Println(resp.Response)
	return nil
}
