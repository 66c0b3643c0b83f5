package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ovenworks/banneton/internal/access"
	"github.com/ovenworks/banneton/internal/audit"
	"github.com/ovenworks/banneton/internal/store"
)

var initDemo bool

const configTemplate = `# banneton operator configuration.
# Every key can also be set via environment variable with the BANNETON_ prefix.

# signing_key: set-a-random-string-of-at-least-32-bytes
# openai_api_key: sk-...
# model: gpt-4o-mini
# listen_addr: ":8080"
# max_iterations: 3

# API keys for the HTTP server, mapping key -> tenant ID:
# api_keys:
#   "replace-with-a-strong-key": ten_a1b2c3d4
`

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the data directory and databases",
	Long: `Creates the data directory, both SQLite databases, and a commented
config template. With --demo, seeds a demonstration tenant with one user
per role and a small product catalog, and prints their IDs.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initDemo, "demo", false, "seed a demo tenant with users and products")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	ctx, span := tracer.Start(cmd.Context(), "init")
	defer span.End()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	// Opening the stores creates their schemas.
	st, err := store.Open(cfg.StoreDBPath())
	if err != nil {
		return fmt.Errorf("initializing store: %w", err)
	}
	defer st.Close()

	auditStore, err := audit.NewStore(cfg.AuditDBPath(), cfg.SigningKey)
	if err != nil {
		return fmt.Errorf("initializing audit store: %w", err)
	}
	defer auditStore.Close()

	configPath := filepath.Join(cfg.DataDir, "banneton.config.yaml")
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := os.WriteFile(configPath, []byte(configTemplate), 0o600); err != nil {
			return fmt.Errorf("writing config template: %w", err)
		}
		fmt.Printf("Wrote config template to %s\n", configPath)
	}

	fmt.Printf("Initialized data directory %s\n", cfg.DataDir)

	if !initDemo {
		return nil
	}

	tenant := &store.Tenant{
		Name:              "Demo Bakery",
		Status:            store.StatusActive,
		MaxUsers:          10,
		MaxProducts:       100,
		MaxOrdersPerMonth: 500,
	}
	if err := st.CreateTenant(ctx, tenant); err != nil {
		return fmt.Errorf("seeding demo tenant: %w", err)
	}
	fmt.Printf("\nDemo tenant: %s\n", tenant.ID)

	for _, role := range access.Roles() {
		u := &store.User{
			TenantID: tenant.ID,
			Name:     "Demo " + role,
			Email:    role + "@demo.example",
			Role:     role,
			Status:   store.StatusActive,
		}
		if err := st.CreateUser(ctx, u); err != nil {
			return fmt.Errorf("seeding demo user: %w", err)
		}
		fmt.Printf("  %-16s %s\n", role, u.ID)
	}

	products := []store.Product{
		{TenantID: tenant.ID, Name: "Sourdough Loaf", PriceCents: 650, Stock: 40, Active: true},
		{TenantID: tenant.ID, Name: "Rye Bread", PriceCents: 550, Stock: 25, Active: true},
		{TenantID: tenant.ID, Name: "Croissant", PriceCents: 320, Stock: 60, Active: true},
		{TenantID: tenant.ID, Name: "Cinnamon Bun", PriceCents: 380, Stock: 4, Active: true},
	}
	for i := range products {
		if err := st.CreateProduct(ctx, &products[i]); err != nil {
			return fmt.Errorf("seeding demo product: %w", err)
		}
	}
	fmt.Printf("  %d products seeded\n", len(products))

	log.Info().
		Str("tenant_id", tenant.ID).
		Time("seeded_at", time.Now().UTC()).
		Msg("demo_data_seeded")
	return nil
}
