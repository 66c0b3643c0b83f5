package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ovenworks/banneton/internal/audit"
)

var (
	auditTenantID string
	auditTool     string
	auditLimit    int
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the signed audit trail",
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent audit records",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, span := tracer.Start(cmd.Context(), "audit.list")
		defer span.End()

		auditStore, err := openAuditStore()
		if err != nil {
			return err
		}
		defer auditStore.Close()

		recs, err := auditStore.List(ctx, auditTenantID, auditTool, auditLimit)
		if err != nil {
			return err
		}
		for _, r := range recs {
			status := "ok"
			if !r.Success {
				status = "denied/failed"
			}
			fmt.Printf("%s  %s  %-24s %-12s %s\n",
				r.ID, r.Timestamp.Format("2006-01-02 15:04:05"), r.ToolName, status, r.TenantID)
		}
		fmt.Fprintf(os.Stderr, "%d records\n", len(recs))
		return nil
	},
}

var auditShowCmd = &cobra.Command{
	Use:   "show <record-id>",
	Short: "Print one audit record as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, span := tracer.Start(cmd.Context(), "audit.show")
		defer span.End()

		auditStore, err := openAuditStore()
		if err != nil {
			return err
		}
		defer auditStore.Close()

		rec, err := auditStore.Get(ctx, args[0])
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify <record-id>",
	Short: "Verify a record's HMAC signature",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, span := tracer.Start(cmd.Context(), "audit.verify")
		defer span.End()

		auditStore, err := openAuditStore()
		if err != nil {
			return err
		}
		defer auditStore.Close()

		valid, err := auditStore.Verify(ctx, args[0])
		if err != nil {
			return err
		}
		if !valid {
			fmt.Printf("%s: signature INVALID\n", args[0])
			os.Exit(1)
		}
		fmt.Printf("%s: signature valid\n", args[0])
		return nil
	},
}

func openAuditStore() (*audit.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return audit.NewStore(cfg.AuditDBPath(), cfg.SigningKey)
}

func init() {
	auditListCmd.Flags().StringVar(&auditTenantID, "tenant", "", "tenant ID (required)")
	_ = auditListCmd.MarkFlagRequired("tenant")
	auditListCmd.Flags().StringVar(&auditTool, "tool", "", "filter by tool name")
	auditListCmd.Flags().IntVar(&auditLimit, "limit", 50, "maximum records to list")
	auditCmd.AddCommand(auditListCmd, auditShowCmd, auditVerifyCmd)
	rootCmd.AddCommand(auditCmd)
}
