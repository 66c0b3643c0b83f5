package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ovenworks/banneton/internal/access"
	"github.com/ovenworks/banneton/internal/audit"
	"github.com/ovenworks/banneton/internal/tool"
	"github.com/ovenworks/banneton/internal/tool/catalog"
)

var toolsRole string

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tool catalog, optionally filtered by role",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, span := tracer.Start(cmd.Context(), "tools")
		defer span.End()

		if toolsRole != "" && !access.ValidRole(toolsRole) {
			return fmt.Errorf("unknown role %q (valid: %v)", toolsRole, access.Roles())
		}

		// The catalog's declarations are all this command needs; the
		// validator and recorder are never exercised by a listing.
		registry := tool.NewRegistry()
		if err := catalog.Register(registry, tool.Deps{Recorder: audit.NewRecorder(nil)}); err != nil {
			return err
		}

		roles := access.Roles()
		if toolsRole != "" {
			roles = []string{toolsRole}
		}
		for _, role := range roles {
			tools := registry.ForRole(role)
			fmt.Printf("%s (%d tools)\n", role, len(tools))
			for _, t := range tools {
				desc := t.Descriptor()
				fmt.Printf("  %-24s %s\n", desc.Name, desc.Description)
			}
		}
		return nil
	},
}

func init() {
	toolsCmd.Flags().StringVar(&toolsRole, "role", "", "only show tools available to this role")
	rootCmd.AddCommand(toolsCmd)
}
