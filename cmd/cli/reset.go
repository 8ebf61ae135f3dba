package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/vaultbridge/vaultbridge/internal/initialization"
)

func NewResetCommand(serviceContainer *initialization.ServiceContainer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Reset configuration and start fresh",
		Long: `Remove the config file, including the sealing key. Sealed values in the database
can no longer be read afterwards, so the database file is removed as well.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReset(cmd.Context(), serviceContainer)
		},
	}

	return cmd
}

func runReset(ctx context.Context, serviceContainer *initialization.ServiceContainer) error {
	configManager := serviceContainer.GetConfigManager()

	config, err := configManager.GetConfig(ctx)
	if err != nil {
		return err
	}

	if err := configManager.ResetConfig(ctx); err != nil {
		return err
	}

	if config.DatabasePath != "" {
		if err := os.Remove(config.DatabasePath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove database: %w", err)
		}
	}

	fmt.Println("✅ Configuration reset successfully")
	fmt.Printf("Run '%s start' to begin setup\n", os.Args[0])

	return nil
}
