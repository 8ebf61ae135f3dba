package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/vaultbridge/vaultbridge/internal/initialization"
	"github.com/vaultbridge/vaultbridge/pkg/domain"
)

func NewStatusCommand(serviceContainer *initialization.ServiceContainer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show current service status",
		Long:  `Display the service configuration, the configured appliance and the A2A registration.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), serviceContainer)
		},
	}

	return cmd
}

func runStatus(ctx context.Context, serviceContainer *initialization.ServiceContainer) error {
	configManager := serviceContainer.GetConfigManager()

	if !configManager.IsSetupComplete(ctx) {
		fmt.Println("❌ vaultbridge is not set up")
		fmt.Printf("Run '%s start' to begin setup\n", os.Args[0])

		return nil
	}

	deps, err := serviceContainer.BuildServiceDependencies(ctx)
	if err != nil {
		return err
	}
	defer deps.Close(ctx)

	address, err := deps.Repository.GetSetting(ctx, domain.SettingApplianceAddress)
	if err != nil {
		return err
	}

	registrationID, err := deps.Repository.GetSetting(ctx, domain.SettingA2ARegistrationID)
	if err != nil {
		return err
	}

	plugins, err := deps.PluginManager.ListPlugins(ctx)
	if err != nil {
		return err
	}

	mappings, err := deps.Repository.GetAccountMappings(ctx)
	if err != nil {
		return err
	}

	fmt.Println("✅ vaultbridge is set up")
	fmt.Printf("   Listen address: %s\n", deps.Config.HTTPAddress)
	fmt.Printf("   Database: %s\n", deps.Config.DatabasePath)
	fmt.Printf("   Plugin directory: %s\n", deps.Config.PluginDirectory)

	if address == "" {
		fmt.Println("   Appliance: not configured")
	} else {
		fmt.Printf("   Appliance: %s\n", address)
	}

	if registrationID == "" {
		fmt.Println("   A2A registration: none")
	} else {
		fmt.Printf("   A2A registration: %s\n", registrationID)
	}

	fmt.Printf("   Plugins: %d, account mappings: %d\n", len(plugins), len(mappings))

	if deps.Config.SyncSchedule != "" {
		fmt.Printf("   Sync schedule: %s\n", deps.Config.SyncSchedule)
	}

	return nil
}
