package cli

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/vaultbridge/vaultbridge/internal/initialization"
)

func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "vaultbridge",
		Short: "vaultbridge credential bridge",
		Long: `vaultbridge registers with a Safeguard appliance as an A2A service and pushes
the passwords of mapped accounts into external vaults through plugins.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}

	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")

	serviceContainer, err := initialization.NewServiceContainer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize service container: %v\n", err)
		os.Exit(1)
	}

	rootCmd.AddCommand(NewStartCommand(serviceContainer))
	rootCmd.AddCommand(NewResetCommand(serviceContainer))
	rootCmd.AddCommand(NewStatusCommand(serviceContainer))
	rootCmd.AddCommand(NewPluginsCommand(serviceContainer))
	rootCmd.AddCommand(NewVersionCommand())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
