package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/vaultbridge/vaultbridge/internal/initialization"
	"github.com/vaultbridge/vaultbridge/internal/server"
)

func NewStartCommand(serviceContainer *initialization.ServiceContainer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the service (auto-setup if needed)",
		Long:  `Start the vaultbridge HTTP service. On first run a sealing key is generated and saved to the config file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(serviceContainer)
		},
	}

	return cmd
}

func runStart(serviceContainer *initialization.ServiceContainer) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	configManager := serviceContainer.GetConfigManager()

	if !configManager.IsSetupComplete(ctx) {
		if err := initialization.RunFirstTimeSetup(ctx, initialization.RunFirstTimeSetupParams{
			ConfigManager: configManager,
		}); err != nil {
			return err
		}
	}

	deps, err := serviceContainer.BuildServiceDependencies(ctx)
	if err != nil {
		return err
	}
	defer deps.Close(context.Background())

	discovered, err := deps.PluginManager.DiscoverPlugins(ctx, deps.Config.PluginDirectory)
	if err != nil {
		log.Error().Err(err).Str("directory", deps.Config.PluginDirectory).Msg("Plugin discovery failed")
	} else {
		log.Info().Int("count", len(discovered)).Str("directory", deps.Config.PluginDirectory).Msg("Plugins discovered")
	}

	if err := deps.PluginManager.LoadAll(ctx); err != nil {
		log.Warn().Err(err).Msg("Some plugins failed to load")
	}

	go deps.SessionCache.Run(ctx)

	go func() {
		if err := deps.SyncScheduler.Run(ctx); err != nil {
			log.Error().Err(err).Msg("Sync scheduler stopped")
		}
	}()

	app := server.NewHTTPServer(server.HTTPServerDependencies{
		SessionCache:        deps.SessionCache,
		SafeguardManager:    deps.SafeguardManager,
		SafeguardController: deps.SafeguardController,
		PluginsController:   deps.PluginsController,
		RequestTimeout:      deps.Config.RequestTimeout(),
	})

	log.Info().Str("address", deps.Config.HTTPAddress).Str("base_path", server.BasePath).Msg("Starting vaultbridge service")

	if err := app.Listen(deps.Config.HTTPAddress, fiber.ListenConfig{
		GracefulContext:       ctx,
		DisableStartupMessage: true,
	}); err != nil {
		log.Error().Err(err).Msg("HTTP server failed")
		return err
	}

	log.Info().Msg("vaultbridge service stopped")

	return nil
}
