package initialization

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/vaultbridge/vaultbridge/internal/store"
	"github.com/vaultbridge/vaultbridge/pkg/domain"
)

type RunFirstTimeSetupParams struct {
	ConfigManager domain.ConfigManager
}

// RunFirstTimeSetup generates the sealing key and writes the initial config file
func RunFirstTimeSetup(ctx context.Context, params RunFirstTimeSetupParams) error {
	fmt.Println("🔐 Welcome to vaultbridge")
	fmt.Println()
	fmt.Println("Generating a sealing key for private keys and API keys at rest...")

	config, err := params.ConfigManager.GetConfig(ctx)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	sealingKey, err := store.GenerateSealingKey()
	if err != nil {
		return fmt.Errorf("failed to generate sealing key: %w", err)
	}

	config.SealingKey = sealingKey

	if err := params.ConfigManager.SaveConfig(ctx, config); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	log.Info().Str("config_dir", params.ConfigManager.ConfigDir()).Msg("Sealing key generated")

	fmt.Println()
	fmt.Println("✅ Configuration saved")
	fmt.Println("   Keep the config file safe: without the sealing key stored secrets cannot be read.")
	fmt.Println()

	return nil
}
