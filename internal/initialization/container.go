package initialization

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
	"github.com/vaultbridge/vaultbridge/internal/controllers"
	"github.com/vaultbridge/vaultbridge/internal/managers"
	"github.com/vaultbridge/vaultbridge/internal/store"
	"github.com/vaultbridge/vaultbridge/internal/version"
	"github.com/vaultbridge/vaultbridge/pkg/domain"
)

type ServiceDependencies struct {
	Config              domain.ServiceConfig
	Repository          domain.ConfigurationRepository
	SessionCache        domain.SessionAuthorizationCache
	PluginSelector      domain.PluginSelector
	PluginManager       domain.PluginManager
	AccountMappings     domain.AccountMappingManager
	SafeguardManager    domain.SafeguardManager
	SyncScheduler       *managers.SyncScheduler
	SafeguardController *controllers.SafeguardController
	PluginsController   *controllers.PluginsController
}

// Close unloads plugins, drops every session and closes the store
func (d *ServiceDependencies) Close(ctx context.Context) {
	d.PluginManager.UnloadAll(ctx)
	d.SessionCache.Close()

	if closer, ok := d.Repository.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close configuration store")
		}
	}
}

type ServiceContainer struct {
	configManager domain.ConfigManager
}

func NewServiceContainer() (*ServiceContainer, error) {
	configManager, err := domain.NewConfigManager()
	if err != nil {
		return nil, err
	}

	return &ServiceContainer{
		configManager: configManager,
	}, nil
}

func (c *ServiceContainer) GetConfigManager() domain.ConfigManager {
	return c.configManager
}

func (c *ServiceContainer) BuildServiceDependencies(ctx context.Context) (*ServiceDependencies, error) {
	log.Info().Msg("Building service dependencies")

	config, err := c.configManager.GetConfig(ctx)
	if err != nil {
		return nil, err
	}

	if config.SealingKey == "" {
		return nil, fmt.Errorf("%w: no sealing key, run 'start' to set up", domain.ErrNotConfigured)
	}

	sealer, err := store.NewAgeSealer(config.SealingKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load sealing key: %w", err)
	}

	repository, err := store.NewStore(ctx, store.StoreDependencies{
		DatabasePath: config.DatabasePath,
		Sealer:       sealer,
	})
	if err != nil {
		return nil, err
	}

	sessionCache := domain.NewSessionAuthorizationCache(domain.SessionAuthorizationCacheOptions{
		IdleTimeout: config.SessionIdleTimeout(),
	})

	pluginSelector := domain.NewPluginSelector()
	registerPlugins(pluginSelector)

	connector := managers.NewApplianceConnector(managers.ApplianceConnectorDependencies{
		Timeout:   config.ApplianceTimeout(),
		UserAgent: fmt.Sprintf("%s/%s", config.ServiceName, version.GetVersion()),
	})

	pluginManager := managers.NewPluginManager(managers.PluginManagerDependencies{
		Repository:     repository,
		PluginSelector: pluginSelector,
	})

	accountMappings := managers.NewAccountMappingManager(managers.AccountMappingManagerDependencies{
		Repository:  repository,
		Connector:   connector,
		Plugins:     pluginManager,
		Concurrency: config.ReconcileConcurrency,
	})

	safeguardManager := managers.NewSafeguardManager(managers.SafeguardManagerDependencies{
		Repository:      repository,
		Connector:       connector,
		AccountMappings: accountMappings,
		ServiceName:     config.ServiceName,
	})

	syncScheduler, err := managers.NewSyncScheduler(managers.SyncSchedulerDependencies{
		AccountMappings: accountMappings,
		Schedule:        config.SyncSchedule,
	})
	if err != nil {
		sessionCache.Close()
		if closer, ok := repository.(io.Closer); ok {
			_ = closer.Close()
		}

		return nil, err
	}

	safeguardController := controllers.NewSafeguardController(controllers.SafeguardControllerDependencies{
		SafeguardManager: safeguardManager,
		SessionCache:     sessionCache,
	})

	pluginsController := controllers.NewPluginsController(controllers.PluginsControllerDependencies{
		PluginManager:         pluginManager,
		AccountMappingManager: accountMappings,
	})

	log.Info().Msg("Service dependencies built successfully")

	return &ServiceDependencies{
		Config:              config,
		Repository:          repository,
		SessionCache:        sessionCache,
		PluginSelector:      pluginSelector,
		PluginManager:       pluginManager,
		AccountMappings:     accountMappings,
		SafeguardManager:    safeguardManager,
		SyncScheduler:       syncScheduler,
		SafeguardController: safeguardController,
		PluginsController:   pluginsController,
	}, nil
}
