package managers

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/vaultbridge/vaultbridge/pkg/clients/safeguard"
	"github.com/vaultbridge/vaultbridge/pkg/domain"
	"golang.org/x/sync/errgroup"
)

const defaultReconcileConcurrency = 4

type AccountMappingManagerDependencies struct {
	Repository  domain.ConfigurationRepository
	Connector   domain.ApplianceConnector
	Plugins     domain.PluginManager
	Concurrency int
}

type accountMappingManager struct {
	repository  domain.ConfigurationRepository
	connector   domain.ApplianceConnector
	plugins     domain.PluginManager
	concurrency int
}

func NewAccountMappingManager(deps AccountMappingManagerDependencies) domain.AccountMappingManager {
	concurrency := deps.Concurrency
	if concurrency <= 0 {
		concurrency = defaultReconcileConcurrency
	}

	return &accountMappingManager{
		repository:  deps.Repository,
		connector:   deps.Connector,
		plugins:     deps.Plugins,
		concurrency: concurrency,
	}
}

func (m *accountMappingManager) GetAccountMappings(ctx context.Context, pluginName string) ([]domain.AccountMapping, error) {
	plugin, err := m.repository.GetPluginByName(ctx, pluginName)
	if err != nil {
		return nil, err
	}

	return m.repository.GetAccountMappingsByVault(ctx, plugin.Name)
}

// SaveAccountMappings resolves every candidate against the A2A registration and
// binds the resolved accounts to the plugin. Candidates that fail to resolve are skipped.
func (m *accountMappingManager) SaveAccountMappings(ctx context.Context, pluginName string, accounts []domain.RetrievableAccount) ([]domain.AccountMapping, error) {
	// Registration first, it needs no plugin lookup and no network
	registrationID, err := getRegistrationID(ctx, m.repository)
	if err != nil {
		return nil, err
	}

	plugin, err := m.repository.GetPluginByName(ctx, pluginName)
	if err != nil {
		return nil, err
	}

	if len(accounts) > 0 {
		client, err := connectSession(ctx, m.connector)
		if err != nil {
			return nil, err
		}
		defer client.Close()

		resolved := m.resolveAccounts(ctx, client, registrationID, accounts)

		mappings := make([]domain.AccountMapping, 0, len(resolved))
		for _, account := range resolved {
			mappings = append(mappings, domain.AccountMapping{
				VaultName:      plugin.Name,
				AccountID:      account.AccountID,
				AccountName:    account.AccountName,
				AssetName:      account.SystemName,
				DomainName:     account.DomainName,
				NetworkAddress: account.NetworkAddress,
				APIKey:         account.APIKey,
			})
		}

		if len(mappings) > 0 {
			// Resolved accounts are kept even when the caller went away mid-batch
			if err := m.repository.SaveAccountMappings(context.WithoutCancel(ctx), mappings); err != nil {
				return nil, err
			}
		}

		log.Info().
			Str("plugin", plugin.Name).
			Int("candidates", len(accounts)).
			Int("saved", len(mappings)).
			Msg("Account mappings saved")
	}

	return m.repository.GetAccountMappingsByVault(context.WithoutCancel(ctx), plugin.Name)
}

func (m *accountMappingManager) resolveAccounts(ctx context.Context, client safeguard.ClientInterface, registrationID int, accounts []domain.RetrievableAccount) []domain.RetrievableAccount {
	var (
		resolved      []domain.RetrievableAccount
		resolvedMutex sync.Mutex
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(m.concurrency)

	for _, candidate := range accounts {
		if err := groupCtx.Err(); err != nil {
			log.Warn().Err(err).Int("account_id", candidate.AccountID).Msg("Account resolution cancelled")
			continue
		}

		group.Go(func() error {
			account, err := resolveRetrievableAccount(groupCtx, client, registrationID, candidate.AccountID)
			if err != nil {
				// one bad account must not cancel the batch
				log.Warn().Err(err).Int("account_id", candidate.AccountID).Msg("Skipping account that could not be resolved")
				return nil
			}

			resolvedMutex.Lock()
			resolved = append(resolved, *account)
			resolvedMutex.Unlock()

			return nil
		})
	}

	_ = group.Wait()

	return resolved
}

func (m *accountMappingManager) DeleteAccountMappings(ctx context.Context, pluginName string) error {
	plugin, err := m.repository.GetPluginByName(ctx, pluginName)
	if err != nil {
		return err
	}

	mappings, err := m.repository.GetAccountMappingsByVault(ctx, plugin.Name)
	if err != nil {
		return err
	}

	for _, mapping := range mappings {
		if err := m.repository.DeleteAccountMappingByKey(ctx, mapping.Key); err != nil {
			return err
		}
	}

	log.Info().Str("plugin", plugin.Name).Int("deleted", len(mappings)).Msg("Account mappings deleted")

	return nil
}

func (m *accountMappingManager) DeleteAllAccountMappings(ctx context.Context) error {
	if err := m.repository.DeleteAccountMappings(ctx); err != nil {
		return err
	}

	log.Info().Msg("All account mappings deleted")

	return nil
}

// SyncCredentials pulls each mapped password over A2A and pushes it into its
// vault. An empty plugin name syncs every plugin.
func (m *accountMappingManager) SyncCredentials(ctx context.Context, pluginName string) (domain.SyncResult, error) {
	var (
		mappings []domain.AccountMapping
		err      error
	)

	if pluginName == "" {
		mappings, err = m.repository.GetAccountMappings(ctx)
	} else {
		var plugin *domain.Plugin
		plugin, err = m.repository.GetPluginByName(ctx, pluginName)
		if err != nil {
			return domain.SyncResult{}, err
		}

		mappings, err = m.repository.GetAccountMappingsByVault(ctx, plugin.Name)
	}
	if err != nil {
		return domain.SyncResult{}, err
	}

	result := domain.SyncResult{}
	if len(mappings) == 0 {
		return result, nil
	}

	params, err := loadA2AParams(ctx, m.repository)
	if err != nil {
		return result, err
	}

	client, err := m.connector.ConnectA2A(ctx, params)
	if err != nil {
		return result, err
	}
	defer client.Close()

	for _, mapping := range mappings {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if err := m.syncMapping(ctx, client, mapping); err != nil {
			result.Failed++

			log.Warn().
				Err(err).
				Str("plugin", mapping.VaultName).
				Int("account_id", mapping.AccountID).
				Msg("Failed to sync credential")

			continue
		}

		result.Pushed++
	}

	log.Info().
		Str("plugin", pluginName).
		Int("pushed", result.Pushed).
		Int("failed", result.Failed).
		Msg("Credential sync finished")

	return result, nil
}

func (m *accountMappingManager) syncMapping(ctx context.Context, client safeguard.ClientInterface, mapping domain.AccountMapping) error {
	if mapping.APIKey == "" {
		return errors.New("mapping has no api key")
	}

	password, err := client.RetrievePassword(ctx, mapping.APIKey)
	if err != nil {
		return classifyApplianceError(err)
	}

	return m.plugins.WithPlugin(ctx, mapping.VaultName, func(plugin domain.VaultPlugin) error {
		return plugin.SetPassword(ctx, domain.SetPasswordParams{
			AssetName:   mapping.AssetName,
			AccountName: mapping.AccountName,
			DomainName:  mapping.DomainName,
			Password:    password,
		})
	})
}
