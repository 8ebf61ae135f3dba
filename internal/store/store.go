package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/vaultbridge/vaultbridge/pkg/domain"

	_ "modernc.org/sqlite"
)

const InMemory = ":memory:"

type StoreDependencies struct {
	DatabasePath string
	Sealer       Sealer
}

type store struct {
	db     *bun.DB
	sealer Sealer
	now    func() time.Time
}

// NewStore opens the sqlite database at deps.DatabasePath and creates the schema
func NewStore(ctx context.Context, deps StoreDependencies) (domain.ConfigurationRepository, error) {
	if deps.Sealer == nil {
		return nil, fmt.Errorf("sealer is required")
	}

	if deps.DatabasePath != InMemory {
		if err := os.MkdirAll(filepath.Dir(deps.DatabasePath), 0700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	sqldb, err := sql.Open("sqlite", deps.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// every in-memory connection is its own database
	if deps.DatabasePath == InMemory {
		sqldb.SetMaxOpenConns(1)
	}

	s := &store{
		db:     bun.NewDB(sqldb, sqlitedialect.New()),
		sealer: deps.Sealer,
		now:    time.Now,
	}

	if err := s.migrate(ctx); err != nil {
		_ = s.db.Close()
		return nil, err
	}

	log.Debug().Str("path", deps.DatabasePath).Msg("Configuration store ready")

	return s, nil
}

func (s *store) migrate(ctx context.Context) error {
	models := []any{
		(*settingModel)(nil),
		(*pluginModel)(nil),
		(*accountMappingModel)(nil),
	}

	for _, model := range models {
		if _, err := s.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	_, err := s.db.NewCreateIndex().
		Model((*accountMappingModel)(nil)).
		Index("account_mappings_vault_account_idx").
		Unique().
		IfNotExists().
		Column("vault_name", "account_id").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create account mapping index: %w", err)
	}

	return nil
}

func (s *store) Close() error {
	return s.db.Close()
}

func (s *store) GetSetting(ctx context.Context, name domain.SettingName) (string, error) {
	var setting settingModel

	err := s.db.NewSelect().Model(&setting).Where("name = ?", string(name)).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get setting %s: %w", name, err)
	}

	if domain.IsSecretSetting(name) {
		value, err := s.sealer.Unseal(setting.Value)
		if err != nil {
			return "", fmt.Errorf("failed to unseal setting %s: %w", name, err)
		}

		return value, nil
	}

	return setting.Value, nil
}

func (s *store) SetSettings(ctx context.Context, settings map[domain.SettingName]string) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for name, value := range settings {
			if value == "" {
				if _, err := tx.NewDelete().Model((*settingModel)(nil)).Where("name = ?", string(name)).Exec(ctx); err != nil {
					return fmt.Errorf("failed to delete setting %s: %w", name, err)
				}

				continue
			}

			if domain.IsSecretSetting(name) {
				sealed, err := s.sealer.Seal(value)
				if err != nil {
					return fmt.Errorf("failed to seal setting %s: %w", name, err)
				}

				value = sealed
			}

			setting := &settingModel{
				Name:      string(name),
				Value:     value,
				UpdatedAt: s.now().UTC(),
			}

			_, err := tx.NewInsert().
				Model(setting).
				On("CONFLICT (name) DO UPDATE").
				Set("value = EXCLUDED.value").
				Set("updated_at = EXCLUDED.updated_at").
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("failed to save setting %s: %w", name, err)
			}
		}

		return nil
	})
}

func (s *store) DeleteSettings(ctx context.Context, names ...domain.SettingName) error {
	if len(names) == 0 {
		return nil
	}

	values := make([]string, 0, len(names))
	for _, name := range names {
		values = append(values, string(name))
	}

	_, err := s.db.NewDelete().Model((*settingModel)(nil)).Where("name IN (?)", bun.In(values)).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete settings: %w", err)
	}

	return nil
}

func (s *store) GetAllPlugins(ctx context.Context) ([]domain.Plugin, error) {
	var models []pluginModel

	if err := s.db.NewSelect().Model(&models).Order("name").Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to get plugins: %w", err)
	}

	plugins := make([]domain.Plugin, 0, len(models))
	for _, model := range models {
		plugin, err := toDomainPlugin(model)
		if err != nil {
			return nil, err
		}

		plugins = append(plugins, plugin)
	}

	return plugins, nil
}

func (s *store) getPluginModel(ctx context.Context, db bun.IDB, name string) (*pluginModel, error) {
	var model pluginModel

	err := db.NewSelect().Model(&model).Where("lower(name) = lower(?)", name).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: plugin %s", domain.ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plugin %s: %w", name, err)
	}

	return &model, nil
}

func (s *store) GetPluginByName(ctx context.Context, name string) (*domain.Plugin, error) {
	model, err := s.getPluginModel(ctx, s.db, name)
	if err != nil {
		return nil, err
	}

	plugin, err := toDomainPlugin(*model)
	if err != nil {
		return nil, err
	}

	return &plugin, nil
}

func (s *store) SavePlugin(ctx context.Context, plugin domain.Plugin) (*domain.Plugin, error) {
	if strings.TrimSpace(plugin.Name) == "" {
		return nil, fmt.Errorf("%w: plugin name is required", domain.ErrValidation)
	}

	configuration, err := json.Marshal(plugin.Configuration)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal plugin configuration: %w", err)
	}

	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing, err := s.getPluginModel(ctx, tx, plugin.Name)
		if err == nil {
			plugin.Name = existing.Name
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		model := &pluginModel{
			Name:          plugin.Name,
			DisplayName:   plugin.DisplayName,
			Description:   plugin.Description,
			Type:          string(plugin.Type),
			Configuration: string(configuration),
			UpdatedAt:     s.now().UTC(),
		}

		_, err = tx.NewInsert().
			Model(model).
			On("CONFLICT (name) DO UPDATE").
			Set("display_name = EXCLUDED.display_name").
			Set("description = EXCLUDED.description").
			Set("type = EXCLUDED.type").
			Set("configuration = EXCLUDED.configuration").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to save plugin %s: %w", plugin.Name, err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return &plugin, nil
}

func (s *store) DeletePluginByName(ctx context.Context, name string) error {
	_, err := s.db.NewDelete().Model((*pluginModel)(nil)).Where("lower(name) = lower(?)", name).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete plugin %s: %w", name, err)
	}

	return nil
}

func (s *store) GetAccountMappings(ctx context.Context) ([]domain.AccountMapping, error) {
	var models []accountMappingModel

	if err := s.db.NewSelect().Model(&models).Order("vault_name", "account_name").Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to get account mappings: %w", err)
	}

	return s.toDomainMappings(models)
}

func (s *store) GetAccountMappingsByVault(ctx context.Context, vaultName string) ([]domain.AccountMapping, error) {
	var models []accountMappingModel

	err := s.db.NewSelect().
		Model(&models).
		Where("lower(vault_name) = lower(?)", vaultName).
		Order("account_name").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get account mappings for %s: %w", vaultName, err)
	}

	return s.toDomainMappings(models)
}

func (s *store) SaveAccountMappings(ctx context.Context, mappings []domain.AccountMapping) error {
	if len(mappings) == 0 {
		return nil
	}

	type mappingID struct {
		vault     string
		accountID int
	}

	seen := make(map[mappingID]int, len(mappings))
	models := make([]accountMappingModel, 0, len(mappings))
	now := s.now().UTC()

	for _, mapping := range mappings {
		apiKey, err := s.sealer.Seal(mapping.APIKey)
		if err != nil {
			return fmt.Errorf("failed to seal API key for account %d: %w", mapping.AccountID, err)
		}

		key := mapping.Key
		if key == "" {
			key = xid.New().String()
		}

		model := accountMappingModel{
			MappingKey:     key,
			VaultName:      mapping.VaultName,
			AccountID:      mapping.AccountID,
			AccountName:    mapping.AccountName,
			AssetName:      mapping.AssetName,
			DomainName:     mapping.DomainName,
			NetworkAddress: mapping.NetworkAddress,
			APIKey:         apiKey,
			UpdatedAt:      now,
		}

		id := mappingID{vault: strings.ToLower(mapping.VaultName), accountID: mapping.AccountID}
		if index, ok := seen[id]; ok {
			model.MappingKey = models[index].MappingKey
			models[index] = model
			continue
		}

		seen[id] = len(models)
		models = append(models, model)
	}

	_, err := s.db.NewInsert().
		Model(&models).
		On("CONFLICT (vault_name, account_id) DO UPDATE").
		Set("account_name = EXCLUDED.account_name").
		Set("asset_name = EXCLUDED.asset_name").
		Set("domain_name = EXCLUDED.domain_name").
		Set("network_address = EXCLUDED.network_address").
		Set("api_key = EXCLUDED.api_key").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to save account mappings: %w", err)
	}

	return nil
}

func (s *store) DeleteAccountMappingByKey(ctx context.Context, key string) error {
	_, err := s.db.NewDelete().Model((*accountMappingModel)(nil)).Where("mapping_key = ?", key).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete account mapping %s: %w", key, err)
	}

	return nil
}

func (s *store) DeleteAccountMappings(ctx context.Context) error {
	_, err := s.db.NewDelete().Model((*accountMappingModel)(nil)).Where("1 = 1").Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete account mappings: %w", err)
	}

	return nil
}

func (s *store) toDomainMappings(models []accountMappingModel) ([]domain.AccountMapping, error) {
	mappings := make([]domain.AccountMapping, 0, len(models))

	for _, model := range models {
		apiKey, err := s.sealer.Unseal(model.APIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to unseal API key for mapping %s: %w", model.MappingKey, err)
		}

		mappings = append(mappings, domain.AccountMapping{
			Key:            model.MappingKey,
			VaultName:      model.VaultName,
			AccountID:      model.AccountID,
			AccountName:    model.AccountName,
			AssetName:      model.AssetName,
			DomainName:     model.DomainName,
			NetworkAddress: model.NetworkAddress,
			APIKey:         apiKey,
		})
	}

	return mappings, nil
}

func toDomainPlugin(model pluginModel) (domain.Plugin, error) {
	configuration := map[string]string{}

	if model.Configuration != "" {
		if err := json.Unmarshal([]byte(model.Configuration), &configuration); err != nil {
			return domain.Plugin{}, fmt.Errorf("failed to unmarshal configuration of plugin %s: %w", model.Name, err)
		}
	}

	if configuration == nil {
		configuration = map[string]string{}
	}

	return domain.Plugin{
		Name:          model.Name,
		DisplayName:   model.DisplayName,
		Description:   model.Description,
		Type:          domain.PluginType(model.Type),
		Configuration: configuration,
	}, nil
}
