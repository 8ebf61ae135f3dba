package managers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/vaultbridge/vaultbridge/pkg/domain"
	"gopkg.in/yaml.v3"
)

type PluginManagerDependencies struct {
	Repository     domain.ConfigurationRepository
	PluginSelector domain.PluginSelector
}

type pluginManager struct {
	repository     domain.ConfigurationRepository
	pluginSelector domain.PluginSelector

	instances      map[string]domain.VaultPlugin
	instancesMutex sync.RWMutex

	locks      map[string]*sync.Mutex
	locksMutex sync.Mutex
}

func NewPluginManager(deps PluginManagerDependencies) domain.PluginManager {
	return &pluginManager{
		repository:     deps.Repository,
		pluginSelector: deps.PluginSelector,
		instances:      make(map[string]domain.VaultPlugin),
		locks:          make(map[string]*sync.Mutex),
	}
}

func pluginKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// lockPlugin serializes load, unload, configure and sync for one plugin name
func (m *pluginManager) lockPlugin(name string) func() {
	key := pluginKey(name)

	m.locksMutex.Lock()
	lock, ok := m.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[key] = lock
	}
	m.locksMutex.Unlock()

	lock.Lock()

	return lock.Unlock
}

// forgetPluginLock drops the name lock of a deleted plugin; the caller still holds it
func (m *pluginManager) forgetPluginLock(name string) {
	m.locksMutex.Lock()
	delete(m.locks, pluginKey(name))
	m.locksMutex.Unlock()
}

func (m *pluginManager) instance(name string) (domain.VaultPlugin, bool) {
	m.instancesMutex.RLock()
	defer m.instancesMutex.RUnlock()

	instance, ok := m.instances[pluginKey(name)]

	return instance, ok
}

func (m *pluginManager) withLoadedFlag(plugin domain.Plugin) domain.Plugin {
	_, plugin.IsLoaded = m.instance(plugin.Name)

	return plugin
}

func (m *pluginManager) ListPlugins(ctx context.Context) ([]domain.Plugin, error) {
	plugins, err := m.repository.GetAllPlugins(ctx)
	if err != nil {
		return nil, err
	}

	for i := range plugins {
		plugins[i] = m.withLoadedFlag(plugins[i])
	}

	return plugins, nil
}

func (m *pluginManager) GetPlugin(ctx context.Context, name string) (*domain.Plugin, error) {
	plugin, err := m.repository.GetPluginByName(ctx, name)
	if err != nil {
		return nil, err
	}

	result := m.withLoadedFlag(*plugin)

	return &result, nil
}

func (m *pluginManager) LoadPlugin(ctx context.Context, name string) (*domain.Plugin, error) {
	unlock := m.lockPlugin(name)
	defer unlock()

	plugin, err := m.repository.GetPluginByName(ctx, name)
	if err != nil {
		return nil, err
	}

	if _, loaded := m.instance(plugin.Name); !loaded {
		if err := m.load(ctx, *plugin); err != nil {
			return nil, err
		}
	}

	result := m.withLoadedFlag(*plugin)

	return &result, nil
}

func (m *pluginManager) load(ctx context.Context, plugin domain.Plugin) error {
	creator, err := m.pluginSelector.SelectCreator(ctx, domain.SelectPluginParams{
		PluginType: plugin.Type,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}

	instance, err := creator.CreatePlugin(ctx, domain.CreatePluginParams{Name: plugin.Name})
	if err != nil {
		return fmt.Errorf("failed to create plugin %s: %w", plugin.Name, err)
	}

	configuration := mergeConfiguration(creator.DefaultConfiguration(), plugin.Configuration)

	if err := instance.Activate(ctx, configuration); err != nil {
		return fmt.Errorf("%w: failed to activate plugin %s: %v", domain.ErrUpstream, plugin.Name, err)
	}

	m.instancesMutex.Lock()
	m.instances[pluginKey(plugin.Name)] = instance
	m.instancesMutex.Unlock()

	log.Info().Str("plugin", plugin.Name).Str("type", string(plugin.Type)).Msg("Plugin loaded")

	return nil
}

func (m *pluginManager) UnloadPlugin(ctx context.Context, name string) (*domain.Plugin, error) {
	unlock := m.lockPlugin(name)
	defer unlock()

	plugin, err := m.repository.GetPluginByName(ctx, name)
	if err != nil {
		return nil, err
	}

	m.unload(ctx, plugin.Name)

	result := m.withLoadedFlag(*plugin)

	return &result, nil
}

func (m *pluginManager) unload(ctx context.Context, name string) {
	key := pluginKey(name)

	m.instancesMutex.Lock()
	instance, ok := m.instances[key]
	delete(m.instances, key)
	m.instancesMutex.Unlock()

	if !ok {
		return
	}

	if err := instance.Deactivate(ctx); err != nil {
		log.Warn().Err(err).Str("plugin", name).Msg("Plugin did not deactivate cleanly")
	}

	log.Info().Str("plugin", name).Msg("Plugin unloaded")
}

// SetConfiguration validates, persists and pushes the configuration. A plugin
// that no longer exists yields a nil plugin and no error.
func (m *pluginManager) SetConfiguration(ctx context.Context, name string, configuration map[string]string) (*domain.Plugin, error) {
	unlock := m.lockPlugin(name)
	defer unlock()

	plugin, err := m.repository.GetPluginByName(ctx, name)
	if errors.Is(err, domain.ErrNotFound) {
		log.Warn().Str("plugin", name).Msg("Configuration not saved, plugin does not exist")

		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	creator, err := m.pluginSelector.SelectCreator(ctx, domain.SelectPluginParams{
		PluginType: plugin.Type,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}

	merged := mergeConfiguration(creator.DefaultConfiguration(), configuration)

	if err := validateConfiguration(string(plugin.Type), creator.ConfigurationSchema(), merged); err != nil {
		return nil, err
	}

	plugin.Configuration = merged

	saved, err := m.repository.SavePlugin(ctx, *plugin)
	if err != nil {
		return nil, err
	}

	if instance, loaded := m.instance(saved.Name); loaded {
		if err := instance.ApplyConfiguration(ctx, merged); err != nil {
			return nil, fmt.Errorf("%w: failed to apply configuration to plugin %s: %v", domain.ErrUpstream, saved.Name, err)
		}

		log.Info().Str("plugin", saved.Name).Msg("Plugin configuration applied")
	}

	result := m.withLoadedFlag(*saved)

	return &result, nil
}

// DeletePlugin unloads the plugin, then removes its account mappings and persisted state
func (m *pluginManager) DeletePlugin(ctx context.Context, name string) error {
	unlock := m.lockPlugin(name)
	defer unlock()

	plugin, err := m.repository.GetPluginByName(ctx, name)
	if err != nil {
		return err
	}

	m.unload(ctx, plugin.Name)

	mappings, err := m.repository.GetAccountMappingsByVault(ctx, plugin.Name)
	if err != nil {
		return err
	}

	for _, mapping := range mappings {
		if err := m.repository.DeleteAccountMappingByKey(ctx, mapping.Key); err != nil {
			return err
		}
	}

	if err := m.repository.DeletePluginByName(ctx, plugin.Name); err != nil {
		return err
	}

	m.forgetPluginLock(name)

	log.Info().Str("plugin", plugin.Name).Int("mappings", len(mappings)).Msg("Plugin deleted")

	return nil
}

type pluginManifest struct {
	Name          string            `yaml:"name"`
	Type          string            `yaml:"type"`
	DisplayName   string            `yaml:"displayName"`
	Description   string            `yaml:"description"`
	Configuration map[string]string `yaml:"configuration"`
}

// DiscoverPlugins reads *.yaml manifests from directory, persists new plugins and loads them
func (m *pluginManager) DiscoverPlugins(ctx context.Context, directory string) ([]domain.Plugin, error) {
	entries, err := os.ReadDir(directory)
	if os.IsNotExist(err) {
		log.Debug().Str("directory", directory).Msg("Plugin directory does not exist")

		return []domain.Plugin{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read plugin directory: %w", err)
	}

	discovered := []domain.Plugin{}

	for _, entry := range entries {
		extension := strings.ToLower(filepath.Ext(entry.Name()))
		if entry.IsDir() || (extension != ".yaml" && extension != ".yml") {
			continue
		}

		path := filepath.Join(directory, entry.Name())

		plugin, err := m.registerManifest(ctx, path)
		if err != nil {
			log.Error().Err(err).Str("manifest", path).Msg("Skipping plugin manifest")
			continue
		}

		loaded, err := m.LoadPlugin(ctx, plugin.Name)
		if err != nil {
			log.Error().Err(err).Str("plugin", plugin.Name).Msg("Failed to load discovered plugin")

			discovered = append(discovered, m.withLoadedFlag(*plugin))
			continue
		}

		discovered = append(discovered, *loaded)
	}

	return discovered, nil
}

func (m *pluginManager) registerManifest(ctx context.Context, path string) (*domain.Plugin, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var manifest pluginManifest
	if err := yaml.Unmarshal(content, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	if strings.TrimSpace(manifest.Name) == "" || manifest.Type == "" {
		return nil, fmt.Errorf("%w: manifest requires name and type", domain.ErrValidation)
	}

	creator, err := m.pluginSelector.SelectCreator(ctx, domain.SelectPluginParams{
		PluginType: domain.PluginType(manifest.Type),
	})
	if err != nil {
		return nil, err
	}

	existing, err := m.repository.GetPluginByName(ctx, manifest.Name)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	displayName := manifest.DisplayName
	if displayName == "" {
		displayName = creator.DisplayName()
	}

	description := manifest.Description
	if description == "" {
		description = creator.Description()
	}

	configuration := mergeConfiguration(creator.DefaultConfiguration(), manifest.Configuration)
	if err := validateConfiguration(manifest.Type, creator.ConfigurationSchema(), configuration); err != nil {
		return nil, err
	}

	return m.repository.SavePlugin(ctx, domain.Plugin{
		Name:          strings.TrimSpace(manifest.Name),
		DisplayName:   displayName,
		Description:   description,
		Type:          domain.PluginType(strings.ToLower(manifest.Type)),
		Configuration: configuration,
	})
}

func (m *pluginManager) LoadAll(ctx context.Context) error {
	plugins, err := m.repository.GetAllPlugins(ctx)
	if err != nil {
		return err
	}

	for _, plugin := range plugins {
		if _, err := m.LoadPlugin(ctx, plugin.Name); err != nil {
			log.Error().Err(err).Str("plugin", plugin.Name).Msg("Failed to load plugin")
		}
	}

	return nil
}

func (m *pluginManager) UnloadAll(ctx context.Context) {
	m.instancesMutex.RLock()
	names := make([]string, 0, len(m.instances))
	for _, instance := range m.instances {
		names = append(names, instance.Name())
	}
	m.instancesMutex.RUnlock()

	for _, name := range names {
		unlock := m.lockPlugin(name)
		m.unload(ctx, name)
		unlock()
	}
}

func (m *pluginManager) WithPlugin(ctx context.Context, name string, fn func(plugin domain.VaultPlugin) error) error {
	unlock := m.lockPlugin(name)
	defer unlock()

	instance, ok := m.instance(name)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrPluginNotLoaded, name)
	}

	return fn(instance)
}

// TestConnection checks that a loaded plugin can still reach its vault
func (m *pluginManager) TestConnection(ctx context.Context, name string) error {
	return m.WithPlugin(ctx, name, func(plugin domain.VaultPlugin) error {
		if err := plugin.TestConnection(ctx); err != nil {
			if errors.Is(err, domain.ErrPluginNotLoaded) {
				return err
			}

			return fmt.Errorf("%w: connection test failed for plugin %s: %v", domain.ErrUpstream, plugin.Name(), err)
		}

		return nil
	})
}

func mergeConfiguration(defaults, overrides map[string]string) map[string]string {
	merged := make(map[string]string, len(defaults)+len(overrides))

	for key, value := range defaults {
		merged[key] = value
	}

	for key, value := range overrides {
		merged[key] = value
	}

	return merged
}

func validateConfiguration(pluginType, schema string, configuration map[string]string) error {
	if strings.TrimSpace(schema) == "" {
		return nil
	}

	compiled, err := jsonschema.CompileString(fmt.Sprintf("mem://plugins/%s.json", pluginType), schema)
	if err != nil {
		return fmt.Errorf("invalid configuration schema for %s: %w", pluginType, err)
	}

	document := make(map[string]any, len(configuration))
	for key, value := range configuration {
		document[key] = value
	}

	if err := compiled.Validate(document); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	return nil
}
