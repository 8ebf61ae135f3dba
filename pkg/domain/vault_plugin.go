package domain

import (
	"context"
	"fmt"
	"strings"
)

type PluginType string

const (
	PluginTypeRedis      PluginType = "redis"
	PluginTypeMongoDB    PluginType = "mongodb"
	PluginTypePostgreSQL PluginType = "postgresql"
	PluginTypeAWSS3      PluginType = "awss3"
)

// Plugin is the persisted state of a named vault plugin instance
type Plugin struct {
	Name          string            `json:"name" yaml:"name"`
	DisplayName   string            `json:"display_name" yaml:"display_name"`
	Description   string            `json:"description" yaml:"description"`
	Type          PluginType        `json:"type" yaml:"type"`
	Configuration map[string]string `json:"configuration" yaml:"configuration"`
	IsLoaded      bool              `json:"is_loaded" yaml:"-"`
}

type SetPasswordParams struct {
	AssetName   string
	AccountName string
	DomainName  string
	Password    string
}

// SecretName is the name under which a vault stores the password
func (p SetPasswordParams) SecretName() string {
	account := p.AccountName
	if p.DomainName != "" {
		account = fmt.Sprintf("%s@%s", p.AccountName, p.DomainName)
	}

	if p.AssetName == "" {
		return account
	}

	return fmt.Sprintf("%s/%s", p.AssetName, account)
}

// VaultPlugin is a live vault integration that receives passwords
type VaultPlugin interface {
	Name() string
	Activate(ctx context.Context, configuration map[string]string) error
	Deactivate(ctx context.Context) error
	ApplyConfiguration(ctx context.Context, configuration map[string]string) error
	SetPassword(ctx context.Context, p SetPasswordParams) error
	TestConnection(ctx context.Context) error
}

type CreatePluginParams struct {
	Name string
}

// VaultPluginCreator builds plugin instances of one type and describes their configuration
type VaultPluginCreator interface {
	CreatePlugin(ctx context.Context, p CreatePluginParams) (VaultPlugin, error)
	DisplayName() string
	Description() string
	ConfigurationSchema() string
	DefaultConfiguration() map[string]string
}

type SelectPluginParams struct {
	PluginType PluginType
}

type PluginSelector interface {
	RegisterCreator(pluginType PluginType, creator VaultPluginCreator)
	SelectCreator(ctx context.Context, params SelectPluginParams) (VaultPluginCreator, error)
	Types() []PluginType
}

type pluginSelector struct {
	creatorsByType map[PluginType]VaultPluginCreator
}

func NewPluginSelector() PluginSelector {
	return &pluginSelector{
		creatorsByType: make(map[PluginType]VaultPluginCreator),
	}
}

func (s *pluginSelector) RegisterCreator(pluginType PluginType, creator VaultPluginCreator) {
	s.creatorsByType[PluginType(strings.ToLower(string(pluginType)))] = creator
}

func (s *pluginSelector) SelectCreator(ctx context.Context, params SelectPluginParams) (VaultPluginCreator, error) {
	creator, ok := s.creatorsByType[PluginType(strings.ToLower(string(params.PluginType)))]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPluginTypeNotFound, params.PluginType)
	}

	return creator, nil
}

func (s *pluginSelector) Types() []PluginType {
	types := make([]PluginType, 0, len(s.creatorsByType))
	for pluginType := range s.creatorsByType {
		types = append(types, pluginType)
	}

	return types
}

type PluginManager interface {
	ListPlugins(ctx context.Context) ([]Plugin, error)
	GetPlugin(ctx context.Context, name string) (*Plugin, error)
	LoadPlugin(ctx context.Context, name string) (*Plugin, error)
	UnloadPlugin(ctx context.Context, name string) (*Plugin, error)
	SetConfiguration(ctx context.Context, name string, configuration map[string]string) (*Plugin, error)
	DeletePlugin(ctx context.Context, name string) error
	DiscoverPlugins(ctx context.Context, directory string) ([]Plugin, error)
	LoadAll(ctx context.Context) error
	UnloadAll(ctx context.Context)
	// WithPlugin runs fn against the loaded plugin while holding its name lock
	WithPlugin(ctx context.Context, name string, fn func(plugin VaultPlugin) error) error
	TestConnection(ctx context.Context, name string) error
}
