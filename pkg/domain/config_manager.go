package domain

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type ServiceConfig struct {
	ServiceName string `mapstructure:"service_name"`
	HTTPAddress string `mapstructure:"http_address"`

	DatabasePath    string `mapstructure:"database_path"`
	PluginDirectory string `mapstructure:"plugin_directory"`

	// age identity used to seal private keys and API keys at rest
	SealingKey string `mapstructure:"sealing_key"`

	SessionIdleTimeoutSeconds int    `mapstructure:"session_idle_timeout_seconds"`
	RequestTimeoutSeconds     int    `mapstructure:"request_timeout_seconds"`
	ApplianceTimeoutSeconds   int    `mapstructure:"appliance_timeout_seconds"`
	ReconcileConcurrency      int    `mapstructure:"reconcile_concurrency"`
	SyncSchedule              string `mapstructure:"sync_schedule"`
}

func (c ServiceConfig) SessionIdleTimeout() time.Duration {
	return time.Duration(c.SessionIdleTimeoutSeconds) * time.Second
}

func (c ServiceConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

func (c ServiceConfig) ApplianceTimeout() time.Duration {
	return time.Duration(c.ApplianceTimeoutSeconds) * time.Second
}

type ConfigManager interface {
	IsSetupComplete(ctx context.Context) bool
	GetConfig(ctx context.Context) (ServiceConfig, error)
	SaveConfig(ctx context.Context, config ServiceConfig) error
	ResetConfig(ctx context.Context) error
	ConfigDir() string
}

type configManager struct {
	viper     *viper.Viper
	configDir string
}

func NewConfigManager() (ConfigManager, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	return newConfigManager(filepath.Join(homeDir, ".vaultbridge"))
}

func newConfigManager(configDir string) (*configManager, error) {
	v := newViper(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		log.Debug().Msg("Config file not found, using environment variables and defaults")
	} else {
		log.Debug().Msgf("Using config file: %s", v.ConfigFileUsed())
	}

	return &configManager{
		viper:     v,
		configDir: configDir,
	}, nil
}

// newViper returns an instance with defaults and env bindings but no file values
func newViper(configDir string) *viper.Viper {
	v := viper.New()

	setDefaults(v, configDir)

	v.AutomaticEnv()
	v.SetEnvPrefix("VAULTBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	envMappings := map[string]string{
		"service_name":                 "VAULTBRIDGE_SERVICE_NAME",
		"http_address":                 "VAULTBRIDGE_HTTP_ADDRESS",
		"database_path":                "VAULTBRIDGE_DATABASE_PATH",
		"plugin_directory":             "VAULTBRIDGE_PLUGIN_DIRECTORY",
		"sealing_key":                  "VAULTBRIDGE_SEALING_KEY",
		"session_idle_timeout_seconds": "VAULTBRIDGE_SESSION_IDLE_TIMEOUT_SECONDS",
		"request_timeout_seconds":      "VAULTBRIDGE_REQUEST_TIMEOUT_SECONDS",
		"appliance_timeout_seconds":    "VAULTBRIDGE_APPLIANCE_TIMEOUT_SECONDS",
		"reconcile_concurrency":        "VAULTBRIDGE_RECONCILE_CONCURRENCY",
		"sync_schedule":                "VAULTBRIDGE_SYNC_SCHEDULE",
	}

	for configKey, envVar := range envMappings {
		if err := v.BindEnv(configKey, envVar); err != nil {
			log.Warn().Err(err).Msgf("Failed to bind environment variable %s for %s", envVar, configKey)
		}
	}

	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(".")
	v.AddConfigPath(configDir)

	return v
}

func (m *configManager) ConfigDir() string {
	return m.configDir
}

// IsSetupComplete reports whether a sealing key has been generated
func (m *configManager) IsSetupComplete(ctx context.Context) bool {
	config, err := m.GetConfig(ctx)
	if err != nil {
		return false
	}

	return config.SealingKey != ""
}

func (m *configManager) GetConfig(ctx context.Context) (ServiceConfig, error) {
	var config ServiceConfig
	if err := m.viper.Unmarshal(&config); err != nil {
		return ServiceConfig{}, fmt.Errorf("unable to decode config: %w", err)
	}

	return config, nil
}

func (m *configManager) SaveConfig(ctx context.Context, config ServiceConfig) error {
	m.viper.Set("service_name", config.ServiceName)
	m.viper.Set("http_address", config.HTTPAddress)
	m.viper.Set("database_path", config.DatabasePath)
	m.viper.Set("plugin_directory", config.PluginDirectory)
	m.viper.Set("sealing_key", config.SealingKey)
	m.viper.Set("session_idle_timeout_seconds", config.SessionIdleTimeoutSeconds)
	m.viper.Set("request_timeout_seconds", config.RequestTimeoutSeconds)
	m.viper.Set("appliance_timeout_seconds", config.ApplianceTimeoutSeconds)
	m.viper.Set("reconcile_concurrency", config.ReconcileConcurrency)
	m.viper.Set("sync_schedule", config.SyncSchedule)

	if err := os.MkdirAll(m.configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configPath := filepath.Join(m.configDir, "config.json")
	if err := m.viper.WriteConfigAs(configPath); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func (m *configManager) ResetConfig(ctx context.Context) error {
	configPath := filepath.Join(m.configDir, "config.json")
	if err := os.Remove(configPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove config file: %w", err)
	}

	m.viper = newViper(m.configDir)

	return nil
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("service_name", "vaultbridge")
	v.SetDefault("http_address", ":8081")
	v.SetDefault("database_path", filepath.Join(configDir, "vaultbridge.db"))
	v.SetDefault("plugin_directory", filepath.Join(configDir, "plugins"))
	v.SetDefault("session_idle_timeout_seconds", 1800)
	v.SetDefault("request_timeout_seconds", 120)
	v.SetDefault("appliance_timeout_seconds", 30)
	v.SetDefault("reconcile_concurrency", 4)
	v.SetDefault("sync_schedule", "")
}
