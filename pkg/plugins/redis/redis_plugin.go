package redis

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/vaultbridge/vaultbridge/pkg/domain"
	"github.com/vaultbridge/vaultbridge/pkg/plugins"
)

const configurationSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"properties": {
		"host": {"type": "string", "minLength": 1},
		"port": {"type": "string", "pattern": "^[0-9]{1,5}$"},
		"username": {"type": "string"},
		"password": {"type": "string"},
		"database": {"type": "string", "pattern": "^[0-9]+$"},
		"tls": {"type": "string", "enum": ["true", "false"]},
		"tls_skip_verify": {"type": "string", "enum": ["true", "false"]},
		"tls_server_name": {"type": "string"},
		"key_prefix": {"type": "string"}
	},
	"required": ["host", "port"]
}`

type RedisConfiguration struct {
	Host          string `json:"host"`
	Port          string `json:"port"`
	Username      string `json:"username"`
	Password      string `json:"password"`
	Database      string `json:"database"`
	TLS           string `json:"tls"`
	TLSSkipVerify string `json:"tls_skip_verify"`
	TLSServerName string `json:"tls_server_name"`
	KeyPrefix     string `json:"key_prefix"`
}

type RedisPluginCreator struct{}

func NewRedisPluginCreator() domain.VaultPluginCreator {
	return &RedisPluginCreator{}
}

func (c *RedisPluginCreator) CreatePlugin(ctx context.Context, p domain.CreatePluginParams) (domain.VaultPlugin, error) {
	return &RedisPlugin{name: p.Name}, nil
}

func (c *RedisPluginCreator) DisplayName() string {
	return "Redis"
}

func (c *RedisPluginCreator) Description() string {
	return "Stores account passwords as string keys in a Redis database"
}

func (c *RedisPluginCreator) ConfigurationSchema() string {
	return configurationSchema
}

func (c *RedisPluginCreator) DefaultConfiguration() map[string]string {
	return map[string]string{
		"host":       "localhost",
		"port":       "6379",
		"database":   "0",
		"tls":        "false",
		"key_prefix": "vaultbridge:",
	}
}

// RedisPlugin is driven by the plugin manager, which serializes calls per plugin
type RedisPlugin struct {
	name      string
	client    *redis.Client
	keyPrefix string
}

func (p *RedisPlugin) Name() string {
	return p.name
}

func NewRedisOptions(configuration map[string]string) (*redis.Options, string, error) {
	var config RedisConfiguration
	if err := plugins.DecodeConfiguration(configuration, &config); err != nil {
		return nil, "", err
	}

	if config.Host == "" {
		return nil, "", fmt.Errorf("host is required")
	}

	port, err := plugins.Int(config.Port, 6379)
	if err != nil {
		return nil, "", fmt.Errorf("port: %w", err)
	}

	database, err := plugins.Int(config.Database, 0)
	if err != nil {
		return nil, "", fmt.Errorf("database: %w", err)
	}

	useTLS, err := plugins.Bool(config.TLS)
	if err != nil {
		return nil, "", fmt.Errorf("tls: %w", err)
	}

	skipVerify, err := plugins.Bool(config.TLSSkipVerify)
	if err != nil {
		return nil, "", fmt.Errorf("tls_skip_verify: %w", err)
	}

	options := &redis.Options{
		Addr:     fmt.Sprintf("%s:%d", config.Host, port),
		Username: config.Username,
		Password: config.Password,
		DB:       database,
	}

	if useTLS {
		serverName := config.Host
		if config.TLSServerName != "" {
			serverName = config.TLSServerName
		}

		options.TLSConfig = &tls.Config{
			ServerName:         serverName,
			InsecureSkipVerify: skipVerify,
		}
	}

	return options, config.KeyPrefix, nil
}

func (p *RedisPlugin) Activate(ctx context.Context, configuration map[string]string) error {
	options, keyPrefix, err := NewRedisOptions(configuration)
	if err != nil {
		return err
	}

	client := redis.NewClient(options)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()

		return fmt.Errorf("failed to ping Redis: %w", err)
	}

	p.closeClient()

	p.client = client
	p.keyPrefix = keyPrefix

	log.Debug().Str("plugin", p.name).Str("address", options.Addr).Msg("Redis vault connected")

	return nil
}

func (p *RedisPlugin) ApplyConfiguration(ctx context.Context, configuration map[string]string) error {
	return p.Activate(ctx, configuration)
}

func (p *RedisPlugin) Deactivate(ctx context.Context) error {
	return p.closeClient()
}

func (p *RedisPlugin) closeClient() error {
	if p.client == nil {
		return nil
	}

	err := p.client.Close()
	p.client = nil

	return err
}

func (p *RedisPlugin) Key(params domain.SetPasswordParams) string {
	return p.keyPrefix + params.SecretName()
}

func (p *RedisPlugin) SetPassword(ctx context.Context, params domain.SetPasswordParams) error {
	if p.client == nil {
		return domain.ErrPluginNotLoaded
	}

	if err := p.client.Set(ctx, p.Key(params), params.Password, 0).Err(); err != nil {
		return fmt.Errorf("failed to store password in Redis: %w", err)
	}

	return nil
}

func (p *RedisPlugin) TestConnection(ctx context.Context) error {
	if p.client == nil {
		return domain.ErrPluginNotLoaded
	}

	return p.client.Ping(ctx).Err()
}
