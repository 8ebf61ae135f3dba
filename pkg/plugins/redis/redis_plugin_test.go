package redis

import (
	"context"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vaultbridge/vaultbridge/pkg/domain"
)

func TestRedisPluginCreator_DefaultsMatchSchema(t *testing.T) {
	creator := NewRedisPluginCreator()

	schema, err := jsonschema.CompileString("mem://plugins/redis.json", creator.ConfigurationSchema())
	require.NoError(t, err)

	document := map[string]any{}
	for key, value := range creator.DefaultConfiguration() {
		document[key] = value
	}

	assert.NoError(t, schema.Validate(document))

	document["port"] = "not-a-port"
	assert.Error(t, schema.Validate(document))
}

func TestNewRedisOptions(t *testing.T) {
	options, prefix, err := NewRedisOptions(map[string]string{
		"host":            "redis.internal",
		"port":            "6380",
		"database":        "3",
		"tls":             "true",
		"tls_server_name": "cache.example.com",
		"key_prefix":      "spp:",
	})
	require.NoError(t, err)

	assert.Equal(t, "redis.internal:6380", options.Addr)
	assert.Equal(t, 3, options.DB)
	assert.Equal(t, "spp:", prefix)
	require.NotNil(t, options.TLSConfig)
	assert.Equal(t, "cache.example.com", options.TLSConfig.ServerName)

	_, _, err = NewRedisOptions(map[string]string{"host": "redis.internal", "port": "abc"})
	assert.Error(t, err)

	_, _, err = NewRedisOptions(map[string]string{"port": "6379"})
	assert.Error(t, err)
}

func TestRedisPlugin_RequiresActivation(t *testing.T) {
	plugin, err := NewRedisPluginCreator().CreatePlugin(context.Background(), domain.CreatePluginParams{Name: "cache"})
	require.NoError(t, err)
	assert.Equal(t, "cache", plugin.Name())

	err = plugin.SetPassword(context.Background(), domain.SetPasswordParams{AccountName: "root", Password: "x"})
	assert.ErrorIs(t, err, domain.ErrPluginNotLoaded)

	assert.NoError(t, plugin.Deactivate(context.Background()))

	redisPlugin := plugin.(*RedisPlugin)
	redisPlugin.keyPrefix = "vaultbridge:"
	assert.Equal(t, "vaultbridge:db01/root@corp", redisPlugin.Key(domain.SetPasswordParams{
		AssetName:   "db01",
		AccountName: "root",
		DomainName:  "corp",
	}))
}
