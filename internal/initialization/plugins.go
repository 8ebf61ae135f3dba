package initialization

import (
	"github.com/vaultbridge/vaultbridge/pkg/domain"
	"github.com/vaultbridge/vaultbridge/pkg/plugins/awss3"
	"github.com/vaultbridge/vaultbridge/pkg/plugins/mongodb"
	"github.com/vaultbridge/vaultbridge/pkg/plugins/postgresql"
	"github.com/vaultbridge/vaultbridge/pkg/plugins/redis"
)

type pluginRegisterParams struct {
	PluginType domain.PluginType
	NewCreator func() domain.VaultPluginCreator
}

var pluginRegisterParamsList = []pluginRegisterParams{
	{
		PluginType: domain.PluginTypeRedis,
		NewCreator: redis.NewRedisPluginCreator,
	},
	{
		PluginType: domain.PluginTypeMongoDB,
		NewCreator: mongodb.NewMongoDBPluginCreator,
	},
	{
		PluginType: domain.PluginTypePostgreSQL,
		NewCreator: postgresql.NewPostgreSQLPluginCreator,
	},
	{
		PluginType: domain.PluginTypeAWSS3,
		NewCreator: awss3.NewS3PluginCreator,
	},
}

func registerPlugins(selector domain.PluginSelector) {
	for _, params := range pluginRegisterParamsList {
		selector.RegisterCreator(params.PluginType, params.NewCreator())
	}
}
