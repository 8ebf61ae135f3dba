package mongodb

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/vaultbridge/vaultbridge/pkg/domain"
	"github.com/vaultbridge/vaultbridge/pkg/plugins"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const configurationSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"properties": {
		"uri": {"type": "string", "pattern": "^mongodb(\\+srv)?://"},
		"database": {"type": "string", "minLength": 1},
		"collection": {"type": "string", "minLength": 1}
	},
	"required": ["uri", "database", "collection"]
}`

type MongoDBConfiguration struct {
	URI        string `json:"uri"`
	Database   string `json:"database"`
	Collection string `json:"collection"`
}

// credentialDocument is stored with the secret name as _id
type credentialDocument struct {
	ID          string    `bson:"_id"`
	AssetName   string    `bson:"asset_name,omitempty"`
	AccountName string    `bson:"account_name"`
	DomainName  string    `bson:"domain_name,omitempty"`
	Password    string    `bson:"password"`
	UpdatedAt   time.Time `bson:"updated_at"`
}

type MongoDBPluginCreator struct{}

func NewMongoDBPluginCreator() domain.VaultPluginCreator {
	return &MongoDBPluginCreator{}
}

func (c *MongoDBPluginCreator) CreatePlugin(ctx context.Context, p domain.CreatePluginParams) (domain.VaultPlugin, error) {
	return &MongoDBPlugin{name: p.Name}, nil
}

func (c *MongoDBPluginCreator) DisplayName() string {
	return "MongoDB"
}

func (c *MongoDBPluginCreator) Description() string {
	return "Upserts account passwords as documents in a MongoDB collection"
}

func (c *MongoDBPluginCreator) ConfigurationSchema() string {
	return configurationSchema
}

func (c *MongoDBPluginCreator) DefaultConfiguration() map[string]string {
	return map[string]string{
		"uri":        "mongodb://localhost:27017",
		"database":   "vaultbridge",
		"collection": "credentials",
	}
}

type MongoDBPlugin struct {
	name       string
	client     *mongo.Client
	collection *mongo.Collection
}

func (p *MongoDBPlugin) Name() string {
	return p.name
}

func (p *MongoDBPlugin) Activate(ctx context.Context, configuration map[string]string) error {
	var config MongoDBConfiguration
	if err := plugins.DecodeConfiguration(configuration, &config); err != nil {
		return err
	}

	if config.Database == "" || config.Collection == "" {
		return fmt.Errorf("database and collection are required")
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(config.URI))
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)

		return fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	p.disconnect(ctx)

	p.client = client
	p.collection = client.Database(config.Database).Collection(config.Collection)

	log.Debug().Str("plugin", p.name).Str("database", config.Database).Str("collection", config.Collection).Msg("MongoDB vault connected")

	return nil
}

func (p *MongoDBPlugin) ApplyConfiguration(ctx context.Context, configuration map[string]string) error {
	return p.Activate(ctx, configuration)
}

func (p *MongoDBPlugin) Deactivate(ctx context.Context) error {
	return p.disconnect(ctx)
}

func (p *MongoDBPlugin) disconnect(ctx context.Context) error {
	if p.client == nil {
		return nil
	}

	err := p.client.Disconnect(ctx)
	p.client = nil
	p.collection = nil

	return err
}

func (p *MongoDBPlugin) SetPassword(ctx context.Context, params domain.SetPasswordParams) error {
	if p.collection == nil {
		return domain.ErrPluginNotLoaded
	}

	document := newCredentialDocument(params, time.Now().UTC())

	_, err := p.collection.ReplaceOne(ctx, bson.M{"_id": document.ID}, document, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to store password in MongoDB: %w", err)
	}

	return nil
}

func newCredentialDocument(params domain.SetPasswordParams, now time.Time) credentialDocument {
	return credentialDocument{
		ID:          params.SecretName(),
		AssetName:   params.AssetName,
		AccountName: params.AccountName,
		DomainName:  params.DomainName,
		Password:    params.Password,
		UpdatedAt:   now,
	}
}

func (p *MongoDBPlugin) TestConnection(ctx context.Context) error {
	if p.client == nil {
		return domain.ErrPluginNotLoaded
	}

	return p.client.Ping(ctx, nil)
}
