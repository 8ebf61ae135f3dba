package awss3

import (
	"context"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vaultbridge/vaultbridge/pkg/domain"
)

func TestS3PluginCreator_Schema(t *testing.T) {
	creator := NewS3PluginCreator()

	schema, err := jsonschema.CompileString("mem://plugins/awss3.json", creator.ConfigurationSchema())
	require.NoError(t, err)

	document := map[string]any{"bucket": "vault-bucket"}
	for key, value := range creator.DefaultConfiguration() {
		document[key] = value
	}
	assert.NoError(t, schema.Validate(document))

	document["server_side_encryption"] = "rot13"
	assert.Error(t, schema.Validate(document))
}

func TestNewAWSConfig(t *testing.T) {
	config, err := newAWSConfig(S3Configuration{
		Region:          "eu-west-1",
		AccessKeyID:     "AKIA",
		SecretAccessKey: "secret",
		Endpoint:        "http://minio:9000",
		ForcePathStyle:  "true",
	})
	require.NoError(t, err)

	assert.Equal(t, "eu-west-1", *config.Region)
	assert.Equal(t, "http://minio:9000", *config.Endpoint)
	assert.True(t, *config.S3ForcePathStyle)
	require.NotNil(t, config.Credentials)

	value, err := config.Credentials.Get()
	require.NoError(t, err)
	assert.Equal(t, "AKIA", value.AccessKeyID)

	_, err = newAWSConfig(S3Configuration{Region: "eu-west-1", AccessKeyID: "AKIA"})
	assert.Error(t, err)

	_, err = newAWSConfig(S3Configuration{Region: "eu-west-1", ForcePathStyle: "maybe"})
	assert.Error(t, err)
}

func TestS3Plugin_ObjectKey(t *testing.T) {
	plugin := &S3Plugin{name: "bucket", config: S3Configuration{Prefix: "spp"}}

	assert.Equal(t, "spp/web01/admin", plugin.ObjectKey(domain.SetPasswordParams{AssetName: "web01", AccountName: "admin"}))

	plugin.config.Prefix = ""
	assert.Equal(t, "admin@corp", plugin.ObjectKey(domain.SetPasswordParams{AccountName: "admin", DomainName: "corp"}))

	err := plugin.SetPassword(context.Background(), domain.SetPasswordParams{AccountName: "admin"})
	assert.ErrorIs(t, err, domain.ErrPluginNotLoaded)

	err = plugin.Activate(context.Background(), map[string]string{"region": "us-east-1"})
	assert.Error(t, err)
}
