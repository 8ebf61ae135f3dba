package awss3

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/rs/zerolog/log"
	"github.com/vaultbridge/vaultbridge/pkg/domain"
	"github.com/vaultbridge/vaultbridge/pkg/plugins"
)

const configurationSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"properties": {
		"bucket": {"type": "string", "minLength": 3, "maxLength": 63},
		"region": {"type": "string", "minLength": 1},
		"prefix": {"type": "string"},
		"access_key_id": {"type": "string"},
		"secret_access_key": {"type": "string"},
		"endpoint": {"type": "string"},
		"force_path_style": {"type": "string", "enum": ["true", "false"]},
		"server_side_encryption": {"type": "string", "enum": ["", "AES256", "aws:kms"]}
	},
	"required": ["region"]
}`

type S3Configuration struct {
	Bucket               string `json:"bucket"`
	Region               string `json:"region"`
	Prefix               string `json:"prefix"`
	AccessKeyID          string `json:"access_key_id"`
	SecretAccessKey      string `json:"secret_access_key"`
	Endpoint             string `json:"endpoint"`
	ForcePathStyle       string `json:"force_path_style"`
	ServerSideEncryption string `json:"server_side_encryption"`
}

type S3PluginCreator struct{}

func NewS3PluginCreator() domain.VaultPluginCreator {
	return &S3PluginCreator{}
}

func (c *S3PluginCreator) CreatePlugin(ctx context.Context, p domain.CreatePluginParams) (domain.VaultPlugin, error) {
	return &S3Plugin{name: p.Name}, nil
}

func (c *S3PluginCreator) DisplayName() string {
	return "Amazon S3"
}

func (c *S3PluginCreator) Description() string {
	return "Writes account passwords as encrypted objects in an S3 bucket"
}

func (c *S3PluginCreator) ConfigurationSchema() string {
	return configurationSchema
}

func (c *S3PluginCreator) DefaultConfiguration() map[string]string {
	return map[string]string{
		"region":                 "us-east-1",
		"prefix":                 "vaultbridge/",
		"force_path_style":       "false",
		"server_side_encryption": "AES256",
	}
}

type S3Plugin struct {
	name   string
	client *s3.S3
	config S3Configuration
}

func (p *S3Plugin) Name() string {
	return p.name
}

func newAWSConfig(config S3Configuration) (*aws.Config, error) {
	forcePathStyle, err := plugins.Bool(config.ForcePathStyle)
	if err != nil {
		return nil, fmt.Errorf("force_path_style: %w", err)
	}

	awsConfig := &aws.Config{
		Region:           aws.String(config.Region),
		S3ForcePathStyle: aws.Bool(forcePathStyle),
	}

	// Without static keys the SDK default chain applies
	if config.AccessKeyID != "" || config.SecretAccessKey != "" {
		if config.AccessKeyID == "" || config.SecretAccessKey == "" {
			return nil, fmt.Errorf("access_key_id and secret_access_key must be set together")
		}

		awsConfig.Credentials = credentials.NewStaticCredentials(config.AccessKeyID, config.SecretAccessKey, "")
	}

	if config.Endpoint != "" {
		awsConfig.Endpoint = aws.String(config.Endpoint)
	}

	return awsConfig, nil
}

func (p *S3Plugin) Activate(ctx context.Context, configuration map[string]string) error {
	var config S3Configuration
	if err := plugins.DecodeConfiguration(configuration, &config); err != nil {
		return err
	}

	if config.Bucket == "" {
		return fmt.Errorf("bucket is required")
	}

	awsConfig, err := newAWSConfig(config)
	if err != nil {
		return err
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return fmt.Errorf("failed to create AWS session: %w", err)
	}

	client := s3.New(sess)

	_, err = client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(config.Bucket),
	})
	if err != nil {
		return fmt.Errorf("failed to access bucket %s: %w", config.Bucket, err)
	}

	p.client = client
	p.config = config

	log.Debug().Str("plugin", p.name).Str("bucket", config.Bucket).Str("region", config.Region).Msg("S3 vault connected")

	return nil
}

func (p *S3Plugin) ApplyConfiguration(ctx context.Context, configuration map[string]string) error {
	return p.Activate(ctx, configuration)
}

func (p *S3Plugin) Deactivate(ctx context.Context) error {
	p.client = nil

	return nil
}

func (p *S3Plugin) ObjectKey(params domain.SetPasswordParams) string {
	prefix := p.config.Prefix
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	return prefix + params.SecretName()
}

func (p *S3Plugin) SetPassword(ctx context.Context, params domain.SetPasswordParams) error {
	if p.client == nil {
		return domain.ErrPluginNotLoaded
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(p.config.Bucket),
		Key:         aws.String(p.ObjectKey(params)),
		Body:        strings.NewReader(params.Password),
		ContentType: aws.String("text/plain"),
		Metadata: map[string]*string{
			"asset":   aws.String(params.AssetName),
			"account": aws.String(params.AccountName),
		},
	}

	if p.config.ServerSideEncryption != "" {
		input.ServerSideEncryption = aws.String(p.config.ServerSideEncryption)
	}

	if _, err := p.client.PutObjectWithContext(ctx, input); err != nil {
		return fmt.Errorf("failed to store password in S3: %w", err)
	}

	return nil
}

func (p *S3Plugin) TestConnection(ctx context.Context) error {
	if p.client == nil {
		return domain.ErrPluginNotLoaded
	}

	_, err := p.client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(p.config.Bucket),
	})

	return err
}
