package postgresql

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
	"github.com/vaultbridge/vaultbridge/pkg/domain"
	"github.com/vaultbridge/vaultbridge/pkg/plugins"
)

const configurationSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"properties": {
		"uri": {"type": "string", "minLength": 1},
		"table": {"type": "string", "pattern": "^[A-Za-z_][A-Za-z0-9_]*(\\.[A-Za-z_][A-Za-z0-9_]*)?$"}
	},
	"required": ["uri", "table"]
}`

type PostgreSQLConfiguration struct {
	URI   string `json:"uri"`
	Table string `json:"table"`
}

type PostgreSQLPluginCreator struct{}

func NewPostgreSQLPluginCreator() domain.VaultPluginCreator {
	return &PostgreSQLPluginCreator{}
}

func (c *PostgreSQLPluginCreator) CreatePlugin(ctx context.Context, p domain.CreatePluginParams) (domain.VaultPlugin, error) {
	return &PostgreSQLPlugin{name: p.Name}, nil
}

func (c *PostgreSQLPluginCreator) DisplayName() string {
	return "PostgreSQL"
}

func (c *PostgreSQLPluginCreator) Description() string {
	return "Upserts account passwords into a PostgreSQL table"
}

func (c *PostgreSQLPluginCreator) ConfigurationSchema() string {
	return configurationSchema
}

func (c *PostgreSQLPluginCreator) DefaultConfiguration() map[string]string {
	return map[string]string{
		"uri":   "postgres://localhost:5432/vaultbridge",
		"table": "vault_credentials",
	}
}

type PostgreSQLPlugin struct {
	name  string
	conn  *pgx.Conn
	table string
}

func (p *PostgreSQLPlugin) Name() string {
	return p.name
}

// tableIdentifier quotes "table" or "schema.table"
func tableIdentifier(table string) (string, error) {
	parts := strings.Split(strings.TrimSpace(table), ".")
	if len(parts) > 2 {
		return "", fmt.Errorf("invalid table name %q", table)
	}

	for _, part := range parts {
		if part == "" {
			return "", fmt.Errorf("invalid table name %q", table)
		}
	}

	return pgx.Identifier(parts).Sanitize(), nil
}

func createTableStatement(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	secret_name text PRIMARY KEY,
	asset_name text NOT NULL DEFAULT '',
	account_name text NOT NULL,
	domain_name text NOT NULL DEFAULT '',
	password text NOT NULL,
	updated_at timestamptz NOT NULL DEFAULT now()
)`, table)
}

func upsertStatement(table string) string {
	return fmt.Sprintf(`INSERT INTO %s (secret_name, asset_name, account_name, domain_name, password, updated_at)
VALUES ($1, $2, $3, $4, $5, now())
ON CONFLICT (secret_name) DO UPDATE SET
	password = EXCLUDED.password,
	updated_at = EXCLUDED.updated_at`, table)
}

func (p *PostgreSQLPlugin) Activate(ctx context.Context, configuration map[string]string) error {
	var config PostgreSQLConfiguration
	if err := plugins.DecodeConfiguration(configuration, &config); err != nil {
		return err
	}

	table, err := tableIdentifier(config.Table)
	if err != nil {
		return err
	}

	connConfig, err := pgx.ParseConfig(config.URI)
	if err != nil {
		return fmt.Errorf("invalid PostgreSQL uri: %w", err)
	}

	conn, err := pgx.ConnectConfig(ctx, connConfig)
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	if _, err := conn.Exec(ctx, createTableStatement(table)); err != nil {
		_ = conn.Close(ctx)

		return fmt.Errorf("failed to create credential table: %w", err)
	}

	p.close(ctx)

	p.conn = conn
	p.table = table

	log.Debug().Str("plugin", p.name).Str("table", table).Msg("PostgreSQL vault connected")

	return nil
}

func (p *PostgreSQLPlugin) ApplyConfiguration(ctx context.Context, configuration map[string]string) error {
	return p.Activate(ctx, configuration)
}

func (p *PostgreSQLPlugin) Deactivate(ctx context.Context) error {
	return p.close(ctx)
}

func (p *PostgreSQLPlugin) close(ctx context.Context) error {
	if p.conn == nil {
		return nil
	}

	err := p.conn.Close(ctx)
	p.conn = nil

	return err
}

func (p *PostgreSQLPlugin) SetPassword(ctx context.Context, params domain.SetPasswordParams) error {
	if p.conn == nil {
		return domain.ErrPluginNotLoaded
	}

	_, err := p.conn.Exec(ctx, upsertStatement(p.table),
		params.SecretName(),
		params.AssetName,
		params.AccountName,
		params.DomainName,
		params.Password,
	)
	if err != nil {
		return fmt.Errorf("failed to store password in PostgreSQL: %w", err)
	}

	return nil
}

func (p *PostgreSQLPlugin) TestConnection(ctx context.Context) error {
	if p.conn == nil {
		return domain.ErrPluginNotLoaded
	}

	return p.conn.Ping(ctx)
}
