package store

import (
	"time"

	"github.com/uptrace/bun"
)

type settingModel struct {
	bun.BaseModel `bun:"table:settings"`

	Name      string    `bun:"name,pk"`
	Value     string    `bun:"value,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

type pluginModel struct {
	bun.BaseModel `bun:"table:plugins"`

	Name          string    `bun:"name,pk"`
	DisplayName   string    `bun:"display_name,notnull"`
	Description   string    `bun:"description,notnull"`
	Type          string    `bun:"type,notnull"`
	Configuration string    `bun:"configuration,notnull"`
	UpdatedAt     time.Time `bun:"updated_at,notnull"`
}

type accountMappingModel struct {
	bun.BaseModel `bun:"table:account_mappings"`

	MappingKey     string    `bun:"mapping_key,pk"`
	VaultName      string    `bun:"vault_name,notnull"`
	AccountID      int       `bun:"account_id,notnull"`
	AccountName    string    `bun:"account_name,notnull"`
	AssetName      string    `bun:"asset_name,notnull"`
	DomainName     string    `bun:"domain_name,notnull"`
	NetworkAddress string    `bun:"network_address,notnull"`
	APIKey         string    `bun:"api_key,notnull"`
	UpdatedAt      time.Time `bun:"updated_at,notnull"`
}
