package domain

import "context"

// AccountMapping binds a retrievable account to a vault plugin. Unique by (VaultName, AccountID).
type AccountMapping struct {
	Key            string `json:"key"`
	VaultName      string `json:"vault_name"`
	AccountID      int    `json:"account_id"`
	AccountName    string `json:"account_name"`
	AssetName      string `json:"asset_name"`
	DomainName     string `json:"domain_name,omitempty"`
	NetworkAddress string `json:"network_address,omitempty"`
	APIKey         string `json:"-"`
}

type SyncResult struct {
	Pushed int `json:"pushed"`
	Failed int `json:"failed"`
}

type AccountMappingManager interface {
	GetAccountMappings(ctx context.Context, pluginName string) ([]AccountMapping, error)
	SaveAccountMappings(ctx context.Context, pluginName string, accounts []RetrievableAccount) ([]AccountMapping, error)
	DeleteAccountMappings(ctx context.Context, pluginName string) error
	DeleteAllAccountMappings(ctx context.Context) error
	SyncCredentials(ctx context.Context, pluginName string) (SyncResult, error)
}
