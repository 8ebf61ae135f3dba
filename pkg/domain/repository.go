package domain

import "context"

type SettingName string

const (
	SettingApplianceAddress             SettingName = "appliance_address"
	SettingApplianceIgnoreSSL           SettingName = "appliance_ignore_ssl"
	SettingApplianceAPIVersion          SettingName = "appliance_api_version"
	SettingA2ARegistrationID            SettingName = "a2a_registration_id"
	SettingA2AUserID                    SettingName = "a2a_user_id"
	SettingTrustedCertificateThumbprint SettingName = "trusted_certificate_thumbprint"
	SettingClientCertificate            SettingName = "client_certificate"
	SettingClientCertificateKey         SettingName = "client_certificate_key"
	SettingCSR                          SettingName = "csr"
	SettingCSRKey                       SettingName = "csr_key"
)

// IsSecretSetting reports whether a setting is sealed at rest
func IsSecretSetting(name SettingName) bool {
	switch name {
	case SettingClientCertificateKey, SettingCSRKey:
		return true
	}

	return false
}

// ConfigurationRepository persists settings, plugins and account mappings.
// Absent settings read as the empty string.
type ConfigurationRepository interface {
	GetSetting(ctx context.Context, name SettingName) (string, error)
	// SetSettings writes all values in one transaction. Empty values delete the setting.
	SetSettings(ctx context.Context, settings map[SettingName]string) error
	DeleteSettings(ctx context.Context, names ...SettingName) error

	GetAllPlugins(ctx context.Context) ([]Plugin, error)
	// GetPluginByName matches case-insensitively and returns ErrNotFound when absent
	GetPluginByName(ctx context.Context, name string) (*Plugin, error)
	SavePlugin(ctx context.Context, plugin Plugin) (*Plugin, error)
	DeletePluginByName(ctx context.Context, name string) error

	GetAccountMappings(ctx context.Context) ([]AccountMapping, error)
	GetAccountMappingsByVault(ctx context.Context, vaultName string) ([]AccountMapping, error)
	// SaveAccountMappings upserts on (vault name, account id) in one write
	SaveAccountMappings(ctx context.Context, mappings []AccountMapping) error
	DeleteAccountMappingByKey(ctx context.Context, key string) error
	DeleteAccountMappings(ctx context.Context) error

	Close() error
}
