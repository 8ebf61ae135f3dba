package domain

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/vaultbridge/vaultbridge/pkg/clients/safeguard"
)

// ApplianceCredentials is everything needed to open a connection to the appliance
type ApplianceCredentials struct {
	Address     string
	AccessToken string
	IgnoreSSL   bool
	APIVersion  int
}

type ConnectA2AParams struct {
	Address     string
	IgnoreSSL   bool
	APIVersion  int
	Certificate tls.Certificate
}

// ApplianceConnector opens connections to the appliance. Connections are
// owned by the caller and released with Close.
type ApplianceConnector interface {
	Connect(ctx context.Context, credentials ApplianceCredentials) (safeguard.ClientInterface, error)
	ConnectA2A(ctx context.Context, params ConnectA2AParams) (safeguard.ClientInterface, error)
}

type SafeguardData struct {
	ApplianceAddress string `json:"appliance_address"`
	IgnoreSSL        bool   `json:"ignore_ssl"`
	APIVersion       int    `json:"api_version"`
}

// SafeguardConnection describes the configured appliance and its reachability
type SafeguardConnection struct {
	ApplianceAddress string `json:"appliance_address"`
	IgnoreSSL        bool   `json:"ignore_ssl"`
	APIVersion       int    `json:"api_version"`
	ApplianceID      string `json:"appliance_id,omitempty"`
	ApplianceName    string `json:"appliance_name,omitempty"`
	ApplianceVersion string `json:"appliance_version,omitempty"`
	ApplianceState   string `json:"appliance_state,omitempty"`
	UserName         string `json:"user_name,omitempty"`
}

type ServiceConfiguration struct {
	ApplianceAddress             string             `json:"appliance_address"`
	A2ARegistrationID            int                `json:"a2a_registration_id,omitempty"`
	A2ARegistrationName          string             `json:"a2a_registration_name,omitempty"`
	A2AUserID                    int                `json:"a2a_user_id,omitempty"`
	A2AUserName                  string             `json:"a2a_user_name,omitempty"`
	TrustedCertificateThumbprint string             `json:"trusted_certificate_thumbprint,omitempty"`
	ClientCertificate            *ClientCertificate `json:"client_certificate,omitempty"`
}

type A2ARegistration struct {
	ID                        int       `json:"id"`
	AppName                   string    `json:"app_name"`
	Description               string    `json:"description,omitempty"`
	CertificateUserID         int       `json:"certificate_user_id"`
	CertificateUserThumbprint string    `json:"certificate_user_thumbprint,omitempty"`
	Disabled                  bool      `json:"disabled"`
	CreatedDate               time.Time `json:"created_date"`
}

type RetrievableAccount struct {
	AccountID       int    `json:"account_id"`
	AccountName     string `json:"account_name"`
	SystemID        int    `json:"system_id"`
	SystemName      string `json:"system_name"`
	DomainName      string `json:"domain_name,omitempty"`
	NetworkAddress  string `json:"network_address,omitempty"`
	APIKey          string `json:"api_key,omitempty"`
	AccountDisabled bool   `json:"account_disabled"`
}

// AvailableAccount is a policy account offered to the caller for registration
type AvailableAccount struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	DomainName string `json:"domain_name,omitempty"`
	AssetID    int    `json:"asset_id"`
	AssetName  string `json:"asset_name"`
}

type ClientCertificate struct {
	Subject    string    `json:"subject"`
	Issuer     string    `json:"issuer"`
	Thumbprint string    `json:"thumbprint"`
	NotBefore  time.Time `json:"not_before"`
	NotAfter   time.Time `json:"not_after"`
}

type ClientCertificateUpload struct {
	Base64CertificateData string `json:"base64_certificate_data"`
	Passphrase            string `json:"passphrase,omitempty"`
}

type GenerateCSRParams struct {
	KeySize     int
	SubjectName string
}

type SafeguardManager interface {
	Connect(ctx context.Context, credentials ApplianceCredentials) (*ApplianceSession, error)
	Logon(ctx context.Context, accessToken string) (*ApplianceSession, error)

	GetSafeguardConnection(ctx context.Context) (*SafeguardConnection, error)
	SetSafeguardData(ctx context.Context, data SafeguardData) (*SafeguardConnection, error)

	GetDevOpsConfiguration(ctx context.Context) (*ServiceConfiguration, error)
	ConfigureDevOpsService(ctx context.Context) (*ServiceConfiguration, error)
	DeleteDevOpsConfiguration(ctx context.Context) error

	GetA2ARegistration(ctx context.Context) (*A2ARegistration, error)
	DeleteA2ARegistration(ctx context.Context) error
	GetRetrievableAccounts(ctx context.Context) ([]RetrievableAccount, error)
	AddRetrievableAccounts(ctx context.Context, accounts []AvailableAccount) ([]RetrievableAccount, error)
	ResolveRetrievableAccount(ctx context.Context, accountID int) (*RetrievableAccount, error)
	GetAvailableAccounts(ctx context.Context) ([]AvailableAccount, error)

	InstallClientCertificate(ctx context.Context, upload ClientCertificateUpload) (*ClientCertificate, error)
	RemoveClientCertificate(ctx context.Context) error
	GetClientCertificate(ctx context.Context) (*ClientCertificate, error)
	GenerateCSR(ctx context.Context, params GenerateCSRParams) (string, error)
}
