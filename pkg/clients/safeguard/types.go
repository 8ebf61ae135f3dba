package safeguard

import "time"

type Service string

const (
	ServiceCore         Service = "core"
	ServiceAppliance    Service = "appliance"
	ServiceNotification Service = "notification"
	ServiceA2A          Service = "a2a"
)

// CertificateAuthenticationProviderID is the appliance identifier of the
// built-in certificate authentication provider.
const CertificateAuthenticationProviderID = -2

type User struct {
	ID          int    `json:"Id"`
	Name        string `json:"Name"`
	DisplayName string `json:"DisplayName,omitempty"`
	Disabled    bool   `json:"Disabled,omitempty"`
}

type AuthenticationProvider struct {
	ID       int    `json:"Id"`
	Identity string `json:"Identity,omitempty"`
}

type CreateUserRequest struct {
	Name                          string                 `json:"Name"`
	Description                   string                 `json:"Description,omitempty"`
	PrimaryAuthenticationProvider AuthenticationProvider `json:"PrimaryAuthenticationProvider"`
	AdminRoles                    []string               `json:"AdminRoles"`
}

type ApplianceStatus struct {
	ApplianceID           string `json:"ApplianceId"`
	ApplianceName         string `json:"ApplianceName"`
	ApplianceVersion      string `json:"ApplianceVersion"`
	ApplianceCurrentState string `json:"ApplianceCurrentState"`
}

type A2ARegistration struct {
	ID                        int       `json:"Id"`
	AppName                   string    `json:"AppName"`
	Description               string    `json:"Description,omitempty"`
	CertificateUserID         int       `json:"CertificateUserId"`
	CertificateUser           string    `json:"CertificateUser,omitempty"`
	CertificateUserThumbprint string    `json:"CertificateUserThumbPrint,omitempty"`
	VisibleToCertificateUsers bool      `json:"VisibleToCertificateUsers"`
	Disabled                  bool      `json:"Disabled"`
	CreatedDate               time.Time `json:"CreatedDate,omitempty"`
}

type CreateA2ARegistrationRequest struct {
	AppName                   string `json:"AppName"`
	Description               string `json:"Description,omitempty"`
	CertificateUserID         int    `json:"CertificateUserId"`
	VisibleToCertificateUsers bool   `json:"VisibleToCertificateUsers"`
}

type RetrievableAccount struct {
	AccountID          int    `json:"AccountId"`
	AccountName        string `json:"AccountName"`
	AccountDescription string `json:"AccountDescription,omitempty"`
	AccountDisabled    bool   `json:"AccountDisabled"`
	SystemID           int    `json:"SystemId"`
	SystemName         string `json:"SystemName"`
	DomainName         string `json:"DomainName,omitempty"`
	NetworkAddress     string `json:"NetworkAddress,omitempty"`
	APIKey             string `json:"ApiKey"`
}

type AddRetrievableAccountRequest struct {
	AccountID int `json:"AccountId"`
}

type PolicyAsset struct {
	ID             int    `json:"Id"`
	Name           string `json:"Name"`
	NetworkAddress string `json:"NetworkAddress,omitempty"`
}

type PolicyAccount struct {
	ID         int         `json:"Id"`
	Name       string      `json:"Name"`
	DomainName string      `json:"DomainName,omitempty"`
	Asset      PolicyAsset `json:"Asset"`
}

type TrustedCertificate struct {
	Thumbprint string `json:"Thumbprint"`
	Subject    string `json:"Subject,omitempty"`
	Issuer     string `json:"Issuer,omitempty"`
}

type AddTrustedCertificateRequest struct {
	Base64CertificateData string `json:"Base64CertificateData"`
}
