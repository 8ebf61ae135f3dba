package managers

import (
	"context"
	"crypto/tls"
	"fmt"
	"strconv"

	"github.com/vaultbridge/vaultbridge/pkg/clients/safeguard"
	"github.com/vaultbridge/vaultbridge/pkg/domain"
)

const defaultAPIVersion = 4

// loadApplianceCredentials reads the persisted appliance address, without a token
func loadApplianceCredentials(ctx context.Context, repository domain.ConfigurationRepository) (domain.ApplianceCredentials, error) {
	address, err := repository.GetSetting(ctx, domain.SettingApplianceAddress)
	if err != nil {
		return domain.ApplianceCredentials{}, err
	}

	ignoreSSL, err := repository.GetSetting(ctx, domain.SettingApplianceIgnoreSSL)
	if err != nil {
		return domain.ApplianceCredentials{}, err
	}

	apiVersion, err := getIntSetting(ctx, repository, domain.SettingApplianceAPIVersion)
	if err != nil {
		return domain.ApplianceCredentials{}, err
	}

	if apiVersion == 0 {
		apiVersion = defaultAPIVersion
	}

	return domain.ApplianceCredentials{
		Address:    address,
		IgnoreSSL:  ignoreSSL == "true",
		APIVersion: apiVersion,
	}, nil
}

func getIntSetting(ctx context.Context, repository domain.ConfigurationRepository, name domain.SettingName) (int, error) {
	value, err := repository.GetSetting(ctx, name)
	if err != nil {
		return 0, err
	}

	if value == "" {
		return 0, nil
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("setting %s is not a number: %w", name, err)
	}

	return parsed, nil
}

// getRegistrationID returns ErrNotConfigured when no A2A registration exists
func getRegistrationID(ctx context.Context, repository domain.ConfigurationRepository) (int, error) {
	registrationID, err := getIntSetting(ctx, repository, domain.SettingA2ARegistrationID)
	if err != nil {
		return 0, err
	}

	if registrationID == 0 {
		return 0, fmt.Errorf("%w: no A2A registration has been configured", domain.ErrNotConfigured)
	}

	return registrationID, nil
}

// connectSession opens a scoped connection with the credentials of the caller's session
func connectSession(ctx context.Context, connector domain.ApplianceConnector) (safeguard.ClientInterface, error) {
	session, ok := domain.GetApplianceSession(ctx)
	if !ok {
		return nil, fmt.Errorf("%w: no appliance session", domain.ErrAuthentication)
	}

	return connector.Connect(ctx, session.Credentials)
}

// loadA2AParams builds the mutual TLS parameters from the installed client certificate
func loadA2AParams(ctx context.Context, repository domain.ConfigurationRepository) (domain.ConnectA2AParams, error) {
	credentials, err := loadApplianceCredentials(ctx, repository)
	if err != nil {
		return domain.ConnectA2AParams{}, err
	}

	if credentials.Address == "" {
		return domain.ConnectA2AParams{}, fmt.Errorf("%w: no appliance has been configured", domain.ErrNotConfigured)
	}

	certificatePEM, err := repository.GetSetting(ctx, domain.SettingClientCertificate)
	if err != nil {
		return domain.ConnectA2AParams{}, err
	}

	keyPEM, err := repository.GetSetting(ctx, domain.SettingClientCertificateKey)
	if err != nil {
		return domain.ConnectA2AParams{}, err
	}

	if certificatePEM == "" || keyPEM == "" {
		return domain.ConnectA2AParams{}, fmt.Errorf("%w: no client certificate has been installed", domain.ErrNotConfigured)
	}

	certificate, err := tls.X509KeyPair([]byte(certificatePEM), []byte(keyPEM))
	if err != nil {
		return domain.ConnectA2AParams{}, fmt.Errorf("failed to load client certificate: %w", err)
	}

	return domain.ConnectA2AParams{
		Address:     credentials.Address,
		IgnoreSSL:   credentials.IgnoreSSL,
		APIVersion:  credentials.APIVersion,
		Certificate: certificate,
	}, nil
}

func resolveRetrievableAccount(ctx context.Context, client safeguard.ClientInterface, registrationID, accountID int) (*domain.RetrievableAccount, error) {
	account, err := client.GetRetrievableAccount(ctx, registrationID, accountID)
	if err != nil {
		return nil, classifyApplianceError(err)
	}

	resolved := toDomainRetrievableAccount(*account)

	return &resolved, nil
}

func toDomainRetrievableAccount(account safeguard.RetrievableAccount) domain.RetrievableAccount {
	return domain.RetrievableAccount{
		AccountID:       account.AccountID,
		AccountName:     account.AccountName,
		SystemID:        account.SystemID,
		SystemName:      account.SystemName,
		DomainName:      account.DomainName,
		NetworkAddress:  account.NetworkAddress,
		APIKey:          account.APIKey,
		AccountDisabled: account.AccountDisabled,
	}
}

func toDomainA2ARegistration(registration safeguard.A2ARegistration) domain.A2ARegistration {
	return domain.A2ARegistration{
		ID:                        registration.ID,
		AppName:                   registration.AppName,
		Description:               registration.Description,
		CertificateUserID:         registration.CertificateUserID,
		CertificateUserThumbprint: registration.CertificateUserThumbprint,
		Disabled:                  registration.Disabled,
		CreatedDate:               registration.CreatedDate,
	}
}

func toDomainAvailableAccount(account safeguard.PolicyAccount) domain.AvailableAccount {
	return domain.AvailableAccount{
		ID:         account.ID,
		Name:       account.Name,
		DomainName: account.DomainName,
		AssetID:    account.Asset.ID,
		AssetName:  account.Asset.Name,
	}
}
