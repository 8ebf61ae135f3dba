package managers

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vaultbridge/vaultbridge/pkg/clients/safeguard"
	"github.com/vaultbridge/vaultbridge/pkg/domain"
)

const applianceStateUnreachable = "Unreachable"

type SafeguardManagerDependencies struct {
	Repository      domain.ConfigurationRepository
	Connector       domain.ApplianceConnector
	AccountMappings domain.AccountMappingManager
	ServiceName     string
}

type safeguardManager struct {
	repository      domain.ConfigurationRepository
	connector       domain.ApplianceConnector
	accountMappings domain.AccountMappingManager
	serviceName     string
}

func NewSafeguardManager(deps SafeguardManagerDependencies) domain.SafeguardManager {
	serviceName := deps.ServiceName
	if serviceName == "" {
		serviceName = "vaultbridge"
	}

	return &safeguardManager{
		repository:      deps.Repository,
		connector:       deps.Connector,
		accountMappings: deps.AccountMappings,
		serviceName:     serviceName,
	}
}

// Connect validates the credentials against the appliance and opens a session connection
func (m *safeguardManager) Connect(ctx context.Context, credentials domain.ApplianceCredentials) (*domain.ApplianceSession, error) {
	client, err := m.connector.Connect(ctx, credentials)
	if err != nil {
		return nil, err
	}

	me, err := client.GetMe(ctx)
	if err != nil {
		_ = client.Close()

		return nil, classifyApplianceError(err)
	}

	return &domain.ApplianceSession{
		Key:         uuid.NewString(),
		Credentials: credentials,
		UserID:      me.ID,
		UserName:    me.Name,
		Client:      client,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

func (m *safeguardManager) Logon(ctx context.Context, accessToken string) (*domain.ApplianceSession, error) {
	credentials, err := loadApplianceCredentials(ctx, m.repository)
	if err != nil {
		return nil, err
	}

	if credentials.Address == "" {
		return nil, fmt.Errorf("%w: no appliance has been configured", domain.ErrNotConfigured)
	}

	credentials.AccessToken = accessToken

	session, err := m.Connect(ctx, credentials)
	if err != nil {
		return nil, err
	}

	log.Info().Str("user", session.UserName).Str("appliance", credentials.Address).Msg("Appliance logon")

	return session, nil
}

func (m *safeguardManager) GetSafeguardConnection(ctx context.Context) (*domain.SafeguardConnection, error) {
	credentials, err := loadApplianceCredentials(ctx, m.repository)
	if err != nil {
		return nil, err
	}

	if credentials.Address == "" {
		return nil, nil
	}

	connection := m.checkAppliance(ctx, credentials)

	if session, ok := domain.GetApplianceSession(ctx); ok {
		connection.UserName = session.UserName
	}

	return connection, nil
}

func (m *safeguardManager) checkAppliance(ctx context.Context, credentials domain.ApplianceCredentials) *domain.SafeguardConnection {
	connection := &domain.SafeguardConnection{
		ApplianceAddress: credentials.Address,
		IgnoreSSL:        credentials.IgnoreSSL,
		APIVersion:       credentials.APIVersion,
		ApplianceState:   applianceStateUnreachable,
	}

	status, err := m.applianceStatus(ctx, credentials)
	if err != nil {
		log.Warn().Err(err).Str("appliance", credentials.Address).Msg("Appliance status check failed")

		return connection
	}

	connection.ApplianceID = status.ApplianceID
	connection.ApplianceName = status.ApplianceName
	connection.ApplianceVersion = status.ApplianceVersion
	connection.ApplianceState = status.ApplianceCurrentState

	return connection
}

func (m *safeguardManager) applianceStatus(ctx context.Context, credentials domain.ApplianceCredentials) (*safeguard.ApplianceStatus, error) {
	credentials.AccessToken = ""

	client, err := m.connector.Connect(ctx, credentials)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	return client.GetApplianceStatus(ctx)
}

func (m *safeguardManager) SetSafeguardData(ctx context.Context, data domain.SafeguardData) (*domain.SafeguardConnection, error) {
	address := strings.TrimSpace(data.ApplianceAddress)
	if address == "" {
		return nil, fmt.Errorf("%w: appliance address is required", domain.ErrValidation)
	}

	if data.APIVersion == 0 {
		data.APIVersion = defaultAPIVersion
	}

	if data.APIVersion < 0 {
		return nil, fmt.Errorf("%w: invalid API version %d", domain.ErrValidation, data.APIVersion)
	}

	current, err := loadApplianceCredentials(ctx, m.repository)
	if err != nil {
		return nil, err
	}

	if current.Address != "" && !strings.EqualFold(current.Address, address) {
		if _, err := getRegistrationID(ctx, m.repository); err == nil {
			return nil, fmt.Errorf("%w: the service is registered with %s, delete the configuration before changing appliances", domain.ErrValidation, current.Address)
		}
	}

	credentials := domain.ApplianceCredentials{
		Address:    address,
		IgnoreSSL:  data.IgnoreSSL,
		APIVersion: data.APIVersion,
	}

	if _, err := m.applianceStatus(ctx, credentials); err != nil {
		return nil, fmt.Errorf("%w: unable to reach appliance at %s: %v", domain.ErrValidation, address, err)
	}

	err = m.repository.SetSettings(ctx, map[domain.SettingName]string{
		domain.SettingApplianceAddress:    address,
		domain.SettingApplianceIgnoreSSL:  strconv.FormatBool(data.IgnoreSSL),
		domain.SettingApplianceAPIVersion: strconv.Itoa(data.APIVersion),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save appliance settings: %w", err)
	}

	log.Info().Str("appliance", address).Msg("Appliance connection updated")

	return m.GetSafeguardConnection(ctx)
}

func (m *safeguardManager) GetDevOpsConfiguration(ctx context.Context) (*domain.ServiceConfiguration, error) {
	credentials, err := loadApplianceCredentials(ctx, m.repository)
	if err != nil {
		return nil, err
	}

	if credentials.Address == "" {
		return nil, fmt.Errorf("%w: no appliance has been configured", domain.ErrNotConfigured)
	}

	registrationID, err := getIntSetting(ctx, m.repository, domain.SettingA2ARegistrationID)
	if err != nil {
		return nil, err
	}

	userID, err := getIntSetting(ctx, m.repository, domain.SettingA2AUserID)
	if err != nil {
		return nil, err
	}

	thumbprint, err := m.repository.GetSetting(ctx, domain.SettingTrustedCertificateThumbprint)
	if err != nil {
		return nil, err
	}

	configuration := &domain.ServiceConfiguration{
		ApplianceAddress:             credentials.Address,
		A2ARegistrationID:            registrationID,
		A2AUserID:                    userID,
		TrustedCertificateThumbprint: thumbprint,
	}

	certificate, err := m.GetClientCertificate(ctx)
	if err == nil {
		configuration.ClientCertificate = certificate
	}

	if registrationID == 0 && userID == 0 {
		return configuration, nil
	}

	if _, ok := domain.GetApplianceSession(ctx); !ok {
		return configuration, nil
	}

	client, err := connectSession(ctx, m.connector)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	if registrationID != 0 {
		registration, err := client.GetA2ARegistration(ctx, registrationID)
		if err != nil {
			log.Warn().Err(err).Int("registration_id", registrationID).Msg("Failed to read A2A registration")
		} else {
			configuration.A2ARegistrationName = registration.AppName
		}
	}

	if userID != 0 {
		user, err := client.GetUser(ctx, userID)
		if err != nil {
			log.Warn().Err(err).Int("user_id", userID).Msg("Failed to read A2A user")
		} else {
			configuration.A2AUserName = user.Name
		}
	}

	return configuration, nil
}

// ConfigureDevOpsService creates the certificate user and A2A registration that are missing
func (m *safeguardManager) ConfigureDevOpsService(ctx context.Context) (*domain.ServiceConfiguration, error) {
	credentials, err := loadApplianceCredentials(ctx, m.repository)
	if err != nil {
		return nil, err
	}

	if credentials.Address == "" {
		return nil, fmt.Errorf("%w: no appliance has been configured", domain.ErrNotConfigured)
	}

	certificatePEM, err := m.repository.GetSetting(ctx, domain.SettingClientCertificate)
	if err != nil {
		return nil, err
	}

	if certificatePEM == "" {
		return nil, fmt.Errorf("%w: a client certificate must be installed before configuring the service", domain.ErrValidation)
	}

	certificate, err := parseCertificatePEM(certificatePEM)
	if err != nil {
		return nil, err
	}

	thumbprint := certificateThumbprint(certificate)

	client, err := connectSession(ctx, m.connector)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	trustedThumbprint, err := m.repository.GetSetting(ctx, domain.SettingTrustedCertificateThumbprint)
	if err != nil {
		return nil, err
	}

	if trustedThumbprint == "" && isSelfSigned(certificate) {
		trusted, err := client.AddTrustedCertificate(ctx, &safeguard.AddTrustedCertificateRequest{
			Base64CertificateData: base64.StdEncoding.EncodeToString(certificate.Raw),
		})
		if err != nil {
			return nil, classifyApplianceError(err)
		}

		trustedThumbprint = trusted.Thumbprint
		if trustedThumbprint == "" {
			trustedThumbprint = thumbprint
		}

		if err := m.setSetting(ctx, domain.SettingTrustedCertificateThumbprint, trustedThumbprint); err != nil {
			return nil, err
		}
	}

	userID, err := getIntSetting(ctx, m.repository, domain.SettingA2AUserID)
	if err != nil {
		return nil, err
	}

	if userID == 0 {
		user, err := client.CreateUser(ctx, &safeguard.CreateUserRequest{
			Name:        fmt.Sprintf("%s-%s", m.serviceName, thumbprint[:8]),
			Description: "Certificate user for " + m.serviceName,
			PrimaryAuthenticationProvider: safeguard.AuthenticationProvider{
				ID:       safeguard.CertificateAuthenticationProviderID,
				Identity: thumbprint,
			},
			AdminRoles: []string{},
		})
		if err != nil {
			return nil, classifyApplianceError(err)
		}

		userID = user.ID
		if err := m.setSetting(ctx, domain.SettingA2AUserID, strconv.Itoa(userID)); err != nil {
			return nil, err
		}
	}

	registrationID, err := getIntSetting(ctx, m.repository, domain.SettingA2ARegistrationID)
	if err != nil {
		return nil, err
	}

	if registrationID == 0 {
		registration, err := client.CreateA2ARegistration(ctx, &safeguard.CreateA2ARegistrationRequest{
			AppName:                   m.serviceName,
			Description:               "Vault credential synchronization",
			CertificateUserID:         userID,
			VisibleToCertificateUsers: true,
		})
		if err != nil {
			return nil, classifyApplianceError(err)
		}

		if err := m.setSetting(ctx, domain.SettingA2ARegistrationID, strconv.Itoa(registration.ID)); err != nil {
			return nil, err
		}

		log.Info().Int("registration_id", registration.ID).Int("user_id", userID).Msg("A2A registration created")
	}

	return m.GetDevOpsConfiguration(ctx)
}

func (m *safeguardManager) DeleteDevOpsConfiguration(ctx context.Context) error {
	if err := m.teardownRegistration(ctx); err != nil {
		return err
	}

	err := m.repository.DeleteSettings(ctx,
		domain.SettingClientCertificate,
		domain.SettingClientCertificateKey,
		domain.SettingCSR,
		domain.SettingCSRKey,
	)
	if err != nil {
		return fmt.Errorf("failed to remove client certificate: %w", err)
	}

	log.Info().Msg("Service configuration deleted")

	return nil
}

func (m *safeguardManager) GetA2ARegistration(ctx context.Context) (*domain.A2ARegistration, error) {
	registrationID, err := getRegistrationID(ctx, m.repository)
	if err != nil {
		return nil, err
	}

	client, err := connectSession(ctx, m.connector)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	registration, err := client.GetA2ARegistration(ctx, registrationID)
	if err != nil {
		return nil, classifyApplianceError(err)
	}

	result := toDomainA2ARegistration(*registration)

	return &result, nil
}

func (m *safeguardManager) DeleteA2ARegistration(ctx context.Context) error {
	if _, err := getRegistrationID(ctx, m.repository); err != nil {
		return err
	}

	return m.teardownRegistration(ctx)
}

// teardownRegistration removes whatever part of the registration exists on the
// appliance, then every account mapping and the stored ids.
func (m *safeguardManager) teardownRegistration(ctx context.Context) error {
	registrationID, err := getIntSetting(ctx, m.repository, domain.SettingA2ARegistrationID)
	if err != nil {
		return err
	}

	userID, err := getIntSetting(ctx, m.repository, domain.SettingA2AUserID)
	if err != nil {
		return err
	}

	trustedThumbprint, err := m.repository.GetSetting(ctx, domain.SettingTrustedCertificateThumbprint)
	if err != nil {
		return err
	}

	if registrationID != 0 || userID != 0 || trustedThumbprint != "" {
		client, err := connectSession(ctx, m.connector)
		if err != nil {
			return err
		}
		defer client.Close()

		if registrationID != 0 {
			if err := ignoreNotFound(client.DeleteA2ARegistration(ctx, registrationID)); err != nil {
				return classifyApplianceError(err)
			}
		}

		if userID != 0 {
			if err := ignoreNotFound(client.DeleteUser(ctx, userID)); err != nil {
				return classifyApplianceError(err)
			}
		}

		if trustedThumbprint != "" {
			if err := ignoreNotFound(client.DeleteTrustedCertificate(ctx, trustedThumbprint)); err != nil {
				return classifyApplianceError(err)
			}
		}
	}

	if err := m.accountMappings.DeleteAllAccountMappings(ctx); err != nil {
		return err
	}

	err = m.repository.DeleteSettings(ctx,
		domain.SettingA2ARegistrationID,
		domain.SettingA2AUserID,
		domain.SettingTrustedCertificateThumbprint,
	)
	if err != nil {
		return fmt.Errorf("failed to clear registration settings: %w", err)
	}

	log.Info().Int("registration_id", registrationID).Msg("A2A registration removed")

	return nil
}

func (m *safeguardManager) GetRetrievableAccounts(ctx context.Context) ([]domain.RetrievableAccount, error) {
	registrationID, err := getRegistrationID(ctx, m.repository)
	if err != nil {
		return nil, err
	}

	client, err := connectSession(ctx, m.connector)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	return m.listRetrievableAccounts(ctx, client, registrationID)
}

func (m *safeguardManager) listRetrievableAccounts(ctx context.Context, client safeguard.ClientInterface, registrationID int) ([]domain.RetrievableAccount, error) {
	accounts, err := client.GetRetrievableAccounts(ctx, registrationID)
	if err != nil {
		return nil, classifyApplianceError(err)
	}

	result := make([]domain.RetrievableAccount, 0, len(accounts))
	for _, account := range accounts {
		result = append(result, toDomainRetrievableAccount(account))
	}

	return result, nil
}

// AddRetrievableAccounts registers the accounts that are not yet retrievable and returns the full list
func (m *safeguardManager) AddRetrievableAccounts(ctx context.Context, accounts []domain.AvailableAccount) ([]domain.RetrievableAccount, error) {
	registrationID, err := getRegistrationID(ctx, m.repository)
	if err != nil {
		return nil, err
	}

	client, err := connectSession(ctx, m.connector)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	existing, err := m.listRetrievableAccounts(ctx, client, registrationID)
	if err != nil {
		return nil, err
	}

	registered := make(map[int]bool, len(existing))
	for _, account := range existing {
		registered[account.AccountID] = true
	}

	for _, account := range accounts {
		if registered[account.ID] {
			continue
		}

		_, err := client.AddRetrievableAccount(ctx, registrationID, &safeguard.AddRetrievableAccountRequest{
			AccountID: account.ID,
		})
		if err != nil {
			log.Error().Err(err).Int("account_id", account.ID).Msg("Failed to add retrievable account")

			return nil, classifyApplianceError(err)
		}

		registered[account.ID] = true
	}

	return m.listRetrievableAccounts(ctx, client, registrationID)
}

func (m *safeguardManager) ResolveRetrievableAccount(ctx context.Context, accountID int) (*domain.RetrievableAccount, error) {
	registrationID, err := getRegistrationID(ctx, m.repository)
	if err != nil {
		return nil, err
	}

	client, err := connectSession(ctx, m.connector)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	return resolveRetrievableAccount(ctx, client, registrationID, accountID)
}

func (m *safeguardManager) GetAvailableAccounts(ctx context.Context) ([]domain.AvailableAccount, error) {
	client, err := connectSession(ctx, m.connector)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	accounts, err := client.GetPolicyAccounts(ctx)
	if err != nil {
		return nil, classifyApplianceError(err)
	}

	result := make([]domain.AvailableAccount, 0, len(accounts))
	for _, account := range accounts {
		result = append(result, toDomainAvailableAccount(account))
	}

	return result, nil
}

func (m *safeguardManager) InstallClientCertificate(ctx context.Context, upload domain.ClientCertificateUpload) (*domain.ClientCertificate, error) {
	pendingKey, err := m.repository.GetSetting(ctx, domain.SettingCSRKey)
	if err != nil {
		return nil, err
	}

	parsed, err := parseCertificateUpload(upload, pendingKey)
	if err != nil {
		return nil, err
	}

	err = m.repository.SetSettings(ctx, map[domain.SettingName]string{
		domain.SettingClientCertificate:    parsed.certificatePEM,
		domain.SettingClientCertificateKey: parsed.privateKeyPEM,
		domain.SettingCSR:                  "",
		domain.SettingCSRKey:               "",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save client certificate: %w", err)
	}

	certificate := toClientCertificate(parsed.certificate)

	log.Info().Str("thumbprint", certificate.Thumbprint).Str("subject", certificate.Subject).Msg("Client certificate installed")

	return certificate, nil
}

func (m *safeguardManager) RemoveClientCertificate(ctx context.Context) error {
	certificatePEM, err := m.repository.GetSetting(ctx, domain.SettingClientCertificate)
	if err != nil {
		return err
	}

	if certificatePEM == "" {
		return fmt.Errorf("%w: no client certificate is installed", domain.ErrNotFound)
	}

	if err := m.repository.DeleteSettings(ctx, domain.SettingClientCertificate, domain.SettingClientCertificateKey); err != nil {
		return fmt.Errorf("failed to remove client certificate: %w", err)
	}

	return nil
}

func (m *safeguardManager) GetClientCertificate(ctx context.Context) (*domain.ClientCertificate, error) {
	certificatePEM, err := m.repository.GetSetting(ctx, domain.SettingClientCertificate)
	if err != nil {
		return nil, err
	}

	if certificatePEM == "" {
		return nil, fmt.Errorf("%w: no client certificate is installed", domain.ErrNotFound)
	}

	certificate, err := parseCertificatePEM(certificatePEM)
	if err != nil {
		return nil, err
	}

	return toClientCertificate(certificate), nil
}

// GenerateCSR creates a new key pair and keeps the key until the signed certificate is installed
func (m *safeguardManager) GenerateCSR(ctx context.Context, params domain.GenerateCSRParams) (string, error) {
	subject := strings.TrimSpace(params.SubjectName)
	if subject == "" {
		subject = "CN=" + m.serviceName
	}

	csrPEM, keyPEM, err := generateCSR(params.KeySize, subject)
	if err != nil {
		return "", err
	}

	err = m.repository.SetSettings(ctx, map[domain.SettingName]string{
		domain.SettingCSR:    csrPEM,
		domain.SettingCSRKey: keyPEM,
	})
	if err != nil {
		return "", fmt.Errorf("failed to save certificate signing request: %w", err)
	}

	return csrPEM, nil
}

func (m *safeguardManager) setSetting(ctx context.Context, name domain.SettingName, value string) error {
	if err := m.repository.SetSettings(ctx, map[domain.SettingName]string{name: value}); err != nil {
		return fmt.Errorf("failed to save setting %s: %w", name, err)
	}

	return nil
}

func ignoreNotFound(err error) error {
	if err != nil && safeguard.IsNotFoundError(err) {
		return nil
	}

	return err
}
