package managers

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vaultbridge/vaultbridge/internal/store"
	"github.com/vaultbridge/vaultbridge/pkg/clients/safeguard"
	"github.com/vaultbridge/vaultbridge/pkg/domain"
)

func newTestRepository(t *testing.T) domain.ConfigurationRepository {
	t.Helper()

	key, err := store.GenerateSealingKey()
	require.NoError(t, err)

	sealer, err := store.NewAgeSealer(key)
	require.NoError(t, err)

	repository, err := store.NewStore(context.Background(), store.StoreDependencies{
		DatabasePath: store.InMemory,
		Sealer:       sealer,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = repository.Close()
	})

	return repository
}

func sessionContext() context.Context {
	return domain.NewContextWithApplianceSession(context.Background(), &domain.ApplianceSession{
		Key: "session",
		Credentials: domain.ApplianceCredentials{
			Address:     "spp.example.test",
			AccessToken: "token",
			APIVersion:  4,
		},
		UserName: "admin",
	})
}

func notFound() error {
	return &safeguard.Error{StatusCode: http.StatusNotFound, Message: "not found"}
}

type fakeApplianceClient struct {
	safeguard.ClientInterface

	mu sync.Mutex

	retrievable map[int]safeguard.RetrievableAccount
	passwords   map[string]string
	nextID      int

	createdUsers         []safeguard.CreateUserRequest
	createdRegistrations []safeguard.CreateA2ARegistrationRequest
	trustedCertificates  []string
	deletedRegistrations []int
	deletedUsers         []int
	deletedThumbprints   []string
	resolveCalls         int
	closed               int

	onResolved func()
}

func newFakeApplianceClient() *fakeApplianceClient {
	return &fakeApplianceClient{
		retrievable: map[int]safeguard.RetrievableAccount{},
		passwords:   map[string]string{},
		nextID:      100,
	}
}

func (c *fakeApplianceClient) addRetrievable(account safeguard.RetrievableAccount, password string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.retrievable[account.AccountID] = account
	if password != "" {
		c.passwords[account.APIKey] = password
	}
}

func (c *fakeApplianceClient) GetMe(ctx context.Context) (*safeguard.User, error) {
	return &safeguard.User{ID: 1, Name: "admin"}, nil
}

func (c *fakeApplianceClient) GetApplianceStatus(ctx context.Context) (*safeguard.ApplianceStatus, error) {
	return &safeguard.ApplianceStatus{
		ApplianceID:           "SPP-1",
		ApplianceName:         "spp",
		ApplianceVersion:      "7.5",
		ApplianceCurrentState: "Online",
	}, nil
}

func (c *fakeApplianceClient) CreateUser(ctx context.Context, req *safeguard.CreateUserRequest) (*safeguard.User, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	c.createdUsers = append(c.createdUsers, *req)

	return &safeguard.User{ID: c.nextID, Name: req.Name}, nil
}

func (c *fakeApplianceClient) GetUser(ctx context.Context, userID int) (*safeguard.User, error) {
	return &safeguard.User{ID: userID, Name: "vaultbridge-user"}, nil
}

func (c *fakeApplianceClient) DeleteUser(ctx context.Context, userID int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.deletedUsers = append(c.deletedUsers, userID)

	return nil
}

func (c *fakeApplianceClient) AddTrustedCertificate(ctx context.Context, req *safeguard.AddTrustedCertificateRequest) (*safeguard.TrustedCertificate, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.trustedCertificates = append(c.trustedCertificates, req.Base64CertificateData)

	return &safeguard.TrustedCertificate{Thumbprint: "TRUSTED"}, nil
}

func (c *fakeApplianceClient) DeleteTrustedCertificate(ctx context.Context, thumbprint string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.deletedThumbprints = append(c.deletedThumbprints, thumbprint)

	return notFound()
}

func (c *fakeApplianceClient) CreateA2ARegistration(ctx context.Context, req *safeguard.CreateA2ARegistrationRequest) (*safeguard.A2ARegistration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	c.createdRegistrations = append(c.createdRegistrations, *req)

	return &safeguard.A2ARegistration{ID: c.nextID, AppName: req.AppName, CertificateUserID: req.CertificateUserID}, nil
}

func (c *fakeApplianceClient) GetA2ARegistration(ctx context.Context, registrationID int) (*safeguard.A2ARegistration, error) {
	return &safeguard.A2ARegistration{ID: registrationID, AppName: "vaultbridge"}, nil
}

func (c *fakeApplianceClient) DeleteA2ARegistration(ctx context.Context, registrationID int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.deletedRegistrations = append(c.deletedRegistrations, registrationID)

	return nil
}

func (c *fakeApplianceClient) GetRetrievableAccounts(ctx context.Context, registrationID int) ([]safeguard.RetrievableAccount, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	accounts := make([]safeguard.RetrievableAccount, 0, len(c.retrievable))
	for _, account := range c.retrievable {
		accounts = append(accounts, account)
	}

	return accounts, nil
}

func (c *fakeApplianceClient) GetRetrievableAccount(ctx context.Context, registrationID, accountID int) (*safeguard.RetrievableAccount, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.resolveCalls++

	account, ok := c.retrievable[accountID]
	if !ok {
		return nil, notFound()
	}

	if c.onResolved != nil {
		c.onResolved()
	}

	return &account, nil
}

func (c *fakeApplianceClient) AddRetrievableAccount(ctx context.Context, registrationID int, req *safeguard.AddRetrievableAccountRequest) (*safeguard.RetrievableAccount, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	account := safeguard.RetrievableAccount{AccountID: req.AccountID, AccountName: "added", APIKey: "key-added"}
	c.retrievable[req.AccountID] = account

	return &account, nil
}

func (c *fakeApplianceClient) RetrievePassword(ctx context.Context, apiKey string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	password, ok := c.passwords[apiKey]
	if !ok {
		return "", &safeguard.Error{StatusCode: http.StatusUnauthorized, Message: "invalid api key"}
	}

	return password, nil
}

func (c *fakeApplianceClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed++

	return nil
}

type fakeConnector struct {
	client *fakeApplianceClient

	mu          sync.Mutex
	connects    int
	a2aConnects int
}

func (c *fakeConnector) Connect(ctx context.Context, credentials domain.ApplianceCredentials) (safeguard.ClientInterface, error) {
	if credentials.Address == "" {
		return nil, domain.ErrNotConfigured
	}

	c.mu.Lock()
	c.connects++
	c.mu.Unlock()

	return c.client, nil
}

func (c *fakeConnector) ConnectA2A(ctx context.Context, params domain.ConnectA2AParams) (safeguard.ClientInterface, error) {
	c.mu.Lock()
	c.a2aConnects++
	c.mu.Unlock()

	return c.client, nil
}

type fakeVaultPlugin struct {
	name string

	mu            sync.Mutex
	active        bool
	configuration map[string]string
	activations   int
	passwords     map[string]string
	failActivate  bool
	connectionErr error
}

func (p *fakeVaultPlugin) Name() string {
	return p.name
}

func (p *fakeVaultPlugin) Activate(ctx context.Context, configuration map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failActivate {
		return errors.New("vault unreachable")
	}

	p.active = true
	p.activations++
	p.configuration = configuration

	return nil
}

func (p *fakeVaultPlugin) Deactivate(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.active = false

	return nil
}

func (p *fakeVaultPlugin) ApplyConfiguration(ctx context.Context, configuration map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.configuration = configuration

	return nil
}

func (p *fakeVaultPlugin) SetPassword(ctx context.Context, params domain.SetPasswordParams) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.passwords == nil {
		p.passwords = map[string]string{}
	}

	p.passwords[params.SecretName()] = params.Password

	return nil
}

func (p *fakeVaultPlugin) TestConnection(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.connectionErr
}

const fakeSchema = `{
	"type": "object",
	"properties": {
		"address": {"type": "string", "minLength": 1},
		"port": {"type": "string", "pattern": "^[0-9]+$"}
	},
	"required": ["address"]
}`

type fakeCreator struct {
	mu        sync.Mutex
	instances map[string]*fakeVaultPlugin
	failNext  bool
}

func newFakeCreator() *fakeCreator {
	return &fakeCreator{instances: map[string]*fakeVaultPlugin{}}
}

func (c *fakeCreator) CreatePlugin(ctx context.Context, params domain.CreatePluginParams) (domain.VaultPlugin, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	plugin := &fakeVaultPlugin{name: params.Name, failActivate: c.failNext}
	c.instances[params.Name] = plugin

	return plugin, nil
}

func (c *fakeCreator) instance(name string) *fakeVaultPlugin {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.instances[name]
}

func (c *fakeCreator) DisplayName() string {
	return "Fake Vault"
}

func (c *fakeCreator) Description() string {
	return "In-memory vault"
}

func (c *fakeCreator) ConfigurationSchema() string {
	return fakeSchema
}

func (c *fakeCreator) DefaultConfiguration() map[string]string {
	return map[string]string{"address": "localhost", "port": "6379"}
}

type managersFixture struct {
	repository      domain.ConfigurationRepository
	client          *fakeApplianceClient
	connector       *fakeConnector
	creator         *fakeCreator
	plugins         domain.PluginManager
	accountMappings domain.AccountMappingManager
	safeguard       domain.SafeguardManager
}

func newManagersFixture(t *testing.T) *managersFixture {
	t.Helper()

	repository := newTestRepository(t)
	client := newFakeApplianceClient()
	connector := &fakeConnector{client: client}
	creator := newFakeCreator()

	selector := domain.NewPluginSelector()
	selector.RegisterCreator("fake", creator)

	plugins := NewPluginManager(PluginManagerDependencies{
		Repository:     repository,
		PluginSelector: selector,
	})

	accountMappings := NewAccountMappingManager(AccountMappingManagerDependencies{
		Repository:  repository,
		Connector:   connector,
		Plugins:     plugins,
		Concurrency: 2,
	})

	safeguardManager := NewSafeguardManager(SafeguardManagerDependencies{
		Repository:      repository,
		Connector:       connector,
		AccountMappings: accountMappings,
		ServiceName:     "vaultbridge",
	})

	return &managersFixture{
		repository:      repository,
		client:          client,
		connector:       connector,
		creator:         creator,
		plugins:         plugins,
		accountMappings: accountMappings,
		safeguard:       safeguardManager,
	}
}

func (f *managersFixture) addPlugin(t *testing.T, name string) {
	t.Helper()

	_, err := f.repository.SavePlugin(context.Background(), domain.Plugin{
		Name:          name,
		DisplayName:   "Fake Vault",
		Type:          "fake",
		Configuration: map[string]string{"address": "vault.local"},
	})
	require.NoError(t, err)
}

func (f *managersFixture) configureAppliance(t *testing.T, registrationID string) {
	t.Helper()

	settings := map[domain.SettingName]string{
		domain.SettingApplianceAddress:    "spp.example.test",
		domain.SettingApplianceAPIVersion: "4",
	}
	if registrationID != "" {
		settings[domain.SettingA2ARegistrationID] = registrationID
	}

	require.NoError(t, f.repository.SetSettings(context.Background(), settings))
}
