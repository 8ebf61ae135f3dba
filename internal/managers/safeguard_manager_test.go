package managers

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vaultbridge/vaultbridge/pkg/clients/safeguard"
	"github.com/vaultbridge/vaultbridge/pkg/domain"
	"github.com/youmark/pkcs8"
)

type testCertificate struct {
	certificate *x509.Certificate
	key         crypto.Signer
	certPEM     []byte
	keyPEM      []byte
}

func newSelfSignedCertificate(t *testing.T, commonName string) testCertificate {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		Subject:               pkix.Name{CommonName: commonName},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, key.Public(), key)
	require.NoError(t, err)

	certificate, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)

	return testCertificate{
		certificate: certificate,
		key:         key,
		certPEM:     pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
		keyPEM:      pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER}),
	}
}

func encodeUpload(parts ...[]byte) string {
	var bundle []byte
	for _, part := range parts {
		bundle = append(bundle, part...)
	}

	return base64.StdEncoding.EncodeToString(bundle)
}

func TestSafeguardManager_ClientCertificateRoundTrip(t *testing.T) {
	fixture := newManagersFixture(t)
	ctx := context.Background()

	issued := newSelfSignedCertificate(t, "vaultbridge-test")

	_, err := fixture.safeguard.GetClientCertificate(ctx)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	installed, err := fixture.safeguard.InstallClientCertificate(ctx, domain.ClientCertificateUpload{
		Base64CertificateData: encodeUpload(issued.certPEM, issued.keyPEM),
	})
	require.NoError(t, err)
	assert.Equal(t, certificateThumbprint(issued.certificate), installed.Thumbprint)
	assert.Contains(t, installed.Subject, "vaultbridge-test")

	current, err := fixture.safeguard.GetClientCertificate(ctx)
	require.NoError(t, err)
	assert.Equal(t, installed.Thumbprint, current.Thumbprint)

	require.NoError(t, fixture.safeguard.RemoveClientCertificate(ctx))

	_, err = fixture.safeguard.GetClientCertificate(ctx)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	err = fixture.safeguard.RemoveClientCertificate(ctx)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSafeguardManager_InstallEncryptedPrivateKey(t *testing.T) {
	fixture := newManagersFixture(t)
	ctx := context.Background()

	issued := newSelfSignedCertificate(t, "encrypted")

	encryptedDER, err := pkcs8.MarshalPrivateKey(issued.key, []byte("s3cret"), nil)
	require.NoError(t, err)

	encryptedPEM := pem.EncodeToMemory(&pem.Block{Type: "ENCRYPTED PRIVATE KEY", Bytes: encryptedDER})

	_, err = fixture.safeguard.InstallClientCertificate(ctx, domain.ClientCertificateUpload{
		Base64CertificateData: encodeUpload(issued.certPEM, encryptedPEM),
	})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = fixture.safeguard.InstallClientCertificate(ctx, domain.ClientCertificateUpload{
		Base64CertificateData: encodeUpload(issued.certPEM, encryptedPEM),
		Passphrase:            "wrong",
	})
	assert.ErrorIs(t, err, domain.ErrValidation)

	installed, err := fixture.safeguard.InstallClientCertificate(ctx, domain.ClientCertificateUpload{
		Base64CertificateData: encodeUpload(issued.certPEM, encryptedPEM),
		Passphrase:            "s3cret",
	})
	require.NoError(t, err)
	assert.Equal(t, certificateThumbprint(issued.certificate), installed.Thumbprint)
}

func TestSafeguardManager_InstallRejectsInvalidUploads(t *testing.T) {
	fixture := newManagersFixture(t)
	ctx := context.Background()

	issued := newSelfSignedCertificate(t, "no-key")
	other := newSelfSignedCertificate(t, "other")

	tests := []struct {
		name   string
		upload domain.ClientCertificateUpload
	}{
		{
			name:   "empty",
			upload: domain.ClientCertificateUpload{},
		},
		{
			name:   "not base64",
			upload: domain.ClientCertificateUpload{Base64CertificateData: "%%%"},
		},
		{
			name:   "garbage",
			upload: domain.ClientCertificateUpload{Base64CertificateData: base64.StdEncoding.EncodeToString([]byte("garbage"))},
		},
		{
			name:   "certificate without key or pending request",
			upload: domain.ClientCertificateUpload{Base64CertificateData: encodeUpload(issued.certPEM)},
		},
		{
			name:   "mismatched key",
			upload: domain.ClientCertificateUpload{Base64CertificateData: encodeUpload(issued.certPEM, other.keyPEM)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fixture.safeguard.InstallClientCertificate(ctx, tt.upload)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}

	_, err := fixture.safeguard.GetClientCertificate(ctx)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func parseCSR(t *testing.T, csrPEM string) *x509.CertificateRequest {
	t.Helper()

	block, _ := pem.Decode([]byte(csrPEM))
	require.NotNil(t, block)
	require.Equal(t, "CERTIFICATE REQUEST", block.Type)

	request, err := x509.ParseCertificateRequest(block.Bytes)
	require.NoError(t, err)
	require.NoError(t, request.CheckSignature())

	return request
}

func TestSafeguardManager_GenerateCSRDefaults(t *testing.T) {
	fixture := newManagersFixture(t)
	ctx := context.Background()

	csrPEM, err := fixture.safeguard.GenerateCSR(ctx, domain.GenerateCSRParams{})
	require.NoError(t, err)

	request := parseCSR(t, csrPEM)
	assert.Equal(t, "vaultbridge", request.Subject.CommonName)

	publicKey, ok := request.PublicKey.(*rsa.PublicKey)
	require.True(t, ok)
	assert.Equal(t, 2048, publicKey.N.BitLen())

	storedKey, err := fixture.repository.GetSetting(ctx, domain.SettingCSRKey)
	require.NoError(t, err)
	assert.Contains(t, storedKey, "PRIVATE KEY")
}

func TestSafeguardManager_GenerateCSRValidation(t *testing.T) {
	fixture := newManagersFixture(t)
	ctx := context.Background()

	csrPEM, err := fixture.safeguard.GenerateCSR(ctx, domain.GenerateCSRParams{
		KeySize:     1024,
		SubjectName: "CN=bridge.example.com, O=Example, C=US",
	})
	require.NoError(t, err)

	request := parseCSR(t, csrPEM)
	assert.Equal(t, "bridge.example.com", request.Subject.CommonName)
	assert.Equal(t, []string{"Example"}, request.Subject.Organization)
	assert.Equal(t, []string{"US"}, request.Subject.Country)

	for _, size := range []int{512, 1000, 9216} {
		_, err := fixture.safeguard.GenerateCSR(ctx, domain.GenerateCSRParams{KeySize: size})
		assert.ErrorIs(t, err, domain.ErrValidation, "size %d", size)
	}

	_, err = fixture.safeguard.GenerateCSR(ctx, domain.GenerateCSRParams{SubjectName: "O=NoCommonName"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestSafeguardManager_InstallCertificateSignedForPendingCSR(t *testing.T) {
	fixture := newManagersFixture(t)
	ctx := context.Background()

	csrPEM, err := fixture.safeguard.GenerateCSR(ctx, domain.GenerateCSRParams{KeySize: 1024})
	require.NoError(t, err)

	request := parseCSR(t, csrPEM)
	authority := newSelfSignedCertificate(t, "Test CA")

	template := &x509.Certificate{
		SerialNumber: big.NewInt(42),
		Subject:      request.Subject,
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}

	der, err := x509.CreateCertificate(rand.Reader, template, authority.certificate, request.PublicKey, authority.key)
	require.NoError(t, err)

	// DER only, the key comes from the pending request
	installed, err := fixture.safeguard.InstallClientCertificate(ctx, domain.ClientCertificateUpload{
		Base64CertificateData: base64.StdEncoding.EncodeToString(der),
	})
	require.NoError(t, err)
	assert.Contains(t, installed.Issuer, "Test CA")

	pendingKey, err := fixture.repository.GetSetting(ctx, domain.SettingCSRKey)
	require.NoError(t, err)
	assert.Empty(t, pendingKey)

	params, err := loadA2AParams(ctx, fixture.repository)
	assert.ErrorIs(t, err, domain.ErrNotConfigured)

	fixture.configureAppliance(t, "")

	params, err = loadA2AParams(ctx, fixture.repository)
	require.NoError(t, err)
	assert.Equal(t, "spp.example.test", params.Address)
	assert.NotEmpty(t, params.Certificate.Certificate)
}

func TestSafeguardManager_Logon(t *testing.T) {
	fixture := newManagersFixture(t)
	ctx := context.Background()

	_, err := fixture.safeguard.Logon(ctx, "token")
	assert.ErrorIs(t, err, domain.ErrNotConfigured)

	fixture.configureAppliance(t, "")

	session, err := fixture.safeguard.Logon(ctx, "token")
	require.NoError(t, err)
	assert.NotEmpty(t, session.Key)
	assert.Equal(t, "admin", session.UserName)
	assert.Equal(t, "token", session.Credentials.AccessToken)
}

func TestSafeguardManager_SafeguardConnection(t *testing.T) {
	fixture := newManagersFixture(t)
	ctx := sessionContext()

	connection, err := fixture.safeguard.GetSafeguardConnection(ctx)
	require.NoError(t, err)
	assert.Nil(t, connection)

	_, err = fixture.safeguard.SetSafeguardData(ctx, domain.SafeguardData{})
	assert.ErrorIs(t, err, domain.ErrValidation)

	connection, err = fixture.safeguard.SetSafeguardData(ctx, domain.SafeguardData{ApplianceAddress: "spp.example.test"})
	require.NoError(t, err)
	assert.Equal(t, "spp.example.test", connection.ApplianceAddress)
	assert.Equal(t, 4, connection.APIVersion)
	assert.Equal(t, "Online", connection.ApplianceState)
	assert.Equal(t, "admin", connection.UserName)

	require.NoError(t, fixture.repository.SetSettings(ctx, map[domain.SettingName]string{
		domain.SettingA2ARegistrationID: "7",
	}))

	_, err = fixture.safeguard.SetSafeguardData(ctx, domain.SafeguardData{ApplianceAddress: "other.example.test"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestSafeguardManager_ConfigureRequiresCertificate(t *testing.T) {
	fixture := newManagersFixture(t)
	ctx := sessionContext()

	_, err := fixture.safeguard.ConfigureDevOpsService(ctx)
	assert.ErrorIs(t, err, domain.ErrNotConfigured)

	fixture.configureAppliance(t, "")

	_, err = fixture.safeguard.ConfigureDevOpsService(ctx)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestSafeguardManager_ConfigureAndDeleteRegistration(t *testing.T) {
	fixture := newManagersFixture(t)
	ctx := sessionContext()

	fixture.configureAppliance(t, "")

	issued := newSelfSignedCertificate(t, "vaultbridge-client")
	_, err := fixture.safeguard.InstallClientCertificate(ctx, domain.ClientCertificateUpload{
		Base64CertificateData: encodeUpload(issued.certPEM, issued.keyPEM),
	})
	require.NoError(t, err)

	configuration, err := fixture.safeguard.ConfigureDevOpsService(ctx)
	require.NoError(t, err)
	assert.NotZero(t, configuration.A2ARegistrationID)
	assert.NotZero(t, configuration.A2AUserID)
	assert.Equal(t, "TRUSTED", configuration.TrustedCertificateThumbprint)
	require.NotNil(t, configuration.ClientCertificate)

	require.Len(t, fixture.client.createdUsers, 1)
	assert.True(t, strings.HasPrefix(fixture.client.createdUsers[0].Name, "vaultbridge-"))
	assert.Equal(t, safeguard.CertificateAuthenticationProviderID, fixture.client.createdUsers[0].PrimaryAuthenticationProvider.ID)
	require.Len(t, fixture.client.createdRegistrations, 1)
	assert.Len(t, fixture.client.trustedCertificates, 1)

	again, err := fixture.safeguard.ConfigureDevOpsService(ctx)
	require.NoError(t, err)
	assert.Equal(t, configuration.A2ARegistrationID, again.A2ARegistrationID)
	assert.Len(t, fixture.client.createdUsers, 1)
	assert.Len(t, fixture.client.createdRegistrations, 1)

	registration, err := fixture.safeguard.GetA2ARegistration(ctx)
	require.NoError(t, err)
	assert.Equal(t, configuration.A2ARegistrationID, registration.ID)

	fixture.addPlugin(t, "vault-a")
	fixture.client.addRetrievable(safeguard.RetrievableAccount{AccountID: 1, AccountName: "root", SystemName: "db01", APIKey: "key-1"}, "")

	mappings, err := fixture.accountMappings.SaveAccountMappings(ctx, "vault-a", []domain.RetrievableAccount{{AccountID: 1}})
	require.NoError(t, err)
	require.Len(t, mappings, 1)

	require.NoError(t, fixture.safeguard.DeleteA2ARegistration(ctx))

	assert.Equal(t, []int{configuration.A2ARegistrationID}, fixture.client.deletedRegistrations)
	assert.Equal(t, []int{configuration.A2AUserID}, fixture.client.deletedUsers)
	assert.Equal(t, []string{"TRUSTED"}, fixture.client.deletedThumbprints)

	remaining, err := fixture.repository.GetAccountMappings(ctx)
	require.NoError(t, err)
	assert.Empty(t, remaining)

	_, err = fixture.safeguard.GetA2ARegistration(ctx)
	assert.ErrorIs(t, err, domain.ErrNotConfigured)

	err = fixture.safeguard.DeleteA2ARegistration(ctx)
	assert.ErrorIs(t, err, domain.ErrNotConfigured)

	// the certificate survives until the whole configuration is deleted
	_, err = fixture.safeguard.GetClientCertificate(ctx)
	require.NoError(t, err)

	require.NoError(t, fixture.safeguard.DeleteDevOpsConfiguration(ctx))

	_, err = fixture.safeguard.GetClientCertificate(ctx)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	address, err := fixture.repository.GetSetting(ctx, domain.SettingApplianceAddress)
	require.NoError(t, err)
	assert.Equal(t, "spp.example.test", address)
}

func TestSafeguardManager_AddRetrievableAccountsSkipsRegistered(t *testing.T) {
	fixture := newManagersFixture(t)
	ctx := sessionContext()

	_, err := fixture.safeguard.AddRetrievableAccounts(ctx, []domain.AvailableAccount{{ID: 1}})
	assert.ErrorIs(t, err, domain.ErrNotConfigured)

	fixture.configureAppliance(t, "12")
	fixture.client.addRetrievable(safeguard.RetrievableAccount{AccountID: 1, AccountName: "root", APIKey: "key-1"}, "")

	accounts, err := fixture.safeguard.AddRetrievableAccounts(ctx, []domain.AvailableAccount{{ID: 1}, {ID: 2}})
	require.NoError(t, err)
	assert.Len(t, accounts, 2)

	existing := map[int]string{}
	for _, account := range accounts {
		existing[account.AccountID] = account.AccountName
	}
	assert.Equal(t, "root", existing[1])
	assert.Equal(t, "added", existing[2])

	_, err = fixture.safeguard.ResolveRetrievableAccount(ctx, 99)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = fixture.safeguard.GetRetrievableAccounts(context.Background())
	assert.ErrorIs(t, err, domain.ErrAuthentication)
}
