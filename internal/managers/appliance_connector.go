package managers

import (
	"context"
	"fmt"
	"time"

	"github.com/vaultbridge/vaultbridge/pkg/clients/safeguard"
	"github.com/vaultbridge/vaultbridge/pkg/domain"
)

type ApplianceConnectorDependencies struct {
	Timeout   time.Duration
	UserAgent string
}

type applianceConnector struct {
	timeout   time.Duration
	userAgent string
}

func NewApplianceConnector(deps ApplianceConnectorDependencies) domain.ApplianceConnector {
	return &applianceConnector{
		timeout:   deps.Timeout,
		userAgent: deps.UserAgent,
	}
}

func (c *applianceConnector) options(address string, ignoreSSL bool, apiVersion int) []safeguard.ClientOption {
	options := []safeguard.ClientOption{
		safeguard.WithAddress(address),
		safeguard.WithIgnoreSSL(ignoreSSL),
		safeguard.WithAPIVersion(apiVersion),
	}

	if c.timeout > 0 {
		options = append(options, safeguard.WithTimeout(c.timeout))
	}

	if c.userAgent != "" {
		options = append(options, safeguard.WithUserAgent(c.userAgent))
	}

	return options
}

func (c *applianceConnector) Connect(ctx context.Context, credentials domain.ApplianceCredentials) (safeguard.ClientInterface, error) {
	if credentials.Address == "" {
		return nil, fmt.Errorf("%w: no appliance address", domain.ErrNotConfigured)
	}

	options := c.options(credentials.Address, credentials.IgnoreSSL, credentials.APIVersion)
	if credentials.AccessToken != "" {
		options = append(options, safeguard.WithAccessToken(credentials.AccessToken))
	}

	return safeguard.NewClient(options...), nil
}

func (c *applianceConnector) ConnectA2A(ctx context.Context, params domain.ConnectA2AParams) (safeguard.ClientInterface, error) {
	if params.Address == "" {
		return nil, fmt.Errorf("%w: no appliance address", domain.ErrNotConfigured)
	}

	options := c.options(params.Address, params.IgnoreSSL, params.APIVersion)
	options = append(options, safeguard.WithClientCertificate(params.Certificate))

	return safeguard.NewClient(options...), nil
}
