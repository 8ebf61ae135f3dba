package safeguard

import (
	"crypto/tls"
	"net/http"
	"time"
)

// ClientOption represents an option for configuring the appliance client
type ClientOption func(*ClientConfig)

// ClientConfig holds the configuration for the appliance client
type ClientConfig struct {
	// Address is the appliance network address. A value carrying a scheme
	// (https://host:port) is used as the base URL verbatim.
	Address           string
	APIVersion        int
	AccessToken       string
	IgnoreSSL         bool
	ClientCertificate *tls.Certificate
	Timeout           time.Duration
	RetryAttempts     int
	RetryDelay        time.Duration
	DefaultHeaders    map[string]string
	HTTPClient        *http.Client
	UserAgent         string
}

// DefaultConfig returns a sensible default configuration
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		APIVersion:    4,
		Timeout:       30 * time.Second,
		RetryAttempts: 2,
		RetryDelay:    1 * time.Second,
		DefaultHeaders: map[string]string{
			"Content-Type": "application/json",
			"Accept":       "application/json",
		},
		UserAgent: "vaultbridge/1.0.0",
	}
}

// WithAddress sets the appliance network address
func WithAddress(address string) ClientOption {
	return func(c *ClientConfig) {
		c.Address = address
	}
}

// WithAPIVersion sets the appliance API version used in service URLs
func WithAPIVersion(version int) ClientOption {
	return func(c *ClientConfig) {
		if version > 0 {
			c.APIVersion = version
		}
	}
}

// WithAccessToken sets the bearer token sent on every request
func WithAccessToken(token string) ClientOption {
	return func(c *ClientConfig) {
		c.AccessToken = token
	}
}

// WithIgnoreSSL disables verification of the appliance TLS certificate
func WithIgnoreSSL(ignore bool) ClientOption {
	return func(c *ClientConfig) {
		c.IgnoreSSL = ignore
	}
}

// WithClientCertificate enables mutual TLS with the given certificate
func WithClientCertificate(certificate tls.Certificate) ClientOption {
	return func(c *ClientConfig) {
		c.ClientCertificate = &certificate
	}
}

// WithTimeout sets the request timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *ClientConfig) {
		c.Timeout = timeout
	}
}

// WithRetry sets the retry configuration
func WithRetry(attempts int, delay time.Duration) ClientOption {
	return func(c *ClientConfig) {
		c.RetryAttempts = attempts
		c.RetryDelay = delay
	}
}

// WithHTTPClient sets a custom HTTP client. The TLS options are ignored when set.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *ClientConfig) {
		c.HTTPClient = client
	}
}

// WithUserAgent sets the User-Agent header
func WithUserAgent(userAgent string) ClientOption {
	return func(c *ClientConfig) {
		c.UserAgent = userAgent
	}
}
