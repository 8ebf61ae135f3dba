package safeguard

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// ClientInterface defines the appliance operations used by the service
type ClientInterface interface {
	// Identity and status
	GetMe(ctx context.Context) (*User, error)
	GetApplianceStatus(ctx context.Context) (*ApplianceStatus, error)

	// Certificate users and trust
	CreateUser(ctx context.Context, req *CreateUserRequest) (*User, error)
	GetUser(ctx context.Context, userID int) (*User, error)
	DeleteUser(ctx context.Context, userID int) error
	AddTrustedCertificate(ctx context.Context, req *AddTrustedCertificateRequest) (*TrustedCertificate, error)
	DeleteTrustedCertificate(ctx context.Context, thumbprint string) error

	// A2A registrations
	CreateA2ARegistration(ctx context.Context, req *CreateA2ARegistrationRequest) (*A2ARegistration, error)
	GetA2ARegistration(ctx context.Context, registrationID int) (*A2ARegistration, error)
	DeleteA2ARegistration(ctx context.Context, registrationID int) error
	GetRetrievableAccounts(ctx context.Context, registrationID int) ([]RetrievableAccount, error)
	GetRetrievableAccount(ctx context.Context, registrationID, accountID int) (*RetrievableAccount, error)
	AddRetrievableAccount(ctx context.Context, registrationID int, req *AddRetrievableAccountRequest) (*RetrievableAccount, error)
	GetPolicyAccounts(ctx context.Context) ([]PolicyAccount, error)

	// A2A credential retrieval, requires a client certificate
	RetrievePassword(ctx context.Context, apiKey string) (string, error)

	Close() error
}

// Client talks to the appliance REST services
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
}

// NewClient creates a new appliance client with the given options
func NewClient(options ...ClientOption) *Client {
	config := DefaultConfig()

	for _, option := range options {
		option(config)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		tlsConfig := &tls.Config{
			InsecureSkipVerify: config.IgnoreSSL,
		}

		if config.ClientCertificate != nil {
			tlsConfig.Certificates = []tls.Certificate{*config.ClientCertificate}
		}

		httpClient = &http.Client{
			Timeout: config.Timeout,
			Transport: &http.Transport{
				Proxy:           http.ProxyFromEnvironment,
				TLSClientConfig: tlsConfig,
			},
		}
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
	}
}

// Close releases idle connections held by the client
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()

	return nil
}

func (c *Client) serviceURL(service Service, relativeURL string) string {
	base := c.config.Address
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}

	return fmt.Sprintf("%s/service/%s/v%d/%s",
		strings.TrimRight(base, "/"),
		service,
		c.config.APIVersion,
		strings.TrimLeft(relativeURL, "/"),
	)
}

func (c *Client) GetMe(ctx context.Context) (*User, error) {
	resp, err := c.doRequest(ctx, ServiceCore, http.MethodGet, "Me", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get current user: %w", err)
	}

	var result User
	if err := c.handleResponse(resp, &result); err != nil {
		return nil, fmt.Errorf("failed to process get current user response: %w", err)
	}

	return &result, nil
}

// GetApplianceStatus queries the anonymous notification status endpoint
func (c *Client) GetApplianceStatus(ctx context.Context) (*ApplianceStatus, error) {
	resp, err := c.doRequest(ctx, ServiceNotification, http.MethodGet, "Status", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get appliance status: %w", err)
	}

	var result ApplianceStatus
	if err := c.handleResponse(resp, &result); err != nil {
		return nil, fmt.Errorf("failed to process appliance status response: %w", err)
	}

	return &result, nil
}

func (c *Client) CreateUser(ctx context.Context, req *CreateUserRequest) (*User, error) {
	if req == nil || req.Name == "" {
		return nil, fmt.Errorf("user name is required")
	}

	resp, err := c.doRequest(ctx, ServiceCore, http.MethodPost, "Users", req, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	var result User
	if err := c.handleResponse(resp, &result); err != nil {
		return nil, fmt.Errorf("failed to process create user response: %w", err)
	}

	return &result, nil
}

func (c *Client) GetUser(ctx context.Context, userID int) (*User, error) {
	resp, err := c.doRequest(ctx, ServiceCore, http.MethodGet, fmt.Sprintf("Users/%d", userID), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	var result User
	if err := c.handleResponse(resp, &result); err != nil {
		return nil, fmt.Errorf("failed to process get user response: %w", err)
	}

	return &result, nil
}

func (c *Client) DeleteUser(ctx context.Context, userID int) error {
	resp, err := c.doRequest(ctx, ServiceCore, http.MethodDelete, fmt.Sprintf("Users/%d", userID), nil, nil)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	if err := c.handleResponse(resp, nil); err != nil {
		return fmt.Errorf("failed to process delete user response: %w", err)
	}

	return nil
}

func (c *Client) AddTrustedCertificate(ctx context.Context, req *AddTrustedCertificateRequest) (*TrustedCertificate, error) {
	if req == nil || req.Base64CertificateData == "" {
		return nil, fmt.Errorf("certificate data is required")
	}

	resp, err := c.doRequest(ctx, ServiceCore, http.MethodPost, "TrustedCertificates", req, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to add trusted certificate: %w", err)
	}

	var result TrustedCertificate
	if err := c.handleResponse(resp, &result); err != nil {
		return nil, fmt.Errorf("failed to process add trusted certificate response: %w", err)
	}

	return &result, nil
}

func (c *Client) DeleteTrustedCertificate(ctx context.Context, thumbprint string) error {
	if thumbprint == "" {
		return fmt.Errorf("thumbprint is required")
	}

	path := fmt.Sprintf("TrustedCertificates/%s", url.PathEscape(thumbprint))
	resp, err := c.doRequest(ctx, ServiceCore, http.MethodDelete, path, nil, nil)
	if err != nil {
		return fmt.Errorf("failed to delete trusted certificate: %w", err)
	}

	if err := c.handleResponse(resp, nil); err != nil {
		return fmt.Errorf("failed to process delete trusted certificate response: %w", err)
	}

	return nil
}

func (c *Client) CreateA2ARegistration(ctx context.Context, req *CreateA2ARegistrationRequest) (*A2ARegistration, error) {
	if req == nil || req.AppName == "" {
		return nil, fmt.Errorf("registration app name is required")
	}

	resp, err := c.doRequest(ctx, ServiceCore, http.MethodPost, "A2ARegistrations", req, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create A2A registration: %w", err)
	}

	var result A2ARegistration
	if err := c.handleResponse(resp, &result); err != nil {
		return nil, fmt.Errorf("failed to process create A2A registration response: %w", err)
	}

	return &result, nil
}

func (c *Client) GetA2ARegistration(ctx context.Context, registrationID int) (*A2ARegistration, error) {
	path := fmt.Sprintf("A2ARegistrations/%d", registrationID)
	resp, err := c.doRequest(ctx, ServiceCore, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get A2A registration: %w", err)
	}

	var result A2ARegistration
	if err := c.handleResponse(resp, &result); err != nil {
		return nil, fmt.Errorf("failed to process get A2A registration response: %w", err)
	}

	return &result, nil
}

func (c *Client) DeleteA2ARegistration(ctx context.Context, registrationID int) error {
	path := fmt.Sprintf("A2ARegistrations/%d", registrationID)
	resp, err := c.doRequest(ctx, ServiceCore, http.MethodDelete, path, nil, nil)
	if err != nil {
		return fmt.Errorf("failed to delete A2A registration: %w", err)
	}

	if err := c.handleResponse(resp, nil); err != nil {
		return fmt.Errorf("failed to process delete A2A registration response: %w", err)
	}

	return nil
}

func (c *Client) GetRetrievableAccounts(ctx context.Context, registrationID int) ([]RetrievableAccount, error) {
	path := fmt.Sprintf("A2ARegistrations/%d/RetrievableAccounts", registrationID)
	resp, err := c.doRequest(ctx, ServiceCore, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get retrievable accounts: %w", err)
	}

	var result []RetrievableAccount
	if err := c.handleResponse(resp, &result); err != nil {
		return nil, fmt.Errorf("failed to process retrievable accounts response: %w", err)
	}

	return result, nil
}

func (c *Client) GetRetrievableAccount(ctx context.Context, registrationID, accountID int) (*RetrievableAccount, error) {
	path := fmt.Sprintf("A2ARegistrations/%d/RetrievableAccounts/%d", registrationID, accountID)
	resp, err := c.doRequest(ctx, ServiceCore, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get retrievable account %d: %w", accountID, err)
	}

	var result RetrievableAccount
	if err := c.handleResponse(resp, &result); err != nil {
		return nil, fmt.Errorf("failed to process retrievable account response: %w", err)
	}

	return &result, nil
}

func (c *Client) AddRetrievableAccount(ctx context.Context, registrationID int, req *AddRetrievableAccountRequest) (*RetrievableAccount, error) {
	if req == nil || req.AccountID == 0 {
		return nil, fmt.Errorf("account ID is required")
	}

	path := fmt.Sprintf("A2ARegistrations/%d/RetrievableAccounts", registrationID)
	resp, err := c.doRequest(ctx, ServiceCore, http.MethodPost, path, req, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to add retrievable account %d: %w", req.AccountID, err)
	}

	var result RetrievableAccount
	if err := c.handleResponse(resp, &result); err != nil {
		return nil, fmt.Errorf("failed to process add retrievable account response: %w", err)
	}

	return &result, nil
}

func (c *Client) GetPolicyAccounts(ctx context.Context) ([]PolicyAccount, error) {
	resp, err := c.doRequest(ctx, ServiceCore, http.MethodGet, "PolicyAccounts", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get policy accounts: %w", err)
	}

	var result []PolicyAccount
	if err := c.handleResponse(resp, &result); err != nil {
		return nil, fmt.Errorf("failed to process policy accounts response: %w", err)
	}

	return result, nil
}

// RetrievePassword fetches the password for an A2A API key. The appliance
// authenticates the caller by the client certificate and the key.
func (c *Client) RetrievePassword(ctx context.Context, apiKey string) (string, error) {
	if apiKey == "" {
		return "", fmt.Errorf("API key is required")
	}

	headers := map[string]string{
		"Authorization": "A2A " + apiKey,
	}

	resp, err := c.doRequest(ctx, ServiceA2A, http.MethodGet, "Credentials?type=Password", nil, headers)
	if err != nil {
		return "", fmt.Errorf("failed to retrieve password: %w", err)
	}

	var password string
	if err := c.handleResponse(resp, &password); err != nil {
		return "", fmt.Errorf("failed to process retrieve password response: %w", err)
	}

	return password, nil
}

func (c *Client) doRequest(ctx context.Context, service Service, method, relativeURL string, body any, headers map[string]string) (*http.Response, error) {
	var bodyBytes []byte

	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	requestURL := c.serviceURL(service, relativeURL)

	var lastErr error
	for attempt := 0; attempt <= c.config.RetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.config.RetryDelay):
			}
		}

		var requestBody io.Reader
		if bodyBytes != nil {
			requestBody = bytes.NewReader(bodyBytes)
		}

		req, err := http.NewRequestWithContext(ctx, method, requestURL, requestBody)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		for key, value := range c.config.DefaultHeaders {
			req.Header.Set(key, value)
		}

		if c.config.AccessToken != "" {
			req.Header.Set("Authorization", "Bearer "+c.config.AccessToken)
		}

		for key, value := range headers {
			req.Header.Set(key, value)
		}

		if c.config.UserAgent != "" {
			req.Header.Set("User-Agent", c.config.UserAgent)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}

			lastErr = err
			continue
		}

		if resp.StatusCode >= 400 {
			respBody, _ := io.ReadAll(resp.Body)
			resp.Body.Close()

			apiErr := parseError(resp, respBody)
			if !apiErr.IsRetryable() {
				return nil, apiErr
			}

			log.Error().
				Int("status_code", resp.StatusCode).
				Str("url", requestURL).
				Str("request_id", apiErr.RequestID).
				Msg("appliance request failed, retrying")

			lastErr = apiErr
			continue
		}

		return resp, nil
	}

	return nil, fmt.Errorf("request failed after %d retries: %w", c.config.RetryAttempts, lastErr)
}

func (c *Client) handleResponse(resp *http.Response, result any) error {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return parseError(resp, body)
	}

	if result != nil && len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}

	return nil
}

func parseError(resp *http.Response, body []byte) *Error {
	var errorResponse struct {
		Code    int    `json:"Code"`
		Message string `json:"Message"`
		Error   string `json:"error"`
	}

	apiErr := &Error{
		StatusCode: resp.StatusCode,
		Message:    fmt.Sprintf("HTTP %d", resp.StatusCode),
		Body:       string(body),
		RequestID:  resp.Header.Get("X-Request-ID"),
	}

	if json.Unmarshal(body, &errorResponse) == nil {
		apiErr.Code = errorResponse.Code

		switch {
		case errorResponse.Message != "":
			apiErr.Message = errorResponse.Message
		case errorResponse.Error != "":
			apiErr.Message = errorResponse.Error
		}
	}

	return apiErr
}
