package auth

import (
	"errors"
	"strings"
)

const (
	SchemeBearer   = "Bearer"
	SchemeSPPToken = "spp-token"

	// SessionCookieName carries the session key issued at logon
	SessionCookieName = "sessionKey"
)

var (
	ErrMissingAuthorization = errors.New("authorization header is required")
	ErrInvalidAuthorization = errors.New("authorization header must be 'Bearer <token>' or 'spp-token <token>'")
)

// ParseAuthorizationHeader returns the credential of a Bearer or spp-token header
func ParseAuthorizationHeader(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", ErrMissingAuthorization
	}

	scheme, credential, found := strings.Cut(header, " ")
	if !found {
		return "", ErrInvalidAuthorization
	}

	if !strings.EqualFold(scheme, SchemeBearer) && !strings.EqualFold(scheme, SchemeSPPToken) {
		return "", ErrInvalidAuthorization
	}

	credential = strings.TrimSpace(credential)
	if credential == "" {
		return "", ErrInvalidAuthorization
	}

	return credential, nil
}

// SessionKeys lists the candidate session keys, cookie first, then the authorization header
func SessionKeys(cookie, authorizationHeader string) ([]string, error) {
	var keys []string

	if cookie = strings.TrimSpace(cookie); cookie != "" {
		keys = append(keys, cookie)
	}

	headerKey, err := ParseAuthorizationHeader(authorizationHeader)
	if err != nil && len(keys) == 0 {
		return nil, err
	}

	if err == nil && headerKey != cookie {
		keys = append(keys, headerKey)
	}

	return keys, nil
}
