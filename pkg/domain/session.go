package domain

import (
	"context"
	"time"

	"github.com/vaultbridge/vaultbridge/pkg/clients/safeguard"
)

type ApplianceSessionContextKey struct{}

// ApplianceSession binds a session key to a live appliance connection
type ApplianceSession struct {
	Key         string
	Credentials ApplianceCredentials
	UserID      int
	UserName    string
	Client      safeguard.ClientInterface
	CreatedAt   time.Time
}

func (s *ApplianceSession) Close() error {
	if s == nil || s.Client == nil {
		return nil
	}

	return s.Client.Close()
}

func NewContextWithApplianceSession(ctx context.Context, session *ApplianceSession) context.Context {
	return context.WithValue(ctx, ApplianceSessionContextKey{}, session)
}

func GetApplianceSession(ctx context.Context) (*ApplianceSession, bool) {
	session, ok := ctx.Value(ApplianceSessionContextKey{}).(*ApplianceSession)
	if !ok || session == nil {
		return nil, false
	}

	return session, true
}
