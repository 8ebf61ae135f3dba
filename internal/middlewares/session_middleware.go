package middlewares

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"
	"github.com/vaultbridge/vaultbridge/internal/auth"
	"github.com/vaultbridge/vaultbridge/pkg/domain"
)

const SessionLocalsKey = "session"

// SessionMiddleware rejects requests without a live appliance session and
// binds the session to the request context.
func SessionMiddleware(cache domain.SessionAuthorizationCache) fiber.Handler {
	return func(c fiber.Ctx) error {
		sessionKeys, err := auth.SessionKeys(c.Cookies(auth.SessionCookieName), c.Get(fiber.HeaderAuthorization))
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "A session key is required, log on first",
			})
		}

		var session *domain.ApplianceSession
		for _, key := range sessionKeys {
			if resolved, ok := cache.Resolve(key); ok {
				session = resolved
				break
			}
		}

		if session == nil {
			log.Debug().Str("path", c.Path()).Msg("Unknown or expired session key")

			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired session",
			})
		}

		c.Locals(SessionLocalsKey, session)
		c.SetContext(domain.NewContextWithApplianceSession(c.Context(), session))

		return c.Next()
	}
}

// LogonMiddleware exchanges an appliance token for a session and issues the session cookie
func LogonMiddleware(cache domain.SessionAuthorizationCache, safeguardManager domain.SafeguardManager) fiber.Handler {
	return func(c fiber.Ctx) error {
		token, err := auth.ParseAuthorizationHeader(c.Get(fiber.HeaderAuthorization))
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}

		session, err := safeguardManager.Logon(c.Context(), token)
		if errors.Is(err, domain.ErrNotConfigured) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "No appliance has been configured",
			})
		}
		if err != nil {
			return err
		}

		cache.Store(session.Key, session)

		c.Cookie(&fiber.Cookie{
			Name:     auth.SessionCookieName,
			Value:    session.Key,
			Path:     "/",
			HTTPOnly: true,
			Secure:   c.Scheme() == "https",
			SameSite: fiber.CookieSameSiteStrictMode,
		})

		c.Locals(SessionLocalsKey, session)
		c.SetContext(domain.NewContextWithApplianceSession(c.Context(), session))

		return c.Next()
	}
}

// RequestTimeoutMiddleware bounds the request context; zero leaves it unbounded
func RequestTimeoutMiddleware(timeout time.Duration) fiber.Handler {
	return func(c fiber.Ctx) error {
		if timeout <= 0 {
			return c.Next()
		}

		ctx, cancel := context.WithTimeout(c.Context(), timeout)
		defer cancel()

		c.SetContext(ctx)

		return c.Next()
	}
}

func SessionFromLocals(c fiber.Ctx) (*domain.ApplianceSession, bool) {
	session, ok := c.Locals(SessionLocalsKey).(*domain.ApplianceSession)

	return session, ok && session != nil
}
