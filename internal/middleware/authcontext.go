package middleware // middleware provides shared request processing for handlers

import (
	"encoding/base64"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/arcadara/portal/internal/auth"
)

// SessionCookieName is the cookie a login sets and the auth-context
// middleware reads back.
const SessionCookieName = "portal_session"

// authContextKey is where the resolved auth.Context lives on the echo
// context.
const authContextKey = "auth_context"

// credentialFrom extracts the request credential, in precedence order:
// Authorization: Bearer (access token), Authorization: Basic (oauth
// client key + secret), session cookie, nothing.
func credentialFrom(c echo.Context) auth.Credential {
	header := c.Request().Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return auth.BearerCredential{Token: strings.TrimPrefix(header, "Bearer ")}
	}
	if strings.HasPrefix(header, "Basic ") {
		raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(header, "Basic "))
		if err == nil {
			if key, secret, ok := strings.Cut(string(raw), ":"); ok {
				return auth.ClientCredential{Key: key, Secret: secret}
			}
		}
		return auth.NoCredential{}
	}
	if cookie, err := c.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		return auth.SessionCredential{ID: cookie.Value}
	}
	return auth.NoCredential{}
}

// AuthContext returns middleware that resolves the request credential
// into an auth.Context and stores it on the echo context. Invalid or
// expired credentials resolve to Guest; only store failures abort the
// request.
func AuthContext(resolver *auth.Resolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			acx, err := resolver.Resolve(c.Request().Context(), credentialFrom(c))
			if err != nil {
				return echo.NewHTTPError(500, "auth resolution failed")
			}
			c.Set(authContextKey, acx)
			return next(c)
		}
	}
}

// AuthFrom returns the resolved auth.Context for the request. Guest is
// returned when the middleware did not run.
func AuthFrom(c echo.Context) auth.Context {
	if acx, ok := c.Get(authContextKey).(auth.Context); ok {
		return acx
	}
	return auth.Guest{}
}
