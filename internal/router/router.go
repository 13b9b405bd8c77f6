// Package router defines how HTTP routes are registered for the API.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/arcadara/portal/internal/handler"
)

// RegisterRoutes registers routes that carry no credentials at all.
// Currently it exposes only a health check, used by load balancers to
// verify the service is up.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers session management under /v1/auth. All four
// endpoints run behind the auth-context middleware installed on the
// Echo instance: register and login accept guests, logout and self
// read the resolved context.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/logout", a.Logout)
	// GET /v1/auth/self reflects the resolved auth context back to the
	// caller, whatever kind of credential it presented.
	g.GET("/self", a.Self)
}

// RegisterUsers registers user profiles and renames under /v1/users.
// Profiles are public; renames check the resolved auth context inside
// the handler.
func RegisterUsers(e *echo.Echo, u *handler.UserHandler) {
	e.GET("/v1/users/:id", u.GetUser)
	e.PATCH("/v1/users/:id", u.Rename)
}

// RegisterLinks registers the versioned link endpoints under
// /v1/users/:id/links. Reads are public; mutations check the resolved
// auth context inside the handler (self, administrator or system).
func RegisterLinks(e *echo.Echo, l *handler.LinkHandler) {
	g := e.Group("/v1/users/:id/links")
	g.GET("", l.GetUserLinks)
	g.GET("/:family/:server", l.GetUserLink)
	g.POST("", l.CreateLink)
	g.DELETE("", l.DeleteLink)
}

// RegisterOauth registers both OAuth roles: the outbound handshake
// against the remote provider, and the inbound token endpoint for
// registered client applications.
func RegisterOauth(e *echo.Echo, o *handler.OauthHandler) {
	g := e.Group("/v1/oauth")
	g.GET("/twinoid/authorize", o.TwinoidAuthorize)
	g.GET("/twinoid/callback", o.TwinoidCallback)
	g.POST("/token", o.Token)
}
