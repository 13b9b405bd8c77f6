package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/arcadara/portal/internal/auth"
	"github.com/arcadara/portal/internal/middleware"
	"github.com/arcadara/portal/internal/model"
	"github.com/arcadara/portal/internal/store"
	"github.com/arcadara/portal/internal/utils"
)

// dbTimeout bounds every database call made from a handler.
const dbTimeout = 5 * time.Second

// AuthHandler bundles dependencies for registration, login and session
// endpoints.
type AuthHandler struct {
	Users     store.UserStore
	Sessions  store.SessionStore
	Passwords utils.PasswordService
}

func NewAuthHandler(users store.UserStore, sessions store.SessionStore, passwords utils.PasswordService) *AuthHandler {
	return &AuthHandler{Users: users, Sessions: sessions, Passwords: passwords}
}

// ----- DTOs -----

type registerReq struct {
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
}
type loginReq struct {
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
}

type userPart struct {
	ID              uint64 `json:"id"`
	DisplayName     string `json:"display_name"`
	IsAdministrator bool   `json:"is_administrator"`
}
type sessionPart struct {
	ID    string    `json:"id"`
	Ctime time.Time `json:"ctime"`
}
type authResp struct {
	User    userPart    `json:"user"`
	Session sessionPart `json:"session"`
}

// setSessionCookie attaches the session id to the response. The cookie
// is the primary session transport; the JSON body carries the id too
// for non-browser clients.
func setSessionCookie(c echo.Context, s model.Session) {
	c.SetCookie(&http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    s.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

// Register: create a canonical user and log it in immediately.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	if req.DisplayName == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "display_name/password required"})
	}

	digest, err := h.Passwords.Hash(req.Password)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "hash failed"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	u, err := h.Users.CreateUser(ctx, req.DisplayName, digest)
	if err != nil {
		if err == store.ErrDisplayNameTaken {
			return c.JSON(http.StatusConflict, echo.Map{"error": "display name already taken"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create user failed"})
	}
	s, err := h.Sessions.CreateSession(ctx, u.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create session failed"})
	}
	setSessionCookie(c, s)

	return c.JSON(http.StatusCreated, authResp{
		User:    userPart{ID: u.ID, DisplayName: u.DisplayName, IsAdministrator: u.IsAdministrator},
		Session: sessionPart{ID: s.ID, Ctime: s.Ctime},
	})
}

// Login: verify the password and mint a fresh session.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	if req.DisplayName == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "display_name/password required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	u, err := h.Users.UserByDisplayName(ctx, req.DisplayName)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if u == nil || !h.Passwords.Verify(u.PasswordHash, req.Password) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	s, err := h.Sessions.CreateSession(ctx, u.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create session failed"})
	}
	setSessionCookie(c, s)

	return c.JSON(http.StatusOK, authResp{
		User:    userPart{ID: u.ID, DisplayName: u.DisplayName, IsAdministrator: u.IsAdministrator},
		Session: sessionPart{ID: s.ID, Ctime: s.Ctime},
	})
}

// Logout: delete the current session, if any, and clear the cookie.
func (h *AuthHandler) Logout(c echo.Context) error {
	cookie, err := c.Cookie(middleware.SessionCookieName)
	if err == nil && cookie.Value != "" {
		ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
		defer cancel()
		if err := h.Sessions.DeleteSession(ctx, cookie.Value); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "logout failed"})
		}
	}
	clearSessionCookie(c)
	return c.NoContent(http.StatusNoContent)
}

// Self returns the resolved authenticated subject for the request.
// Guests get a tagged guest payload, not an error.
func (h *AuthHandler) Self(c echo.Context) error {
	return c.JSON(http.StatusOK, authContextJSON(middleware.AuthFrom(c)))
}

// authContextJSON renders an auth.Context with an explicit type tag.
// The switch is exhaustive over the sealed variant set.
func authContextJSON(acx auth.Context) echo.Map {
	switch v := acx.(type) {
	case auth.Guest:
		return echo.Map{"type": "Guest"}
	case auth.User:
		return echo.Map{"type": "User", "user": v}
	case auth.Client:
		return echo.Map{"type": "OauthClient", "client": v}
	case auth.AccessToken:
		return echo.Map{"type": "AccessToken", "client": v.Client, "user": v.User}
	case auth.System:
		return echo.Map{"type": "System"}
	default:
		return echo.Map{"type": "Guest"}
	}
}
