package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/arcadara/portal/internal/auth"
	"github.com/arcadara/portal/internal/middleware"
	"github.com/arcadara/portal/internal/model"
	"github.com/arcadara/portal/internal/oauth"
	"github.com/arcadara/portal/internal/oauthstate"
	"github.com/arcadara/portal/internal/queue"
	queue_publisher "github.com/arcadara/portal/internal/service"
	"github.com/arcadara/portal/internal/store"
	"github.com/arcadara/portal/internal/utils"
)

// rfpCookieName carries the request forgery protection value between
// the authorize redirect and the provider callback.
const rfpCookieName = "portal_oauth_rfp"

const rfpBytes = 16

// OauthHandler serves both OAuth roles: the outbound client handshake
// against the remote provider, and the inbound token endpoint for
// registered client applications.
type OauthHandler struct {
	Client   *oauth.Client
	Provider *oauth.Provider
	Links    store.LinkStore
	Users    store.UserStore
	Sessions store.SessionStore
	StateTTL time.Duration
	TokenTTL time.Duration
}

func NewOauthHandler(client *oauth.Client, provider *oauth.Provider, links store.LinkStore, users store.UserStore, sessions store.SessionStore, stateTTL, tokenTTL time.Duration) *OauthHandler {
	return &OauthHandler{
		Client:   client,
		Provider: provider,
		Links:    links,
		Users:    users,
		Sessions: sessions,
		StateTTL: stateTTL,
		TokenTTL: tokenTTL,
	}
}

// TwinoidAuthorize starts an authorization-code handshake against the
// remote provider. ?action=login starts a login handshake; ?action=link
// attaches the remote account to the authenticated user and therefore
// requires an active session.
func (h *OauthHandler) TwinoidAuthorize(c echo.Context) error {
	action := oauthstate.Action{Kind: oauthstate.ActionLogin}
	switch c.QueryParam("action") {
	case "", "login":
	case "link":
		acx, ok := middleware.AuthFrom(c).(auth.User)
		if !ok {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "linking requires an active session"})
		}
		action = oauthstate.Action{Kind: oauthstate.ActionLink, UserID: acx.UserID}
	default:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown action"})
	}

	rfp, err := utils.RandomHex(rfpBytes)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not start handshake"})
	}

	location, err := h.Client.AuthorizationURL(oauthstate.Input{
		RequestForgeryProtection: rfp,
		Action:                   action,
	}, h.StateTTL)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not start handshake"})
	}

	c.SetCookie(&http.Cookie{
		Name:     rfpCookieName,
		Value:    rfp,
		Path:     "/v1/oauth",
		MaxAge:   int(h.StateTTL / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return c.Redirect(http.StatusFound, location)
}

// TwinoidCallback completes the handshake: it validates the signed
// state, exchanges the code, fetches the remote profile, and then
// either opens a session (login) or records a link.
func (h *OauthHandler) TwinoidCallback(c echo.Context) error {
	if msg := c.QueryParam("error"); msg != "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "provider refused the handshake: " + msg})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 15*time.Second)
	defer cancel()

	state, token, err := h.Client.ExchangeCode(ctx, c.QueryParam("state"), c.QueryParam("code"))
	if err != nil {
		switch {
		case errors.Is(err, oauthstate.ErrExpired):
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "handshake expired, start over"})
		case errors.Is(err, oauthstate.ErrInvalidSignature), errors.Is(err, oauthstate.ErrWrongAuthorizationServer):
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid state"})
		default:
			return c.JSON(http.StatusBadGateway, echo.Map{"error": "code exchange failed"})
		}
	}

	cookie, err := c.Cookie(rfpCookieName)
	if err != nil || cookie.Value == "" || cookie.Value != state.RequestForgeryProtection {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "request forgery protection mismatch"})
	}
	c.SetCookie(&http.Cookie{Name: rfpCookieName, Value: "", Path: "/v1/oauth", MaxAge: -1, HttpOnly: true})

	profile, err := h.Client.FetchProfile(ctx, token)
	if err != nil {
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "profile fetch failed"})
	}
	ref := profile.RemoteRef()

	// Record what the provider told us about the account, even when
	// the action below fails: the metadata is useful on its own.
	_ = h.Links.TouchRemoteAccount(ctx, model.RemoteAccount{Ref: ref, DisplayName: profile.Name})

	switch state.Action.Kind {
	case oauthstate.ActionLogin:
		return h.completeLogin(ctx, c, ref)
	case oauthstate.ActionLink:
		return h.completeLink(ctx, c, state.Action.UserID, ref)
	default:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown action"})
	}
}

func (h *OauthHandler) completeLogin(ctx context.Context, c echo.Context, ref model.RemoteRef) error {
	link, err := h.Links.GetLinkFromRemote(ctx, ref)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if link == nil {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "this remote account is not linked to any user"})
	}
	user, err := h.Users.UserByID(ctx, link.UserID)
	if err != nil || user == nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}

	session, err := h.Sessions.CreateSession(ctx, user.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not create session"})
	}
	setSessionCookie(c, session)
	return c.JSON(http.StatusOK, authResp{
		User:    userPart{ID: user.ID, DisplayName: user.DisplayName, IsAdministrator: user.IsAdministrator},
		Session: sessionPart{ID: session.ID, Ctime: session.Ctime},
	})
}

func (h *OauthHandler) completeLink(ctx context.Context, c echo.Context, userID uint64, ref model.RemoteRef) error {
	link, err := h.Links.Link(ctx, userID, ref, userID)
	if err != nil {
		if errors.Is(err, store.ErrAlreadyLinked) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "already linked"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "link failed"})
	}
	_ = queue_publisher.PublishLinkEvent(ctx, queue.NewLinkEvent(queue.EventLinked, userID, ref, link.Linked))
	return c.JSON(http.StatusCreated, link)
}

type tokenResp struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Token is the provider-role token endpoint. Only the
// client_credentials grant is supported; clients authenticate with
// HTTP Basic using their client key and secret.
func (h *OauthHandler) Token(c echo.Context) error {
	if c.FormValue("grant_type") != "client_credentials" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unsupported_grant_type"})
	}
	key, secret, ok := c.Request().BasicAuth()
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid_client"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	client, err := h.Provider.ClientByKey(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrClientNotFound) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid_client"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "server_error"})
	}
	if _, err := h.Provider.VerifyClientSecret(ctx, client.ID, secret); err != nil {
		if errors.Is(err, oauth.ErrInvalidClientSecret) || errors.Is(err, store.ErrClientNotFound) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid_client"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "server_error"})
	}

	token, err := h.Provider.CreateAccessToken(ctx, client.ID, nil, h.TokenTTL)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "server_error"})
	}
	return c.JSON(http.StatusOK, tokenResp{
		AccessToken: token.Key,
		TokenType:   "Bearer",
		ExpiresIn:   int64(h.TokenTTL / time.Second),
	})
}
