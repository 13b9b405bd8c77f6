package oauth

import (
	"context"
	"errors"
	"time"

	"github.com/arcadara/portal/internal/clock"
	"github.com/arcadara/portal/internal/model"
	"github.com/arcadara/portal/internal/store"
	"github.com/arcadara/portal/internal/utils"
)

// ErrInvalidClientSecret is returned when a client secret does not
// match the stored digest. Surfaced as an authentication failure.
var ErrInvalidClientSecret = errors.New("oauth: invalid client secret")

// ErrTokenExpired is returned when an access token exists but is past
// its expiration time.
var ErrTokenExpired = errors.New("oauth: access token expired")

// accessTokenKeyBytes sizes the opaque bearer keys the provider role
// issues. 32 bytes -> 64 hex chars, distinct length from session ids.
const accessTokenKeyBytes = 32

// Provider is the portal acting as an OAuth provider for its own
// registered client applications: look up clients, verify their
// secrets, and mint and validate opaque access tokens.
type Provider struct {
	clients   store.ClientStore
	tokens    store.AccessTokenStore
	passwords utils.PasswordService
	clock     clock.Clock
}

// NewProvider wires the provider role over its stores.
func NewProvider(clients store.ClientStore, tokens store.AccessTokenStore, passwords utils.PasswordService, clk clock.Clock) *Provider {
	return &Provider{clients: clients, tokens: tokens, passwords: passwords, clock: clk}
}

// ClientByID returns the registered client, or store.ErrClientNotFound.
func (p *Provider) ClientByID(ctx context.Context, id uint64) (model.OauthClient, error) {
	c, err := p.clients.ClientByID(ctx, id)
	if err != nil {
		return model.OauthClient{}, err
	}
	if c == nil {
		return model.OauthClient{}, store.ErrClientNotFound
	}
	return *c, nil
}

// ClientByKey returns the registered client, or store.ErrClientNotFound.
func (p *Provider) ClientByKey(ctx context.Context, key string) (model.OauthClient, error) {
	c, err := p.clients.ClientByKey(ctx, key)
	if err != nil {
		return model.OauthClient{}, err
	}
	if c == nil {
		return model.OauthClient{}, store.ErrClientNotFound
	}
	return *c, nil
}

// VerifyClientSecret checks a clear secret against the client's stored
// digest. The bcrypt comparison is constant-time with respect to the
// secret. Fails with store.ErrClientNotFound or ErrInvalidClientSecret.
func (p *Provider) VerifyClientSecret(ctx context.Context, id uint64, secret string) (model.OauthClient, error) {
	c, err := p.ClientByID(ctx, id)
	if err != nil {
		return model.OauthClient{}, err
	}
	if !p.passwords.Verify(c.SecretHash, secret) {
		return model.OauthClient{}, ErrInvalidClientSecret
	}
	return c, nil
}

// CreateAccessToken mints an opaque bearer token for a client, with an
// optional end-user subject. userID is nil for client-credential
// tokens.
func (p *Provider) CreateAccessToken(ctx context.Context, clientID uint64, userID *uint64, ttl time.Duration) (model.AccessToken, error) {
	key, err := utils.RandomHex(accessTokenKeyBytes)
	if err != nil {
		return model.AccessToken{}, err
	}
	return p.tokens.CreateAccessToken(ctx, key, clientID, userID, p.clock.Now().Add(ttl))
}

// GetAndTouchAccessToken validates an access token by key and advances
// its atime. Fails with store.ErrTokenNotFound when the key is unknown
// and ErrTokenExpired when the token is stale; expired tokens are not
// touched.
func (p *Provider) GetAndTouchAccessToken(ctx context.Context, key string) (model.AccessToken, error) {
	t, err := p.tokens.AccessTokenByKey(ctx, key)
	if err != nil {
		return model.AccessToken{}, err
	}
	if t == nil {
		return model.AccessToken{}, store.ErrTokenNotFound
	}
	if !p.clock.Now().Before(t.ExpiresAt) {
		return model.AccessToken{}, ErrTokenExpired
	}
	if err := p.tokens.TouchAccessToken(ctx, key); err != nil {
		return model.AccessToken{}, err
	}
	return *t, nil
}
