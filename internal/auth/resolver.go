package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arcadara/portal/internal/clock"
	"github.com/arcadara/portal/internal/oauth"
	"github.com/arcadara/portal/internal/store"
)

// Credential is the tagged input to Resolve: no credential, a session
// id, a bearer access token, or an oauth client id+secret pair.
type Credential interface {
	credential()
}

// NoCredential marks an anonymous request.
type NoCredential struct{}

// SessionCredential carries a session id (cookie or header).
type SessionCredential struct{ ID string }

// BearerCredential carries an opaque access-token key.
type BearerCredential struct{ Token string }

// ClientCredential carries an oauth client key and clear secret.
type ClientCredential struct{ Key, Secret string }

func (NoCredential) credential()      {}
func (SessionCredential) credential() {}
func (BearerCredential) credential()  {}
func (ClientCredential) credential()  {}

// Resolver turns credentials into Context variants. Classification has
// no side effects beyond the touches implied by session and token
// lookups. Store I/O failures propagate as errors; everything that is
// merely invalid or expired resolves to Guest.
type Resolver struct {
	users    store.UserStore
	sessions store.SessionStore
	provider *oauth.Provider
	window   time.Duration
	clock    clock.Clock
}

// NewResolver wires a resolver. window is the sliding session
// expiration: a session is live while now <= atime + window.
func NewResolver(users store.UserStore, sessions store.SessionStore, provider *oauth.Provider, window time.Duration, clk clock.Clock) *Resolver {
	return &Resolver{users: users, sessions: sessions, provider: provider, window: window, clock: clk}
}

// Resolve dispatches over the credential variants.
func (r *Resolver) Resolve(ctx context.Context, cred Credential) (Context, error) {
	switch c := cred.(type) {
	case NoCredential:
		return Guest{}, nil
	case SessionCredential:
		return r.ResolveSession(ctx, c.ID)
	case BearerCredential:
		return r.ResolveAccessToken(ctx, c.Token)
	case ClientCredential:
		return r.ResolveClientCredentials(ctx, c.Key, c.Secret)
	default:
		return nil, fmt.Errorf("auth: unknown credential type %T", cred)
	}
}

// ResolveSession classifies a session id. Unknown and expired sessions
// resolve to Guest; a live session yields User with the administrator
// flag read fresh from the user row.
func (r *Resolver) ResolveSession(ctx context.Context, sessionID string) (Context, error) {
	if sessionID == "" {
		return Guest{}, nil
	}
	s, err := r.sessions.GetAndTouchSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return Guest{}, nil
	}
	// Sliding expiration: the window restarts from the most recent
	// use, so the check runs against the access time before this
	// resolution's touch. The expired session is deleted; the touch
	// that just happened must not revive it on the next resolution.
	if r.clock.Now().After(s.Atime.Add(r.window)) {
		if err := r.sessions.DeleteSession(ctx, s.ID); err != nil {
			return nil, err
		}
		return Guest{}, nil
	}
	u, err := r.users.UserByID(ctx, s.UserID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return Guest{}, nil
	}
	return User{UserID: u.ID, DisplayName: u.DisplayName, IsAdministrator: u.IsAdministrator}, nil
}

// ResolveAccessToken classifies an opaque bearer key. Valid end-user
// tokens yield AccessToken{Client, User}; client-credential tokens
// (no user subject) yield Client.
func (r *Resolver) ResolveAccessToken(ctx context.Context, key string) (Context, error) {
	if key == "" {
		return Guest{}, nil
	}
	t, err := r.provider.GetAndTouchAccessToken(ctx, key)
	if errors.Is(err, store.ErrTokenNotFound) || errors.Is(err, oauth.ErrTokenExpired) {
		return Guest{}, nil
	}
	if err != nil {
		return nil, err
	}
	c, err := r.provider.ClientByID(ctx, t.ClientID)
	if errors.Is(err, store.ErrClientNotFound) {
		return Guest{}, nil
	}
	if err != nil {
		return nil, err
	}
	client := Client{ClientID: c.ID, Key: c.Key, DisplayName: c.DisplayName}
	if t.UserID == nil {
		return client, nil
	}
	u, err := r.users.UserByID(ctx, *t.UserID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return Guest{}, nil
	}
	return AccessToken{
		Client: client,
		User:   User{UserID: u.ID, DisplayName: u.DisplayName, IsAdministrator: u.IsAdministrator},
	}, nil
}

// ResolveClientCredentials classifies an oauth client key + secret
// pair. Any authentication failure resolves to Guest.
func (r *Resolver) ResolveClientCredentials(ctx context.Context, key, secret string) (Context, error) {
	if key == "" || secret == "" {
		return Guest{}, nil
	}
	c, err := r.provider.ClientByKey(ctx, key)
	if errors.Is(err, store.ErrClientNotFound) {
		return Guest{}, nil
	}
	if err != nil {
		return nil, err
	}
	verified, err := r.provider.VerifyClientSecret(ctx, c.ID, secret)
	if errors.Is(err, oauth.ErrInvalidClientSecret) || errors.Is(err, store.ErrClientNotFound) {
		return Guest{}, nil
	}
	if err != nil {
		return nil, err
	}
	return Client{ClientID: verified.ID, Key: verified.Key, DisplayName: verified.DisplayName}, nil
}

// System returns the privileged internal context, bypassing credential
// parsing. Only in-process callers (jobs, migrations) may use it.
func (r *Resolver) System() Context { return System{} }
