// Package store defines the persistence contracts the federation core
// depends on, together with the sentinel errors those contracts may
// return. The portal ships two implementations: the MySQL repositories
// under internal/repository, and the in-memory Memory store in this
// package used by tests and local development. Higher layers depend
// only on these interfaces, never on a specific engine.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/arcadara/portal/internal/model"
)

// ErrAlreadyLinked is returned when a link would violate one of the
// uniqueness invariants: the remote account already has an active link,
// or the user already has an active link for the same family/server.
// Handlers should translate this into an HTTP 409 response.
var ErrAlreadyLinked = errors.New("already linked")

// ErrNotLinked is returned by Unlink when no active link matches both
// the user and the remote account. Handlers should translate this into
// an HTTP 404 response.
var ErrNotLinked = errors.New("not linked")

// ErrDisplayNameTaken is returned when a registration or rename
// collides with an existing display name.
var ErrDisplayNameTaken = errors.New("display name already taken")

// ErrUserNotFound is returned by user mutations targeting an id that
// does not exist. Plain lookups return nil instead.
var ErrUserNotFound = errors.New("user not found")

// ErrClientKeyTaken is returned when registering an oauth client under
// a key that is already in use.
var ErrClientKeyTaken = errors.New("oauth client key already taken")

// ErrClientNotFound is returned when no oauth client matches the given
// id or key.
var ErrClientNotFound = errors.New("oauth client not found")

// ErrTokenNotFound is returned when no access token matches the given
// key.
var ErrTokenNotFound = errors.New("access token not found")

// UserStore persists canonical portal accounts and their display-name
// version chains.
type UserStore interface {
	// CreateUser inserts a new user and seeds its display-name
	// history with the initial name. Fails with ErrDisplayNameTaken
	// when the name is already current for another user.
	CreateUser(ctx context.Context, displayName, passwordHash string) (model.User, error)

	// UserByID returns the user, or nil when no such user exists.
	UserByID(ctx context.Context, id uint64) (*model.User, error)

	// UserByDisplayName returns the user currently holding the given
	// display name, or nil. Used by login.
	UserByDisplayName(ctx context.Context, displayName string) (*model.User, error)

	// UpdateDisplayName renames the user, appending a new entry to
	// the history chain. Fails with ErrDisplayNameTaken on conflict.
	UpdateDisplayName(ctx context.Context, id uint64, displayName string) (model.User, error)

	// DisplayNameHistory returns the full version chain ordered by
	// StartTime, oldest first.
	DisplayNameHistory(ctx context.Context, id uint64) ([]model.DisplayNameChange, error)
}

// LinkStore holds current and historical associations between
// canonical users and remote accounts. One logical store exists per
// provider family; the interface unifies them, with the family carried
// by the RemoteRef.
type LinkStore interface {
	// GetLink returns the versioned aggregate for (user, family,
	// server). It never fails with "not found": an un-linked user
	// yields {Current: nil, Old: []}. The RemoteID of ref is ignored.
	GetLink(ctx context.Context, userID uint64, ref model.RemoteRef) (model.VersionedLink, error)

	// GetLinkFromRemote is the reverse lookup: the active link
	// holding the remote account right now, or nil.
	GetLinkFromRemote(ctx context.Context, ref model.RemoteRef) (*model.Link, error)

	// Link creates a new active link at the store's current time.
	// Fails with ErrAlreadyLinked when either uniqueness invariant
	// would be violated. The check-and-insert is atomic: two
	// concurrent calls racing for the same remote account cannot
	// both succeed.
	Link(ctx context.Context, userID uint64, ref model.RemoteRef, actingUserID uint64) (model.Link, error)

	// Unlink closes the active link matching both sides, turning it
	// into an OldLink. Fails with ErrNotLinked when there is none.
	// History is never deleted.
	Unlink(ctx context.Context, userID uint64, ref model.RemoteRef, actingUserID uint64) (model.OldLink, error)

	// TouchRemoteAccount idempotently records or refreshes cached
	// display metadata for a remote account. Link state is never
	// affected.
	TouchRemoteAccount(ctx context.Context, account model.RemoteAccount) error

	// RemoteAccount returns the cached metadata for a remote
	// account, or nil when none was ever observed.
	RemoteAccount(ctx context.Context, ref model.RemoteRef) (*model.RemoteAccount, error)
}

// SessionStore persists sessions.
type SessionStore interface {
	// CreateSession mints a new session with an unforgeable random
	// id and ctime = atime = now.
	CreateSession(ctx context.Context, userID uint64) (model.Session, error)

	// GetAndTouchSession returns the session, or nil on an unknown
	// id (never an error for a miss). On a hit the stored atime is
	// updated to now before returning; the returned Atime is the
	// one read before the touch, which is what the sliding-window
	// check in the resolver needs.
	GetAndTouchSession(ctx context.Context, id string) (*model.Session, error)

	// DeleteSession removes the session. Deleting an unknown id is
	// not an error.
	DeleteSession(ctx context.Context, id string) error
}

// ClientStore persists the oauth clients registered against the
// portal's provider role.
type ClientStore interface {
	// CreateClient registers a client. Key collisions surface as a
	// plain error: registration is an operator action, not a
	// request path.
	CreateClient(ctx context.Context, key, displayName, secretHash string) (model.OauthClient, error)

	// ClientByID returns the client, or nil when unknown.
	ClientByID(ctx context.Context, id uint64) (*model.OauthClient, error)

	// ClientByKey returns the client, or nil when unknown.
	ClientByKey(ctx context.Context, key string) (*model.OauthClient, error)
}

// AccessTokenStore persists the opaque bearer tokens issued by the
// provider role. Expiry policy lives in the oauth package; the store
// only reads and writes rows.
type AccessTokenStore interface {
	// CreateAccessToken inserts a token row with
	// ctime = atime = now.
	CreateAccessToken(ctx context.Context, key string, clientID uint64, userID *uint64, expiresAt time.Time) (model.AccessToken, error)

	// AccessTokenByKey returns the token, or nil when unknown.
	AccessTokenByKey(ctx context.Context, key string) (*model.AccessToken, error)

	// TouchAccessToken updates the token's atime to now. Touching an
	// unknown key is not an error.
	TouchAccessToken(ctx context.Context, key string) error
}
