package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/arcadara/portal/internal/clock"
	"github.com/arcadara/portal/internal/model"
	"github.com/arcadara/portal/internal/store"
)

// TokenRepo is the MySQL implementation of store.AccessTokenStore.
// Expiry policy (rejecting stale tokens) belongs to the oauth provider
// service; this layer only reads and writes rows.
type TokenRepo struct {
	db    *sql.DB
	clock clock.Clock
}

// NewTokenRepo returns a TokenRepo bound to the given database.
func NewTokenRepo(db *sql.DB, clk clock.Clock) *TokenRepo {
	return &TokenRepo{db: db, clock: clk}
}

var _ store.AccessTokenStore = (*TokenRepo)(nil)

// CreateAccessToken inserts a token row with ctime = atime = now.
func (r *TokenRepo) CreateAccessToken(ctx context.Context, key string, clientID uint64, userID *uint64, expiresAt time.Time) (model.AccessToken, error) {
	now := r.clock.Now()
	if _, err := r.db.ExecContext(ctx,
		"INSERT INTO access_tokens (token_key, client_id, user_id, ctime, atime, expires_at) VALUES (?,?,?,?,?,?)",
		key, clientID, userID, now, now, expiresAt); err != nil {
		return model.AccessToken{}, err
	}
	return model.AccessToken{
		Key:       key,
		ClientID:  clientID,
		UserID:    userID,
		Ctime:     now,
		Atime:     now,
		ExpiresAt: expiresAt,
	}, nil
}

// AccessTokenByKey fetches a token by key; nil when unknown.
func (r *TokenRepo) AccessTokenByKey(ctx context.Context, key string) (*model.AccessToken, error) {
	var (
		t      model.AccessToken
		userID sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx,
		"SELECT token_key, client_id, user_id, ctime, atime, expires_at FROM access_tokens WHERE token_key=? LIMIT 1",
		key).Scan(&t.Key, &t.ClientID, &userID, &t.Ctime, &t.Atime, &t.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if userID.Valid {
		uid := uint64(userID.Int64)
		t.UserID = &uid
	}
	return &t, nil
}

// TouchAccessToken advances the token's atime; unknown keys are a
// no-op.
func (r *TokenRepo) TouchAccessToken(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE access_tokens SET atime=? WHERE token_key=?", r.clock.Now(), key)
	return err
}
