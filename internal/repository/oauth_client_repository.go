package repository

import (
	"context"
	"database/sql"

	"github.com/arcadara/portal/internal/clock"
	"github.com/arcadara/portal/internal/model"
	"github.com/arcadara/portal/internal/store"
)

// ClientRepo is the MySQL implementation of store.ClientStore.
type ClientRepo struct {
	db    *sql.DB
	clock clock.Clock
}

// NewClientRepo returns a ClientRepo bound to the given database.
func NewClientRepo(db *sql.DB, clk clock.Clock) *ClientRepo {
	return &ClientRepo{db: db, clock: clk}
}

var _ store.ClientStore = (*ClientRepo)(nil)

// CreateClient registers an oauth client. The secret arrives already
// hashed; this layer never sees clear secrets.
func (r *ClientRepo) CreateClient(ctx context.Context, key, displayName, secretHash string) (model.OauthClient, error) {
	now := r.clock.Now()
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO oauth_clients (client_key, display_name, secret_hash, created_at) VALUES (?,?,?,?)",
		key, displayName, secretHash, now)
	if err != nil {
		if isDuplicateKey(err) {
			return model.OauthClient{}, store.ErrClientKeyTaken
		}
		return model.OauthClient{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.OauthClient{}, err
	}
	return model.OauthClient{
		ID:          uint64(id),
		Key:         key,
		DisplayName: displayName,
		SecretHash:  secretHash,
		CreatedAt:   now,
	}, nil
}

// ClientByID fetches a client by id; nil when unknown.
func (r *ClientRepo) ClientByID(ctx context.Context, id uint64) (*model.OauthClient, error) {
	return r.scanClient(r.db.QueryRowContext(ctx,
		"SELECT id, client_key, display_name, secret_hash, created_at FROM oauth_clients WHERE id=? LIMIT 1", id))
}

// ClientByKey fetches a client by its public key; nil when unknown.
func (r *ClientRepo) ClientByKey(ctx context.Context, key string) (*model.OauthClient, error) {
	return r.scanClient(r.db.QueryRowContext(ctx,
		"SELECT id, client_key, display_name, secret_hash, created_at FROM oauth_clients WHERE client_key=? LIMIT 1", key))
}

func (r *ClientRepo) scanClient(row *sql.Row) (*model.OauthClient, error) {
	var c model.OauthClient
	err := row.Scan(&c.ID, &c.Key, &c.DisplayName, &c.SecretHash, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
