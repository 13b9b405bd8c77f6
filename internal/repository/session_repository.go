package repository

import (
	"context"
	"database/sql"

	"github.com/arcadara/portal/internal/clock"
	"github.com/arcadara/portal/internal/model"
	"github.com/arcadara/portal/internal/store"
	"github.com/arcadara/portal/internal/utils"
)

// sessionIDBytes sizes the random session id. 48 bytes -> 96 hex
// chars; the id is the only credential, so it must be unguessable.
const sessionIDBytes = 48

// SessionRepo is the MySQL implementation of store.SessionStore. No
// expiry column exists: sliding expiration is enforced by the auth
// resolver over the atime returned here.
type SessionRepo struct {
	db    *sql.DB
	clock clock.Clock
}

// NewSessionRepo returns a SessionRepo bound to the given database.
func NewSessionRepo(db *sql.DB, clk clock.Clock) *SessionRepo {
	return &SessionRepo{db: db, clock: clk}
}

var _ store.SessionStore = (*SessionRepo)(nil)

// CreateSession mints a session with a fresh random id.
func (r *SessionRepo) CreateSession(ctx context.Context, userID uint64) (model.Session, error) {
	id, err := utils.RandomHex(sessionIDBytes)
	if err != nil {
		return model.Session{}, err
	}
	now := r.clock.Now()
	if _, err := r.db.ExecContext(ctx,
		"INSERT INTO sessions (id, user_id, ctime, atime) VALUES (?,?,?,?)",
		id, userID, now, now); err != nil {
		return model.Session{}, err
	}
	return model.Session{ID: id, UserID: userID, Ctime: now, Atime: now}, nil
}

// GetAndTouchSession reads the session and advances its stored atime
// to now. Unknown ids return (nil, nil), never an error. The returned
// Atime is the pre-touch access time, which is what the resolver's
// sliding-window check compares against.
func (r *SessionRepo) GetAndTouchSession(ctx context.Context, id string) (*model.Session, error) {
	var s model.Session
	err := r.db.QueryRowContext(ctx,
		"SELECT id, user_id, ctime, atime FROM sessions WHERE id=? LIMIT 1",
		id).Scan(&s.ID, &s.UserID, &s.Ctime, &s.Atime)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if _, err := r.db.ExecContext(ctx,
		"UPDATE sessions SET atime=? WHERE id=?", r.clock.Now(), id); err != nil {
		return nil, err
	}
	return &s, nil
}

// DeleteSession removes the session row; unknown ids are a no-op.
func (r *SessionRepo) DeleteSession(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM sessions WHERE id=?", id)
	return err
}
