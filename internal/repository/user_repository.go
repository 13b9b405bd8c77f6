package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/arcadara/portal/internal/clock"
	"github.com/arcadara/portal/internal/model"
	"github.com/arcadara/portal/internal/store"
)

// UserRepo is the MySQL implementation of store.UserStore. Display
// names are unique across current holders; the full rename history
// lives in display_name_history and is append-only.
type UserRepo struct {
	db    *sql.DB
	clock clock.Clock
}

// NewUserRepo returns a UserRepo bound to the given database.
func NewUserRepo(db *sql.DB, clk clock.Clock) *UserRepo {
	return &UserRepo{db: db, clock: clk}
}

var _ store.UserStore = (*UserRepo)(nil)

// isDuplicateKey reports whether err is a MySQL duplicate-entry error.
func isDuplicateKey(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "1062")
}

// CreateUser inserts a user and seeds its display-name history with
// the initial name, in one transaction.
func (r *UserRepo) CreateUser(ctx context.Context, displayName, passwordHash string) (model.User, error) {
	now := r.clock.Now()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.User{}, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		"INSERT INTO users (display_name, password_hash, is_administrator, created_at, updated_at) VALUES (?,?,0,?,?)",
		displayName, passwordHash, now, now)
	if err != nil {
		if isDuplicateKey(err) {
			return model.User{}, store.ErrDisplayNameTaken
		}
		return model.User{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.User{}, err
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO display_name_history (user_id, display_name, start_time) VALUES (?,?,?)",
		id, displayName, now); err != nil {
		return model.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.User{}, err
	}
	return model.User{
		ID:           uint64(id),
		DisplayName:  displayName,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// UserByID fetches a user by id. Returns nil when no row matches.
func (r *UserRepo) UserByID(ctx context.Context, id uint64) (*model.User, error) {
	return r.scanUser(r.db.QueryRowContext(ctx,
		"SELECT id,display_name,password_hash,is_administrator,created_at,updated_at FROM users WHERE id=? LIMIT 1", id))
}

// UserByDisplayName fetches the current holder of a display name.
// Returns nil when no row matches.
func (r *UserRepo) UserByDisplayName(ctx context.Context, displayName string) (*model.User, error) {
	return r.scanUser(r.db.QueryRowContext(ctx,
		"SELECT id,display_name,password_hash,is_administrator,created_at,updated_at FROM users WHERE display_name=? LIMIT 1", displayName))
}

func (r *UserRepo) scanUser(row *sql.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.DisplayName, &u.PasswordHash, &u.IsAdministrator, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UpdateDisplayName renames the user and appends to the history chain.
func (r *UserRepo) UpdateDisplayName(ctx context.Context, id uint64, displayName string) (model.User, error) {
	now := r.clock.Now()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.User{}, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		"UPDATE users SET display_name=?, updated_at=? WHERE id=?",
		displayName, now, id)
	if err != nil {
		if isDuplicateKey(err) {
			return model.User{}, store.ErrDisplayNameTaken
		}
		return model.User{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.User{}, err
	}
	if n == 0 {
		// Either the user does not exist or the name is unchanged;
		// probe to tell them apart.
		var exists uint64
		scanErr := tx.QueryRowContext(ctx, "SELECT id FROM users WHERE id=? LIMIT 1", id).Scan(&exists)
		if scanErr == sql.ErrNoRows {
			return model.User{}, store.ErrUserNotFound
		}
		if scanErr != nil {
			return model.User{}, scanErr
		}
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO display_name_history (user_id, display_name, start_time) VALUES (?,?,?)",
		id, displayName, now); err != nil {
		return model.User{}, err
	}

	var u model.User
	err = tx.QueryRowContext(ctx,
		"SELECT id,display_name,password_hash,is_administrator,created_at,updated_at FROM users WHERE id=? LIMIT 1",
		id).Scan(&u.ID, &u.DisplayName, &u.PasswordHash, &u.IsAdministrator, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return model.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.User{}, err
	}
	return u, nil
}

// DisplayNameHistory returns the rename chain, oldest first.
func (r *UserRepo) DisplayNameHistory(ctx context.Context, id uint64) ([]model.DisplayNameChange, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT user_id, display_name, start_time FROM display_name_history WHERE user_id=? ORDER BY start_time ASC", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.DisplayNameChange
	for rows.Next() {
		var c model.DisplayNameChange
		if err := rows.Scan(&c.UserID, &c.DisplayName, &c.StartTime); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
