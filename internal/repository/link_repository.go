package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arcadara/portal/internal/clock"
	"github.com/arcadara/portal/internal/model"
	"github.com/arcadara/portal/internal/store"
)

// remoteAccountCacheTTL bounds how long cached remote display metadata
// is served from redis before falling back to MySQL.
const remoteAccountCacheTTL = time.Hour

// LinkRepo is the MySQL implementation of store.LinkStore. A single
// `links` table holds active and historical rows for every provider
// family; a row is active while unlinked_at IS NULL.
//
// The two link invariants (one active link per remote account, one per
// user/family/server) are enforced inside a transaction: both scopes
// are probed with SELECT ... FOR UPDATE before the insert, so two
// concurrent Link calls racing for the same remote account serialize
// on the row/gap locks and the loser observes ErrAlreadyLinked.
type LinkRepo struct {
	db    *sql.DB
	clock clock.Clock
	cache *redis.Client // nil disables remote metadata caching
}

// NewLinkRepo returns a LinkRepo bound to the given database. cache
// may be nil; remote-account metadata then always hits MySQL.
func NewLinkRepo(db *sql.DB, clk clock.Clock, cache *redis.Client) *LinkRepo {
	return &LinkRepo{db: db, clock: clk, cache: cache}
}

var _ store.LinkStore = (*LinkRepo)(nil)

const linkCols = "user_id, family, server, remote_id, linked_at, linked_by, unlinked_at, unlinked_by"

func scanLinkRow(scan func(dest ...any) error) (model.OldLink, bool, error) {
	var (
		o          model.OldLink
		unlinkedAt sql.NullTime
		unlinkedBy sql.NullInt64
	)
	err := scan(&o.UserID, &o.Remote.Family, &o.Remote.Server, &o.Remote.RemoteID,
		&o.Linked.Time, &o.Linked.ActingUserID, &unlinkedAt, &unlinkedBy)
	if err != nil {
		return model.OldLink{}, false, err
	}
	if unlinkedAt.Valid {
		o.Unlinked = model.LinkAction{Time: unlinkedAt.Time, ActingUserID: uint64(unlinkedBy.Int64)}
		return o, false, nil
	}
	return o, true, nil
}

// GetLink returns the aggregate for (user, family, server): the active
// link if any plus the full history ordered by linked_at. Never fails
// with "not found".
func (r *LinkRepo) GetLink(ctx context.Context, userID uint64, ref model.RemoteRef) (model.VersionedLink, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+linkCols+" FROM links WHERE user_id=? AND family=? AND server=? ORDER BY linked_at ASC",
		userID, ref.Family, ref.Server)
	if err != nil {
		return model.VersionedLink{}, err
	}
	defer rows.Close()

	out := model.VersionedLink{Old: []model.OldLink{}}
	for rows.Next() {
		o, active, err := scanLinkRow(rows.Scan)
		if err != nil {
			return model.VersionedLink{}, err
		}
		if active {
			l := model.Link{UserID: o.UserID, Remote: o.Remote, Linked: o.Linked}
			out.Current = &l
			continue
		}
		out.Old = append(out.Old, o)
	}
	return out, rows.Err()
}

// GetLinkFromRemote returns the active link holding the remote
// account, or nil.
func (r *LinkRepo) GetLinkFromRemote(ctx context.Context, ref model.RemoteRef) (*model.Link, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+linkCols+" FROM links WHERE family=? AND server=? AND remote_id=? AND unlinked_at IS NULL LIMIT 1",
		ref.Family, ref.Server, ref.RemoteID)
	o, _, err := scanLinkRow(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &model.Link{UserID: o.UserID, Remote: o.Remote, Linked: o.Linked}, nil
}

// Link atomically checks both uniqueness invariants and inserts a new
// active row.
func (r *LinkRepo) Link(ctx context.Context, userID uint64, ref model.RemoteRef, actingUserID uint64) (model.Link, error) {
	if err := ref.Validate(); err != nil {
		return model.Link{}, err
	}
	now := r.clock.Now()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Link{}, err
	}
	defer func() { _ = tx.Rollback() }()

	// Probe both scopes under locks. FOR UPDATE on the unique-ish
	// index ranges makes concurrent inserts for the same scope wait
	// on each other instead of both passing the check.
	var probe uint64
	err = tx.QueryRowContext(ctx,
		"SELECT id FROM links WHERE family=? AND server=? AND remote_id=? AND unlinked_at IS NULL LIMIT 1 FOR UPDATE",
		ref.Family, ref.Server, ref.RemoteID).Scan(&probe)
	if err == nil {
		return model.Link{}, store.ErrAlreadyLinked
	}
	if err != sql.ErrNoRows {
		return model.Link{}, err
	}
	err = tx.QueryRowContext(ctx,
		"SELECT id FROM links WHERE user_id=? AND family=? AND server=? AND unlinked_at IS NULL LIMIT 1 FOR UPDATE",
		userID, ref.Family, ref.Server).Scan(&probe)
	if err == nil {
		return model.Link{}, store.ErrAlreadyLinked
	}
	if err != sql.ErrNoRows {
		return model.Link{}, err
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO links (user_id, family, server, remote_id, linked_at, linked_by) VALUES (?,?,?,?,?,?)",
		userID, ref.Family, ref.Server, ref.RemoteID, now, actingUserID); err != nil {
		return model.Link{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Link{}, err
	}
	return model.Link{
		UserID: userID,
		Remote: ref,
		Linked: model.LinkAction{Time: now, ActingUserID: actingUserID},
	}, nil
}

// Unlink closes the active link matching both sides. The row is never
// deleted; it becomes part of the history.
func (r *LinkRepo) Unlink(ctx context.Context, userID uint64, ref model.RemoteRef, actingUserID uint64) (model.OldLink, error) {
	now := r.clock.Now()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.OldLink{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var (
		id       uint64
		linkedAt time.Time
		linkedBy uint64
	)
	err = tx.QueryRowContext(ctx,
		"SELECT id, linked_at, linked_by FROM links WHERE user_id=? AND family=? AND server=? AND remote_id=? AND unlinked_at IS NULL LIMIT 1 FOR UPDATE",
		userID, ref.Family, ref.Server, ref.RemoteID).Scan(&id, &linkedAt, &linkedBy)
	if err == sql.ErrNoRows {
		return model.OldLink{}, store.ErrNotLinked
	}
	if err != nil {
		return model.OldLink{}, err
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE links SET unlinked_at=?, unlinked_by=? WHERE id=?",
		now, actingUserID, id); err != nil {
		return model.OldLink{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.OldLink{}, err
	}
	return model.OldLink{
		UserID:   userID,
		Remote:   ref,
		Linked:   model.LinkAction{Time: linkedAt, ActingUserID: linkedBy},
		Unlinked: model.LinkAction{Time: now, ActingUserID: actingUserID},
	}, nil
}

func remoteAccountCacheKey(ref model.RemoteRef) string {
	return fmt.Sprintf("remote:%s:%s:%s", ref.Family, ref.Server, ref.RemoteID)
}

// TouchRemoteAccount upserts cached display metadata for a remote
// account and writes through to redis when available. Idempotent; link
// state is never touched.
func (r *LinkRepo) TouchRemoteAccount(ctx context.Context, account model.RemoteAccount) error {
	if err := account.Ref.Validate(); err != nil {
		return err
	}
	account.FetchedAt = r.clock.Now()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO remote_accounts (family, server, remote_id, display_name, fetched_at)
		 VALUES (?,?,?,?,?)
		 ON DUPLICATE KEY UPDATE display_name=VALUES(display_name), fetched_at=VALUES(fetched_at)`,
		account.Ref.Family, account.Ref.Server, account.Ref.RemoteID, account.DisplayName, account.FetchedAt)
	if err != nil {
		return err
	}
	if r.cache != nil {
		if payload, err := json.Marshal(account); err == nil {
			_ = r.cache.Set(ctx, remoteAccountCacheKey(account.Ref), payload, remoteAccountCacheTTL).Err()
		}
	}
	return nil
}

// RemoteAccount returns cached metadata, trying redis before MySQL.
// Returns nil when the account was never observed.
func (r *LinkRepo) RemoteAccount(ctx context.Context, ref model.RemoteRef) (*model.RemoteAccount, error) {
	if r.cache != nil {
		if payload, err := r.cache.Get(ctx, remoteAccountCacheKey(ref)).Bytes(); err == nil {
			var a model.RemoteAccount
			if err := json.Unmarshal(payload, &a); err == nil {
				return &a, nil
			}
		}
	}

	var a model.RemoteAccount
	err := r.db.QueryRowContext(ctx,
		"SELECT family, server, remote_id, display_name, fetched_at FROM remote_accounts WHERE family=? AND server=? AND remote_id=? LIMIT 1",
		ref.Family, ref.Server, ref.RemoteID).Scan(
		&a.Ref.Family, &a.Ref.Server, &a.Ref.RemoteID, &a.DisplayName, &a.FetchedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if r.cache != nil {
		if payload, err := json.Marshal(a); err == nil {
			_ = r.cache.Set(ctx, remoteAccountCacheKey(ref), payload, remoteAccountCacheTTL).Err()
		}
	}
	return &a, nil
}
