package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/arcadara/portal/internal/clock"
	"github.com/arcadara/portal/internal/model"
	"github.com/arcadara/portal/internal/utils"
)

// Memory is an in-memory implementation of every store interface. A
// single mutex serializes all operations, which is what makes the
// link check-and-insert atomic: two concurrent Link calls racing for
// the same remote account are ordered, and the loser observes
// ErrAlreadyLinked. Used by tests and local development.
type Memory struct {
	mu sync.Mutex

	clock clock.Clock

	users      map[uint64]model.User
	nameOwners map[string]uint64 // current display name -> user id
	nameHist   map[uint64][]model.DisplayNameChange
	nextUserID uint64

	active  map[model.RemoteRef]model.Link // one active link per remote ref
	old     []model.OldLink                // append-only, all families
	remotes map[model.RemoteRef]model.RemoteAccount

	sessions map[string]model.Session

	clients      map[uint64]model.OauthClient
	clientKeys   map[string]uint64
	nextClientID uint64

	tokens map[string]model.AccessToken
}

// Compile-time interface checks.
var (
	_ UserStore        = (*Memory)(nil)
	_ LinkStore        = (*Memory)(nil)
	_ SessionStore     = (*Memory)(nil)
	_ ClientStore      = (*Memory)(nil)
	_ AccessTokenStore = (*Memory)(nil)
)

// NewMemory returns an empty in-memory store driven by clk.
func NewMemory(clk clock.Clock) *Memory {
	return &Memory{
		clock:      clk,
		users:      make(map[uint64]model.User),
		nameOwners: make(map[string]uint64),
		nameHist:   make(map[uint64][]model.DisplayNameChange),
		active:     make(map[model.RemoteRef]model.Link),
		remotes:    make(map[model.RemoteRef]model.RemoteAccount),
		sessions:   make(map[string]model.Session),
		clients:    make(map[uint64]model.OauthClient),
		clientKeys: make(map[string]uint64),
		tokens:     make(map[string]model.AccessToken),
	}
}

// ----- UserStore -----

func (m *Memory) CreateUser(ctx context.Context, displayName, passwordHash string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, taken := m.nameOwners[displayName]; taken {
		return model.User{}, ErrDisplayNameTaken
	}
	now := m.clock.Now()
	m.nextUserID++
	u := model.User{
		ID:           m.nextUserID,
		DisplayName:  displayName,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.users[u.ID] = u
	m.nameOwners[displayName] = u.ID
	m.nameHist[u.ID] = []model.DisplayNameChange{{UserID: u.ID, DisplayName: displayName, StartTime: now}}
	return u, nil
}

func (m *Memory) UserByID(ctx context.Context, id uint64) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (m *Memory) UserByDisplayName(ctx context.Context, displayName string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.nameOwners[displayName]
	if !ok {
		return nil, nil
	}
	u := m.users[id]
	return &u, nil
}

func (m *Memory) UpdateDisplayName(ctx context.Context, id uint64, displayName string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return model.User{}, ErrUserNotFound
	}
	if owner, taken := m.nameOwners[displayName]; taken && owner != id {
		return model.User{}, ErrDisplayNameTaken
	}
	now := m.clock.Now()
	delete(m.nameOwners, u.DisplayName)
	u.DisplayName = displayName
	u.UpdatedAt = now
	m.users[id] = u
	m.nameOwners[displayName] = id
	m.nameHist[id] = append(m.nameHist[id], model.DisplayNameChange{UserID: id, DisplayName: displayName, StartTime: now})
	return u, nil
}

func (m *Memory) DisplayNameHistory(ctx context.Context, id uint64) ([]model.DisplayNameChange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	hist := m.nameHist[id]
	out := make([]model.DisplayNameChange, len(hist))
	copy(out, hist)
	return out, nil
}

// SetAdministrator flips the administrator flag. Not part of the
// UserStore contract; exposed for seeding and tests.
func (m *Memory) SetAdministrator(id uint64, admin bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if u, ok := m.users[id]; ok {
		u.IsAdministrator = admin
		m.users[id] = u
	}
}

// ----- LinkStore -----

func (m *Memory) GetLink(ctx context.Context, userID uint64, ref model.RemoteRef) (model.VersionedLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := model.VersionedLink{Old: []model.OldLink{}}
	for _, l := range m.active {
		if l.UserID == userID && l.Remote.Family == ref.Family && l.Remote.Server == ref.Server {
			cp := l
			out.Current = &cp
			break
		}
	}
	for _, o := range m.old {
		if o.UserID == userID && o.Remote.Family == ref.Family && o.Remote.Server == ref.Server {
			out.Old = append(out.Old, o)
		}
	}
	sort.Slice(out.Old, func(i, j int) bool { return out.Old[i].Linked.Time.Before(out.Old[j].Linked.Time) })
	return out, nil
}

func (m *Memory) GetLinkFromRemote(ctx context.Context, ref model.RemoteRef) (*model.Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.active[ref]
	if !ok {
		return nil, nil
	}
	return &l, nil
}

func (m *Memory) Link(ctx context.Context, userID uint64, ref model.RemoteRef, actingUserID uint64) (model.Link, error) {
	if err := ref.Validate(); err != nil {
		return model.Link{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, taken := m.active[ref]; taken {
		return model.Link{}, ErrAlreadyLinked
	}
	for _, l := range m.active {
		if l.UserID == userID && l.Remote.Family == ref.Family && l.Remote.Server == ref.Server {
			return model.Link{}, ErrAlreadyLinked
		}
	}
	l := model.Link{
		UserID: userID,
		Remote: ref,
		Linked: model.LinkAction{Time: m.clock.Now(), ActingUserID: actingUserID},
	}
	m.active[ref] = l
	return l, nil
}

func (m *Memory) Unlink(ctx context.Context, userID uint64, ref model.RemoteRef, actingUserID uint64) (model.OldLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.active[ref]
	if !ok || l.UserID != userID {
		return model.OldLink{}, ErrNotLinked
	}
	o := model.OldLink{
		UserID:   l.UserID,
		Remote:   l.Remote,
		Linked:   l.Linked,
		Unlinked: model.LinkAction{Time: m.clock.Now(), ActingUserID: actingUserID},
	}
	delete(m.active, ref)
	m.old = append(m.old, o)
	return o, nil
}

func (m *Memory) TouchRemoteAccount(ctx context.Context, account model.RemoteAccount) error {
	if err := account.Ref.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	account.FetchedAt = m.clock.Now()
	m.remotes[account.Ref] = account
	return nil
}

func (m *Memory) RemoteAccount(ctx context.Context, ref model.RemoteRef) (*model.RemoteAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.remotes[ref]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

// ----- SessionStore -----

func (m *Memory) CreateSession(ctx context.Context, userID uint64) (model.Session, error) {
	id, err := utils.RandomHex(48)
	if err != nil {
		return model.Session{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	s := model.Session{ID: id, UserID: userID, Ctime: now, Atime: now}
	m.sessions[id] = s
	return s, nil
}

func (m *Memory) GetAndTouchSession(ctx context.Context, id string) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	touched := s
	touched.Atime = m.clock.Now()
	m.sessions[id] = touched
	// Returned Atime is the pre-touch access time; the resolver's
	// sliding-window check needs it.
	return &s, nil
}

func (m *Memory) DeleteSession(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, id)
	return nil
}

// ----- ClientStore -----

func (m *Memory) CreateClient(ctx context.Context, key, displayName, secretHash string) (model.OauthClient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, taken := m.clientKeys[key]; taken {
		return model.OauthClient{}, ErrClientKeyTaken
	}
	m.nextClientID++
	c := model.OauthClient{
		ID:          m.nextClientID,
		Key:         key,
		DisplayName: displayName,
		SecretHash:  secretHash,
		CreatedAt:   m.clock.Now(),
	}
	m.clients[c.ID] = c
	m.clientKeys[key] = c.ID
	return c, nil
}

func (m *Memory) ClientByID(ctx context.Context, id uint64) (*model.OauthClient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.clients[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *Memory) ClientByKey(ctx context.Context, key string) (*model.OauthClient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.clientKeys[key]
	if !ok {
		return nil, nil
	}
	c := m.clients[id]
	return &c, nil
}

// ----- AccessTokenStore -----

func (m *Memory) CreateAccessToken(ctx context.Context, key string, clientID uint64, userID *uint64, expiresAt time.Time) (model.AccessToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	t := model.AccessToken{
		Key:       key,
		ClientID:  clientID,
		UserID:    userID,
		Ctime:     now,
		Atime:     now,
		ExpiresAt: expiresAt,
	}
	m.tokens[key] = t
	return t, nil
}

func (m *Memory) AccessTokenByKey(ctx context.Context, key string) (*model.AccessToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tokens[key]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (m *Memory) TouchAccessToken(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.tokens[key]; ok {
		t.Atime = m.clock.Now()
		m.tokens[key] = t
	}
	return nil
}
