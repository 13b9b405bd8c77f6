package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arcadara/portal/internal/clock"
	"github.com/arcadara/portal/internal/model"
)

var memStart = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestMemory() (*Memory, *clock.Virtual) {
	clk := clock.NewVirtual(memStart)
	return NewMemory(clk), clk
}

func hfRef(id string) model.RemoteRef {
	return model.RemoteRef{Family: model.FamilyHammerfest, Server: model.HammerfestFr, RemoteID: id}
}

func TestCreateUserUniqueDisplayName(t *testing.T) {
	m, _ := newTestMemory()
	ctx := context.Background()

	u, err := m.CreateUser(ctx, "alice", "hash")
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	if u.ID == 0 {
		t.Fatal("CreateUser() returned zero id")
	}

	if _, err := m.CreateUser(ctx, "alice", "hash2"); !errors.Is(err, ErrDisplayNameTaken) {
		t.Fatalf("CreateUser(duplicate) error = %v, want ErrDisplayNameTaken", err)
	}
}

func TestDisplayNameHistoryAppendOnly(t *testing.T) {
	m, clk := newTestMemory()
	ctx := context.Background()

	u, err := m.CreateUser(ctx, "alice", "hash")
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	clk.Advance(time.Hour)
	if _, err := m.UpdateDisplayName(ctx, u.ID, "alicia"); err != nil {
		t.Fatalf("UpdateDisplayName() error = %v", err)
	}
	clk.Advance(time.Hour)
	if _, err := m.UpdateDisplayName(ctx, u.ID, "alice2"); err != nil {
		t.Fatalf("UpdateDisplayName() error = %v", err)
	}

	hist, err := m.DisplayNameHistory(ctx, u.ID)
	if err != nil {
		t.Fatalf("DisplayNameHistory() error = %v", err)
	}
	if len(hist) != 3 {
		t.Fatalf("len(history) = %d, want 3", len(hist))
	}
	for i := 1; i < len(hist); i++ {
		if hist[i].StartTime.Before(hist[i-1].StartTime) {
			t.Errorf("history out of order at %d: %v before %v", i, hist[i].StartTime, hist[i-1].StartTime)
		}
	}
	if hist[0].DisplayName != "alice" || hist[2].DisplayName != "alice2" {
		t.Errorf("history names = [%s %s %s]", hist[0].DisplayName, hist[1].DisplayName, hist[2].DisplayName)
	}

	// The freed name is available again.
	if _, err := m.CreateUser(ctx, "alice", "hash"); err != nil {
		t.Errorf("CreateUser(freed name) error = %v", err)
	}
}

func TestLinkRemoteUniqueness(t *testing.T) {
	m, _ := newTestMemory()
	ctx := context.Background()

	if _, err := m.Link(ctx, 1, hfRef("100"), 1); err != nil {
		t.Fatalf("Link() error = %v", err)
	}
	// Same remote account, different user.
	if _, err := m.Link(ctx, 2, hfRef("100"), 2); !errors.Is(err, ErrAlreadyLinked) {
		t.Fatalf("Link(taken remote) error = %v, want ErrAlreadyLinked", err)
	}
}

func TestLinkUserServerUniqueness(t *testing.T) {
	m, _ := newTestMemory()
	ctx := context.Background()

	if _, err := m.Link(ctx, 1, hfRef("100"), 1); err != nil {
		t.Fatalf("Link() error = %v", err)
	}
	// Same user, same server, different remote account.
	if _, err := m.Link(ctx, 1, hfRef("200"), 1); !errors.Is(err, ErrAlreadyLinked) {
		t.Fatalf("Link(second account on server) error = %v, want ErrAlreadyLinked", err)
	}
	// The same user may link on another server of the family.
	other := model.RemoteRef{Family: model.FamilyHammerfest, Server: model.HfestNet, RemoteID: "100"}
	if _, err := m.Link(ctx, 1, other, 1); err != nil {
		t.Fatalf("Link(other server) error = %v", err)
	}
}

func TestLinkRejectsInvalidRef(t *testing.T) {
	m, _ := newTestMemory()
	bad := model.RemoteRef{Family: model.FamilyTwinoid, Server: model.HammerfestFr, RemoteID: "1"}
	if _, err := m.Link(context.Background(), 1, bad, 1); !errors.Is(err, model.ErrInvalidRemoteRef) {
		t.Fatalf("Link(invalid ref) error = %v, want ErrInvalidRemoteRef", err)
	}
}

func TestUnlinkMovesLinkToHistory(t *testing.T) {
	m, clk := newTestMemory()
	ctx := context.Background()
	ref := hfRef("100")

	if _, err := m.Link(ctx, 1, ref, 1); err != nil {
		t.Fatalf("Link() error = %v", err)
	}
	clk.Advance(time.Hour)
	old, err := m.Unlink(ctx, 1, ref, 7)
	if err != nil {
		t.Fatalf("Unlink() error = %v", err)
	}
	if !old.Linked.Time.Equal(memStart) {
		t.Errorf("old.Linked.Time = %v, want %v", old.Linked.Time, memStart)
	}
	if !old.Unlinked.Time.Equal(memStart.Add(time.Hour)) {
		t.Errorf("old.Unlinked.Time = %v, want %v", old.Unlinked.Time, memStart.Add(time.Hour))
	}
	if old.Unlinked.ActingUserID != 7 {
		t.Errorf("old.Unlinked.ActingUserID = %d, want 7", old.Unlinked.ActingUserID)
	}

	vl, err := m.GetLink(ctx, 1, ref)
	if err != nil {
		t.Fatalf("GetLink() error = %v", err)
	}
	if vl.Current != nil {
		t.Errorf("Current = %+v, want nil after unlink", vl.Current)
	}
	if len(vl.Old) != 1 {
		t.Fatalf("len(Old) = %d, want 1", len(vl.Old))
	}

	// The pair is free again; relinking builds up history.
	if _, err := m.Link(ctx, 1, ref, 1); err != nil {
		t.Fatalf("Link(relink) error = %v", err)
	}
	vl, _ = m.GetLink(ctx, 1, ref)
	if vl.Current == nil {
		t.Fatal("Current = nil after relink")
	}
	if len(vl.Old) != 1 {
		t.Errorf("len(Old) = %d, want 1 after relink", len(vl.Old))
	}
}

func TestUnlinkNeverLinked(t *testing.T) {
	m, _ := newTestMemory()
	ctx := context.Background()

	if _, err := m.Unlink(ctx, 1, hfRef("100"), 1); !errors.Is(err, ErrNotLinked) {
		t.Fatalf("Unlink(never linked) error = %v, want ErrNotLinked", err)
	}

	// A link held by another user is not yours to unlink.
	if _, err := m.Link(ctx, 2, hfRef("100"), 2); err != nil {
		t.Fatalf("Link() error = %v", err)
	}
	if _, err := m.Unlink(ctx, 1, hfRef("100"), 1); !errors.Is(err, ErrNotLinked) {
		t.Fatalf("Unlink(other user's link) error = %v, want ErrNotLinked", err)
	}
}

func TestGetLinkFromRemote(t *testing.T) {
	m, _ := newTestMemory()
	ctx := context.Background()

	l, err := m.GetLinkFromRemote(ctx, hfRef("100"))
	if err != nil {
		t.Fatalf("GetLinkFromRemote() error = %v", err)
	}
	if l != nil {
		t.Fatalf("GetLinkFromRemote(unlinked) = %+v, want nil", l)
	}

	if _, err := m.Link(ctx, 3, hfRef("100"), 3); err != nil {
		t.Fatalf("Link() error = %v", err)
	}
	l, err = m.GetLinkFromRemote(ctx, hfRef("100"))
	if err != nil {
		t.Fatalf("GetLinkFromRemote() error = %v", err)
	}
	if l == nil || l.UserID != 3 {
		t.Fatalf("GetLinkFromRemote() = %+v, want link of user 3", l)
	}
}

func TestTouchRemoteAccount(t *testing.T) {
	m, clk := newTestMemory()
	ctx := context.Background()
	ref := hfRef("100")

	if err := m.TouchRemoteAccount(ctx, model.RemoteAccount{Ref: ref, DisplayName: "pioupiou"}); err != nil {
		t.Fatalf("TouchRemoteAccount() error = %v", err)
	}
	clk.Advance(time.Hour)
	if err := m.TouchRemoteAccount(ctx, model.RemoteAccount{Ref: ref, DisplayName: "renamed"}); err != nil {
		t.Fatalf("TouchRemoteAccount() error = %v", err)
	}

	a, err := m.RemoteAccount(ctx, ref)
	if err != nil {
		t.Fatalf("RemoteAccount() error = %v", err)
	}
	if a == nil {
		t.Fatal("RemoteAccount() = nil")
	}
	if a.DisplayName != "renamed" {
		t.Errorf("DisplayName = %q, want %q", a.DisplayName, "renamed")
	}
	if !a.FetchedAt.Equal(memStart.Add(time.Hour)) {
		t.Errorf("FetchedAt = %v, want %v", a.FetchedAt, memStart.Add(time.Hour))
	}
}

func TestSessionTouchReturnsPreTouchAtime(t *testing.T) {
	m, clk := newTestMemory()
	ctx := context.Background()

	s, err := m.CreateSession(ctx, 1)
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if len(s.ID) != 96 {
		t.Errorf("len(session id) = %d, want 96", len(s.ID))
	}

	clk.Advance(time.Hour)
	got, err := m.GetAndTouchSession(ctx, s.ID)
	if err != nil {
		t.Fatalf("GetAndTouchSession() error = %v", err)
	}
	if got == nil {
		t.Fatal("GetAndTouchSession() = nil")
	}
	if !got.Atime.Equal(memStart) {
		t.Errorf("first touch Atime = %v, want pre-touch %v", got.Atime, memStart)
	}

	clk.Advance(time.Hour)
	got, err = m.GetAndTouchSession(ctx, s.ID)
	if err != nil {
		t.Fatalf("GetAndTouchSession() error = %v", err)
	}
	if !got.Atime.Equal(memStart.Add(time.Hour)) {
		t.Errorf("second touch Atime = %v, want %v", got.Atime, memStart.Add(time.Hour))
	}

	if err := m.DeleteSession(ctx, s.ID); err != nil {
		t.Fatalf("DeleteSession() error = %v", err)
	}
	got, err = m.GetAndTouchSession(ctx, s.ID)
	if err != nil {
		t.Fatalf("GetAndTouchSession() error = %v", err)
	}
	if got != nil {
		t.Fatalf("GetAndTouchSession(deleted) = %+v, want nil", got)
	}
}

func TestClientKeyUniqueness(t *testing.T) {
	m, _ := newTestMemory()
	ctx := context.Background()

	c, err := m.CreateClient(ctx, "eternalfest", "Eternalfest", "hash")
	if err != nil {
		t.Fatalf("CreateClient() error = %v", err)
	}
	if _, err := m.CreateClient(ctx, "eternalfest", "Other", "hash"); !errors.Is(err, ErrClientKeyTaken) {
		t.Fatalf("CreateClient(duplicate key) error = %v, want ErrClientKeyTaken", err)
	}

	got, err := m.ClientByKey(ctx, "eternalfest")
	if err != nil {
		t.Fatalf("ClientByKey() error = %v", err)
	}
	if got == nil || got.ID != c.ID {
		t.Fatalf("ClientByKey() = %+v, want client %d", got, c.ID)
	}
}

func TestAccessTokenLifecycle(t *testing.T) {
	m, clk := newTestMemory()
	ctx := context.Background()

	userID := uint64(9)
	tok, err := m.CreateAccessToken(ctx, "abcd", 1, &userID, memStart.Add(time.Hour))
	if err != nil {
		t.Fatalf("CreateAccessToken() error = %v", err)
	}
	if tok.UserID == nil || *tok.UserID != 9 {
		t.Fatalf("UserID = %v, want 9", tok.UserID)
	}

	clk.Advance(10 * time.Minute)
	if err := m.TouchAccessToken(ctx, "abcd"); err != nil {
		t.Fatalf("TouchAccessToken() error = %v", err)
	}
	got, err := m.AccessTokenByKey(ctx, "abcd")
	if err != nil {
		t.Fatalf("AccessTokenByKey() error = %v", err)
	}
	if got == nil {
		t.Fatal("AccessTokenByKey() = nil")
	}
	if !got.Atime.Equal(memStart.Add(10 * time.Minute)) {
		t.Errorf("Atime = %v, want %v", got.Atime, memStart.Add(10*time.Minute))
	}
	if !got.Ctime.Equal(memStart) {
		t.Errorf("Ctime = %v, want %v", got.Ctime, memStart)
	}
}
