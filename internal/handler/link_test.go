package handler_test

import (
	"encoding/json"
	"net/http"
	"testing"
)

func registerUser(t *testing.T, a *testApp, name string) (uint64, *http.Cookie) {
	t.Helper()
	rec := a.do(http.MethodPost, "/v1/auth/register", `{"display_name":"`+name+`","password":"pw"}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register %s = %d, body %s", name, rec.Code, rec.Body)
	}
	var body struct {
		User struct {
			ID uint64 `json:"id"`
		} `json:"user"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("register body: %v", err)
	}
	return body.User.ID, sessionCookie(t, rec)
}

func TestCreateAndGetLink(t *testing.T) {
	a := newTestApp()
	id, ck := registerUser(t, a, "alice")

	path := "/v1/users/" + itoa(id) + "/links"
	body := `{"family":"hammerfest","server":"hammerfest.fr","remote_id":"127"}`

	rec := a.do(http.MethodPost, path, body, withCookie(ck))
	if rec.Code != http.StatusCreated {
		t.Fatalf("link = %d, body %s", rec.Code, rec.Body)
	}

	rec = a.do(http.MethodGet, path+"/hammerfest/hammerfest.fr", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get link = %d", rec.Code)
	}
	var vl struct {
		Current *struct {
			UserID uint64 `json:"user_id"`
			Remote struct {
				RemoteID string `json:"remote_id"`
			} `json:"remote"`
		} `json:"current"`
		Old []json.RawMessage `json:"old"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &vl); err != nil {
		t.Fatalf("get link body: %v", err)
	}
	if vl.Current == nil || vl.Current.UserID != id || vl.Current.Remote.RemoteID != "127" {
		t.Fatalf("get link body = %s", rec.Body)
	}
	if len(vl.Old) != 0 {
		t.Fatalf("old = %s, want empty", rec.Body)
	}
}

func TestLinkConflicts(t *testing.T) {
	a := newTestApp()
	aliceID, aliceCk := registerUser(t, a, "alice")
	bobID, bobCk := registerUser(t, a, "bob")

	body := `{"family":"hammerfest","server":"hammerfest.fr","remote_id":"127"}`
	if rec := a.do(http.MethodPost, "/v1/users/"+itoa(aliceID)+"/links", body, withCookie(aliceCk)); rec.Code != http.StatusCreated {
		t.Fatalf("alice link = %d", rec.Code)
	}
	// The remote account is taken.
	if rec := a.do(http.MethodPost, "/v1/users/"+itoa(bobID)+"/links", body, withCookie(bobCk)); rec.Code != http.StatusConflict {
		t.Fatalf("bob link taken remote = %d, want 409", rec.Code)
	}
	// Alice already has an account on that server.
	other := `{"family":"hammerfest","server":"hammerfest.fr","remote_id":"128"}`
	if rec := a.do(http.MethodPost, "/v1/users/"+itoa(aliceID)+"/links", other, withCookie(aliceCk)); rec.Code != http.StatusConflict {
		t.Fatalf("alice second link = %d, want 409", rec.Code)
	}
}

func TestLinkAuthorization(t *testing.T) {
	a := newTestApp()
	aliceID, _ := registerUser(t, a, "alice")
	_, bobCk := registerUser(t, a, "bob")

	body := `{"family":"hammerfest","server":"hammerfest.fr","remote_id":"127"}`

	// Anonymous and cross-user mutations are rejected.
	if rec := a.do(http.MethodPost, "/v1/users/"+itoa(aliceID)+"/links", body, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("guest link = %d, want 403", rec.Code)
	}
	if rec := a.do(http.MethodPost, "/v1/users/"+itoa(aliceID)+"/links", body, withCookie(bobCk)); rec.Code != http.StatusForbidden {
		t.Fatalf("bob linking alice = %d, want 403", rec.Code)
	}

	// An administrator may act on any user.
	adminID, adminCk := registerUser(t, a, "root")
	a.mem.SetAdministrator(adminID, true)
	if rec := a.do(http.MethodPost, "/v1/users/"+itoa(aliceID)+"/links", body, withCookie(adminCk)); rec.Code != http.StatusCreated {
		t.Fatalf("admin linking alice = %d, want 201, body %s", rec.Code, rec.Body)
	}

	// The acting user is recorded on the link.
	rec := a.do(http.MethodGet, "/v1/users/"+itoa(aliceID)+"/links/hammerfest/hammerfest.fr", "", nil)
	var vl struct {
		Current struct {
			Linked struct {
				ActingUserID uint64 `json:"acting_user_id"`
			} `json:"linked"`
		} `json:"current"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &vl); err != nil {
		t.Fatalf("get link body: %v", err)
	}
	if vl.Current.Linked.ActingUserID != adminID {
		t.Fatalf("acting user = %d, want admin %d", vl.Current.Linked.ActingUserID, adminID)
	}
}

func TestUnlinkFlow(t *testing.T) {
	a := newTestApp()
	id, ck := registerUser(t, a, "alice")

	path := "/v1/users/" + itoa(id) + "/links"
	body := `{"family":"dinoparc","server":"dinoparc.com","remote_id":"9"}`

	// Unlinking before linking is a 404.
	if rec := a.do(http.MethodDelete, path, body, withCookie(ck)); rec.Code != http.StatusNotFound {
		t.Fatalf("unlink before link = %d, want 404", rec.Code)
	}

	if rec := a.do(http.MethodPost, path, body, withCookie(ck)); rec.Code != http.StatusCreated {
		t.Fatalf("link = %d", rec.Code)
	}
	if rec := a.do(http.MethodDelete, path, body, withCookie(ck)); rec.Code != http.StatusOK {
		t.Fatalf("unlink = %d", rec.Code)
	}

	// The aggregate keeps the closed link as history.
	rec := a.do(http.MethodGet, path+"/dinoparc/dinoparc.com", "", nil)
	var vl struct {
		Current *json.RawMessage  `json:"current"`
		Old     []json.RawMessage `json:"old"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &vl); err != nil {
		t.Fatalf("get link body: %v", err)
	}
	if vl.Current != nil {
		t.Fatalf("current = %s, want null", *vl.Current)
	}
	if len(vl.Old) != 1 {
		t.Fatalf("old count = %d, want 1", len(vl.Old))
	}
}

func TestLinkValidation(t *testing.T) {
	a := newTestApp()
	id, ck := registerUser(t, a, "alice")
	path := "/v1/users/" + itoa(id) + "/links"

	cases := []string{
		`{"family":"twinoid","server":"hammerfest.fr","remote_id":"1"}`,
		`{"family":"motion-twin","server":"twinoid.com","remote_id":"1"}`,
		`{"family":"twinoid","server":"twinoid.com","remote_id":""}`,
	}
	for _, body := range cases {
		if rec := a.do(http.MethodPost, path, body, withCookie(ck)); rec.Code != http.StatusBadRequest {
			t.Errorf("link %s = %d, want 400", body, rec.Code)
		}
	}

	if rec := a.do(http.MethodGet, path+"/twinoid/twinoid.net", "", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("get unknown server = %d, want 400", rec.Code)
	}
}

func TestGetUserLinksAggregate(t *testing.T) {
	a := newTestApp()
	id, ck := registerUser(t, a, "alice")
	path := "/v1/users/" + itoa(id) + "/links"

	if rec := a.do(http.MethodPost, path, `{"family":"twinoid","server":"twinoid.com","remote_id":"38"}`, withCookie(ck)); rec.Code != http.StatusCreated {
		t.Fatalf("link = %d", rec.Code)
	}

	rec := a.do(http.MethodGet, path, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get links = %d", rec.Code)
	}
	var all map[string]struct {
		Current *json.RawMessage `json:"current"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &all); err != nil {
		t.Fatalf("get links body: %v", err)
	}
	if len(all) != 7 {
		t.Fatalf("server count = %d, want 7", len(all))
	}
	if all["twinoid.com"].Current == nil {
		t.Fatal("twinoid.com current = null, want link")
	}
	if all["hammerfest.fr"].Current != nil {
		t.Fatal("hammerfest.fr current != null")
	}
}
