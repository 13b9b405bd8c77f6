package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/arcadara/portal/internal/auth"
	"github.com/arcadara/portal/internal/clock"
	"github.com/arcadara/portal/internal/handler"
	"github.com/arcadara/portal/internal/middleware"
	"github.com/arcadara/portal/internal/oauth"
	"github.com/arcadara/portal/internal/router"
	"github.com/arcadara/portal/internal/store"
	"github.com/arcadara/portal/internal/utils"
)

var handlerStart = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// fakePasswords mints transparent digests so tests skip the bcrypt
// cost.
type fakePasswords struct{}

func (fakePasswords) Hash(clear string) (string, error) { return "digest:" + clear, nil }
func (fakePasswords) Verify(digest, clear string) bool  { return digest == "digest:"+clear }

var _ utils.PasswordService = fakePasswords{}

type testApp struct {
	e   *echo.Echo
	mem *store.Memory
	clk *clock.Virtual
}

func newTestApp() *testApp {
	clk := clock.NewVirtual(handlerStart)
	mem := store.NewMemory(clk)
	provider := oauth.NewProvider(mem, mem, fakePasswords{}, clk)
	resolver := auth.NewResolver(mem, mem, provider, 24*time.Hour, clk)

	e := echo.New()
	e.Use(middleware.AuthContext(resolver))
	router.RegisterRoutes(e)
	router.RegisterAuth(e, handler.NewAuthHandler(mem, mem, fakePasswords{}))
	router.RegisterUsers(e, handler.NewUserHandler(mem))
	router.RegisterLinks(e, handler.NewLinkHandler(mem))
	return &testApp{e: e, mem: mem, clk: clk}
}

func (a *testApp) do(method, path, body string, mutate func(*http.Request)) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if mutate != nil {
		mutate(req)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func itoa(id uint64) string { return strconv.FormatUint(id, 10) }

func withCookie(ck *http.Cookie) func(*http.Request) {
	return func(r *http.Request) { r.AddCookie(ck) }
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == middleware.SessionCookieName && ck.Value != "" {
			return ck
		}
	}
	t.Fatal("no session cookie in response")
	return nil
}

func TestHealth(t *testing.T) {
	a := newTestApp()
	rec := a.do(http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /healthz = %d, want 200", rec.Code)
	}
}

func TestRegisterLoginSelf(t *testing.T) {
	a := newTestApp()

	rec := a.do(http.MethodPost, "/v1/auth/register", `{"display_name":"alice","password":"hunter2"}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register = %d, body %s", rec.Code, rec.Body)
	}
	var created struct {
		User struct {
			ID          uint64 `json:"id"`
			DisplayName string `json:"display_name"`
		} `json:"user"`
		Session struct {
			ID string `json:"id"`
		} `json:"session"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("register body: %v", err)
	}
	if created.User.DisplayName != "alice" || created.Session.ID == "" {
		t.Fatalf("register body = %s", rec.Body)
	}
	ck := sessionCookie(t, rec)

	// The fresh session resolves to the user.
	rec = a.do(http.MethodGet, "/v1/auth/self", "", func(r *http.Request) { r.AddCookie(ck) })
	if rec.Code != http.StatusOK {
		t.Fatalf("self = %d", rec.Code)
	}
	var self struct {
		Type string `json:"type"`
		User struct {
			DisplayName string `json:"display_name"`
		} `json:"user"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &self); err != nil {
		t.Fatalf("self body: %v", err)
	}
	if self.Type != "User" || self.User.DisplayName != "alice" {
		t.Fatalf("self body = %s", rec.Body)
	}

	// A second login mints an independent session.
	rec = a.do(http.MethodPost, "/v1/auth/login", `{"display_name":"alice","password":"hunter2"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("login = %d, body %s", rec.Code, rec.Body)
	}
	if sessionCookie(t, rec).Value == ck.Value {
		t.Fatal("login reused the register session id")
	}
}

func TestRegisterDuplicateDisplayName(t *testing.T) {
	a := newTestApp()
	if rec := a.do(http.MethodPost, "/v1/auth/register", `{"display_name":"alice","password":"pw"}`, nil); rec.Code != http.StatusCreated {
		t.Fatalf("first register = %d", rec.Code)
	}
	if rec := a.do(http.MethodPost, "/v1/auth/register", `{"display_name":"alice","password":"pw"}`, nil); rec.Code != http.StatusConflict {
		t.Fatalf("duplicate register = %d, want 409", rec.Code)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	a := newTestApp()
	a.do(http.MethodPost, "/v1/auth/register", `{"display_name":"alice","password":"pw"}`, nil)

	rec := a.do(http.MethodPost, "/v1/auth/login", `{"display_name":"alice","password":"wrong"}`, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("login wrong password = %d, want 401", rec.Code)
	}
	rec = a.do(http.MethodPost, "/v1/auth/login", `{"display_name":"ghost","password":"pw"}`, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("login unknown user = %d, want 401", rec.Code)
	}
}

func TestLogoutEndsSession(t *testing.T) {
	a := newTestApp()
	rec := a.do(http.MethodPost, "/v1/auth/register", `{"display_name":"alice","password":"pw"}`, nil)
	ck := sessionCookie(t, rec)

	rec = a.do(http.MethodPost, "/v1/auth/logout", "", func(r *http.Request) { r.AddCookie(ck) })
	if rec.Code != http.StatusNoContent {
		t.Fatalf("logout = %d, want 204", rec.Code)
	}

	rec = a.do(http.MethodGet, "/v1/auth/self", "", func(r *http.Request) { r.AddCookie(ck) })
	var self struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &self); err != nil {
		t.Fatalf("self body: %v", err)
	}
	if self.Type != "Guest" {
		t.Fatalf("self after logout = %s, want Guest", rec.Body)
	}
}

func TestSelfAsGuest(t *testing.T) {
	a := newTestApp()
	rec := a.do(http.MethodGet, "/v1/auth/self", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("self = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"Guest"`) {
		t.Fatalf("self body = %s, want Guest", rec.Body)
	}
}

func TestSessionExpiresAcrossWindow(t *testing.T) {
	a := newTestApp()
	rec := a.do(http.MethodPost, "/v1/auth/register", `{"display_name":"alice","password":"pw"}`, nil)
	ck := sessionCookie(t, rec)

	a.clk.Advance(24*time.Hour + time.Second)
	rec = a.do(http.MethodGet, "/v1/auth/self", "", func(r *http.Request) { r.AddCookie(ck) })
	if !strings.Contains(rec.Body.String(), `"Guest"`) {
		t.Fatalf("self after window = %s, want Guest", rec.Body)
	}
}
