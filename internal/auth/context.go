// Package auth classifies request credentials into authenticated
// subjects. The Context sum type is produced per-request and never
// persisted; every other service consumes it through exhaustive type
// switches.
package auth

// Context is the closed set of authenticated-subject variants. The
// unexported method seals the set: only the types below implement it,
// so a type switch over them is exhaustive.
type Context interface {
	authContext()
}

// Guest is the absence of a valid credential. Missing, invalid and
// expired credentials all resolve to Guest rather than an error.
type Guest struct{}

// User is a canonical portal account authenticated by a live session.
// IsAdministrator is read fresh from the user row at resolution time,
// never cached on the session.
type User struct {
	UserID          uint64 `json:"user_id"`
	DisplayName     string `json:"display_name"`
	IsAdministrator bool   `json:"is_administrator"`
}

// Client is a registered oauth client authenticated by its secret (or
// holding a client-credential token with no end-user subject).
type Client struct {
	ClientID    uint64 `json:"client_id"`
	Key         string `json:"key"`
	DisplayName string `json:"display_name"`
}

// AccessToken is a bearer token carrying both the issuing client and
// the end-user subject it was minted for.
type AccessToken struct {
	Client Client `json:"client"`
	User   User   `json:"user"`
}

// System is the privileged internal caller (scheduled jobs,
// migrations). It bypasses credential parsing entirely.
type System struct{}

func (Guest) authContext()       {}
func (User) authContext()        {}
func (Client) authContext()      {}
func (AccessToken) authContext() {}
func (System) authContext()      {}
