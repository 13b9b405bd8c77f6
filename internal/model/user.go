package model

import "time"

// User represents a canonical portal account as stored in the `users`
// table. A user owns at most one portal account and any number of
// linked accounts on the archived remote services. Users are created at
// registration and never hard-deleted.
//
// Fields:
//  ID              – primary key identifier of the user.
//  DisplayName     – current display name; every past value is kept in
//                    the display_name_history table.
//  PasswordHash    – bcrypt digest of the portal password.
//  IsAdministrator – whether the account holds the administrator flag.
//  CreatedAt       – timestamp of registration.
//  UpdatedAt       – timestamp of last update.
type User struct {
	ID              uint64    // users.id
	DisplayName     string    // users.display_name
	PasswordHash    string    // users.password_hash
	IsAdministrator bool      // users.is_administrator
	CreatedAt       time.Time // users.created_at
	UpdatedAt       time.Time // users.updated_at
}

// DisplayNameChange is one entry of a user's display-name version
// chain. Rows are append-only and ordered by StartTime; the newest row
// always mirrors users.display_name.
//
// Fields:
//  UserID      – owner of the name.
//  DisplayName – the name that became current at StartTime.
//  StartTime   – when this name took effect.
type DisplayNameChange struct {
	UserID      uint64    // display_name_history.user_id
	DisplayName string    // display_name_history.display_name
	StartTime   time.Time // display_name_history.start_time
}
