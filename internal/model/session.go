package model

import "time"

// Session models a row of the `sessions` table. The id is a 96-char
// hex string minted from 48 random bytes: sessions are looked up by id
// alone, so the id must be unforgeable. No expiry column exists;
// sliding expiration is a policy applied at resolution time over
// Atime plus the configured window.
//
// Fields:
//  ID     – unforgeable secret-bearing session token.
//  UserID – the canonical user the session belongs to.
//  Ctime  – when the session was created.
//  Atime  – last access before the current one; touched on every
//           successful resolution.
type Session struct {
	ID     string    // sessions.id
	UserID uint64    // sessions.user_id
	Ctime  time.Time // sessions.ctime
	Atime  time.Time // sessions.atime
}
