package model

import "time"

// LinkAction records who performed a link or unlink and when. It is
// always embedded in a Link or OldLink, never stored on its own.
type LinkAction struct {
	Time         time.Time `json:"time"`           // links.linked_at / links.unlinked_at
	ActingUserID uint64    `json:"acting_user_id"` // links.linked_by / links.unlinked_by
}

// Link is a currently active association between a canonical user and
// a remote account. At most one active Link exists per remote account,
// and at most one per (user, family, server).
//
// Fields:
//  UserID – the canonical user holding the link.
//  Remote – the linked remote account.
//  Linked – who created the link, and when.
type Link struct {
	UserID uint64     `json:"user_id"` // links.user_id
	Remote RemoteRef  `json:"remote"`  // links.(family,server,remote_id)
	Linked LinkAction `json:"linked"`  // links.linked_at / links.linked_by
}

// OldLink is a closed, immutable past association. Unlinking never
// deletes: it turns the active Link into an OldLink with the Unlinked
// action populated.
type OldLink struct {
	UserID   uint64     `json:"user_id"`
	Remote   RemoteRef  `json:"remote"`
	Linked   LinkAction `json:"linked"`
	Unlinked LinkAction `json:"unlinked"`
}

// VersionedLink is the aggregate callers see for one
// (user, family, server) direction: the active link if any, plus the
// full unlink history ordered by Linked.Time. An un-linked user has
// Current == nil and an empty Old slice; the aggregate itself always
// exists.
type VersionedLink struct {
	Current *Link     `json:"current"`
	Old     []OldLink `json:"old"`
}
