// Package queue contains the link audit event type and the background
// consumer that listens to the link.audit queue and writes structured
// logs to logs/link.log.
package queue

import (
	"time"

	"github.com/arcadara/portal/internal/model"
)

// LinkAuditQueueName is the durable queue link/unlink events flow
// through.
const LinkAuditQueueName = "link.audit"

// Event kinds.
const (
	EventLinked   = "linked"
	EventUnlinked = "unlinked"
)

// LinkEvent describes one completed link or unlink mutation. Events
// are best-effort audit trail: publish failures never fail the
// mutation that produced them.
type LinkEvent struct {
	Kind         string    `json:"kind"` // "linked" | "unlinked"
	OccurredAt   time.Time `json:"occurred_at"`
	UserID       uint64    `json:"user_id"`
	ActingUserID uint64    `json:"acting_user_id"`
	Family       string    `json:"family"`
	Server       string    `json:"server"`
	RemoteID     string    `json:"remote_id"`
}

// NewLinkEvent builds a LinkEvent from a link action.
func NewLinkEvent(kind string, userID uint64, ref model.RemoteRef, action model.LinkAction) LinkEvent {
	return LinkEvent{
		Kind:         kind,
		OccurredAt:   action.Time,
		UserID:       userID,
		ActingUserID: action.ActingUserID,
		Family:       string(ref.Family),
		Server:       string(ref.Server),
		RemoteID:     ref.RemoteID,
	}
}
