package model

import (
	"errors"
	"fmt"
	"time"
)

// ProviderFamily identifies one group of remote legacy services sharing
// a link/account model. The set is closed: the remote games are
// archived and no new family will ever appear at runtime.
type ProviderFamily string

const (
	FamilyHammerfest ProviderFamily = "hammerfest"
	FamilyDinoparc   ProviderFamily = "dinoparc"
	FamilyTwinoid    ProviderFamily = "twinoid"
)

// Server identifies one server variant inside a provider family, e.g.
// the Spanish Hammerfest server. Twinoid has a single server.
type Server string

const (
	HammerfestFr Server = "hammerfest.fr"
	HfestNet     Server = "hfest.net"
	HammerfestEs Server = "hammerfest.es"

	DinoparcCom   Server = "dinoparc.com"
	EnDinoparcCom Server = "en.dinoparc.com"
	SpDinoparcCom Server = "sp.dinoparc.com"

	TwinoidCom Server = "twinoid.com"
)

// familyServers is the closed enumeration of valid (family, server)
// pairs. Validation goes through this table so that an out-of-set pair
// can never reach the stores.
var familyServers = map[ProviderFamily][]Server{
	FamilyHammerfest: {HammerfestFr, HfestNet, HammerfestEs},
	FamilyDinoparc:   {DinoparcCom, EnDinoparcCom, SpDinoparcCom},
	FamilyTwinoid:    {TwinoidCom},
}

// ErrInvalidRemoteRef reports a remote reference whose family, server
// or remote id does not form a valid combination.
var ErrInvalidRemoteRef = errors.New("invalid remote account reference")

// Families returns every provider family, in a stable order.
func Families() []ProviderFamily {
	return []ProviderFamily{FamilyHammerfest, FamilyDinoparc, FamilyTwinoid}
}

// ServersOf returns the server variants of a family, in a stable order.
// Unknown families yield nil.
func ServersOf(family ProviderFamily) []Server {
	return familyServers[family]
}

// RemoteRef references an account on a remote provider. It is a pure
// value: immutable once observed, comparable, usable as a map key.
//
// Fields:
//  Family   – provider family the account belongs to.
//  Server   – server variant within the family.
//  RemoteID – the account's identifier on that server.
type RemoteRef struct {
	Family   ProviderFamily `json:"family"`
	Server   Server         `json:"server"`
	RemoteID string         `json:"remote_id"`
}

// Validate checks that the reference names a real (family, server)
// pair and carries a remote id. It returns ErrInvalidRemoteRef
// (wrapped with detail) otherwise.
func (r RemoteRef) Validate() error {
	servers, ok := familyServers[r.Family]
	if !ok {
		return fmt.Errorf("%w: unknown family %q", ErrInvalidRemoteRef, r.Family)
	}
	found := false
	for _, s := range servers {
		if s == r.Server {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: server %q is not part of family %q", ErrInvalidRemoteRef, r.Server, r.Family)
	}
	if r.RemoteID == "" {
		return fmt.Errorf("%w: empty remote id", ErrInvalidRemoteRef)
	}
	return nil
}

// String renders the reference as family/server/id, e.g.
// "hammerfest/hammerfest.fr/127". Used in logs and audit events.
func (r RemoteRef) String() string {
	return fmt.Sprintf("%s/%s/%s", r.Family, r.Server, r.RemoteID)
}

// RemoteAccount carries the cached display metadata the portal keeps
// about a remote account. It is refreshed ("touched") opportunistically
// whenever the archive observes fresh remote data; it never affects
// link state.
//
// Fields:
//  Ref         – the remote account this metadata belongs to.
//  DisplayName – last observed display name on the remote service.
//  FetchedAt   – when the metadata was last observed.
type RemoteAccount struct {
	Ref         RemoteRef // remote_accounts.(family,server,remote_id)
	DisplayName string    // remote_accounts.display_name
	FetchedAt   time.Time // remote_accounts.fetched_at
}
