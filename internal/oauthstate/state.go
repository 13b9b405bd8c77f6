// Package oauthstate encodes and decodes the signed "intent" token
// carried through the OAuth redirect `state` parameter. The token is
// never persisted server-side: its authenticity and integrity rely
// entirely on an HMAC signature, so the portal stays stateless with
// respect to in-flight handshakes.
//
// Claim names are kept short (rfp, a, as, iat, exp) because the token
// rides in a redirect URL. No replay cache is kept: expiry is the only
// anti-replay control, and callers that need single-use state must
// track the rfp values they issued and reject duplicates themselves.
package oauthstate

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/arcadara/portal/internal/clock"
)

// ErrInvalidSignature is returned when the token's MAC verifies
// against none of the configured keys.
var ErrInvalidSignature = errors.New("oauth state: invalid signature")

// ErrExpired is returned when the token is past its expiration time.
var ErrExpired = errors.New("oauth state: expired")

// ErrWrongAuthorizationServer is returned when the embedded server
// identifier does not match the server processing the callback.
var ErrWrongAuthorizationServer = errors.New("oauth state: wrong authorization server")

// ActionKind discriminates what the handshake is for.
type ActionKind string

const (
	// ActionLogin authenticates an existing linked user.
	ActionLogin ActionKind = "Login"
	// ActionLink attaches a remote account to the canonical user
	// carried in the action.
	ActionLink ActionKind = "Link"
)

// Action is the tagged intent of a handshake: a plain login, or a link
// on behalf of a specific canonical user.
type Action struct {
	Kind   ActionKind `json:"t"`
	UserID uint64     `json:"uid,omitempty"` // set only for ActionLink
}

// Input is what the caller supplies when starting a handshake. The
// remaining State fields are stamped by Encode.
type Input struct {
	RequestForgeryProtection string
	Action                   Action
}

// State is the decoded intent token.
type State struct {
	RequestForgeryProtection string
	Action                   Action
	IssuedAt                 time.Time
	ExpiresAt                time.Time
	AuthorizationServer      string
}

type stateClaims struct {
	RFP                 string `json:"rfp"`
	Action              Action `json:"a"`
	AuthorizationServer string `json:"as"`
	jwt.RegisteredClaims
}

// Codec signs and verifies state tokens. Keys are an ordered rotation
// list: the first key signs, every key verifies, so older tokens stay
// valid across a rotation until they expire.
type Codec struct {
	keys   [][]byte
	server string
	clock  clock.Clock
}

// NewCodec builds a codec for the given authorization server identity.
// At least one signing key is required.
func NewCodec(server string, keys [][]byte, clk clock.Clock) (*Codec, error) {
	if server == "" {
		return nil, errors.New("oauth state: empty authorization server")
	}
	if len(keys) == 0 {
		return nil, errors.New("oauth state: at least one signing key is required")
	}
	for i, k := range keys {
		if len(k) == 0 {
			return nil, fmt.Errorf("oauth state: signing key %d is empty", i)
		}
	}
	return &Codec{keys: keys, server: server, clock: clk}, nil
}

// Encode stamps issuedAt/expiresAt, signs the full payload with the
// newest key, and serializes to a compact URL-safe token.
func (c *Codec) Encode(input Input, ttl time.Duration) (string, error) {
	if input.Action.Kind != ActionLogin && input.Action.Kind != ActionLink {
		return "", fmt.Errorf("oauth state: unknown action %q", input.Action.Kind)
	}
	now := c.clock.Now()
	claims := stateClaims{
		RFP:                 input.RequestForgeryProtection,
		Action:              input.Action,
		AuthorizationServer: c.server,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.keys[0])
}

// Decode verifies the signature against every configured key and
// validates expiry and the authorization server, in that order.
func (c *Codec) Decode(token string) (State, error) {
	var (
		claims  *stateClaims
		decoded bool
		expired bool
	)
	for _, key := range c.keys {
		cl := &stateClaims{}
		_, err := jwt.ParseWithClaims(token, cl, func(t *jwt.Token) (any, error) {
			return key, nil
		},
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithTimeFunc(c.clock.Now),
			jwt.WithExpirationRequired(),
		)
		switch {
		case err == nil:
			claims, decoded = cl, true
		case errors.Is(err, jwt.ErrTokenExpired):
			// Signature checked out; only the clock said no.
			claims, decoded, expired = cl, true, true
		default:
			continue
		}
		break
	}
	if !decoded {
		return State{}, ErrInvalidSignature
	}
	if expired {
		return State{}, ErrExpired
	}
	if claims.AuthorizationServer != c.server {
		return State{}, ErrWrongAuthorizationServer
	}

	st := State{
		RequestForgeryProtection: claims.RFP,
		Action:                   claims.Action,
		AuthorizationServer:      claims.AuthorizationServer,
	}
	if claims.IssuedAt != nil {
		st.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		st.ExpiresAt = claims.ExpiresAt.Time
	}
	return st, nil
}
