// Package oauth holds the two mirrored OAuth roles of the portal: the
// client role, where the portal authenticates its users against the
// remote social-gaming identity provider, and the provider role, where
// the portal issues tokens to its own registered client applications.
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/arcadara/portal/internal/model"
	"github.com/arcadara/portal/internal/oauthstate"
)

// ClientConfig carries the coordinates of the remote identity
// provider the portal acts as an OAuth client of.
type ClientConfig struct {
	ClientID     string
	ClientSecret string
	AuthorizeURL string
	TokenURL     string
	UserInfoURL  string
	CallbackURL  string
	Scopes       []string
}

// Client drives the authorization-code handshake against the remote
// provider. The state parameter is minted and validated by the
// oauthstate codec; the code exchange goes through golang.org/x/oauth2.
type Client struct {
	conf        *oauth2.Config
	codec       *oauthstate.Codec
	userInfoURL string
}

// NewClient builds the client role from provider coordinates and the
// shared state codec.
func NewClient(cfg ClientConfig, codec *oauthstate.Codec) *Client {
	return &Client{
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.CallbackURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthorizeURL,
				TokenURL: cfg.TokenURL,
			},
		},
		codec:       codec,
		userInfoURL: cfg.UserInfoURL,
	}
}

// AuthorizationURL encodes the handshake intent into a signed state
// token and embeds it, with scopes and client id, into the provider's
// authorization endpoint URL.
func (c *Client) AuthorizationURL(input oauthstate.Input, ttl time.Duration) (string, error) {
	state, err := c.codec.Encode(input, ttl)
	if err != nil {
		return "", err
	}
	return c.conf.AuthCodeURL(state), nil
}

// ExchangeCode validates the state carried back by the provider
// callback, then exchanges the authorization code for a token pair.
// State validation happens first: an invalid or expired state never
// triggers network I/O, and the recovered action tells the caller
// whether this handshake was a login or a link attempt.
func (c *Client) ExchangeCode(ctx context.Context, rawState, code string) (oauthstate.State, *oauth2.Token, error) {
	state, err := c.codec.Decode(rawState)
	if err != nil {
		return oauthstate.State{}, nil, err
	}
	token, err := c.conf.Exchange(ctx, code)
	if err != nil {
		return state, nil, fmt.Errorf("token exchange: %w", err)
	}
	return state, token, nil
}

// RemoteProfile is the slice of the remote user-info response the
// portal cares about: the remote account id and its display name.
type RemoteProfile struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// FetchProfile loads the remote profile with the freshly exchanged
// token. The returned id becomes the RemoteID of the link's RemoteRef.
func (c *Client) FetchProfile(ctx context.Context, token *oauth2.Token) (RemoteProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.userInfoURL, nil)
	if err != nil {
		return RemoteProfile{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token)).Do(req)
	if err != nil {
		return RemoteProfile{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return RemoteProfile{}, fmt.Errorf("profile request failed with status %d", resp.StatusCode)
	}

	var payload struct {
		ID   json.Number `json:"id"`
		Name string      `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return RemoteProfile{}, err
	}
	id := strings.TrimSpace(payload.ID.String())
	if id == "" {
		return RemoteProfile{}, errors.New("profile response is missing the account id")
	}
	return RemoteProfile{ID: id, Name: payload.Name}, nil
}

// RemoteRef builds the link reference for a profile fetched from the
// remote provider. The provider is the single-server twinoid family.
func (p RemoteProfile) RemoteRef() model.RemoteRef {
	return model.RemoteRef{
		Family:   model.FamilyTwinoid,
		Server:   model.TwinoidCom,
		RemoteID: p.ID,
	}
}
