package model

import "time"

// OauthClient is a third-party application registered against the
// portal's own OAuth provider role. Only a bcrypt digest of the client
// secret is stored.
//
// Fields:
//  ID          – primary key identifier.
//  Key         – public client key (e.g. "eternalfest@clients").
//  DisplayName – human-readable client name.
//  SecretHash  – bcrypt digest of the client secret.
//  CreatedAt   – timestamp of registration.
type OauthClient struct {
	ID          uint64    // oauth_clients.id
	Key         string    // oauth_clients.client_key
	DisplayName string    // oauth_clients.display_name
	SecretHash  string    // oauth_clients.secret_hash
	CreatedAt   time.Time // oauth_clients.created_at
}

// AccessToken models a row of the `access_tokens` table: an opaque
// bearer key issued by the portal's provider role. The key namespace is
// distinct from session ids. UserID is nil for client-credential
// tokens, which carry no end-user subject.
//
// Fields:
//  Key       – opaque bearer string handed to the client.
//  ClientID  – the oauth client the token was issued to.
//  UserID    – end-user subject, nil for client-credential tokens.
//  Ctime     – when the token was created.
//  Atime     – last use; touched on every successful resolution.
//  ExpiresAt – absolute expiry, after which the token is rejected.
type AccessToken struct {
	Key       string     // access_tokens.token_key
	ClientID  uint64     // access_tokens.client_id
	UserID    *uint64    // access_tokens.user_id (nullable)
	Ctime     time.Time  // access_tokens.ctime
	Atime     time.Time  // access_tokens.atime
	ExpiresAt time.Time  // access_tokens.expires_at
}
