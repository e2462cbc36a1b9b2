package model

import (
	"encoding/json"
	"time"
)

// PendingLink is the ephemeral per-session record of one in-flight
// handshake. It is created at initiate, populated at callback and
// consumed at complete. It never outlives its TTL and is never visible
// to another browser session.
type PendingLink struct {
	Platform  string    `json:"platform"`
	State     string    `json:"state"`
	CreatedAt time.Time `json:"createdAt"`

	// Set during the callback phase, empty before it.
	AccessToken    string          `json:"accessToken,omitempty"`
	RefreshToken   string          `json:"refreshToken,omitempty"`
	TokenExpiresAt *time.Time      `json:"tokenExpiresAt,omitempty"`
	RemoteID       string          `json:"remoteId,omitempty"`
	RemoteName     string          `json:"remoteName,omitempty"`
	RawProfile     json.RawMessage `json:"rawProfile,omitempty"`
}

// Completed reports whether the callback phase has populated the link.
func (p *PendingLink) Completed() bool {
	return p.AccessToken != "" && p.RemoteID != ""
}

// TokenBundle is the result of exchanging an authorization code.
type TokenBundle struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
}

// RemoteProfile is the uniform profile shape extracted from a
// platform-specific profile response.
type RemoteProfile struct {
	RemoteID    string
	DisplayName string
	Raw         json.RawMessage
}
