package model

import (
	"encoding/json"
	"time"
)

// SocialAccount is the durable record of one linked platform account.
// At most one row exists per (user, platform); reconnecting updates the
// row in place. Disconnect clears tokens and the connected flag but the
// row is kept for audit and re-sync heuristics.
type SocialAccount struct {
	ID             string          `db:"id" json:"id"`
	UserID         string          `db:"user_id" json:"userId"`
	OrganizationID string          `db:"organization_id" json:"organizationId"`
	Platform       string          `db:"platform" json:"platform"`
	RemoteID       string          `db:"remote_id" json:"remoteId"`
	RemoteName     string          `db:"remote_name" json:"remoteName"`
	AccessToken    *string         `db:"access_token" json:"-"`
	RefreshToken   *string         `db:"refresh_token" json:"-"`
	TokenExpiresAt *time.Time      `db:"token_expires_at" json:"-"`
	Connected      bool            `db:"connected" json:"connected"`
	LastSyncedAt   *time.Time      `db:"last_synced_at" json:"lastSyncedAt,omitempty"`
	Metadata       json.RawMessage `db:"metadata" json:"-"`
	CreatedAt      time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updatedAt"`
}

type UpsertSocialAccountParams struct {
	UserID         string
	OrganizationID string
	Platform       string
	RemoteID       string
	RemoteName     string
	AccessToken    *string
	RefreshToken   *string
	TokenExpiresAt *time.Time
	Metadata       json.RawMessage
}

// Supported platforms
const (
	PlatformInstagram = "instagram"
	PlatformFacebook  = "facebook"
	PlatformLinkedIn  = "linkedin"
	PlatformTwitter   = "twitter"
	PlatformYouTube   = "youtube"
)
