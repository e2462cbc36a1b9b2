package model

import "time"

// User is the narrow slice of the product's user record this service
// reads. It is never written here; the surrounding application owns it.
type User struct {
	ID             string    `db:"id" json:"id"`
	Email          string    `db:"email" json:"email"`
	OrganizationID *string   `db:"organization_id" json:"organizationId,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
}

// Identity is the authenticated caller attached to a request by the
// auth middleware.
type Identity struct {
	UserID         string
	OrganizationID string
}
