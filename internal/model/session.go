package model

import "time"

// AppSession is an authenticated application session issued by the
// surrounding product. This service only validates sessions; it never
// creates them.
type AppSession struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	TokenHash string    `db:"token_hash"`
	ExpiresAt time.Time `db:"expires_at"`
	CreatedAt time.Time `db:"created_at"`
}
