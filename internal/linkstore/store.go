// Package linkstore holds in-flight handshake state between the
// initiate, callback and complete phases. Entries are keyed by
// (browser session, platform) so concurrent linking attempts for
// different platforms in one session do not clobber each other, and so
// no entry is ever reachable from another session.
package linkstore

import (
	"context"
	"errors"
	"time"

	"github.com/postpilot/link-server-go/internal/model"
)

var (
	// ErrStateMismatch covers a missing entry, a platform mismatch and a
	// state token that does not match. Callers cannot distinguish the
	// three; a forged callback should learn nothing from the error.
	ErrStateMismatch = errors.New("oauth state mismatch")
	ErrNotFound      = errors.New("no pending link")
	ErrExpired       = errors.New("pending link expired")
)

// DefaultTTL is the maximum age of a pending link. It is the only
// timeout governing the multi-request flow end to end.
const DefaultTTL = 10 * time.Minute

// Store is the session-scoped pending-link storage.
//
// VerifyState performs the state comparison without mutating the entry,
// so the handshake can enforce verify-before-exchange ordering.
// AttachCallbackResult re-runs the same comparison before storing the
// token bundle. TakeCompleted is an atomic take-and-clear: a second call
// for the same (session, platform) never sees the same data twice.
type Store interface {
	Begin(ctx context.Context, sessionID, platform string) (string, error)
	VerifyState(ctx context.Context, sessionID, platform, state string) error
	AttachCallbackResult(ctx context.Context, sessionID, platform, state string, bundle model.TokenBundle, profile model.RemoteProfile) error
	TakeCompleted(ctx context.Context, sessionID, platform string) (*model.PendingLink, error)
	// DeleteExpired removes stale entries. Implementations with native
	// expiry may report zero.
	DeleteExpired(ctx context.Context) (int64, error)
}

func attach(link *model.PendingLink, bundle model.TokenBundle, profile model.RemoteProfile) {
	link.AccessToken = bundle.AccessToken
	link.RefreshToken = bundle.RefreshToken
	link.TokenExpiresAt = bundle.ExpiresAt
	link.RemoteID = profile.RemoteID
	link.RemoteName = profile.DisplayName
	link.RawProfile = profile.Raw
}
