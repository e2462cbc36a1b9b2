package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/postpilot/link-server-go/internal/audit"
	"github.com/postpilot/link-server-go/internal/model"
	"github.com/postpilot/link-server-go/internal/repository"
	"github.com/postpilot/link-server-go/internal/util"
)

const (
	// BrowserSessionCookie carries the anonymous browser session id that
	// keys the pending-link store. It exists independently of
	// authentication: linking may start before login.
	BrowserSessionCookie = "link_session"
	// AppSessionCookie carries the authenticated application session
	// issued by the surrounding product.
	AppSessionCookie = "app_session"

	BrowserSessionMaxAge = 24 * time.Hour
)

type contextKey string

const (
	BrowserSessionContextKey contextKey = "browserSession"
	IdentityContextKey       contextKey = "identity"
)

// GetBrowserSessionID returns the browser session id for the request,
// or empty when the session middleware did not run.
func GetBrowserSessionID(ctx context.Context) string {
	if id, ok := ctx.Value(BrowserSessionContextKey).(string); ok {
		return id
	}
	return ""
}

// GetIdentity returns the authenticated identity, or nil for anonymous
// requests.
func GetIdentity(ctx context.Context) *model.Identity {
	if identity, ok := ctx.Value(IdentityContextKey).(*model.Identity); ok {
		return identity
	}
	return nil
}

// BrowserSessionMiddleware guarantees every request carries a browser
// session id, minting a fresh cookie when none exists. The raw cookie
// value is the only key material for pending links; no cross-session
// access is structurally possible.
type BrowserSessionMiddleware struct {
	isProduction bool
}

func NewBrowserSessionMiddleware(isProduction bool) *BrowserSessionMiddleware {
	return &BrowserSessionMiddleware{isProduction: isProduction}
}

func (m *BrowserSessionMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID := ""
		if cookie, err := r.Cookie(BrowserSessionCookie); err == nil && cookie.Value != "" {
			sessionID = cookie.Value
		}

		if sessionID == "" {
			token, err := util.GenerateToken()
			if err != nil {
				log.Error().Err(err).Msg("browser session middleware: token generation failed")
				writeJSON(w, http.StatusInternalServerError, map[string]string{
					"error": "Failed to establish session",
				})
				return
			}
			sessionID = token
			http.SetCookie(w, &http.Cookie{
				Name:     BrowserSessionCookie,
				Value:    sessionID,
				Path:     "/",
				MaxAge:   int(BrowserSessionMaxAge.Seconds()),
				HttpOnly: true,
				Secure:   m.isProduction,
				SameSite: http.SameSiteLaxMode,
			})
		}

		ctx := context.WithValue(r.Context(), BrowserSessionContextKey, sessionID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AuthMiddleware resolves the authenticated identity from the app
// session cookie and rejects requests without one. Sessions are issued
// elsewhere; this service only validates them.
type AuthMiddleware struct {
	sessionRepo   repository.AppSessionRepository
	userRepo      repository.UserRepository
	sessionSecret string
}

func NewAuthMiddleware(
	sessionRepo repository.AppSessionRepository,
	userRepo repository.UserRepository,
	sessionSecret string,
) *AuthMiddleware {
	return &AuthMiddleware{
		sessionRepo:   sessionRepo,
		userRepo:      userRepo,
		sessionSecret: sessionSecret,
	}
}

func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(AppSessionCookie)
		if err != nil || cookie.Value == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error": "Unauthorized",
			})
			return
		}

		tokenHash := util.HmacSHA256(m.sessionSecret, cookie.Value)
		session, err := m.sessionRepo.FindByTokenHash(r.Context(), tokenHash)
		if err != nil {
			log.Error().Err(err).Msg("auth middleware: database error")
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "Session validation failed",
			})
			return
		}

		if session == nil {
			audit.LogFromRequest(r, audit.Event{Type: audit.EventAuthFailure})
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error": "Unauthorized",
			})
			return
		}

		identity := &model.Identity{UserID: session.UserID}
		ctx := context.WithValue(r.Context(), IdentityContextKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
