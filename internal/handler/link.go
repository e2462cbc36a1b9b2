package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/postpilot/link-server-go/internal/audit"
	apperrors "github.com/postpilot/link-server-go/internal/errors"
	"github.com/postpilot/link-server-go/internal/httputil"
	"github.com/postpilot/link-server-go/internal/linkstore"
	"github.com/postpilot/link-server-go/internal/middleware"
	"github.com/postpilot/link-server-go/internal/platform"
	"github.com/postpilot/link-server-go/internal/service"
)

// OAuth error flags surfaced to the app UI on a failed callback.
const (
	errFlagAccessDenied   = "access_denied"
	errFlagInvalidRequest = "invalid_request"
	errFlagInvalidState   = "invalid_state"
	errFlagTokenFailed    = "token_failed"
	errFlagUnsupported    = "unsupported_platform"
)

type LinkHandler struct {
	linkService *service.LinkService
}

func NewLinkHandler(linkService *service.LinkService) *LinkHandler {
	return &LinkHandler{linkService: linkService}
}

// GET /social-accounts/oauth/{platform}/initiate
func (h *LinkHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	platformName := chi.URLParam(r, "platform")
	sessionID := middleware.GetBrowserSessionID(r.Context())

	authURL, err := h.linkService.Initiate(r.Context(), sessionID, platformName)
	if err != nil {
		if errors.Is(err, platform.ErrUnsupportedPlatform) {
			httputil.WriteError(w, apperrors.UnsupportedPlatform(platformName))
			return
		}
		log.Error().Err(err).Str("platform", platformName).Msg("failed to initiate link")
		httputil.WriteError(w, apperrors.Internal("Failed to initiate link"))
		return
	}

	audit.LogFromRequest(r, audit.Event{Type: audit.EventLinkInitiated, Platform: platformName})

	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, authURL, http.StatusFound)
}

// GET /social-accounts/oauth/{platform}/callback
//
// Browser-facing: always answers with a redirect into the app UI,
// carrying a success or error flag, never JSON.
func (h *LinkHandler) Callback(w http.ResponseWriter, r *http.Request) {
	platformName := chi.URLParam(r, "platform")
	sessionID := middleware.GetBrowserSessionID(r.Context())
	q := r.URL.Query()

	// Platform-reported error (user denied, misconfiguration): no token
	// exchange is attempted.
	if platformErr := q.Get("error"); platformErr != "" {
		log.Warn().Str("platform", platformName).Str("error", platformErr).Msg("platform reported oauth error")
		audit.LogFromRequest(r, audit.Event{Type: audit.EventLinkRejected, Platform: platformName})
		h.redirectWithError(w, r, platformName, errFlagAccessDenied)
		return
	}

	code := q.Get("code")
	state := q.Get("state")
	if code == "" || state == "" {
		h.redirectWithError(w, r, platformName, errFlagInvalidRequest)
		return
	}

	appURL, err := h.linkService.Callback(r.Context(), sessionID, platformName, code, state)
	if err != nil {
		log.Warn().Err(err).Str("platform", platformName).Msg("oauth callback failed")
		switch {
		case errors.Is(err, platform.ErrUnsupportedPlatform):
			h.redirectWithError(w, r, platformName, errFlagUnsupported)
		case errors.Is(err, linkstore.ErrStateMismatch):
			audit.LogFromRequest(r, audit.Event{Type: audit.EventStateMismatch, Platform: platformName})
			h.redirectWithError(w, r, platformName, errFlagInvalidState)
		default:
			// Token exchange and profile fetch failures are not retried:
			// the authorization code is single-use and a retry would fail
			// anyway. The user restarts at initiate.
			h.redirectWithError(w, r, platformName, errFlagTokenFailed)
		}
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	http.Redirect(w, r, appURL, http.StatusFound)
}

func (h *LinkHandler) redirectWithError(w http.ResponseWriter, r *http.Request, platformName, errorCode string) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	http.Redirect(w, r, h.linkService.AppErrorRedirectURL(platformName, errorCode), http.StatusFound)
}

type completeRequest struct {
	Platform string `json:"platform"`
}

// POST /social-accounts/oauth/complete
func (h *LinkHandler) Complete(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	sessionID := middleware.GetBrowserSessionID(r.Context())

	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}
	if req.Platform == "" {
		httputil.WriteError(w, apperrors.MissingRequired("platform"))
		return
	}

	result, err := h.linkService.Complete(r.Context(), sessionID, identity, req.Platform)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnauthenticated):
			httputil.WriteError(w, apperrors.Unauthorized("Authentication required"))
		case errors.Is(err, linkstore.ErrNotFound):
			httputil.WriteError(w, apperrors.NoPendingLink())
		case errors.Is(err, linkstore.ErrExpired):
			audit.LogFromRequest(r, audit.Event{Type: audit.EventLinkExpired, Platform: req.Platform})
			httputil.WriteError(w, apperrors.LinkExpired())
		case errors.Is(err, service.ErrOrganizationMissing):
			httputil.WriteError(w, apperrors.OrganizationMissing())
		default:
			log.Error().Err(err).Str("platform", req.Platform).Msg("failed to complete link")
			httputil.WriteError(w, apperrors.Internal("Failed to complete link"))
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// GET /social-accounts
func (h *LinkHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())

	accounts, err := h.linkService.ListAccounts(r.Context(), identity)
	if err != nil {
		if errors.Is(err, service.ErrUnauthenticated) {
			httputil.WriteError(w, apperrors.Unauthorized("Authentication required"))
			return
		}
		log.Error().Err(err).Msg("failed to list social accounts")
		httputil.WriteError(w, apperrors.Internal("Failed to list accounts"))
		return
	}

	payload := make([]map[string]any, len(accounts))
	for i, account := range accounts {
		payload[i] = formatSocialAccount(account)
	}

	writeJSON(w, http.StatusOK, map[string]any{"accounts": payload})
}

// GET /social-accounts/platforms
func (h *LinkHandler) ListPlatforms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"platforms": h.linkService.Platforms(),
	})
}

// DELETE /social-accounts/{platform}
func (h *LinkHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	platformName := chi.URLParam(r, "platform")
	if platformName == "" {
		httputil.WriteError(w, apperrors.MissingRequired("platform"))
		return
	}

	account, err := h.linkService.Disconnect(r.Context(), identity, platformName)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnauthenticated):
			httputil.WriteError(w, apperrors.Unauthorized("Authentication required"))
		case errors.Is(err, service.ErrAccountNotFound):
			httputil.WriteError(w, apperrors.NotFound("Social account"))
		default:
			log.Error().Err(err).Str("platform", platformName).Msg("failed to disconnect account")
			httputil.WriteError(w, apperrors.Internal("Failed to disconnect account"))
		}
		return
	}

	writeJSON(w, http.StatusOK, formatSocialAccount(account))
}
