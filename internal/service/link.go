package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/postpilot/link-server-go/internal/audit"
	"github.com/postpilot/link-server-go/internal/config"
	"github.com/postpilot/link-server-go/internal/linkstore"
	"github.com/postpilot/link-server-go/internal/model"
	"github.com/postpilot/link-server-go/internal/platform"
	"github.com/postpilot/link-server-go/internal/repository"
	"github.com/postpilot/link-server-go/internal/util"
)

var (
	ErrTokenExchangeFailed = errors.New("token exchange failed")
	ErrProfileFetchFailed  = errors.New("profile fetch failed")
	ErrUnauthenticated     = errors.New("authentication required")
	ErrOrganizationMissing = errors.New("user has no organization")
	ErrAccountNotFound     = errors.New("social account not found")
)

// PlatformRegistry is the lookup contract the handshake needs from the
// platform configuration.
type PlatformRegistry interface {
	Lookup(name string) (*platform.Config, error)
	Names() []string
}

// LinkService drives the initiate -> callback -> complete handshake.
// Each phase runs within one inbound request; the only suspension
// points are the browser's redirect round-trip and the two outbound
// calls in the callback phase, both bounded by the HTTP client timeout.
type LinkService struct {
	registry      PlatformRegistry
	store         linkstore.Store
	accountRepo   repository.SocialAccountRepository
	userRepo      repository.UserRepository
	appBaseURL    string
	encryptionKey string
	httpClient    *http.Client
}

func NewLinkService(
	registry PlatformRegistry,
	store linkstore.Store,
	accountRepo repository.SocialAccountRepository,
	userRepo repository.UserRepository,
	appBaseURL string,
	encryptionKey string,
) *LinkService {
	return &LinkService{
		registry:      registry,
		store:         store,
		accountRepo:   accountRepo,
		userRepo:      userRepo,
		appBaseURL:    appBaseURL,
		encryptionKey: encryptionKey,
		httpClient:    &http.Client{Timeout: config.PlatformHTTPTimeout},
	}
}

// Initiate starts the handshake for a platform. Identity is deliberately
// not required: linking may begin before the user has authenticated.
// Returns the platform authorize URL the browser should be sent to.
func (s *LinkService) Initiate(ctx context.Context, sessionID, platformName string) (string, error) {
	cfg, err := s.registry.Lookup(platformName)
	if err != nil {
		return "", err
	}

	state, err := s.store.Begin(ctx, sessionID, platformName)
	if err != nil {
		return "", err
	}

	log.Debug().
		Str("platform", platformName).
		Str("state", util.MaskToken(state)).
		Msg("link initiated")

	return cfg.BuildAuthorizeURL(state), nil
}

// Callback handles the platform's redirect back to us. The state token
// is verified strictly before the token exchange is issued; a forged
// callback must never trigger an exchange with an attacker-supplied
// code. On success the token bundle and profile are parked in the
// pending-link store and the returned URL sends the browser back into
// the authenticated app. Nothing durable is written here: the caller's
// authenticated identity is not guaranteed to be resolvable yet.
func (s *LinkService) Callback(ctx context.Context, sessionID, platformName, code, state string) (string, error) {
	cfg, err := s.registry.Lookup(platformName)
	if err != nil {
		return "", err
	}

	if err := s.store.VerifyState(ctx, sessionID, platformName, state); err != nil {
		return "", err
	}

	bundle, err := s.exchangeCode(ctx, cfg, code)
	if err != nil {
		log.Warn().Err(err).Str("platform", platformName).Msg("token exchange failed")
		return "", err
	}

	profile, err := s.fetchProfile(ctx, cfg, bundle.AccessToken)
	if err != nil {
		log.Warn().Err(err).Str("platform", platformName).Msg("profile fetch failed")
		return "", err
	}

	if err := s.store.AttachCallbackResult(ctx, sessionID, platformName, state, *bundle, *profile); err != nil {
		return "", err
	}

	log.Info().
		Str("platform", platformName).
		Str("remoteId", profile.RemoteID).
		Msg("callback accepted, link pending completion")

	return s.appRedirectURL(url.Values{"linked": {platformName}}), nil
}

// CompleteResult is returned to the authenticated app after a
// successful complete.
type CompleteResult struct {
	Platform    string `json:"platform"`
	AccountID   string `json:"accountId"`
	AccountName string `json:"accountName"`
}

// Complete consumes the pending link and persists the social account.
// Idempotent with respect to the repository: once the store entry is
// taken, a second call yields ErrNotFound from the store and no write.
func (s *LinkService) Complete(ctx context.Context, sessionID string, identity *model.Identity, platformName string) (*CompleteResult, error) {
	if identity == nil || identity.UserID == "" {
		return nil, ErrUnauthenticated
	}

	link, err := s.store.TakeCompleted(ctx, sessionID, platformName)
	if err != nil {
		return nil, err
	}
	if !link.Completed() {
		// Initiated but the callback never arrived; nothing to persist.
		return nil, linkstore.ErrNotFound
	}

	user, err := s.userRepo.FindByID(ctx, identity.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUnauthenticated
	}
	if user.OrganizationID == nil || *user.OrganizationID == "" {
		return nil, ErrOrganizationMissing
	}

	accessToken, refreshToken, err := s.sealTokens(link)
	if err != nil {
		return nil, err
	}

	account, err := s.accountRepo.Upsert(ctx, model.UpsertSocialAccountParams{
		UserID:         user.ID,
		OrganizationID: *user.OrganizationID,
		Platform:       link.Platform,
		RemoteID:       link.RemoteID,
		RemoteName:     link.RemoteName,
		AccessToken:    accessToken,
		RefreshToken:   refreshToken,
		TokenExpiresAt: link.TokenExpiresAt,
		Metadata:       link.RawProfile,
	})
	if err != nil {
		return nil, err
	}

	audit.Log(ctx, audit.Event{
		Type:     audit.EventLinkCompleted,
		UserID:   user.ID,
		Platform: account.Platform,
		Details: map[string]interface{}{
			"remote_id": account.RemoteID,
		},
	})

	return &CompleteResult{
		Platform:    account.Platform,
		AccountID:   account.RemoteID,
		AccountName: account.RemoteName,
	}, nil
}

// Disconnect soft-disables a linked account: tokens cleared, connection
// flag dropped, row preserved.
func (s *LinkService) Disconnect(ctx context.Context, identity *model.Identity, platformName string) (*model.SocialAccount, error) {
	if identity == nil || identity.UserID == "" {
		return nil, ErrUnauthenticated
	}

	account, err := s.accountRepo.ClearConnection(ctx, identity.UserID, platformName)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrAccountNotFound
	}

	audit.Log(ctx, audit.Event{
		Type:     audit.EventAccountDisabled,
		UserID:   identity.UserID,
		Platform: platformName,
	})

	return account, nil
}

// ListAccounts returns the caller's social accounts, tokens excluded by
// the model's JSON tags.
func (s *LinkService) ListAccounts(ctx context.Context, identity *model.Identity) ([]*model.SocialAccount, error) {
	if identity == nil || identity.UserID == "" {
		return nil, ErrUnauthenticated
	}
	return s.accountRepo.FindByOwner(ctx, identity.UserID)
}

// Platforms returns the names of platforms available for linking.
func (s *LinkService) Platforms() []string {
	return s.registry.Names()
}

func (s *LinkService) appRedirectURL(params url.Values) string {
	return s.appBaseURL + "/settings/connections?" + params.Encode()
}

// AppErrorRedirectURL builds the UI error redirect for a failed
// callback. Only the coarse error flag crosses the boundary; internal
// detail stays in the logs.
func (s *LinkService) AppErrorRedirectURL(platformName, errorCode string) string {
	return s.appRedirectURL(url.Values{
		"platform": {platformName},
		"error":    {errorCode},
	})
}

func (s *LinkService) exchangeCode(ctx context.Context, cfg *platform.Config, code string) (*model.TokenBundle, error) {
	data := url.Values{
		"client_id":     {cfg.ClientID},
		"client_secret": {cfg.ClientSecret},
		"code":          {code},
		"grant_type":    {"authorization_code"},
		"redirect_uri":  {cfg.RedirectURI},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrTokenExchangeFailed, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenExchangeFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrTokenExchangeFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		log.Error().Int("status", resp.StatusCode).Str("platform", cfg.Name).Msg("token endpoint returned non-200")
		return nil, ErrTokenExchangeFailed
	}

	var tokenResp struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrTokenExchangeFailed, err)
	}
	if tokenResp.AccessToken == "" {
		return nil, ErrTokenExchangeFailed
	}

	bundle := &model.TokenBundle{
		AccessToken:  tokenResp.AccessToken,
		RefreshToken: tokenResp.RefreshToken,
	}
	if tokenResp.ExpiresIn > 0 {
		expiresAt := time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
		bundle.ExpiresAt = &expiresAt
	}
	return bundle, nil
}

func (s *LinkService) fetchProfile(ctx context.Context, cfg *platform.Config, accessToken string) (*model.RemoteProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.ProfileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrProfileFetchFailed, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProfileFetchFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrProfileFetchFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		log.Error().Int("status", resp.StatusCode).Str("platform", cfg.Name).Msg("profile endpoint returned non-200")
		return nil, ErrProfileFetchFailed
	}

	profile, err := cfg.ExtractProfile(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProfileFetchFailed, err)
	}
	return profile, nil
}

// sealTokens encrypts the token bundle at rest when an encryption key
// is configured; otherwise tokens are stored as received.
func (s *LinkService) sealTokens(link *model.PendingLink) (accessToken, refreshToken *string, err error) {
	seal := func(value string) (*string, error) {
		if value == "" {
			return nil, nil
		}
		if s.encryptionKey == "" {
			return &value, nil
		}
		sealed, err := util.Encrypt(s.encryptionKey, value)
		if err != nil {
			return nil, fmt.Errorf("encrypt token: %w", err)
		}
		return &sealed, nil
	}

	if accessToken, err = seal(link.AccessToken); err != nil {
		return nil, nil, err
	}
	if refreshToken, err = seal(link.RefreshToken); err != nil {
		return nil, nil, err
	}
	return accessToken, refreshToken, nil
}
