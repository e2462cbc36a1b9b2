package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postpilot/link-server-go/internal/linkstore"
	"github.com/postpilot/link-server-go/internal/middleware"
	"github.com/postpilot/link-server-go/internal/model"
	"github.com/postpilot/link-server-go/internal/platform"
	"github.com/postpilot/link-server-go/internal/repository"
	"github.com/postpilot/link-server-go/internal/service"
)

type stubRegistry struct {
	configs map[string]*platform.Config
}

func (r *stubRegistry) Lookup(name string) (*platform.Config, error) {
	if cfg, ok := r.configs[name]; ok {
		return cfg, nil
	}
	return nil, fmt.Errorf("%w: %s", platform.ErrUnsupportedPlatform, name)
}

func (r *stubRegistry) Names() []string {
	names := make([]string, 0, len(r.configs))
	for name := range r.configs {
		names = append(names, name)
	}
	return names
}

type mockAccountRepo struct {
	upsertFunc          func(ctx context.Context, params model.UpsertSocialAccountParams) (*model.SocialAccount, error)
	clearConnectionFunc func(ctx context.Context, userID, platform string) (*model.SocialAccount, error)
	findByOwnerFunc     func(ctx context.Context, userID string) ([]*model.SocialAccount, error)
}

func (m *mockAccountRepo) FindByOwnerAndPlatform(ctx context.Context, userID, platform string) (*model.SocialAccount, error) {
	return nil, nil
}

func (m *mockAccountRepo) FindByOwner(ctx context.Context, userID string) ([]*model.SocialAccount, error) {
	if m.findByOwnerFunc != nil {
		return m.findByOwnerFunc(ctx, userID)
	}
	return nil, nil
}

func (m *mockAccountRepo) Upsert(ctx context.Context, params model.UpsertSocialAccountParams) (*model.SocialAccount, error) {
	if m.upsertFunc != nil {
		return m.upsertFunc(ctx, params)
	}
	return nil, nil
}

func (m *mockAccountRepo) ClearConnection(ctx context.Context, userID, platform string) (*model.SocialAccount, error) {
	if m.clearConnectionFunc != nil {
		return m.clearConnectionFunc(ctx, userID, platform)
	}
	return nil, nil
}

func (m *mockAccountRepo) WithTx(tx *sqlx.Tx) repository.SocialAccountRepository {
	return m
}

type mockUserRepo struct {
	findByIDFunc func(ctx context.Context, id string) (*model.User, error)
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFunc != nil {
		return m.findByIDFunc(ctx, id)
	}
	return nil, nil
}

type testEnv struct {
	router      chi.Router
	tokenCalls  *int
	tokenStatus *int
	accountRepo *mockAccountRepo
	userRepo    *mockUserRepo
}

// newTestEnv wires the handler the way the server does: a memory store,
// a single-platform registry pointing at a fake platform server, and the
// browser session middleware on every route. Authenticated routes get
// the identity injected directly.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	tokenCalls := 0
	tokenStatus := http.StatusOK

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls++
		w.WriteHeader(tokenStatus)
		fmt.Fprint(w, `{"access_token":"platform-access","refresh_token":"platform-refresh","expires_in":3600}`)
	})
	mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"17841400001","username":"brand_account"}`)
	})
	platformServer := httptest.NewServer(mux)
	t.Cleanup(platformServer.Close)

	registry := &stubRegistry{configs: map[string]*platform.Config{
		"instagram": {
			Name:         "instagram",
			ClientID:     "client-id",
			ClientSecret: "client-secret",
			RedirectURI:  "https://link.example.com/social-accounts/oauth/instagram/callback",
			Scope:        "user_profile",
			AuthorizeURL: platformServer.URL + "/oauth/authorize",
			TokenURL:     platformServer.URL + "/oauth/token",
			ProfileURL:   platformServer.URL + "/me",
			Extractor:    platform.ExtractorFor("instagram"),
		},
	}}

	store := linkstore.NewMemoryStore(0)
	accountRepo := &mockAccountRepo{}
	userRepo := &mockUserRepo{
		findByIDFunc: func(ctx context.Context, id string) (*model.User, error) {
			orgID := "org-1"
			return &model.User{ID: id, OrganizationID: &orgID}, nil
		},
	}

	svc := service.NewLinkService(registry, store, accountRepo, userRepo, "https://app.example.com", "")
	h := NewLinkHandler(svc)

	browserSession := middleware.NewBrowserSessionMiddleware(false)
	injectIdentity := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := &model.Identity{UserID: "user-1"}
			ctx := context.WithValue(r.Context(), middleware.IdentityContextKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}

	r := chi.NewRouter()
	r.Route("/social-accounts", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(browserSession.Handler)
			r.Get("/oauth/{platform}/initiate", h.Initiate)
			r.Get("/oauth/{platform}/callback", h.Callback)
		})
		r.Group(func(r chi.Router) {
			r.Use(browserSession.Handler)
			r.Use(injectIdentity)
			r.Post("/oauth/complete", h.Complete)
			r.Get("/", h.ListAccounts)
			r.Get("/platforms", h.ListPlatforms)
			r.Delete("/{platform}", h.Disconnect)
		})
	})

	return &testEnv{
		router:      r,
		tokenCalls:  &tokenCalls,
		tokenStatus: &tokenStatus,
		accountRepo: accountRepo,
		userRepo:    userRepo,
	}
}

func sessionCookie(value string) *http.Cookie {
	return &http.Cookie{Name: middleware.BrowserSessionCookie, Value: value}
}

func (env *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func TestInitiateHandler(t *testing.T) {
	t.Run("redirects to the platform authorize URL", func(t *testing.T) {
		env := newTestEnv(t)

		req := httptest.NewRequest("GET", "/social-accounts/oauth/instagram/initiate", nil)
		req.AddCookie(sessionCookie("session-a"))
		rec := env.do(req)

		require.Equal(t, http.StatusFound, rec.Code)
		location, err := url.Parse(rec.Header().Get("Location"))
		require.NoError(t, err)
		assert.Equal(t, "/oauth/authorize", location.Path)
		assert.NotEmpty(t, location.Query().Get("state"))
		assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	})

	t.Run("mints a session cookie when none exists", func(t *testing.T) {
		env := newTestEnv(t)

		req := httptest.NewRequest("GET", "/social-accounts/oauth/instagram/initiate", nil)
		rec := env.do(req)

		require.Equal(t, http.StatusFound, rec.Code)
		cookies := rec.Result().Cookies()
		var found bool
		for _, c := range cookies {
			if c.Name == middleware.BrowserSessionCookie {
				found = true
				assert.True(t, c.HttpOnly)
				assert.Len(t, c.Value, 64)
			}
		}
		assert.True(t, found)
	})

	t.Run("rejects an unsupported platform with JSON", func(t *testing.T) {
		env := newTestEnv(t)

		req := httptest.NewRequest("GET", "/social-accounts/oauth/myspace/initiate", nil)
		req.AddCookie(sessionCookie("session-a"))
		rec := env.do(req)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "UNSUPPORTED_PLATFORM", body["code"])
	})
}

func TestCallbackHandler(t *testing.T) {
	initiate := func(t *testing.T, env *testEnv, session string) string {
		t.Helper()
		req := httptest.NewRequest("GET", "/social-accounts/oauth/instagram/initiate", nil)
		req.AddCookie(sessionCookie(session))
		rec := env.do(req)
		require.Equal(t, http.StatusFound, rec.Code)
		location, err := url.Parse(rec.Header().Get("Location"))
		require.NoError(t, err)
		return location.Query().Get("state")
	}

	t.Run("redirects into the app on success", func(t *testing.T) {
		env := newTestEnv(t)
		state := initiate(t, env, "session-a")

		req := httptest.NewRequest("GET", "/social-accounts/oauth/instagram/callback?code=auth-code&state="+state, nil)
		req.AddCookie(sessionCookie("session-a"))
		rec := env.do(req)

		require.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "https://app.example.com/settings/connections?linked=instagram", rec.Header().Get("Location"))
		assert.Equal(t, 1, *env.tokenCalls)
	})

	t.Run("redirects with access_denied when the platform reports an error", func(t *testing.T) {
		env := newTestEnv(t)
		initiate(t, env, "session-a")

		req := httptest.NewRequest("GET", "/social-accounts/oauth/instagram/callback?error=access_denied", nil)
		req.AddCookie(sessionCookie("session-a"))
		rec := env.do(req)

		require.Equal(t, http.StatusFound, rec.Code)
		location, err := url.Parse(rec.Header().Get("Location"))
		require.NoError(t, err)
		assert.Equal(t, "access_denied", location.Query().Get("error"))
		assert.Equal(t, 0, *env.tokenCalls)
	})

	t.Run("redirects with invalid_request when code or state is missing", func(t *testing.T) {
		env := newTestEnv(t)
		initiate(t, env, "session-a")

		req := httptest.NewRequest("GET", "/social-accounts/oauth/instagram/callback?code=auth-code", nil)
		req.AddCookie(sessionCookie("session-a"))
		rec := env.do(req)

		require.Equal(t, http.StatusFound, rec.Code)
		location, err := url.Parse(rec.Header().Get("Location"))
		require.NoError(t, err)
		assert.Equal(t, "invalid_request", location.Query().Get("error"))
	})

	t.Run("redirects with invalid_state on a forged state and skips the exchange", func(t *testing.T) {
		env := newTestEnv(t)
		initiate(t, env, "session-a")

		req := httptest.NewRequest("GET", "/social-accounts/oauth/instagram/callback?code=attacker-code&state=forged", nil)
		req.AddCookie(sessionCookie("session-a"))
		rec := env.do(req)

		require.Equal(t, http.StatusFound, rec.Code)
		location, err := url.Parse(rec.Header().Get("Location"))
		require.NoError(t, err)
		assert.Equal(t, "invalid_state", location.Query().Get("error"))
		assert.Equal(t, 0, *env.tokenCalls)
	})

	t.Run("redirects with invalid_state when the state belongs to another session", func(t *testing.T) {
		env := newTestEnv(t)
		state := initiate(t, env, "session-a")

		req := httptest.NewRequest("GET", "/social-accounts/oauth/instagram/callback?code=auth-code&state="+state, nil)
		req.AddCookie(sessionCookie("session-b"))
		rec := env.do(req)

		require.Equal(t, http.StatusFound, rec.Code)
		location, err := url.Parse(rec.Header().Get("Location"))
		require.NoError(t, err)
		assert.Equal(t, "invalid_state", location.Query().Get("error"))
		assert.Equal(t, 0, *env.tokenCalls)
	})

	t.Run("redirects with token_failed when the exchange fails", func(t *testing.T) {
		env := newTestEnv(t)
		state := initiate(t, env, "session-a")
		*env.tokenStatus = http.StatusBadRequest

		req := httptest.NewRequest("GET", "/social-accounts/oauth/instagram/callback?code=bad-code&state="+state, nil)
		req.AddCookie(sessionCookie("session-a"))
		rec := env.do(req)

		require.Equal(t, http.StatusFound, rec.Code)
		location, err := url.Parse(rec.Header().Get("Location"))
		require.NoError(t, err)
		assert.Equal(t, "token_failed", location.Query().Get("error"))
	})
}

func TestCompleteHandler(t *testing.T) {
	runFlow := func(t *testing.T, env *testEnv, session string) {
		t.Helper()
		req := httptest.NewRequest("GET", "/social-accounts/oauth/instagram/initiate", nil)
		req.AddCookie(sessionCookie(session))
		rec := env.do(req)
		require.Equal(t, http.StatusFound, rec.Code)
		location, err := url.Parse(rec.Header().Get("Location"))
		require.NoError(t, err)
		state := location.Query().Get("state")

		req = httptest.NewRequest("GET", "/social-accounts/oauth/instagram/callback?code=auth-code&state="+state, nil)
		req.AddCookie(sessionCookie(session))
		rec = env.do(req)
		require.Equal(t, http.StatusFound, rec.Code)
	}

	t.Run("persists the link and returns the account", func(t *testing.T) {
		env := newTestEnv(t)
		env.accountRepo.upsertFunc = func(ctx context.Context, params model.UpsertSocialAccountParams) (*model.SocialAccount, error) {
			return &model.SocialAccount{
				Platform:   params.Platform,
				RemoteID:   params.RemoteID,
				RemoteName: params.RemoteName,
				Connected:  true,
			}, nil
		}
		runFlow(t, env, "session-a")

		req := httptest.NewRequest("POST", "/social-accounts/oauth/complete", strings.NewReader(`{"platform":"instagram"}`))
		req.AddCookie(sessionCookie("session-a"))
		rec := env.do(req)

		require.Equal(t, http.StatusOK, rec.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "instagram", body["platform"])
		assert.Equal(t, "17841400001", body["accountId"])
		assert.Equal(t, "brand_account", body["accountName"])
	})

	t.Run("a second complete reports no pending link", func(t *testing.T) {
		env := newTestEnv(t)
		env.accountRepo.upsertFunc = func(ctx context.Context, params model.UpsertSocialAccountParams) (*model.SocialAccount, error) {
			return &model.SocialAccount{Platform: params.Platform, RemoteID: params.RemoteID}, nil
		}
		runFlow(t, env, "session-a")

		req := httptest.NewRequest("POST", "/social-accounts/oauth/complete", strings.NewReader(`{"platform":"instagram"}`))
		req.AddCookie(sessionCookie("session-a"))
		rec := env.do(req)
		require.Equal(t, http.StatusOK, rec.Code)

		req = httptest.NewRequest("POST", "/social-accounts/oauth/complete", strings.NewReader(`{"platform":"instagram"}`))
		req.AddCookie(sessionCookie("session-a"))
		rec = env.do(req)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "NO_PENDING_LINK", body["code"])
	})

	t.Run("rejects a complete from another session", func(t *testing.T) {
		env := newTestEnv(t)
		runFlow(t, env, "session-a")

		req := httptest.NewRequest("POST", "/social-accounts/oauth/complete", strings.NewReader(`{"platform":"instagram"}`))
		req.AddCookie(sessionCookie("session-b"))
		rec := env.do(req)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "NO_PENDING_LINK", body["code"])
	})

	t.Run("rejects malformed JSON", func(t *testing.T) {
		env := newTestEnv(t)

		req := httptest.NewRequest("POST", "/social-accounts/oauth/complete", strings.NewReader(`{not-json`))
		req.AddCookie(sessionCookie("session-a"))
		rec := env.do(req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("requires a platform", func(t *testing.T) {
		env := newTestEnv(t)

		req := httptest.NewRequest("POST", "/social-accounts/oauth/complete", strings.NewReader(`{}`))
		req.AddCookie(sessionCookie("session-a"))
		rec := env.do(req)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "MISSING_REQUIRED", body["code"])
	})

	t.Run("reports organization missing", func(t *testing.T) {
		env := newTestEnv(t)
		env.userRepo.findByIDFunc = func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id}, nil
		}
		runFlow(t, env, "session-a")

		req := httptest.NewRequest("POST", "/social-accounts/oauth/complete", strings.NewReader(`{"platform":"instagram"}`))
		req.AddCookie(sessionCookie("session-a"))
		rec := env.do(req)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "ORGANIZATION_MISSING", body["code"])
	})
}

func TestListAccountsHandler(t *testing.T) {
	t.Run("returns accounts without token fields", func(t *testing.T) {
		env := newTestEnv(t)
		token := "secret-token"
		env.accountRepo.findByOwnerFunc = func(ctx context.Context, userID string) ([]*model.SocialAccount, error) {
			return []*model.SocialAccount{
				{Platform: "instagram", RemoteID: "r-1", RemoteName: "brand", Connected: true, AccessToken: &token},
			}, nil
		}

		req := httptest.NewRequest("GET", "/social-accounts/", nil)
		req.AddCookie(sessionCookie("session-a"))
		rec := env.do(req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotContains(t, rec.Body.String(), "secret-token")

		var body struct {
			Accounts []map[string]any `json:"accounts"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Len(t, body.Accounts, 1)
		assert.Equal(t, "instagram", body.Accounts[0]["platform"])
		assert.Equal(t, true, body.Accounts[0]["connected"])
	})
}

func TestListPlatformsHandler(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest("GET", "/social-accounts/platforms", nil)
	req.AddCookie(sessionCookie("session-a"))
	rec := env.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Platforms []string `json:"platforms"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []string{"instagram"}, body.Platforms)
}

func TestDisconnectHandler(t *testing.T) {
	t.Run("returns the disabled account", func(t *testing.T) {
		env := newTestEnv(t)
		env.accountRepo.clearConnectionFunc = func(ctx context.Context, userID, platformName string) (*model.SocialAccount, error) {
			return &model.SocialAccount{Platform: platformName, RemoteID: "r-1", Connected: false}, nil
		}

		req := httptest.NewRequest("DELETE", "/social-accounts/instagram", nil)
		req.AddCookie(sessionCookie("session-a"))
		rec := env.do(req)

		require.Equal(t, http.StatusOK, rec.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "instagram", body["platform"])
		assert.Equal(t, false, body["connected"])
	})

	t.Run("reports a missing account", func(t *testing.T) {
		env := newTestEnv(t)

		req := httptest.NewRequest("DELETE", "/social-accounts/instagram", nil)
		req.AddCookie(sessionCookie("session-a"))
		rec := env.do(req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
