package platform

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/postpilot/link-server-go/internal/config"
	"github.com/postpilot/link-server-go/internal/model"
)

var ErrUnsupportedPlatform = errors.New("unsupported platform")

// Config is the static OAuth configuration for one platform. Loaded once
// at process start; a platform missing from the registry rejects the
// handshake before any network call or session mutation.
type Config struct {
	Name         string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scope        string
	AuthorizeURL string
	TokenURL     string
	ProfileURL   string

	Extractor ProfileExtractor
}

// ExtractProfile maps the platform's raw profile response to the uniform
// (remoteID, displayName) pair. This is the only platform-conditional
// branch in the handshake.
func (c *Config) ExtractProfile(raw []byte) (*model.RemoteProfile, error) {
	return c.Extractor.Extract(raw)
}

// BuildAuthorizeURL assembles the redirect target for the initiate phase.
func (c *Config) BuildAuthorizeURL(state string) string {
	params := url.Values{
		"client_id":     {c.ClientID},
		"redirect_uri":  {c.RedirectURI},
		"scope":         {c.Scope},
		"response_type": {"code"},
		"state":         {state},
	}
	return c.AuthorizeURL + "?" + params.Encode()
}

// Registry is a read-only lookup table of configured platforms. Safe for
// concurrent use; it is never mutated after New.
type Registry struct {
	platforms map[string]*Config
}

type endpoints struct {
	authorizeURL string
	tokenURL     string
	profileURL   string
	scope        string
	extractor    ProfileExtractor
}

var platformEndpoints = map[string]endpoints{
	model.PlatformInstagram: {
		authorizeURL: "https://api.instagram.com/oauth/authorize",
		tokenURL:     "https://api.instagram.com/oauth/access_token",
		profileURL:   "https://graph.instagram.com/me?fields=id,username",
		scope:        "user_profile,user_media",
		extractor:    instagramExtractor{},
	},
	model.PlatformFacebook: {
		authorizeURL: "https://www.facebook.com/v19.0/dialog/oauth",
		tokenURL:     "https://graph.facebook.com/v19.0/oauth/access_token",
		profileURL:   "https://graph.facebook.com/me?fields=id,name",
		scope:        "public_profile,pages_show_list,pages_manage_posts",
		extractor:    facebookExtractor{},
	},
	model.PlatformLinkedIn: {
		authorizeURL: "https://www.linkedin.com/oauth/v2/authorization",
		tokenURL:     "https://www.linkedin.com/oauth/v2/accessToken",
		profileURL:   "https://api.linkedin.com/v2/userinfo",
		scope:        "openid profile w_member_social",
		extractor:    linkedInExtractor{},
	},
	model.PlatformTwitter: {
		authorizeURL: "https://twitter.com/i/oauth2/authorize",
		tokenURL:     "https://api.twitter.com/2/oauth2/token",
		profileURL:   "https://api.twitter.com/2/users/me?user.fields=name,username",
		scope:        "users.read tweet.read tweet.write offline.access",
		extractor:    twitterExtractor{},
	},
	model.PlatformYouTube: {
		authorizeURL: "https://accounts.google.com/o/oauth2/v2/auth",
		tokenURL:     "https://oauth2.googleapis.com/token",
		profileURL:   "https://www.googleapis.com/youtube/v3/channels?part=snippet&mine=true",
		scope:        "https://www.googleapis.com/auth/youtube.readonly",
		extractor:    youtubeExtractor{},
	},
}

// NewRegistry builds the registry from environment config. Platforms
// without both a client id and secret are left unregistered and reject
// handshake requests with ErrUnsupportedPlatform.
func NewRegistry(cfg *config.Config) *Registry {
	credentials := map[string][2]string{
		model.PlatformInstagram: {cfg.InstagramClientID, cfg.InstagramClientSecret},
		model.PlatformFacebook:  {cfg.FacebookClientID, cfg.FacebookClientSecret},
		model.PlatformLinkedIn:  {cfg.LinkedInClientID, cfg.LinkedInClientSecret},
		model.PlatformTwitter:   {cfg.TwitterClientID, cfg.TwitterClientSecret},
		model.PlatformYouTube:   {cfg.YouTubeClientID, cfg.YouTubeClientSecret},
	}

	r := &Registry{platforms: make(map[string]*Config)}
	for name, creds := range credentials {
		clientID, clientSecret := creds[0], creds[1]
		if clientID == "" || clientSecret == "" {
			continue
		}
		ep := platformEndpoints[name]
		r.platforms[name] = &Config{
			Name:         name,
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURI:  fmt.Sprintf("%s/social-accounts/oauth/%s/callback", cfg.OAuthRedirectBase, name),
			Scope:        ep.scope,
			AuthorizeURL: ep.authorizeURL,
			TokenURL:     ep.tokenURL,
			ProfileURL:   ep.profileURL,
			Extractor:    ep.extractor,
		}
	}
	return r
}

// Lookup returns the configuration for a platform name.
func (r *Registry) Lookup(name string) (*Config, error) {
	cfg, ok := r.platforms[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPlatform, name)
	}
	return cfg, nil
}

// Names returns the names of all configured platforms.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.platforms))
	for name := range r.platforms {
		names = append(names, name)
	}
	return names
}
