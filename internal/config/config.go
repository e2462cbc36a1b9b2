package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

var knownWeakSecrets = []string{
	"change-me", "dev-secret-change-me", "secret", "admin", "password",
}

type Config struct {
	Port        int    `env:"PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	RedisURL    string `env:"REDIS_URL,required"`

	// AppBaseURL is where browsers are sent after the callback phase
	// (the admin panel of the surrounding product).
	AppBaseURL string `env:"APP_BASE_URL" envDefault:""`
	// OAuthRedirectBase is the externally visible base URL of this service,
	// used to build per-platform redirect URIs.
	OAuthRedirectBase string `env:"OAUTH_REDIRECT_BASE,required"`

	SessionSecret string `env:"SESSION_SECRET"`
	EncryptionKey string `env:"ENCRYPTION_KEY"`

	PendingLinkTTLSeconds int `env:"PENDING_LINK_TTL_SECONDS" envDefault:"600"`

	InstagramClientID     string `env:"INSTAGRAM_CLIENT_ID"`
	InstagramClientSecret string `env:"INSTAGRAM_CLIENT_SECRET"`
	FacebookClientID      string `env:"FACEBOOK_CLIENT_ID"`
	FacebookClientSecret  string `env:"FACEBOOK_CLIENT_SECRET"`
	LinkedInClientID      string `env:"LINKEDIN_CLIENT_ID"`
	LinkedInClientSecret  string `env:"LINKEDIN_CLIENT_SECRET"`
	TwitterClientID       string `env:"TWITTER_CLIENT_ID"`
	TwitterClientSecret   string `env:"TWITTER_CLIENT_SECRET"`
	YouTubeClientID       string `env:"YOUTUBE_CLIENT_ID"`
	YouTubeClientSecret   string `env:"YOUTUBE_CLIENT_SECRET"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

func (c *Config) PendingLinkTTL() time.Duration {
	return time.Duration(c.PendingLinkTTLSeconds) * time.Second
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) Validate(isProduction bool) error {
	if isProduction {
		if err := validateSecret("SESSION_SECRET", c.SessionSecret); err != nil {
			return err
		}

		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
		if c.EncryptionKey == "" {
			log.Warn().Msg("ENCRYPTION_KEY is empty in production: platform tokens will not be encrypted at rest")
		}
		if !strings.HasPrefix(c.OAuthRedirectBase, "https://") {
			log.Warn().Msg("OAUTH_REDIRECT_BASE is not https in production: platforms may reject the redirect URI")
		}
	}

	return nil
}

func validateSecret(name, value string) error {
	if len(value) < 32 {
		return fmt.Errorf("%s must be at least 32 characters in production (generate with: openssl rand -base64 32)", name)
	}
	for _, weak := range knownWeakSecrets {
		if value == weak {
			return fmt.Errorf("%s is a known weak default; set a strong secret in production", name)
		}
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
