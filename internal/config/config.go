package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                  = "PORTAL"
	defaultHTTPAddress         = "0.0.0.0:8080"
	defaultDatabasePath        = "portal.db"
	defaultLogLevel            = "info"
	defaultCookieName          = "portal_session"
	defaultSessionIssuer       = "portal-auth"
	defaultSessionTTLMinutes   = 720
	defaultNewsletterChunkSize = 25
	defaultNewsletterAttempts  = 3
	defaultUploadMaxBytes      = 10 << 20
	defaultUploadDedupTTLMin   = 15
	defaultGenAIModel          = "gemini-2.0-flash"
)

// AppConfig captures runtime configuration for the portal API server.
type AppConfig struct {
	HTTPAddress  string
	DatabasePath string
	LogLevel     string

	SessionSigningKey string
	SessionCookieName string
	SessionIssuer     string
	SessionTTL        time.Duration

	MailBaseURL string
	MailAPIKey  string
	MailFrom    string
	MailReplyTo string

	StorageBaseURL string
	StorageAPIKey  string
	StorageBucket  string
	UploadMaxBytes int64
	UploadDedupTTL time.Duration

	NewsletterChunkSize   int
	NewsletterMaxAttempts int
	TrackingBaseURL       string
	RedirectAllowedHosts  []string

	GenAIAPIKey string
	GenAIModel  string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("session.cookie_name", defaultCookieName)
	configViper.SetDefault("session.issuer", defaultSessionIssuer)
	configViper.SetDefault("session.ttl_minutes", defaultSessionTTLMinutes)
	configViper.SetDefault("newsletter.chunk_size", defaultNewsletterChunkSize)
	configViper.SetDefault("newsletter.max_attempts", defaultNewsletterAttempts)
	configViper.SetDefault("upload.max_bytes", defaultUploadMaxBytes)
	configViper.SetDefault("upload.dedup_ttl_minutes", defaultUploadDedupTTLMin)
	configViper.SetDefault("genai.model", defaultGenAIModel)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:  configViper.GetString("http.address"),
		DatabasePath: configViper.GetString("database.path"),
		LogLevel:     configViper.GetString("log.level"),

		SessionSigningKey: configViper.GetString("session.signing_secret"),
		SessionCookieName: configViper.GetString("session.cookie_name"),
		SessionIssuer:     configViper.GetString("session.issuer"),
		SessionTTL:        time.Duration(configViper.GetInt("session.ttl_minutes")) * time.Minute,

		MailBaseURL: configViper.GetString("mail.base_url"),
		MailAPIKey:  configViper.GetString("mail.api_key"),
		MailFrom:    configViper.GetString("mail.from"),
		MailReplyTo: configViper.GetString("mail.reply_to"),

		StorageBaseURL: configViper.GetString("storage.base_url"),
		StorageAPIKey:  configViper.GetString("storage.api_key"),
		StorageBucket:  configViper.GetString("storage.bucket"),
		UploadMaxBytes: configViper.GetInt64("upload.max_bytes"),
		UploadDedupTTL: time.Duration(configViper.GetInt("upload.dedup_ttl_minutes")) * time.Minute,

		NewsletterChunkSize:   configViper.GetInt("newsletter.chunk_size"),
		NewsletterMaxAttempts: configViper.GetInt("newsletter.max_attempts"),
		TrackingBaseURL:       configViper.GetString("newsletter.tracking_base_url"),
		RedirectAllowedHosts:  configViper.GetStringSlice("newsletter.redirect_allowed_hosts"),

		GenAIAPIKey: configViper.GetString("genai.api_key"),
		GenAIModel:  configViper.GetString("genai.model"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SessionSigningKey) == "" {
		return fmt.Errorf("session.signing_secret is required")
	}
	if strings.TrimSpace(c.SessionCookieName) == "" {
		return fmt.Errorf("session.cookie_name is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.NewsletterChunkSize <= 0 {
		return fmt.Errorf("newsletter.chunk_size must be positive")
	}
	if c.NewsletterMaxAttempts <= 0 {
		return fmt.Errorf("newsletter.max_attempts must be positive")
	}
	if c.UploadMaxBytes <= 0 {
		return fmt.Errorf("upload.max_bytes must be positive")
	}
	return nil
}
