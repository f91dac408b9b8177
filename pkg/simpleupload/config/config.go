package config

import (
	"errors"
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/tendant/simple-upload/pkg/simpleupload"
	"github.com/tendant/simple-upload/pkg/simpleupload/auth"
	"github.com/tendant/simple-upload/pkg/simpleupload/storage/local"
	"github.com/tendant/simple-upload/pkg/simpleupload/storage/r2"
)

// Storage backend names
const (
	BackendR2    = "r2"
	BackendLocal = "local"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// ServerConfig is the configuration of the upload server
type ServerConfig struct {
	Port        string `env:"PORT" env-default:"8080"`
	Environment string `env:"ENVIRONMENT" env-default:"development"` // development, production, testing

	StorageBackend string `env:"STORAGE_BACKEND" env-default:"r2"` // "r2", "local"

	R2    R2Config
	Local LocalConfig
	Auth  AuthConfig
}

// R2Config holds the Cloudflare R2 settings. None of them are required at
// startup; missing values fail the first signing call.
type R2Config struct {
	AccountID       string `env:"CLOUDFLARE_R2_ACCOUNT_ID"`
	AccessKeyID     string `env:"CLOUDFLARE_R2_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"CLOUDFLARE_R2_SECRET_ACCESS_KEY"`
	BucketName      string `env:"CLOUDFLARE_R2_BUCKET_NAME"`
	PublicURL       string `env:"CLOUDFLARE_R2_PUBLIC_URL"`
	Endpoint        string `env:"CLOUDFLARE_R2_ENDPOINT"`
	UsePathStyle    bool   `env:"CLOUDFLARE_R2_USE_PATH_STYLE" env-default:"false"`
}

// Backend converts the settings to an r2.Config
func (r R2Config) Backend() r2.Config {
	return r2.Config{
		AccountID:       r.AccountID,
		AccessKeyID:     r.AccessKeyID,
		SecretAccessKey: r.SecretAccessKey,
		Bucket:          r.BucketName,
		Endpoint:        r.Endpoint,
		UsePathStyle:    r.UsePathStyle,
	}
}

// LocalConfig holds the development backend settings
type LocalConfig struct {
	BaseDir    string `env:"LOCAL_STORAGE_DIR" env-default:"./data/uploads"`
	BaseURL    string `env:"LOCAL_BASE_URL" env-default:"http://localhost:8080"`
	SigningKey string `env:"LOCAL_SIGNING_KEY"`
}

// AuthConfig holds the session verification settings
type AuthConfig struct {
	JWTSecret  string `env:"SUPABASE_JWT_SECRET"`
	CookieName string `env:"SESSION_COOKIE_NAME" env-default:"sb-access-token"`
	Audience   string `env:"SUPABASE_JWT_AUDIENCE"`
}

// Load constructs a ServerConfig by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:           "8080",
		Environment:    "development",
		StorageBackend: BackendR2,
		Local: LocalConfig{
			BaseDir: "./data/uploads",
			BaseURL: "http://localhost:8080",
		},
		Auth: AuthConfig{
			CookieName: auth.DefaultCookieName,
		},
	}
}

// WithEnv reads every setting from the process environment
func WithEnv() Option {
	return func(c *ServerConfig) error {
		if err := cleanenv.ReadEnv(c); err != nil {
			return fmt.Errorf("failed to read environment: %w", err)
		}
		return nil
	}
}

// WithPort sets the listen port
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		c.Port = port
		return nil
	}
}

// WithStorageBackend selects the storage backend by name
func WithStorageBackend(name string) Option {
	return func(c *ServerConfig) error {
		c.StorageBackend = name
		return nil
	}
}

// WithR2 replaces the R2 settings
func WithR2(r R2Config) Option {
	return func(c *ServerConfig) error {
		c.R2 = r
		return nil
	}
}

// WithLocal replaces the local backend settings
func WithLocal(l LocalConfig) Option {
	return func(c *ServerConfig) error {
		c.Local = l
		return nil
	}
}

// WithJWTSecret sets the session token secret
func WithJWTSecret(secret string) Option {
	return func(c *ServerConfig) error {
		c.Auth.JWTSecret = secret
		return nil
	}
}

// Validate validates the server configuration. Storage credentials are not
// checked here.
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	switch c.StorageBackend {
	case BackendR2:
	case BackendLocal:
		if c.Local.BaseDir == "" {
			return errors.New("LOCAL_STORAGE_DIR is required when using the local backend")
		}
		if c.Local.SigningKey == "" {
			return errors.New("LOCAL_SIGNING_KEY is required when using the local backend")
		}
	default:
		return fmt.Errorf("storage_backend must be '%s' or '%s', got '%s'", BackendR2, BackendLocal, c.StorageBackend)
	}

	if c.Auth.JWTSecret == "" {
		return errors.New("SUPABASE_JWT_SECRET is required")
	}

	return nil
}

// IsProduction reports whether the server runs in production
func (c *ServerConfig) IsProduction() bool {
	return c.Environment == "production"
}

// Components are the services built from a ServerConfig
type Components struct {
	Signer   simpleupload.PolicySigner
	Local    *local.Backend // nil unless the local backend is selected
	R2       *r2.Backend    // nil unless the r2 backend is selected
	Verifier simpleupload.SessionVerifier
	Options  []simpleupload.IssuerOption
}

// Build creates the signer, session verifier and issuer options
func (c *ServerConfig) Build() (*Components, error) {
	comps := &Components{}

	switch c.StorageBackend {
	case BackendLocal:
		backend, err := local.New(local.Config{
			BaseDir:   c.Local.BaseDir,
			BaseURL:   c.Local.BaseURL,
			SecretKey: c.Local.SigningKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to build local backend: %w", err)
		}
		comps.Signer, comps.Local = backend, backend
	default:
		backend, err := r2.New(c.R2.Backend())
		if err != nil {
			return nil, fmt.Errorf("failed to build r2 backend: %w", err)
		}
		comps.Signer, comps.R2 = backend, backend
		comps.Options = append(comps.Options, simpleupload.WithPublicBaseURL(c.R2.PublicURL))
	}

	var authOpts []auth.Option
	if c.Auth.CookieName != "" {
		authOpts = append(authOpts, auth.WithCookieName(c.Auth.CookieName))
	}
	if c.Auth.Audience != "" {
		authOpts = append(authOpts, auth.WithAudience(c.Auth.Audience))
	}
	comps.Verifier = auth.NewJWTVerifier(c.Auth.JWTSecret, authOpts...)

	return comps, nil
}
