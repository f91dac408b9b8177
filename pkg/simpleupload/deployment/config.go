// Package deployment holds the deployment-level settings read once at
// process start and the checks that keep a misconfigured deployment from
// registering webhooks against an unusable URL.
package deployment

import (
	"fmt"
	"slices"

	"github.com/ilyakaznacheev/cleanenv"
)

// Allowed values
const (
	PackQueryUsers   = "users"
	PackQueryGallery = "gallery"
	PackQueryBoth    = "both"

	TunePacks = "packs"
	TuneTune  = "tune"

	ProviderVercel     = "vercel"
	ProviderCloudflare = "cloudflare"
)

var (
	validPackQueryTypes     = []string{PackQueryUsers, PackQueryGallery, PackQueryBoth}
	validTuneTypes          = []string{TunePacks, TuneTune}
	validDeploymentProvider = []string{ProviderVercel, ProviderCloudflare}
)

// Config is the deployment configuration. Build it once with FromEnv and
// pass it to whatever needs it.
type Config struct {
	PackQueryType      string `env:"PACK_QUERY_TYPE"`
	TuneType           string `env:"NEXT_PUBLIC_TUNE_TYPE"`
	StripeEnabledRaw   string `env:"NEXT_PUBLIC_STRIPE_IS_ENABLED"`
	DeploymentURL      string `env:"DEPLOYMENT_URL"`
	DeploymentProvider string `env:"DEPLOYMENT_PROVIDER" env-default:"cloudflare"`
}

// StripeEnabled reports whether NEXT_PUBLIC_STRIPE_IS_ENABLED is "true"
func (c Config) StripeEnabled() bool {
	return c.StripeEnabledRaw == "true"
}

// ConfigError names the setting that failed validation
type ConfigError struct {
	Setting string
	Value   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}

// FromEnv reads the deployment configuration from the environment and
// validates it.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read deployment configuration: %w", err)
	}
	if cfg.DeploymentProvider == "" {
		cfg.DeploymentProvider = ProviderCloudflare
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks each setting in order and returns the first failure.
func (c Config) Validate() error {
	if !slices.Contains(validPackQueryTypes, c.PackQueryType) {
		return invalid("PACK_QUERY_TYPE", c.PackQueryType)
	}

	if !slices.Contains(validTuneTypes, c.TuneType) {
		return invalid("NEXT_PUBLIC_TUNE_TYPE", c.TuneType)
	}

	switch c.StripeEnabledRaw {
	case "", "true", "false":
	default:
		return &ConfigError{
			Setting: "NEXT_PUBLIC_STRIPE_IS_ENABLED",
			Value:   c.StripeEnabledRaw,
			Message: "Invalid NEXT_PUBLIC_STRIPE_IS_ENABLED value",
		}
	}

	if !slices.Contains(validDeploymentProvider, c.DeploymentProvider) {
		return invalid("DEPLOYMENT_PROVIDER", c.DeploymentProvider)
	}

	if c.DeploymentURL != "" && IsPreviewURL(c.DeploymentURL) {
		return &ConfigError{
			Setting: "DEPLOYMENT_URL",
			Value:   c.DeploymentURL,
			Message: "Invalid DEPLOYMENT_URL: Preview URLs cannot be used for webhooks.\n" +
				"Please use either:\n" +
				"1. Your production domain (e.g., your-app.com)\n" +
				"2. For local development, use ngrok (e.g., your-tunnel.ngrok.io)",
		}
	}

	return nil
}

func invalid(setting, value string) *ConfigError {
	return &ConfigError{
		Setting: setting,
		Value:   value,
		Message: fmt.Sprintf("Invalid %s: %s", setting, value),
	}
}
