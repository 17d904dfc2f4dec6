// Package config loads and validates the sync engine's configuration,
// layering defaults, an optional YAML file, a .env file, and process
// environment variables, in that order of increasing precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/agentworkforce/erpsync/internal/engine"
)

// Endpoint describes one side of the sync: base URL and API credentials.
type Endpoint struct {
	BaseURL   string `mapstructure:"base_url"`
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
}

// Doctype is one configured document type and its hash/write exclusions.
type Doctype struct {
	Name          string   `mapstructure:"name"`
	ExcludeFields []string `mapstructure:"exclude_fields"`
}

// Config is the fully resolved, validated configuration the CLI and server
// components run with.
type Config struct {
	Cloud Endpoint `mapstructure:"cloud"`
	Local Endpoint `mapstructure:"local"`

	Doctypes []Doctype `mapstructure:"doctypes"`

	ConflictPolicy string `mapstructure:"conflict_policy"`

	StateBackendDSN string `mapstructure:"state_backend_dsn"`

	WebhookSecret          string        `mapstructure:"webhook_secret"`
	WebhookSignatureHeader string        `mapstructure:"webhook_signature_header"`
	WebhookAddr            string        `mapstructure:"webhook_addr"`
	PollInterval           time.Duration `mapstructure:"poll_interval"`
	BatchSize              int           `mapstructure:"batch_size"`
	StaleClaimAfter        time.Duration `mapstructure:"stale_claim_after"`
	RetryMaxAttempts       int           `mapstructure:"retry_max_attempts"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// Load resolves configuration from (in increasing precedence): built-in
// defaults, configPath (a YAML file, optional), a .env file in the working
// directory if present, and ERPSYNC_-prefixed environment variables.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("erpsync")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("conflict_policy", string(engine.PolicyLatestTimestamp))
	v.SetDefault("state_backend_dsn", "sqlite://./erpsync.db")
	v.SetDefault("webhook_addr", ":8686")
	v.SetDefault("webhook_signature_header", "X-Frappe-Webhook-Signature")
	v.SetDefault("poll_interval", 2*time.Second)
	v.SetDefault("batch_size", 10)
	v.SetDefault("stale_claim_after", 5*time.Minute)
	v.SetDefault("retry_max_attempts", 5)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("erpsync: read config %s: %w", configPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("erpsync: unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks structural requirements beyond what JSON Schema (applied
// to the doctypes/exclude_fields shape specifically, see schema.go) covers:
// required endpoints, a known conflict policy, and at least one doctype.
func Validate(cfg *Config) error {
	if cfg.Cloud.BaseURL == "" {
		return fmt.Errorf("erpsync: cloud.base_url is required")
	}
	if cfg.Local.BaseURL == "" {
		return fmt.Errorf("erpsync: local.base_url is required")
	}
	if len(cfg.Doctypes) == 0 {
		return fmt.Errorf("erpsync: at least one doctype must be configured")
	}
	if !engine.Policy(cfg.ConflictPolicy).IsValid() {
		return fmt.Errorf("erpsync: invalid conflict_policy %q, must be one of %v", cfg.ConflictPolicy, engine.ValidPolicies)
	}
	seen := map[string]struct{}{}
	for _, d := range cfg.Doctypes {
		if d.Name == "" {
			return fmt.Errorf("erpsync: doctypes entries must have a non-empty name")
		}
		if _, dup := seen[d.Name]; dup {
			return fmt.Errorf("erpsync: doctype %q configured more than once", d.Name)
		}
		seen[d.Name] = struct{}{}
	}
	if err := ValidateDoctypesSchema(cfg.Doctypes); err != nil {
		return err
	}
	return nil
}

// DoctypeConfigs converts the loaded Doctype entries into the shape the
// engine package consumes, keyed by doctype name; Names gives the order.
func (c *Config) DoctypeConfigs() map[string]engine.DoctypeConfig {
	out := make(map[string]engine.DoctypeConfig, len(c.Doctypes))
	for _, d := range c.Doctypes {
		out[d.Name] = engine.DoctypeConfig{Name: d.Name, ExcludeFields: d.ExcludeFields}
	}
	return out
}

// Names returns the configured doctype names, in configuration order.
func (c *Config) Names() []string {
	names := make([]string, len(c.Doctypes))
	for i, d := range c.Doctypes {
		names[i] = d.Name
	}
	return names
}
