// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/profile-contact-crawler/internal/verify"
)

// DefaultMaxConcurrency applies when max_concurrency is unset or zero.
const DefaultMaxConcurrency = 2

// Stdout formats.
const (
	StdoutJSONL = "jsonl"
	StdoutArray = "array"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// aliases maps the camelCase input names onto config keys.
var aliases = map[string]string{
	"profileUrls":    "profiles",
	"emailProvider":  "email_provider",
	"verifyEmails":   "verify_emails",
	"maxConcurrency": "max_concurrency",
}

// Config captures all run configuration knobs loaded via Viper.
type Config struct {
	Profiles       []string        `mapstructure:"profiles"`
	EmailProvider  string          `mapstructure:"email_provider"`
	VerifyEmails   bool            `mapstructure:"verify_emails"`
	MaxConcurrency int             `mapstructure:"max_concurrency"`
	Renderer       RendererConfig  `mapstructure:"renderer"`
	SiteFetch      SiteFetchConfig `mapstructure:"site_fetch"`
	Output         OutputConfig    `mapstructure:"output"`
	Server         ServerConfig    `mapstructure:"server"`
	Logging        LoggingConfig   `mapstructure:"logging"`
}

// RendererConfig configures headless profile rendering.
type RendererConfig struct {
	UserAgent          string        `mapstructure:"user_agent"`
	NavigationTimeout  time.Duration `mapstructure:"navigation_timeout"`
	SettleDelay        time.Duration `mapstructure:"settle_delay"`
	StablePollInterval time.Duration `mapstructure:"stable_poll_interval"`
	StableTimeout      time.Duration `mapstructure:"stable_timeout"`
	DomainQPS          float64       `mapstructure:"domain_qps"`
	Headless           bool          `mapstructure:"headless"`
	PlatformDomains    []string      `mapstructure:"platform_domains"`
}

// SiteFetchConfig configures the secondary website fetch.
type SiteFetchConfig struct {
	UserAgent     string        `mapstructure:"user_agent"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxBodyBytes  int           `mapstructure:"max_body_bytes"`
	RespectRobots bool          `mapstructure:"respect_robots"`
}

// OutputConfig selects the record sinks.
type OutputConfig struct {
	Stdout        bool   `mapstructure:"stdout"`
	StdoutFormat  string `mapstructure:"stdout_format"`
	LocalDir      string `mapstructure:"local_dir"`
	GCSBucket     string `mapstructure:"gcs_bucket"`
	GCSPrefix     string `mapstructure:"gcs_prefix"`
	PubSubProject string `mapstructure:"pubsub_project"`
	PubSubTopic   string `mapstructure:"pubsub_topic"`
	PostgresDSN   string `mapstructure:"postgres_dsn"`
	PostgresTable string `mapstructure:"postgres_table"`
}

// ServerConfig controls the optional status server.
type ServerConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment. An empty profile list is not
// an error here; the scheduler rejects it.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	// Registered after reading so values under an alias move to the real key.
	for alias, key := range aliases {
		v.RegisterAlias(alias, key)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("profiles", []string{})
	v.SetDefault("email_provider", verify.ProviderNone)
	v.SetDefault("verify_emails", false)
	v.SetDefault("max_concurrency", DefaultMaxConcurrency)
	v.SetDefault("renderer.user_agent", "")
	v.SetDefault("renderer.navigation_timeout", 30*time.Second)
	v.SetDefault("renderer.settle_delay", time.Second)
	v.SetDefault("renderer.stable_poll_interval", time.Duration(0))
	v.SetDefault("renderer.stable_timeout", 5*time.Second)
	v.SetDefault("renderer.domain_qps", 0.0)
	v.SetDefault("renderer.headless", true)
	v.SetDefault("renderer.platform_domains", []string{"linkedin.com", "twitter.com", "x.com"})
	v.SetDefault("site_fetch.user_agent", "profile-contact-crawler/0.1")
	v.SetDefault("site_fetch.timeout", 15*time.Second)
	v.SetDefault("site_fetch.max_body_bytes", 5<<20)
	v.SetDefault("site_fetch.respect_robots", false)
	v.SetDefault("output.stdout", true)
	v.SetDefault("output.stdout_format", StdoutJSONL)
	v.SetDefault("output.local_dir", "")
	v.SetDefault("output.gcs_bucket", "")
	v.SetDefault("output.gcs_prefix", "profiles")
	v.SetDefault("output.pubsub_project", "")
	v.SetDefault("output.pubsub_topic", "")
	v.SetDefault("output.postgres_dsn", "")
	v.SetDefault("output.postgres_table", "profile_records")
	v.SetDefault("server.listen_addr", "")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "")
}

func (c *Config) normalize() {
	if c.MaxConcurrency == 0 {
		c.MaxConcurrency = DefaultMaxConcurrency
	}
	c.EmailProvider = strings.ToLower(strings.TrimSpace(c.EmailProvider))
	if c.EmailProvider == "" {
		c.EmailProvider = verify.ProviderNone
	}
	c.Output.StdoutFormat = strings.ToLower(strings.TrimSpace(c.Output.StdoutFormat))
	profiles := c.Profiles[:0]
	for _, p := range c.Profiles {
		if p = strings.TrimSpace(p); p != "" {
			profiles = append(profiles, p)
		}
	}
	c.Profiles = profiles
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.MaxConcurrency < 0 {
		return fmt.Errorf("max_concurrency must be >= 0, got %d", c.MaxConcurrency)
	}
	if !slices.Contains(verify.Providers(), c.EmailProvider) {
		return fmt.Errorf("email_provider %q is not one of %v", c.EmailProvider, verify.Providers())
	}
	if c.Renderer.NavigationTimeout <= 0 {
		return fmt.Errorf("renderer.navigation_timeout must be > 0")
	}
	if c.Renderer.SettleDelay < 0 || c.Renderer.StablePollInterval < 0 {
		return fmt.Errorf("renderer settle durations must be >= 0")
	}
	if c.Renderer.StablePollInterval > 0 && c.Renderer.StableTimeout <= 0 {
		return fmt.Errorf("renderer.stable_timeout must be > 0 when polling")
	}
	if c.Renderer.DomainQPS < 0 {
		return fmt.Errorf("renderer.domain_qps must be >= 0")
	}
	if c.SiteFetch.Timeout <= 0 {
		return fmt.Errorf("site_fetch.timeout must be > 0")
	}
	if c.SiteFetch.MaxBodyBytes <= 0 {
		return fmt.Errorf("site_fetch.max_body_bytes must be > 0")
	}
	if c.Output.StdoutFormat != StdoutJSONL && c.Output.StdoutFormat != StdoutArray {
		return fmt.Errorf("output.stdout_format must be %q or %q", StdoutJSONL, StdoutArray)
	}
	if (c.Output.PubSubProject == "") != (c.Output.PubSubTopic == "") {
		return fmt.Errorf("output.pubsub_project and output.pubsub_topic must be set together")
	}
	if c.Output.PostgresDSN != "" && !validTableName.MatchString(c.Output.PostgresTable) {
		return fmt.Errorf("output.postgres_table %q is not a valid identifier", c.Output.PostgresTable)
	}
	return nil
}

// VerificationEnabled reports whether records should be decorated with
// verified emails.
func (c Config) VerificationEnabled() bool {
	return c.VerifyEmails && c.EmailProvider != verify.ProviderNone
}
