// Package config loads the run configuration from an optional YAML file,
// ORDERSLA_* environment variables and .env files.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"order-sla-extractor/adapters"
	"order-sla-extractor/internal/site"
	"order-sla-extractor/internal/types"
	"order-sla-extractor/sla"
	"order-sla-extractor/utils"
)

// EnvPrefix is prepended to every environment override, e.g. ORDERSLA_FILTERS_LIMIT
const EnvPrefix = "ORDERSLA"

type SiteConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	LoginURL  string `mapstructure:"login_url"`
	OrdersURL string `mapstructure:"orders_url"`
	DetailURL string `mapstructure:"detail_url"`
}

type CredentialsConfig struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type FiltersConfig struct {
	// Preset takes precedence over DaysBack when set
	Preset    string `mapstructure:"preset"`
	DaysBack  int    `mapstructure:"days_back"`
	TimeBasis string `mapstructure:"time_basis"`
	Limit     int    `mapstructure:"limit"`
	Skip      bool   `mapstructure:"skip"`
}

type ExtractionConfig struct {
	MaxPages       int `mapstructure:"max_pages"`
	MaxRowsPerPage int `mapstructure:"max_rows_per_page"`
}

type EnrichmentConfig struct {
	BatchSize     int     `mapstructure:"batch_size"`
	Workers       int     `mapstructure:"workers"`
	RatePerSecond float64 `mapstructure:"rate_per_second"`
	MaxRetries    int     `mapstructure:"max_retries"`
}

type TimeoutsConfig struct {
	Run         time.Duration `mapstructure:"run"`
	Login       time.Duration `mapstructure:"login"`
	Probe       time.Duration `mapstructure:"probe"`
	Filter      time.Duration `mapstructure:"filter"`
	LoadingWait time.Duration `mapstructure:"loading_wait"`
	PageChange  time.Duration `mapstructure:"page_change"`
	Request     time.Duration `mapstructure:"request"`
	Poll        time.Duration `mapstructure:"poll"`
	MaxPoll     time.Duration `mapstructure:"max_poll"`
}

type SessionConfig struct {
	File string        `mapstructure:"file"`
	TTL  time.Duration `mapstructure:"ttl"`
}

type SLAConfig struct {
	RulesFile    string    `mapstructure:"rules_file"`
	Timezone     string    `mapstructure:"timezone"`
	WarningHours []float64 `mapstructure:"warning_hours"`
}

type OutputConfig struct {
	Dir       string `mapstructure:"dir"`
	AlertsCSV bool   `mapstructure:"alerts_csv"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

type BrowserConfig struct {
	Headless  bool   `mapstructure:"headless"`
	UserAgent string `mapstructure:"user_agent"`
}

// Config is the complete file/env configuration
type Config struct {
	Site        SiteConfig        `mapstructure:"site"`
	Credentials CredentialsConfig `mapstructure:"credentials"`
	Filters     FiltersConfig     `mapstructure:"filters"`
	Extraction  ExtractionConfig  `mapstructure:"extraction"`
	Enrichment  EnrichmentConfig  `mapstructure:"enrichment"`
	Timeouts    TimeoutsConfig    `mapstructure:"timeouts"`
	Session     SessionConfig     `mapstructure:"session"`
	SLA         SLAConfig         `mapstructure:"sla"`
	Output      OutputConfig      `mapstructure:"output"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Browser     BrowserConfig     `mapstructure:"browser"`
}

// SetDefaults registers every key with its default. Keys must be known to
// viper for environment overrides to reach Unmarshal.
func SetDefaults(v *viper.Viper) {
	rt := types.DefaultConfig()
	profile := site.DefaultProfile()

	v.SetDefault("site.base_url", profile.BaseURL)
	v.SetDefault("site.login_url", profile.LoginURL)
	v.SetDefault("site.orders_url", profile.OrdersURL)
	v.SetDefault("site.detail_url", profile.DetailURL)

	v.SetDefault("credentials.username", "")
	v.SetDefault("credentials.password", "")

	v.SetDefault("filters.preset", "")
	v.SetDefault("filters.days_back", 1)
	v.SetDefault("filters.time_basis", string(adapters.TimeBasisMarketplace))
	v.SetDefault("filters.limit", 2000)
	v.SetDefault("filters.skip", false)

	v.SetDefault("extraction.max_pages", rt.MaxPages)
	v.SetDefault("extraction.max_rows_per_page", rt.MaxRowsPerPage)

	v.SetDefault("enrichment.batch_size", rt.BatchSize)
	v.SetDefault("enrichment.workers", rt.Workers)
	v.SetDefault("enrichment.rate_per_second", rt.RatePerSecond)
	v.SetDefault("enrichment.max_retries", rt.MaxRetries)

	v.SetDefault("timeouts.run", rt.Timeout)
	v.SetDefault("timeouts.login", rt.LoginTimeout)
	v.SetDefault("timeouts.probe", rt.ProbeTimeout)
	v.SetDefault("timeouts.filter", rt.FilterTimeout)
	v.SetDefault("timeouts.loading_wait", rt.LoadingAppearWait)
	v.SetDefault("timeouts.page_change", rt.PageChangeTimeout)
	v.SetDefault("timeouts.request", rt.RequestTimeout)
	v.SetDefault("timeouts.poll", rt.PollInterval)
	v.SetDefault("timeouts.max_poll", rt.MaxPollInterval)

	v.SetDefault("session.file", "~/.order-sla/session.json")
	v.SetDefault("session.ttl", rt.SessionTTL)

	v.SetDefault("sla.rules_file", "")
	v.SetDefault("sla.timezone", "Asia/Ho_Chi_Minh")
	v.SetDefault("sla.warning_hours", []float64{})

	v.SetDefault("output.dir", "output")
	v.SetDefault("output.alerts_csv", true)

	v.SetDefault("logging.level", "")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size", 50)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)
	v.SetDefault("logging.compress", false)

	v.SetDefault("browser.headless", rt.Headless)
	v.SetDefault("browser.user_agent", rt.UserAgent)
}

// Load reads .env, the config file and the environment. An empty path looks
// for config.yaml in the working directory and tolerates its absence; an
// explicit path must exist.
func Load(path string) (*Config, error) {
	// Load .env file if present
	_ = godotenv.Load()

	v := viper.New()
	SetDefaults(v)
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return FromViper(v)
}

// FromViper decodes, expands and validates an already populated viper instance
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	cfg.expand()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

var placeholder = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandString replaces ${VAR} with the variable's value. A bare $ is kept
// so passwords containing one survive.
func expandString(s string) string {
	return placeholder.ReplaceAllStringFunc(s, func(m string) string {
		return os.Getenv(placeholder.FindStringSubmatch(m)[1])
	})
}

func (c *Config) expand() {
	for _, s := range []*string{
		&c.Site.BaseURL, &c.Site.LoginURL, &c.Site.OrdersURL, &c.Site.DetailURL,
		&c.Credentials.Username, &c.Credentials.Password,
		&c.Session.File, &c.SLA.RulesFile, &c.Output.Dir, &c.Logging.File,
	} {
		*s = expandString(*s)
	}
}

// Validate reports the first invalid setting
func (c *Config) Validate() error {
	switch {
	case c.Enrichment.BatchSize <= 0:
		return errors.New("enrichment.batch_size must be a positive integer")
	case c.Enrichment.Workers <= 0:
		return errors.New("enrichment.workers must be a positive integer")
	case c.Extraction.MaxPages < 0:
		return errors.New("extraction.max_pages must not be negative")
	case c.Filters.DaysBack < 0:
		return errors.New("filters.days_back must not be negative")
	case c.Site.OrdersURL == "" || c.Site.LoginURL == "":
		return errors.New("site.login_url and site.orders_url are required")
	}
	if _, err := adapters.ParseTimeBasis(c.Filters.TimeBasis); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	for _, h := range c.SLA.WarningHours {
		if h <= 0 {
			return fmt.Errorf("sla.warning_hours must be positive, got %v", h)
		}
	}
	return nil
}

// Runtime converts the configuration into the pipeline's runtime settings
func (c *Config) Runtime() *types.Config {
	rt := types.DefaultConfig()
	rt.MaxRetries = c.Enrichment.MaxRetries
	rt.Timeout = c.Timeouts.Run
	rt.RequestTimeout = c.Timeouts.Request
	rt.UserAgent = c.Browser.UserAgent
	rt.Headless = c.Browser.Headless
	rt.LoginTimeout = c.Timeouts.Login
	rt.ProbeTimeout = c.Timeouts.Probe
	rt.FilterTimeout = c.Timeouts.Filter
	rt.LoadingAppearWait = c.Timeouts.LoadingWait
	rt.PageChangeTimeout = c.Timeouts.PageChange
	rt.PollInterval = c.Timeouts.Poll
	rt.MaxPollInterval = c.Timeouts.MaxPoll
	rt.MaxPages = c.Extraction.MaxPages
	rt.MaxRowsPerPage = c.Extraction.MaxRowsPerPage
	rt.BatchSize = c.Enrichment.BatchSize
	rt.Workers = c.Enrichment.Workers
	rt.RatePerSecond = c.Enrichment.RatePerSecond
	if len(c.SLA.WarningHours) > 0 {
		rt.WarningHours = append([]float64(nil), c.SLA.WarningHours...)
	}
	rt.SessionTTL = c.Session.TTL
	return rt
}

// Profile returns the default site profile with the configured URLs
func (c *Config) Profile() *site.Profile {
	p := site.DefaultProfile()
	p.BaseURL = c.Site.BaseURL
	p.LoginURL = c.Site.LoginURL
	p.OrdersURL = c.Site.OrdersURL
	p.DetailURL = c.Site.DetailURL
	return p
}

// Creds returns the login credentials
func (c *Config) Creds() adapters.Credentials {
	return adapters.Credentials{Username: c.Credentials.Username, Password: c.Credentials.Password}
}

// Location loads the SLA timezone
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.SLA.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid sla.timezone %q: %w", c.SLA.Timezone, err)
	}
	return loc, nil
}

// FilterOptions resolves the date range relative to now. It returns nil
// when filters are skipped.
func (c *Config) FilterOptions(now time.Time) (*adapters.FilterOptions, error) {
	if c.Filters.Skip {
		return nil, nil
	}
	basis, err := adapters.ParseTimeBasis(c.Filters.TimeBasis)
	if err != nil {
		return nil, err
	}
	if c.Filters.Preset != "" {
		opts, err := adapters.Preset(c.Filters.Preset, now, basis, c.Filters.Limit)
		if err != nil {
			return nil, err
		}
		return &opts, nil
	}
	opts := adapters.LastDays(now, c.Filters.DaysBack, basis, c.Filters.Limit)
	return &opts, nil
}

// Rules returns the SLA rules and warning thresholds, from the rules file
// when one is configured. sla.warning_hours overrides the file's thresholds.
func (c *Config) Rules() ([]types.SLARule, []float64, error) {
	if c.SLA.RulesFile == "" {
		hours := c.SLA.WarningHours
		if len(hours) == 0 {
			hours = append([]float64(nil), sla.DefaultWarningHours...)
		}
		return sla.DefaultRules(), hours, nil
	}
	set, err := sla.LoadRules(c.SLA.RulesFile)
	if err != nil {
		return nil, nil, err
	}
	hours := c.SLA.WarningHours
	if len(hours) == 0 {
		hours = set.WarningHours
	}
	return set.Rules, hours, nil
}

// LogOptions returns the logger settings
func (c *Config) LogOptions(verbose bool) utils.LogOptions {
	return utils.LogOptions{
		Level:      c.Logging.Level,
		Verbose:    verbose,
		File:       c.Logging.File,
		MaxSize:    c.Logging.MaxSize,
		MaxBackups: c.Logging.MaxBackups,
		MaxAge:     c.Logging.MaxAge,
		Compress:   c.Logging.Compress,
	}
}
