package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"tripplanner/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Provider   ProviderConfig   `yaml:"provider"`
	Generator  GeneratorConfig  `yaml:"generator"`
	Lifecycle  LifecycleConfig  `yaml:"lifecycle"`
	Exports    ExportConfig     `yaml:"exports"`
	Google     GoogleConfig     `yaml:"google"`
}

type APIConfig struct {
	HTTP      APIHTTPConfig      `yaml:"http"`
	GRPC      APIGRPCConfig      `yaml:"grpc"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Port int `yaml:"port"`
}

type APIGRPCConfig struct {
	Port       int  `yaml:"port"`
	Reflection bool `yaml:"reflection"`
}

// APIAuthConfig holds the HMAC secret used to verify bearer tokens.
type APIAuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	Issuer    string        `yaml:"issuer"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// RetryConfig mirrors retry.Policy so it can be set from YAML.
type RetryConfig struct {
	MaxAttempts   int           `yaml:"max_attempts"`
	InitialDelay  time.Duration `yaml:"initial_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	BackoffFactor float64       `yaml:"backoff_factor"`
}

// ProviderConfig describes the travel inventory provider.
type ProviderConfig struct {
	Name         string        `yaml:"name"`
	BaseURL      string        `yaml:"base_url"`
	TokenURL     string        `yaml:"token_url"`
	ClientID     string        `yaml:"client_id"`
	ClientSecret string        `yaml:"client_secret"`
	Timeout      time.Duration `yaml:"timeout"`
	TokenSkew    time.Duration `yaml:"token_skew"`
	RPS          float64       `yaml:"rps"`
	Burst        int           `yaml:"burst"`
	Retry        RetryConfig   `yaml:"retry"`
}

type GeneratorConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// LifecycleConfig controls status transition rules and list paging.
// Transition overrides map a status to the statuses reachable from it.
type LifecycleConfig struct {
	StrictTransitions    *bool               `yaml:"strict_transitions"`
	ItineraryTransitions map[string][]string `yaml:"itinerary_transitions"`
	BookingTransitions   map[string][]string `yaml:"booking_transitions"`
	ListLimitDefault     int                 `yaml:"list_limit_default"`
	ListLimitMax         int                 `yaml:"list_limit_max"`
}

// Strict reports whether transition tables are enforced. Defaults to true.
func (l LifecycleConfig) Strict() bool {
	return l.StrictTransitions == nil || *l.StrictTransitions
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

// IsDevelopment reports whether error details may be exposed to clients.
func (a AppConfig) IsDevelopment() bool {
	return strings.EqualFold(a.Environment, "development")
}

type DatabaseConfig struct {
	Driver       string `yaml:"driver"`
	Path         string `yaml:"path"`
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Interval      time.Duration `yaml:"interval"`
	RetentionDays int           `yaml:"retention_days"`
	StoragePath   string        `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type GoogleConfig struct {
	CredentialsFile      string      `yaml:"credentials_file"`
	BookingSpreadSheetID string      `yaml:"bookings_spreadsheet_id"`
	SyncRetry            RetryConfig `yaml:"sync_retry"`
}

// SheetsEnabled reports whether the bookings ledger mirror is configured.
func (g GoogleConfig) SheetsEnabled() bool {
	return g.CredentialsFile != "" && g.BookingSpreadSheetID != ""
}

func Load(configPath string) (*Config, error) {
	// .env is optional
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite3":
		if c.Database.Path == "" {
			return errors.New("database path is required")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return errors.New("database dsn is required for postgres")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	if c.API.Auth.JWTSecret == "" {
		return errors.New("api.auth.jwt_secret is required")
	}

	if c.Provider.BaseURL == "" {
		return errors.New("provider base_url is required")
	}

	if c.Lifecycle.ListLimitDefault > c.Lifecycle.ListLimitMax {
		return fmt.Errorf("list_limit_default %d exceeds list_limit_max %d",
			c.Lifecycle.ListLimitDefault, c.Lifecycle.ListLimitMax)
	}

	if err := ValidateTransitions(c.Lifecycle.ItineraryTransitions, models.IsValidItineraryStatus); err != nil {
		return fmt.Errorf("itinerary_transitions: %w", err)
	}
	return ValidateTransitions(c.Lifecycle.BookingTransitions, models.IsValidBookingStatus)
}

// ValidateTransitions checks that every status named in an override table is known.
func ValidateTransitions(table map[string][]string, valid func(string) bool) error {
	for from, targets := range table {
		if !valid(from) {
			return fmt.Errorf("unknown status %q", from)
		}
		for _, to := range targets {
			if !valid(to) {
				return fmt.Errorf("unknown status %q reachable from %q", to, from)
			}
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "tripplanner"
	}
	if c.App.Environment == "" {
		c.App.Environment = "production"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite3"
	}
	if c.API.GRPC.Port == 0 {
		c.API.GRPC.Port = 8081
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.API.Auth.TokenTTL == 0 {
		c.API.Auth.TokenTTL = 24 * time.Hour
	}
	if c.API.RateLimit.RPS == 0 {
		c.API.RateLimit.RPS = 10
	}
	if c.API.RateLimit.Burst == 0 {
		c.API.RateLimit.Burst = 20
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}

	if c.Provider.Name == "" {
		c.Provider.Name = "amadeus"
	}
	if c.Provider.TokenURL == "" && c.Provider.BaseURL != "" {
		c.Provider.TokenURL = strings.TrimRight(c.Provider.BaseURL, "/") + "/v1/security/oauth2/token"
	}
	if c.Provider.Timeout == 0 {
		c.Provider.Timeout = 20 * time.Second
	}
	if c.Provider.TokenSkew == 0 {
		c.Provider.TokenSkew = 30 * time.Second
	}
	if c.Provider.RPS == 0 {
		c.Provider.RPS = 10
	}
	if c.Provider.Burst == 0 {
		c.Provider.Burst = 5
	}
	if c.Provider.Retry.MaxAttempts == 0 {
		c.Provider.Retry.MaxAttempts = 3
	}
	if c.Provider.Retry.InitialDelay == 0 {
		c.Provider.Retry.InitialDelay = 200 * time.Millisecond
	}
	if c.Provider.Retry.MaxDelay == 0 {
		c.Provider.Retry.MaxDelay = 2 * time.Second
	}
	if c.Provider.Retry.BackoffFactor == 0 {
		c.Provider.Retry.BackoffFactor = 2
	}

	if c.Generator.URL == "" {
		c.Generator.URL = "http://localhost:8000"
	}
	if c.Generator.Timeout == 0 {
		c.Generator.Timeout = 20 * time.Second
	}

	if c.Lifecycle.ListLimitDefault == 0 {
		c.Lifecycle.ListLimitDefault = models.DefaultListLimit
	}
	if c.Lifecycle.ListLimitMax == 0 {
		c.Lifecycle.ListLimitMax = models.MaxListLimit
	}

	if c.Backup.Interval == 0 {
		c.Backup.Interval = 24 * time.Hour
	}
	if c.Backup.RetentionDays == 0 {
		c.Backup.RetentionDays = 7
	}
	if c.Backup.StoragePath == "" {
		c.Backup.StoragePath = "backups"
	}
	if c.Google.SyncRetry.MaxAttempts == 0 {
		c.Google.SyncRetry.MaxAttempts = 5
	}
	if c.Google.SyncRetry.InitialDelay == 0 {
		c.Google.SyncRetry.InitialDelay = 2 * time.Second
	}
	if c.Google.SyncRetry.MaxDelay == 0 {
		c.Google.SyncRetry.MaxDelay = time.Minute
	}
	if c.Google.SyncRetry.BackoffFactor == 0 {
		c.Google.SyncRetry.BackoffFactor = 2
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
}
