package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Search    SearchConfig    `yaml:"search"`
	Session   SessionConfig   `yaml:"session"`
	Crawler   CrawlerConfig   `yaml:"crawler"`
	Scoring   ScoringConfig   `yaml:"scoring"`
	Dedup     DedupConfig     `yaml:"dedup"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	ZonesFile string          `yaml:"zones_file"`
	Timezone  string          `yaml:"timezone"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Type     string         `yaml:"type"` // mysql, postgres or sqlite
	MySQL    MySQLConfig    `yaml:"mysql"`
	Postgres PostgresConfig `yaml:"postgres"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
}

// MySQLConfig contains MySQL connection settings
type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// PostgresConfig contains PostgreSQL connection settings
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
}

// SQLiteConfig contains SQLite settings (single-node deployments and tests)
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// SearchConfig contains search engine settings
type SearchConfig struct {
	Meilisearch MeilisearchConfig `yaml:"meilisearch"`
}

// MeilisearchConfig contains Meilisearch connection settings
type MeilisearchConfig struct {
	Host   string `yaml:"host"`
	APIKey string `yaml:"api_key"`
}

// SessionConfig contains session broker settings: how pages are fetched and
// which anti-bot fallbacks are available.
type SessionConfig struct {
	UserAgent      string `yaml:"user_agent"`
	AcceptLanguage string `yaml:"accept_language"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`

	// Remote unblocking service (strategy b). Optional: skipped when the
	// endpoint is empty.
	UnblockerEndpoint   string `yaml:"unblocker_endpoint"`
	UnblockerToken      string `yaml:"unblocker_token"`
	UnblockerTTLSeconds int    `yaml:"unblocker_ttl_seconds"`

	// Remote browser automation endpoint for the stealth fallback
	// (strategy c). Optional: skipped when empty.
	BrowserWSEndpoint string `yaml:"browser_ws_endpoint"`
}

// CrawlerConfig contains pagination and pacing settings
type CrawlerConfig struct {
	RequestDelaySeconds int `yaml:"request_delay_seconds"`
	RequestJitterMillis int `yaml:"request_jitter_millis"`
	MaxRetries          int `yaml:"max_retries"`
	RetryDelaySeconds   int `yaml:"retry_delay_seconds"`
	MaxPages            int `yaml:"max_pages"`
	MaxProperties       int `yaml:"max_properties"`
	ConcurrentTasks     int `yaml:"concurrent_tasks"`
	ItemTimeoutSeconds  int `yaml:"item_timeout_seconds"`
	RequestsPerHour     int `yaml:"requests_per_hour"`
	RequestsPerDay      int `yaml:"requests_per_day"`
}

// ScoringConfig holds the business-tunable component weights.
// The relative ordering (zone > price > condition > features) is part of the
// product definition; the magnitudes are not.
type ScoringConfig struct {
	ZoneTier1        float64 `yaml:"zone_tier_1"`
	ZoneTier2        float64 `yaml:"zone_tier_2"`
	ZoneTier3        float64 `yaml:"zone_tier_3"`
	PriceMax         float64 `yaml:"price_max"`
	PriceDiscountCap float64 `yaml:"price_discount_cap"` // discount fraction that earns PriceMax
	SurfaceIdeal     float64 `yaml:"surface_ideal"`
	SurfaceEdge      float64 `yaml:"surface_edge"`
	CondReformed     float64 `yaml:"cond_reformed"`
	CondGood         float64 `yaml:"cond_good"`
	CondNeedsReform  float64 `yaml:"cond_needs_reform"`
	FeatExterior     float64 `yaml:"feat_exterior"`
	FeatLift         float64 `yaml:"feat_lift"`
	FeatGarage       float64 `yaml:"feat_garage"`
	FeatPool         float64 `yaml:"feat_pool"`
}

// DedupConfig controls the debounce policy for repeated observations of an
// unchanged listing.
type DedupConfig struct {
	// DebounceWindow is "same_run" or "same_day".
	DebounceWindow string `yaml:"debounce_window"`
}

// SchedulerConfig contains scheduled run settings
type SchedulerConfig struct {
	DailyRunEnabled  bool   `yaml:"daily_run_enabled"`
	DailyRunTime     string `yaml:"daily_run_time"`
	RemovalSweepDays int    `yaml:"removal_sweep_days"`
	RetentionDays    int    `yaml:"retention_days"`
}

// Debounce window modes
const (
	DebounceSameRun = "same_run"
	DebounceSameDay = "same_day"
)

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Type: "mysql",
		},
		Session: SessionConfig{
			UserAgent:           "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
			AcceptLanguage:      "es-ES,es;q=0.9,en;q=0.8",
			TimeoutSeconds:      30,
			UnblockerTTLSeconds: 180,
		},
		Crawler: CrawlerConfig{
			RequestDelaySeconds: 3,
			RequestJitterMillis: 1500,
			MaxRetries:          3,
			RetryDelaySeconds:   2,
			MaxPages:            10,
			MaxProperties:       200,
			ConcurrentTasks:     2,
			ItemTimeoutSeconds:  30,
			RequestsPerHour:     600,
			RequestsPerDay:      4000,
		},
		Scoring: ScoringConfig{
			ZoneTier1:        30,
			ZoneTier2:        20,
			ZoneTier3:        10,
			PriceMax:         25,
			PriceDiscountCap: 0.30,
			SurfaceIdeal:     15,
			SurfaceEdge:      6,
			CondReformed:     10,
			CondGood:         8,
			CondNeedsReform:  4,
			FeatExterior:     3,
			FeatLift:         3,
			FeatGarage:       2,
			FeatPool:         2,
		},
		Dedup: DedupConfig{
			DebounceWindow: DebounceSameDay,
		},
		Scheduler: SchedulerConfig{
			DailyRunEnabled:  false,
			DailyRunTime:     "02:00",
			RemovalSweepDays: 7,
			RetentionDays:    90,
		},
		ZonesFile: "config/zones.yaml",
	}
}

// LoadConfig loads configuration from a YAML file, merged over defaults.
func LoadConfig(filepath string) (*Config, error) {
	config := DefaultConfig()

	// If file doesn't exist, return default config
	if _, err := os.Stat(filepath); os.IsNotExist(err) {
		return config, nil
	}

	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// GetRequestDelay returns the inter-request delay as a duration
func (c *CrawlerConfig) GetRequestDelay() time.Duration {
	return time.Duration(c.RequestDelaySeconds) * time.Second
}

// GetRequestJitter returns the request jitter as a duration
func (c *CrawlerConfig) GetRequestJitter() time.Duration {
	return time.Duration(c.RequestJitterMillis) * time.Millisecond
}

// GetRetryDelay returns the base retry delay as a duration
func (c *CrawlerConfig) GetRetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySeconds) * time.Second
}

// GetItemTimeout returns the per-item fetch timeout as a duration
func (c *CrawlerConfig) GetItemTimeout() time.Duration {
	return time.Duration(c.ItemTimeoutSeconds) * time.Second
}

// GetTimeout returns the HTTP timeout as a duration
func (c *SessionConfig) GetTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// GetUnblockerTTL returns the unblocker session lifetime as a duration
func (c *SessionConfig) GetUnblockerTTL() time.Duration {
	return time.Duration(c.UnblockerTTLSeconds) * time.Second
}
