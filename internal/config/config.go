// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Search    SearchConfig    `mapstructure:"search"`
	Redis     RedisConfig     `mapstructure:"redis"`
	DB        DBConfig        `mapstructure:"db"`
	Blob      BlobConfig      `mapstructure:"blob"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int `mapstructure:"port"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// AuthConfig configures token signing for the admin API.
type AuthConfig struct {
	JWTSecret       string `mapstructure:"jwt_secret"`
	TokenTTLMinutes int    `mapstructure:"token_ttl_minutes"`
}

// DiscoveryConfig points at the external influencer discovery API.
type DiscoveryConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	Host           string `mapstructure:"host"`
	ServiceName    string `mapstructure:"service_name"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// SearchConfig governs multi-page search behavior.
type SearchConfig struct {
	MaxPages     int `mapstructure:"max_pages"`
	PageDelayMs  int `mapstructure:"page_delay_ms"`
	SyncQueueCap int `mapstructure:"sync_queue_cap"`
}

// RedisConfig controls access to the influencer cache.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	Migrate  bool   `mapstructure:"migrate"`
}

// BlobConfig sets where CSV exports are archived. An empty bucket
// disables archiving.
type BlobConfig struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// NotifyConfig holds metadata for sync event notifications. An empty
// project disables publishing.
type NotifyConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	// viper < 1.21 only honors AutomaticEnv during Unmarshal with the
	// bind-struct option; 1.21+ (unavailable on go 1.21) enables it by default.
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetEnvPrefix("FINDER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.timeout_seconds", 60)
	v.SetDefault("auth.token_ttl_minutes", 60)
	v.SetDefault("discovery.base_url", "https://ylytic-influencers-api.p.rapidapi.com/search")
	v.SetDefault("discovery.host", "ylytic-influencers-api.p.rapidapi.com")
	v.SetDefault("discovery.service_name", "ylytic")
	v.SetDefault("discovery.timeout_seconds", 15)
	v.SetDefault("search.max_pages", 5)
	v.SetDefault("search.page_delay_ms", 2000)
	v.SetDefault("search.sync_queue_cap", 16)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.migrate", true)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Discovery.BaseURL == "" {
		return fmt.Errorf("discovery.base_url must be set")
	}
	if c.Discovery.TimeoutSeconds <= 0 {
		return fmt.Errorf("discovery.timeout_seconds must be > 0")
	}
	if c.Search.MaxPages <= 0 {
		return fmt.Errorf("search.max_pages must be > 0")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret must be set")
	}
	if c.DB.DSN == "" {
		return fmt.Errorf("db.dsn must be set")
	}
	return nil
}

// ServerTimeout converts the request timeout into a duration.
func (c Config) ServerTimeout() time.Duration {
	return time.Duration(c.Server.TimeoutSeconds) * time.Second
}

// DiscoveryTimeout converts the discovery client timeout into a duration.
func (c Config) DiscoveryTimeout() time.Duration {
	return time.Duration(c.Discovery.TimeoutSeconds) * time.Second
}

// PageDelay converts the inter-page delay into a duration.
func (c Config) PageDelay() time.Duration {
	return time.Duration(c.Search.PageDelayMs) * time.Millisecond
}

// TokenTTL converts the token lifetime into a duration.
func (c Config) TokenTTL() time.Duration {
	return time.Duration(c.Auth.TokenTTLMinutes) * time.Minute
}
