package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	internal "github.com/ZanzyTHEbar/drive-search/dsearch"

	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Search  SearchConfig  `mapstructure:"search"`
	Store   StoreConfig   `mapstructure:"store"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// SearchConfig stores traversal settings.
type SearchConfig struct {
	Root           string          `mapstructure:"root"`
	Workers        int             `mapstructure:"workers"`
	PageSize       int             `mapstructure:"pageSize"`
	TimeoutSeconds int             `mapstructure:"timeoutSeconds"`
	Dedupe         bool            `mapstructure:"dedupe"`
	Exclude        []string        `mapstructure:"exclude"`
	Policy         PolicyConfig    `mapstructure:"policy"`
	Retry          RetryConfig     `mapstructure:"retry"`
	RateLimit      RateLimitConfig `mapstructure:"rateLimit"`
}

// PolicyConfig selects the error policy.
// Mode is one of "skip", "classify".
type PolicyConfig struct {
	Mode                   string `mapstructure:"mode"`
	MaxConsecutiveFailures int    `mapstructure:"maxConsecutiveFailures"`
}

// RetryConfig stores backoff settings for transient fetch errors.
type RetryConfig struct {
	MaxAttempts   int `mapstructure:"maxAttempts"`
	InitialWaitMs int `mapstructure:"initialWaitMs"`
	MaxWaitMs     int `mapstructure:"maxWaitMs"`
}

// RateLimitConfig caps list requests per second. Zero disables limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requestsPerSecond"`
	Burst             int     `mapstructure:"burst"`
}

// StoreConfig selects and configures the remote store.
type StoreConfig struct {
	Kind   string       `mapstructure:"kind"`
	Drive  DriveConfig  `mapstructure:"drive"`
	S3     S3Config     `mapstructure:"s3"`
	Memory MemoryConfig `mapstructure:"memory"`
}

// DriveConfig stores Google Drive settings.
type DriveConfig struct {
	CredentialsFile string `mapstructure:"credentialsFile"`
}

// S3Config stores S3 connection settings.
type S3Config struct {
	Endpoint     string `mapstructure:"endpoint"`
	Bucket       string `mapstructure:"bucket"`
	Region       string `mapstructure:"region"`
	AccessKey    string `mapstructure:"accessKey"`
	SecretKey    string `mapstructure:"secretKey"`
	UsePathStyle bool   `mapstructure:"usePathStyle"`
}

// MemoryConfig points at a YAML fixture for the in-memory store.
type MemoryConfig struct {
	Fixture string `mapstructure:"fixture"`
}

// LogConfig stores logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// MetricsConfig stores the Prometheus listen address. Empty disables the endpoint.
type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
}

var AppConfig Config

var configFileUsed string

// Timeout returns the whole-traversal budget, zero meaning none.
func (s SearchConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("..")
		v.AddConfigPath(filepath.Join("etc", internal.DefaultAppName))
		v.AddConfigPath(internal.DefaultConfigPath)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetDefault("search.workers", 0) // engine picks a CPU based default
	v.SetDefault("search.pageSize", internal.DefaultPageSize)
	v.SetDefault("search.timeoutSeconds", 0)
	v.SetDefault("search.dedupe", false)
	v.SetDefault("search.exclude", []string{})
	v.SetDefault("search.policy.mode", "classify")
	v.SetDefault("search.policy.maxConsecutiveFailures", internal.DefaultMaxFailures)
	v.SetDefault("search.retry.maxAttempts", internal.DefaultRetryTries)
	v.SetDefault("search.retry.initialWaitMs", 100)
	v.SetDefault("search.retry.maxWaitMs", 10000)
	v.SetDefault("search.rateLimit.requestsPerSecond", 0)
	v.SetDefault("search.rateLimit.burst", 1)
	v.SetDefault("store.kind", internal.DefaultStoreKind)
	v.SetDefault("store.s3.region", "us-east-1")
	v.SetDefault("store.s3.usePathStyle", true)
	v.SetDefault("log.level", internal.DefaultLogLevel)
	v.SetDefault("log.pretty", false)
	v.SetDefault("metrics.listen", "")

	v.SetEnvPrefix(internal.DefaultEnvPrefix)
	v.AutomaticEnv()                                   // Read in environment variables that match
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // search.pageSize becomes DSEARCH_SEARCH_PAGESIZE

	configFileUsed = ""
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; defaults will be used.
	} else {
		configFileUsed = v.ConfigFileUsed()
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	AppConfig = cfg
	return &cfg, nil
}

// GetConfigFileUsed returns the file the last LoadConfig call read, if any.
func GetConfigFileUsed() string {
	return configFileUsed
}

// Validate rejects settings the engine cannot honor.
func (c *Config) Validate() error {
	if c.Search.Workers < 0 {
		return fmt.Errorf("search.workers must not be negative: %d", c.Search.Workers)
	}
	if c.Search.PageSize < 0 || c.Search.PageSize > 1000 {
		return fmt.Errorf("search.pageSize must be between 0 and 1000: %d", c.Search.PageSize)
	}
	if c.Search.TimeoutSeconds < 0 {
		return fmt.Errorf("search.timeoutSeconds must not be negative: %d", c.Search.TimeoutSeconds)
	}
	switch c.Search.Policy.Mode {
	case "skip", "classify":
	default:
		return fmt.Errorf("search.policy.mode must be skip or classify: %q", c.Search.Policy.Mode)
	}
	switch c.Store.Kind {
	case "drive", "s3", "memory":
	default:
		return fmt.Errorf("store.kind must be drive, s3 or memory: %q", c.Store.Kind)
	}
	return nil
}
