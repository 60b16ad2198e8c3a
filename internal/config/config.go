package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Cache   CacheConfig   `yaml:"cache" mapstructure:"cache"`
	Geocode GeocodeConfig `yaml:"geocode" mapstructure:"geocode"`
	Geo     GeoConfig     `yaml:"geo" mapstructure:"geo"`
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// CacheConfig configures the on-disk geocode cache.
type CacheConfig struct {
	File          string `yaml:"file" mapstructure:"file"`
	AltAddrFile   string `yaml:"alt_addr_file" mapstructure:"alt_addr_file"`
	RetryDays     int    `yaml:"retry_days" mapstructure:"retry_days"`
	AlwaysGeocode bool   `yaml:"always_geocode" mapstructure:"always_geocode"`
	CacheOnly     bool   `yaml:"cache_only" mapstructure:"cache_only"`
	SaveEvery     int    `yaml:"save_every" mapstructure:"save_every"`
}

// GeocodeConfig configures the live geocoding provider.
type GeocodeConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
	Email       string `yaml:"email" mapstructure:"email"`
	IntervalMS  int    `yaml:"interval_ms" mapstructure:"interval_ms"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries" mapstructure:"max_retries"`
}

// GeoConfig configures country inference and address matching.
type GeoConfig struct {
	OverridesPath  string `yaml:"overrides_path" mapstructure:"overrides_path"`
	DefaultCountry string `yaml:"default_country" mapstructure:"default_country"`
	Fuzzy          bool   `yaml:"fuzzy" mapstructure:"fuzzy"`
	FuzzyThreshold int    `yaml:"fuzzy_threshold" mapstructure:"fuzzy_threshold"`
}

// StoreConfig configures the run-history database.
type StoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// ServerConfig configures the lookup API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("GEDMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("cache.file", "geo_cache.csv")
	v.SetDefault("cache.alt_addr_file", "")
	v.SetDefault("cache.retry_days", 7)
	v.SetDefault("cache.save_every", 100)
	v.SetDefault("geocode.base_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("geocode.user_agent", "gedmap-cli")
	v.SetDefault("geocode.interval_ms", 1000)
	v.SetDefault("geocode.timeout_secs", 10)
	v.SetDefault("geocode.max_retries", 3)
	v.SetDefault("geo.fuzzy_threshold", 90)
	v.SetDefault("store.path", "gedmap.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the configuration for the given run mode and reports every
// problem at once.
func (c *Config) Validate(mode string) error {
	var problems []string

	if c.Cache.RetryDays < 0 {
		problems = append(problems, "cache.retry_days must be >= 0")
	}
	if c.Cache.SaveEvery < 1 {
		problems = append(problems, "cache.save_every must be >= 1")
	}
	if c.Geo.FuzzyThreshold < 0 || c.Geo.FuzzyThreshold > 100 {
		problems = append(problems, "geo.fuzzy_threshold must be between 0 and 100")
	}

	switch mode {
	case "resolve", "lookup":
		if c.Cache.File == "" {
			problems = append(problems, "cache.file is required")
		}
		if !c.Cache.CacheOnly {
			if c.Geocode.BaseURL == "" {
				problems = append(problems, "geocode.base_url is required")
			}
			if c.Geocode.UserAgent == "" {
				problems = append(problems, "geocode.user_agent is required")
			}
			if c.Geocode.IntervalMS < 0 {
				problems = append(problems, "geocode.interval_ms must be >= 0")
			}
			if c.Geocode.MaxRetries < 1 {
				problems = append(problems, "geocode.max_retries must be >= 1")
			}
		}
	case "serve":
		if c.Cache.File == "" {
			problems = append(problems, "cache.file is required")
		}
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	case "export", "status":
		if c.Cache.File == "" {
			problems = append(problems, "cache.file is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
