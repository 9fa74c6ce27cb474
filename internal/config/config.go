// Package config loads landuse-cli settings from config.yaml and LANDUSE_*
// environment variables and initializes the global logger.
package config

import (
	"errors"
	"slices"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/landuse-cli/internal/crs"
)

// Config holds the full application configuration.
type Config struct {
	CRS        int              `yaml:"crs" mapstructure:"crs"`
	Schema     SchemaConfig     `yaml:"schema" mapstructure:"schema"`
	Region     RegionConfig     `yaml:"region" mapstructure:"region"`
	Overpass   OverpassConfig   `yaml:"overpass" mapstructure:"overpass"`
	Fetch      FetchConfig      `yaml:"fetch" mapstructure:"fetch"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Access     AccessConfig     `yaml:"access" mapstructure:"access"`
	Output     OutputConfig     `yaml:"output" mapstructure:"output"`
	PostGIS    PostGISConfig    `yaml:"postgis" mapstructure:"postgis"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// SchemaConfig points at a custom landuse schema; empty uses the built-in one.
type SchemaConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// RegionConfig holds the buffers used to build study and fetch areas, in
// working CRS units.
type RegionConfig struct {
	StudyBuffer float64 `yaml:"study_buffer" mapstructure:"study_buffer"`
	FetchBuffer float64 `yaml:"fetch_buffer" mapstructure:"fetch_buffer"`
}

// OverpassConfig configures the OSM source.
type OverpassConfig struct {
	Endpoint            string  `yaml:"endpoint" mapstructure:"endpoint"`
	TimeoutSecs         int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec          float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	MaxAttempts         int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	RetryInitialSecs    int     `yaml:"retry_initial_secs" mapstructure:"retry_initial_secs"`
	BreakerThreshold    int     `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerCooldownSecs int     `yaml:"breaker_cooldown_secs" mapstructure:"breaker_cooldown_secs"`
	UserAgent           string  `yaml:"user_agent" mapstructure:"user_agent"`
}

// FetchConfig controls how many category fetches run at once.
type FetchConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// PipelineConfig configures failure handling.
type PipelineConfig struct {
	OnSourceError string `yaml:"on_source_error" mapstructure:"on_source_error"`
}

// AccessConfig configures the accessibility join.
type AccessConfig struct {
	Enabled   bool      `yaml:"enabled" mapstructure:"enabled"`
	Distances []float64 `yaml:"distances" mapstructure:"distances"`
}

// OutputConfig selects the artifact formats.
type OutputConfig struct {
	Dir     string   `yaml:"dir" mapstructure:"dir"`
	Formats []string `yaml:"formats" mapstructure:"formats"`
	KeepCRS bool     `yaml:"keep_crs" mapstructure:"keep_crs"`
}

// PostGISConfig configures the PostGIS sink.
type PostGISConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Table       string `yaml:"table" mapstructure:"table"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
}

// StoreConfig configures the run log backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// MonitoringConfig configures run-log health checks and webhook alerts.
type MonitoringConfig struct {
	WebhookURL               string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold     float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	CategoryFailureThreshold int     `yaml:"category_failure_threshold" mapstructure:"category_failure_threshold"`
	CheckIntervalSecs        int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours      int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Output formats.
const (
	FormatGeoPackage = "gpkg"
	FormatGeoJSON    = "geojson"
	FormatShapefile  = "shp"
	FormatPostGIS    = "postgis"
)

// Load reads configuration from ./config.yaml (if present) and environment.
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom reads configuration from path, which must exist, and the
// environment. An empty path falls back to the optional ./config.yaml.
func LoadFrom(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix("LANDUSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("crs", 27700)
	v.SetDefault("schema.path", "")
	v.SetDefault("region.study_buffer", 50)
	v.SetDefault("region.fetch_buffer", 2000)
	v.SetDefault("overpass.endpoint", "https://overpass-api.de/api/interpreter")
	v.SetDefault("overpass.timeout_secs", 180)
	v.SetDefault("overpass.rate_per_sec", 1.0)
	v.SetDefault("overpass.max_attempts", 3)
	v.SetDefault("overpass.retry_initial_secs", 5)
	v.SetDefault("overpass.breaker_threshold", 5)
	v.SetDefault("overpass.breaker_cooldown_secs", 60)
	v.SetDefault("overpass.user_agent", "landuse-cli")
	v.SetDefault("fetch.concurrency", 1)
	v.SetDefault("pipeline.on_source_error", "skip_category")
	v.SetDefault("access.enabled", true)
	v.SetDefault("access.distances", []float64{100, 200, 500})
	v.SetDefault("output.dir", "out")
	v.SetDefault("output.formats", []string{FormatGeoPackage})
	v.SetDefault("output.keep_crs", false)
	v.SetDefault("postgis.table", "landuse.layer_features")
	v.SetDefault("postgis.max_conns", 4)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "landuse.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.category_failure_threshold", 3)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on. Modes are "run",
// "serve" and "runs".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "run":
		errs = append(errs, c.validateRun()...)
		errs = append(errs, c.validateStore()...)
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be between 1 and 65535")
		}
		if m := c.Monitoring; m.FailureRateThreshold < 0 || m.FailureRateThreshold > 1 {
			errs = append(errs, "monitoring.failure_rate_threshold must be between 0 and 1")
		}
		errs = append(errs, c.validateStore()...)
	case "runs":
		errs = append(errs, c.validateStore()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateRun() []string {
	var errs []string
	if !crs.Supported(c.CRS) {
		errs = append(errs, "crs "+strconv.Itoa(c.CRS)+" is not supported")
	}
	if c.CRS == crs.WGS84 {
		errs = append(errs, "crs must be a projected system, not 4326")
	}
	if c.Region.StudyBuffer <= 0 || c.Region.FetchBuffer <= 0 {
		errs = append(errs, "region.study_buffer and region.fetch_buffer must be > 0")
	}
	if c.Fetch.Concurrency < 1 || c.Fetch.Concurrency > 16 {
		errs = append(errs, "fetch.concurrency must be between 1 and 16")
	}
	switch c.Pipeline.OnSourceError {
	case "skip_category", "abort":
	default:
		errs = append(errs, "pipeline.on_source_error must be skip_category or abort")
	}
	if c.Overpass.Endpoint == "" {
		errs = append(errs, "overpass.endpoint is required")
	}
	if c.Overpass.TimeoutSecs <= 0 {
		errs = append(errs, "overpass.timeout_secs must be > 0")
	}
	if c.Overpass.RatePerSec < 0 {
		errs = append(errs, "overpass.rate_per_sec must be >= 0")
	}
	if c.Access.Enabled {
		if len(c.Access.Distances) == 0 {
			errs = append(errs, "access.distances must not be empty")
		}
		for _, d := range c.Access.Distances {
			if d <= 0 {
				errs = append(errs, "access.distances values must be > 0")
				break
			}
		}
	}
	if len(c.Output.Formats) == 0 {
		errs = append(errs, "output.formats must not be empty")
	}
	for _, f := range c.Output.Formats {
		switch f {
		case FormatGeoPackage, FormatGeoJSON, FormatShapefile:
			if c.Output.Dir == "" {
				errs = append(errs, "output.dir is required for "+f)
			}
		case FormatPostGIS:
			if c.PostGIS.DatabaseURL == "" {
				errs = append(errs, "postgis.database_url is required for the postgis format")
			}
		default:
			errs = append(errs, "unknown output format "+f)
		}
	}
	return errs
}

func (c *Config) validateStore() []string {
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return []string{"store.driver must be sqlite or postgres"}
	}
	if c.Store.DatabaseURL == "" {
		return []string{"store.database_url is required"}
	}
	return nil
}

// HasFormat reports whether an output format is enabled.
func (c *Config) HasFormat(f string) bool {
	return slices.Contains(c.Output.Formats, f)
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
