package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"github.com/username/simcal/pkg/simdate"
)

// EnvPrefix is prepended to every environment override, e.g.
// SIMCAL_STORE_REDIS_ADDR for store.redis.addr.
const EnvPrefix = "SIMCAL"

// Config represents application configuration
type Config struct {
	Calendar   CalendarConfig   `mapstructure:"calendar"`
	Simulation SimulationConfig `mapstructure:"simulation"`
	Commands   CommandsConfig   `mapstructure:"commands"`
	Store      StoreConfig      `mapstructure:"store"`
	Log        LogConfig        `mapstructure:"log"`
	Seed       SeedConfig       `mapstructure:"seed"`
	Retention  RetentionConfig  `mapstructure:"retention"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

// CalendarConfig represents calendar engine configuration
type CalendarConfig struct {
	HorizonWeeks    int `mapstructure:"horizon_weeks" validate:"gte=1,lte=520"`
	SearchStepTicks int `mapstructure:"search_step_ticks" validate:"gte=0,lte=96"`
}

// SimulationConfig represents the simulated clock
type SimulationConfig struct {
	Start        string `mapstructure:"start"`         // e.g. Y1-W01-D1@00:00
	TickInterval string `mapstructure:"tick_interval"` // wall-clock time per step
	TicksPerStep int    `mapstructure:"ticks_per_step" validate:"gte=1,lte=672"`
}

// CommandsConfig bounds the per-tick command batch
type CommandsConfig struct {
	MaxPerTick int    `mapstructure:"max_per_tick" validate:"gte=0"`
	Budget     string `mapstructure:"budget"`
}

// StoreConfig represents snapshot persistence configuration
type StoreConfig struct {
	Type         string      `mapstructure:"type" validate:"oneof=file redis fallback"`
	Dir          string      `mapstructure:"dir"`
	Format       string      `mapstructure:"format" validate:"oneof=json yaml"`
	Key          string      `mapstructure:"key" validate:"required"`
	SnapshotCron string      `mapstructure:"snapshot_cron"`
	TTL          string      `mapstructure:"ttl"`
	Redis        RedisConfig `mapstructure:"redis"`
}

// RedisConfig represents redis connection settings
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0,lte=15"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	File   string `mapstructure:"file"`
	Format string `mapstructure:"format" validate:"oneof=console json"`
}

// SeedConfig points at an optional seed plan
type SeedConfig struct {
	File string `mapstructure:"file"`
}

// RetentionConfig controls eviction of old availability months
type RetentionConfig struct {
	KeepMonths int `mapstructure:"keep_months" validate:"gte=0"`
}

// MetricsConfig controls the Prometheus endpoint. Empty Listen disables it.
type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("calendar.horizon_weeks", 52)
	v.SetDefault("calendar.search_step_ticks", 1)

	v.SetDefault("simulation.start", "Y1-W01-D1@00:00")
	v.SetDefault("simulation.tick_interval", "1s")
	v.SetDefault("simulation.ticks_per_step", 1)

	v.SetDefault("commands.max_per_tick", 100)
	v.SetDefault("commands.budget", "50ms")

	v.SetDefault("store.type", "file")
	v.SetDefault("store.dir", "./data")
	v.SetDefault("store.format", "json")
	v.SetDefault("store.key", "calendar")
	v.SetDefault("store.snapshot_cron", "@every 5m")
	v.SetDefault("store.ttl", "0s")
	v.SetDefault("store.redis.addr", "")
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.format", "console")

	v.SetDefault("seed.file", "")
	v.SetDefault("retention.keep_months", 3)
	v.SetDefault("metrics.listen", "")
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// Load loads configuration from file. With an empty path the usual
// locations are searched and a missing file falls back to defaults.
// A .env file in the working directory is loaded first when present.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := newViper()

	// Set config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("simcal")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.simcal")
		v.AddConfigPath("/etc/simcal")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	return decode(v)
}

// Default returns the built-in defaults, with environment overrides.
func Default() *Config {
	cfg, err := decode(newViper())
	if err != nil {
		panic(fmt.Sprintf("config: invalid defaults: %v", err))
	}
	return cfg
}

func decode(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate config
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	if _, err := simdate.Parse(c.Simulation.Start); err != nil {
		return fmt.Errorf("simulation.start: %w", err)
	}

	if c.Store.SnapshotCron != "" {
		if _, err := cron.ParseStandard(c.Store.SnapshotCron); err != nil {
			return fmt.Errorf("store.snapshot_cron: %w", err)
		}
	}

	switch c.Store.Type {
	case "redis":
		if c.Store.Redis.Addr == "" {
			return fmt.Errorf("store.redis.addr is required for redis store")
		}
	case "fallback":
		if c.Store.Redis.Addr == "" {
			return fmt.Errorf("store.redis.addr is required for fallback store")
		}
		if c.Store.Dir == "" {
			return fmt.Errorf("store.dir is required for fallback store")
		}
	default:
		if c.Store.Dir == "" {
			return fmt.Errorf("store.dir is required for file store")
		}
	}

	return nil
}

// GetSearchStep returns the free-time search step in ticks
func (c *CalendarConfig) GetSearchStep() int {
	if c.SearchStepTicks <= 0 {
		return 1
	}
	return c.SearchStepTicks
}

// GetStart returns the simulated start date
func (c *SimulationConfig) GetStart() simdate.SimDate {
	start, err := simdate.Parse(c.Start)
	if err != nil {
		return simdate.MustNew(1, 1, 1, 1)
	}
	return start
}

// GetTickInterval returns the wall-clock duration of one simulation step
func (c *SimulationConfig) GetTickInterval() time.Duration {
	return parseDuration(c.TickInterval, time.Second)
}

// GetBudget returns the wall-clock budget for one command batch
func (c *CommandsConfig) GetBudget() time.Duration {
	return parseDuration(c.Budget, 50*time.Millisecond)
}

// GetTTL returns the redis snapshot TTL; zero keeps snapshots forever
func (c *StoreConfig) GetTTL() time.Duration {
	return parseDuration(c.TTL, 0)
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	duration, err := time.ParseDuration(value)
	if err != nil || duration < 0 {
		return fallback
	}
	return duration
}
