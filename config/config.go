package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the process configuration. Engine tuning lives in the policy
// table; the Policy map here only seeds keys that are not stored yet.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Community  CommunityConfig  `mapstructure:"community"`
	Log        LogConfig        `mapstructure:"log"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	Membership MembershipConfig `mapstructure:"membership"`
	Archive    ArchiveConfig    `mapstructure:"archive"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Policy     map[string]string `mapstructure:"-"`
}

type ServerConfig struct {
	Addr           string `mapstructure:"addr"`
	ServiceToken   string `mapstructure:"service_token"`
	AllowedOrigins string `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	URL string `mapstructure:"url"` // postgres://... or a SQLite file path
}

type CommunityConfig struct {
	Timezone string `mapstructure:"timezone"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type NotifyConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
	Token      string `mapstructure:"token"`
}

type MembershipConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Token   string `mapstructure:"token"`
}

// ArchiveConfig points at an S3-compatible bucket (Cloudflare R2 by default).
type ArchiveConfig struct {
	AccountID       string `mapstructure:"account_id"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	Bucket          string `mapstructure:"bucket"`
	Endpoint        string `mapstructure:"endpoint"`
}

// Enabled reports whether season archives should be uploaded.
func (a ArchiveConfig) Enabled() bool {
	return a.Bucket != "" && (a.AccountID != "" || a.Endpoint != "")
}

type SchedulerConfig struct {
	RolloverInterval time.Duration `mapstructure:"rollover_interval"`
	ReminderInterval time.Duration `mapstructure:"reminder_interval"`
	WeeklyRollupCron string        `mapstructure:"weekly_rollup_cron"`
	WeeklyDigestCron string        `mapstructure:"weekly_digest_cron"`
}

// Load reads .env, then an optional config file, then ENGAGE_* environment
// variables. A missing file is not an error.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, reading environment variables directly")
	}

	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("ENGAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		slog.Warn("config file not found, using defaults")
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// Policy keys contain dots, so they are flattened from the sub-tree
	// instead of decoded into a map.
	cfg.Policy = map[string]string{}
	if sub := v.Sub("policy"); sub != nil {
		for _, key := range sub.AllKeys() {
			cfg.Policy[key] = sub.GetString(key)
		}
	}

	if _, err := cfg.Location(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":5200")
	v.SetDefault("server.allowed_origins", "http://localhost:3000")

	v.SetDefault("database.url", "./data/engagement.db")

	v.SetDefault("community.timezone", "UTC")

	v.SetDefault("log.level", "info")

	v.SetDefault("scheduler.rollover_interval", "5m")
	v.SetDefault("scheduler.reminder_interval", "1m")
	v.SetDefault("scheduler.weekly_rollup_cron", "5 0 * * 1")  // Monday 00:05
	v.SetDefault("scheduler.weekly_digest_cron", "0 9 * * 1") // Monday 09:00
}

// Location resolves the community timezone used for week keys and cron jobs.
func (c *Config) Location() (*time.Location, error) {
	name := c.Community.Timezone
	if name == "" {
		name = "UTC"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid community.timezone %q: %w", name, err)
	}
	return loc, nil
}
