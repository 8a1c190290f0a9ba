package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "REMINDBOT_"

type Config struct {
	Telegram     TelegramConfig  `koanf:"telegram"`
	Storage      StorageConfig   `koanf:"storage"`
	Scheduler    SchedulerConfig `koanf:"scheduler"`
	Server       ServerConfig    `koanf:"server"`
	API          APIConfig       `koanf:"api"`
	TimezoneName string          `koanf:"timezone"`

	Timezone *time.Location `koanf:"-"`
}

type TelegramConfig struct {
	Token        string  `koanf:"token"`
	WebhookURL   string  `koanf:"webhook_url"` // пусто: long polling
	AllowedUsers []int64 `koanf:"allowed_users"`
}

type StorageConfig struct {
	Backend string `koanf:"backend"` // json | sqlite | bolt
	Path    string `koanf:"path"`
}

type SchedulerConfig struct {
	ScanInterval       time.Duration `koanf:"scan_interval"`
	DefaultLeadMinutes int           `koanf:"default_lead_minutes"`
	DigestTime         string        `koanf:"digest_time"` // "HH:MM", пусто: выключено
}

type ServerConfig struct {
	Port string `koanf:"port"`
}

type APIConfig struct {
	Username string `koanf:"username"`
	Password string `koanf:"password"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"telegram.token":                 "",
		"telegram.webhook_url":           "",
		"storage.backend":                "json",
		"storage.path":                   "./data/reminders.json",
		"scheduler.scan_interval":        "30s",
		"scheduler.default_lead_minutes": 30,
		"scheduler.digest_time":          "",
		"server.port":                    "8080",
		"api.username":                   "",
		"api.password":                   "",
		"timezone":                       "UTC",
	}
}

// bareEnv maps the short variable names used in deployments to config keys.
var bareEnv = map[string]string{
	"TELEGRAM_BOT_TOKEN": "telegram.token",
	"WEBHOOK_URL":        "telegram.webhook_url",
	"DATABASE_PATH":      "storage.path",
	"STORAGE_BACKEND":    "storage.backend",
	"TIMEZONE":           "timezone",
	"SCAN_INTERVAL":      "scheduler.scan_interval",
	"DIGEST_TIME":        "scheduler.digest_time",
	"SERVER_PORT":        "server.port",
	"API_USERNAME":       "api.username",
	"API_PASSWORD":       "api.password",
}

// Load merges defaults, the optional YAML file at path (or $REMINDBOT_CONFIG)
// and the environment, in that order.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path == "" {
		path = os.Getenv(envPrefix + "CONFIG")
	}
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	for name, key := range bareEnv {
		if v := os.Getenv(name); v != "" {
			k.Set(key, v)
		}
	}
	if v := os.Getenv("ALLOWED_USERS"); v != "" {
		k.Set("telegram.allowed_users", splitList(v))
	}

	// REMINDBOT_SCHEDULER__SCAN_INTERVAL -> scheduler.scan_interval
	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}
	if v := os.Getenv(envPrefix + "TELEGRAM__ALLOWED_USERS"); v != "" {
		k.Set("telegram.allowed_users", splitList(v))
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	tz, err := time.LoadLocation(cfg.TimezoneName)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}
	cfg.Timezone = tz

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var clockRe = regexp.MustCompile(`^([01]?\d|2[0-3]):([0-5]\d)$`)

func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "json", "sqlite", "bolt":
	default:
		return fmt.Errorf("unknown storage backend: %s (supported: json, sqlite, bolt)", c.Storage.Backend)
	}
	if c.Storage.Path == "" {
		return fmt.Errorf("storage path is required")
	}
	if c.Scheduler.ScanInterval <= 0 {
		return fmt.Errorf("scan_interval must be positive, got %s", c.Scheduler.ScanInterval)
	}
	if c.Scheduler.DefaultLeadMinutes < 0 {
		return fmt.Errorf("default_lead_minutes must not be negative")
	}
	if c.Scheduler.DigestTime != "" && !clockRe.MatchString(c.Scheduler.DigestTime) {
		return fmt.Errorf("digest_time must be HH:MM, got %q", c.Scheduler.DigestTime)
	}
	return nil
}

// RequireTelegram is checked by the bot binary only; offline tools run without a token.
func (c *Config) RequireTelegram() error {
	if c.Telegram.Token == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	return nil
}

// DigestCron turns digest_time into a five-field cron spec, "" when disabled.
func (c *Config) DigestCron() string {
	m := clockRe.FindStringSubmatch(c.Scheduler.DigestTime)
	if m == nil {
		return ""
	}
	return fmt.Sprintf("%s %s * * *", m[2], m[1])
}

// APIEnabled reports whether REST API credentials are configured.
func (c *Config) APIEnabled() bool {
	return c.API.Username != "" && c.API.Password != ""
}

// IsAllowedUser reports whether a Telegram user may talk to the bot.
// An empty allow list admits everyone.
func (c *Config) IsAllowedUser(telegramID int64) bool {
	if len(c.Telegram.AllowedUsers) == 0 {
		return true
	}
	for _, id := range c.Telegram.AllowedUsers {
		if id == telegramID {
			return true
		}
	}
	return false
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
