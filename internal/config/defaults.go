package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	logx "fleetbot/pkg/logx"
)

const (
	DefaultStatsBaseURL = "https://fleet-api-server.onrender.com"
	DefaultTopPath      = "/top/money/{period}"
	DefaultWeekPath     = "/top/money/week"
	DefaultMonthlyPath  = "/monthlybonus"
	DefaultTimezone     = "Europe/Moscow"
	DefaultParks        = "Народный и Luxury courier"
	DefaultContact      = "@lchelp_bot"
	DefaultStorePath    = "./data/subscribers.json"
	DefaultHTTPAddr     = ":3000"
)

// DefaultEntries is the production report table in Moscow time.
var DefaultEntries = []string{
	"08:00 yesterday",
	"09:00 today",
	"13:00 today",
	"17:00 today",
	"21:00 today",
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Console: true},
		Scheduler: SchedulerConfig{
			Enabled:  true,
			Timezone: DefaultTimezone,
		},
		Storage: StorageConfig{Driver: "file", Path: DefaultStorePath},
		HTTP:    HTTPConfig{Enabled: true},
	}
}

// ApplyDefaults fills zero values in place. It never overrides explicit values.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}
	if strings.TrimSpace(cfg.Stats.BaseURL) == "" {
		cfg.Stats.BaseURL = DefaultStatsBaseURL
	}
	if strings.TrimSpace(cfg.Stats.TopPath) == "" {
		cfg.Stats.TopPath = DefaultTopPath
	}
	if strings.TrimSpace(cfg.Stats.WeekPath) == "" {
		cfg.Stats.WeekPath = DefaultWeekPath
	}
	// "-" opts out of the monthly bonus request.
	if strings.TrimSpace(cfg.Stats.MonthlyPath) == "" {
		cfg.Stats.MonthlyPath = DefaultMonthlyPath
	} else if strings.TrimSpace(cfg.Stats.MonthlyPath) == "-" {
		cfg.Stats.MonthlyPath = ""
	}
	if strings.TrimSpace(cfg.Report.Parks) == "" {
		cfg.Report.Parks = DefaultParks
	}
	if strings.TrimSpace(cfg.Report.Contact) == "" {
		cfg.Report.Contact = DefaultContact
	}
	if strings.TrimSpace(cfg.Scheduler.Timezone) == "" {
		cfg.Scheduler.Timezone = DefaultTimezone
	}
	if len(cfg.Scheduler.Entries) == 0 {
		cfg.Scheduler.Entries = append([]string(nil), DefaultEntries...)
	}
	if cfg.Broadcast.Workers <= 0 {
		cfg.Broadcast.Workers = 4
	}
	if cfg.Broadcast.RatePerSec <= 0 {
		cfg.Broadcast.RatePerSec = 10
	}
	if strings.TrimSpace(cfg.Storage.Driver) == "" {
		cfg.Storage.Driver = "file"
	}
	if strings.TrimSpace(cfg.Storage.Path) == "" && cfg.Storage.Driver != "redis" {
		cfg.Storage.Path = DefaultStorePath
	}
	if strings.TrimSpace(cfg.HTTP.Addr) == "" {
		cfg.HTTP.Addr = DefaultHTTPAddr
	}
}

// Validate rejects configs that would fail later at wiring time.
// A missing token is reported as ErrMissingToken.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return ErrMissingToken
	}
	if !logx.ValidLevel(cfg.Logging.Level) {
		return fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level)
	}
	if _, err := ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("stats.timeout", cfg.Stats.Timeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("http.keepalive_every", cfg.HTTP.KeepAliveEvery); err != nil {
		return err
	}
	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("scheduler.timezone: invalid %q: %w", tz, err)
		}
	}
	if !strings.Contains(cfg.Stats.TopPath, "{period}") && cfg.Stats.TopPath != "" {
		return fmt.Errorf("stats.top_path must contain {period}")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "file", "sqlite", "sqlite3":
	case "redis":
		if strings.TrimSpace(cfg.Storage.Addr) == "" {
			return fmt.Errorf("storage.addr is required for redis driver")
		}
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver)
	}
	if cfg.Broadcast.Workers < 0 || cfg.Broadcast.RatePerSec < 0 {
		return fmt.Errorf("broadcast.workers and broadcast.rate_per_sec must be >= 0")
	}
	return nil
}

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
