package app

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"fleetbot/internal/broadcast"
	"fleetbot/internal/config"
	"fleetbot/internal/health"
	"fleetbot/internal/report"
	"fleetbot/internal/scheduler"
	"fleetbot/internal/stats"
	"fleetbot/internal/storage"
	logx "fleetbot/pkg/logx"
)

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "", "file":
		return storage.Config{Driver: "file", Path: path}, nil
	case "sqlite", "sqlite3":
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, nil
	case "redis":
		return storage.Config{
			Driver:   "redis",
			Addr:     strings.TrimSpace(sc.Addr),
			Password: sc.Password,
			DB:       sc.DB,
			Key:      strings.TrimSpace(sc.Key),
		}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapStatsConfig(cfg *config.Config) (stats.Config, error) {
	timeout, err := config.ParseDurationField("stats.timeout", cfg.Stats.Timeout)
	if err != nil {
		return stats.Config{}, err
	}
	return stats.Config{
		BaseURL:     cfg.Stats.BaseURL,
		TopPath:     cfg.Stats.TopPath,
		WeekPath:    cfg.Stats.WeekPath,
		MonthlyPath: cfg.Stats.MonthlyPath,
		Timeout:     timeout,
	}, nil
}

func loadLocation(cfg *config.Config) (*time.Location, error) {
	tz := strings.TrimSpace(cfg.Scheduler.Timezone)
	if tz == "" {
		tz = config.DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("scheduler.timezone: %w", err)
	}
	return loc, nil
}

func mapReportConfig(cfg *config.Config, loc *time.Location) report.Config {
	return report.Config{Parks: cfg.Report.Parks, Contact: cfg.Report.Contact, Location: loc}
}

// mapSchedulerConfig returns no entries when the scheduler is disabled; the
// service still runs interval jobs such as the keep-alive.
func mapSchedulerConfig(cfg *config.Config, loc *time.Location) (scheduler.Config, error) {
	sc := scheduler.Config{Location: loc}
	if !cfg.Scheduler.Enabled {
		return sc, nil
	}
	entries, err := scheduler.ParseEntries(cfg.Scheduler.Entries)
	if err != nil {
		return scheduler.Config{}, fmt.Errorf("scheduler.entries: %w", err)
	}
	sc.Entries = entries
	return sc, nil
}

func mapBroadcastConfig(cfg *config.Config) broadcast.Config {
	return broadcast.Config{Workers: cfg.Broadcast.Workers, RatePerSec: cfg.Broadcast.RatePerSec}
}

func mapLoggingConfig(cfg *config.Config, loc *time.Location) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
		Location: loc,
	}
}

// logTarget parses telegram.group_log; 0 clears the target.
func logTarget(cfg *config.Config) int64 {
	raw := strings.TrimSpace(cfg.Telegram.GroupLog)
	if raw == "" {
		return 0
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func mapHealthConfig(cfg *config.Config, loc *time.Location) health.Config {
	return health.Config{Addr: cfg.HTTP.Addr, Location: loc, Pprof: cfg.HTTP.Pprof}
}

// keepAliveEvery returns 0 when no external URL is configured.
func keepAliveEvery(cfg *config.Config) (time.Duration, error) {
	if strings.TrimSpace(cfg.HTTP.ExternalURL) == "" || !cfg.HTTP.Enabled {
		return 0, nil
	}
	return config.ParseDurationOrDefault("http.keepalive_every", cfg.HTTP.KeepAliveEvery, health.DefaultKeepAliveEvery)
}
