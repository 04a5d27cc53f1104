package config

import (
	"reflect"
	"strings"

	logx "fleetbot/pkg/logx"
)

// SummarizeChange returns the changed top-level sections and safe structured
// attrs for logging. Secrets (bot token, redis password) are never included.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 16)

	oldTG, newTG := oldCfg.Telegram, newCfg.Telegram
	oldTG.Token, newTG.Token = "", ""
	if oldTG != newTG || oldCfg.Telegram.Token != newCfg.Telegram.Token {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Int64("telegram.admin_group_id", newCfg.Telegram.AdminGroupID),
			logx.Bool("telegram.group_log_set", strings.TrimSpace(newCfg.Telegram.GroupLog) != ""),
			logx.Bool("telegram.token_changed", oldCfg.Telegram.Token != newCfg.Telegram.Token),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	if oldCfg.Stats != newCfg.Stats {
		changed = append(changed, "stats")
		attrs = append(attrs, logx.String("stats.base_url", newCfg.Stats.BaseURL))
	}

	if oldCfg.Report != newCfg.Report {
		changed = append(changed, "report")
	}

	if !reflect.DeepEqual(oldCfg.Scheduler, newCfg.Scheduler) {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.String("scheduler.timezone", newCfg.Scheduler.Timezone),
			logx.Int("scheduler.entries", len(newCfg.Scheduler.Entries)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Broadcast, newCfg.Broadcast) {
		changed = append(changed, "broadcast")
		attrs = append(attrs, logx.Int("broadcast.chat_ids", len(newCfg.Broadcast.ChatIDs)))
	}

	oldSt, newSt := oldCfg.Storage, newCfg.Storage
	oldSt.Password, newSt.Password = "", ""
	if oldSt != newSt || oldCfg.Storage.Password != newCfg.Storage.Password {
		changed = append(changed, "storage")
		attrs = append(attrs, logx.String("storage.driver", newCfg.Storage.Driver))
	}

	if oldCfg.HTTP != newCfg.HTTP {
		changed = append(changed, "http")
		attrs = append(attrs, logx.String("http.addr", newCfg.HTTP.Addr))
	}

	return changed, attrs
}

// RestartRequired reports whether any of the changed sections can only take
// effect after a process restart. Logging and broadcast apply live.
func RestartRequired(sections []string) bool {
	for _, s := range sections {
		switch s {
		case "telegram", "stats", "report", "scheduler", "storage", "http":
			return true
		}
	}
	return false
}
