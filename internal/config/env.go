package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// envOverrides lists the process environment knobs. They win over the config
// file, which keeps hosted deployments (Render, systemd EnvironmentFile)
// working without a file at all.
type envOverrides struct {
	BotToken     string  `envconfig:"BOT_TOKEN"`
	AdminGroupID int64   `envconfig:"ADMIN_GROUP_ID"`
	GroupLog     string  `envconfig:"LOG_GROUP_ID"`
	LogLevel     string  `envconfig:"LOG_LEVEL"`
	StatsBaseURL string  `envconfig:"STATS_BASE_URL"`
	StorePath    string  `envconfig:"SUBSCRIBERS_PATH"`
	StoreDriver  string  `envconfig:"STORAGE_DRIVER"`
	RedisAddr    string  `envconfig:"REDIS_ADDR"`
	Timezone     string  `envconfig:"TZ_NAME"`
	ChatID1      string  `envconfig:"CHAT_ID_1"`
	ChatID2      string  `envconfig:"CHAT_ID_2"`
	ChatID3      string  `envconfig:"CHAT_ID_3"`
	ChatIDs      []int64 `envconfig:"CHAT_IDS"`
	Port         string  `envconfig:"PORT"`
	ExternalURL  string  `envconfig:"RENDER_EXTERNAL_URL"`
}

// LoadDotEnv loads variables from the given .env files (default ".env") into
// the process environment. Missing files are not an error; existing
// variables are never overwritten.
func LoadDotEnv(files ...string) {
	_ = godotenv.Load(files...)
}

// ApplyEnv overlays environment variables onto cfg.
func ApplyEnv(cfg *Config) error {
	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return fmt.Errorf("env: %w", err)
	}

	if v := strings.TrimSpace(env.BotToken); v != "" {
		cfg.Telegram.Token = v
	}
	if env.AdminGroupID != 0 {
		cfg.Telegram.AdminGroupID = env.AdminGroupID
	}
	if v := strings.TrimSpace(env.GroupLog); v != "" {
		cfg.Telegram.GroupLog = v
	}
	if v := strings.TrimSpace(env.LogLevel); v != "" {
		cfg.Logging.Level = v
	}
	if v := strings.TrimSpace(env.StatsBaseURL); v != "" {
		cfg.Stats.BaseURL = v
	}
	if v := strings.TrimSpace(env.StorePath); v != "" {
		cfg.Storage.Path = v
	}
	if v := strings.TrimSpace(env.StoreDriver); v != "" {
		cfg.Storage.Driver = v
	}
	if v := strings.TrimSpace(env.RedisAddr); v != "" {
		cfg.Storage.Addr = v
	}
	if v := strings.TrimSpace(env.Timezone); v != "" {
		cfg.Scheduler.Timezone = v
	}
	// CHAT_ID_n may be present but empty on hosted dashboards; skip those.
	for i, raw := range []string{env.ChatID1, env.ChatID2, env.ChatID3} {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("env: CHAT_ID_%d: %w", i+1, err)
		}
		cfg.Broadcast.ChatIDs = appendUnique(cfg.Broadcast.ChatIDs, id)
	}
	for _, id := range env.ChatIDs {
		if id != 0 {
			cfg.Broadcast.ChatIDs = appendUnique(cfg.Broadcast.ChatIDs, id)
		}
	}
	if v := strings.TrimSpace(env.Port); v != "" {
		cfg.HTTP.Addr = ":" + strings.TrimPrefix(v, ":")
	}
	if v := strings.TrimSpace(env.ExternalURL); v != "" {
		cfg.HTTP.ExternalURL = strings.TrimRight(v, "/")
	}
	return nil
}

func appendUnique(ids []int64, id int64) []int64 {
	for _, x := range ids {
		if x == id {
			return ids
		}
	}
	return append(ids, id)
}
