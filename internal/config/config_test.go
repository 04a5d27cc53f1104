package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"BOT_TOKEN", "ADMIN_GROUP_ID", "LOG_GROUP_ID", "LOG_LEVEL", "STATS_BASE_URL",
		"SUBSCRIBERS_PATH", "STORAGE_DRIVER", "REDIS_ADDR", "TZ_NAME",
		"CHAT_ID_1", "CHAT_ID_2", "CHAT_ID_3", "CHAT_IDS", "PORT", "RENDER_EXTERNAL_URL",
	} {
		t.Setenv(k, "")
		_ = os.Unsetenv(k)
	}
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestParseMissingTokenIsFatal(t *testing.T) {
	clearEnv(t)
	_, err := NewManager(filepath.Join(t.TempDir(), "absent.yaml")).Parse()
	if !errors.Is(err, ErrMissingToken) {
		t.Fatalf("err = %v, want ErrMissingToken", err)
	}
}

func TestParseEnvOnlyAppliesDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("CHAT_ID_1", "-1001")
	t.Setenv("CHAT_ID_3", "42")
	t.Setenv("CHAT_IDS", "42,7")
	t.Setenv("PORT", "8080")
	t.Setenv("RENDER_EXTERNAL_URL", "https://bot.example.com/")

	cfg, err := NewManager("").Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	if want := []int64{-1001, 42, 7}; !reflect.DeepEqual(cfg.Broadcast.ChatIDs, want) {
		t.Fatalf("chat ids = %v, want %v", cfg.Broadcast.ChatIDs, want)
	}
	if cfg.HTTP.Addr != ":8080" || cfg.HTTP.ExternalURL != "https://bot.example.com" {
		t.Fatalf("http = %+v", cfg.HTTP)
	}
	if cfg.Scheduler.Timezone != DefaultTimezone || !cfg.Scheduler.Enabled {
		t.Fatalf("scheduler = %+v", cfg.Scheduler)
	}
	if !reflect.DeepEqual(cfg.Scheduler.Entries, DefaultEntries) {
		t.Fatalf("entries = %v", cfg.Scheduler.Entries)
	}
	if cfg.Stats.BaseURL != DefaultStatsBaseURL || cfg.Stats.MonthlyPath != DefaultMonthlyPath {
		t.Fatalf("stats = %+v", cfg.Stats)
	}
	if cfg.Storage.Driver != "file" || cfg.Storage.Path != DefaultStorePath {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
}

func TestParseYAMLFileWithEnvOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("BOT_TOKEN", "from-env")
	path := writeFile(t, "config.yaml", `
telegram:
  token: from-file
  admin_group_id: -1002353039022
logging:
  level: debug
  console: true
stats:
  base_url: http://stats.local
  monthly_path: "-"
scheduler:
  enabled: true
  timezone: Europe/Moscow
  entries: ["09:30 today"]
storage:
  driver: sqlite
  path: ./data/subs.db
`)
	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Telegram.Token != "from-env" {
		t.Fatalf("env should win, token = %q", cfg.Telegram.Token)
	}
	if cfg.Telegram.AdminGroupID != -1002353039022 {
		t.Fatalf("admin group = %d", cfg.Telegram.AdminGroupID)
	}
	if cfg.Stats.MonthlyPath != "" {
		t.Fatalf("monthly path should be disabled, got %q", cfg.Stats.MonthlyPath)
	}
	if !reflect.DeepEqual(cfg.Scheduler.Entries, []string{"09:30 today"}) {
		t.Fatalf("entries = %v", cfg.Scheduler.Entries)
	}
	if cfg.Storage.Driver != "sqlite" {
		t.Fatalf("driver = %q", cfg.Storage.Driver)
	}
	// Sections omitted from the file keep their defaults.
	if !cfg.HTTP.Enabled {
		t.Fatal("http should stay enabled by default")
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "config.json", `{"telegram":{"token":"x"},"reports":{}}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("expected unknown field error")
	}
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	base := func() *Config {
		c := Default()
		c.Telegram.Token = "t"
		ApplyDefaults(c)
		return c
	}
	tests := []struct {
		name   string
		mutate func(c *Config)
		ok     bool
	}{
		{name: "defaults", mutate: func(c *Config) {}, ok: true},
		{name: "bad timezone", mutate: func(c *Config) { c.Scheduler.Timezone = "Mars/Olympus" }},
		{name: "bad duration", mutate: func(c *Config) { c.Stats.Timeout = "soon" }},
		{name: "bad level", mutate: func(c *Config) { c.Logging.Level = "loud" }},
		{name: "redis without addr", mutate: func(c *Config) { c.Storage.Driver = "redis" }},
		{name: "redis with addr", mutate: func(c *Config) { c.Storage.Driver = "redis"; c.Storage.Addr = "localhost:6379" }, ok: true},
		{name: "unknown driver", mutate: func(c *Config) { c.Storage.Driver = "etcd" }},
		{name: "top path without period", mutate: func(c *Config) { c.Stats.TopPath = "/top" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			err := Validate(c)
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok && err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestSummarizeChangeHidesSecrets(t *testing.T) {
	t.Parallel()
	a := Default()
	b := Default()
	b.Telegram.Token = "secret"
	b.Logging.Level = "debug"

	sections, _ := SummarizeChange(a, b)
	if !reflect.DeepEqual(sections, []string{"telegram", "logging"}) {
		t.Fatalf("sections = %v", sections)
	}
	if !RestartRequired(sections) {
		t.Fatal("telegram change requires restart")
	}
	if RestartRequired([]string{"logging", "broadcast"}) {
		t.Fatal("logging and broadcast changes are live")
	}
}
