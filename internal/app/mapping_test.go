package app

import (
	"testing"
	"time"

	"fleetbot/internal/config"
	"fleetbot/internal/health"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Telegram.Token = "123:abc"
	config.ApplyDefaults(cfg)
	return cfg
}

func TestMapStorageConfig(t *testing.T) {
	t.Parallel()
	tests := []struct {
		driver string
		want   string
		ok     bool
	}{
		{"", "file", true},
		{"FILE", "file", true},
		{"sqlite3", "sqlite", true},
		{"redis", "redis", true},
		{"mongo", "", false},
	}
	for _, tt := range tests {
		cfg := testConfig()
		cfg.Storage.Driver = tt.driver
		sc, err := mapStorageConfig(cfg)
		if tt.ok != (err == nil) {
			t.Fatalf("driver %q: err = %v", tt.driver, err)
		}
		if sc.Driver != tt.want {
			t.Fatalf("driver %q mapped to %q, want %q", tt.driver, sc.Driver, tt.want)
		}
	}
}

func TestMapSqliteBusyTimeoutDefault(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Storage.Driver = "sqlite"
	sc, err := mapStorageConfig(cfg)
	if err != nil || sc.BusyTimeout != time.Second {
		t.Fatalf("busy timeout = %v, err = %v", sc.BusyTimeout, err)
	}
}

func TestMapSchedulerConfig(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	loc := time.UTC

	sc, err := mapSchedulerConfig(cfg, loc)
	if err != nil {
		t.Fatalf("mapSchedulerConfig: %v", err)
	}
	if len(sc.Entries) != len(config.DefaultEntries) {
		t.Fatalf("entries = %d", len(sc.Entries))
	}

	cfg.Scheduler.Enabled = false
	sc, err = mapSchedulerConfig(cfg, loc)
	if err != nil || len(sc.Entries) != 0 || sc.Location != loc {
		t.Fatalf("disabled scheduler = %+v, %v", sc, err)
	}

	cfg.Scheduler.Enabled = true
	cfg.Scheduler.Entries = []string{"25:00 today"}
	if _, err := mapSchedulerConfig(cfg, loc); err == nil {
		t.Fatal("expected error for invalid entry")
	}
}

func TestKeepAliveEvery(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	if d, _ := keepAliveEvery(cfg); d != 0 {
		t.Fatalf("no external url: every = %v", d)
	}

	cfg.HTTP.ExternalURL = "https://fleetbot.example.com"
	if d, _ := keepAliveEvery(cfg); d != health.DefaultKeepAliveEvery {
		t.Fatalf("default every = %v", d)
	}

	cfg.HTTP.KeepAliveEvery = "45s"
	if d, _ := keepAliveEvery(cfg); d != 45*time.Second {
		t.Fatalf("every = %v", d)
	}

	cfg.HTTP.Enabled = false
	if d, _ := keepAliveEvery(cfg); d != 0 {
		t.Fatalf("http disabled: every = %v", d)
	}
}

func TestLogTarget(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	if got := logTarget(cfg); got != 0 {
		t.Fatalf("empty target = %d", got)
	}
	cfg.Telegram.GroupLog = " -100123 "
	if got := logTarget(cfg); got != -100123 {
		t.Fatalf("target = %d", got)
	}
	cfg.Telegram.GroupLog = "logs"
	if got := logTarget(cfg); got != 0 {
		t.Fatalf("invalid target = %d", got)
	}
}
