package config

import "errors"

// ErrMissingToken is returned when no bot credential is configured.
// It is the only configuration error that halts startup unconditionally.
var ErrMissingToken = errors.New("telegram.token (BOT_TOKEN) is required")

type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Stats     StatsConfig     `json:"stats"`
	Report    ReportConfig    `json:"report"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Broadcast BroadcastConfig `json:"broadcast"`
	Storage   StorageConfig   `json:"storage"`
	HTTP      HTTPConfig      `json:"http"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// AdminGroupID is the one group chat where report commands are limited
	// to administrators. 0 disables the restriction.
	AdminGroupID int64  `json:"admin_group_id,omitempty"`
	GroupLog     string `json:"group_log,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
	// RegisterCommands publishes the command menu via setMyCommands on start.
	RegisterCommands bool `json:"register_commands,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StatsConfig points at the remote statistics API.
//
// TopPath must contain "{period}", which is replaced with today/yesterday/week.
// An empty MonthlyPath drops the monthly bonus request entirely.
type StatsConfig struct {
	BaseURL     string `json:"base_url"`
	TopPath     string `json:"top_path,omitempty"`
	WeekPath    string `json:"week_path,omitempty"`
	MonthlyPath string `json:"monthly_path,omitempty"`
	// Timeout is a Go duration string; "0s" or empty leaves the transport default.
	Timeout string `json:"timeout,omitempty"`
}

type ReportConfig struct {
	Parks   string `json:"parks,omitempty"`
	Contact string `json:"contact,omitempty"`
}

// SchedulerConfig holds the fixed daily trigger table.
//
// Each entry is "HH:MM period", e.g. "09:00 today" or "08:00 yesterday".
type SchedulerConfig struct {
	Enabled  bool     `json:"enabled"`
	Timezone string   `json:"timezone,omitempty"`
	Entries  []string `json:"entries,omitempty"`
}

// BroadcastConfig controls scheduled report fan-out.
//
// ChatIDs are always included in scheduled broadcasts, next to store subscribers.
type BroadcastConfig struct {
	ChatIDs    []int64 `json:"chat_ids,omitempty"`
	Workers    int     `json:"workers,omitempty"`
	RatePerSec int     `json:"rate_per_sec,omitempty"`
}

// StorageConfig selects the subscriber store.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./data/subscribers.json" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)

	// redis driver
	Addr     string `json:"addr,omitempty"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db,omitempty"`
	Key      string `json:"key,omitempty"`
}

// HTTPConfig controls the liveness endpoint and the self-ping keep-alive.
type HTTPConfig struct {
	Enabled     bool   `json:"enabled"`
	Addr        string `json:"addr,omitempty"`
	ExternalURL string `json:"external_url,omitempty"`
	// KeepAliveEvery is a Go duration string; empty means 2m when ExternalURL is set.
	KeepAliveEvery string `json:"keepalive_every,omitempty"`
	// Pprof mounts net/http/pprof under /debug on the same listener.
	Pprof bool `json:"pprof,omitempty"`
}
