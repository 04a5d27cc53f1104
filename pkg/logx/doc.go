// Package logx configures fleetbot's structured logging.
//
// The bot uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Optional Telegram sink (min-level + rate limiting)
//
// Timestamps are rendered in the configured report timezone so that log lines
// line up with the schedule table operators reason about.
package logx
