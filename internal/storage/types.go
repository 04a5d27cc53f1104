package storage

import (
	"context"
	"errors"
	"time"
)

var ErrClosed = errors.New("storage closed")

// Config configures storage.
//
// Driver values:
//   - "file" (default): JSON document at Path
//   - "sqlite": SQLite database file at Path
//   - "redis": Redis set under Key at Addr
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default

	Addr     string
	Password string
	DB       int
	Key      string
}

// Store is the persistence contract for the subscriber set.
//
// Load fails soft: read or decode errors are logged and reported as an empty
// set. Save replaces the whole set; on failure the previously persisted set
// stays intact.
type Store interface {
	Load(ctx context.Context) []int64
	Save(ctx context.Context, ids []int64) error
	Close() error
}
