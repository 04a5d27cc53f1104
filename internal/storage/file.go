package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "fleetbot/pkg/logx"
)

// fallbackDir is used when the configured data directory cannot be created
// (read-only project dir on some PaaS images).
const fallbackDir = "fleet-bot-data"

type document struct {
	Subscribers []int64 `json:"subscribers"`
}

// fileStore keeps the subscriber set in one JSON document.
// Writes go to <path>.tmp and are renamed over the document, so readers
// never observe a partially written file.
type fileStore struct {
	log  logx.Logger
	path string

	mu     sync.Mutex
	closed bool
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		alt := filepath.Join(os.TempDir(), fallbackDir, filepath.Base(path))
		log.Warn("data dir not writable; using temp dir",
			logx.String("path", path), logx.String("fallback", alt), logx.Any("err", err))
		if err2 := os.MkdirAll(filepath.Dir(alt), 0o755); err2 != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		path = alt
	}

	s := &fileStore{log: log, path: path}

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := s.write(nil); err != nil {
			// Load keeps failing soft until a later Save succeeds.
			log.Error("subscriber file init failed", logx.String("path", path), logx.Any("err", err))
		} else {
			log.Info("subscriber file created", logx.String("path", path))
		}
	}
	return s, nil
}

func (s *fileStore) Load(ctx context.Context) []int64 {
	_ = ctx
	b, err := os.ReadFile(s.path)
	if err != nil {
		s.log.Warn("subscriber file read failed; using empty set", logx.String("path", s.path), logx.Any("err", err))
		return []int64{}
	}
	var doc document
	if err := json.Unmarshal(b, &doc); err != nil {
		s.log.Warn("subscriber file parse failed; using empty set", logx.String("path", s.path), logx.Any("err", err))
		return []int64{}
	}
	return normalize(doc.Subscribers)
}

func (s *fileStore) Save(ctx context.Context, ids []int64) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := s.write(normalize(ids)); err != nil {
		s.log.Error("subscriber file save failed", logx.String("path", s.path), logx.Any("err", err))
		return err
	}
	return nil
}

func (s *fileStore) write(ids []int64) error {
	if ids == nil {
		ids = []int64{}
	}
	b, err := json.MarshalIndent(document{Subscribers: ids}, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
