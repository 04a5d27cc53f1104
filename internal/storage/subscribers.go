package storage

import (
	"context"
	"sync"

	logx "fleetbot/pkg/logx"
)

// Subscribers implements idempotent subscribe/unsubscribe on top of a Store.
// Every operation reloads the set first, so external edits and restarts are
// always observed.
type Subscribers struct {
	store Store
	log   logx.Logger

	// mu serializes read-modify-write cycles within this process.
	mu sync.Mutex
}

func NewSubscribers(store Store, log logx.Logger) *Subscribers {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Subscribers{store: store, log: log}
}

func (s *Subscribers) Load(ctx context.Context) []int64 { return s.store.Load(ctx) }

func (s *Subscribers) Save(ctx context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Save(ctx, ids)
}

// Subscribe adds id. added is false when id was already subscribed.
func (s *Subscribers) Subscribe(ctx context.Context, id int64) (added bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.store.Load(ctx)
	for _, x := range ids {
		if x == id {
			return false, nil
		}
	}
	if err := s.store.Save(ctx, append(ids, id)); err != nil {
		return false, err
	}
	s.log.Info("chat subscribed", logx.Int64("chat_id", id), logx.Int("total", len(ids)+1))
	return true, nil
}

// Unsubscribe removes id. removed is false when id was not subscribed; the
// set is left untouched in that case.
func (s *Subscribers) Unsubscribe(ctx context.Context, id int64) (removed bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.store.Load(ctx)
	out := make([]int64, 0, len(ids))
	for _, x := range ids {
		if x == id {
			removed = true
			continue
		}
		out = append(out, x)
	}
	if !removed {
		return false, nil
	}
	if err := s.store.Save(ctx, out); err != nil {
		return false, err
	}
	s.log.Info("chat unsubscribed", logx.Int64("chat_id", id), logx.Int("total", len(out)))
	return true, nil
}

func (s *Subscribers) Close() error { return s.store.Close() }
