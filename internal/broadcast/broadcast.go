// Package broadcast fans a message out to many chats.
//
// Delivery is best-effort and at-most-once per recipient. A failing
// recipient is logged and collected; it never stops delivery to the others.
package broadcast

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	kit "fleetbot/internal/transport"
	logx "fleetbot/pkg/logx"
)

var errPanic = errors.New("broadcast: send panicked")

type Config struct {
	Workers    int
	RatePerSec int
}

// Result summarizes one broadcast after every send has finished.
type Result struct {
	ID       string
	Name     string
	Total    int
	Sent     int
	Failures []kit.ChatTarget
	Duration time.Duration
}

func (r Result) Failed() int { return len(r.Failures) }

type Service struct {
	mu      sync.Mutex
	cfg     Config
	sender  kit.Sender
	limiter *rate.Limiter
	log     logx.Logger

	lastMu sync.RWMutex
	last   *Result
}

func New(cfg Config, sender kit.Sender, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{sender: sender, log: log}
	s.Apply(cfg)
	return s
}

func (s *Service) Apply(cfg Config) {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 10
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Broadcast sends text to every target and blocks until all attempts are done.
func (s *Service) Broadcast(ctx context.Context, name string, targets []kit.ChatTarget, text string, opt *kit.SendOptions) Result {
	s.mu.Lock()
	workers := s.cfg.Workers
	lim := s.limiter
	sender := s.sender
	s.mu.Unlock()

	start := time.Now()
	res := Result{ID: "bc:" + uuid.NewString(), Name: name, Total: len(targets)}
	log := s.log.With(logx.String("job", res.ID), logx.String("name", name))
	log.Info("broadcast job started", logx.Int("total", len(targets)), logx.Int("workers", workers))

	if workers > len(targets) {
		workers = len(targets)
	}
	failed := make([]bool, len(targets))
	idx := make(chan int)

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(w int) {
			defer wg.Done()
			for i := range idx {
				if err := s.sendOne(ctx, sender, lim, targets[i], text, opt, w); err != nil {
					failed[i] = true
					log.Warn("broadcast send failed",
						logx.Int64("chat_id", targets[i].ChatID),
						logx.Int("thread_id", targets[i].ThreadID),
						logx.Err(err),
					)
				}
			}
		}(w)
	}
	for i := range targets {
		idx <- i
	}
	close(idx)
	wg.Wait()

	for i, f := range failed {
		if f {
			res.Failures = append(res.Failures, targets[i])
		}
	}
	res.Sent = res.Total - len(res.Failures)
	res.Duration = time.Since(start)

	fields := []logx.Field{
		logx.Int("total", res.Total),
		logx.Int("sent", res.Sent),
		logx.Int("failed", res.Failed()),
		logx.Duration("dur", res.Duration),
	}
	if res.Failed() > 0 {
		ids := make([]int64, 0, len(res.Failures))
		for _, t := range res.Failures {
			ids = append(ids, t.ChatID)
		}
		log.Warn("broadcast job finished with failures", append(fields, logx.Int64s("failed_chats", ids))...)
	} else {
		log.Info("broadcast job finished", fields...)
	}

	s.lastMu.Lock()
	cp := res
	s.last = &cp
	s.lastMu.Unlock()
	return res
}

// Last returns the most recent broadcast result.
func (s *Service) Last() (Result, bool) {
	s.lastMu.RLock()
	defer s.lastMu.RUnlock()
	if s.last == nil {
		return Result{}, false
	}
	return *s.last, true
}

func (s *Service) sendOne(ctx context.Context, sender kit.Sender, lim *rate.Limiter, t kit.ChatTarget, text string, opt *kit.SendOptions, worker int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic in broadcast send", logx.Int("worker", worker), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			err = errPanic
		}
	}()
	if lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return err
		}
	}
	_, err = sender.SendText(ctx, t, text, opt)
	return err
}
