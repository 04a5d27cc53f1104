// Package scheduler fires report jobs at fixed wall-clock times in one zone.
//
// Each entry fires at most once per calendar day. Missed slots (process
// down, clock jump) are not replayed.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"fleetbot/internal/stats"
	logx "fleetbot/pkg/logx"
)

// Job runs one scheduled report. Fetch failures are the job's to log.
type Job func(ctx context.Context, p stats.Period)

type Config struct {
	Location *time.Location
	Entries  []Entry

	// Now overrides the clock (tests).
	Now func() time.Time
}

type interval struct {
	name  string
	every time.Duration
	run   func(ctx context.Context)
}

type Service struct {
	mu sync.Mutex

	log     logx.Logger
	loc     *time.Location
	now     func() time.Time
	parser  cron.Parser
	entries []Entry
	extra   []interval
	job     Job
	guard   *firedGuard

	c      *cron.Cron
	cancel context.CancelFunc
}

func New(cfg Config, job Job, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		log:     log,
		loc:     loc,
		now:     now,
		parser:  cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		entries: append([]Entry(nil), cfg.Entries...),
		job:     job,
		guard:   newFiredGuard(),
	}
}

// AddInterval registers a background task run every d. Must be called before Start.
func (s *Service) AddInterval(name string, every time.Duration, run func(ctx context.Context)) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("name required")
	}
	if every <= 0 {
		return fmt.Errorf("interval %q: non-positive period %s", name, every)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return errors.New("scheduler already started")
	}
	s.extra = append(s.extra, interval{name: name, every: every, run: run})
	return nil
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	cl := cronLogger{log: s.log}
	c := cron.New(
		cron.WithParser(s.parser),
		cron.WithLocation(s.loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	for _, e := range s.entries {
		e := e
		if _, err := c.AddFunc(e.Spec(), func() { s.fire(runCtx, e) }); err != nil {
			cancel()
			return fmt.Errorf("schedule %s: %w", e, err)
		}
	}
	for _, iv := range s.extra {
		iv := iv
		spec := "@every " + iv.every.String()
		if _, err := c.AddFunc(spec, func() { iv.run(runCtx) }); err != nil {
			cancel()
			return fmt.Errorf("interval %s: %w", iv.name, err)
		}
	}

	s.c = c
	s.cancel = cancel
	c.Start()

	fields := []logx.Field{logx.String("tz", s.loc.String()), logx.Int("entries", len(s.entries)), logx.Int("intervals", len(s.extra))}
	if next := s.previewNextLocked(s.now(), 3); next != "" {
		fields = append(fields, logx.String("next", next))
	}
	s.log.Info("scheduler started", fields...)
	return nil
}

// Stop halts triggering and waits for running jobs until ctx expires, then
// cancels them.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c, cancel := s.c, s.cancel
	s.c, s.cancel = nil, nil
	s.mu.Unlock()
	if c == nil {
		return
	}

	done := c.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out, cancelling running jobs")
	}
	cancel()
	s.log.Info("scheduler stopped")
}

func (s *Service) fire(ctx context.Context, e Entry) {
	at := s.now().In(s.loc)
	if !s.guard.tryFire(e, at) {
		s.log.Debug("schedule trigger skipped", logx.String("entry", e.Key()), logx.Time("at", at))
		return
	}
	log := s.log.With(logx.String("entry", e.Key()))
	log.Info("scheduled report firing", logx.String("period", string(e.Period)))
	start := time.Now()
	if s.job != nil {
		s.job(ctx, e.Period)
	}
	log.Debug("scheduled report done", logx.Duration("took", time.Since(start)))
}

// Upcoming returns the next fire time of every entry after now, in entry order.
func (s *Service) Upcoming(now time.Time) []time.Time {
	out := make([]time.Time, 0, len(s.entries))
	for _, e := range s.entries {
		sched, err := s.parser.Parse(e.Spec())
		if err != nil {
			out = append(out, time.Time{})
			continue
		}
		out = append(out, sched.Next(now.In(s.loc)))
	}
	return out
}

func (s *Service) previewNextLocked(now time.Time, n int) string {
	next := s.Upcoming(now)
	if len(next) == 0 {
		return ""
	}
	type slot struct {
		at time.Time
		e  Entry
	}
	slots := make([]slot, 0, len(next))
	for i, t := range next {
		if !t.IsZero() {
			slots = append(slots, slot{at: t, e: s.entries[i]})
		}
	}
	for i := 1; i < len(slots); i++ {
		for j := i; j > 0 && slots[j].at.Before(slots[j-1].at); j-- {
			slots[j], slots[j-1] = slots[j-1], slots[j]
		}
	}
	if len(slots) > n {
		slots = slots[:n]
	}
	parts := make([]string, 0, len(slots))
	for _, sl := range slots {
		parts = append(parts, sl.at.Format("2006-01-02 15:04")+" "+string(sl.e.Period))
	}
	return strings.Join(parts, ", ")
}

// firedGuard remembers the last calendar day each entry fired.
type firedGuard struct {
	mu   sync.Mutex
	last map[string]string
}

func newFiredGuard() *firedGuard { return &firedGuard{last: map[string]string{}} }

// tryFire reports whether e may fire at t: t must fall in e's minute and e
// must not have fired yet on t's date.
func (g *firedGuard) tryFire(e Entry, t time.Time) bool {
	if !e.Matches(t) {
		return false
	}
	day := t.Format("2006-01-02")
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.last[e.Key()] == day {
		return false
	}
	g.last[e.Key()] = day
	return true
}

// cronLogger routes robfig/cron diagnostics through logx.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(kvFields(keysAndValues), logx.Err(err))...)
}

func kvFields(kv []interface{}) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			k = fmt.Sprint(kv[i])
		}
		out = append(out, logx.Any(k, kv[i+1]))
	}
	return out
}
