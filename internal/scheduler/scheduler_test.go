package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"fleetbot/internal/stats"
	logx "fleetbot/pkg/logx"
)

func mustMoscow(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Moscow")
	if err != nil {
		t.Fatalf("load tz: %v", err)
	}
	return loc
}

func TestParseEntry(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw     string
		want    Entry
		wantErr bool
	}{
		{raw: "09:00 today", want: Entry{Hour: 9, Minute: 0, Period: stats.Today}},
		{raw: " 8:05   Yesterday ", want: Entry{Hour: 8, Minute: 5, Period: stats.Yesterday}},
		{raw: "23:59 week", want: Entry{Hour: 23, Minute: 59, Period: stats.Week}},
		{raw: "24:00 today", wantErr: true},
		{raw: "12:60 today", wantErr: true},
		{raw: "12:00", wantErr: true},
		{raw: "12:00 month", wantErr: true},
		{raw: "noon today", wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseEntry(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseEntry(%q) expected error, got %+v", tt.raw, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseEntry(%q) error: %v", tt.raw, err)
			}
			if got != tt.want {
				t.Fatalf("ParseEntry(%q) = %+v, want %+v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestParseEntriesRejectsDuplicates(t *testing.T) {
	t.Parallel()
	if _, err := ParseEntries([]string{"09:00 today", "9:00 today"}); err == nil {
		t.Fatal("expected duplicate error")
	}
	got, err := ParseEntries([]string{"09:00 today", "09:00 week"})
	if err != nil || len(got) != 2 {
		t.Fatalf("ParseEntries = %v, %v", got, err)
	}
}

func TestEntrySpec(t *testing.T) {
	t.Parallel()
	e := Entry{Hour: 17, Minute: 30, Period: stats.Today}
	if got := e.Spec(); got != "30 17 * * *" {
		t.Fatalf("Spec = %q", got)
	}
}

func TestGuardFiresOncePerDay(t *testing.T) {
	t.Parallel()
	loc := mustMoscow(t)
	g := newFiredGuard()
	e := Entry{Hour: 9, Minute: 0, Period: stats.Today}

	at := time.Date(2024, 5, 6, 9, 0, 0, 0, loc)
	if !g.tryFire(e, at) {
		t.Fatal("first matching tick must fire")
	}
	if g.tryFire(e, at.Add(20*time.Second)) {
		t.Fatal("second tick in the same minute must not fire")
	}
	if g.tryFire(e, at.Add(time.Minute)) {
		t.Fatal("non-matching minute must not fire")
	}
	if !g.tryFire(e, at.AddDate(0, 0, 1)) {
		t.Fatal("next day must fire again")
	}
}

func TestGuardRequiresHourAndMinute(t *testing.T) {
	t.Parallel()
	loc := mustMoscow(t)
	g := newFiredGuard()
	e := Entry{Hour: 13, Minute: 0, Period: stats.Today}

	if g.tryFire(e, time.Date(2024, 5, 6, 14, 0, 0, 0, loc)) {
		t.Fatal("minute match with wrong hour fired")
	}
	if g.tryFire(e, time.Date(2024, 5, 6, 13, 1, 0, 0, loc)) {
		t.Fatal("hour match with wrong minute fired")
	}
	// Entries sharing a time but differing in period are independent.
	other := Entry{Hour: 13, Minute: 0, Period: stats.Week}
	at := time.Date(2024, 5, 6, 13, 0, 0, 0, loc)
	if !g.tryFire(e, at) || !g.tryFire(other, at) {
		t.Fatal("both entries must fire once")
	}
}

func TestFireUsesConfiguredZone(t *testing.T) {
	t.Parallel()
	loc := mustMoscow(t)
	// 06:00 UTC is 09:00 in Moscow.
	clock := time.Date(2024, 5, 6, 6, 0, 5, 0, time.UTC)

	var mu sync.Mutex
	var got []stats.Period
	s := New(Config{
		Location: loc,
		Entries:  []Entry{{Hour: 9, Minute: 0, Period: stats.Today}},
		Now:      func() time.Time { return clock },
	}, func(_ context.Context, p stats.Period) {
		mu.Lock()
		got = append(got, p)
		mu.Unlock()
	}, logx.Nop())

	s.fire(context.Background(), s.entries[0])
	s.fire(context.Background(), s.entries[0])

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != stats.Today {
		t.Fatalf("job calls = %v, want [today]", got)
	}
}

func TestUpcoming(t *testing.T) {
	t.Parallel()
	loc := mustMoscow(t)
	s := New(Config{
		Location: loc,
		Entries: []Entry{
			{Hour: 8, Minute: 0, Period: stats.Yesterday},
			{Hour: 21, Minute: 0, Period: stats.Today},
		},
	}, nil, logx.Nop())

	now := time.Date(2024, 5, 6, 9, 30, 0, 0, loc)
	next := s.Upcoming(now)
	if len(next) != 2 {
		t.Fatalf("Upcoming len = %d", len(next))
	}
	if want := time.Date(2024, 5, 7, 8, 0, 0, 0, loc); !next[0].Equal(want) {
		t.Fatalf("next[0] = %v, want %v", next[0], want)
	}
	if want := time.Date(2024, 5, 6, 21, 0, 0, 0, loc); !next[1].Equal(want) {
		t.Fatalf("next[1] = %v, want %v", next[1], want)
	}
	if got := s.previewNextLocked(now, 1); got != "2024-05-06 21:00 today" {
		t.Fatalf("preview = %q", got)
	}
}

func TestStartStop(t *testing.T) {
	t.Parallel()
	s := New(Config{Location: time.UTC, Entries: []Entry{{Hour: 3, Minute: 0, Period: stats.Week}}}, nil, logx.Nop())
	if err := s.AddInterval("ping", 0, func(context.Context) {}); err == nil {
		t.Fatal("expected error for zero interval")
	}
	if err := s.AddInterval("ping", time.Hour, func(context.Context) {}); err != nil {
		t.Fatalf("AddInterval: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.AddInterval("late", time.Hour, func(context.Context) {}); err == nil {
		t.Fatal("AddInterval after Start must fail")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
	s.Stop(ctx)
}
