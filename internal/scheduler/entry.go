package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"fleetbot/internal/stats"
)

// Entry is one daily trigger: a wall-clock time in the scheduler zone and
// the report period it sends.
type Entry struct {
	Hour   int
	Minute int
	Period stats.Period
}

// ParseEntry parses "HH:MM period", e.g. "09:00 today".
func ParseEntry(s string) (Entry, error) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return Entry{}, fmt.Errorf("invalid schedule entry %q, expected \"HH:MM period\"", s)
	}
	h, m, err := parseHHMM(fields[0])
	if err != nil {
		return Entry{}, err
	}
	p, err := stats.ParsePeriod(fields[1])
	if err != nil {
		return Entry{}, fmt.Errorf("schedule entry %q: %w", s, err)
	}
	return Entry{Hour: h, Minute: m, Period: p}, nil
}

// ParseEntries parses every entry and rejects duplicates.
func ParseEntries(raw []string) ([]Entry, error) {
	out := make([]Entry, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, r := range raw {
		e, err := ParseEntry(r)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[e.Key()]; dup {
			return nil, fmt.Errorf("duplicate schedule entry %q", e.Key())
		}
		seen[e.Key()] = struct{}{}
		out = append(out, e)
	}
	return out, nil
}

// Spec is the five-field cron expression for e.
func (e Entry) Spec() string { return fmt.Sprintf("%d %d * * *", e.Minute, e.Hour) }

func (e Entry) Key() string { return fmt.Sprintf("%02d:%02d %s", e.Hour, e.Minute, e.Period) }

func (e Entry) String() string { return e.Key() }

// Matches reports whether t (already in the scheduler zone) falls in e's minute.
func (e Entry) Matches(t time.Time) bool {
	return t.Hour() == e.Hour && t.Minute() == e.Minute
}

func parseHHMM(s string) (hour int, minute int, err error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}
