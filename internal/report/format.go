// Package report renders leaderboards into Telegram Markdown messages.
package report

import (
	"fmt"
	"strings"
	"time"

	"fleetbot/internal/stats"
)

const separator = "-----------------------------------\n"

// Config is fixed at construction.
type Config struct {
	Parks    string
	Contact  string
	Location *time.Location

	// Now overrides the clock (tests).
	Now func() time.Time
}

type Formatter struct {
	parks   string
	contact string
	loc     *time.Location
	now     func() time.Time
}

func New(cfg Config) *Formatter {
	f := &Formatter{
		parks:   strings.TrimSpace(cfg.Parks),
		contact: strings.TrimSpace(cfg.Contact),
		loc:     cfg.Location,
		now:     cfg.Now,
	}
	if f.loc == nil {
		f.loc = time.UTC
	}
	if f.now == nil {
		f.now = time.Now
	}
	return f
}

// Format renders rep for period p. It never fails: malformed numbers render
// as zero and a nil report renders an empty leaderboard.
func (f *Formatter) Format(rep *stats.Report, p stats.Period) string {
	if rep == nil {
		rep = &stats.Report{Period: p}
	}
	now := f.now().In(f.loc)

	var b strings.Builder
	b.WriteString("*🔝 Курьеров за ")
	b.WriteString(f.headerDate(now, p))
	b.WriteString("*\n")
	if f.parks != "" {
		fmt.Fprintf(&b, "*🏆Парки: %s🏆*\n", f.parks)
	}
	b.WriteString("\n")

	if !rep.WeeklyBonusSum.IsZero() {
		fmt.Fprintf(&b, "*Недельный бонус: %s₽ 😎*\n\n", rep.WeeklyBonusSum)
	}
	if !rep.MonthlyBonus.IsZero() {
		fmt.Fprintf(&b, "*Месячный бонус: %s🤑*\n\n", rep.MonthlyBonus)
	}

	for i, d := range rep.TopList {
		b.WriteString(Line(i+1, d))
		if i != len(rep.TopList)-1 {
			b.WriteString(separator)
		}
	}

	b.WriteString("\n")
	if f.contact != "" {
		fmt.Fprintf(&b, "*Хочешь попасть в этот топ и забрать бонус? Пиши %s*\n", f.contact)
	}
	return b.String()
}

// Line renders one leaderboard entry, newline terminated.
func Line(n int, d stats.DriverRecord) string {
	return fmt.Sprintf("%d. Т79.%s -%sз -%s ч -%s₽ -%d ₽/ч\n",
		n,
		d.DisplayID(),
		d.Orders.Decimal().String(),
		d.Hours.Decimal().StringFixed(1),
		d.Money.Decimal().String(),
		d.HourlyRate(),
	)
}

func (f *Formatter) headerDate(now time.Time, p stats.Period) string {
	switch p {
	case stats.Yesterday:
		return longDate(now.AddDate(0, 0, -1))
	case stats.Week:
		start, end := WeekRange(now)
		return fmt.Sprintf("неделю с %s по %s", shortDate(start), shortDate(end))
	default:
		return fmt.Sprintf("%s [%s]", longDate(now), now.Format("15:04"))
	}
}

// WeekRange returns the Monday and Sunday of the week containing t.
func WeekRange(t time.Time) (time.Time, time.Time) {
	offset := (int(t.Weekday()) + 6) % 7
	y, m, d := t.Date()
	start := time.Date(y, m, d-offset, 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 0, 6)
}

var monthsGenitive = [...]string{
	"января", "февраля", "марта", "апреля", "мая", "июня",
	"июля", "августа", "сентября", "октября", "ноября", "декабря",
}

func monthName(m time.Month) string {
	if m < time.January || m > time.December {
		return ""
	}
	return monthsGenitive[m-1]
}

func shortDate(t time.Time) string {
	return fmt.Sprintf("%d %s", t.Day(), monthName(t.Month()))
}

func longDate(t time.Time) string {
	return fmt.Sprintf("%d %s %d", t.Day(), monthName(t.Month()), t.Year())
}
