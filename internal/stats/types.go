package stats

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Period is the reporting window of a leaderboard.
type Period string

const (
	Today     Period = "today"
	Yesterday Period = "yesterday"
	Week      Period = "week"
)

func (p Period) Valid() bool {
	switch p {
	case Today, Yesterday, Week:
		return true
	}
	return false
}

// Daily reports whether p is a single-day period.
func (p Period) Daily() bool { return p == Today || p == Yesterday }

func ParsePeriod(s string) (Period, error) {
	p := Period(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("unknown period %q", s)
	}
	return p, nil
}

// Number is an upstream numeric field kept as its literal text.
// The API emits numbers both as JSON numbers and as strings (hours use a
// comma decimal separator), so decoding never fails on either form.
type Number string

func (n *Number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*n = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*n = Number(strings.TrimSpace(s))
		return nil
	}
	*n = Number(b)
	return nil
}

func (n Number) MarshalJSON() ([]byte, error) { return json.Marshal(string(n)) }

func (n Number) IsZero() bool { return strings.TrimSpace(string(n)) == "" }

// Decimal parses n, accepting a comma as decimal separator.
// Anything unparsable is zero.
func (n Number) Decimal() decimal.Decimal {
	s := strings.ReplaceAll(strings.TrimSpace(string(n)), ",", ".")
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// DriverRecord is one leaderboard entry.
type DriverRecord struct {
	Phone  string `json:"phone"`
	Hours  Number `json:"hours"`
	Money  Number `json:"money"`
	Orders Number `json:"orders"`
}

// DisplayID is the last five characters of the phone number.
func (d DriverRecord) DisplayID() string {
	r := []rune(strings.TrimSpace(d.Phone))
	if len(r) > 5 {
		r = r[len(r)-5:]
	}
	return string(r)
}

// HourlyRate is round(money / hours), or zero when hours is not positive.
func (d DriverRecord) HourlyRate() int64 {
	hours := d.Hours.Decimal()
	if !hours.IsPositive() {
		return 0
	}
	return d.Money.Decimal().Div(hours).Round(0).IntPart()
}

// Report is a merged leaderboard for one period. Bonus figures are rendered
// verbatim; empty means the upstream did not provide one.
type Report struct {
	Period         Period         `json:"period"`
	TopList        []DriverRecord `json:"topList"`
	WeeklyBonusSum Number         `json:"weeklyBonusSum,omitempty"`
	MonthlyBonus   Number         `json:"monthlyBonus,omitempty"`
}

// payload is the object form of an upstream response.
type payload struct {
	TopList        []DriverRecord `json:"topList"`
	WeeklyBonusSum Number         `json:"weeklyBonusSum"`
	MonthlyBonus   Number         `json:"monthlyBonus"`
}

// decodePayload accepts both deployment variants: a bare array of records or
// an object carrying topList and bonus fields. It returns the detected shape.
func decodePayload(body []byte) (payload, string, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return payload{}, "", fmt.Errorf("empty body")
	}
	if trimmed[0] == '[' {
		var list []DriverRecord
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return payload{}, "array", err
		}
		return payload{TopList: list}, "array", nil
	}
	var p payload
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return payload{}, "object", err
	}
	return p, "object", nil
}
