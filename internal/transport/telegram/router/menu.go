package router

import (
	"strconv"
	"strings"
	"sync/atomic"
	"time"
	"unicode"
)

// sanitizeTelegramCommand converts a name into a Telegram-safe bot command.
// Telegram command names are restricted to [a-z0-9_]{1,32}.
func sanitizeTelegramCommand(s string) string {
	s = strings.TrimPrefix(strings.TrimSpace(strings.ToLower(s)), "/")
	if s == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(s))
	lastUnderscore := false
	for _, r := range s {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastUnderscore = false
		case r == '_' || r == '-' || unicode.IsSpace(r):
			if b.Len() > 0 && !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
		}
	}

	out := strings.Trim(b.String(), "_")
	if len(out) > 32 {
		out = strings.TrimRight(out[:32], "_")
	}
	return out
}

// tokenizeCommandLine splits "/cmd a b" into whitespace separated tokens.
func tokenizeCommandLine(s string) []string {
	return strings.Fields(s)
}

var ridSeq uint64

// newReqID returns a short request id: base36 time plus a sequence number.
func newReqID() string {
	n := atomic.AddUint64(&ridSeq, 1)
	return strconv.FormatInt(time.Now().UnixNano(), 36) + "-" + strconv.FormatUint(n, 36)
}
