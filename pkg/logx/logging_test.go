package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	kit "fleetbot/internal/transport"
)

func TestNewWriterEmitsJSONFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").With(String("comp", "test"))
	log.Warn("fetch failed", Int("status", 500), String("body", "boom"))

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	if rec["level"] != "warn" || rec["message"] != "fetch failed" {
		t.Fatalf("unexpected record: %v", rec)
	}
	if rec["comp"] != "test" || rec["body"] != "boom" {
		t.Fatalf("fields missing: %v", rec)
	}
	if rec["status"] != float64(500) {
		t.Fatalf("status = %v", rec["status"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "warn")
	log.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered, got %q", buf.String())
	}
	if log.Enabled(LevelDebug) {
		t.Fatal("debug should be disabled at warn")
	}
	if !log.Enabled(LevelError) {
		t.Fatal("error should be enabled at warn")
	}
}

func TestZeroLoggerIsSafe(t *testing.T) {
	var log Logger
	if !log.IsZero() {
		t.Fatal("zero logger should report IsZero")
	}
	log.Error("nothing happens")
	if Nop().IsZero() {
		t.Fatal("Nop logger is not the zero value")
	}
}

func TestValidLevel(t *testing.T) {
	t.Parallel()
	for _, lvl := range []string{"", "debug", "INFO", "warning", "error", "trace"} {
		if !ValidLevel(lvl) {
			t.Fatalf("ValidLevel(%q) = false", lvl)
		}
	}
	if ValidLevel("loud") {
		t.Fatal("ValidLevel(loud) = true")
	}
}

func TestFormatTelegramJSON(t *testing.T) {
	t.Parallel()
	got := formatTelegramJSON([]byte(`{"level":"error","time":"x","message":"send failed","chat_id":42}`))
	if !strings.HasPrefix(got, "[ERROR] send failed") {
		t.Fatalf("unexpected prefix: %q", got)
	}
	if !strings.Contains(got, "- chat_id=42") {
		t.Fatalf("missing field: %q", got)
	}
	if strings.Contains(got, "time=") {
		t.Fatalf("time should be skipped: %q", got)
	}

	raw := formatTelegramJSON([]byte("  not json \n"))
	if raw != "not json" {
		t.Fatalf("raw = %q", raw)
	}
}

type captureSender struct {
	mu   sync.Mutex
	msgs []string
	done chan struct{}
}

func (c *captureSender) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	c.mu.Lock()
	c.msgs = append(c.msgs, text)
	c.mu.Unlock()
	select {
	case c.done <- struct{}{}:
	default:
	}
	return kit.MessageRef{ChatID: to.ChatID}, nil
}

func TestServiceTelegramSinkRespectsMinLevel(t *testing.T) {
	sender := &captureSender{done: make(chan struct{}, 1)}
	svc, log := New(Config{Level: "debug"}, sender)
	defer svc.Close()

	svc.SetTelegramTarget(-100, 0)
	svc.Apply(Config{Level: "debug", Telegram: TelegramConfig{Enabled: true, MinLevel: "error", RatePerSec: 5}})

	log.Warn("below threshold")
	log.Error("broadcast failed", Int64("chat_id", 7))

	select {
	case <-sender.done:
	case <-time.After(2 * time.Second):
		t.Fatal("telegram sink did not deliver")
	}

	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.msgs) != 1 {
		t.Fatalf("expected one message, got %d: %v", len(sender.msgs), sender.msgs)
	}
	if !strings.Contains(sender.msgs[0], "broadcast failed") {
		t.Fatalf("unexpected message: %q", sender.msgs[0])
	}
}
