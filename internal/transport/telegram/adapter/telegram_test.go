package adapter

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	kit "fleetbot/internal/transport"
	logx "fleetbot/pkg/logx"
)

func TestSplitTelegramTextShort(t *testing.T) {
	t.Parallel()
	got := splitTelegramText("hello", 10, "")
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("split = %q", got)
	}
}

func TestSplitTelegramTextPrefersNewlines(t *testing.T) {
	t.Parallel()
	line := strings.Repeat("я", 30) + "\n"
	text := strings.Repeat(line, 10) // 310 runes
	chunks := splitTelegramText(text, 100, kit.ParseModeMarkdown)
	if len(chunks) < 4 {
		t.Fatalf("expected at least 4 chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if n := utf8.RuneCountInString(c); n > 100 {
			t.Fatalf("chunk %d has %d runes", i, n)
		}
		if strings.HasSuffix(c, "\n") || strings.HasPrefix(c, "\n") {
			t.Fatalf("chunk %d keeps boundary newline: %q", i, c)
		}
	}
	if strings.Join(chunks, "\n") != strings.TrimRight(text, "\n") {
		t.Fatal("chunks do not reassemble into the original text")
	}
}

func TestSplitTelegramTextAvoidsHTMLTags(t *testing.T) {
	t.Parallel()
	text := strings.Repeat("a", 98) + "<b>bold</b>"
	chunks := splitTelegramText(text, 100, kit.ParseModeHTML)
	if len(chunks) != 2 || !strings.HasPrefix(chunks[1], "<b>") {
		t.Fatalf("split = %q", chunks)
	}
}

func TestReplyKeyboard(t *testing.T) {
	t.Parallel()
	if replyKeyboard(nil) != nil {
		t.Fatal("empty keyboard must produce no markup")
	}
	rm := replyKeyboard(kit.Keyboard{{"📊 Сегодня", "📅 Вчера"}, {"🗓 Неделя"}})
	if rm == nil || !rm.ResizeKeyboard {
		t.Fatalf("markup = %+v", rm)
	}
	if len(rm.ReplyKeyboard) != 2 || len(rm.ReplyKeyboard[0]) != 2 || rm.ReplyKeyboard[1][0].Text != "🗓 Неделя" {
		t.Fatalf("rows = %+v", rm.ReplyKeyboard)
	}
}

type botAPI struct {
	mu    sync.Mutex
	calls map[string][]map[string]any
}

func (b *botAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	params := map[string]any{}
	body, _ := io.ReadAll(r.Body)
	_ = json.Unmarshal(body, &params)
	b.mu.Lock()
	if b.calls == nil {
		b.calls = map[string][]map[string]any{}
	}
	b.calls[method] = append(b.calls[method], params)
	b.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch method {
	case "getMe":
		_, _ = io.WriteString(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Fleet","username":"fleet_stats_bot"}}`)
	case "getChatMember":
		_, _ = io.WriteString(w, `{"ok":true,"result":{"status":"administrator","user":{"id":7,"first_name":"A"}}}`)
	case "sendMessage":
		_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":42,"date":0,"chat":{"id":-100,"type":"supergroup"}}}`)
	case "setMyCommands":
		_, _ = io.WriteString(w, `{"ok":true,"result":true}`)
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"ok":false,"error_code":404,"description":"Not Found"}`)
	}
}

func (b *botAPI) count(method string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.calls[method])
}

func newTestAdapter(t *testing.T) (*Adapter, *botAPI) {
	t.Helper()
	api := &botAPI{}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	a, err := New(Config{Token: "123:abc", APIURL: srv.URL}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a, api
}

func TestNewRequiresToken(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{Token: "  "}, logx.Nop()); err == nil {
		t.Fatal("expected error for empty token")
	}
}

func TestAdapterRoleSendAndMenu(t *testing.T) {
	a, api := newTestAdapter(t)
	ctx := context.Background()

	if got := a.Username(); got != "fleet_stats_bot" {
		t.Fatalf("Username = %q", got)
	}

	role, err := a.ChatMemberRole(ctx, -100, 7)
	if err != nil || role != kit.RoleAdministrator {
		t.Fatalf("ChatMemberRole = %q, %v", role, err)
	}

	ref, err := a.SendText(ctx, kit.ChatTarget{ChatID: -100}, "*hi*", &kit.SendOptions{
		ParseMode: kit.ParseModeMarkdown,
		Keyboard:  kit.Keyboard{{"📊 Сегодня"}},
	})
	if err != nil || ref.MessageID != 42 {
		t.Fatalf("SendText = %+v, %v", ref, err)
	}

	cmds := []kit.BotCommand{{Command: "tday", Description: "Сегодня"}, {Command: "/week", Description: "Неделя"}}
	if err := a.UpdateMenuCommands(ctx, cmds); err != nil {
		t.Fatalf("UpdateMenuCommands: %v", err)
	}
	if err := a.UpdateMenuCommands(ctx, cmds); err != nil {
		t.Fatalf("UpdateMenuCommands (unchanged): %v", err)
	}
	if n := api.count("setMyCommands"); n != 1 {
		t.Fatalf("setMyCommands calls = %d, want 1", n)
	}
	api.mu.Lock()
	sent := api.calls["setMyCommands"][0]["commands"].([]any)
	api.mu.Unlock()
	if first := sent[1].(map[string]any)["command"]; first != "week" {
		t.Fatalf("command slash not trimmed: %v", first)
	}
}

func TestSendUpdateDropsWhenFull(t *testing.T) {
	a, _ := newTestAdapter(t)
	out := make(chan kit.Update, 1)
	a.out.Store((chan<- kit.Update)(out))

	a.sendUpdate(kit.Update{Kind: kit.UpdateMessage})
	a.sendUpdate(kit.Update{Kind: kit.UpdateMessage})
	if len(out) != 1 {
		t.Fatalf("queued = %d", len(out))
	}
	if a.droppedUpdates != 1 {
		t.Fatalf("dropped = %d, want 1", a.droppedUpdates)
	}
}
