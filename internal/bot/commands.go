// Package bot holds the chat-facing behavior: report commands, subscription
// commands and the scheduled report job.
package bot

import (
	"context"
	"time"

	"fleetbot/internal/broadcast"
	"fleetbot/internal/stats"
	kit "fleetbot/internal/transport"
	"fleetbot/internal/transport/telegram/router"
	logx "fleetbot/pkg/logx"
)

// Fetcher returns the merged report for a period; false means no data.
type Fetcher interface {
	Fetch(ctx context.Context, p stats.Period) (*stats.Report, bool)
}

type Formatter interface {
	Format(rep *stats.Report, p stats.Period) string
}

// Subscriptions is the subscriber set as seen by the bot.
type Subscriptions interface {
	Load(ctx context.Context) []int64
	Subscribe(ctx context.Context, id int64) (bool, error)
	Unsubscribe(ctx context.Context, id int64) (bool, error)
}

type Broadcaster interface {
	Broadcast(ctx context.Context, name string, targets []kit.ChatTarget, text string, opt *kit.SendOptions) broadcast.Result
}

const reportTimeout = 90 * time.Second

type Handlers struct {
	stats  Fetcher
	format Formatter
	subs   Subscriptions
	texts  Texts
	log    logx.Logger
}

func NewHandlers(f Fetcher, fm Formatter, subs Subscriptions, texts Texts, log logx.Logger) *Handlers {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Handlers{stats: f, format: fm, subs: subs, texts: withDefaults(texts), log: log}
}

func (h *Handlers) Texts() Texts { return h.texts }

// Commands returns the command table for the router.
func (h *Handlers) Commands() []router.Command {
	t := h.texts
	return []router.Command{
		{
			Name:        "start",
			Description: "Начать работу с ботом",
			Handle:      h.start,
		},
		{
			Name:        "tday",
			Aliases:     []string{"today"},
			Buttons:     []string{t.ButtonToday},
			Description: "Статистика за сегодня",
			Access:      router.AccessGroupAdmin,
			Timeout:     reportTimeout,
			Handle:      h.report(stats.Today),
		},
		{
			Name:        "yday",
			Aliases:     []string{"yesterday"},
			Buttons:     []string{t.ButtonYesterday},
			Description: "Статистика за вчера",
			Access:      router.AccessGroupAdmin,
			Timeout:     reportTimeout,
			Handle:      h.report(stats.Yesterday),
		},
		{
			Name:        "week",
			Buttons:     []string{t.ButtonWeek},
			Description: "Статистика за неделю",
			Access:      router.AccessGroupAdmin,
			Timeout:     reportTimeout,
			Handle:      h.report(stats.Week),
		},
		{
			Name:        "subscribe",
			Buttons:     []string{t.ButtonSubscribe},
			Description: "Подписаться на рассылку",
			Handle:      h.subscribe,
		},
		{
			Name:        "unsubscribe",
			Buttons:     []string{t.ButtonUnsubscribe},
			Description: "Отписаться от рассылки",
			Handle:      h.unsubscribe,
		},
	}
}

func (h *Handlers) start(ctx context.Context, req *router.Request) error {
	return req.Reply(ctx, h.texts.Welcome, &kit.SendOptions{Keyboard: h.texts.Keyboard()})
}

func (h *Handlers) report(p stats.Period) router.HandlerFunc {
	return func(ctx context.Context, req *router.Request) error {
		rep, ok := h.stats.Fetch(ctx, p)
		if !ok {
			return req.Reply(ctx, h.texts.Unavailable, nil)
		}
		text := h.format.Format(rep, p)
		if err := req.Reply(ctx, text, &kit.SendOptions{ParseMode: kit.ParseModeMarkdown, DisablePreview: true}); err != nil {
			req.Logger.Warn("report reply failed", logx.String("period", string(p)), logx.Err(err))
			_ = req.Reply(ctx, h.texts.Failure, nil)
			return err
		}
		return nil
	}
}

func (h *Handlers) subscribe(ctx context.Context, req *router.Request) error {
	added, err := h.subs.Subscribe(ctx, req.Chat.ChatID)
	if err != nil {
		_ = req.Reply(ctx, h.texts.Failure, nil)
		return err
	}
	if added {
		return req.Reply(ctx, h.texts.Subscribed, nil)
	}
	return req.Reply(ctx, h.texts.AlreadySubscribed, nil)
}

func (h *Handlers) unsubscribe(ctx context.Context, req *router.Request) error {
	removed, err := h.subs.Unsubscribe(ctx, req.Chat.ChatID)
	if err != nil {
		_ = req.Reply(ctx, h.texts.Failure, nil)
		return err
	}
	if removed {
		return req.Reply(ctx, h.texts.Unsubscribed, nil)
	}
	return req.Reply(ctx, h.texts.NotSubscribed, nil)
}

func withDefaults(t Texts) Texts {
	d := DefaultTexts()
	fill := func(dst *string, def string) {
		if *dst == "" {
			*dst = def
		}
	}
	fill(&t.Welcome, d.Welcome)
	fill(&t.Denied, d.Denied)
	fill(&t.Unavailable, d.Unavailable)
	fill(&t.Failure, d.Failure)
	fill(&t.Subscribed, d.Subscribed)
	fill(&t.AlreadySubscribed, d.AlreadySubscribed)
	fill(&t.Unsubscribed, d.Unsubscribed)
	fill(&t.NotSubscribed, d.NotSubscribed)
	fill(&t.ButtonToday, d.ButtonToday)
	fill(&t.ButtonYesterday, d.ButtonYesterday)
	fill(&t.ButtonWeek, d.ButtonWeek)
	fill(&t.ButtonSubscribe, d.ButtonSubscribe)
	fill(&t.ButtonUnsubscribe, d.ButtonUnsubscribe)
	return t
}
