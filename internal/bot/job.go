package bot

import (
	"context"
	"sync"

	"fleetbot/internal/stats"
	kit "fleetbot/internal/transport"
	logx "fleetbot/pkg/logx"
)

// ReportJob is the scheduled firing: fetch, format, broadcast.
type ReportJob struct {
	stats  Fetcher
	format Formatter
	subs   Subscriptions
	bc     Broadcaster
	log    logx.Logger

	mu     sync.RWMutex
	static []int64
}

func NewReportJob(f Fetcher, fm Formatter, subs Subscriptions, bc Broadcaster, log logx.Logger) *ReportJob {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &ReportJob{stats: f, format: fm, subs: subs, bc: bc, log: log}
}

// SetStaticChats replaces the chats that always receive scheduled reports.
func (j *ReportJob) SetStaticChats(ids []int64) {
	j.mu.Lock()
	j.static = append([]int64(nil), ids...)
	j.mu.Unlock()
}

// Recipients returns subscribers followed by static chats, deduplicated.
func (j *ReportJob) Recipients(ctx context.Context) []kit.ChatTarget {
	j.mu.RLock()
	static := j.static
	j.mu.RUnlock()

	subs := j.subs.Load(ctx)
	seen := make(map[int64]struct{}, len(subs)+len(static))
	out := make([]kit.ChatTarget, 0, len(subs)+len(static))
	add := func(id int64) {
		if id == 0 {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, kit.ChatTarget{ChatID: id})
	}
	for _, id := range subs {
		add(id)
	}
	for _, id := range static {
		add(id)
	}
	return out
}

// Run performs one scheduled firing. A fetch failure ends the firing
// without sending anything.
func (j *ReportJob) Run(ctx context.Context, p stats.Period) {
	log := j.log.With(logx.String("period", string(p)))

	rep, ok := j.stats.Fetch(ctx, p)
	if !ok {
		log.Warn("scheduled report skipped: no data")
		return
	}
	targets := j.Recipients(ctx)
	if len(targets) == 0 {
		log.Info("scheduled report skipped: no recipients")
		return
	}
	text := j.format.Format(rep, p)
	res := j.bc.Broadcast(ctx, "report."+string(p), targets, text, &kit.SendOptions{
		ParseMode:      kit.ParseModeMarkdown,
		DisablePreview: true,
	})
	log.Debug("scheduled report done", logx.String("broadcast_id", res.ID), logx.Int("sent", res.Sent), logx.Int("failed", res.Failed()))
}
