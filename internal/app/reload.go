package app

import (
	"context"
	"strings"

	"fleetbot/internal/config"
	logx "fleetbot/pkg/logx"
)

func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					break drain
				}
			}
			a.applyConfig(lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

// applyConfig applies the parts of newCfg that can change at runtime:
// logging, the admin group, broadcast tuning and static chats. Everything
// else is logged as requiring a restart.
func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	a.log.Debug("config change summary", append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)...)

	a.logs.SetTelegramTarget(logTarget(newCfg), newCfg.Logging.Telegram.ThreadID)
	a.logs.Apply(mapLoggingConfig(newCfg, a.loc))

	a.cmdm.SetAdminGroup(newCfg.Telegram.AdminGroupID)
	a.bc.Apply(mapBroadcastConfig(newCfg))
	a.job.SetStaticChats(newCfg.Broadcast.ChatIDs)

	if config.RestartRequired(sections) {
		a.log.Warn("some config changes take effect after restart", logx.String("changed", strings.Join(sections, ",")))
	}
	a.log.Info("config reloaded", append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)...)
}
