package router

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	kit "fleetbot/internal/transport"
	logx "fleetbot/pkg/logx"
)

// ErrNotAdmin is returned when a restricted command is denied.
var ErrNotAdmin = errors.New("command restricted to group administrators")

type HandlerFunc func(ctx context.Context, req *Request) error

type Middleware func(next HandlerFunc) HandlerFunc

func Chain(h HandlerFunc, m ...Middleware) HandlerFunc {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

func MWTimeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			if d <= 0 {
				return next(ctx, req)
			}
			cctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(cctx, req)
		}
	}
}

func MWPanicRecover(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (err error) {
			defer func() {
				if r := recover(); r != nil {
					logger := log
					if req != nil && !req.Logger.IsZero() {
						logger = req.Logger
					}
					logger.Error("panic recovered",
						logx.Any("panic", r),
						logx.String("stack", string(debug.Stack())),
					)
					err = fmt.Errorf("panic: %v", r)
				}
			}()
			return next(ctx, req)
		}
	}
}

func MWRequestLog(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			start := time.Now()
			logger := log
			if !req.Logger.IsZero() {
				logger = req.Logger
			}
			err := next(ctx, req)
			d := time.Since(start)

			fields := []logx.Field{logx.Duration("dur", d)}
			switch {
			case errors.Is(err, ErrNotAdmin):
				logger.Info("request denied", fields...)
			case err != nil:
				logger.Warn("request failed", append(fields, logx.Err(err))...)
			case d >= 750*time.Millisecond:
				logger.Info("request ok", fields...)
			default:
				logger.Debug("request ok", fields...)
			}
			return err
		}
	}
}

// MWGroupAdmin enforces the admin-group restriction. Inside groupID only
// administrators and the creator pass; a failed role lookup denies.
func MWGroupAdmin(roles kit.Adapter, groupID int64, deniedText string) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			if groupID == 0 || req.Chat.ChatID != groupID {
				return next(ctx, req)
			}
			role, err := roles.ChatMemberRole(ctx, req.Chat.ChatID, req.FromID)
			if err != nil {
				req.Logger.Warn("admin role lookup failed", logx.Err(err))
			}
			if err == nil && (role == kit.RoleAdministrator || role == kit.RoleCreator) {
				return next(ctx, req)
			}
			if deniedText != "" {
				if err := req.Reply(ctx, deniedText, nil); err != nil {
					req.Logger.Warn("denied reply failed", logx.Err(err))
				}
			}
			return ErrNotAdmin
		}
	}
}
