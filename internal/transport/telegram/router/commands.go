package router

import (
	"context"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	rtsup "fleetbot/internal/runtime/supervisor"
	kit "fleetbot/internal/transport"
	logx "fleetbot/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	// AccessGroupAdmin limits a command to administrators and the creator
	// when invoked inside the configured admin group. Other chats are open.
	AccessGroupAdmin
)

type Command struct {
	Name        string   // without slash, e.g. "tday"
	Aliases     []string // extra command names
	Buttons     []string // reply keyboard labels routed to this command
	Description string   // shown in the Telegram menu; empty hides it
	Access      Access
	Timeout     time.Duration
	Handle      HandlerFunc
}

type Request struct {
	Update  kit.Update
	Chat    kit.ChatTarget
	FromID  int64
	Command string
	Args    []string
	ReqID   string

	Sender kit.Sender
	Logger logx.Logger
}

// Reply sends text back to the chat the request came from.
func (r *Request) Reply(ctx context.Context, text string, opt *kit.SendOptions) error {
	_, err := r.Sender.SendText(ctx, r.Chat, text, opt)
	return err
}

type Options struct {
	AdminGroupID int64
	DeniedText   string
	Workers      int
	QueueSize    int
}

// CommandManager routes inbound messages to commands and runs them on a
// bounded worker pool.
type CommandManager struct {
	mu       sync.RWMutex
	commands map[string]*Command
	buttons  map[string]*Command
	menu     []kit.BotCommand

	adminGroup int64
	opt        Options

	log     logx.Logger
	adapter kit.Adapter

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor

	jobs chan func()
}

func NewCommandManager(log logx.Logger, adapter kit.Adapter, opt Options) *CommandManager {
	if log.IsZero() {
		log = logx.Nop()
	}
	if opt.Workers <= 0 {
		opt.Workers = 4
	}
	if opt.QueueSize <= 0 {
		opt.QueueSize = 256
	}
	return &CommandManager{
		commands:   map[string]*Command{},
		buttons:    map[string]*Command{},
		adminGroup: opt.AdminGroupID,
		opt:        opt,
		log:        log,
		adapter:    adapter,
		jobs:       make(chan func(), opt.QueueSize),
	}
}

// SetAdminGroup changes the restricted group chat (0 disables the check).
func (m *CommandManager) SetAdminGroup(id int64) {
	m.mu.Lock()
	m.adminGroup = id
	m.mu.Unlock()
}

func (m *CommandManager) SetRegistry(cmds []Command) {
	commands := map[string]*Command{}
	buttons := map[string]*Command{}
	menu := make([]kit.BotCommand, 0, len(cmds))

	for i := range cmds {
		c := cmds[i]
		name := sanitizeTelegramCommand(c.Name)
		if name == "" || c.Handle == nil {
			continue
		}
		c.Name = name
		cc := &c
		commands[name] = cc
		for _, a := range c.Aliases {
			if sa := sanitizeTelegramCommand(a); sa != "" {
				if _, exists := commands[sa]; !exists {
					commands[sa] = cc
				}
			}
		}
		for _, b := range c.Buttons {
			if b = strings.TrimSpace(b); b != "" {
				buttons[b] = cc
			}
		}
		if c.Description != "" {
			menu = append(menu, kit.BotCommand{Command: name, Description: c.Description})
		}
	}

	m.mu.Lock()
	m.commands = commands
	m.buttons = buttons
	m.menu = menu
	m.mu.Unlock()
}

// PublishMenu pushes the command menu to the platform when the adapter supports it.
func (m *CommandManager) PublishMenu(ctx context.Context) error {
	up, ok := m.adapter.(kit.CommandMenuUpdater)
	if !ok {
		return nil
	}
	m.mu.RLock()
	menu := append([]kit.BotCommand(nil), m.menu...)
	m.mu.RUnlock()
	return up.UpdateMenuCommands(ctx, menu)
}

// Supervisor returns the worker pool supervisor (nil if not running).
func (m *CommandManager) Supervisor() *rtsup.Supervisor {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if !m.running {
		return nil
	}
	return m.sup
}

func (m *CommandManager) setSupervisor(sup *rtsup.Supervisor, running bool) {
	m.runMu.Lock()
	m.sup = sup
	m.running = running
	m.runMu.Unlock()
}

func (m *CommandManager) tryEnqueue(fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	select {
	case m.jobs <- fn:
		return true
	default:
		return false
	}
}

// DispatchLoop consumes updates until ctx is done or updates is closed.
func (m *CommandManager) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	workers := m.opt.Workers
	sup := rtsup.New(ctx,
		rtsup.WithLogger(m.log.With(logx.String("comp", "telegram.router"))),
		rtsup.WithCancelOnError(false),
	)
	m.setSupervisor(sup, true)
	m.log.Info("command dispatcher started", logx.Int("workers", workers), logx.Int("job_queue_cap", cap(m.jobs)))

	for i := 0; i < workers; i++ {
		idx := i
		sup.GoRestart("command.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-m.jobs:
					if !ok {
						return nil
					}
					func() {
						defer func() {
							if r := recover(); r != nil {
								m.log.Error("panic in command job", logx.Int("worker", idx), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
							}
						}()
						job()
					}()
				}
			}
		}, rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second))
	}

	defer func() {
		m.setSupervisor(sup, false)
		close(m.jobs)
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		sup.Cancel()
		m.setSupervisor(nil, false)
		m.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			if run := m.prepare(ctx, up); run != nil {
				if !m.tryEnqueue(run) {
					m.log.Warn("command queue full, dropping request", logx.Int("queue_cap", cap(m.jobs)))
				}
			}
		}
	}
}

// Handle routes one update and runs the matched command synchronously.
func (m *CommandManager) Handle(ctx context.Context, up kit.Update) {
	if run := m.prepare(ctx, up); run != nil {
		run()
	}
}

// Resolve maps message text to a command: "/name[@bot] args" or an exact
// button label. Unknown text yields nil.
func (m *CommandManager) Resolve(text string) (*Command, []string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if strings.HasPrefix(text, "/") {
		parts := tokenizeCommandLine(text)
		if len(parts) == 0 {
			return nil, nil
		}
		word := strings.ToLower(strings.TrimPrefix(parts[0], "/"))
		if i := strings.IndexByte(word, '@'); i >= 0 {
			word = word[:i]
		}
		if c, ok := m.commands[word]; ok {
			return c, parts[1:]
		}
		return nil, nil
	}
	if c, ok := m.buttons[text]; ok {
		return c, nil
	}
	return nil, nil
}

func (m *CommandManager) prepare(root context.Context, up kit.Update) func() {
	if up.Kind != kit.UpdateMessage || up.Message == nil {
		return nil
	}
	msg := up.Message
	cmd, args := m.Resolve(msg.Text)
	if cmd == nil {
		return nil
	}

	m.mu.RLock()
	adminGroup := m.adminGroup
	m.mu.RUnlock()

	rid := newReqID()
	req := &Request{
		Update:  up,
		Chat:    kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID},
		FromID:  msg.FromID,
		Command: cmd.Name,
		Args:    args,
		ReqID:   rid,
		Sender:  m.adapter,
		Logger: m.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", msg.ChatID),
			logx.Int64("from_id", msg.FromID),
			logx.String("cmd", cmd.Name),
		),
	}

	mws := []Middleware{
		MWPanicRecover(m.log),
		MWRequestLog(m.log),
		MWTimeout(cmd.Timeout),
	}
	if cmd.Access == AccessGroupAdmin {
		mws = append(mws, MWGroupAdmin(m.adapter, adminGroup, m.opt.DeniedText))
	}
	final := Chain(cmd.Handle, mws...)
	return func() { _ = final(root, req) }
}
