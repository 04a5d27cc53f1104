package transport

import "context"

type UpdateKind string

const (
	UpdateMessage UpdateKind = "message"
)

type Update struct {
	Kind    UpdateKind
	Message *Message
}

type Message struct {
	ID           int
	ChatID       int64
	ThreadID     int // telegram forum topic thread id (0 if none)
	FromID       int64
	FromUsername string
	Text         string
	IsGroup      bool
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

// Parse modes understood by the chat transport.
const (
	ParseModeMarkdown = "Markdown"
	ParseModeHTML     = "HTML"
)

// Keyboard is a transport-neutral reply keyboard: rows of button labels.
// A pressed button arrives as a plain text message carrying its label.
type Keyboard [][]string

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	Keyboard       Keyboard
}

// Chat member roles as reported by Telegram.
const (
	RoleCreator       = "creator"
	RoleAdministrator = "administrator"
	RoleMember        = "member"
	RoleRestricted    = "restricted"
	RoleLeft          = "left"
	RoleKicked        = "kicked"
)

// Sender is the outbound half of the transport: enough for broadcasts and log sinks.
type Sender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}

type Adapter interface {
	Sender

	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	// ChatMemberRole returns the role of userID inside chatID.
	ChatMemberRole(ctx context.Context, chatID, userID int64) (string, error)
}

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is an optional interface that adapters can implement
// to update platform-specific bot command menus (e.g. Telegram /menu list).
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
