package transport

import (
	"context"
	"strconv"
	"strings"
)

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
)

type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
}

type Message struct {
	ID           int
	ChatID       int64
	ThreadID     int // telegram forum topic thread id (0 if none)
	FromID       int64
	FromUsername string
	FromName     string
	Text         string
	IsGroup      bool

	// Media is set for photo/video/document messages. Text then holds the caption.
	Media *Media
}

type Callback struct {
	ID        string
	FromID    int64
	ChatID    int64
	ThreadID  int
	MessageID int
	Data      string
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

// UserTarget addresses a private chat with a user.
func UserTarget(userID int64) ChatTarget { return ChatTarget{ChatID: userID} }

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode          string
	DisablePreview     bool
	ReplyMarkupAdapter any // adapter-specific markup (Telegram: *telebot.ReplyMarkup)
}

// Channel identifies a provider channel either by public handle ("@name")
// or by numeric chat id ("-1001234567890").
type Channel string

func (c Channel) String() string { return string(c) }

// Public reports whether the channel is addressed by handle.
func (c Channel) Public() bool { return strings.HasPrefix(string(c), "@") }

// ChatID returns the numeric id for id-addressed channels.
func (c Channel) ChatID() (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(string(c)), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// URL returns the public t.me link, or "" for private channels.
func (c Channel) URL() string {
	if !c.Public() {
		return ""
	}
	return "https://t.me/" + strings.TrimPrefix(string(c), "@")
}

// NormalizeChannel accepts "@name", "name", "https://t.me/name" or a numeric id.
func NormalizeChannel(raw string) Channel {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	for _, p := range []string{"https://t.me/", "http://t.me/", "t.me/"} {
		if strings.HasPrefix(s, p) {
			s = strings.TrimPrefix(s, p)
			break
		}
	}
	if _, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Channel(s)
	}
	if !strings.HasPrefix(s, "@") {
		s = "@" + s
	}
	return Channel(s)
}

// MemberStatus is the provider-reported relation of a user to a channel.
type MemberStatus string

const (
	StatusCreator       MemberStatus = "creator"
	StatusAdministrator MemberStatus = "administrator"
	StatusMember        MemberStatus = "member"
	StatusRestricted    MemberStatus = "restricted"
	StatusLeft          MemberStatus = "left"
	StatusKicked        MemberStatus = "kicked"
)

// Subscribed reports whether the status satisfies a membership requirement.
func (s MemberStatus) Subscribed() bool {
	switch s {
	case StatusCreator, StatusAdministrator, StatusMember:
		return true
	default:
		return false
	}
}

type MediaKind string

const (
	MediaPhoto    MediaKind = "photo"
	MediaVideo    MediaKind = "video"
	MediaDocument MediaKind = "document"
)

// Media references a file already uploaded to the provider.
type Media struct {
	Kind    MediaKind
	FileID  string
	Caption string
}

// Provider is the messaging surface the bot depends on.
//
// Errors are classified with IsThrottled / IsPermanent / IsTransient.
type Provider interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	Membership(ctx context.Context, ch Channel, userID int64) (MemberStatus, error)
	InviteLink(ctx context.Context, ch Channel) (string, error)
	// ResolveChat maps a channel handle or id to a sendable chat.
	ResolveChat(ctx context.Context, ch Channel) (ChatTarget, error)

	CopyMessage(ctx context.Context, from Channel, position int, to ChatTarget, opt *SendOptions) (MessageRef, error)
	ForwardMessage(ctx context.Context, from Channel, position int, to ChatTarget) (MessageRef, error)

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	SendMedia(ctx context.Context, to ChatTarget, m Media, opt *SendOptions) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	AnswerCallback(ctx context.Context, callbackID string, text string, alert bool) error
}

// Sender is the subset of Provider used by log sinks and notifications.
type Sender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
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
