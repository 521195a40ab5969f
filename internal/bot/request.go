package bot

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"

	"kinobot/internal/transport"
	logx "kinobot/pkg/logx"
	"kinobot/pkg/tgui"
)

// Request is one routed update, a command, callback or plain message.
type Request struct {
	Update       transport.Update
	Chat         transport.ChatTarget
	FromID       int64
	FromName     string
	FromUsername string

	Command string
	Args    []string
	// RawArgs is the text after the command word, untokenized.
	RawArgs string
	Text    string
	Media   *transport.Media

	MessageID  int
	CallbackID string
	Payload    string

	ReqID  string
	Logger logx.Logger
	Admin  bool

	provider transport.Provider
	answered atomic.Bool
}

func newReqID() string {
	id := uuid.New()
	return strings.ReplaceAll(id.String(), "-", "")[:12]
}

// Reply sends plain text to the request chat. Errors are logged.
func (r *Request) Reply(ctx context.Context, text string) {
	if _, err := r.provider.SendText(ctx, r.Chat, text, nil); err != nil {
		r.Logger.Warn("reply failed", logx.Err(err))
	}
}

// Send delivers a built message to the request chat.
func (r *Request) Send(ctx context.Context, m tgui.Message) (transport.MessageRef, error) {
	ref, err := m.Send(ctx, r.provider, r.Chat)
	if err != nil {
		r.Logger.Warn("send failed", logx.Err(err))
	}
	return ref, err
}

// Edit replaces the text of the message a callback was pressed on.
func (r *Request) Edit(ctx context.Context, m tgui.Message) error {
	ref := transport.MessageRef{ChatID: r.Chat.ChatID, ThreadID: r.Chat.ThreadID, MessageID: r.MessageID}
	err := r.provider.EditText(ctx, ref, m.Text, m.Opt)
	if err != nil {
		r.Logger.Debug("edit failed", logx.Err(err))
	}
	return err
}

// Answer acknowledges the callback. Only the first answer is sent.
func (r *Request) Answer(ctx context.Context, text string, alert bool) {
	if r.CallbackID == "" || !r.answered.CompareAndSwap(false, true) {
		return
	}
	if err := r.provider.AnswerCallback(ctx, r.CallbackID, text, alert); err != nil {
		r.Logger.Debug("answer callback failed", logx.Err(err))
	}
}

func (r *Request) Arg(i int) string {
	if i < 0 || i >= len(r.Args) {
		return ""
	}
	return r.Args[i]
}

// splitCommand turns "/cmd@bot a b" into ("cmd", "a b").
func splitCommand(text string) (word, rest string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	word, rest, _ = strings.Cut(text[1:], " ")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	word = strings.ToLower(word)
	if word == "" {
		return "", "", false
	}
	return word, strings.TrimSpace(rest), true
}
