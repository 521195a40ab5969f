package tgui

import (
	"context"
	"strings"

	tele "gopkg.in/telebot.v4"

	"kinobot/internal/transport"
)

// Message is rendered text plus send options.
type Message struct {
	Text string
	Opt  *transport.SendOptions
}

func (m Message) Send(ctx context.Context, s transport.Sender, to transport.ChatTarget) (transport.MessageRef, error) {
	return s.SendText(ctx, to, m.Text, m.Opt)
}

// Builder assembles an HTML message line by line. Text passed to Line, KV
// and Bullets is escaped.
type Builder struct {
	lines []string
	rm    *tele.ReplyMarkup
}

func New() *Builder { return &Builder{} }

func (b *Builder) Inline(kb *Inline) *Builder {
	b.rm = kb.Markup()
	return b
}

func (b *Builder) Title(emoji, title string) *Builder {
	t := strings.TrimSpace(title)
	if t == "" {
		return b
	}
	line := B(t).String()
	if e := strings.TrimSpace(emoji); e != "" {
		line = Esc(e).String() + " " + line
	}
	b.lines = append(b.lines, line)
	return b
}

func (b *Builder) Line(s string) *Builder {
	b.lines = append(b.lines, Esc(s).String())
	return b
}

func (b *Builder) HTML(h H) *Builder {
	b.lines = append(b.lines, h.String())
	return b
}

func (b *Builder) Blank() *Builder { return b.Line("") }

func (b *Builder) KV(key, value string) *Builder {
	key = strings.TrimSpace(key)
	if key == "" {
		return b
	}
	b.lines = append(b.lines, "• "+B(key).String()+": "+Esc(strings.TrimSpace(value)).String())
	return b
}

func (b *Builder) Bullets(items ...string) *Builder {
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			b.Line("• " + it)
		}
	}
	return b
}

func (b *Builder) Build() Message {
	opt := &transport.SendOptions{ParseMode: "HTML", DisablePreview: true}
	if b.rm != nil {
		opt.ReplyMarkupAdapter = b.rm
	}
	return Message{Text: strings.Trim(strings.Join(b.lines, "\n"), "\n"), Opt: opt}
}
