package telegram

import (
	"context"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	"kinobot/internal/transport"
)

const textLimit = 4000

func sendOptions(opt *transport.SendOptions, threadID int, withMarkup bool) *tele.SendOptions {
	if opt == nil {
		opt = &transport.SendOptions{}
	}
	out := &tele.SendOptions{
		ParseMode:             opt.ParseMode,
		DisableWebPagePreview: opt.DisablePreview,
		ThreadID:              threadID,
	}
	if withMarkup {
		if rm, ok := opt.ReplyMarkupAdapter.(*tele.ReplyMarkup); ok {
			out.ReplyMarkup = rm
		}
	}
	return out
}

// splitText splits long messages on newline boundaries where possible and,
// for HTML, avoids cutting inside a tag.
func splitText(s string, limit int, parseMode string) []string {
	if limit <= 0 {
		limit = textLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}
	html := strings.EqualFold(parseMode, "HTML")
	var out []string
	start := 0
	for start < len(rs) {
		end := min(start+limit, len(rs))
		if end < len(rs) {
			for i := end - 1; i > start+limit/3; i-- {
				if rs[i] == '\n' {
					end = i + 1
					break
				}
			}
		}
		if html && end < len(rs) {
			open, closed := -1, -1
			for i := start; i < end; i++ {
				switch rs[i] {
				case '<':
					open = i
				case '>':
					closed = i
				}
			}
			if open > closed && open > start+1 {
				end = open
			}
		}
		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}

func (a *Adapter) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	parseMode := ""
	if opt != nil {
		parseMode = opt.ParseMode
	}
	chat := &tele.Chat{ID: to.ChatID}
	var first transport.MessageRef
	for i, chunk := range splitText(text, textLimit, parseMode) {
		var msg *tele.Message
		err := a.call(ctx, func() error {
			var err error
			msg, err = a.bot.Send(chat, chunk, sendOptions(opt, to.ThreadID, i == 0))
			return err
		})
		if err != nil {
			return first, err
		}
		if i == 0 {
			first = transport.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}
		}
	}
	return first, nil
}

func (a *Adapter) SendMedia(ctx context.Context, to transport.ChatTarget, m transport.Media, opt *transport.SendOptions) (transport.MessageRef, error) {
	var what any
	file := tele.File{FileID: m.FileID}
	switch m.Kind {
	case transport.MediaPhoto:
		what = &tele.Photo{File: file, Caption: m.Caption}
	case transport.MediaVideo:
		what = &tele.Video{File: file, Caption: m.Caption}
	default:
		what = &tele.Document{File: file, Caption: m.Caption}
	}
	var msg *tele.Message
	err := a.call(ctx, func() error {
		var err error
		msg, err = a.bot.Send(&tele.Chat{ID: to.ChatID}, what, sendOptions(opt, to.ThreadID, true))
		return err
	})
	if err != nil {
		return transport.MessageRef{}, err
	}
	return transport.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}, nil
}

func (a *Adapter) stored(ctx context.Context, from transport.Channel, position int) (tele.StoredMessage, error) {
	c, err := a.resolve(ctx, from)
	if err != nil {
		return tele.StoredMessage{}, err
	}
	return tele.StoredMessage{ChatID: c.ID, MessageID: strconv.Itoa(position)}, nil
}

func (a *Adapter) CopyMessage(ctx context.Context, from transport.Channel, position int, to transport.ChatTarget, opt *transport.SendOptions) (transport.MessageRef, error) {
	src, err := a.stored(ctx, from, position)
	if err != nil {
		return transport.MessageRef{}, err
	}
	var msg *tele.Message
	err = a.call(ctx, func() error {
		var err error
		msg, err = a.bot.Copy(&tele.Chat{ID: to.ChatID}, src, sendOptions(opt, to.ThreadID, true))
		return err
	})
	if err != nil {
		return transport.MessageRef{}, err
	}
	return transport.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}, nil
}

func (a *Adapter) ForwardMessage(ctx context.Context, from transport.Channel, position int, to transport.ChatTarget) (transport.MessageRef, error) {
	src, err := a.stored(ctx, from, position)
	if err != nil {
		return transport.MessageRef{}, err
	}
	var msg *tele.Message
	err = a.call(ctx, func() error {
		var err error
		msg, err = a.bot.Forward(&tele.Chat{ID: to.ChatID}, src, &tele.SendOptions{ThreadID: to.ThreadID})
		return err
	})
	if err != nil {
		return transport.MessageRef{}, err
	}
	return transport.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}, nil
}

// EditText edits ref with the first chunk; any remainder is sent as new
// messages.
func (a *Adapter) EditText(ctx context.Context, ref transport.MessageRef, text string, opt *transport.SendOptions) error {
	parseMode := ""
	if opt != nil {
		parseMode = opt.ParseMode
	}
	chunks := splitText(text, textLimit, parseMode)
	m := &tele.Message{ID: ref.MessageID, Chat: &tele.Chat{ID: ref.ChatID}}
	err := a.call(ctx, func() error {
		_, err := a.bot.Edit(m, chunks[0], sendOptions(opt, 0, true))
		return err
	})
	if err != nil {
		return err
	}
	if len(chunks) > 1 {
		rest := strings.Join(chunks[1:], "\n")
		o := transport.SendOptions{}
		if opt != nil {
			o = *opt
			o.ReplyMarkupAdapter = nil
		}
		_, err = a.SendText(ctx, transport.ChatTarget{ChatID: ref.ChatID, ThreadID: ref.ThreadID}, rest, &o)
	}
	return err
}

func (a *Adapter) AnswerCallback(ctx context.Context, callbackID string, text string, alert bool) error {
	return a.call(ctx, func() error {
		return a.bot.Respond(&tele.Callback{ID: callbackID}, &tele.CallbackResponse{Text: text, ShowAlert: alert})
	})
}
