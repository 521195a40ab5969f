package tgui

import (
	tele "gopkg.in/telebot.v4"
)

// Button is one inline keyboard button.
type Button = tele.Btn

// Inline builds an inline keyboard row by row.
type Inline struct {
	rm   *tele.ReplyMarkup
	rows []tele.Row
}

func NewInline() *Inline {
	return &Inline{rm: &tele.ReplyMarkup{}}
}

func (i *Inline) Row(btn ...tele.Btn) *Inline {
	if len(btn) == 0 {
		return i
	}
	i.rows = append(i.rows, i.rm.Row(btn...))
	i.rm.Inline(i.rows...)
	return i
}

// Grid appends buttons perRow at a time.
func (i *Inline) Grid(perRow int, buttons ...tele.Btn) *Inline {
	if perRow <= 0 {
		perRow = 1
	}
	for start := 0; start < len(buttons); start += perRow {
		i.Row(buttons[start:min(start+perRow, len(buttons))]...)
	}
	return i
}

func (i *Inline) Rows() int { return len(i.rows) }

// Markup returns the reply markup, or nil for an empty keyboard.
func (i *Inline) Markup() *tele.ReplyMarkup {
	if i == nil || len(i.rows) == 0 {
		return nil
	}
	return i.rm
}

// Buttons returns all buttons in row order.
func (i *Inline) Buttons() []tele.Btn {
	var out []tele.Btn
	for _, r := range i.rows {
		out = append(out, r...)
	}
	return out
}

// Btn creates a callback button with data used verbatim.
func Btn(text, data string) tele.Btn {
	return tele.Btn{Text: text, Data: data}
}

func URLBtn(text, url string) tele.Btn {
	return tele.Btn{Text: text, URL: url}
}

// ConfirmInline is a single yes/no row.
func ConfirmInline(yes, no tele.Btn) *Inline {
	return NewInline().Row(yes, no)
}
