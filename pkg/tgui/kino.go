package tgui

import (
	"strconv"

	tele "gopkg.in/telebot.v4"
)

// PartsPerRow is the width of the part selection keyboard.
const PartsPerRow = 5

// PartKeyboard renders one button per part: "part:<code>:<k>". Buttons whose
// data would exceed MaxCallbackDataLen are left out.
func PartKeyboard(code string, parts int) *Inline {
	btns := make([]tele.Btn, 0, parts)
	for k := 1; k <= parts; k++ {
		data := Data("part", code, strconv.Itoa(k))
		if CheckData(data) != nil {
			continue
		}
		btns = append(btns, Btn(strconv.Itoa(k), data))
	}
	return NewInline().Grid(PartsPerRow, btns...)
}

// JoinLink is one unmet channel in the gate prompt.
type JoinLink struct {
	Title string
	URL   string
}

// GateKeyboard lists join buttons, one per row, then a re-check button.
// Links without a URL are skipped.
func GateKeyboard(links []JoinLink, recheckText, recheckData string) *Inline {
	kb := NewInline()
	for _, l := range links {
		if l.URL == "" {
			continue
		}
		kb.Row(URLBtn(l.Title, l.URL))
	}
	if recheckData != "" {
		kb.Row(Btn(recheckText, recheckData))
	}
	return kb
}
