package bot

import (
	"context"
	"strconv"

	"kinobot/pkg/tgui"
)

type guidePage struct {
	emoji, title string
	lines        []string
}

var adminGuide = []guidePage{
	{"🎬", "Adding content", []string{
		"Every code points at a run of posts in one channel: the ad post, then each part in order.",
		"/ingest: send the ad, then each part, then /done and finally \"<code> <title>\". The bot re-posts everything to the server channel, registers the code and announces it in the publish channels.",
		"/add <code> <channel> <base> <parts> <title> registers posts that already exist. base is the message id of part 1; the ad is base-1.",
		"Codes are at most 32 characters and contain no spaces.",
	}},
	{"🛠", "Managing codes", []string{
		"/codes lists every code with its part count. /list is the same catalogue for users.",
		"/rename changes a code and its title; counters follow the code.",
		"/del <code> asks for confirmation before deleting.",
		"/stat <code> shows how often a code was searched and viewed. /stats shows totals.",
	}},
	{"📣", "Posts and broadcasts", []string{
		"/post builds a poster photo with a download button: photo, title, then the link.",
		"/broadcast <channel> <message_id> forwards a channel post to every subscriber in the background.",
		"/bc_status <id> shows progress and /bc_cancel <id> stops it. Blocked users are counted, not retried.",
	}},
	{"🎁", "Prize draws", []string{
		"/draw_start opens a draw and announces it with a join button.",
		"/draw_pick picks the next winner at random from the participants.",
		"The winner limit is contest.winners_cap. The draw closes by itself once it is reached; /draw_finish closes it early.",
		"Lowering the limit below the current number of winners closes the draw on the next pick.",
	}},
	{"🔐", "Access", []string{
		"Users must join every channel in gate.channels before they get content.",
		"/admin_add <user_id> and /admin_rm <user_id> manage admins; owners from the config cannot be removed.",
		"/health shows storage, sessions and background workers.",
	}},
}

// /guide is the paged admin manual.
func (b *Bot) cmdGuide(ctx context.Context, req *Request) error {
	_, err := req.Send(ctx, guideMessage(0))
	return err
}

func (b *Bot) cbGuidePage(ctx context.Context, req *Request) error {
	page, _ := strconv.Atoi(req.Payload)
	req.Answer(ctx, "", false)
	_ = req.Edit(ctx, guideMessage(page))
	return nil
}

func guideMessage(page int) tgui.Message {
	page = min(max(page, 0), len(adminGuide)-1)
	g := adminGuide[page]
	mb := tgui.New().
		Title(g.emoji, g.title).
		Line(strconv.Itoa(page+1) + "/" + strconv.Itoa(len(adminGuide))).
		Blank()
	for _, l := range g.lines {
		mb.Line("• " + l)
	}
	var btns []tgui.Button
	if page > 0 {
		btns = append(btns, tgui.Btn("⬅️", tgui.Data("help", "page", strconv.Itoa(page-1))))
	}
	if page < len(adminGuide)-1 {
		btns = append(btns, tgui.Btn("➡️", tgui.Data("help", "page", strconv.Itoa(page+1))))
	}
	return mb.Inline(tgui.NewInline().Row(btns...)).Build()
}
