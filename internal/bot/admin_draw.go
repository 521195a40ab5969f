package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"kinobot/internal/contest"
	"kinobot/internal/eventbus"
	"kinobot/internal/storage"
	"kinobot/internal/transport"
	logx "kinobot/pkg/logx"
	"kinobot/pkg/tgui"
)

func (b *Bot) cmdDrawStart(ctx context.Context, req *Request) error {
	start := time.Now()
	st, err := b.d.Contest.Start(ctx)
	if errors.Is(err, contest.ErrActive) {
		req.Reply(ctx, "❗ A draw is already running. /draw_finish first.")
		return nil
	}
	if err != nil {
		return err
	}
	b.publish(eventbus.ContestStarted, eventbus.ContestEvent{Cycle: st.Cycle})

	res := b.announce(ctx, "draw start", DrawStartMessage())
	b.audit(ctx, req, "draw.start", "cycle "+strconv.Itoa(st.Cycle), res.Succeeded, res.Failed, nil, start)

	_, err = req.Send(ctx, tgui.New().
		Title("🎉", "Draw started").
		KV("Cycle", strconv.Itoa(st.Cycle)).
		KV("Winners", strconv.Itoa(st.Cap)).
		KV("Announced", fmt.Sprintf("%d/%d channels", res.Succeeded, res.Total)).
		Inline(tgui.NewInline().Row(tgui.Btn("🎟 Take part", tgui.Data("contest", "join", "")))).
		Build())
	return err
}

func (b *Bot) cmdDrawPick(ctx context.Context, req *Request) error {
	pick, err := b.d.Contest.PickWinner(ctx)
	switch {
	case errors.Is(err, contest.ErrNotActive):
		req.Reply(ctx, "❗ No active draw. /draw_start first.")
		return nil
	case errors.Is(err, contest.ErrCapReached) && pick.Finished:
		req.Reply(ctx, "❗ The winner limit was lowered; the draw is now closed.")
		st, err := b.d.Contest.State(ctx)
		if err != nil {
			return err
		}
		return b.announceResults(ctx, req, st)
	case errors.Is(err, contest.ErrCapReached):
		req.Reply(ctx, "❌ All winners have already been picked.")
		return nil
	case errors.Is(err, contest.ErrNoCandidates):
		req.Reply(ctx, "❌ No eligible participants.")
		return nil
	case err != nil:
		return err
	}
	b.publish(eventbus.ContestWinner, eventbus.ContestEvent{Winner: pick.Winner, Place: pick.Place, Winners: pick.Winners})
	b.audit(ctx, req, "draw.pick", strconv.FormatInt(pick.Winner, 10), 1, 0, nil, time.Time{})

	_, _ = req.Send(ctx, tgui.New().
		HTML(tgui.Esc(contest.Medal(pick.Place)+" Winner: ")+tgui.Mention(strconv.FormatInt(pick.Winner, 10), pick.Winner)).
		Build())
	if _, err := b.d.Provider.SendText(ctx, transport.UserTarget(pick.Winner),
		fmt.Sprintf("%s Congratulations, you won place %d in the draw!", contest.Medal(pick.Place), pick.Place), nil); err != nil {
		req.Logger.Debug("winner notify failed", logx.Int64("winner", pick.Winner), logx.Err(err))
	}

	if !pick.Finished {
		return nil
	}
	st, err := b.d.Contest.State(ctx)
	if err != nil {
		return err
	}
	return b.announceResults(ctx, req, st)
}

func (b *Bot) cmdDrawFinish(ctx context.Context, req *Request) error {
	st, err := b.d.Contest.Finish(ctx)
	if errors.Is(err, contest.ErrNotActive) {
		req.Reply(ctx, "❗ No active draw.")
		return nil
	}
	if err != nil {
		return err
	}
	return b.announceResults(ctx, req, st)
}

func (b *Bot) announceResults(ctx context.Context, req *Request, st contest.State) error {
	start := time.Now()
	b.publish(eventbus.ContestFinished, eventbus.ContestEvent{Cycle: st.Cycle, Winners: st.Winners})
	msg := DrawResultsMessage(st)
	res := b.announce(ctx, "draw results", msg)
	b.audit(ctx, req, "draw.finish", "cycle "+strconv.Itoa(st.Cycle), res.Succeeded, res.Failed, nil, start)
	_, err := req.Send(ctx, msg)
	return err
}

// DrawStartMessage is the public announcement with the join button.
func DrawStartMessage() tgui.Message {
	return tgui.New().
		Title("🎉", "The draw has started!").
		Line("Press the button to take part.").
		Inline(tgui.NewInline().Row(tgui.Btn("🎟 Take part", tgui.Data("contest", "join", "")))).
		Build()
}

// DrawResultsMessage lists the winners with their medals.
func DrawResultsMessage(st contest.State) tgui.Message {
	mb := tgui.New().Title("🏆", "The draw is over!")
	if len(st.Winners) == 0 {
		return mb.Line("No winners this time.").Build()
	}
	mb.Line("Winners:")
	for i, id := range st.Winners {
		mb.HTML(tgui.Esc(fmt.Sprintf("%d. %s ", i+1, contest.Medal(i+1))) + tgui.Mention(strconv.FormatInt(id, 10), id))
	}
	return mb.Build()
}

// announce posts msg to the announce channels and records where it landed.
func (b *Bot) announce(ctx context.Context, name string, msg tgui.Message) dispatchResult {
	var refs []storage.AnnouncementRef
	res := b.fanOutChannels(ctx, name, b.cfg().AnnounceChannels, func(ctx context.Context, to transport.ChatTarget) error {
		ref, err := msg.Send(ctx, b.d.Provider, to)
		if err == nil {
			refs = append(refs, storage.AnnouncementRef{ChatID: ref.ChatID, MessageID: ref.MessageID})
		}
		return err
	})
	if err := b.d.Contest.RecordAnnouncements(ctx, refs); err != nil {
		b.log.Warn("announcement refs not saved", logx.Err(err))
	}
	return res
}

func (b *Bot) cmdDrawStatus(ctx context.Context, req *Request) error {
	st, err := b.d.Contest.State(ctx)
	if err != nil {
		return err
	}
	participants, err := b.d.Contest.Pool().List(ctx)
	if err != nil {
		return err
	}
	mb := tgui.New().
		Title("🎲", "Draw").
		KV("State", string(st.Phase())).
		KV("Cycle", strconv.Itoa(st.Cycle)).
		KV("Participants", strconv.Itoa(len(participants))).
		KV("Winners", fmt.Sprintf("%d/%d", len(st.Winners), st.Cap)).
		KV("Announcements", strconv.Itoa(len(st.Announcements)))
	for i, id := range st.Winners {
		mb.HTML(tgui.Esc(contest.Medal(i+1)+" ") + tgui.Code(strconv.FormatInt(id, 10)))
	}
	_, err = req.Send(ctx, mb.Build())
	return err
}
