package telegram

import (
	"context"
	"fmt"

	tele "gopkg.in/telebot.v4"

	"kinobot/internal/transport"
)

// recipient addresses a chat by its raw chat_id parameter ("@name" or id).
type recipient string

func (r recipient) Recipient() string { return string(r) }

type userRecipient int64

func (u userRecipient) Recipient() string { return fmt.Sprint(int64(u)) }

// resolve returns a chat with a numeric id, calling getChat once per handle.
func (a *Adapter) resolve(ctx context.Context, ch transport.Channel) (*tele.Chat, error) {
	if id, ok := ch.ChatID(); ok {
		return &tele.Chat{ID: id}, nil
	}
	a.chatMu.RLock()
	c := a.chats[ch]
	a.chatMu.RUnlock()
	if c != nil {
		return c, nil
	}

	err := a.call(ctx, func() error {
		var err error
		c, err = a.bot.ChatByUsername(ch.String())
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", ch, err)
	}
	a.chatMu.Lock()
	a.chats[ch] = c
	a.chatMu.Unlock()
	return c, nil
}

func (a *Adapter) ResolveChat(ctx context.Context, ch transport.Channel) (transport.ChatTarget, error) {
	c, err := a.resolve(ctx, ch)
	if err != nil {
		return transport.ChatTarget{}, err
	}
	return transport.ChatTarget{ChatID: c.ID}, nil
}

func (a *Adapter) Membership(ctx context.Context, ch transport.Channel, userID int64) (transport.MemberStatus, error) {
	var m *tele.ChatMember
	err := a.call(ctx, func() error {
		var err error
		m, err = a.bot.ChatMemberOf(recipient(ch), userRecipient(userID))
		return err
	})
	if err != nil {
		return "", err
	}
	if m == nil {
		return transport.StatusLeft, nil
	}
	return transport.MemberStatus(m.Role), nil
}

// InviteLink returns the public link for handles and the primary invite
// link (bot must be an admin) for private channels.
func (a *Adapter) InviteLink(ctx context.Context, ch transport.Channel) (string, error) {
	if u := ch.URL(); u != "" {
		return u, nil
	}
	c, err := a.resolve(ctx, ch)
	if err != nil {
		return "", err
	}
	if c.InviteLink != "" {
		return c.InviteLink, nil
	}
	var link string
	err = a.call(ctx, func() error {
		var err error
		link, err = a.bot.InviteLink(c)
		return err
	})
	if err != nil {
		return "", err
	}
	a.chatMu.Lock()
	if cached := a.chats[ch]; cached != nil {
		cached.InviteLink = link
	}
	a.chatMu.Unlock()
	return link, nil
}
