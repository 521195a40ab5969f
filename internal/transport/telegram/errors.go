package telegram

import (
	"errors"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"kinobot/internal/transport"
)

// throttleFallback is used when a 429 arrives without retry_after.
const throttleFallback = 3 * time.Second

var blockedErrs = []error{
	tele.ErrBlockedByUser,
	tele.ErrUserIsDeactivated,
	tele.ErrNotStartedByUser,
	tele.ErrKickedFromGroup,
	tele.ErrKickedFromSuperGroup,
	tele.ErrKickedFromChannel,
}

var notFoundErrs = []error{
	tele.ErrChatNotFound,
	tele.ErrNotFoundToForward,
}

// classify maps telebot errors onto transport error classes.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if transport.IsThrottled(err) || transport.IsPermanent(err) {
		return err
	}

	var flood tele.FloodError
	if errors.As(err, &flood) {
		return transport.Throttled(err, time.Duration(flood.RetryAfter)*time.Second)
	}
	var floodPtr *tele.FloodError
	if errors.As(err, &floodPtr) && floodPtr != nil {
		return transport.Throttled(err, time.Duration(floodPtr.RetryAfter)*time.Second)
	}

	for _, e := range blockedErrs {
		if errors.Is(err, e) {
			return transport.Permanent(transport.ErrBlocked, err)
		}
	}
	for _, e := range notFoundErrs {
		if errors.Is(err, e) {
			return transport.Permanent(transport.ErrNotFound, err)
		}
	}

	var apiErr *tele.Error
	if errors.As(err, &apiErr) && apiErr != nil {
		desc := strings.ToLower(apiErr.Description)
		switch {
		case apiErr.Code == 429:
			return transport.Throttled(err, throttleFallback)
		case apiErr.Code == 403:
			return transport.Permanent(transport.ErrBlocked, err)
		case apiErr.Code == 400 && strings.Contains(desc, "not found"):
			return transport.Permanent(transport.ErrNotFound, err)
		}
	}
	return err
}
