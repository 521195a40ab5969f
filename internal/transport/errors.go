package transport

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrBlocked means the recipient blocked the bot or deactivated the account.
	ErrBlocked = errors.New("recipient unreachable")
	// ErrNotFound means the chat or source message does not exist.
	ErrNotFound = errors.New("chat or message not found")
)

// RetryAfterError is implemented by errors that carry an explicit retry delay.
type RetryAfterError interface {
	error
	RetryAfter() time.Duration
}

// ThrottledError is returned when the provider asks the caller to back off.
type ThrottledError struct {
	Err   error
	After time.Duration
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("throttled (retry after %s): %v", e.After, e.Err)
}
func (e *ThrottledError) Unwrap() error             { return e.Err }
func (e *ThrottledError) RetryAfter() time.Duration { return e.After }

// Throttled wraps err with a retry-after hint.
func Throttled(err error, after time.Duration) error {
	if err == nil {
		return nil
	}
	if after < 0 {
		after = 0
	}
	return &ThrottledError{Err: err, After: after}
}

// Permanent tags err with one of ErrBlocked / ErrNotFound.
func Permanent(kind, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", kind, err)
}

// RetryAfterOf returns the provider wait hint carried by err.
func RetryAfterOf(err error) (time.Duration, bool) {
	var ra RetryAfterError
	if errors.As(err, &ra) {
		return ra.RetryAfter(), true
	}
	return 0, false
}

func IsThrottled(err error) bool {
	_, ok := RetryAfterOf(err)
	return ok
}

func IsPermanent(err error) bool {
	return errors.Is(err, ErrBlocked) || errors.Is(err, ErrNotFound)
}

// IsTransient covers everything else: network errors, timeouts, 5xx.
func IsTransient(err error) bool {
	return err != nil && !IsPermanent(err) && !IsThrottled(err)
}
