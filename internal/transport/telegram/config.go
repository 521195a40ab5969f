package telegram

import "time"

type Config struct {
	Token       string
	PollTimeout time.Duration
	CallTimeout time.Duration
	// Offline skips getMe at construction; used by CLI commands that only send.
	Offline bool
}

const (
	defaultPollTimeout = 10 * time.Second
	defaultCallTimeout = 10 * time.Second
)

func (c Config) withDefaults() Config {
	if c.PollTimeout <= 0 {
		c.PollTimeout = defaultPollTimeout
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = defaultCallTimeout
	}
	return c
}
