package catalog

import (
	"time"

	"kinobot/internal/transport"
)

// Entry is a registered piece of content: a landing post and PartCount
// sequential parts in Channel.
type Entry struct {
	Code         string
	Channel      transport.Channel
	BasePosition int
	PartCount    int

	Title    string
	Voice    string
	Genres   []string
	Status   string
	MediaRef string

	UpdatedAt time.Time
}

type Summary struct {
	Code      string
	Title     string
	PartCount int
}

// Target is an origin message to copy.
type Target struct {
	Channel  transport.Channel
	Position int
}
