// Package tgui holds the Telegram UI helpers shared by the bot: inline
// keyboards, callback data encoding, HTML-safe text and a small message
// builder.
package tgui
