// Package telegram implements transport.Provider on top of telebot.
//
// Channels may be configured by public handle ("@name") or numeric id. Calls
// that need a numeric chat id (copy, forward) resolve handles once through
// getChat and cache the result.
//
// Every Bot API call is bounded twice: by the HTTP client timeout and by
// the caller's context. Errors are mapped onto the transport error classes
// (throttled, permanent, transient) in classify.
package telegram
