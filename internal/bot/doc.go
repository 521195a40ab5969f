// Package bot routes Telegram updates to the user and admin handlers.
//
// Commands and callbacks run on the router's supervised worker pool behind
// a middleware chain (panic recovery, request log, timeout, admin check).
// Multi-step flows such as contact, rename and ingest keep their state in
// Sessions, keyed by user id.
package bot
