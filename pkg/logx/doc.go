// Package logx is kinobot's structured logging layer.
//
// logx.Logger wraps zerolog and keeps:
//   - console output readable (short timestamp + short caller)
//   - file output JSON-structured
//   - an optional Telegram sink (min-level + rate limiting) that mirrors
//     warnings into the admin log group
package logx
