// Package dispatch fans one action out to many recipients under the
// provider's rate limit.
//
// Dispatcher.Run executes a batch synchronously: one attempt per recipient,
// paced by a token bucket, with a pause every BatchSize attempts. A
// throttling error pauses the whole batch for the provider-supplied wait and
// retries that recipient once. Permanent errors (blocked, not found) are
// never retried. Cancellation stops the batch and the partial counts are
// returned.
//
// Service wraps the dispatcher in an asynchronous job queue with a bounded
// worker pool and in-memory job statuses. Job ids are UUIDv7 so they sort
// by submission time.
package dispatch
