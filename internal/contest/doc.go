// Package contest runs a capped prize draw without replacement over a pool
// of participants.
//
// The draw moves Idle -> Active -> Finished. Start is accepted from Idle and
// Finished and begins a new cycle with an empty pool. Every mutation runs
// under an in-process mutex and a storage transaction that holds the
// contest row, so concurrent picks can never exceed the cap or repeat a
// winner.
package contest
