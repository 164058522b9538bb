// Package scheduler owns the node's periodic background tasks:
// heartbeat, presence refresh, offline drain, pending retry, and seen-id
// garbage collection. It also orchestrates graceful shutdown across the
// components it drives.
//
// One goroutine per concern, each with its own time.Ticker, all
// cancelled by a shared context and joined with a sync.WaitGroup on
// Stop.
package scheduler
