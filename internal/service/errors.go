// Package service provides the upload orchestration engine: batch state,
// stream folding, reconciliation polling, and snapshot persistence wiring.
package service

import "errors"

var (
	// ErrBatchActive is returned by Submit while a previous batch still has
	// items in flight. One outstanding batch is supported at a time.
	ErrBatchActive = errors.New("a batch is already in progress")

	// ErrAllRejected is returned by Submit when the quota guard rejected
	// every proposed item. No network activity was started.
	ErrAllRejected = errors.New("all items were rejected by quota limits")

	// ErrNoBatch is returned by operations that need a tracked batch.
	ErrNoBatch = errors.New("no batch is being tracked")

	// ErrItemNotFound is returned by Remove for an unknown item id.
	ErrItemNotFound = errors.New("item not found")

	// ErrItemInFlight is returned by Remove for an item that was already
	// submitted; dropping it silently would orphan a server-side job.
	ErrItemInFlight = errors.New("item is already in flight")

	// ErrBatchInFlight is returned by Clear while any item is non-terminal.
	ErrBatchInFlight = errors.New("batch still has items in flight")
)

// transportFailureMessage is shown for items interrupted by a stream or
// connection failure. Raw network-error text is logged, never displayed.
const transportFailureMessage = "Upload interrupted by a connection error"
