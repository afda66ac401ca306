package service

import (
	"log/slog"

	"github.com/raphaelgruber/uplink/internal/models"
)

// partition is the subset of a batch routed to one pipeline invocation:
// the local group, or one group per distinct remote-account handle.
// indexes are positions in the batch's item slice; event correlation is by
// position in this slice for the partition's lifetime.
type partition struct {
	key     string
	account models.Account
	indexes []int
}

// partitionItems groups accepted items into one local partition plus one per
// remote account, so one account's expired credential cannot block another
// account's files.
func partitionItems(items []models.IngestionItem) []partition {
	var local partition
	local.key = "local"

	remote := make(map[string]*partition)
	var order []string

	for i, it := range items {
		switch it.Source {
		case models.SourceLocal:
			local.indexes = append(local.indexes, i)
		case models.SourceRemote:
			p, ok := remote[it.AccountID]
			if !ok {
				p = &partition{
					key:     "account:" + it.AccountID,
					account: models.Account{ID: it.AccountID, Label: it.AccountLabel},
				}
				remote[it.AccountID] = p
				order = append(order, it.AccountID)
			}
			p.indexes = append(p.indexes, i)
		}
	}

	var parts []partition
	if len(local.indexes) > 0 {
		parts = append(parts, local)
	}
	for _, id := range order {
		parts = append(parts, *remote[id])
	}
	return parts
}

// consumer folds one partition's ordered progress events into the shared
// batch. The completedSet/failedSet membership checks make terminal-event
// handling idempotent: a re-delivered terminal event (stream reconnection,
// replay) must not move a counter twice.
type consumer struct {
	batch        *Batch
	indexes      []int
	completedSet map[int]struct{}
	failedSet    map[int]struct{}
	persist      func()
}

func newConsumer(batch *Batch, indexes []int, persist func()) *consumer {
	return &consumer{
		batch:        batch,
		indexes:      indexes,
		completedSet: make(map[int]struct{}),
		failedSet:    make(map[int]struct{}),
		persist:      persist,
	}
}

// onEvent handles a single stage-progress event from the pipeline.
func (c *consumer) onEvent(ev models.ProgressEvent) error {
	if ev.FileIndex < 0 || ev.FileIndex >= len(c.indexes) {
		slog.Warn("progress event for unknown file index",
			"file_index", ev.FileIndex, "partition_size", len(c.indexes))
		return nil
	}
	idx := c.indexes[ev.FileIndex]

	switch ev.Stage {
	case models.StageCompleted:
		if _, counted := c.completedSet[idx]; counted {
			return nil
		}
		if c.batch.markCompleted(idx, ev.DocumentID) {
			c.completedSet[idx] = struct{}{}
		}

	case models.StageFailed:
		if _, counted := c.failedSet[idx]; counted {
			return nil
		}
		msg := ev.Error
		if msg == "" {
			msg = ev.Message
		}
		if msg == "" {
			msg = "Processing failed"
		}
		if c.batch.markFailed(idx, ev.DocumentID, msg) {
			c.failedSet[idx] = struct{}{}
		}

	default:
		c.batch.applyProgress(idx, ev)
	}

	c.persist()
	return nil
}

// failRemaining forces every still-in-flight item of the partition to failed
// with a generic transport message. Called after the stream itself died;
// already-terminal items are untouched by the terminal guard.
func (c *consumer) failRemaining() {
	changed := false
	for _, idx := range c.indexes {
		if c.batch.markFailed(idx, "", transportFailureMessage) {
			changed = true
		}
	}
	if changed {
		c.persist()
	}
}
