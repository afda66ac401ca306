package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/uplink/internal/models"
)

func trackedBatch() *Batch {
	items := pendingItems(2)
	b := newBatch(items)
	b.applyProgress(0, models.ProgressEvent{Stage: models.StageUnderstanding, ProgressPercent: 40, DocumentID: "doc-1"})
	b.applyProgress(1, models.ProgressEvent{Stage: models.StageReading, ProgressPercent: 20, DocumentID: "doc-2"})
	return b
}

// startRestoredPoller wires a batch into the orchestrator the way Restore
// does, so the handle settles once polling finds everything terminal.
func startRestoredPoller(o *Orchestrator, b *Batch) *BatchHandle {
	h := &BatchHandle{o: o, done: make(chan struct{}), fromRestore: true}
	o.mu.Lock()
	o.batch = b
	o.handle = h
	o.mu.Unlock()
	o.startPoller()
	return h
}

func TestPollerAppliesServerTruthAndStops(t *testing.T) {
	fake := &fakePipeline{docs: []models.Document{
		{DocumentID: "doc-1", Status: models.DocumentProcessed},
		{DocumentID: "doc-2", Status: models.DocumentFailed, Error: "parse error"},
	}}
	o := New(fake, unlimitedGuard(), nil)
	o.pollInterval = 10 * time.Millisecond

	b := trackedBatch()
	h := startRestoredPoller(o, b)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.Wait(ctx))

	view := b.View()
	assert.Equal(t, models.StatusCompleted, view.Items[0].Status)
	assert.Equal(t, models.StatusFailed, view.Items[1].Status)
	assert.Equal(t, "parse error", view.Items[1].Error)
	assert.Equal(t, 1, view.CompletedCount)
	assert.Equal(t, 1, view.FailedCount)

	o.pollMu.Lock()
	polling := o.polling
	o.pollMu.Unlock()
	assert.False(t, polling, "poller must stop once every item is terminal")
}

func TestPollerSurvivesTransientFetchErrors(t *testing.T) {
	fake := &fakePipeline{
		listFailures: 3,
		docs: []models.Document{
			{DocumentID: "doc-1", Status: models.DocumentProcessed},
			{DocumentID: "doc-2", Status: models.DocumentProcessed},
		},
	}
	o := New(fake, unlimitedGuard(), nil)
	o.pollInterval = 10 * time.Millisecond

	b := trackedBatch()
	h := startRestoredPoller(o, b)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.Wait(ctx))

	view := b.View()
	assert.Equal(t, 2, view.CompletedCount)
	assert.Equal(t, 0, view.FailedCount, "a failed poll must never fail items by itself")
}

func TestPollOnce_NoBatchReportsSettled(t *testing.T) {
	o := New(&fakePipeline{}, unlimitedGuard(), nil)
	assert.True(t, o.pollOnce(context.Background()))
}

func TestStartPollerIsIdempotent(t *testing.T) {
	o := New(&fakePipeline{}, unlimitedGuard(), nil)
	o.pollInterval = time.Hour
	o.batch = trackedBatch()

	o.startPoller()
	o.startPoller()
	o.stopPoller()
	o.stopPoller()

	o.pollMu.Lock()
	defer o.pollMu.Unlock()
	assert.False(t, o.polling)
}
