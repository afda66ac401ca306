package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/raphaelgruber/uplink/internal/models"
	"github.com/raphaelgruber/uplink/internal/quota"
	"github.com/raphaelgruber/uplink/internal/source"
	"github.com/raphaelgruber/uplink/internal/store"
)

// Pipeline is the processing backend as the orchestrator consumes it.
// Satisfied by *backend.Client.
type Pipeline interface {
	ProcessLocal(ctx context.Context, files []models.LocalFile, onEvent func(models.ProgressEvent) error) error
	ProcessRemote(ctx context.Context, account models.Account, fileIDs []string, onEvent func(models.ProgressEvent) error) error
	ListDocuments(ctx context.Context) ([]models.Document, error)
}

// Orchestrator owns the item collection and batch-level counters. It
// dispatches items to per-source-grouping pipeline invocations, merges their
// streamed updates into the shared batch, mirrors every mutation to the
// snapshot slot, and reconciles against server truth by polling.
//
// One orchestrator is constructed per application session; it replaces the
// module-level singleton state of earlier designs.
type Orchestrator struct {
	pipeline Pipeline
	guard    *quota.Guard
	store    *store.Store

	mu     sync.Mutex
	batch  *Batch
	handle *BatchHandle

	pollMu       sync.Mutex
	polling      bool
	pollCancel   context.CancelFunc
	pollInterval time.Duration

	readFile func(string) ([]byte, error)
}

// New creates an orchestrator. store may be nil to disable persistence
// (tests).
func New(pipeline Pipeline, guard *quota.Guard, st *store.Store) *Orchestrator {
	return &Orchestrator{
		pipeline:     pipeline,
		guard:        guard,
		store:        st,
		pollInterval: defaultPollInterval,
		readFile:     os.ReadFile,
	}
}

// BatchHandle lets the caller await the settlement of all partitions and
// read the live aggregate while they run.
type BatchHandle struct {
	o           *Orchestrator
	done        chan struct{}
	once        sync.Once
	mu          sync.Mutex
	err         error
	fromRestore bool
}

// Done is closed once every partition has settled (restored batches: once
// reconciliation finds everything terminal).
func (h *BatchHandle) Done() <-chan struct{} { return h.done }

// Err returns the aggregated partition failure, if any. Valid after Done.
// Item state is already consistent by the time this reports an error: the
// affected items were forced to failed before the partition re-raised.
func (h *BatchHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Wait blocks until the batch settles or the context ends.
func (h *BatchHandle) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return h.Err()
	}
}

// View returns the current aggregate.
func (h *BatchHandle) View() (BatchView, bool) { return h.o.View() }

func (h *BatchHandle) settle(err error) {
	h.once.Do(func() {
		h.mu.Lock()
		h.err = err
		h.mu.Unlock()
		close(h.done)
	})
}

// Submit normalizes and quota-filters a selection, then launches one pipeline
// invocation per partition. Returns the handle, the quota rejections (user
// facing), and an error when nothing could be submitted at all.
func (o *Orchestrator) Submit(ctx context.Context, sel source.Selection) (*BatchHandle, []quota.Rejection, error) {
	items, err := source.Normalize(sel)
	if err != nil {
		return nil, nil, err
	}
	if len(items) == 0 {
		return nil, nil, errors.New("nothing selected")
	}

	decision := o.guard.Filter(items)
	if len(decision.Accepted) == 0 {
		return nil, decision.Rejected, ErrAllRejected
	}

	o.mu.Lock()
	if o.batch != nil && !o.batch.allTerminal() {
		o.mu.Unlock()
		return nil, decision.Rejected, ErrBatchActive
	}
	batch := newBatch(decision.Accepted)
	handle := &BatchHandle{o: o, done: make(chan struct{})}
	o.batch = batch
	o.handle = handle
	o.mu.Unlock()

	o.persist()

	parts := partitionItems(decision.Accepted)
	slog.Info("batch submitted",
		"items", len(decision.Accepted),
		"rejected", len(decision.Rejected),
		"partitions", len(parts))

	o.startPoller()

	var (
		wg    sync.WaitGroup
		errMu sync.Mutex
		errs  []error
	)
	for _, part := range parts {
		wg.Add(1)
		go func(p partition) {
			defer wg.Done()
			if perr := o.runPartition(context.Background(), batch, p); perr != nil {
				errMu.Lock()
				errs = append(errs, perr)
				errMu.Unlock()
			}
		}(part)
	}

	go func() {
		wg.Wait()
		handle.settle(errors.Join(errs...))
	}()

	return handle, decision.Rejected, nil
}

// runPartition drives one pipeline invocation to completion or to stream
// failure. On failure every still-in-flight item of the partition has been
// forced to failed before the error is re-raised; whether to retry the
// partition is the caller's decision, not made here.
func (o *Orchestrator) runPartition(ctx context.Context, b *Batch, p partition) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("partition goroutine panicked", "partition", p.key, "panic", r)
			err = fmt.Errorf("partition %s: internal panic: %v", p.key, r)
		}
	}()

	if p.account.ID == "" {
		// Local group: read payloads now; bytes are never held past the
		// stream, and never persisted.
		var files []models.LocalFile
		var sent []int
		for _, idx := range p.indexes {
			it := b.itemAt(idx)
			data, rerr := o.readFile(it.LocalPath)
			if rerr != nil {
				slog.Warn("failed to read local file", "file", it.LocalPath, "error", rerr)
				b.markFailed(idx, "", "Could not read file from disk")
				o.persist()
				continue
			}
			files = append(files, models.LocalFile{Name: it.DisplayName, Data: data})
			sent = append(sent, idx)
		}
		if len(files) == 0 {
			return nil
		}

		cons := newConsumer(b, sent, o.persist)
		if serr := o.pipeline.ProcessLocal(ctx, files, cons.onEvent); serr != nil {
			slog.Error("local processing stream failed", "error", serr)
			cons.failRemaining()
			return fmt.Errorf("partition %s: %w", p.key, serr)
		}
		return nil
	}

	fileIDs := make([]string, len(p.indexes))
	for i, idx := range p.indexes {
		fileIDs[i] = b.itemAt(idx).RemoteFileID
	}

	cons := newConsumer(b, p.indexes, o.persist)
	if serr := o.pipeline.ProcessRemote(ctx, p.account, fileIDs, cons.onEvent); serr != nil {
		slog.Error("remote processing stream failed", "account", p.account.Label, "error", serr)
		cons.failRemaining()
		return fmt.Errorf("partition %s: %w", p.key, serr)
	}
	return nil
}

// Restore rehydrates a persisted batch after validating it against the
// server, and starts the reconciliation poller immediately. Returns
// (nil, nil) when there is nothing to resume.
func (o *Orchestrator) Restore(ctx context.Context) (*BatchHandle, error) {
	o.mu.Lock()
	if o.batch != nil && !o.batch.allTerminal() {
		o.mu.Unlock()
		return nil, ErrBatchActive
	}
	o.mu.Unlock()

	if o.store == nil {
		return nil, nil
	}

	snap, err := o.store.Restore(ctx, o.pipeline)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, nil
	}

	items := make([]models.IngestionItem, len(snap.Files))
	for i, f := range snap.Files {
		items[i] = f.Item()
	}

	batch := newBatch(items)
	handle := &BatchHandle{o: o, done: make(chan struct{}), fromRestore: true}

	o.mu.Lock()
	o.batch = batch
	o.handle = handle
	o.mu.Unlock()

	o.persist()
	o.startPoller()

	slog.Info("batch restored from snapshot", "items", len(items))
	return handle, nil
}

// Remove drops an item that is still pending. In-flight items cannot be
// removed without risking an orphaned server-side job.
func (o *Orchestrator) Remove(itemID string) error {
	o.mu.Lock()
	b := o.batch
	o.mu.Unlock()
	if b == nil {
		return ErrNoBatch
	}

	if err := b.removePending(itemID); err != nil {
		return err
	}

	if b.View().Total == 0 {
		return o.discard()
	}
	o.persist()
	return nil
}

// Clear discards the batch once every item is terminal, deleting the
// persisted mirror.
func (o *Orchestrator) Clear() error {
	o.mu.Lock()
	b := o.batch
	o.mu.Unlock()
	if b == nil {
		return ErrNoBatch
	}
	if !b.allTerminal() {
		return ErrBatchInFlight
	}
	return o.discard()
}

func (o *Orchestrator) discard() error {
	o.stopPoller()

	o.mu.Lock()
	o.batch = nil
	o.handle = nil
	o.mu.Unlock()

	if o.store != nil {
		if err := o.store.Delete(); err != nil {
			return err
		}
	}
	return nil
}

// View returns the current aggregate, or false when no batch is tracked.
func (o *Orchestrator) View() (BatchView, bool) {
	o.mu.Lock()
	b := o.batch
	o.mu.Unlock()
	if b == nil {
		return BatchView{}, false
	}
	return b.View(), true
}

// settleRestored closes a restored batch's handle once reconciliation found
// everything terminal. Submitted batches settle through their partitions.
func (o *Orchestrator) settleRestored() {
	o.mu.Lock()
	h := o.handle
	o.mu.Unlock()
	if h != nil && h.fromRestore {
		h.settle(nil)
	}
}

// persist mirrors the current batch state into the snapshot slot. Every
// mutation path funnels through here; a failed write is logged and the next
// mutation retries.
func (o *Orchestrator) persist() {
	o.mu.Lock()
	b := o.batch
	o.mu.Unlock()
	if b == nil || o.store == nil {
		return
	}
	if err := o.store.Save(b.snapshot()); err != nil {
		slog.Warn("failed to persist batch snapshot", "error", err)
	}
}
