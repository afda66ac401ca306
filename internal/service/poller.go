package service

import (
	"context"
	"log/slog"
	"time"
)

// defaultPollInterval is how often the reconciliation poller fetches the
// server's authoritative document list while any item is non-terminal.
const defaultPollInterval = 2 * time.Second

// startPoller launches the reconciliation loop if it is not already running.
// It is started on submit and on restore, and stops itself the moment a scan
// finds zero non-terminal items.
func (o *Orchestrator) startPoller() {
	o.pollMu.Lock()
	defer o.pollMu.Unlock()
	if o.polling {
		return
	}
	o.polling = true

	ctx, cancel := context.WithCancel(context.Background())
	o.pollCancel = cancel

	go o.pollLoop(ctx)
	slog.Debug("reconciliation poller started", "interval", o.pollInterval)
}

// stopPoller cancels the loop. Safe to call when not running.
func (o *Orchestrator) stopPoller() {
	o.pollMu.Lock()
	defer o.pollMu.Unlock()
	if !o.polling {
		return
	}
	o.polling = false
	o.pollCancel()
	slog.Debug("reconciliation poller stopped")
}

func (o *Orchestrator) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if o.pollOnce(ctx) {
				o.stopPoller()
				o.settleRestored()
				return
			}
		}
	}
}

// pollOnce fetches the server's document list and overwrites client-derived
// state with server truth. Returns true when no non-terminal items remain.
// A failed poll is logged and retried on the next tick; it never fails items
// by itself.
func (o *Orchestrator) pollOnce(ctx context.Context) bool {
	o.mu.Lock()
	b := o.batch
	o.mu.Unlock()
	if b == nil {
		return true
	}

	docs, err := o.pipeline.ListDocuments(ctx)
	if err != nil {
		if ctx.Err() == nil {
			slog.Warn("reconciliation poll failed", "error", err)
		}
		return false
	}

	changed := false
	for _, doc := range docs {
		if b.reconcile(doc) {
			changed = true
		}
	}
	if changed {
		o.persist()
	}

	return b.allTerminal()
}
