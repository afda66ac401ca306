package service

import (
	"sync"

	"github.com/raphaelgruber/uplink/internal/models"
)

// Batch tracks a set of ingestion items submitted together. All mutation is
// funneled through its methods: terminal states are immutable, the aggregate
// counters are derived from status transitions and never incremented
// independently, and ServerItemID is set at most once.
//
// The items slice never shrinks while the batch lives: consumers and
// partitions correlate events by position in it, so removal tombstones the
// slot instead of re-slicing. Tombstoned slots are invisible to views,
// counters, and snapshots but keep every surviving index valid.
type Batch struct {
	mu           sync.RWMutex
	items        []*models.IngestionItem
	removed      []bool
	removedCount int
	completed    int
	failed       int
	currentLabel string
}

// BatchView is the read-only aggregate exposed to callers. Counters reflect
// the latest fold at the instant of the call; across partitions the view is
// eventually consistent, not atomically consistent.
type BatchView struct {
	Total            int
	CompletedCount   int
	FailedCount      int
	CurrentItemLabel string
	Items            []models.IngestionItem
}

// Settled reports whether every item has reached a terminal state.
func (v BatchView) Settled() bool {
	return v.CompletedCount+v.FailedCount == v.Total
}

func newBatch(items []models.IngestionItem) *Batch {
	b := &Batch{
		items:   make([]*models.IngestionItem, len(items)),
		removed: make([]bool, len(items)),
	}
	for i := range items {
		it := items[i]
		b.items[i] = &it
		switch it.Status {
		case models.StatusCompleted:
			b.completed++
		case models.StatusFailed:
			b.failed++
		}
	}
	return b
}

// View returns a copy of the current aggregate state. Tombstoned slots are
// excluded.
func (b *Batch) View() BatchView {
	b.mu.RLock()
	defer b.mu.RUnlock()

	items := make([]models.IngestionItem, 0, len(b.items)-b.removedCount)
	for i, it := range b.items {
		if b.removed[i] {
			continue
		}
		items = append(items, *it)
	}
	return BatchView{
		Total:            len(items),
		CompletedCount:   b.completed,
		FailedCount:      b.failed,
		CurrentItemLabel: b.currentLabel,
		Items:            items,
	}
}

// itemAt returns a copy of the item at a batch position, tombstoned or not.
// Partitions use it to read item fields by the indexes they captured at
// submit time.
func (b *Batch) itemAt(idx int) models.IngestionItem {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return *b.items[idx]
}

func (b *Batch) allTerminal() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.completed+b.failed == len(b.items)-b.removedCount
}

// applyProgress folds a non-terminal stream event into an item: the very
// first event moves it to uploading, later events to processing. Stage and
// message are copied verbatim, percent is clamped to 0-100, and the server
// item id sticks on first sight. No-op once the item is terminal or removed.
func (b *Batch) applyProgress(idx int, ev models.ProgressEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	it := b.items[idx]
	if b.removed[idx] || it.Status.Terminal() {
		return
	}

	if it.Status == models.StatusPending {
		it.Status = models.StatusUploading
	} else {
		it.Status = models.StatusProcessing
	}
	it.Stage = ev.Stage
	it.ProgressPercent = clampPercent(ev.ProgressPercent)
	it.StageMessage = ev.Message
	if it.ServerItemID == "" && ev.DocumentID != "" {
		it.ServerItemID = ev.DocumentID
	}
	b.currentLabel = it.DisplayName
}

// markCompleted transitions an item to completed and moves the derived
// counter. Returns false when the item was already terminal, so a terminal
// event re-delivered after a stream reconnect cannot move a counter twice.
func (b *Batch) markCompleted(idx int, documentID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	it := b.items[idx]
	if b.removed[idx] || it.Status.Terminal() {
		return false
	}

	if it.ServerItemID == "" && documentID != "" {
		it.ServerItemID = documentID
	}
	it.Status = models.StatusCompleted
	it.Stage = models.StageCompleted
	it.ProgressPercent = 100
	it.Error = ""
	b.completed++
	return true
}

// markFailed transitions an item to failed, preserving the supplied
// user-facing message. Terminal-guarded like markCompleted.
func (b *Batch) markFailed(idx int, documentID, errMsg string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	it := b.items[idx]
	if b.removed[idx] || it.Status.Terminal() {
		return false
	}

	if it.ServerItemID == "" && documentID != "" {
		it.ServerItemID = documentID
	}
	it.Status = models.StatusFailed
	it.Stage = models.StageFailed
	it.Error = errMsg
	b.failed++
	return true
}

// reconcile overwrites an item's state with the server's durable record.
// The poller is the authority of last resort: when the stream and the poll
// disagree, this mapping wins. Terminal items stay untouched. Returns
// whether anything changed.
func (b *Batch) reconcile(doc models.Document) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, it := range b.items {
		if b.removed[i] || it.ServerItemID == "" || it.ServerItemID != doc.DocumentID {
			continue
		}
		if it.Status.Terminal() {
			return false
		}

		switch doc.Status {
		case models.DocumentProcessed:
			it.Status = models.StatusCompleted
			it.Stage = models.StageCompleted
			it.ProgressPercent = 100
			it.StageMessage = "Completed"
			it.Error = ""
			b.completed++
		case models.DocumentFailed:
			it.Status = models.StatusFailed
			it.Stage = models.StageFailed
			if doc.Error != "" {
				it.Error = doc.Error
			} else {
				it.Error = "Processing failed"
			}
			b.failed++
		case models.DocumentProcessing:
			// The server reports no stage detail; drop the possibly-stale
			// fine-grained stage and show a generic label until the stream
			// repaints it.
			if it.Status == models.StatusProcessing && it.Stage == "" && it.StageMessage == "Processing" {
				return false
			}
			it.Status = models.StatusProcessing
			it.Stage = ""
			it.StageMessage = "Processing"
		default:
			return false
		}
		return true
	}
	return false
}

// removePending drops an item that has not been submitted yet. Items in
// flight cannot be dropped without risking an orphaned server-side job.
// The slot is tombstoned, not re-sliced: in-flight consumers hold positional
// indexes into the items slice, and a removal must not shift them. Late
// events addressed to a tombstoned slot are silently dropped.
func (b *Batch) removePending(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, it := range b.items {
		if b.removed[i] || it.ID != id {
			continue
		}
		if it.Status != models.StatusPending {
			return ErrItemInFlight
		}
		b.removed[i] = true
		b.removedCount++
		return nil
	}
	return ErrItemNotFound
}

// snapshot builds the durable projection of the batch. Tombstoned slots are
// left out; a restart must not resurrect a removed item.
func (b *Batch) snapshot() models.PersistedSnapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	files := make([]models.SnapshotItem, 0, len(b.items)-b.removedCount)
	for i, it := range b.items {
		if b.removed[i] {
			continue
		}
		files = append(files, models.Project(*it))
	}
	return models.PersistedSnapshot{
		IsUploading:    b.completed+b.failed < len(files),
		Total:          len(files),
		CompletedCount: b.completed,
		FailedCount:    b.failed,
		Files:          files,
	}
}

// clampPercent bounds a server-supplied percentage to the displayable range
// so an out-of-contract value never invalidates the persisted snapshot.
func clampPercent(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
