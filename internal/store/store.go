// Package store persists the outstanding batch to a single named snapshot
// slot and restores it on startup, validating staleness and corroborating
// restored items against the server before anything resumes tracking.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/raphaelgruber/uplink/internal/metrics"
	"github.com/raphaelgruber/uplink/internal/models"
)

// MaxSnapshotAge is the hard expiry horizon for persisted snapshots,
// applied unconditionally regardless of item status.
const MaxSnapshotAge = 24 * time.Hour

// DocumentLister fetches the server's authoritative document list.
// Satisfied by *backend.Client.
type DocumentLister interface {
	ListDocuments(ctx context.Context) ([]models.Document, error)
}

// Store owns the snapshot slot. One outstanding batch is supported; a later
// save overwrites the slot.
type Store struct {
	path    string
	now     func() time.Time
	metrics *metrics.Collector
}

// New creates a store writing to the given slot path.
func New(path string, collector *metrics.Collector) *Store {
	if collector == nil {
		collector = metrics.NewCollector()
	}
	return &Store{path: path, now: time.Now, metrics: collector}
}

// Save writes the snapshot, stamping version and write time. The write is
// atomic (temp file + rename) so a crash never leaves a torn slot.
func (s *Store) Save(snap models.PersistedSnapshot) error {
	start := time.Now()
	snap.Version = models.SnapshotVersion
	snap.Timestamp = s.now()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".batch-*.json")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace snapshot slot: %w", err)
	}

	s.metrics.RecordTiming(metrics.OpSnapshotWrite, time.Since(start))
	return nil
}

// Delete clears the snapshot slot. A missing slot is not an error.
func (s *Store) Delete() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}

// load reads and strictly decodes the slot. A snapshot that does not match
// the expected projection is discarded rather than trusted.
func (s *Store) load() (*models.PersistedSnapshot, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	if err := validateSnapshot(bytes.NewReader(data)); err != nil {
		slog.Warn("discarding malformed snapshot", "path", s.path, "error", err)
		return nil, s.Delete()
	}

	var snap models.PersistedSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		slog.Warn("discarding undecodable snapshot", "path", s.path, "error", err)
		return nil, s.Delete()
	}

	return &snap, nil
}

// Restore reads the slot and decides whether there is anything to resume.
// Returns nil when the slot is absent, expired, already resolved, or
// describes items the server no longer knows; in each of those cases the
// slot is cleared. Items the server still confirms (plus items that never
// obtained a server id) survive, with the aggregate counters re-derived.
func (s *Store) Restore(ctx context.Context, lister DocumentLister) (*models.PersistedSnapshot, error) {
	snap, err := s.load()
	if err != nil || snap == nil {
		return nil, err
	}

	// Hard expiry, independent of item status.
	if s.now().Sub(snap.Timestamp) > MaxSnapshotAge {
		slog.Info("snapshot expired", "age", s.now().Sub(snap.Timestamp).Round(time.Minute))
		return nil, s.Delete()
	}

	// Already-resolved history: nothing to resume.
	resumable := 0
	for _, f := range snap.Files {
		if !f.Status.Terminal() {
			resumable++
		}
	}
	if resumable == 0 {
		return nil, s.Delete()
	}

	// Corroborate against server truth before resurrecting progress bars.
	docs, err := lister.ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("corroborate snapshot: %w", err)
	}
	known := make(map[string]struct{}, len(docs))
	for _, d := range docs {
		known[d.DocumentID] = struct{}{}
	}

	tracked := 0
	confirmed := 0
	kept := make([]models.SnapshotItem, 0, len(snap.Files))
	for _, f := range snap.Files {
		if f.ServerItemID == "" {
			kept = append(kept, f)
			continue
		}
		tracked++
		if _, ok := known[f.ServerItemID]; ok {
			confirmed++
			kept = append(kept, f)
		}
	}

	// Every server-tracked item vanished: the snapshot describes a world that
	// no longer exists (storage reset while the app was closed).
	if tracked > 0 && confirmed == 0 {
		slog.Info("snapshot items unknown to server, discarding", "tracked", tracked)
		return nil, s.Delete()
	}
	if len(kept) == 0 {
		return nil, s.Delete()
	}

	snap.Files = kept
	snap.Total = len(kept)
	snap.CompletedCount = 0
	snap.FailedCount = 0
	for _, f := range kept {
		switch f.Status {
		case models.StatusCompleted:
			snap.CompletedCount++
		case models.StatusFailed:
			snap.FailedCount++
		}
	}

	return snap, nil
}
