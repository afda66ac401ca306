// Package source normalizes user selections into ingestion items.
package source

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/raphaelgruber/uplink/internal/models"
)

// Selection is a raw user selection: local file paths plus remote file
// references from any number of cloud accounts.
type Selection struct {
	LocalPaths []string
	Remote     []RemoteSelection
}

// RemoteSelection references one file inside a remote account. The account
// label and handle travel together from here on; they are never resolved
// later by side lookup, so a changing account list cannot race the batch.
type RemoteSelection struct {
	Account models.Account
	FileID  string
	Name    string
	Size    int64
}

// Normalize turns a raw selection into a uniform list of pending items.
//
// Local items get a fresh random identifier. Remote items use the provider's
// own file id as the item id, which naturally de-duplicates the same remote
// file queued twice.
func Normalize(sel Selection) ([]models.IngestionItem, error) {
	items := make([]models.IngestionItem, 0, len(sel.LocalPaths)+len(sel.Remote))

	for _, path := range sel.LocalPaths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("%s is a directory", path)
		}
		items = append(items, models.IngestionItem{
			ID:          uuid.New().String(),
			DisplayName: filepath.Base(path),
			Source:      models.SourceLocal,
			LocalPath:   path,
			SizeBytes:   info.Size(),
			Status:      models.StatusPending,
		})
	}

	seen := make(map[string]struct{}, len(sel.Remote))
	for _, r := range sel.Remote {
		if r.FileID == "" {
			return nil, fmt.Errorf("remote selection %q has no file id", r.Name)
		}
		if r.Account.ID == "" {
			return nil, fmt.Errorf("remote selection %q has no account handle", r.Name)
		}
		if _, dup := seen[r.FileID]; dup {
			continue
		}
		seen[r.FileID] = struct{}{}

		name := r.Name
		if name == "" {
			name = r.FileID
		}
		items = append(items, models.IngestionItem{
			ID:           r.FileID,
			DisplayName:  name,
			Source:       models.SourceRemote,
			AccountLabel: r.Account.Label,
			AccountID:    r.Account.ID,
			RemoteFileID: r.FileID,
			SizeBytes:    r.Size,
			Status:       models.StatusPending,
		})
	}

	return items, nil
}
