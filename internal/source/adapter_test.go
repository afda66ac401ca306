package source

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/raphaelgruber/uplink/internal/models"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestNormalize_Local(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.md", "hello")
	b := writeFile(t, dir, "b.md", "world!!")

	items, err := Normalize(Selection{LocalPaths: []string{a, b}})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}

	for i, it := range items {
		if it.Source != models.SourceLocal {
			t.Errorf("item[%d].Source = %q, want local", i, it.Source)
		}
		if it.Status != models.StatusPending {
			t.Errorf("item[%d].Status = %q, want pending", i, it.Status)
		}
		if it.ID == "" {
			t.Errorf("item[%d] has no id", i)
		}
		if it.AccountID != "" || it.AccountLabel != "" {
			t.Errorf("item[%d] carries account fields for a local item", i)
		}
	}

	if items[0].ID == items[1].ID {
		t.Error("local items share an id; want fresh random identifiers")
	}
	if items[0].DisplayName != "a.md" {
		t.Errorf("DisplayName = %q, want a.md", items[0].DisplayName)
	}
	if items[0].SizeBytes != 5 {
		t.Errorf("SizeBytes = %d, want 5", items[0].SizeBytes)
	}
}

func TestNormalize_Remote(t *testing.T) {
	acc := models.Account{ID: "acc_1", Label: "work@example.com"}

	items, err := Normalize(Selection{Remote: []RemoteSelection{
		{Account: acc, FileID: "doc-7", Name: "Report", Size: 42},
		{Account: acc, FileID: "doc-7", Name: "Report again"}, // same remote file twice
		{Account: acc, FileID: "doc-8"},
	}})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	// Remote item ids equal the provider file id, so the duplicate collapses.
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}

	it := items[0]
	if it.ID != "doc-7" || it.RemoteFileID != "doc-7" {
		t.Errorf("ID/RemoteFileID = %q/%q, want doc-7/doc-7", it.ID, it.RemoteFileID)
	}
	if it.AccountID != "acc_1" || it.AccountLabel != "work@example.com" {
		t.Errorf("account fields = %q/%q, want handle and label attached at normalization", it.AccountID, it.AccountLabel)
	}
	if items[1].DisplayName != "doc-8" {
		t.Errorf("nameless remote item DisplayName = %q, want file id fallback", items[1].DisplayName)
	}
}

func TestNormalize_Errors(t *testing.T) {
	tests := []struct {
		name string
		sel  Selection
	}{
		{
			name: "missing local file",
			sel:  Selection{LocalPaths: []string{"/does/not/exist.md"}},
		},
		{
			name: "directory",
			sel:  Selection{LocalPaths: []string{os.TempDir()}},
		},
		{
			name: "remote without file id",
			sel:  Selection{Remote: []RemoteSelection{{Account: models.Account{ID: "a"}, Name: "x"}}},
		},
		{
			name: "remote without account handle",
			sel:  Selection{Remote: []RemoteSelection{{FileID: "doc-1"}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Normalize(tt.sel); err == nil {
				t.Error("Normalize() expected error, got nil")
			}
		})
	}
}
