package models

import "time"

// SnapshotVersion tags the persisted snapshot layout. The structure is
// locally owned and never shared across machines, so a constant is enough.
const SnapshotVersion = 1

// SnapshotItem is the reduced, durable projection of an IngestionItem.
// Byte payloads and local paths are excluded: local content cannot and must
// not be cached client-side, so local items rehydrate as metadata-only
// placeholders.
type SnapshotItem struct {
	ID              string `json:"id"`
	DisplayName     string `json:"displayName"`
	Source          Source `json:"source"`
	AccountLabel    string `json:"accountLabel,omitempty"`
	AccountID       string `json:"accountId,omitempty"`
	RemoteFileID    string `json:"remoteFileId,omitempty"`
	ServerItemID    string `json:"serverItemId,omitempty"`
	SizeBytes       int64  `json:"sizeBytes,omitempty"`
	Status          Status `json:"status"`
	Stage           Stage  `json:"stage,omitempty"`
	ProgressPercent int    `json:"progressPercent,omitempty"`
	StageMessage    string `json:"stageMessage,omitempty"`
	Error           string `json:"error,omitempty"`
}

// PersistedSnapshot is the durable mirror of a batch, held in a single named
// slot. A later save overwrites the slot.
type PersistedSnapshot struct {
	Version        int            `json:"version"`
	IsUploading    bool           `json:"isUploading"`
	Total          int            `json:"total"`
	CompletedCount int            `json:"completedCount"`
	FailedCount    int            `json:"failedCount"`
	Files          []SnapshotItem `json:"files"`
	Timestamp      time.Time      `json:"timestamp"`
}

// Item converts the projection back into a tracked item. Local items come
// back without a path; their content is not required for display.
func (s SnapshotItem) Item() IngestionItem {
	return IngestionItem{
		ID:              s.ID,
		DisplayName:     s.DisplayName,
		Source:          s.Source,
		AccountLabel:    s.AccountLabel,
		AccountID:       s.AccountID,
		RemoteFileID:    s.RemoteFileID,
		ServerItemID:    s.ServerItemID,
		SizeBytes:       s.SizeBytes,
		Status:          s.Status,
		Stage:           s.Stage,
		ProgressPercent: s.ProgressPercent,
		StageMessage:    s.StageMessage,
		Error:           s.Error,
	}
}

// Project builds the durable projection of an item.
func Project(it IngestionItem) SnapshotItem {
	return SnapshotItem{
		ID:              it.ID,
		DisplayName:     it.DisplayName,
		Source:          it.Source,
		AccountLabel:    it.AccountLabel,
		AccountID:       it.AccountID,
		RemoteFileID:    it.RemoteFileID,
		ServerItemID:    it.ServerItemID,
		SizeBytes:       it.SizeBytes,
		Status:          it.Status,
		Stage:           it.Stage,
		ProgressPercent: it.ProgressPercent,
		StageMessage:    it.StageMessage,
		Error:           it.Error,
	}
}
