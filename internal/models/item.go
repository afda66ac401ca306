// Package models defines the data structures tracked by the uplink engine.
package models

// Source identifies where an ingestion item originated.
type Source string

const (
	SourceLocal  Source = "local"
	SourceRemote Source = "remote"
)

// Status is the coarse lifecycle state of an ingestion item.
type Status string

const (
	StatusPending    Status = "pending"
	StatusUploading  Status = "uploading"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status permits no further mutation.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Stage is the fine-grained pipeline phase reported by the server.
type Stage string

const (
	StageInitializing        Stage = "initializing"
	StageReading             Stage = "reading"
	StageUnderstanding       Stage = "understanding"
	StageBuildingConnections Stage = "building_connections"
	StageFinalizing          Stage = "finalizing"
	StageCompleted           Stage = "completed"
	StageFailed              Stage = "failed"
)

// Account is a usable remote-account handle from the authorization subsystem.
// ID is the authorization key used for API calls; Label is for humans only.
// The two must never be conflated.
type Account struct {
	ID    string `json:"id" yaml:"id"`
	Label string `json:"label" yaml:"label"`
}

// IngestionItem is one file the user queued, local or remote.
type IngestionItem struct {
	// ID is client-generated and stable for the item's lifetime. For remote
	// items it equals the provider-side file id, which de-duplicates the same
	// remote file queued twice.
	ID          string
	DisplayName string
	Source      Source

	// AccountLabel and AccountID are set for remote items only, both attached
	// at normalization time so a changing account list cannot race a
	// long-running batch.
	AccountLabel string
	AccountID    string

	// RemoteFileID is the provider-side file identifier, remote items only.
	RemoteFileID string

	// LocalPath is where a local item's bytes are read from at pipeline
	// start. Never persisted: restored local items are metadata-only
	// placeholders.
	LocalPath string

	// ServerItemID is assigned once the server acknowledges the item.
	// Set at most once, never changed afterward.
	ServerItemID string

	SizeBytes int64 // 0 when unknown

	Status          Status
	Stage           Stage
	ProgressPercent int
	StageMessage    string

	// Error is populated only when Status is failed.
	Error string
}

// DocumentStatus is the server's durable processing state for a document.
type DocumentStatus string

const (
	DocumentProcessing DocumentStatus = "processing"
	DocumentProcessed  DocumentStatus = "processed"
	DocumentFailed     DocumentStatus = "failed"
)

// Document is one entry of the server's authoritative item list.
type Document struct {
	DocumentID string         `json:"document_id"`
	Status     DocumentStatus `json:"status"`
	Filename   string         `json:"filename,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// LocalFile is an in-memory byte payload handed to the processing pipeline.
// Data is never persisted anywhere client-side.
type LocalFile struct {
	Name string `json:"name"`
	Data []byte `json:"content"`
}
