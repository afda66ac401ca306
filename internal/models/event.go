package models

import "time"

// ProgressEvent is one stage-transition notification from the processing
// pipeline. FileIndex correlates the event to an item by its position in the
// partition's item array: the server-side document id may not exist yet when
// the first event for an item arrives.
type ProgressEvent struct {
	FileIndex       int       `json:"file_index"`
	Filename        string    `json:"filename"`
	DocumentID      string    `json:"document_id,omitempty"`
	Stage           Stage     `json:"stage"`
	Message         string    `json:"message"`
	ProgressPercent int       `json:"progress_percent"`
	Timestamp       time.Time `json:"timestamp"`
	Error           string    `json:"error,omitempty"`
}

// Terminal reports whether the event's stage ends the item's pipeline run.
func (e ProgressEvent) Terminal() bool {
	return e.Stage == StageCompleted || e.Stage == StageFailed
}
