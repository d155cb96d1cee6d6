// Package model holds the shared types that flow between the capture,
// transform, and commit layers.
package model

import (
	"time"

	"github.com/google/uuid"
)

// RawPayload is one captured page of feed data, stored verbatim before
// any transformation.
type RawPayload struct {
	ID          uuid.UUID
	VenueID     int64
	DataType    string
	RefDate     string
	Page        int
	Payload     []byte
	RecordCount int
	Processed   bool
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

// SyncRun is one logged execution of a fetch or process operation.
type SyncRun struct {
	ID          uuid.UUID  `json:"id"`
	VenueID     int64      `json:"venue_id"`
	DataType    string     `json:"data_type"`
	RefDate     string     `json:"ref_date"`
	Operation   string     `json:"operation"`
	Status      string     `json:"status"`
	Records     int        `json:"records"`
	Inserted    int64      `json:"inserted"`
	ElapsedMs   int64      `json:"elapsed_ms"`
	ErrorDetail string     `json:"error_detail,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

// Sync run statuses.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
	RunPartial   = "partial"
)

// Result describes the outcome of processing a single raw payload.
type Result struct {
	RawID           uuid.UUID `json:"raw_id"`
	VenueID         int64     `json:"venue_id"`
	DataType        string    `json:"data_type"`
	Processed       bool      `json:"processed"`
	TotalRecords    int       `json:"total_records"`
	InsertedRecords int64     `json:"inserted_records"`
	ElapsedMs       int64     `json:"elapsed_ms"`
	Error           string    `json:"error,omitempty"`
}
