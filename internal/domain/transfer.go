package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TransferState represents the lifecycle position of a transfer
type TransferState string

const (
	StatePending   TransferState = "pending"
	StateInFlight  TransferState = "in_flight"
	StateCompleted TransferState = "completed"
	StateFailed    TransferState = "failed"
)

// TransportKind names the transport that performed a transfer
type TransportKind string

const (
	TransportDirect    TransportKind = "direct"
	TransportDelegated TransportKind = "delegated"
)

// TransferTask represents one in-flight or completed download
type TransferTask struct {
	ID               string        `json:"id" gorm:"primaryKey"`
	URL              string        `json:"url" gorm:"not null"`
	Title            string        `json:"title"`
	DestinationPath  string        `json:"destination_path" gorm:"index"`
	TempPath         string        `json:"temp_path,omitempty"`
	TotalBytes       int64         `json:"total_bytes"` // 0 when unknown
	BytesTransferred int64         `json:"bytes_transferred"`
	State            TransferState `json:"state" gorm:"not null;index"`
	Transport        TransportKind `json:"transport,omitempty"`
	Attempts         int           `json:"attempts" gorm:"default:0"`
	ErrorMessage     string        `json:"error_message,omitempty"`
	CreatedAt        time.Time     `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt        time.Time     `json:"updated_at" gorm:"autoUpdateTime"`
	StartedAt        *time.Time    `json:"started_at,omitempty"`
	CompletedAt      *time.Time    `json:"completed_at,omitempty"`
}

// TableName specifies the table name for GORM
func (TransferTask) TableName() string {
	return "transfers"
}

// NewTransferTask creates a pending transfer
func NewTransferTask(url, title, destinationPath string) *TransferTask {
	now := time.Now()
	return &TransferTask{
		ID:              uuid.New().String(),
		URL:             url,
		Title:           title,
		DestinationPath: destinationPath,
		State:           StatePending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// MarkInFlight marks the transfer as started
func (t *TransferTask) MarkInFlight() error {
	if t.State != StatePending && t.State != StateInFlight {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.State, StateInFlight)
	}
	now := time.Now()
	t.State = StateInFlight
	t.Attempts++
	if t.StartedAt == nil {
		t.StartedAt = &now
	}
	t.UpdatedAt = now
	return nil
}

// MarkCompleted marks the transfer as placed at its destination
func (t *TransferTask) MarkCompleted() error {
	if t.State != StateInFlight {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.State, StateCompleted)
	}
	now := time.Now()
	t.State = StateCompleted
	t.TempPath = ""
	t.ErrorMessage = ""
	t.CompletedAt = &now
	t.UpdatedAt = now
	return nil
}

// MarkFailed marks the transfer as failed
func (t *TransferTask) MarkFailed(err error) error {
	if t.IsTerminal() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.State, StateFailed)
	}
	t.State = StateFailed
	if err != nil {
		t.ErrorMessage = err.Error()
	}
	t.UpdatedAt = time.Now()
	return nil
}

// ResetForRetry returns an in-flight transfer to a clean in-flight attempt
func (t *TransferTask) ResetForRetry() {
	t.BytesTransferred = 0
	t.TotalBytes = 0
	t.TempPath = ""
	t.UpdatedAt = time.Now()
}

// IsTerminal checks if the transfer is in a terminal state
func (t *TransferTask) IsTerminal() bool {
	return t.State == StateCompleted || t.State == StateFailed
}

// Percent returns the completion percentage, or -1 when the size is unknown
func (t *TransferTask) Percent() float64 {
	if t.TotalBytes <= 0 {
		return -1
	}
	return float64(t.BytesTransferred) / float64(t.TotalBytes) * 100
}

// OutcomeStatus is the per-item result reported by the download manager
type OutcomeStatus string

const (
	OutcomeSucceeded  OutcomeStatus = "succeeded"
	OutcomeFailed     OutcomeStatus = "failed"
	OutcomeInstructed OutcomeStatus = "instructed"
	OutcomeSkipped    OutcomeStatus = "skipped"
)

// Outcome is the result of processing one selected candidate
type Outcome struct {
	Title            string        `json:"title"`
	URL              string        `json:"url"`
	Status           OutcomeStatus `json:"status"`
	Err              error         `json:"-"`
	Error            string        `json:"error,omitempty"`
	BytesTransferred int64         `json:"bytes_transferred"`
	FinalPath        string        `json:"final_path,omitempty"`
}

// Failed creates a failed outcome for a candidate
func Failed(c DownloadCandidate, err error) Outcome {
	o := Outcome{Title: c.Title, URL: c.TargetURL, Status: OutcomeFailed, Err: err}
	if err != nil {
		o.Error = err.Error()
	}
	return o
}
