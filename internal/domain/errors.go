package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrFetchTimeout is returned once a request timed out twice in a row
	ErrFetchTimeout = errors.New("fetch timeout")

	// ErrHelperUnavailable means the accelerated transfer helper cannot be used
	ErrHelperUnavailable = errors.New("accelerated transfer helper unavailable")

	// ErrInterrupted marks work that was stopped by the user
	ErrInterrupted = errors.New("interrupted by user")

	// ErrDestinationExists means another writer created the destination first
	ErrDestinationExists = errors.New("destination already exists")

	// ErrInvalidTransition is returned when a transfer task changes state out of order
	ErrInvalidTransition = errors.New("invalid transfer state transition")
)

// ConfigurationError reports a request that cannot be executed as given
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "configuration error: " + e.Reason
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// FetchStage tells which crawl stage a page belongs to
type FetchStage string

const (
	StageListing FetchStage = "listing"
	StageDetail  FetchStage = "detail"
)

// PageFetchError reports an unreachable listing or detail page
type PageFetchError struct {
	Stage FetchStage
	URL   string
	Page  int // listing page number, 0 for detail pages
	Err   error
}

func (e *PageFetchError) Error() string {
	return fmt.Sprintf("fetch %s page %s: %v", e.Stage, e.URL, e.Err)
}

func (e *PageFetchError) Unwrap() error { return e.Err }

// Timeout reports whether the fetch failed because of repeated timeouts
func (e *PageFetchError) Timeout() bool {
	return errors.Is(e.Err, ErrFetchTimeout)
}

// TransferError reports a failed artifact retrieval
type TransferError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *TransferError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transfer %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("transfer %s: %v", e.URL, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// Retryable reports whether another attempt could succeed
func (e *TransferError) Retryable() bool {
	if errors.Is(e.Err, ErrFetchTimeout) || errors.Is(e.Err, ErrInterrupted) || errors.Is(e.Err, ErrDestinationExists) {
		return false
	}
	if e.StatusCode != 0 {
		return e.StatusCode >= 500 || e.StatusCode == 429
	}
	return e.Err != nil
}

// NewHTTPStatusError creates a TransferError for a non-success response
func NewHTTPStatusError(url string, status int) *TransferError {
	return &TransferError{URL: url, StatusCode: status}
}
