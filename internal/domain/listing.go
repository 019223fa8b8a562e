package domain

import (
	"strings"
	"time"
)

// ListingEntry is one search or tag result on a listing page
type ListingEntry struct {
	SourceURL   string     `json:"source_url"`
	Title       string     `json:"title"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// OlderThan reports whether the entry was published strictly before floor.
// Entries without a timestamp are never considered older.
func (e ListingEntry) OlderThan(floor time.Time) bool {
	if e.PublishedAt == nil {
		return false
	}
	return e.PublishedAt.Before(floor)
}

// CandidateKind classifies a download link
type CandidateKind string

const (
	KindDirect        CandidateKind = "direct"
	KindAlternateHost CandidateKind = "alternate_host"
)

// AlternateMarker prefixes alternate-host links in their single-string form
const AlternateMarker = "_MEDIAFIRE_"

// DownloadCandidate is one classified link found on a detail page
type DownloadCandidate struct {
	TargetURL string        `json:"target_url"`
	Title     string        `json:"title"`
	Kind      CandidateKind `json:"kind"`
	SourceURL string        `json:"source_url,omitempty"`
}

// IsDirect reports whether the transfer engine can fetch the candidate
func (c DownloadCandidate) IsDirect() bool {
	return c.Kind == KindDirect
}

// Key renders the candidate as a single string, keeping alternates distinguishable
func (c DownloadCandidate) Key() string {
	if c.Kind == KindAlternateHost {
		return AlternateMarker + c.TargetURL
	}
	return c.TargetURL
}

// CandidateFromKey rebuilds a candidate from its Key form
func CandidateFromKey(key, title string) DownloadCandidate {
	if strings.HasPrefix(key, AlternateMarker) {
		return DownloadCandidate{
			TargetURL: strings.TrimPrefix(key, AlternateMarker),
			Title:     title,
			Kind:      KindAlternateHost,
		}
	}
	return DownloadCandidate{TargetURL: key, Title: title, Kind: KindDirect}
}

// Termination tells why a discovery session stopped
type Termination string

const (
	TerminationNone              Termination = ""
	TerminationQuotaReached      Termination = "quota_reached"
	TerminationNoMoreEntries     Termination = "no_more_entries"
	TerminationDateFloorExceeded Termination = "date_floor_exceeded"
	TerminationFetchAborted      Termination = "fetch_aborted"
)
