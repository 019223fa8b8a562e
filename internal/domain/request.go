package domain

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the day format used by listing timestamps and user input
const DateLayout = "2006-01-02"

// ResolvedRequest is a fully resolved search produced by the CLI, API or menu
type ResolvedRequest struct {
	Query                  string     `json:"query,omitempty" yaml:"query,omitempty"`
	Tag                    string     `json:"tag,omitempty" yaml:"tag,omitempty"`
	ResultQuota            int        `json:"result_quota" yaml:"result_quota"` // 0 means unbounded
	DateFloor              *time.Time `json:"date_floor,omitempty" yaml:"date_floor,omitempty"`
	MinIssue               *int       `json:"min_issue,omitempty" yaml:"min_issue,omitempty"`
	DestinationDir         string     `json:"destination_dir" yaml:"destination_dir"`
	Verbose                bool       `json:"verbose" yaml:"verbose"`
	UseAcceleratedTransfer bool       `json:"use_accelerated_transfer" yaml:"use_accelerated_transfer"`
}

// Validate checks the request before any network activity
func (r *ResolvedRequest) Validate() error {
	query := strings.TrimSpace(r.Query)
	tag := strings.TrimSpace(r.Tag)

	if query != "" && tag != "" {
		return &ConfigurationError{Field: "query", Reason: "a search query and a tag are mutually exclusive"}
	}
	if query == "" && tag == "" {
		return &ConfigurationError{Field: "query", Reason: "a search query or a tag is required"}
	}
	if r.ResultQuota < 0 {
		return &ConfigurationError{Field: "result_quota", Reason: fmt.Sprintf("must not be negative, got %d", r.ResultQuota)}
	}
	if r.MinIssue != nil && tag != "" {
		return &ConfigurationError{Field: "min_issue", Reason: "only applies to a search query"}
	}
	return nil
}

// IsTagSearch reports whether the request walks a tag archive
func (r *ResolvedRequest) IsTagSearch() bool {
	return strings.TrimSpace(r.Tag) != ""
}

// SearchTerms returns the terms sent to the site, including the minimum issue
func (r *ResolvedRequest) SearchTerms() string {
	if r.IsTagSearch() {
		return strings.TrimSpace(r.Tag)
	}
	query := strings.TrimSpace(r.Query)
	if r.MinIssue != nil {
		query = fmt.Sprintf("%s %d", query, *r.MinIssue)
	}
	return query
}

// ParseDate parses a user supplied date, accepting "/" and "." as separators
func ParseDate(s string) (time.Time, error) {
	normalized := strings.NewReplacer("/", "-", ".", "-").Replace(strings.TrimSpace(s))
	t, err := time.Parse(DateLayout, normalized)
	if err != nil {
		return time.Time{}, fmt.Errorf("date must be YYYY-MM-DD: %w", err)
	}
	return t, nil
}
