package app

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/yourusername/getcomics-go/internal/domain"
	"github.com/yourusername/getcomics-go/internal/infrastructure"
	"github.com/yourusername/getcomics-go/pkg/logger"
)

// Crawler walks the paginated listing of the origin site
type Crawler struct {
	fetcher     infrastructure.PageFetcher
	baseURL     string
	logger      *zap.Logger
	multiLogger *logger.MultiLogger
}

// NewCrawler creates a crawler for the site at baseURL
func NewCrawler(fetcher infrastructure.PageFetcher, baseURL string, zapLogger *zap.Logger, multiLogger *logger.MultiLogger) *Crawler {
	if zapLogger == nil {
		zapLogger = zap.NewNop()
	}
	return &Crawler{
		fetcher:     fetcher,
		baseURL:     strings.TrimRight(baseURL, "/"),
		logger:      zapLogger,
		multiLogger: multiLogger,
	}
}

// Start validates req and returns a session positioned at the first page.
// No request is made until Next is called.
func (c *Crawler) Start(req domain.ResolvedRequest) (*Session, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &Session{
		crawler: c,
		req:     req,
		quota:   req.ResultQuota,
		page:    1,
		seen:    make(map[string]bool),
	}, nil
}

// Discover runs a session to completion, aborting on the first page failure.
// Entries collected before a failure are returned together with the error.
func (c *Crawler) Discover(ctx context.Context, req domain.ResolvedRequest) ([]domain.ListingEntry, domain.Termination, error) {
	session, err := c.Start(req)
	if err != nil {
		return nil, domain.TerminationNone, err
	}

	for !session.Done() {
		if _, err := session.Next(ctx); err != nil {
			session.Abort()
			return session.Entries(), session.Termination(), err
		}
	}
	return session.Entries(), session.Termination(), nil
}

// PageURL returns the listing URL of page n for req
func (c *Crawler) PageURL(req domain.ResolvedRequest, n int) string {
	if req.IsTagSearch() {
		return fmt.Sprintf("%s/tag/%s/page/%d", c.baseURL, url.PathEscape(req.SearchTerms()), n)
	}
	return fmt.Sprintf("%s/page/%d?s=%s", c.baseURL, n, url.QueryEscape(req.SearchTerms()))
}

// Session is one lazy crawl. It is not safe for concurrent use.
type Session struct {
	crawler *Crawler
	req     domain.ResolvedRequest
	quota   int
	page    int
	entries []domain.ListingEntry
	seen    map[string]bool
	// rest of a page cut short by the quota, consumed before the next fetch
	leftover    []domain.ListingEntry
	termination domain.Termination
}

// Next fetches the current listing page and returns the entries it added.
// On a fetch failure the session stays on the same page, so calling Next
// again retries it.
func (s *Session) Next(ctx context.Context) ([]domain.ListingEntry, error) {
	if s.Done() {
		return nil, nil
	}
	if len(s.leftover) > 0 {
		parsed := s.leftover
		s.leftover = nil
		return s.accept(parsed), nil
	}

	pageURL := s.crawler.PageURL(s.req, s.page)
	s.crawler.logger.Debug("Fetching listing page", zap.Int("page", s.page), zap.String("url", pageURL))

	body, err := s.crawler.fetcher.FetchPage(ctx, pageURL)
	if err != nil {
		s.crawler.multiLogger.LogCrawlEvent("page_failed",
			zap.Int("page", s.page),
			zap.String("url", pageURL),
			zap.Error(err))
		return nil, &domain.PageFetchError{Stage: domain.StageListing, URL: pageURL, Page: s.page, Err: err}
	}

	parsed, err := infrastructure.ParseListing(body, pageURL)
	if err != nil {
		return nil, &domain.PageFetchError{Stage: domain.StageListing, URL: pageURL, Page: s.page, Err: err}
	}
	s.page++

	added := s.accept(parsed)

	s.crawler.multiLogger.LogCrawlEvent("page_fetched",
		zap.Int("page", s.page-1),
		zap.String("url", pageURL),
		zap.Int("articles", len(parsed)),
		zap.Int("added", len(added)),
		zap.String("termination", string(s.termination)))

	return added, nil
}

// accept applies the stop conditions entry by entry
func (s *Session) accept(parsed []domain.ListingEntry) []domain.ListingEntry {
	if len(parsed) == 0 {
		s.termination = domain.TerminationNoMoreEntries
		return nil
	}

	var added []domain.ListingEntry
	fresh := 0
	for i, entry := range parsed {
		if s.seen[entry.SourceURL] {
			continue
		}
		fresh++

		if s.req.DateFloor != nil && entry.OlderThan(*s.req.DateFloor) {
			s.termination = domain.TerminationDateFloorExceeded
			return added
		}

		s.seen[entry.SourceURL] = true
		s.entries = append(s.entries, entry)
		added = append(added, entry)

		if s.quota > 0 && len(s.entries) >= s.quota {
			s.termination = domain.TerminationQuotaReached
			s.leftover = parsed[i+1:]
			return added
		}
	}

	// a page of repeats means the site is serving the last page again
	if fresh == 0 {
		s.termination = domain.TerminationNoMoreEntries
	}
	return added
}

// Extend lifts a reached quota by another quota's worth of entries so the
// session can continue. It reports false when the session stopped for any
// other reason.
func (s *Session) Extend() bool {
	if s.termination != domain.TerminationQuotaReached {
		return false
	}
	s.quota += s.req.ResultQuota
	s.termination = domain.TerminationNone
	return true
}

// Abort ends the session after a failed page
func (s *Session) Abort() {
	if s.termination == domain.TerminationNone {
		s.termination = domain.TerminationFetchAborted
	}
}

// Done reports whether the session has terminated
func (s *Session) Done() bool {
	return s.termination != domain.TerminationNone
}

// Termination returns why the session stopped, or TerminationNone while running
func (s *Session) Termination() domain.Termination {
	return s.termination
}

// Page returns the number of the next page to fetch
func (s *Session) Page() int {
	return s.page
}

// Entries returns a snapshot of the accepted entries in discovery order
func (s *Session) Entries() []domain.ListingEntry {
	out := make([]domain.ListingEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Listings maps each accepted listing URL to its title
func (s *Session) Listings() map[string]string {
	listings := make(map[string]string, len(s.entries))
	for _, e := range s.entries {
		listings[e.SourceURL] = e.Title
	}
	return listings
}
