package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/yourusername/getcomics-go/internal/domain"
	"github.com/yourusername/getcomics-go/internal/infrastructure"
	"github.com/yourusername/getcomics-go/pkg/logger"
)

// Services holds the wired components shared by the CLI and the server
type Services struct {
	Config      *domain.Config
	Fetcher     *infrastructure.HTTPFetcher
	Crawler     *Crawler
	Resolver    *Resolver
	Allocator   *infrastructure.Allocator
	DownloadMgr *DownloadManager
	Repo        *infrastructure.SQLiteTransferRepository // nil when history is disabled

	logger      *zap.Logger
	multiLogger *logger.MultiLogger
}

// NewServices wires every component from config
func NewServices(config *domain.Config, zapLogger *zap.Logger, multiLogger *logger.MultiLogger) (*Services, error) {
	if zapLogger == nil {
		zapLogger = zap.NewNop()
	}

	fetcher := infrastructure.NewHTTPFetcher(&config.Site, &config.Transfer, zapLogger)
	classifier := infrastructure.NewLinkClassifier(fetcher, config.Site.DirectPrefixes, zapLogger)
	allocator := infrastructure.NewAllocator(fetcher, zapLogger)

	s := &Services{
		Config:      config,
		Fetcher:     fetcher,
		Crawler:     NewCrawler(fetcher, config.Site.BaseURL, zapLogger, multiLogger),
		Resolver:    NewResolver(classifier, config.Discovery.ClassifyConcurrency, zapLogger, multiLogger),
		Allocator:   allocator,
		logger:      zapLogger,
		multiLogger: multiLogger,
	}

	var repo domain.TransferRepository
	if config.History.Enabled {
		if err := os.MkdirAll(filepath.Dir(config.History.DatabasePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
		sqlRepo, err := infrastructure.NewSQLiteTransferRepository(config.History.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize transfer history: %w", err)
		}
		s.Repo = sqlRepo
		repo = sqlRepo
	}

	direct := infrastructure.NewDirectTransport(fetcher, allocator, &config.Transfer, zapLogger)
	delegated := infrastructure.NewDelegatedTransport(&config.Transfer, direct, repo, config.Download.LogsDir, zapLogger)
	notifier := infrastructure.NewNotificationService(&config.Notification, zapLogger)

	s.DownloadMgr = NewDownloadManager(allocator, direct, delegated, repo, notifier, &config.Download, zapLogger, multiLogger)
	return s, nil
}

// Close releases the history database
func (s *Services) Close() error {
	if s.Repo != nil {
		return s.Repo.Close()
	}
	return nil
}

// SearchResult is a crawl plus the classification of what it found
type SearchResult struct {
	Entries     []domain.ListingEntry `json:"entries"`
	Termination domain.Termination    `json:"termination"`
	Resolved    *ResolveResult        `json:"resolved"`
	FetchError  string                `json:"fetch_error,omitempty"`
}

// Search discovers entries for req and classifies them.
// A listing page failure aborts the crawl but keeps what was found.
func (s *Services) Search(ctx context.Context, req domain.ResolvedRequest) (*SearchResult, error) {
	browser, err := s.Browse(req)
	if err != nil {
		return nil, err
	}
	return browser.Next(ctx)
}

// Browse validates req and returns a browser over its results.
// Nothing is fetched until Next is called.
func (s *Services) Browse(req domain.ResolvedRequest) (*Browser, error) {
	session, err := s.Crawler.Start(req)
	if err != nil {
		return nil, err
	}
	return &Browser{services: s, session: session}, nil
}

// Browser pages through a search one quota of entries at a time
type Browser struct {
	services *Services
	session  *Session
}

// Next crawls the next quota of entries and classifies only those.
// The first call returns the same result as Search.
func (b *Browser) Next(ctx context.Context) (*SearchResult, error) {
	b.session.Extend()

	var entries []domain.ListingEntry
	var crawlErr error
	for !b.session.Done() {
		added, err := b.session.Next(ctx)
		entries = append(entries, added...)
		if err != nil {
			b.session.Abort()
			crawlErr = err
			break
		}
	}

	if crawlErr != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInterrupted, ctx.Err())
		}
		b.services.logger.Warn("Listing fetch aborted", zap.Error(crawlErr))
	}

	resolved, err := b.services.Resolver.Resolve(ctx, entries)
	if err != nil {
		return nil, err
	}

	result := &SearchResult{
		Entries:     entries,
		Termination: b.session.Termination(),
		Resolved:    resolved,
	}
	if crawlErr != nil {
		result.FetchError = crawlErr.Error()
	}
	return result, nil
}

// HasMore reports whether another call to Next can find more entries
func (b *Browser) HasMore() bool {
	return b.session.Termination() == domain.TerminationQuotaReached
}
