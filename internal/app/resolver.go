package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yourusername/getcomics-go/internal/domain"
	"github.com/yourusername/getcomics-go/pkg/logger"
)

// EntryClassifier turns a listing entry into download candidates
type EntryClassifier interface {
	Classify(ctx context.Context, entry domain.ListingEntry) ([]domain.DownloadCandidate, error)
}

// EntryFailure is a listing entry whose detail page could not be classified
type EntryFailure struct {
	Entry domain.ListingEntry `json:"entry"`
	Err   error               `json:"-"`
	Error string              `json:"error"`
}

// ResolveResult holds candidates in entry order, plus the entries that
// yielded nothing or failed
type ResolveResult struct {
	Candidates []domain.DownloadCandidate `json:"candidates"`
	Empty      []domain.ListingEntry      `json:"empty,omitempty"`
	Failures   []EntryFailure             `json:"failures,omitempty"`
}

// Resolver classifies listing entries with bounded parallelism
type Resolver struct {
	classifier  EntryClassifier
	concurrency int
	logger      *zap.Logger
	multiLogger *logger.MultiLogger
}

// NewResolver creates a resolver running at most concurrency classifications at once
func NewResolver(classifier EntryClassifier, concurrency int, zapLogger *zap.Logger, multiLogger *logger.MultiLogger) *Resolver {
	if concurrency < 1 {
		concurrency = 1
	}
	if zapLogger == nil {
		zapLogger = zap.NewNop()
	}
	return &Resolver{
		classifier:  classifier,
		concurrency: concurrency,
		logger:      zapLogger,
		multiLogger: multiLogger,
	}
}

type classification struct {
	candidates []domain.DownloadCandidate
	err        error
}

// Resolve classifies every entry. A failing entry never stops the others;
// only cancellation makes Resolve itself fail.
func (r *Resolver) Resolve(ctx context.Context, entries []domain.ListingEntry) (*ResolveResult, error) {
	results := make([]classification, len(entries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for i, entry := range entries {
		i, entry := i, entry
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			candidates, err := r.classifier.Classify(gctx, entry)
			results[i] = classification{candidates: candidates, err: err}
			return nil
		})
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInterrupted, err)
	}

	result := &ResolveResult{}
	for i, res := range results {
		entry := entries[i]
		switch {
		case res.err != nil:
			r.logger.Warn("Skipping entry", zap.String("url", entry.SourceURL), zap.Error(res.err))
			r.multiLogger.LogCrawlEvent("classify_failed",
				zap.String("url", entry.SourceURL),
				zap.Error(res.err))
			result.Failures = append(result.Failures, EntryFailure{Entry: entry, Err: res.err, Error: res.err.Error()})
		case len(res.candidates) == 0:
			result.Empty = append(result.Empty, entry)
		default:
			result.Candidates = append(result.Candidates, res.candidates...)
		}
	}

	r.multiLogger.LogCrawlEvent("classified",
		zap.Int("entries", len(entries)),
		zap.Int("candidates", len(result.Candidates)),
		zap.Int("empty", len(result.Empty)),
		zap.Int("failures", len(result.Failures)))

	return result, nil
}
