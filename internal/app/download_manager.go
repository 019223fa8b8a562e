package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/getcomics-go/internal/domain"
	"github.com/yourusername/getcomics-go/pkg/logger"
)

// FilenameAllocator reserves unique destination paths
type FilenameAllocator interface {
	Allocate(ctx context.Context, rawURL, dir string) (string, error)
	Release(path string)
}

// Notifier receives transfer notifications
type Notifier interface {
	NotifyTransferCompleted(title, path string)
	NotifyTransferFailed(title string, err error)
	NotifyBatchFinished(succeeded, failed int)
}

// Recoverer resumes partial transfers left in a directory
type Recoverer interface {
	Recover(ctx context.Context, dir string, sink domain.ProgressSink) ([]domain.Outcome, error)
}

// RunOptions controls one batch
type RunOptions struct {
	DestinationDir string
	Accelerated    bool
	Confirmer      domain.Confirmer       // nil downloads everything
	Instructions   domain.InstructionSink // nil drops alternate-host instructions
	Progress       domain.ProgressSink
}

// DownloadManager turns selected candidates into files
type DownloadManager struct {
	allocator   FilenameAllocator
	direct      domain.Transport
	accelerated domain.Transport
	repo        domain.TransferRepository
	notifier    Notifier
	config      *domain.DownloadConfig
	logger      *zap.Logger
	multiLogger *logger.MultiLogger
}

// NewDownloadManager creates a new download manager.
// accelerated, repo and notifier may be nil.
func NewDownloadManager(
	allocator FilenameAllocator,
	direct domain.Transport,
	accelerated domain.Transport,
	repo domain.TransferRepository,
	notifier Notifier,
	config *domain.DownloadConfig,
	zapLogger *zap.Logger,
	multiLogger *logger.MultiLogger,
) *DownloadManager {
	if zapLogger == nil {
		zapLogger = zap.NewNop()
	}
	return &DownloadManager{
		allocator:   allocator,
		direct:      direct,
		accelerated: accelerated,
		repo:        repo,
		notifier:    notifier,
		config:      config,
		logger:      zapLogger,
		multiLogger: multiLogger,
	}
}

// Run processes candidates and returns one outcome per candidate, in input order.
// Confirmations happen one at a time in order; transfers overlap up to the
// concurrent limit. After cancellation nothing new is started.
func (dm *DownloadManager) Run(ctx context.Context, candidates []domain.DownloadCandidate, opts RunOptions) []domain.Outcome {
	outcomes := make([]domain.Outcome, len(candidates))
	if len(candidates) == 0 {
		return outcomes
	}

	if opts.Progress == nil {
		opts.Progress = domain.NopProgress
	}

	dirErr := os.MkdirAll(opts.DestinationDir, 0755)
	if dirErr != nil {
		dirErr = fmt.Errorf("failed to create destination directory: %w", dirErr)
	}

	limit := dm.config.ConcurrentLimit
	if limit < 1 {
		limit = 1
	}
	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup

	for i, c := range candidates {
		if ctx.Err() != nil {
			outcomes[i] = domain.Failed(c, domain.ErrInterrupted)
			continue
		}

		if !c.IsDirect() {
			if opts.Instructions != nil {
				opts.Instructions.Instruct(c.Title, c.TargetURL)
			}
			outcomes[i] = domain.Outcome{Title: c.Title, URL: c.TargetURL, Status: domain.OutcomeInstructed}
			continue
		}

		if dirErr != nil {
			outcomes[i] = domain.Failed(c, dirErr)
			continue
		}

		if opts.Confirmer != nil {
			ok, err := opts.Confirmer.Confirm(ctx, c.Title)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, domain.ErrInterrupted) {
					err = domain.ErrInterrupted
				}
				outcomes[i] = domain.Failed(c, err)
				continue
			}
			if !ok {
				outcomes[i] = domain.Outcome{Title: c.Title, URL: c.TargetURL, Status: domain.OutcomeSkipped}
				continue
			}
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			outcomes[i] = domain.Failed(c, domain.ErrInterrupted)
			continue
		}

		wg.Add(1)
		go func(i int, c domain.DownloadCandidate) {
			defer wg.Done()
			defer func() { <-sem }()
			outcomes[i] = dm.transfer(ctx, c, opts)
		}(i, c)
	}
	wg.Wait()

	succeeded, failed := 0, 0
	for _, o := range outcomes {
		switch o.Status {
		case domain.OutcomeSucceeded:
			succeeded++
		case domain.OutcomeFailed:
			failed++
		}
	}
	dm.multiLogger.LogTransferEvent("batch_finished",
		zap.Int("items", len(candidates)),
		zap.Int("succeeded", succeeded),
		zap.Int("failed", failed))
	if dm.notifier != nil && succeeded+failed > 0 {
		dm.notifier.NotifyBatchFinished(succeeded, failed)
	}

	return outcomes
}

// transfer allocates a destination and runs the transport with retries
func (dm *DownloadManager) transfer(ctx context.Context, c domain.DownloadCandidate, opts RunOptions) domain.Outcome {
	transport := dm.direct
	if opts.Accelerated && dm.accelerated != nil {
		transport = dm.accelerated
	}

	dest, err := dm.allocator.Allocate(ctx, c.TargetURL, opts.DestinationDir)
	if err != nil {
		dm.logger.Error("Failed to allocate destination", zap.String("url", c.TargetURL), zap.Error(err))
		return domain.Failed(c, err)
	}

	task := domain.NewTransferTask(c.TargetURL, c.Title, dest)
	task.Transport = transport.Kind()
	defer func() { dm.allocator.Release(task.DestinationPath) }()
	dm.save(task)

	dm.logger.Info("Downloading", zap.String("title", c.Title), zap.String("path", dest))

	var lastErr error
	for attempt := 0; attempt <= dm.config.MaxRetries; attempt++ {
		if attempt > 0 {
			dm.logger.Info("Retrying download",
				zap.String("id", task.ID),
				zap.Int("attempt", attempt),
				zap.Int("max_retries", dm.config.MaxRetries))

			select {
			case <-time.After(dm.config.RetryDelay):
			case <-ctx.Done():
				lastErr = fmt.Errorf("%w: %v", domain.ErrInterrupted, ctx.Err())
			}
			if ctx.Err() != nil {
				break
			}
			task.ResetForRetry()
		}

		task.MarkInFlight()
		dm.save(task)
		dm.multiLogger.LogTransferEvent("transfer_started",
			zap.String("id", task.ID),
			zap.String("url", task.URL),
			zap.String("path", task.DestinationPath),
			zap.String("transport", string(task.Transport)),
			zap.Int("attempt", task.Attempts))

		err := transport.Transfer(ctx, task, opts.Progress)
		if err == nil {
			task.MarkCompleted()
			dm.save(task)

			dm.logger.Info("Download completed",
				zap.String("id", task.ID),
				zap.String("file", task.DestinationPath),
				zap.Int64("bytes", task.BytesTransferred))
			dm.multiLogger.LogTransferEvent("transfer_completed",
				zap.String("id", task.ID),
				zap.String("path", task.DestinationPath),
				zap.Int64("bytes", task.BytesTransferred))
			if dm.notifier != nil {
				dm.notifier.NotifyTransferCompleted(task.Title, task.DestinationPath)
			}

			return domain.Outcome{
				Title:            c.Title,
				URL:              c.TargetURL,
				Status:           domain.OutcomeSucceeded,
				BytesTransferred: task.BytesTransferred,
				FinalPath:        task.DestinationPath,
			}
		}

		lastErr = err
		dm.logger.Warn("Download attempt failed",
			zap.String("id", task.ID),
			zap.Int("attempt", attempt),
			zap.Error(err))

		if ctx.Err() != nil || !retryable(err) {
			break
		}
	}

	task.MarkFailed(lastErr)
	dm.save(task)

	dm.logger.Error("Download failed",
		zap.String("id", task.ID),
		zap.String("url", task.URL),
		zap.Error(lastErr))
	dm.multiLogger.LogTransferEvent("transfer_failed",
		zap.String("id", task.ID),
		zap.String("url", task.URL),
		zap.Error(lastErr))
	dm.multiLogger.LogAppError("Transfer failed",
		zap.String("id", task.ID),
		zap.Error(lastErr))
	if dm.notifier != nil && !errors.Is(lastErr, domain.ErrInterrupted) {
		dm.notifier.NotifyTransferFailed(task.Title, lastErr)
	}

	outcome := domain.Failed(c, lastErr)
	outcome.BytesTransferred = task.BytesTransferred
	return outcome
}

// Recover resumes partial accelerated transfers in dir.
// It is refused unless acceleration is enabled for the caller.
func (dm *DownloadManager) Recover(ctx context.Context, dir string, accelerated bool, sink domain.ProgressSink) ([]domain.Outcome, error) {
	if !accelerated {
		return nil, fmt.Errorf("%w: acceleration is turned off", domain.ErrHelperUnavailable)
	}
	recoverer, ok := dm.accelerated.(Recoverer)
	if !ok {
		return nil, fmt.Errorf("%w: accelerated transfers are disabled", domain.ErrHelperUnavailable)
	}
	outcomes, err := recoverer.Recover(ctx, dir, sink)
	dm.multiLogger.LogTransferEvent("recovery_finished",
		zap.String("dir", dir),
		zap.Int("items", len(outcomes)),
		zap.Error(err))
	return outcomes, err
}

// ListTransfers returns transfer history, newest first
func (dm *DownloadManager) ListTransfers(filters map[string]interface{}, limit int) ([]*domain.TransferTask, error) {
	if dm.repo == nil {
		return []*domain.TransferTask{}, nil
	}
	return dm.repo.FindAll(filters, limit)
}

// GetStats returns transfer history statistics
func (dm *DownloadManager) GetStats() (*domain.TransferStats, error) {
	if dm.repo == nil {
		return &domain.TransferStats{}, nil
	}
	return dm.repo.GetStats()
}

func (dm *DownloadManager) save(task *domain.TransferTask) {
	if dm.repo == nil {
		return
	}
	if err := dm.repo.Save(task); err != nil {
		dm.logger.Error("Failed to update transfer history", zap.String("id", task.ID), zap.Error(err))
	}
}

// retryable reports whether a failed attempt is worth repeating.
// Timeouts were already retried by the fetcher.
func retryable(err error) bool {
	if errors.Is(err, domain.ErrFetchTimeout) || errors.Is(err, domain.ErrInterrupted) {
		return false
	}
	var te *domain.TransferError
	if errors.As(err, &te) {
		return te.Retryable()
	}
	return true
}
