package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yourusername/getcomics-go/internal/domain"
	"github.com/yourusername/getcomics-go/pkg/logger"
)

// BatchStatus is the lifecycle of a queued batch
type BatchStatus string

const (
	BatchQueued   BatchStatus = "queued"
	BatchRunning  BatchStatus = "running"
	BatchFinished BatchStatus = "finished"
)

// ErrQueueFull is returned when no more batches can be accepted
var ErrQueueFull = errors.New("download queue is full")

const queueCapacity = 32

// Batch is a set of candidates submitted for background download
type Batch struct {
	ID             string                     `json:"id"`
	Status         BatchStatus                `json:"status"`
	DestinationDir string                     `json:"destination_dir"`
	Accelerated    bool                       `json:"accelerated"`
	Candidates     []domain.DownloadCandidate `json:"candidates"`
	Outcomes       []domain.Outcome           `json:"outcomes,omitempty"`
	CreatedAt      time.Time                  `json:"created_at"`
	FinishedAt     *time.Time                 `json:"finished_at,omitempty"`
}

func (b *Batch) snapshot() *Batch {
	c := *b
	c.Candidates = append([]domain.DownloadCandidate(nil), b.Candidates...)
	c.Outcomes = append([]domain.Outcome(nil), b.Outcomes...)
	return &c
}

// QueueManager runs submitted batches one after another in the background
type QueueManager struct {
	downloadMgr *DownloadManager
	multiLogger *logger.MultiLogger
	logger      *zap.Logger

	mu       sync.RWMutex
	running  bool
	stopChan chan struct{}
	workerWg sync.WaitGroup
	pending  chan *Batch
	batches  map[string]*Batch
	order    []string
}

// NewQueueManager creates a new queue manager
func NewQueueManager(downloadMgr *DownloadManager, zapLogger *zap.Logger, multiLogger *logger.MultiLogger) *QueueManager {
	if zapLogger == nil {
		zapLogger = zap.NewNop()
	}
	return &QueueManager{
		downloadMgr: downloadMgr,
		multiLogger: multiLogger,
		logger:      zapLogger,
		pending:     make(chan *Batch, queueCapacity),
		batches:     make(map[string]*Batch),
	}
}

// Start starts the queue processor
func (qm *QueueManager) Start(ctx context.Context) error {
	qm.mu.Lock()
	if qm.running {
		qm.mu.Unlock()
		return fmt.Errorf("queue manager already running")
	}
	qm.running = true
	// a fresh stop channel per run so the manager can be restarted
	stop := make(chan struct{})
	qm.stopChan = stop
	qm.mu.Unlock()

	qm.multiLogger.LogTransferEvent("queue_started")

	runCtx, cancel := context.WithCancel(ctx)
	qm.workerWg.Add(1)
	go func() {
		defer cancel()
		qm.processQueue(runCtx, stop)
	}()

	return nil
}

// Stop stops the queue processor and waits for the current batch.
// The running batch is cancelled; its remaining items end as interrupted.
func (qm *QueueManager) Stop() error {
	qm.mu.Lock()
	if !qm.running {
		qm.mu.Unlock()
		return fmt.Errorf("queue manager not running")
	}
	qm.running = false
	stop := qm.stopChan
	qm.mu.Unlock()

	qm.multiLogger.LogTransferEvent("queue_stopped")
	close(stop)
	qm.workerWg.Wait()

	return nil
}

// IsRunning returns whether the queue manager is running
func (qm *QueueManager) IsRunning() bool {
	qm.mu.RLock()
	defer qm.mu.RUnlock()
	return qm.running
}

// Submit queues candidates for download into dir
func (qm *QueueManager) Submit(candidates []domain.DownloadCandidate, dir string, accelerated bool) (*Batch, error) {
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no candidates to download")
	}
	if dir == "" {
		return nil, fmt.Errorf("destination directory is required")
	}

	batch := &Batch{
		ID:             uuid.New().String(),
		Status:         BatchQueued,
		DestinationDir: dir,
		Accelerated:    accelerated,
		Candidates:     append([]domain.DownloadCandidate(nil), candidates...),
		CreatedAt:      time.Now(),
	}

	qm.mu.Lock()
	defer qm.mu.Unlock()
	if !qm.running {
		return nil, fmt.Errorf("queue manager not running")
	}

	select {
	case qm.pending <- batch:
	default:
		return nil, ErrQueueFull
	}
	qm.batches[batch.ID] = batch
	qm.order = append(qm.order, batch.ID)

	qm.multiLogger.LogTransferEvent("batch_added",
		zap.String("id", batch.ID),
		zap.Int("items", len(candidates)),
		zap.String("dir", dir))

	return batch.snapshot(), nil
}

// GetBatch returns a snapshot of a batch, or nil when unknown
func (qm *QueueManager) GetBatch(id string) *Batch {
	qm.mu.RLock()
	defer qm.mu.RUnlock()
	if b, ok := qm.batches[id]; ok {
		return b.snapshot()
	}
	return nil
}

// ListBatches returns snapshots of all batches, oldest first
func (qm *QueueManager) ListBatches() []*Batch {
	qm.mu.RLock()
	defer qm.mu.RUnlock()
	out := make([]*Batch, 0, len(qm.order))
	for _, id := range qm.order {
		out = append(out, qm.batches[id].snapshot())
	}
	return out
}

// processQueue runs batches until stopped
func (qm *QueueManager) processQueue(ctx context.Context, stop <-chan struct{}) {
	defer qm.workerWg.Done()

	for {
		select {
		case <-ctx.Done():
			qm.multiLogger.LogTransferEvent("queue_processor_stopped", zap.String("reason", "context_cancelled"))
			return
		case <-stop:
			qm.multiLogger.LogTransferEvent("queue_processor_stopped", zap.String("reason", "stop_signal"))
			return
		case batch := <-qm.pending:
			qm.runBatch(ctx, batch, stop)
		}
	}
}

func (qm *QueueManager) runBatch(ctx context.Context, batch *Batch, stop <-chan struct{}) {
	batchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-stop:
			cancel()
		case <-batchCtx.Done():
		}
	}()

	qm.mu.Lock()
	batch.Status = BatchRunning
	qm.mu.Unlock()

	qm.logger.Info("Processing batch", zap.String("id", batch.ID), zap.Int("items", len(batch.Candidates)))

	outcomes := qm.downloadMgr.Run(batchCtx, batch.Candidates, RunOptions{
		DestinationDir: batch.DestinationDir,
		Accelerated:    batch.Accelerated,
	})

	now := time.Now()
	qm.mu.Lock()
	batch.Status = BatchFinished
	batch.Outcomes = outcomes
	batch.FinishedAt = &now
	qm.mu.Unlock()

	qm.multiLogger.LogTransferEvent("batch_completed", zap.String("id", batch.ID))
}
