package app

import (
	"context"
	"errors"
	"path"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/getcomics-go/internal/domain"
)

type stubAllocator struct {
	mu       sync.Mutex
	released []string
}

func (a *stubAllocator) Allocate(_ context.Context, rawURL, dir string) (string, error) {
	return filepath.Join(dir, path.Base(rawURL)+".cbz"), nil
}

func (a *stubAllocator) Release(p string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.released = append(a.released, p)
}

// stubTransport fails each URL with the queued errors before succeeding
type stubTransport struct {
	kind  domain.TransportKind
	delay time.Duration

	mu       sync.Mutex
	failures map[string][]error
	calls    map[string]int

	inFlight atomic.Int32
	peak     atomic.Int32
}

func newStubTransport(kind domain.TransportKind) *stubTransport {
	return &stubTransport{kind: kind, failures: make(map[string][]error), calls: make(map[string]int)}
}

func (s *stubTransport) Kind() domain.TransportKind { return s.kind }

func (s *stubTransport) Transfer(ctx context.Context, task *domain.TransferTask, sink domain.ProgressSink) error {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}

	s.mu.Lock()
	s.calls[task.URL]++
	var err error
	if queued := s.failures[task.URL]; len(queued) > 0 {
		err = queued[0]
		s.failures[task.URL] = queued[1:]
	}
	s.mu.Unlock()

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return &domain.TransferError{URL: task.URL, Err: domain.ErrInterrupted}
		}
	}
	if err != nil {
		return err
	}
	task.BytesTransferred = 10
	task.TotalBytes = 10
	sink.Progress(task)
	return nil
}

func (s *stubTransport) callCount(url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[url]
}

type memRepo struct {
	mu    sync.Mutex
	tasks map[string]domain.TransferTask
}

func newMemRepo() *memRepo { return &memRepo{tasks: make(map[string]domain.TransferTask)} }

func (r *memRepo) Save(task *domain.TransferTask) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[task.ID] = *task
	return nil
}

func (r *memRepo) FindByID(id string) (*domain.TransferTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tasks[id]; ok {
		return &t, nil
	}
	return nil, nil
}

func (r *memRepo) FindByDestination(p string) (*domain.TransferTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tasks {
		if t.DestinationPath == p {
			t := t
			return &t, nil
		}
	}
	return nil, nil
}

func (r *memRepo) FindAll(_ map[string]interface{}, _ int) ([]*domain.TransferTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.TransferTask, 0, len(r.tasks))
	for _, t := range r.tasks {
		t := t
		out = append(out, &t)
	}
	return out, nil
}

func (r *memRepo) GetStats() (*domain.TransferStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := &domain.TransferStats{Total: int64(len(r.tasks))}
	for _, t := range r.tasks {
		if t.State == domain.StateCompleted {
			stats.Completed++
		}
	}
	return stats, nil
}

type recordingNotifier struct {
	mu        sync.Mutex
	completed []string
	failed    []string
	batches   int
}

func (n *recordingNotifier) NotifyTransferCompleted(title, _ string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completed = append(n.completed, title)
}

func (n *recordingNotifier) NotifyTransferFailed(title string, _ error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, title)
}

func (n *recordingNotifier) NotifyBatchFinished(_, _ int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.batches++
}

type answerConfirmer struct {
	answers map[string]bool
	asked   []string
	onAsk   func(title string) error
}

func (c *answerConfirmer) Confirm(_ context.Context, title string) (bool, error) {
	c.asked = append(c.asked, title)
	if c.onAsk != nil {
		if err := c.onAsk(title); err != nil {
			return false, err
		}
	}
	answer, ok := c.answers[title]
	return !ok || answer, nil
}

type instructionRecorder struct {
	lines []string
}

func (r *instructionRecorder) Instruct(title, url string) {
	r.lines = append(r.lines, title+" "+url)
}

func testDownloadConfig() *domain.DownloadConfig {
	return &domain.DownloadConfig{MaxRetries: 1, RetryDelay: time.Millisecond, ConcurrentLimit: 2}
}

func TestDownloadManager_RunMixedBatch(t *testing.T) {
	dir := t.TempDir()
	transport := newStubTransport(domain.TransportDirect)
	allocator := &stubAllocator{}
	repo := newMemRepo()
	notifier := &recordingNotifier{}
	dm := NewDownloadManager(allocator, transport, nil, repo, notifier, testDownloadConfig(), nil, nil)

	candidates := []domain.DownloadCandidate{
		direct("https://getcomics.org/dlds/one", "One"),
		alternate("https://mediafire.com/file/two", "Two"),
		direct("https://getcomics.org/dlds/three", "Three"),
		direct("https://getcomics.org/dlds/four", "Four"),
	}
	confirmer := &answerConfirmer{answers: map[string]bool{"Three": false}}
	instructions := &instructionRecorder{}

	outcomes := dm.Run(context.Background(), candidates, RunOptions{
		DestinationDir: dir,
		Confirmer:      confirmer,
		Instructions:   instructions,
	})

	require.Len(t, outcomes, 4)
	assert.Equal(t, domain.OutcomeSucceeded, outcomes[0].Status)
	assert.Equal(t, filepath.Join(dir, "one.cbz"), outcomes[0].FinalPath)
	assert.Equal(t, int64(10), outcomes[0].BytesTransferred)
	assert.Equal(t, domain.OutcomeInstructed, outcomes[1].Status)
	assert.Equal(t, domain.OutcomeSkipped, outcomes[2].Status)
	assert.Equal(t, domain.OutcomeSucceeded, outcomes[3].Status)

	// alternate hosts are never confirmed
	assert.Equal(t, []string{"One", "Three", "Four"}, confirmer.asked)
	assert.Equal(t, []string{"Two https://mediafire.com/file/two"}, instructions.lines)
	assert.Equal(t, 0, transport.callCount("https://getcomics.org/dlds/three"))

	assert.ElementsMatch(t, []string{filepath.Join(dir, "one.cbz"), filepath.Join(dir, "four.cbz")}, allocator.released)
	assert.ElementsMatch(t, []string{"One", "Four"}, notifier.completed)
	assert.Equal(t, 1, notifier.batches)

	stats, err := dm.GetStats()
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Completed)
}

func TestDownloadManager_RetriesServerErrors(t *testing.T) {
	url := "https://getcomics.org/dlds/flaky"
	transport := newStubTransport(domain.TransportDirect)
	transport.failures[url] = []error{domain.NewHTTPStatusError(url, 503)}

	dm := NewDownloadManager(&stubAllocator{}, transport, nil, nil, nil, testDownloadConfig(), nil, nil)
	outcomes := dm.Run(context.Background(), []domain.DownloadCandidate{direct(url, "Flaky")}, RunOptions{DestinationDir: t.TempDir()})

	require.Len(t, outcomes, 1)
	assert.Equal(t, domain.OutcomeSucceeded, outcomes[0].Status)
	assert.Equal(t, 2, transport.callCount(url))
}

func TestDownloadManager_DoesNotRetryPermanentFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"timeout", &domain.TransferError{URL: "u", Err: domain.ErrFetchTimeout}},
		{"not found", domain.NewHTTPStatusError("u", 404)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url := "https://getcomics.org/dlds/broken"
			transport := newStubTransport(domain.TransportDirect)
			transport.failures[url] = []error{tt.err, tt.err}
			notifier := &recordingNotifier{}
			repo := newMemRepo()

			dm := NewDownloadManager(&stubAllocator{}, transport, nil, repo, notifier, testDownloadConfig(), nil, nil)
			outcomes := dm.Run(context.Background(), []domain.DownloadCandidate{direct(url, "Broken")}, RunOptions{DestinationDir: t.TempDir()})

			require.Len(t, outcomes, 1)
			assert.Equal(t, domain.OutcomeFailed, outcomes[0].Status)
			assert.ErrorIs(t, outcomes[0].Err, tt.err)
			assert.NotEmpty(t, outcomes[0].Error)
			assert.Equal(t, 1, transport.callCount(url))
			assert.Equal(t, []string{"Broken"}, notifier.failed)

			tasks, err := repo.FindAll(nil, 0)
			require.NoError(t, err)
			require.Len(t, tasks, 1)
			assert.Equal(t, domain.StateFailed, tasks[0].State)
		})
	}
}

func TestDownloadManager_UsesAcceleratedTransport(t *testing.T) {
	directT := newStubTransport(domain.TransportDirect)
	accel := newStubTransport(domain.TransportDelegated)
	repo := newMemRepo()
	url := "https://getcomics.org/dlds/fast"

	dm := NewDownloadManager(&stubAllocator{}, directT, accel, repo, nil, testDownloadConfig(), nil, nil)
	outcomes := dm.Run(context.Background(), []domain.DownloadCandidate{direct(url, "Fast")}, RunOptions{
		DestinationDir: t.TempDir(),
		Accelerated:    true,
	})

	require.Len(t, outcomes, 1)
	assert.Equal(t, domain.OutcomeSucceeded, outcomes[0].Status)
	assert.Equal(t, 1, accel.callCount(url))
	assert.Equal(t, 0, directT.callCount(url))

	tasks, err := repo.FindAll(nil, 0)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, domain.TransportDelegated, tasks[0].Transport)
	assert.Equal(t, domain.StateCompleted, tasks[0].State)
}

func TestDownloadManager_BoundsConcurrentTransfers(t *testing.T) {
	transport := newStubTransport(domain.TransportDirect)
	transport.delay = 20 * time.Millisecond

	var candidates []domain.DownloadCandidate
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		candidates = append(candidates, direct("https://getcomics.org/dlds/"+name, name))
	}

	dm := NewDownloadManager(&stubAllocator{}, transport, nil, nil, nil, testDownloadConfig(), nil, nil)
	outcomes := dm.Run(context.Background(), candidates, RunOptions{DestinationDir: t.TempDir()})

	for i, o := range outcomes {
		assert.Equal(t, domain.OutcomeSucceeded, o.Status)
		assert.Equal(t, candidates[i].Title, o.Title)
	}
	assert.LessOrEqual(t, transport.peak.Load(), int32(2))
}

func TestDownloadManager_CancelledBeforeStart(t *testing.T) {
	transport := newStubTransport(domain.TransportDirect)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dm := NewDownloadManager(&stubAllocator{}, transport, nil, nil, nil, testDownloadConfig(), nil, nil)
	outcomes := dm.Run(ctx, []domain.DownloadCandidate{
		direct("https://getcomics.org/dlds/a", "A"),
		alternate("https://mediafire.com/file/b", "B"),
	}, RunOptions{DestinationDir: t.TempDir()})

	require.Len(t, outcomes, 2)
	for _, o := range outcomes {
		assert.Equal(t, domain.OutcomeFailed, o.Status)
		assert.ErrorIs(t, o.Err, domain.ErrInterrupted)
	}
	assert.Equal(t, 0, transport.callCount("https://getcomics.org/dlds/a"))
}

func TestDownloadManager_CancelledDuringConfirmation(t *testing.T) {
	transport := newStubTransport(domain.TransportDirect)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	confirmer := &answerConfirmer{onAsk: func(title string) error {
		if title == "B" {
			cancel()
			return context.Canceled
		}
		return nil
	}}

	dm := NewDownloadManager(&stubAllocator{}, transport, nil, nil, nil, testDownloadConfig(), nil, nil)
	outcomes := dm.Run(ctx, []domain.DownloadCandidate{
		direct("https://getcomics.org/dlds/a", "A"),
		direct("https://getcomics.org/dlds/b", "B"),
		direct("https://getcomics.org/dlds/c", "C"),
	}, RunOptions{DestinationDir: t.TempDir(), Confirmer: confirmer})

	require.Len(t, outcomes, 3)
	assert.Equal(t, "A", outcomes[0].Title)
	assert.ErrorIs(t, outcomes[1].Err, domain.ErrInterrupted)
	assert.ErrorIs(t, outcomes[2].Err, domain.ErrInterrupted)
	assert.Equal(t, []string{"A", "B"}, confirmer.asked)
}

func TestDownloadManager_RecoverWithoutHelper(t *testing.T) {
	dm := NewDownloadManager(&stubAllocator{}, newStubTransport(domain.TransportDirect), nil, nil, nil, testDownloadConfig(), nil, nil)

	_, err := dm.Recover(context.Background(), t.TempDir(), true, nil)
	assert.True(t, errors.Is(err, domain.ErrHelperUnavailable))
}

// recoveringTransport is an accelerated transport whose helper is present
type recoveringTransport struct {
	*stubTransport
	recovered []string
}

func (r *recoveringTransport) Recover(_ context.Context, dir string, _ domain.ProgressSink) ([]domain.Outcome, error) {
	r.recovered = append(r.recovered, dir)
	return []domain.Outcome{{Title: "ex5.cbz", Status: domain.OutcomeSucceeded}}, nil
}

func TestDownloadManager_RecoverRequiresAcceleration(t *testing.T) {
	helper := &recoveringTransport{stubTransport: newStubTransport(domain.TransportDelegated)}
	dm := NewDownloadManager(&stubAllocator{}, newStubTransport(domain.TransportDirect), helper, nil, nil, testDownloadConfig(), nil, nil)
	dir := t.TempDir()

	_, err := dm.Recover(context.Background(), dir, false, nil)
	assert.ErrorIs(t, err, domain.ErrHelperUnavailable)
	assert.Empty(t, helper.recovered)

	outcomes, err := dm.Recover(context.Background(), dir, true, nil)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, []string{dir}, helper.recovered)
}

func TestDownloadManager_HistoryWithoutRepo(t *testing.T) {
	dm := NewDownloadManager(&stubAllocator{}, newStubTransport(domain.TransportDirect), nil, nil, nil, testDownloadConfig(), nil, nil)

	tasks, err := dm.ListTransfers(nil, 10)
	require.NoError(t, err)
	assert.Empty(t, tasks)

	stats, err := dm.GetStats()
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Total)
}

func TestRetryable(t *testing.T) {
	assert.True(t, retryable(errors.New("connection reset")))
	assert.True(t, retryable(domain.NewHTTPStatusError("u", 500)))
	assert.True(t, retryable(domain.NewHTTPStatusError("u", 429)))
	assert.False(t, retryable(domain.NewHTTPStatusError("u", 403)))
	assert.False(t, retryable(domain.ErrFetchTimeout))
	assert.False(t, retryable(&domain.TransferError{URL: "u", Err: domain.ErrInterrupted}))
	assert.False(t, retryable(&domain.TransferError{URL: "u", Err: domain.ErrDestinationExists}))
}
