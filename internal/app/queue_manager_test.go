package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/getcomics-go/internal/domain"
)

func newTestQueue(t *testing.T) (*QueueManager, *stubTransport) {
	t.Helper()
	transport := newStubTransport(domain.TransportDirect)
	dm := NewDownloadManager(&stubAllocator{}, transport, nil, nil, nil, testDownloadConfig(), nil, nil)
	return NewQueueManager(dm, nil, nil), transport
}

func waitForBatch(t *testing.T, qm *QueueManager, id string) *Batch {
	t.Helper()
	var batch *Batch
	require.Eventually(t, func() bool {
		batch = qm.GetBatch(id)
		return batch != nil && batch.Status == BatchFinished
	}, 2*time.Second, 10*time.Millisecond)
	return batch
}

func TestQueueManager_StartStop(t *testing.T) {
	qm, _ := newTestQueue(t)

	require.NoError(t, qm.Start(context.Background()))
	assert.True(t, qm.IsRunning())
	assert.Error(t, qm.Start(context.Background()))

	require.NoError(t, qm.Stop())
	assert.False(t, qm.IsRunning())
	assert.Error(t, qm.Stop())
}

func TestQueueManager_RestartAfterStop(t *testing.T) {
	qm, transport := newTestQueue(t)

	require.NoError(t, qm.Start(context.Background()))
	require.NoError(t, qm.Stop())

	require.NoError(t, qm.Start(context.Background()))
	defer qm.Stop()

	batch, err := qm.Submit([]domain.DownloadCandidate{direct("https://getcomics.org/dlds/again", "Again")}, t.TempDir(), false)
	require.NoError(t, err)

	done := waitForBatch(t, qm, batch.ID)
	require.Len(t, done.Outcomes, 1)
	assert.Equal(t, domain.OutcomeSucceeded, done.Outcomes[0].Status)
	assert.Equal(t, 1, transport.callCount("https://getcomics.org/dlds/again"))
}

func TestQueueManager_SubmitRunsBatch(t *testing.T) {
	qm, transport := newTestQueue(t)
	require.NoError(t, qm.Start(context.Background()))
	defer qm.Stop()

	dir := t.TempDir()
	batch, err := qm.Submit([]domain.DownloadCandidate{
		direct("https://getcomics.org/dlds/one", "One"),
		alternate("https://mediafire.com/file/two", "Two"),
	}, dir, false)
	require.NoError(t, err)
	assert.NotEmpty(t, batch.ID)
	assert.Equal(t, dir, batch.DestinationDir)

	done := waitForBatch(t, qm, batch.ID)
	require.Len(t, done.Outcomes, 2)
	assert.Equal(t, domain.OutcomeSucceeded, done.Outcomes[0].Status)
	assert.Equal(t, domain.OutcomeInstructed, done.Outcomes[1].Status)
	assert.NotNil(t, done.FinishedAt)
	assert.Equal(t, 1, transport.callCount("https://getcomics.org/dlds/one"))

	batches := qm.ListBatches()
	require.Len(t, batches, 1)
	assert.Equal(t, batch.ID, batches[0].ID)
}

func TestQueueManager_SubmitValidation(t *testing.T) {
	qm, _ := newTestQueue(t)

	_, err := qm.Submit([]domain.DownloadCandidate{direct("u", "t")}, t.TempDir(), false)
	assert.Error(t, err, "queue not running")

	require.NoError(t, qm.Start(context.Background()))
	defer qm.Stop()

	_, err = qm.Submit(nil, t.TempDir(), false)
	assert.Error(t, err)

	_, err = qm.Submit([]domain.DownloadCandidate{direct("u", "t")}, "", false)
	assert.Error(t, err)
}

func TestQueueManager_GetBatchUnknown(t *testing.T) {
	qm, _ := newTestQueue(t)
	assert.Nil(t, qm.GetBatch("missing"))
}

func TestQueueManager_StopInterruptsRunningBatch(t *testing.T) {
	qm, transport := newTestQueue(t)
	transport.delay = 5 * time.Second
	require.NoError(t, qm.Start(context.Background()))

	batch, err := qm.Submit([]domain.DownloadCandidate{direct("https://getcomics.org/dlds/slow", "Slow")}, t.TempDir(), false)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return transport.callCount("https://getcomics.org/dlds/slow") == 1
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, qm.Stop())

	done := qm.GetBatch(batch.ID)
	require.NotNil(t, done)
	assert.Equal(t, BatchFinished, done.Status)
	require.Len(t, done.Outcomes, 1)
	assert.ErrorIs(t, done.Outcomes[0].Err, domain.ErrInterrupted)
}
