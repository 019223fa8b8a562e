package infrastructure

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/getcomics-go/internal/domain"
)

func newTestDirect(t *testing.T) (*DirectTransport, *Allocator) {
	t.Helper()
	fetcher := newTestFetcher(time.Second)
	alloc := NewAllocator(fetcher, nil)
	cfg := &domain.TransferConfig{ChunkSize: 4, IncomingDir: ".incoming"}
	return NewDirectTransport(fetcher, alloc, cfg, nil), alloc
}

// listFiles returns regular files under dir, relative to it
func listFiles(t *testing.T, dir string) []string {
	t.Helper()
	var files []string
	filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			rel, _ := filepath.Rel(dir, path)
			files = append(files, rel)
		}
		return nil
	})
	return files
}

func TestDirectTransfer_WritesFileAtomically(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "10")
		w.Write([]byte("0123456789"))
	}))
	defer srv.Close()

	transport, alloc := newTestDirect(t)
	dir := t.TempDir()
	url := srv.URL + "/files/ex5.cbz"

	dest, err := alloc.Allocate(context.Background(), url, dir)
	require.NoError(t, err)
	task := domain.NewTransferTask(url, "Example #5", dest)

	var reports []int64
	sink := domain.ProgressFunc(func(task *domain.TransferTask) {
		reports = append(reports, task.BytesTransferred)
	})

	require.NoError(t, transport.Transfer(context.Background(), task, sink))

	data, err := os.ReadFile(filepath.Join(dir, "ex5.cbz"))
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(data))
	assert.Equal(t, int64(10), task.TotalBytes)
	assert.Equal(t, int64(10), task.BytesTransferred)
	require.NotEmpty(t, reports)
	assert.Equal(t, int64(10), reports[len(reports)-1])
	assert.Equal(t, int64(4), reports[0])
	assert.Equal(t, []string{"ex5.cbz"}, listFiles(t, dir))
}

func TestDirectTransfer_RedirectRenamesDestination(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/dlds/abc", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/files/Final%20Name.cbz", http.StatusFound)
	})
	mux.HandleFunc("/files/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("comic"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	transport, alloc := newTestDirect(t)
	dir := t.TempDir()
	url := srv.URL + "/dlds/abc"

	// pre-reserved under a stale name, as if the HEAD lookup had not redirected
	dest := filepath.Join(dir, "abc")
	alloc.markReserved(dest, "abc")
	task := domain.NewTransferTask(url, "Example", dest)

	require.NoError(t, transport.Transfer(context.Background(), task, nil))
	assert.Equal(t, filepath.Join(dir, "Final Name.cbz"), task.DestinationPath)
	assert.FileExists(t, task.DestinationPath)
	assert.NoFileExists(t, dest)
}

func TestDirectTransfer_ServerErrorLeavesNothing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	transport, _ := newTestDirect(t)
	dir := t.TempDir()
	task := domain.NewTransferTask(srv.URL+"/ex5.cbz", "Example", filepath.Join(dir, "ex5.cbz"))

	err := transport.Transfer(context.Background(), task, nil)
	require.Error(t, err)

	var te *domain.TransferError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusInternalServerError, te.StatusCode)
	assert.True(t, te.Retryable())
	assert.Empty(t, listFiles(t, dir))
}

func TestDirectTransfer_TruncatedBodyRemovesTemp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "100")
		w.Write([]byte("short"))
		if hj, ok := w.(http.Hijacker); ok {
			conn, _, _ := hj.Hijack()
			conn.Close()
		}
	}))
	defer srv.Close()

	transport, _ := newTestDirect(t)
	dir := t.TempDir()
	task := domain.NewTransferTask(srv.URL+"/ex5.cbz", "Example", filepath.Join(dir, "ex5.cbz"))

	err := transport.Transfer(context.Background(), task, nil)
	require.Error(t, err)
	assert.NoFileExists(t, task.DestinationPath)
	assert.Empty(t, listFiles(t, dir))
}

func TestDirectTransfer_CancelMidStream(t *testing.T) {
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000")
		w.Write([]byte(strings.Repeat("a", 8)))
		w.(http.Flusher).Flush()
		close(started)
		<-r.Context().Done()
	}))
	defer srv.Close()

	transport, _ := newTestDirect(t)
	dir := t.TempDir()
	task := domain.NewTransferTask(srv.URL+"/ex5.cbz", "Example", filepath.Join(dir, "ex5.cbz"))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := transport.Transfer(ctx, task, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInterrupted))
	assert.Empty(t, listFiles(t, dir))
}

func TestDirectTransfer_Kind(t *testing.T) {
	transport, _ := newTestDirect(t)
	assert.Equal(t, domain.TransportDirect, transport.Kind())
}

func TestDirectTransfer_NeverOverwritesExistingFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("0123456789"))
	}))
	defer srv.Close()

	transport, alloc := newTestDirect(t)
	dir := t.TempDir()
	url := srv.URL + "/files/ex5.cbz"

	dest, err := alloc.Allocate(context.Background(), url, dir)
	require.NoError(t, err)
	// another process wins the race after allocation
	require.NoError(t, os.WriteFile(dest, []byte("mine"), 0644))

	err = transport.Transfer(context.Background(), domain.NewTransferTask(url, "Example #5", dest), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDestinationExists)

	var transferErr *domain.TransferError
	require.True(t, errors.As(err, &transferErr))
	assert.False(t, transferErr.Retryable())

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "mine", string(data))
	assert.Equal(t, []string{"ex5.cbz"}, listFiles(t, dir))
}
