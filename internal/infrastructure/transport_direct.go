package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/yourusername/getcomics-go/internal/domain"
)

// StreamOpener starts a streaming GET
type StreamOpener interface {
	OpenStream(ctx context.Context, rawURL string) (*http.Response, error)
}

// DirectTransport streams a response body into a temp file next to the
// destination and renames it into place once complete.
type DirectTransport struct {
	opener    StreamOpener
	allocator *Allocator
	config    *domain.TransferConfig
	logger    *zap.Logger
}

// NewDirectTransport creates the built-in streaming transport
func NewDirectTransport(opener StreamOpener, allocator *Allocator, config *domain.TransferConfig, logger *zap.Logger) *DirectTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirectTransport{
		opener:    opener,
		allocator: allocator,
		config:    config,
		logger:    logger,
	}
}

// Kind returns the transport kind
func (t *DirectTransport) Kind() domain.TransportKind {
	return domain.TransportDirect
}

// Transfer downloads task.URL to task.DestinationPath.
// When the server redirected, the filename is re-derived from the final URL.
// On failure the destination never exists and the temp file is removed.
func (t *DirectTransport) Transfer(ctx context.Context, task *domain.TransferTask, sink domain.ProgressSink) error {
	if sink == nil {
		sink = domain.NopProgress
	}

	resp, err := t.opener.OpenStream(ctx, task.URL)
	if err != nil {
		return &domain.TransferError{URL: task.URL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.NewHTTPStatusError(task.URL, resp.StatusCode)
	}

	if final := resp.Request.URL.String(); final != task.URL && t.allocator != nil {
		path, err := t.allocator.Reallocate(task.DestinationPath, final)
		if err != nil {
			return &domain.TransferError{URL: task.URL, Err: err}
		}
		if path != task.DestinationPath {
			t.logger.Debug("Redirect changed filename",
				zap.String("url", task.URL),
				zap.String("final", final),
				zap.String("path", path))
			task.DestinationPath = path
		}
	}

	if resp.ContentLength > 0 {
		task.TotalBytes = resp.ContentLength
	}

	scratch := t.config.ScratchDir(filepath.Dir(task.DestinationPath))
	if err := os.MkdirAll(scratch, 0755); err != nil {
		return &domain.TransferError{URL: task.URL, Err: fmt.Errorf("failed to create incoming directory: %w", err)}
	}

	tmp, err := os.CreateTemp(scratch, filepath.Base(task.DestinationPath)+".*.part")
	if err != nil {
		return &domain.TransferError{URL: task.URL, Err: fmt.Errorf("failed to create temp file: %w", err)}
	}
	task.TempPath = tmp.Name()

	if err := t.stream(ctx, resp.Body, tmp, task, sink); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return &domain.TransferError{URL: task.URL, Err: err}
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return &domain.TransferError{URL: task.URL, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return &domain.TransferError{URL: task.URL, Err: err}
	}

	if err := moveIntoPlace(tmp.Name(), task.DestinationPath); err != nil {
		os.Remove(tmp.Name())
		return &domain.TransferError{URL: task.URL, Err: fmt.Errorf("failed to move file into place: %w", err)}
	}
	return nil
}

// moveIntoPlace moves src to dst, failing instead of replacing an existing dst.
// A hard link claims dst atomically; filesystems without links get a checked rename.
func moveIntoPlace(src, dst string) error {
	err := os.Link(src, dst)
	if err == nil {
		os.Remove(src)
		return nil
	}
	if errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("%w: %s", domain.ErrDestinationExists, dst)
	}
	if _, statErr := os.Lstat(dst); statErr == nil {
		return fmt.Errorf("%w: %s", domain.ErrDestinationExists, dst)
	}
	return os.Rename(src, dst)
}

// stream copies body to file chunk by chunk, reporting cumulative progress
func (t *DirectTransport) stream(ctx context.Context, body io.Reader, file *os.File, task *domain.TransferTask, sink domain.ProgressSink) error {
	chunkSize := t.config.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 32 * 1024
	}
	buf := make([]byte, chunkSize)

	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrInterrupted, err)
		}

		n, readErr := body.Read(buf)
		if n > 0 {
			if _, err := file.Write(buf[:n]); err != nil {
				return fmt.Errorf("failed to write temp file: %w", err)
			}
			task.BytesTransferred += int64(n)
			sink.Progress(task)
		}

		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%w: %v", domain.ErrInterrupted, ctx.Err())
			}
			return readErr
		}
	}

	if task.TotalBytes > 0 && task.BytesTransferred < task.TotalBytes {
		return fmt.Errorf("short body: got %d of %d bytes", task.BytesTransferred, task.TotalBytes)
	}
	return nil
}
