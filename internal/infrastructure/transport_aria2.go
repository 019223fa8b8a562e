package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/getcomics-go/internal/domain"
)

const aria2Sidecar = ".aria2"

// DelegatedTransport hands transfers to aria2c.
// When the helper is missing or fails, the fallback transport takes over.
type DelegatedTransport struct {
	config   *domain.TransferConfig
	fallback domain.Transport
	repo     domain.TransferRepository
	logsDir  string
	logger   *zap.Logger
}

// NewDelegatedTransport creates the accelerated transport.
// repo is only needed by Recover and may be nil otherwise.
func NewDelegatedTransport(config *domain.TransferConfig, fallback domain.Transport, repo domain.TransferRepository, logsDir string, logger *zap.Logger) *DelegatedTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DelegatedTransport{
		config:   config,
		fallback: fallback,
		repo:     repo,
		logsDir:  logsDir,
		logger:   logger,
	}
}

// Kind returns the transport kind
func (t *DelegatedTransport) Kind() domain.TransportKind {
	return domain.TransportDelegated
}

// Available reports whether the helper binary can be found
func (t *DelegatedTransport) Available() error {
	if _, err := exec.LookPath(t.config.Aria2Binary); err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrHelperUnavailable, t.config.Aria2Binary, err)
	}
	return nil
}

// Transfer downloads task.URL with aria2c, falling back to the direct
// transport on any helper problem other than cancellation.
func (t *DelegatedTransport) Transfer(ctx context.Context, task *domain.TransferTask, sink domain.ProgressSink) error {
	if sink == nil {
		sink = domain.NopProgress
	}

	t.discardPartial(task.DestinationPath)

	err := t.Available()
	if err == nil {
		task.Transport = domain.TransportDelegated
		err = t.run(ctx, task, sink)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return &domain.TransferError{URL: task.URL, Err: fmt.Errorf("%w: %v", domain.ErrInterrupted, ctx.Err())}
		}
		t.discardPartial(task.DestinationPath)
	}

	if t.fallback == nil {
		return &domain.TransferError{URL: task.URL, Err: err}
	}

	t.logger.Warn("Accelerated transfer unavailable, using direct transfer",
		zap.String("url", task.URL),
		zap.Error(err))
	task.Transport = t.fallback.Kind()
	task.BytesTransferred = 0
	task.TotalBytes = 0
	return t.fallback.Transfer(ctx, task, sink)
}

// Recover resumes interrupted aria2 transfers into dir.
// Each sidecar is matched to its originating URL through the history store.
func (t *DelegatedTransport) Recover(ctx context.Context, dir string, sink domain.ProgressSink) ([]domain.Outcome, error) {
	if t.repo == nil {
		return nil, errors.New("transfer history is disabled")
	}
	if err := t.Available(); err != nil {
		return nil, err
	}
	if sink == nil {
		sink = domain.NopProgress
	}

	sidecars, err := filepath.Glob(filepath.Join(t.config.ScratchDir(dir), "*"+aria2Sidecar))
	if err != nil {
		return nil, fmt.Errorf("failed to scan for partial transfers: %w", err)
	}

	var outcomes []domain.Outcome
	for _, sidecar := range sidecars {
		if ctx.Err() != nil {
			break
		}

		name := strings.TrimSuffix(filepath.Base(sidecar), aria2Sidecar)
		dest := filepath.Join(dir, name)

		if _, err := os.Stat(dest); err == nil {
			t.logger.Info("Destination already exists, discarding partial", zap.String("path", dest))
			t.discardPartial(dest)
			outcomes = append(outcomes, domain.Outcome{Title: name, Status: domain.OutcomeSkipped, FinalPath: dest})
			continue
		}

		record, err := t.repo.FindByDestination(dest)
		if err != nil {
			return outcomes, fmt.Errorf("failed to look up %s: %w", dest, err)
		}
		if record == nil {
			t.logger.Warn("No transfer history for partial download", zap.String("sidecar", sidecar))
			outcomes = append(outcomes, domain.Outcome{
				Title:  name,
				Status: domain.OutcomeSkipped,
				Error:  "no transfer history",
			})
			continue
		}

		outcomes = append(outcomes, t.resume(ctx, record, dest, sink))
	}

	return outcomes, nil
}

func (t *DelegatedTransport) resume(ctx context.Context, record *domain.TransferTask, dest string, sink domain.ProgressSink) domain.Outcome {
	task := domain.NewTransferTask(record.URL, record.Title, dest)
	task.Transport = domain.TransportDelegated
	task.MarkInFlight()
	t.save(task)

	t.logger.Info("Resuming transfer", zap.String("url", task.URL), zap.String("path", dest))

	if err := t.run(ctx, task, sink); err != nil {
		task.MarkFailed(err)
		t.save(task)
		return domain.Outcome{
			Title:  task.Title,
			URL:    task.URL,
			Status: domain.OutcomeFailed,
			Err:    err,
			Error:  err.Error(),
		}
	}

	task.MarkCompleted()
	t.save(task)
	return domain.Outcome{
		Title:            task.Title,
		URL:              task.URL,
		Status:           domain.OutcomeSucceeded,
		BytesTransferred: task.BytesTransferred,
		FinalPath:        task.DestinationPath,
	}
}

func (t *DelegatedTransport) save(task *domain.TransferTask) {
	if err := t.repo.Save(task); err != nil {
		t.logger.Error("Failed to record transfer", zap.String("id", task.ID), zap.Error(err))
	}
}

// run invokes aria2c into the scratch directory and renames the result into place
func (t *DelegatedTransport) run(ctx context.Context, task *domain.TransferTask, sink domain.ProgressSink) error {
	dir := filepath.Dir(task.DestinationPath)
	name := filepath.Base(task.DestinationPath)
	scratch := t.config.ScratchDir(dir)
	if err := os.MkdirAll(scratch, 0755); err != nil {
		return fmt.Errorf("failed to create incoming directory: %w", err)
	}

	args := []string{"-d", scratch, "-o", name}
	if t.config.Aria2Quiet {
		args = append(args, "-q")
	}
	args = append(args, "-c", "--allow-overwrite=false", "--auto-file-renaming=false", task.URL)

	logFile, err := t.openLogFile()
	if err != nil {
		t.logger.Warn("Failed to open helper log", zap.Error(err))
	}
	var out io.Writer = io.Discard
	if logFile != nil {
		defer logFile.Close()
		out = logFile
	}

	writeLogHeader(out, task.ID, CommandLine(t.config.Aria2Binary, args...))

	partial := filepath.Join(scratch, name)
	task.TempPath = partial

	cmd := exec.CommandContext(ctx, t.config.Aria2Binary, args...)
	cmd.Stdout = out
	cmd.Stderr = out
	if err := cmd.Run(); err != nil {
		writeLogFooter(out, false, err.Error())
		return fmt.Errorf("%s failed: %w", t.config.Aria2Binary, err)
	}

	info, err := os.Stat(partial)
	if err != nil {
		writeLogFooter(out, false, "no file produced")
		return fmt.Errorf("%s produced no file: %w", t.config.Aria2Binary, err)
	}
	task.BytesTransferred = info.Size()
	task.TotalBytes = info.Size()
	sink.Progress(task)

	if err := moveIntoPlace(partial, task.DestinationPath); err != nil {
		writeLogFooter(out, false, err.Error())
		return fmt.Errorf("failed to move file into place: %w", err)
	}
	os.Remove(partial + aria2Sidecar)

	writeLogFooter(out, true, task.DestinationPath)
	return nil
}

// discardPartial removes a leftover helper partial and its sidecar for dest
func (t *DelegatedTransport) discardPartial(dest string) {
	partial := filepath.Join(t.config.ScratchDir(filepath.Dir(dest)), filepath.Base(dest))
	os.Remove(partial)
	os.Remove(partial + aria2Sidecar)
}

// openLogFile opens today's helper log, or nil when no logs dir is configured
func (t *DelegatedTransport) openLogFile() (*os.File, error) {
	if t.logsDir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(t.logsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}

	dateStr := time.Now().Format("20060102")
	path := filepath.Join(t.logsDir, "aria2-"+dateStr+".log")
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
}

func writeLogHeader(w io.Writer, id, cmdLine string) {
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	fmt.Fprintf(w, "\n=== [%s] Transfer: %s ===\n", timestamp, id)
	fmt.Fprintf(w, "$ %s\n", cmdLine)
}

func writeLogFooter(w io.Writer, success bool, message string) {
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	status := "SUCCESS"
	if !success {
		status = "FAILED"
	}
	fmt.Fprintf(w, "[%s] %s: %s\n", timestamp, status, message)
	fmt.Fprint(w, "=== END ===\n\n")
}
