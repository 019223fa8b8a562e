package infrastructure

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/yourusername/getcomics-go/internal/domain"
)

// NotificationService sends desktop notifications about transfers
type NotificationService struct {
	config *domain.NotificationConfig
	logger *zap.Logger
	run    func(name string, args ...string) error
}

// NewNotificationService creates a new notification service
func NewNotificationService(config *domain.NotificationConfig, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		config: config,
		logger: logger,
		run: func(name string, args ...string) error {
			return exec.Command(name, args...).Run()
		},
	}
}

// Send sends a notification
func (n *NotificationService) Send(title, message string) error {
	if n.config == nil || !n.config.Enabled {
		n.logger.Debug("Notifications disabled, skipping",
			zap.String("title", title),
			zap.String("message", message))
		return nil
	}

	var err error
	switch n.config.Method {
	case "osascript":
		script := fmt.Sprintf(`display notification %q with title %q`, message, title)
		err = n.run("osascript", "-e", script)
	case "notify-send":
		err = n.run("notify-send", title, message)
	default:
		n.logger.Warn("Unknown notification method", zap.String("method", n.config.Method))
		return nil
	}

	if err != nil {
		n.logger.Error("Failed to send notification",
			zap.String("method", n.config.Method),
			zap.Error(err))
		return err
	}

	n.logger.Debug("Notification sent",
		zap.String("title", title),
		zap.String("message", message))
	return nil
}

// NotifyTransferCompleted sends notification when a file has been placed
func (n *NotificationService) NotifyTransferCompleted(title, path string) {
	n.Send("Download Completed", fmt.Sprintf("%s -> %s", truncateString(title, 40), filepath.Base(path)))
}

// NotifyTransferFailed sends notification when a transfer gave up
func (n *NotificationService) NotifyTransferFailed(title string, err error) {
	n.Send("Download Failed", fmt.Sprintf("%s: %s", truncateString(title, 40), truncateString(errString(err), 60)))
}

// NotifyBatchFinished sends a summary once a batch has been processed
func (n *NotificationService) NotifyBatchFinished(succeeded, failed int) {
	n.Send("Downloads Finished", fmt.Sprintf("%d succeeded, %d failed", succeeded, failed))
}

func errString(err error) string {
	if err == nil {
		return "unknown error"
	}
	return strings.TrimSpace(err.Error())
}

// truncateString truncates a string to the specified length
func truncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
