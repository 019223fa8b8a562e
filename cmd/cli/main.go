package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yourusername/getcomics-go/internal/app"
	"github.com/yourusername/getcomics-go/internal/domain"
	"github.com/yourusername/getcomics-go/pkg/logger"
)

var (
	configPath string
	verbose    bool
	rootCmd    = &cobra.Command{
		Use:           "getcomics",
		Short:         "getcomics - search and download comics from getcomics",
		Long:          `A command-line tool that searches getcomics listings, classifies their download links and fetches the selected files.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show debug output")

	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(configCmd)
}

// env is the per-invocation wiring shared by the commands
type env struct {
	config   *domain.Config
	log      *zap.Logger
	multiLog *logger.MultiLogger
	services *app.Services
	prefs    *app.PreferencesStore
	console  *Console
}

func setup(verboseOutput bool) (*env, error) {
	config, err := app.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	// Keep the terminal for prompts and bars unless debugging
	level := "warn"
	if verboseOutput {
		level = "debug"
	}
	log, err := logger.New(logger.Config{
		Level:      level,
		Format:     "console",
		OutputPath: "stderr",
		Verbose:    verboseOutput,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	multiLog, err := logger.NewMultiLogger(logger.MultiLoggerConfig{
		Level:   config.Logging.Level,
		LogsDir: config.Download.LogsDir,
	})
	if err != nil {
		log.Warn("Event logs disabled", zap.Error(err))
		multiLog = nil
	}

	services, err := app.NewServices(config, log, multiLog)
	if err != nil {
		multiLog.Close()
		return nil, err
	}

	return &env{
		config:   config,
		log:      log,
		multiLog: multiLog,
		services: services,
		prefs:    app.NewPreferencesStore(preferencesPath(), log),
		console:  NewConsole(os.Stdin, os.Stdout),
	}, nil
}

func (e *env) Close() {
	e.services.Close()
	e.multiLog.Close()
	e.log.Sync()
}

func preferencesPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".getcomics-preferences.yaml"
	}
	return filepath.Join(home, ".getcomics", "preferences.yaml")
}

// exitInterrupted reports a user cancellation the way the terminal expects
func exitInterrupted() {
	fmt.Fprintln(os.Stderr, "\nOperation cancelled by user.")
	os.Exit(1)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if ctx.Err() != nil || errors.Is(err, domain.ErrInterrupted) {
		exitInterrupted()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
