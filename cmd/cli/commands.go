package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yourusername/getcomics-go/internal/app"
	"github.com/yourusername/getcomics-go/internal/domain"
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search listings and download the selected comics",
	Long: `Search getcomics by query or tag, list the download links found on each
result and download the ones you pick. Mediafire links are printed for manual download.
Without a query or a tag the search options are asked for interactively.`,
	Args: cobra.ArbitraryArgs,
	RunE: runSearch,
}

var resumeCmd = &cobra.Command{
	Use:   "resume [dir]",
	Short: "Resume interrupted accelerated downloads",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup(verbose)
		if err != nil {
			return err
		}
		defer e.Close()

		prefs := e.prefs.Load()
		dir := defaultDestination(e.config, prefs)
		if len(args) == 1 {
			dir = args[0]
		}
		accelerated := prefs.Accelerated || e.config.Transfer.Accelerated
		if cmd.Flags().Changed("accelerated") {
			accelerated, _ = cmd.Flags().GetBool("accelerated")
		}

		bars := NewProgressBars(os.Stderr)
		outcomes, err := e.services.DownloadMgr.Recover(cmd.Context(), dir, accelerated, bars)
		bars.Finish()
		if err != nil {
			return err
		}
		if len(outcomes) == 0 {
			fmt.Printf("No interrupted downloads in %s\n", dir)
			return nil
		}
		printSummary(os.Stdout, outcomes)
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show transfer history",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded transfers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup(verbose)
		if err != nil {
			return err
		}
		defer e.Close()

		state, _ := cmd.Flags().GetString("state")
		limit, _ := cmd.Flags().GetInt("limit")

		filters := make(map[string]interface{})
		if state != "" {
			filters["state"] = state
		}
		transfers, err := e.services.DownloadMgr.ListTransfers(filters, limit)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE\tSTATE\tBYTES\tPATH\tCREATED")
		for _, t := range transfers {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
				truncate(t.ID, 8),
				truncate(t.Title, 40),
				t.State,
				t.BytesTransferred,
				t.DestinationPath,
				t.CreatedAt.Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

var historyStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show transfer statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup(verbose)
		if err != nil {
			return err
		}
		defer e.Close()

		stats, err := e.services.DownloadMgr.GetStats()
		if err != nil {
			return err
		}

		fmt.Println("Transfer Statistics:")
		fmt.Printf("  Total:      %d\n", stats.Total)
		fmt.Printf("  Pending:    %d\n", stats.Pending)
		fmt.Printf("  In flight:  %d\n", stats.InFlight)
		fmt.Printf("  Completed:  %d\n", stats.Completed)
		fmt.Printf("  Failed:     %d\n", stats.Failed)
		fmt.Printf("  Bytes:      %d\n", stats.Bytes)
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a default configuration file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if len(args) == 1 {
			path = args[0]
		}
		if path == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("failed to locate home directory: %w", err)
			}
			path = filepath.Join(home, ".getcomics", "config.yaml")
		}

		force, _ := cmd.Flags().GetBool("force")
		if _, err := os.Stat(path); err == nil && !force {
			return fmt.Errorf("%s already exists, use --force to overwrite", path)
		}

		if err := app.SaveConfig(domain.DefaultConfig(), path); err != nil {
			return err
		}
		fmt.Printf("Configuration written to %s\n", path)
		return nil
	},
}

func init() {
	addSearchFlags(searchCmd)

	resumeCmd.Flags().Bool("accelerated", false, "Use aria2c for downloads")

	historyListCmd.Flags().StringP("state", "s", "", "Filter by state (pending, in_flight, completed, failed)")
	historyListCmd.Flags().IntP("limit", "l", 50, "Maximum number of rows")
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyStatsCmd)

	configInitCmd.Flags().BoolP("force", "f", false, "Overwrite an existing file")
	configCmd.AddCommand(configInitCmd)
}

func addSearchFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("tag", "t", "", "Walk a tag archive instead of searching")
	cmd.Flags().StringP("date", "d", "", "Stop at entries published before this date (YYYY-MM-DD)")
	cmd.Flags().StringP("output", "o", "", "Destination directory")
	cmd.Flags().IntP("results", "r", 0, "Maximum number of listing entries (0 for unbounded)")
	cmd.Flags().Int("min", 0, "Minimum issue number appended to the query (negative clears the saved one)")
	cmd.Flags().Bool("accelerated", false, "Use aria2c for downloads")
	cmd.Flags().BoolP("yes", "y", false, "Download every link without asking")
	cmd.Flags().BoolP("confirm", "c", false, "Ask about each link instead of showing the selection menu")
	cmd.MarkFlagsMutuallyExclusive("yes", "confirm")
}

func runSearch(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	prefsStore := app.NewPreferencesStore(preferencesPath(), nil)
	prefs := prefsStore.Load()

	verboseOutput := verbose
	if !flags.Changed("verbose") {
		verboseOutput = prefs.Verbose
	}

	e, err := setup(verboseOutput)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx := cmd.Context()
	req := buildRequest(cmd, args, e.config, prefs)
	if req.Query == "" && req.Tag == "" {
		ok, err := e.console.Interactive(ctx, &req)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("Exiting without downloading.")
			return nil
		}
	}
	if err := req.Validate(); err != nil {
		return err
	}
	req.Verbose = verboseOutput

	if err := prefsStore.Save(nextPreferences(req, prefs)); err != nil {
		e.log.Warn("Failed to save preferences", zap.Error(err))
	}

	if req.IsTagSearch() {
		fmt.Printf("Browsing tag %q...\n", req.SearchTerms())
	} else {
		fmt.Printf("Searching for %q...\n", req.SearchTerms())
	}

	browser, err := e.services.Browse(req)
	if err != nil {
		return err
	}

	assumeYes, _ := flags.GetBool("yes")
	confirmEach, _ := flags.GetBool("confirm")

	var candidates, selected []domain.DownloadCandidate
	for {
		result, err := browser.Next(ctx)
		if err != nil {
			return err
		}
		reportSearch(result)
		candidates = append(candidates, result.Resolved.Candidates...)

		if assumeYes || confirmEach {
			selected = candidates
			break
		}
		if len(candidates) == 0 && !browser.HasMore() {
			break
		}

		picked, next, err := e.console.Select(ctx, candidates, browser.HasMore())
		if err != nil {
			return err
		}
		if !next {
			selected = picked
			break
		}
	}

	if len(candidates) == 0 {
		fmt.Printf("No downloadable links found for %q.\n", req.SearchTerms())
		return nil
	}
	if len(selected) == 0 {
		fmt.Println("Exiting without downloading.")
		return nil
	}

	// a menu selection is the answer; per-item questions only replace the menu
	var confirmer domain.Confirmer
	if confirmEach {
		confirmer = e.console
	}

	bars := NewProgressBars(os.Stderr)
	outcomes := e.services.DownloadMgr.Run(ctx, selected, app.RunOptions{
		DestinationDir: req.DestinationDir,
		Accelerated:    req.UseAcceleratedTransfer,
		Confirmer:      confirmer,
		Instructions:   e.console,
		Progress:       bars,
	})
	bars.Finish()

	if ctx.Err() != nil {
		return domain.ErrInterrupted
	}
	printSummary(os.Stdout, outcomes)
	return nil
}

func reportSearch(result *app.SearchResult) {
	if result.FetchError != "" {
		fmt.Fprintf(os.Stderr, "Warning: listing stopped early: %s\n", result.FetchError)
	}
	for _, f := range result.Resolved.Failures {
		fmt.Fprintf(os.Stderr, "Warning: could not read %q: %s\n", f.Entry.Title, f.Error)
	}
	for _, entry := range result.Resolved.Empty {
		fmt.Printf("No download link found for %q\n", entry.Title)
	}
	fmt.Printf("Found %d entries, %d download links.\n", len(result.Entries), len(result.Resolved.Candidates))
}

// buildRequest merges flags over saved preferences and configuration.
// The result is validated by the caller, after the interactive menu when
// neither a query nor a tag was given.
func buildRequest(cmd *cobra.Command, args []string, config *domain.Config, prefs *app.Preferences) domain.ResolvedRequest {
	flags := cmd.Flags()

	req := domain.ResolvedRequest{
		Query: strings.TrimSpace(strings.Join(args, " ")),
	}
	req.Tag, _ = flags.GetString("tag")

	req.ResultQuota = config.Discovery.DefaultQuota
	if prefs.ResultQuota != nil {
		req.ResultQuota = *prefs.ResultQuota
	}
	if flags.Changed("results") {
		req.ResultQuota, _ = flags.GetInt("results")
	}

	date := prefs.DateFloor
	if flags.Changed("date") {
		date, _ = flags.GetString("date")
	}
	if date != "" {
		floor, err := domain.ParseDate(date)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: invalid date %q, date filter disabled.\n", date)
		} else {
			req.DateFloor = &floor
		}
	}

	if flags.Changed("min") {
		// a negative value clears the saved minimum
		if issue, _ := flags.GetInt("min"); issue >= 0 {
			req.MinIssue = &issue
		}
	} else if !req.IsTagSearch() {
		req.MinIssue = prefs.MinIssue
	}

	req.DestinationDir = defaultDestination(config, prefs)
	if output, _ := flags.GetString("output"); output != "" {
		req.DestinationDir = output
	}

	req.UseAcceleratedTransfer = prefs.Accelerated || config.Transfer.Accelerated
	if flags.Changed("accelerated") {
		req.UseAcceleratedTransfer, _ = flags.GetBool("accelerated")
	}

	return req
}

// nextPreferences records req as the new last-used settings.
// A tag search has no minimum issue, so the saved one is kept.
func nextPreferences(req domain.ResolvedRequest, prev *app.Preferences) *app.Preferences {
	quota := req.ResultQuota
	next := &app.Preferences{
		DestinationDir: req.DestinationDir,
		ResultQuota:    &quota,
		MinIssue:       req.MinIssue,
		Accelerated:    req.UseAcceleratedTransfer,
		Verbose:        req.Verbose,
	}
	if req.IsTagSearch() {
		next.MinIssue = prev.MinIssue
	}
	if req.DateFloor != nil {
		next.DateFloor = req.DateFloor.Format(domain.DateLayout)
	}
	return next
}

func defaultDestination(config *domain.Config, prefs *app.Preferences) string {
	if prefs.DestinationDir != "" {
		return prefs.DestinationDir
	}
	return config.Download.BaseDir
}

func printSummary(w io.Writer, outcomes []domain.Outcome) {
	counts := make(map[domain.OutcomeStatus]int)
	for _, o := range outcomes {
		counts[o.Status]++
		switch o.Status {
		case domain.OutcomeSucceeded:
			fmt.Fprintf(w, "Downloaded: %s (%d bytes)\n", o.FinalPath, o.BytesTransferred)
		case domain.OutcomeFailed:
			fmt.Fprintf(w, "Failed: %s: %s\n", o.Title, o.Error)
		case domain.OutcomeSkipped:
			fmt.Fprintf(w, "Skipped: %s\n", o.Title)
		}
	}
	fmt.Fprintf(w, "\n%d downloaded, %d failed, %d skipped, %d for manual download.\n",
		counts[domain.OutcomeSucceeded],
		counts[domain.OutcomeFailed],
		counts[domain.OutcomeSkipped],
		counts[domain.OutcomeInstructed])
}
