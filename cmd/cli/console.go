package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/yourusername/getcomics-go/internal/domain"
)

// Console reads answers from the user without blocking cancellation
type Console struct {
	out   io.Writer
	lines chan string
}

// NewConsole starts reading lines from in
func NewConsole(in io.Reader, out io.Writer) *Console {
	c := &Console{out: out, lines: make(chan string)}
	go func() {
		defer close(c.lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			c.lines <- scanner.Text()
		}
	}()
	return c
}

// Prompt prints question and waits for one line of input
func (c *Console) Prompt(ctx context.Context, question string) (string, error) {
	fmt.Fprint(c.out, question)
	select {
	case line, ok := <-c.lines:
		if !ok {
			return "", io.EOF
		}
		return strings.TrimSpace(line), nil
	case <-ctx.Done():
		return "", domain.ErrInterrupted
	}
}

// Confirm asks a y/n question about title. End of input declines.
func (c *Console) Confirm(ctx context.Context, title string) (bool, error) {
	for {
		answer, err := c.Prompt(ctx, fmt.Sprintf("Download %q? [y/n]: ", title))
		if err == io.EOF {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		switch strings.ToLower(answer) {
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
		fmt.Fprintln(c.out, "Please answer y or n.")
	}
}

// Instruct prints manual download instructions for an alternate host
func (c *Console) Instruct(title, url string) {
	fmt.Fprintf(c.out, "%s:\nPlease download from the following Mediafire link:\n%s\n\n", title, url)
}

// selectAction is what the user asked for at the selection prompt
type selectAction int

const (
	actionPick selectAction = iota
	actionQuit
	actionNext
)

// Select lists candidates and returns the ones the user picked.
// When more is set the user may ask for the next page instead, reported
// as next. A nil result with no error means the user quit.
func (c *Console) Select(ctx context.Context, candidates []domain.DownloadCandidate, more bool) (selected []domain.DownloadCandidate, next bool, err error) {
	if len(candidates) == 0 {
		fmt.Fprintln(c.out, "No download links on this page.")
	}
	for i, cand := range candidates {
		host := "direct"
		if !cand.IsDirect() {
			host = "Mediafire"
		}
		fmt.Fprintf(c.out, "%3d. %s [%s]\n", i+1, cand.Title, host)
	}

	question := "Select comics to download (e.g. 1,3), 'a' for all, 'q' to quit: "
	if more {
		question = "Select comics to download (e.g. 1,3), 'a' for all, 'n' for next page, 'q' to quit: "
	}

	for {
		answer, err := c.Prompt(ctx, question)
		if err == io.EOF {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, err
		}

		indices, action, err := parseSelection(answer, len(candidates), more)
		switch {
		case err != nil:
			fmt.Fprintf(c.out, "Invalid selection: %v\n", err)
			continue
		case action == actionQuit:
			return nil, false, nil
		case action == actionNext:
			return nil, true, nil
		}

		selected = make([]domain.DownloadCandidate, len(indices))
		for i, idx := range indices {
			selected[i] = candidates[idx]
		}
		return selected, false, nil
	}
}

// parseSelection turns "1,3", "a", "n" or "q" into zero-based indices or an action
func parseSelection(input string, n int, more bool) ([]int, selectAction, error) {
	input = strings.ToLower(strings.TrimSpace(input))
	switch input {
	case "q", "quit":
		return nil, actionQuit, nil
	case "n", "next":
		if !more {
			return nil, actionPick, fmt.Errorf("there are no more pages")
		}
		return nil, actionNext, nil
	case "a", "all":
		if n == 0 {
			return nil, actionPick, fmt.Errorf("nothing to select")
		}
		all := make([]int, n)
		for i := range all {
			all[i] = i
		}
		return all, actionPick, nil
	case "":
		return nil, actionPick, fmt.Errorf("nothing selected")
	}

	seen := make(map[int]bool)
	var indices []int
	for _, part := range strings.Split(input, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		num, err := strconv.Atoi(part)
		if err != nil {
			return nil, actionPick, fmt.Errorf("%q is not a number", part)
		}
		if num < 1 || num > n {
			return nil, actionPick, fmt.Errorf("%d is out of range 1-%d", num, n)
		}
		if !seen[num-1] {
			seen[num-1] = true
			indices = append(indices, num-1)
		}
	}
	if len(indices) == 0 {
		return nil, actionPick, fmt.Errorf("nothing selected")
	}
	return indices, actionPick, nil
}

// ProgressBars renders one terminal bar per transfer
type ProgressBars struct {
	out  io.Writer
	mu   sync.Mutex
	bars map[string]*progressbar.ProgressBar
}

// NewProgressBars creates a progress sink writing to out
func NewProgressBars(out io.Writer) *ProgressBars {
	return &ProgressBars{out: out, bars: make(map[string]*progressbar.ProgressBar)}
}

// Progress implements domain.ProgressSink
func (p *ProgressBars) Progress(task *domain.TransferTask) {
	p.mu.Lock()
	defer p.mu.Unlock()

	bar, ok := p.bars[task.ID]
	if !ok {
		total := task.TotalBytes
		if total <= 0 {
			total = -1
		}
		bar = progressbar.NewOptions64(total,
			progressbar.OptionSetWriter(p.out),
			progressbar.OptionSetDescription(truncate(task.Title, 40)),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetWidth(30),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionOnCompletion(func() { fmt.Fprintln(p.out) }),
		)
		p.bars[task.ID] = bar
	}
	bar.Set64(task.BytesTransferred)

	if task.TotalBytes > 0 && task.BytesTransferred >= task.TotalBytes {
		bar.Finish()
		delete(p.bars, task.ID)
	}
}

// Finish closes bars left open by failed or unsized transfers
func (p *ProgressBars) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, bar := range p.bars {
		bar.Finish()
		delete(p.bars, id)
	}
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
