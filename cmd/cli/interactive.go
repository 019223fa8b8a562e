package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/yourusername/getcomics-go/internal/domain"
)

// Interactive asks for a query or a tag. A detailed search also lets the
// user edit the remaining options before starting. It reports false when
// the user quit or input ended.
func (c *Console) Interactive(ctx context.Context, req *domain.ResolvedRequest) (bool, error) {
	for {
		kind, err := c.promptDefault(ctx, "Search by (q)uery, (t)ag, or (d)etailed search?", "q")
		if err != nil {
			return false, quitOnEOF(err)
		}

		switch strings.ToLower(kind) {
		case "q":
			return c.askTerms(ctx, req, false)
		case "t":
			return c.askTerms(ctx, req, true)
		case "d":
			kind, err := c.promptDefault(ctx, "Search by (q)uery or (t)ag?", "q")
			if err != nil {
				return false, quitOnEOF(err)
			}
			ok, err := c.askTerms(ctx, req, strings.ToLower(kind) == "t")
			if !ok || err != nil {
				return ok, err
			}
			return c.editOptions(ctx, req)
		}
		fmt.Fprintln(c.out, "Please answer q, t or d.")
	}
}

// askTerms reads a non-empty query or tag into req
func (c *Console) askTerms(ctx context.Context, req *domain.ResolvedRequest, tag bool) (bool, error) {
	question := "Enter search query: "
	if tag {
		question = "Enter tag: "
	}

	for {
		answer, err := c.Prompt(ctx, question)
		if err != nil {
			return false, quitOnEOF(err)
		}
		if answer == "" {
			continue
		}
		if tag {
			req.Tag = answer
			req.Query = ""
			req.MinIssue = nil
		} else {
			req.Query = answer
			req.Tag = ""
		}
		return true, nil
	}
}

func (c *Console) editOptions(ctx context.Context, req *domain.ResolvedRequest) (bool, error) {
	for {
		c.printOptions(req)

		choice, err := c.promptDefault(ctx, "Choose an option to change, (s) to start search, (q) to quit", "s")
		if err != nil {
			return false, quitOnEOF(err)
		}

		var answer string
		switch strings.ToLower(choice) {
		case "s":
			return true, nil
		case "q":
			return false, nil

		case "1":
			if answer, err = c.promptDefault(ctx, "Enter search query", req.Query); err == nil && answer != "" {
				req.Query = answer
				req.Tag = ""
			}
		case "2":
			if answer, err = c.promptDefault(ctx, "Enter tag", req.Tag); err == nil && answer != "" {
				req.Tag = answer
				req.Query = ""
				req.MinIssue = nil
			}
		case "3":
			if answer, err = c.Prompt(ctx, "Enter date (YYYY-MM-DD, blank to clear): "); err == nil {
				req.DateFloor = nil
				if answer != "" {
					floor, parseErr := domain.ParseDate(answer)
					if parseErr != nil {
						fmt.Fprintln(c.out, "Warning: Date format should be YYYY-MM-DD. Date filter disabled.")
					} else {
						req.DateFloor = &floor
					}
				}
			}
		case "4":
			if answer, err = c.promptDefault(ctx, "Enter download path", req.DestinationDir); err == nil && answer != "" {
				req.DestinationDir = answer
			}
		case "5":
			if req.IsTagSearch() {
				fmt.Fprintln(c.out, "The minimum issue only applies to a search query.")
				continue
			}
			if answer, err = c.Prompt(ctx, "Enter min issue number (blank to clear): "); err == nil {
				if answer == "" {
					req.MinIssue = nil
				} else if issue, convErr := strconv.Atoi(answer); convErr != nil || issue < 0 {
					fmt.Fprintf(c.out, "Invalid number %q.\n", answer)
				} else {
					req.MinIssue = &issue
				}
			}
		case "6":
			if answer, err = c.promptDefault(ctx, "Enter number of results (0 for unbounded)", strconv.Itoa(req.ResultQuota)); err == nil {
				if quota, convErr := strconv.Atoi(answer); convErr != nil || quota < 0 {
					fmt.Fprintf(c.out, "Invalid number %q.\n", answer)
				} else {
					req.ResultQuota = quota
				}
			}
		case "7":
			req.UseAcceleratedTransfer = !req.UseAcceleratedTransfer
			fmt.Fprintf(c.out, "Accelerated downloads set to %t\n", req.UseAcceleratedTransfer)
		default:
			fmt.Fprintf(c.out, "Unknown option %q.\n", choice)
		}

		if err != nil {
			return false, quitOnEOF(err)
		}
	}
}

func (c *Console) printOptions(req *domain.ResolvedRequest) {
	date := ""
	if req.DateFloor != nil {
		date = req.DateFloor.Format(domain.DateLayout)
	}
	issue := ""
	if req.MinIssue != nil {
		issue = strconv.Itoa(*req.MinIssue)
	}

	fmt.Fprintln(c.out, "\nCurrent options:")
	fmt.Fprintf(c.out, "  1. Search query: %s\n", orNotSet(req.Query))
	fmt.Fprintf(c.out, "  2. Search tag: %s\n", orNotSet(req.Tag))
	fmt.Fprintf(c.out, "  3. Date (YYYY-MM-DD): %s\n", orNotSet(date))
	fmt.Fprintf(c.out, "  4. Download path: %s\n", req.DestinationDir)
	fmt.Fprintf(c.out, "  5. Min issue: %s\n", orNotSet(issue))
	fmt.Fprintf(c.out, "  6. Results: %d\n", req.ResultQuota)
	fmt.Fprintf(c.out, "  7. Accelerated: %t\n", req.UseAcceleratedTransfer)
}

// promptDefault asks label and returns def when the answer is blank
func (c *Console) promptDefault(ctx context.Context, label, def string) (string, error) {
	question := label + ": "
	if def != "" {
		question = fmt.Sprintf("%s [%s]: ", label, def)
	}
	answer, err := c.Prompt(ctx, question)
	if err != nil {
		return "", err
	}
	if answer == "" {
		return def, nil
	}
	return answer, nil
}

func orNotSet(s string) string {
	if s == "" {
		return "Not set"
	}
	return s
}

// quitOnEOF treats the end of input as the user quitting
func quitOnEOF(err error) error {
	if err == io.EOF {
		return nil
	}
	return err
}
