package infrastructure

import (
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/yourusername/getcomics-go/internal/domain"
)

// PageFetcher fetches a page body
type PageFetcher interface {
	FetchPage(ctx context.Context, pageURL string) ([]byte, error)
}

// Anchor text markers, matched upper-cased
const (
	markerDownloadNow = "DOWNLOAD NOW"
	markerMainServer  = "MAIN SERVER"
	markerMediafire   = "MEDIAFIRE"
)

// LinkClassifier turns a detail page into download candidates
type LinkClassifier struct {
	fetcher  PageFetcher
	prefixes []string
	logger   *zap.Logger
}

// NewLinkClassifier creates a classifier accepting direct links under the given host+path prefixes
func NewLinkClassifier(fetcher PageFetcher, directPrefixes []string, logger *zap.Logger) *LinkClassifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	prefixes := make([]string, 0, len(directPrefixes))
	for _, p := range directPrefixes {
		p = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(p), "www."))
		if p != "" {
			prefixes = append(prefixes, p)
		}
	}
	return &LinkClassifier{fetcher: fetcher, prefixes: prefixes, logger: logger}
}

// Classify fetches the entry's detail page and classifies its anchors.
// An empty result is valid and means no link was found.
func (c *LinkClassifier) Classify(ctx context.Context, entry domain.ListingEntry) ([]domain.DownloadCandidate, error) {
	c.logger.Debug("Opening detail page", zap.String("url", entry.SourceURL))

	body, err := c.fetcher.FetchPage(ctx, entry.SourceURL)
	if err != nil {
		return nil, &domain.PageFetchError{Stage: domain.StageDetail, URL: entry.SourceURL, Err: err}
	}

	candidates, err := c.ClassifyPage(body, entry)
	if err != nil {
		return nil, &domain.PageFetchError{Stage: domain.StageDetail, URL: entry.SourceURL, Err: err}
	}
	if len(candidates) == 0 {
		c.logger.Debug("No link found", zap.String("url", entry.SourceURL))
	}
	return candidates, nil
}

// ClassifyPage classifies the anchors of an already fetched detail page.
// All qualifying anchors are kept in document order; exact duplicates once.
func (c *LinkClassifier) ClassifyPage(body []byte, entry domain.ListingEntry) ([]domain.DownloadCandidate, error) {
	doc, err := parseDocument(body)
	if err != nil {
		return nil, err
	}

	base, _ := url.Parse(entry.SourceURL)
	seen := make(map[string]bool)
	var candidates []domain.DownloadCandidate

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		target, ok := resolveHref(base, href)
		if !ok {
			return
		}

		kind, ok := c.kindOf(strings.ToUpper(a.Text()), strings.ToUpper(a.AttrOr("title", "")), target)
		if !ok {
			return
		}

		candidate := domain.DownloadCandidate{
			TargetURL: target,
			Title:     entry.Title,
			Kind:      kind,
			SourceURL: entry.SourceURL,
		}
		if seen[candidate.Key()] {
			return
		}
		seen[candidate.Key()] = true
		candidates = append(candidates, candidate)
	})

	return candidates, nil
}

func (c *LinkClassifier) kindOf(text, title, target string) (domain.CandidateKind, bool) {
	downloadButton := strings.Contains(text, markerDownloadNow) ||
		strings.Contains(title, markerDownloadNow) ||
		strings.Contains(text, markerMainServer)
	if downloadButton && c.isDirectHost(target) {
		return domain.KindDirect, true
	}
	if strings.Contains(text, markerMediafire) || strings.Contains(title, markerMediafire) {
		return domain.KindAlternateHost, true
	}
	return "", false
}

// isDirectHost reports whether target's host+path starts with an allow-listed prefix
func (c *LinkClassifier) isDirectHost(target string) bool {
	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	hostPath := strings.ToLower(strings.TrimPrefix(u.Host, "www.")) + u.EscapedPath()
	for _, prefix := range c.prefixes {
		if strings.HasPrefix(hostPath, prefix) {
			return true
		}
	}
	return false
}
