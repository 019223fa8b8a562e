package infrastructure

import (
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/yourusername/getcomics-go/internal/domain"
)

// ParseListing extracts listing entries from a search or tag results page.
// Articles without a title or a link are skipped. The result keeps page order.
func ParseListing(body []byte, pageURL string) ([]domain.ListingEntry, error) {
	doc, err := parseDocument(body)
	if err != nil {
		return nil, err
	}

	base, _ := url.Parse(pageURL)

	var entries []domain.ListingEntry
	doc.Find("article").Each(func(_ int, article *goquery.Selection) {
		heading := article.Find("h1.post-title").First()
		title := collapseSpace(heading.Text())
		if title == "" {
			return
		}

		href, ok := heading.Find("a[href]").First().Attr("href")
		if !ok {
			return
		}
		link, ok := resolveHref(base, href)
		if !ok {
			return
		}

		entry := domain.ListingEntry{SourceURL: link, Title: title}
		if datetime, ok := article.Find("time[datetime]").First().Attr("datetime"); ok {
			if published, ok := parsePublished(datetime); ok {
				entry.PublishedAt = &published
			}
		}
		entries = append(entries, entry)
	})

	return entries, nil
}

// parsePublished reads the day part of a listing timestamp
func parsePublished(value string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		y, m, d := t.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true
	}
	if len(value) >= len(domain.DateLayout) {
		if t, err := time.Parse(domain.DateLayout, value[:len(domain.DateLayout)]); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
