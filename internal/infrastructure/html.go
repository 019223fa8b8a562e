package infrastructure

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// parseDocument parses an HTML body into a goquery document
func parseDocument(body []byte) (*goquery.Document, error) {
	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}
	return goquery.NewDocumentFromNode(root), nil
}

// resolveHref resolves a possibly relative href against the page URL.
// Fragments are stripped; non-http(s) schemes are rejected.
func resolveHref(pageURL *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	ref.Fragment = ""

	u := ref
	if pageURL != nil {
		u = pageURL.ResolveReference(ref)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	return u.String(), true
}

// collapseSpace trims text and collapses inner whitespace runs
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
