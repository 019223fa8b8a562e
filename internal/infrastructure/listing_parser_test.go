package infrastructure

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listingPage = `<html><body>
<article>
  <h1 class="post-title"><a href="https://getcomics.info/other-comics/example-5/">  Example
  #5 (2024)</a></h1>
  <time datetime="2024-03-01T10:00:00+00:00">March 1</time>
</article>
<article>
  <h1 class="post-title"><a href="/marvel/example-6/">Example #6</a></h1>
  <time datetime="2024-02-15">Feb 15</time>
</article>
<article>
  <h1 class="post-title">No link here</h1>
</article>
<article>
  <h1 class="post-title"><a href="/dc/undated/">Undated</a></h1>
</article>
<article><p>not a post</p></article>
</body></html>`

func TestParseListing(t *testing.T) {
	entries, err := ParseListing([]byte(listingPage), "https://getcomics.info/page/1?s=example")
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "Example #5 (2024)", entries[0].Title)
	assert.Equal(t, "https://getcomics.info/other-comics/example-5/", entries[0].SourceURL)
	require.NotNil(t, entries[0].PublishedAt)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), *entries[0].PublishedAt)

	assert.Equal(t, "https://getcomics.info/marvel/example-6/", entries[1].SourceURL)
	require.NotNil(t, entries[1].PublishedAt)
	assert.Equal(t, time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC), *entries[1].PublishedAt)

	assert.Equal(t, "Undated", entries[2].Title)
	assert.Nil(t, entries[2].PublishedAt)
}

func TestParseListing_EmptyPage(t *testing.T) {
	entries, err := ParseListing([]byte("<html><body><p>Nothing found</p></body></html>"), "https://getcomics.info/page/9")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestParsePublished(t *testing.T) {
	tests := []struct {
		input string
		ok    bool
		want  time.Time
	}{
		{"2024-01-02", true, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)},
		{"2024-01-02T23:59:00+02:00", true, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)},
		{"2024-01-02 extra", true, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)},
		{"yesterday", false, time.Time{}},
		{"", false, time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := parsePublished(tt.input)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}
