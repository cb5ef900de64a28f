package importer

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pevans/folio/content"
	"github.com/pevans/folio/store"
)

const rssTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Test Blog</title>
  <item>
    <title>With Enclosure</title>
    <link>%[1]s/posts/enclosure</link>
    <description>Plain &amp; simple</description>
    <pubDate>Tue, 05 Mar 2024 14:07:09 GMT</pubDate>
    <enclosure url="%[1]s/img/enclosure.jpg" type="image/jpeg" length="100"/>
  </item>
  <item>
    <title>Inline Image</title>
    <link>%[1]s/posts/inline</link>
    <description>&lt;p&gt;First&lt;/p&gt;&lt;p&gt;&lt;img src="/img/inline.png"&gt;Second&lt;/p&gt;</description>
  </item>
  <item>
    <title>Open Graph</title>
    <link>%[1]s/posts/og</link>
    <description>Has a page</description>
  </item>
  <item>
    <title>No Image</title>
    <link>%[1]s/posts/bare</link>
    <description>Nothing to show</description>
  </item>
  <item>
    <title>Already There</title>
    <link>%[1]s/posts/existing</link>
    <enclosure url="%[1]s/img/existing.jpg" type="image/jpeg" length="100"/>
  </item>
</channel>
</rss>`

// Test helper: serve a feed and the article pages it links to
func setupTestFeedServer(t *testing.T) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/feed.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprintf(w, rssTemplate, srv.URL)
	})
	mux.HandleFunc("/posts/og", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><meta property="og:image" content="/img/og.png"></head><body></body></html>`)
	})
	mux.HandleFunc("/posts/bare", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><title>bare</title></head></html>`)
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// Test helper: create an importer over a memory store
func setupTestImporter(t *testing.T) (*Importer, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	t.Cleanup(func() { st.Close() })

	im, err := New(st, "news", nil)
	require.NoError(t, err)
	im.now = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	return im, st
}

// TestImport verifies new items with images are created and the rest skipped
func TestImport(t *testing.T) {
	srv := setupTestFeedServer(t)
	im, st := setupTestImporter(t)
	ctx := context.Background()

	_, err := st.Create(ctx, "news", content.Record{Title: "Old", Source: srv.URL + "/posts/existing"})
	require.NoError(t, err)

	result, err := im.Import(ctx, srv.URL+"/feed.xml", Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Created)
	assert.Equal(t, 2, result.Skipped)
	assert.Len(t, result.IDs, 3)

	items, err := st.List(ctx, "news", store.OrderByDate)
	require.NoError(t, err)
	images := map[string]string{}
	for _, item := range items {
		images[item.Title] = item.ImageURL
	}
	assert.Equal(t, srv.URL+"/img/enclosure.jpg", images["With Enclosure"])
	assert.Equal(t, srv.URL+"/img/inline.png", images["Inline Image"])
	assert.Equal(t, srv.URL+"/img/og.png", images["Open Graph"])
	assert.NotContains(t, images, "No Image")

	// A second run finds nothing new
	result, err = im.Import(ctx, srv.URL+"/feed.xml", Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Created)
}

// TestImport_Options verifies limit and admin-only imports
func TestImport_Options(t *testing.T) {
	srv := setupTestFeedServer(t)
	im, st := setupTestImporter(t)
	ctx := context.Background()

	result, err := im.Import(ctx, srv.URL+"/feed.xml", Options{ForAdmin: true, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)

	items, err := st.List(ctx, "news", store.OrderByDate)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, items[0].ForAdmin)
	assert.Equal(t, "With Enclosure", items[0].Title)
	assert.Equal(t, "2024-03-05T14:07:09.000Z", items[0].Date)
}

// TestImport_BadFeed verifies fetch failures are reported
func TestImport_BadFeed(t *testing.T) {
	srv := setupTestFeedServer(t)
	im, _ := setupTestImporter(t)

	_, err := im.Import(context.Background(), srv.URL+"/missing.xml", Options{})
	assert.Error(t, err)
}

// TestItemToRecord verifies field mapping and fallbacks
func TestItemToRecord(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	updated := time.Date(2024, 2, 2, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		item *gofeed.Item
		want content.Record
	}{
		{
			name: "empty title and date",
			item: &gofeed.Item{Link: "https://example.com/a", Description: "Body"},
			want: content.Record{
				Title:  "(No title)",
				Text:   "Body",
				Source: "https://example.com/a",
				Date:   "2025-06-01T12:00:00.000Z",
			},
		},
		{
			name: "updated date and content fallback",
			item: &gofeed.Item{
				Title:         "  Spaced   out ",
				Link:          "https://example.com/b",
				Content:       "<p>One</p><p>Two<br>Three</p>",
				UpdatedParsed: &updated,
				Image:         &gofeed.Image{URL: "https://example.com/b.png"},
			},
			want: content.Record{
				Title:    "Spaced out",
				Text:     "One\nTwo\nThree",
				ImageURL: "https://example.com/b.png",
				Source:   "https://example.com/b",
				Date:     "2024-02-02T08:00:00.000Z",
				ForAdmin: true,
			},
		},
		{
			name: "relative item image",
			item: &gofeed.Item{
				Title:       "Relative",
				Link:        "https://example.com/posts/a",
				Description: "Body",
				Image:       &gofeed.Image{URL: "/img/a.png"},
			},
			want: content.Record{
				Title:    "Relative",
				Text:     "Body",
				ImageURL: "https://example.com/img/a.png",
				Source:   "https://example.com/posts/a",
				Date:     "2025-06-01T12:00:00.000Z",
			},
		},
		{
			name: "relative enclosure",
			item: &gofeed.Item{
				Title:       "Enclosed",
				Link:        "https://example.com/posts/b",
				Description: "Body",
				Enclosures:  []*gofeed.Enclosure{{URL: "img/b.jpg", Type: "image/jpeg"}},
			},
			want: content.Record{
				Title:    "Enclosed",
				Text:     "Body",
				ImageURL: "https://example.com/posts/img/b.jpg",
				Source:   "https://example.com/posts/b",
				Date:     "2025-06-01T12:00:00.000Z",
			},
		},
		{
			name: "no text uses title",
			item: &gofeed.Item{Title: "Only title", Link: "https://example.com/c"},
			want: content.Record{
				Title:  "Only title",
				Text:   "Only title",
				Source: "https://example.com/c",
				Date:   "2025-06-01T12:00:00.000Z",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ItemToRecord(tt.item, now, tt.want.ForAdmin)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPlainText(t *testing.T) {
	assert.Equal(t, "", PlainText("   "))
	assert.Equal(t, "Fish & chips", PlainText("Fish &amp; chips"))
	assert.Equal(t, "Title\nBody text", PlainText("<div>Title</div><p>Body   text</p>"))
}
