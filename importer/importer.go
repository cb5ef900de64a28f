// Package importer seeds a collection from an RSS or Atom feed.
package importer

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pevans/folio/content"
	"github.com/pevans/folio/store"
)

const (
	userAgent = "folio/1.0 (feed importer)"

	// DefaultConcurrency bounds the article pages fetched at once.
	DefaultConcurrency = 4
)

// Options controls a single import.
type Options struct {
	// ForAdmin marks every imported record as admin-only.
	ForAdmin bool
	// Limit caps how many feed items are considered. Zero means all.
	Limit int
}

// Result summarizes an import.
type Result struct {
	Created int      `json:"created"`
	Skipped int      `json:"skipped"`
	IDs     []string `json:"ids"`
}

// Importer turns feed items into records of one collection.
type Importer struct {
	store       store.Store
	path        string
	client      *http.Client
	logger      *zap.Logger
	now         func() time.Time
	Concurrency int
}

// New creates an importer writing to the collection at path.
func New(st store.Store, path string, logger *zap.Logger) (*Importer, error) {
	if err := store.ValidatePath(path); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{
		store:       st,
		path:        path,
		client:      &http.Client{Timeout: 10 * time.Second},
		logger:      logger.With(zap.String("collection", path)),
		now:         time.Now,
		Concurrency: DefaultConcurrency,
	}, nil
}

// Import fetches feedURL and creates a record for every new item that has an
// image. Items whose source is already in the collection are skipped.
func (im *Importer) Import(ctx context.Context, feedURL string, opts Options) (Result, error) {
	var result Result

	parsed, err := im.fetchFeed(ctx, feedURL)
	if err != nil {
		return result, err
	}

	existing, err := im.store.List(ctx, im.path, store.OrderByDate)
	if err != nil {
		return result, fmt.Errorf("failed to list %s: %w", im.path, err)
	}
	seen := make(map[string]bool, len(existing))
	for _, item := range existing {
		seen[item.Source] = true
	}

	items := parsed.Items
	if opts.Limit > 0 && len(items) > opts.Limit {
		items = items[:opts.Limit]
	}

	now := im.now()
	records := make([]content.Record, 0, len(items))
	for _, item := range items {
		rec := ItemToRecord(item, now, opts.ForAdmin)
		if rec.Source == "" || seen[rec.Source] {
			result.Skipped++
			continue
		}
		seen[rec.Source] = true
		records = append(records, rec)
	}

	if err := im.fillImages(ctx, records); err != nil {
		return result, err
	}

	for _, rec := range records {
		if rec.ImageURL == "" {
			im.logger.Debug("Skipping item without image", zap.String("source", rec.Source))
			result.Skipped++
			continue
		}
		id, err := im.store.Create(ctx, im.path, rec)
		if err != nil {
			return result, fmt.Errorf("failed to create record for %s: %w", rec.Source, err)
		}
		result.Created++
		result.IDs = append(result.IDs, id)
	}

	im.logger.Info("Imported feed",
		zap.String("url", feedURL),
		zap.Int("created", result.Created),
		zap.Int("skipped", result.Skipped))
	return result, nil
}

func (im *Importer) fetchFeed(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	fp := gofeed.NewParser()
	fp.Client = im.client
	fp.UserAgent = userAgent
	parsed, err := fp.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}
	return parsed, nil
}

// fillImages looks up og:image for records that have no image yet. A page
// that cannot be fetched leaves its record without an image.
func (im *Importer) fillImages(ctx context.Context, records []content.Record) error {
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(max(im.Concurrency, 1))

	for i := range records {
		if records[i].ImageURL != "" {
			continue
		}
		i := i
		eg.Go(func() error {
			image, err := im.lookupImage(egCtx, records[i].Source)
			if err != nil {
				im.logger.Debug("Image lookup failed",
					zap.String("source", records[i].Source),
					zap.Error(err))
				return nil
			}
			records[i].ImageURL = image
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// lookupImage returns the og:image (or twitter:image) of the page at
// pageURL, resolved against it.
func (im *Importer) lookupImage(ctx context.Context, pageURL string) (string, error) {
	doc, err := im.fetchHTML(ctx, pageURL)
	if err != nil {
		return "", err
	}

	for _, sel := range []string{`meta[property="og:image"]`, `meta[name="twitter:image"]`} {
		if src, ok := doc.Find(sel).First().Attr("content"); ok && strings.TrimSpace(src) != "" {
			return resolve(pageURL, strings.TrimSpace(src)), nil
		}
	}
	return "", nil
}

func (im *Importer) fetchHTML(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := im.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return doc, nil
}

// ItemToRecord converts a feed item. The image is taken from the item
// itself when it carries one; otherwise it is left empty for lookup.
func ItemToRecord(item *gofeed.Item, now time.Time, forAdmin bool) content.Record {
	title := strings.Join(strings.Fields(item.Title), " ")
	if title == "" {
		title = "(No title)"
	}

	body := item.Description
	if body == "" {
		body = item.Content
	}
	text := PlainText(body)
	if text == "" {
		text = title
	}

	date := now
	if item.PublishedParsed != nil {
		date = *item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		date = *item.UpdatedParsed
	}

	return content.Record{
		Title:    title,
		Text:     text,
		ImageURL: itemImage(item),
		Source:   strings.TrimSpace(item.Link),
		Date:     content.FormatDate(date),
		ForAdmin: forAdmin,
	}
}

// itemImage returns the item image, an image enclosure, or the first image
// in the item's HTML, resolved against the item link.
func itemImage(item *gofeed.Item) string {
	if item.Image != nil && item.Image.URL != "" {
		return resolve(item.Link, item.Image.URL)
	}
	for _, enc := range item.Enclosures {
		if enc != nil && strings.HasPrefix(enc.Type, "image/") && enc.URL != "" {
			return resolve(item.Link, enc.URL)
		}
	}
	for _, body := range []string{item.Content, item.Description} {
		if body == "" {
			continue
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
		if err != nil {
			continue
		}
		if src, ok := doc.Find("img[src]").First().Attr("src"); ok && src != "" {
			return resolve(item.Link, src)
		}
	}
	return ""
}

// PlainText strips markup from an HTML fragment, keeping paragraph breaks as
// newlines and collapsing other whitespace.
func PlainText(fragment string) string {
	if strings.TrimSpace(fragment) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.TrimSpace(fragment)
	}

	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p, div, li").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})

	var lines []string
	for _, line := range strings.Split(doc.Text(), "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

func resolve(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
