package content

import (
	"strings"
	"time"
)

// DateLayout is the layout used when stamping a new record. It matches the
// millisecond ISO-8601 form written by browsers (2024-01-15T10:30:00.000Z).
const DateLayout = "2006-01-02T15:04:05.000Z07:00"

// Item is a single unit of content in a collection, such as a project or a
// blog post.
type Item struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Text     string `json:"text"`
	ImageURL string `json:"imageUrl"`
	Source   string `json:"source"`
	Date     string `json:"date"`
	ForAdmin bool   `json:"forAdmin"`
}

// Record is the stored form of an item. The id is the record's key in its
// collection and is not part of the record body.
type Record struct {
	Title    string `json:"title"`
	Text     string `json:"text"`
	ImageURL string `json:"imageUrl"`
	Source   string `json:"source"`
	Date     string `json:"date"`
	ForAdmin bool   `json:"forAdmin"`
}

// Patch represents fields that can be updated on a record. Nil fields are
// left untouched.
type Patch struct {
	Title    *string `json:"title,omitempty"`
	Text     *string `json:"text,omitempty"`
	ImageURL *string `json:"imageUrl,omitempty"`
	Source   *string `json:"source,omitempty"`
	Date     *string `json:"date,omitempty"`
	ForAdmin *bool   `json:"forAdmin,omitempty"`
}

// Record returns the item without its id.
func (i Item) Record() Record {
	return Record{
		Title:    i.Title,
		Text:     i.Text,
		ImageURL: i.ImageURL,
		Source:   i.Source,
		Date:     i.Date,
		ForAdmin: i.ForAdmin,
	}
}

// WithID attaches a key to a record.
func (r Record) WithID(id string) Item {
	return Item{
		ID:       id,
		Title:    r.Title,
		Text:     r.Text,
		ImageURL: r.ImageURL,
		Source:   r.Source,
		Date:     r.Date,
		ForAdmin: r.ForAdmin,
	}
}

// Apply merges the patch into the record at the field level.
func (p Patch) Apply(r Record) Record {
	if p.Title != nil {
		r.Title = *p.Title
	}
	if p.Text != nil {
		r.Text = *p.Text
	}
	if p.ImageURL != nil {
		r.ImageURL = *p.ImageURL
	}
	if p.Source != nil {
		r.Source = *p.Source
	}
	if p.Date != nil {
		r.Date = *p.Date
	}
	if p.ForAdmin != nil {
		r.ForAdmin = *p.ForAdmin
	}
	return r
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Title == nil && p.Text == nil && p.ImageURL == nil &&
		p.Source == nil && p.Date == nil && p.ForAdmin == nil
}

// FormatDate stamps t in DateLayout (UTC).
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// ParseDate parses an RFC 3339 date. Unparseable dates yield the zero time
// so that they sort as the oldest entries.
func ParseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
