package content

import "time"

// Draft is the in-progress snapshot of the item editor form.
type Draft struct {
	Title    string `json:"title"`
	Text     string `json:"text"`
	ImageURL string `json:"imageUrl"`
	Source   string `json:"source"`
	ForAdmin bool   `json:"forAdmin"`
}

// DraftFrom fills a draft from an existing item.
func DraftFrom(i Item) Draft {
	return Draft{
		Title:    i.Title,
		Text:     i.Text,
		ImageURL: i.ImageURL,
		Source:   i.Source,
		ForAdmin: i.ForAdmin,
	}
}

// Complete reports whether every required field is filled in.
func (d Draft) Complete() bool {
	return d.Title != "" && d.Text != "" && d.ImageURL != "" && d.Source != ""
}

// IsZero reports whether nothing has been entered.
func (d Draft) IsZero() bool {
	return d == Draft{}
}

// Record builds a new record stamped with the given creation time.
func (d Draft) Record(now time.Time) Record {
	return Record{
		Title:    d.Title,
		Text:     d.Text,
		ImageURL: d.ImageURL,
		Source:   d.Source,
		Date:     FormatDate(now),
		ForAdmin: d.ForAdmin,
	}
}

// Patch builds an update carrying every form field. The date is left out so
// edits keep the original creation date.
func (d Draft) Patch() Patch {
	title, text, imageURL, source, forAdmin := d.Title, d.Text, d.ImageURL, d.Source, d.ForAdmin
	return Patch{
		Title:    &title,
		Text:     &text,
		ImageURL: &imageURL,
		Source:   &source,
		ForAdmin: &forAdmin,
	}
}
