package feed

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/pevans/folio/content"
	"github.com/pevans/folio/session"
)

// Order is the direction items are sorted by date.
type Order string

const (
	Desc Order = "desc"
	Asc  Order = "asc"
)

// ParseOrder accepts "asc" or "desc" (empty means desc).
func ParseOrder(s string) (Order, error) {
	switch Order(strings.ToLower(strings.TrimSpace(s))) {
	case Asc:
		return Asc, nil
	case Desc, "":
		return Desc, nil
	default:
		return "", fmt.Errorf("invalid sort order %q: must be asc or desc", s)
	}
}

// Toggle returns the opposite order.
func (o Order) Toggle() Order {
	if o == Asc {
		return Desc
	}
	return Asc
}

// DisplayDateLayout is how dates are shown to readers and what the search
// box matches against.
const DisplayDateLayout = "1/2/2006, 3:04:05 PM"

// DisplayDate formats an item date for display in loc.
func DisplayDate(date string, loc *time.Location) string {
	t := content.ParseDate(date)
	if t.IsZero() {
		return "Invalid Date"
	}
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(DisplayDateLayout)
}

// Query holds every input of the derivation pipeline.
type Query struct {
	Role             session.Role
	HideAdminContent bool
	Search           string
	Order            Order
	Page             int
	PageSize         int
	Location         *time.Location
}

// Result is the visible slice of a collection.
type Result struct {
	Items []content.Item
	// Total is the number of items that passed the filters, before
	// pagination.
	Total int
}

// HasMore reports whether another page is available.
func (r Result) HasMore() bool {
	return r.Total > len(r.Items)
}

// Derive computes the visible items: role filter, then search, then a
// stable sort by date, then pagination. It does not modify all.
func Derive(all []content.Item, q Query) Result {
	loc := q.Location
	if loc == nil {
		loc = time.Local
	}
	showAdminOnly := q.Role.IsAdmin() && !q.HideAdminContent
	needle := strings.ToLower(strings.TrimSpace(q.Search))

	type entry struct {
		item content.Item
		at   time.Time
	}
	kept := make([]entry, 0, len(all))
	for _, item := range all {
		if item.ForAdmin && !showAdminOnly {
			continue
		}
		at := content.ParseDate(item.Date)
		if needle != "" && !matches(item, at, loc, needle) {
			continue
		}
		kept = append(kept, entry{item: item, at: at})
	}

	slices.SortStableFunc(kept, func(a, b entry) int {
		if q.Order == Asc {
			return a.at.Compare(b.at)
		}
		return b.at.Compare(a.at)
	})

	limit := len(kept)
	if q.PageSize > 0 {
		limit = min(max(q.Page, 1)*q.PageSize, len(kept))
	}

	items := make([]content.Item, limit)
	for i := 0; i < limit; i++ {
		items[i] = kept[i].item
	}
	return Result{Items: items, Total: len(kept)}
}

func matches(item content.Item, at time.Time, loc *time.Location, needle string) bool {
	if strings.Contains(strings.ToLower(item.Title), needle) ||
		strings.Contains(strings.ToLower(item.Text), needle) ||
		strings.Contains(strings.ToLower(item.Source), needle) {
		return true
	}

	date := "invalid date"
	if !at.IsZero() {
		date = strings.ToLower(at.In(loc).Format(DisplayDateLayout))
	}
	return strings.Contains(date, needle)
}
