package store

import (
	"cmp"
	"slices"
	"time"

	"github.com/pevans/folio/content"
)

// sortItems puts items in store order: ids ascending, or by the order field
// ascending with ids breaking ties.
func sortItems(items []content.Item, orderBy string) {
	if orderBy != OrderByDate {
		slices.SortFunc(items, func(a, b content.Item) int {
			return cmp.Compare(a.ID, b.ID)
		})
		return
	}

	type keyed struct {
		item content.Item
		at   time.Time
	}
	ks := make([]keyed, len(items))
	for i, item := range items {
		ks[i] = keyed{item: item, at: content.ParseDate(item.Date)}
	}
	slices.SortFunc(ks, func(a, b keyed) int {
		if c := a.at.Compare(b.at); c != 0 {
			return c
		}
		return cmp.Compare(a.item.ID, b.item.ID)
	})
	for i := range ks {
		items[i] = ks[i].item
	}
}
