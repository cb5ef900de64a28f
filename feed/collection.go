package feed

import (
	"strconv"
	"strings"
	"sync"

	"github.com/pevans/folio/session"
)

// Collection describes one feed: where its records live, what to call it,
// and how many items each "load more" adds.
type Collection struct {
	Path     string `json:"path"`
	Title    string `json:"title"`
	PageSize int    `json:"page_size"`
	// Sortable collections offer the sort toggle to readers.
	Sortable bool   `json:"sortable"`
	Styles   Styles `json:"-"`
}

// Styles are presentation class names. They never affect which items are
// visible.
type Styles struct {
	Item   string
	Image  string
	Title  string
	Data   string
	List   string
	Source string
	Text   ClassName
}

// ClassName yields the class for an item's text block, either one fixed
// value or a value computed per item.
type ClassName interface {
	Resolve(id string) string
}

// StaticClass is the same class for every item.
type StaticClass string

// Resolve implements ClassName.
func (c StaticClass) Resolve(string) string {
	return string(c)
}

// PerItemClass computes the class from the item id.
type PerItemClass func(id string) string

// Resolve implements ClassName.
func (f PerItemClass) Resolve(id string) string {
	if f == nil {
		return ""
	}
	return f(id)
}

// ItemClickFunc is called when a reader selects an item.
type ItemClickFunc func(id, date, title, text, source, imageURL string)

// HideAdminContentKey is the session storage key of the admin toggle.
const HideAdminContentKey = "hideAdminContent"

// AdminToggle persists whether admins see admin-only items mixed into the
// feed. It is one value per session, shared by every feed.
type AdminToggle struct {
	storage session.Storage
}

// NewAdminToggle wraps storage. A nil storage gets a private one.
func NewAdminToggle(storage session.Storage) *AdminToggle {
	if storage == nil {
		storage = session.NewMemoryStorage()
	}
	return &AdminToggle{storage: storage}
}

// Hidden reports whether admin-only items are hidden. Unset means hidden.
func (t *AdminToggle) Hidden() bool {
	v, ok := t.storage.Get(HideAdminContentKey)
	if !ok {
		return true
	}
	hidden, err := strconv.ParseBool(v)
	if err != nil {
		return true
	}
	return hidden
}

// SetHidden stores the toggle.
func (t *AdminToggle) SetHidden(hidden bool) {
	t.storage.Set(HideAdminContentKey, strconv.FormatBool(hidden))
}

// Highlight is a ClassName that adds an extra class to one selected item,
// such as the item currently opened by the reader.
type Highlight struct {
	Base   string
	Opened string

	mu sync.Mutex
	id string
}

// Select marks id as the highlighted item. An empty id clears it.
func (h *Highlight) Select(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.id = id
}

// Resolve implements ClassName.
func (h *Highlight) Resolve(id string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.id != "" && h.id == id && h.Opened != "" {
		return strings.TrimSpace(h.Base + " " + h.Opened)
	}
	return h.Base
}
