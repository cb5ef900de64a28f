package feed

import (
	"time"

	"github.com/pevans/folio/content"
	"github.com/pevans/folio/markup"
	"github.com/pevans/folio/session"
)

// FormMode is the state of the admin form.
type FormMode int

const (
	FormHidden FormMode = iota
	FormCreate
	FormEdit
)

func (m FormMode) String() string {
	switch m {
	case FormCreate:
		return "create"
	case FormEdit:
		return "edit"
	default:
		return "hidden"
	}
}

// View is a snapshot of everything a renderer needs.
type View struct {
	Items    []content.Item
	Total    int
	HasMore  bool
	Page     int
	PageSize int

	Search           string
	Order            Order
	HideAdminContent bool
	Role             session.Role

	Form   FormMode
	EditID string
	Draft  content.Draft
	Busy   bool

	// Loaded is false until the first snapshot arrives.
	Loaded bool
}

// Controls describes which controls are shown and their labels.
type Controls struct {
	Search           string
	ShowSort         bool
	SortLabel        string
	ShowAdminToggle  bool
	HideAdminContent bool
	ShowAddButton    bool
	ShowLoadMore     bool
	Form             FormMode
	SubmitLabel      string
	Busy             bool
}

// SortLabel names the current order for the sort toggle.
func SortLabel(o Order) string {
	if o == Asc {
		return "Sort: Old to New"
	}
	return "Sort: New to Old"
}

// Controls returns the control state for the current view.
func (e *Engine) Controls() Controls {
	v := e.View()
	admin := v.Role.IsAdmin()

	c := Controls{
		Search:           v.Search,
		ShowSort:         e.opts.Collection.Sortable && len(v.Items) >= 2,
		SortLabel:        SortLabel(v.Order),
		ShowAdminToggle:  admin,
		HideAdminContent: v.HideAdminContent,
		ShowAddButton:    admin,
		ShowLoadMore:     v.HasMore,
		Form:             v.Form,
		Busy:             v.Busy,
	}
	switch v.Form {
	case FormCreate:
		c.SubmitLabel = "Add " + e.opts.Collection.Title
	case FormEdit:
		c.SubmitLabel = "Update " + e.opts.Collection.Title
	}
	return c
}

// Card is a visible item prepared for display.
type Card struct {
	content.Item
	DisplayDate string `json:"displayDate"`
	Host        string `json:"host"`
	HTML        string `json:"html"`
	TextClass   string `json:"textClass,omitempty"`
	Editable    bool   `json:"editable"`
}

// Cards renders the visible items.
func (e *Engine) Cards() []Card {
	v := e.View()
	return BuildCards(v.Items, e.opts.Collection.Styles, v.Role, e.opts.Location)
}

// BuildCards prepares items for display. Only admins get editable cards.
func BuildCards(items []content.Item, styles Styles, role session.Role, loc *time.Location) []Card {
	cards := make([]Card, 0, len(items))
	for _, item := range items {
		card := Card{
			Item:        item,
			DisplayDate: DisplayDate(item.Date, loc),
			Host:        markup.Host(item.Source),
			HTML:        markup.Render(item.Text),
			Editable:    role.IsAdmin(),
		}
		if styles.Text != nil {
			card.TextClass = styles.Text.Resolve(item.ID)
		}
		cards = append(cards, card)
	}
	return cards
}
