// Package feed is the content feed engine. It keeps a live, ordered copy of
// one collection, derives what a reader may see from the session role and
// the reader's controls, and runs the admin create/edit/delete flow.
package feed

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pevans/folio/content"
	"github.com/pevans/folio/notify"
	"github.com/pevans/folio/session"
	"github.com/pevans/folio/store"
)

var (
	ErrNoClickHandler   = errors.New("an item click handler is required")
	ErrInvalidPageSize  = errors.New("page size must be positive")
	ErrAlreadyStarted   = errors.New("feed already started")
	ErrClosed           = errors.New("feed is closed")
	ErrNotFound         = errors.New("item not found")
	ErrIncompleteDraft  = errors.New("title, text, image URL and source are required")
	ErrMutationInFlight = errors.New("another change is still being saved")
	ErrPermissionDenied = errors.New("permission denied")
)

const (
	// DefaultMutationTimeout bounds a single create, update or delete.
	DefaultMutationTimeout = 10 * time.Second

	permissionDeniedMessage = "You don't have permission!"
)

// Options configures an Engine.
type Options struct {
	Collection Collection

	// OnItemClick is required. It receives the fields of a selected item.
	OnItemClick ItemClickFunc

	// OnChange is called with the new view after every change. Calls are
	// serialized. It must not call back into the engine's mutators.
	OnChange func(View)

	// Storage is the session storage holding the admin toggle.
	Storage session.Storage

	Logger          *zap.Logger
	MutationTimeout time.Duration
	Location        *time.Location
	Now             func() time.Time

	// ApplyConfirmed also applies successful creates and updates to the
	// local copy instead of waiting for the next push.
	ApplyConfirmed bool
}

type lifecycle int

const (
	stateIdle lifecycle = iota
	stateActive
	stateClosed
)

// Engine is a mounted feed for one collection. It is safe for concurrent use.
type Engine struct {
	store    store.Store
	session  session.Provider
	notifier notify.Notifier
	toggle   *AdminToggle
	opts     Options
	logger   *zap.Logger

	// emitMu serializes OnChange calls; it is taken before mu.
	emitMu sync.Mutex

	mu        sync.Mutex
	state     lifecycle
	subGen    uint64
	all       []content.Item
	loaded    bool
	role      session.Role
	search    string
	order     Order
	page      int
	hideAdmin bool
	form      FormMode
	editID    string
	draft     content.Draft
	formGen   uint64
	busy      bool
	view      View

	loadedCh   chan struct{}
	loadedOnce sync.Once

	cancelSub   store.CancelFunc
	cancelWatch func()
}

// New creates an engine for opts.Collection. A nil session is treated as
// signed out and a nil notifier discards messages.
func New(st store.Store, sess session.Provider, n notify.Notifier, opts Options) (*Engine, error) {
	if opts.OnItemClick == nil {
		return nil, ErrNoClickHandler
	}
	if err := store.ValidatePath(opts.Collection.Path); err != nil {
		return nil, err
	}
	if opts.Collection.PageSize <= 0 {
		return nil, ErrInvalidPageSize
	}
	if sess == nil {
		sess = session.Fixed(session.RoleNone)
	}
	if n == nil {
		n = notify.Discard
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.MutationTimeout <= 0 {
		opts.MutationTimeout = DefaultMutationTimeout
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	e := &Engine{
		store:    st,
		session:  sess,
		notifier: n,
		toggle:   NewAdminToggle(opts.Storage),
		opts:     opts,
		logger:   opts.Logger.With(zap.String("collection", opts.Collection.Path)),
		role:     sess.Role(),
		order:    Desc,
		page:     1,
		loadedCh: make(chan struct{}),
	}
	e.hideAdmin = e.toggle.Hidden()
	e.deriveLocked()
	return e, nil
}

// Start subscribes to the collection and begins following role changes.
// A failed subscription leaves the feed empty and notifies the user.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	switch e.state {
	case stateActive:
		e.mu.Unlock()
		return ErrAlreadyStarted
	case stateClosed:
		e.mu.Unlock()
		return ErrClosed
	}
	e.state = stateActive
	e.subGen++
	gen := e.subGen
	e.mu.Unlock()

	cancelWatch := e.session.Watch(e.applyRole)
	e.applyRole(e.session.Role())

	cancelSub, err := e.store.Subscribe(ctx, e.opts.Collection.Path, store.OrderByDate, func(items []content.Item, err error) {
		e.applyPush(gen, items, err)
	})

	e.mu.Lock()
	if e.state == stateClosed {
		e.mu.Unlock()
		cancelWatch()
		if cancelSub != nil {
			cancelSub()
		}
		return ErrClosed
	}
	e.cancelWatch = cancelWatch
	e.cancelSub = cancelSub
	e.mu.Unlock()

	if err != nil {
		e.applyPush(gen, nil, err)
		return fmt.Errorf("failed to subscribe to %s: %w", e.opts.Collection.Path, err)
	}
	e.logger.Debug("Feed started")
	return nil
}

// Close ends the subscription and the role watch. No view changes are
// emitted afterwards. Close is idempotent.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.state == stateClosed {
		e.mu.Unlock()
		return nil
	}
	e.state = stateClosed
	e.subGen++
	cancelSub, cancelWatch := e.cancelSub, e.cancelWatch
	e.cancelSub, e.cancelWatch = nil, nil
	e.mu.Unlock()

	if cancelWatch != nil {
		cancelWatch()
	}
	if cancelSub != nil {
		cancelSub()
	}
	e.logger.Debug("Feed closed")
	return nil
}

// Loaded is closed once the first snapshot (or subscription error) arrives.
func (e *Engine) Loaded() <-chan struct{} {
	return e.loadedCh
}

// View returns the current derived view.
func (e *Engine) View() View {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.view
}

// Collection returns the collection the engine was created for.
func (e *Engine) Collection() Collection {
	return e.opts.Collection
}

// update runs fn under the lock. When fn reports a change the view is
// derived again and emitted. Nothing runs once the engine is closed.
func (e *Engine) update(fn func() bool) bool {
	e.emitMu.Lock()
	defer e.emitMu.Unlock()

	e.mu.Lock()
	if e.state == stateClosed {
		e.mu.Unlock()
		return false
	}
	changed := fn()
	if changed {
		e.deriveLocked()
	}
	v := e.view
	e.mu.Unlock()

	if changed && e.opts.OnChange != nil {
		e.opts.OnChange(v)
	}
	return changed
}

func (e *Engine) deriveLocked() {
	res := Derive(e.all, Query{
		Role:             e.role,
		HideAdminContent: e.hideAdmin,
		Search:           e.search,
		Order:            e.order,
		Page:             e.page,
		PageSize:         e.opts.Collection.PageSize,
		Location:         e.opts.Location,
	})
	e.view = View{
		Items:            res.Items,
		Total:            res.Total,
		HasMore:          res.HasMore(),
		Page:             e.page,
		PageSize:         e.opts.Collection.PageSize,
		Search:           e.search,
		Order:            e.order,
		HideAdminContent: e.hideAdmin,
		Role:             e.role,
		Form:             e.form,
		EditID:           e.editID,
		Draft:            e.draft,
		Busy:             e.busy,
		Loaded:           e.loaded,
	}
}

// applyPush replaces the local copy with a store snapshot. Snapshots arrive
// oldest first; the local copy keeps newest first.
func (e *Engine) applyPush(gen uint64, items []content.Item, err error) {
	applied := e.update(func() bool {
		if e.state != stateActive || gen != e.subGen {
			return false
		}
		if err != nil {
			e.all = nil
		} else {
			all := slices.Clone(items)
			slices.Reverse(all)
			e.all = all
		}
		e.loaded = true
		return true
	})
	if !applied {
		return
	}
	e.loadedOnce.Do(func() { close(e.loadedCh) })

	if err != nil {
		e.logger.Error("Failed to load collection", zap.Error(err))
		e.notifier.Notify(fmt.Sprintf("Failed to load %s. Try again later.", e.opts.Collection.Title), notify.Error)
		return
	}
	e.logger.Debug("Applied snapshot", zap.Int("items", len(items)))
}

func (e *Engine) applyRole(role session.Role) {
	e.update(func() bool {
		if e.role == role {
			return false
		}
		e.role = role
		return true
	})
}

// SetSearch sets the search text and returns to the first page.
func (e *Engine) SetSearch(q string) {
	e.update(func() bool {
		if e.search == q {
			return false
		}
		e.search = q
		e.page = 1
		return true
	})
}

// SetSortOrder sets the date order.
func (e *Engine) SetSortOrder(o Order) {
	e.update(func() bool {
		if e.order == o {
			return false
		}
		e.order = o
		return true
	})
}

// ToggleSort flips the date order.
func (e *Engine) ToggleSort() {
	e.update(func() bool {
		e.order = e.order.Toggle()
		return true
	})
}

// SetHideAdminContent sets and persists the admin toggle.
func (e *Engine) SetHideAdminContent(hidden bool) {
	e.update(func() bool {
		if e.hideAdmin == hidden {
			return false
		}
		e.hideAdmin = hidden
		e.toggle.SetHidden(hidden)
		return true
	})
}

// LoadMore reveals one more page. It reports false when nothing more is
// available.
func (e *Engine) LoadMore() bool {
	return e.update(func() bool {
		if !e.view.HasMore {
			return false
		}
		e.page++
		return true
	})
}

// Click passes a visible item's fields to the click handler.
func (e *Engine) Click(id string) error {
	e.mu.Lock()
	item, ok := findItem(e.view.Items, id)
	e.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	e.opts.OnItemClick(item.ID, item.Date, item.Title, item.Text, item.Source, item.ImageURL)
	return nil
}

func findItem(items []content.Item, id string) (content.Item, bool) {
	i := slices.IndexFunc(items, func(it content.Item) bool { return it.ID == id })
	if i < 0 {
		return content.Item{}, false
	}
	return items[i], true
}
