package store

import (
	"context"
	"sync"

	"github.com/pevans/folio/content"
)

// loadFunc reads the current contents of a collection in store order.
type loadFunc func(ctx context.Context, path, orderBy string) ([]content.Item, error)

// hub fans change signals out to live subscriptions. Each subscription owns
// one delivery goroutine; signals are coalesced, so a slow listener only
// ever sees the latest snapshot.
type hub struct {
	mu     sync.Mutex
	subs   map[string]map[*subscription]struct{}
	closed bool
}

type subscription struct {
	path    string
	orderBy string
	load    loadFunc
	fn      Listener
	kick    chan struct{}
	done    chan struct{}
	exited  chan struct{}
	stop    sync.Once
}

func newHub() *hub {
	return &hub{subs: make(map[string]map[*subscription]struct{})}
}

func (h *hub) subscribe(ctx context.Context, path, orderBy string, load loadFunc, fn Listener) (CancelFunc, error) {
	if err := ValidatePath(path); err != nil {
		return nil, err
	}

	s := &subscription{
		path:    path,
		orderBy: orderBy,
		load:    load,
		fn:      fn,
		kick:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		exited:  make(chan struct{}),
	}
	// The first delivery happens right away.
	s.kick <- struct{}{}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrClosed
	}
	if h.subs[path] == nil {
		h.subs[path] = make(map[*subscription]struct{})
	}
	h.subs[path][s] = struct{}{}
	h.mu.Unlock()

	go h.run(ctx, s)

	return func() {
		s.stop.Do(func() { close(s.done) })
		<-s.exited
	}, nil
}

func (h *hub) run(ctx context.Context, s *subscription) {
	defer close(s.exited)
	defer h.remove(s)

	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		case <-s.kick:
		}

		items, err := s.load(ctx, s.path, s.orderBy)
		if ctx.Err() != nil {
			return
		}
		select {
		case <-s.done:
			return
		default:
		}
		if err != nil {
			s.fn(nil, err)
			continue
		}
		s.fn(items, nil)
	}
}

func (h *hub) remove(s *subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs[s.path], s)
	if len(h.subs[s.path]) == 0 {
		delete(h.subs, s.path)
	}
}

// publish signals every subscription on path that the collection changed.
func (h *hub) publish(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs[path] {
		select {
		case s.kick <- struct{}{}:
		default:
		}
	}
}

// count returns the number of live subscriptions on path.
func (h *hub) count(path string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[path])
}

// close stops every subscription and waits for their goroutines to exit.
func (h *hub) close() {
	h.mu.Lock()
	h.closed = true
	var all []*subscription
	for _, subs := range h.subs {
		for s := range subs {
			all = append(all, s)
		}
	}
	h.mu.Unlock()

	for _, s := range all {
		s.stop.Do(func() { close(s.done) })
		<-s.exited
	}
}
