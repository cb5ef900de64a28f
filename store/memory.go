package store

import (
	"context"
	"sync"

	"github.com/pevans/folio/content"
)

// MemoryStore keeps collections in process memory. It is the default for
// tests and for running the service without persistence.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]content.Record
	hub         *hub
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]content.Record),
		hub:         newHub(),
	}
}

// Subscribe implements Store.
func (m *MemoryStore) Subscribe(ctx context.Context, path, orderBy string, fn Listener) (CancelFunc, error) {
	return m.hub.subscribe(ctx, path, orderBy, m.list, fn)
}

// List implements Store.
func (m *MemoryStore) List(ctx context.Context, path, orderBy string) ([]content.Item, error) {
	if err := ValidatePath(path); err != nil {
		return nil, err
	}
	return m.list(ctx, path, orderBy)
}

func (m *MemoryStore) list(_ context.Context, path, orderBy string) ([]content.Item, error) {
	m.mu.RLock()
	records := m.collections[path]
	items := make([]content.Item, 0, len(records))
	for id, rec := range records {
		items = append(items, rec.WithID(id))
	}
	m.mu.RUnlock()

	sortItems(items, orderBy)
	return items, nil
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, path, id string) (content.Item, error) {
	if err := ValidatePath(path); err != nil {
		return content.Item{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.collections[path][id]
	if !ok {
		return content.Item{}, ErrNotFound
	}
	return rec.WithID(id), nil
}

// Create implements Store.
func (m *MemoryStore) Create(ctx context.Context, path string, rec content.Record) (string, error) {
	if err := ValidatePath(path); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id := NewID()
	m.mu.Lock()
	if m.collections[path] == nil {
		m.collections[path] = make(map[string]content.Record)
	}
	m.collections[path][id] = rec
	m.mu.Unlock()

	m.hub.publish(path)
	return id, nil
}

// Update implements Store.
func (m *MemoryStore) Update(ctx context.Context, path, id string, patch content.Patch) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	rec, ok := m.collections[path][id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	m.collections[path][id] = patch.Apply(rec)
	m.mu.Unlock()

	m.hub.publish(path)
	return nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(ctx context.Context, path, id string) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	_, ok := m.collections[path][id]
	delete(m.collections[path], id)
	m.mu.Unlock()

	if ok {
		m.hub.publish(path)
	}
	return nil
}

// Close stops all subscriptions.
func (m *MemoryStore) Close() error {
	m.hub.close()
	return nil
}
