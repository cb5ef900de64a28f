package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pevans/folio/content"
)

// FileStore keeps each collection in its own directory, one JSON file per
// record named after the record id.
type FileStore struct {
	storageDir string
	mu         sync.Mutex
	hub        *hub
}

// NewFileStore creates a file store rooted at storageDir.
func NewFileStore(storageDir string) (*FileStore, error) {
	if storageDir == "" {
		storageDir = ".folio"
	}

	// Create the storage directory if it doesn't exist (0700: owner-only access)
	if err := os.MkdirAll(storageDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &FileStore{
		storageDir: storageDir,
		hub:        newHub(),
	}, nil
}

// Close stops all subscriptions.
func (fs *FileStore) Close() error {
	fs.hub.close()
	return nil
}

func (fs *FileStore) recordFile(path, id string) string {
	return filepath.Join(fs.storageDir, path, id+".json")
}

// Subscribe implements Store.
func (fs *FileStore) Subscribe(ctx context.Context, path, orderBy string, fn Listener) (CancelFunc, error) {
	return fs.hub.subscribe(ctx, path, orderBy, fs.list, fn)
}

// List implements Store.
func (fs *FileStore) List(ctx context.Context, path, orderBy string) ([]content.Item, error) {
	if err := ValidatePath(path); err != nil {
		return nil, err
	}
	return fs.list(ctx, path, orderBy)
}

func (fs *FileStore) list(_ context.Context, path, orderBy string) ([]content.Item, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	entries, err := os.ReadDir(filepath.Join(fs.storageDir, path))
	if os.IsNotExist(err) {
		return []content.Item{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read collection directory: %w", err)
	}

	items := []content.Item{}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		id := entry.Name()[:len(entry.Name())-len(".json")]
		rec, err := fs.read(path, id)
		if err != nil {
			return nil, fmt.Errorf("failed to read file %s: %w", entry.Name(), err)
		}

		items = append(items, rec.WithID(id))
	}

	sortItems(items, orderBy)
	return items, nil
}

func (fs *FileStore) read(path, id string) (content.Record, error) {
	data, err := os.ReadFile(fs.recordFile(path, id))
	if err != nil {
		return content.Record{}, err
	}

	var rec content.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return content.Record{}, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return rec, nil
}

func (fs *FileStore) write(path, id string, rec content.Record) error {
	if err := os.MkdirAll(filepath.Join(fs.storageDir, path), 0o700); err != nil {
		return fmt.Errorf("failed to create collection directory: %w", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	// Write to file (0600: owner-only read/write)
	if err := os.WriteFile(fs.recordFile(path, id), data, 0o600); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	return nil
}

// Get implements Store.
func (fs *FileStore) Get(_ context.Context, path, id string) (content.Item, error) {
	if err := ValidatePath(path); err != nil {
		return content.Item{}, err
	}
	if err := ValidatePath(id); err != nil {
		return content.Item{}, ErrNotFound
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	rec, err := fs.read(path, id)
	if os.IsNotExist(err) {
		return content.Item{}, ErrNotFound
	}
	if err != nil {
		return content.Item{}, fmt.Errorf("failed to read record: %w", err)
	}
	return rec.WithID(id), nil
}

// Create implements Store.
func (fs *FileStore) Create(_ context.Context, path string, rec content.Record) (string, error) {
	if err := ValidatePath(path); err != nil {
		return "", err
	}

	id := NewID()
	fs.mu.Lock()
	err := fs.write(path, id, rec)
	fs.mu.Unlock()
	if err != nil {
		return "", err
	}

	fs.hub.publish(path)
	return id, nil
}

// Update implements Store.
func (fs *FileStore) Update(_ context.Context, path, id string, patch content.Patch) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	if err := ValidatePath(id); err != nil {
		return ErrNotFound
	}

	fs.mu.Lock()
	rec, err := fs.read(path, id)
	if err == nil {
		err = fs.write(path, id, patch.Apply(rec))
	}
	fs.mu.Unlock()

	if os.IsNotExist(err) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}

	fs.hub.publish(path)
	return nil
}

// Delete implements Store.
func (fs *FileStore) Delete(_ context.Context, path, id string) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	if err := ValidatePath(id); err != nil {
		return nil
	}

	fs.mu.Lock()
	err := os.Remove(fs.recordFile(path, id))
	fs.mu.Unlock()

	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}

	fs.hub.publish(path)
	return nil
}
