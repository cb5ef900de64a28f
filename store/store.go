// Package store implements the realtime content store: collections of
// records keyed by store-generated ids, with ordered reads and push-based
// live subscriptions that deliver the full collection on every change.
package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/oklog/ulid/v2"
	"github.com/pevans/folio/content"
	"go.uber.org/zap"
)

// Custom errors for store operations
var (
	ErrNotFound       = errors.New("record not found")
	ErrInvalidPath    = errors.New("collection path must be a single segment of letters, digits, '-' or '_'")
	ErrClosed         = errors.New("store is closed")
	ErrUnknownBackend = errors.New("storage type must be memory, sqlite, file or remote")
)

// OrderByDate orders a collection by its records' date field.
const OrderByDate = "date"

// Listener receives the full, ordered contents of a collection. It is called
// once right after subscribing and again after every change. A non-nil err
// means the subscription failed; items is nil in that case.
type Listener func(items []content.Item, err error)

// CancelFunc stops a subscription. Once it returns no further calls to the
// listener are made. It must not be called from inside the listener.
type CancelFunc func()

// Store is the contract the feed engine and the API server rely on.
type Store interface {
	// Subscribe opens a live subscription on a collection. The subscription
	// ends when the returned CancelFunc is called or ctx is done.
	Subscribe(ctx context.Context, path, orderBy string, fn Listener) (CancelFunc, error)

	// List returns the current contents of a collection.
	List(ctx context.Context, path, orderBy string) ([]content.Item, error)

	// Get returns a single record. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, path, id string) (content.Item, error)

	// Create adds a record and returns its new id.
	Create(ctx context.Context, path string, rec content.Record) (string, error)

	// Update merges a patch into an existing record.
	Update(ctx context.Context, path, id string, patch content.Patch) error

	// Delete removes a record. Deleting a missing record is not an error.
	Delete(ctx context.Context, path, id string) error

	Close() error
}

var pathPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidatePath checks that a collection path is usable as a key.
func ValidatePath(path string) error {
	if !pathPattern.MatchString(path) {
		return fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	return nil
}

// NewID returns a fresh record id. ULIDs sort by creation time and are never
// reused.
func NewID() string {
	return ulid.Make().String()
}

// Options selects and configures a backend.
type Options struct {
	Type   string // memory, sqlite, file or remote
	DSN    string // database path, directory or base URL
	Token  string // bearer token for the remote backend
	Driver string // sqlite driver name: "sqlite3" (cgo) or "sqlite" (pure Go)
	Logger *zap.Logger
}

// Open creates the backend described by opts.
func Open(opts Options) (Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	switch opts.Type {
	case "memory":
		return NewMemoryStore(), nil
	case "sqlite", "":
		return NewSQLiteStore(opts.DSN, opts.Driver)
	case "file":
		return NewFileStore(opts.DSN)
	case "remote":
		return NewRemote(opts.DSN, opts.Token, logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Type)
	}
}
