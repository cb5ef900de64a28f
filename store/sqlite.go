package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/pevans/folio/content"
)

// SQLiteStore keeps collections in a SQLite database. Pushes are delivered
// for changes made through this store instance.
type SQLiteStore struct {
	db  *sql.DB
	hub *hub
}

// NewSQLiteStore opens (or creates) the database at dbPath. driver is
// "sqlite3" for mattn/go-sqlite3 or "sqlite" for the pure-Go driver; empty
// means "sqlite3".
func NewSQLiteStore(dbPath, driver string) (*SQLiteStore, error) {
	if driver == "" {
		driver = "sqlite3"
	}
	if dbPath == "" {
		dbPath = "folio.db"
	}

	db, err := sql.Open(driver, dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set wal mode: %w", err)
	}

	store := &SQLiteStore{db: db, hub: newHub()}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates the records table if it doesn't exist.
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		path TEXT NOT NULL,
		id TEXT NOT NULL,
		title TEXT NOT NULL,
		text TEXT NOT NULL,
		image_url TEXT NOT NULL,
		source TEXT NOT NULL,
		date TEXT NOT NULL,
		for_admin INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (path, id)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close stops all subscriptions and closes the database connection.
func (s *SQLiteStore) Close() error {
	s.hub.close()
	return s.db.Close()
}

// Subscribe implements Store.
func (s *SQLiteStore) Subscribe(ctx context.Context, path, orderBy string, fn Listener) (CancelFunc, error) {
	return s.hub.subscribe(ctx, path, orderBy, s.list, fn)
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context, path, orderBy string) ([]content.Item, error) {
	if err := ValidatePath(path); err != nil {
		return nil, err
	}
	return s.list(ctx, path, orderBy)
}

func (s *SQLiteStore) list(ctx context.Context, path, orderBy string) ([]content.Item, error) {
	query := `
		SELECT id, title, text, image_url, source, date, for_admin
		FROM records
		WHERE path = ?
		ORDER BY id
	`

	rows, err := s.db.QueryContext(ctx, query, path)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	items := []content.Item{}
	for rows.Next() {
		var item content.Item
		if err := rows.Scan(&item.ID, &item.Title, &item.Text, &item.ImageURL,
			&item.Source, &item.Date, &item.ForAdmin); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read records: %w", err)
	}

	sortItems(items, orderBy)
	return items, nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, path, id string) (content.Item, error) {
	if err := ValidatePath(path); err != nil {
		return content.Item{}, err
	}

	query := `
		SELECT id, title, text, image_url, source, date, for_admin
		FROM records
		WHERE path = ? AND id = ?
	`

	var item content.Item
	err := s.db.QueryRowContext(ctx, query, path, id).Scan(
		&item.ID, &item.Title, &item.Text, &item.ImageURL,
		&item.Source, &item.Date, &item.ForAdmin,
	)
	if err == sql.ErrNoRows {
		return content.Item{}, ErrNotFound
	}
	if err != nil {
		return content.Item{}, fmt.Errorf("failed to query record: %w", err)
	}

	return item, nil
}

// Create implements Store.
func (s *SQLiteStore) Create(ctx context.Context, path string, rec content.Record) (string, error) {
	if err := ValidatePath(path); err != nil {
		return "", err
	}

	id := NewID()
	query := `
		INSERT INTO records (
			path, id, title, text, image_url, source, date, for_admin
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		path, id, rec.Title, rec.Text, rec.ImageURL, rec.Source, rec.Date, rec.ForAdmin,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert record: %w", err)
	}

	s.hub.publish(path)
	return id, nil
}

// Update implements Store.
func (s *SQLiteStore) Update(ctx context.Context, path, id string, patch content.Patch) error {
	if err := ValidatePath(path); err != nil {
		return err
	}

	if patch.IsEmpty() {
		if _, err := s.Get(ctx, path, id); err != nil {
			return err
		}
		return nil
	}

	// Build dynamic UPDATE query based on provided fields
	var setClauses []string
	var args []any

	if patch.Title != nil {
		setClauses = append(setClauses, "title = ?")
		args = append(args, *patch.Title)
	}
	if patch.Text != nil {
		setClauses = append(setClauses, "text = ?")
		args = append(args, *patch.Text)
	}
	if patch.ImageURL != nil {
		setClauses = append(setClauses, "image_url = ?")
		args = append(args, *patch.ImageURL)
	}
	if patch.Source != nil {
		setClauses = append(setClauses, "source = ?")
		args = append(args, *patch.Source)
	}
	if patch.Date != nil {
		setClauses = append(setClauses, "date = ?")
		args = append(args, *patch.Date)
	}
	if patch.ForAdmin != nil {
		setClauses = append(setClauses, "for_admin = ?")
		args = append(args, *patch.ForAdmin)
	}

	args = append(args, path, id)
	query := fmt.Sprintf("UPDATE records SET %s WHERE path = ? AND id = ?",
		strings.Join(setClauses, ", "))

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	s.hub.publish(path)
	return nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, path, id string) error {
	if err := ValidatePath(path); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, "DELETE FROM records WHERE path = ? AND id = ?", path, id)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows > 0 {
		s.hub.publish(path)
	}

	return nil
}
