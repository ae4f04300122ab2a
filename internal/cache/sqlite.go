// Package cache is a local SQLite cache of data worth keeping between
// sessions: the last category tree and the filters of each listing view.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/complaint-desk/internal/model"
)

// SQLiteCache stores snapshots in a local SQLite database.
type SQLiteCache struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewSQLiteCache opens (or creates) a SQLite database at dbPath, enables
// WAL mode, and runs any pending schema migrations. Use ":memory:" in
// tests.
func NewSQLiteCache(dbPath string) (*SQLiteCache, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// One connection: an in-memory database exists per connection, and
	// the cache never needs concurrent writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	c := &SQLiteCache{db: db, now: time.Now}
	if err := c.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return c, nil
}

// Close closes the underlying database connection.
func (c *SQLiteCache) Close() error {
	return c.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (c *SQLiteCache) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := c.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = c.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := c.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

type snapshotRow struct {
	Payload string `db:"payload"`
	SavedAt string `db:"saved_at"`
}

// SaveCategoryTree replaces the stored category snapshot.
func (c *SQLiteCache) SaveCategoryTree(ctx context.Context, tree model.CategoryTree) error {
	payload, err := json.Marshal(tree)
	if err != nil {
		return fmt.Errorf("marshaling category tree: %w", err)
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO category_snapshots (id, payload, saved_at)
		VALUES (1, ?, ?)`,
		string(payload), c.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("saving category snapshot: %w", err)
	}
	return nil
}

// LoadCategoryTree returns the stored snapshot and when it was saved. ok
// is false when nothing has been saved yet.
func (c *SQLiteCache) LoadCategoryTree(ctx context.Context) (model.CategoryTree, time.Time, bool, error) {
	var row snapshotRow
	err := c.db.GetContext(ctx, &row, "SELECT payload, saved_at FROM category_snapshots WHERE id = 1")
	if errors.Is(err, sql.ErrNoRows) {
		return model.CategoryTree{}, time.Time{}, false, nil
	}
	if err != nil {
		return model.CategoryTree{}, time.Time{}, false, fmt.Errorf("loading category snapshot: %w", err)
	}

	var tree model.CategoryTree
	if err := json.Unmarshal([]byte(row.Payload), &tree); err != nil {
		return model.CategoryTree{}, time.Time{}, false, fmt.Errorf("decoding category snapshot: %w", err)
	}
	if err := model.Validate(tree); err != nil {
		return model.CategoryTree{}, time.Time{}, false, fmt.Errorf("decoding category snapshot: %w", err)
	}

	savedAt, err := time.Parse(time.RFC3339Nano, row.SavedAt)
	if err != nil {
		return model.CategoryTree{}, time.Time{}, false, fmt.Errorf("parsing snapshot time: %w", err)
	}
	return tree, savedAt, true, nil
}

// SaveFilters stores the filters last used by a listing view.
func (c *SQLiteCache) SaveFilters(ctx context.Context, view string, f model.FilterState) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshaling filters: %w", err)
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO filter_prefs (view, filters, updated_at)
		VALUES (?, ?, ?)`,
		view, string(data), c.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("saving filters for %s: %w", view, err)
	}
	return nil
}

// LoadFilters returns the stored filters of view, normalized. ok is false
// when the view has none.
func (c *SQLiteCache) LoadFilters(ctx context.Context, view string) (model.FilterState, bool, error) {
	var data string
	err := c.db.GetContext(ctx, &data, "SELECT filters FROM filter_prefs WHERE view = ?", view)
	if errors.Is(err, sql.ErrNoRows) {
		return model.FilterState{}, false, nil
	}
	if err != nil {
		return model.FilterState{}, false, fmt.Errorf("loading filters for %s: %w", view, err)
	}

	var f model.FilterState
	if err := json.Unmarshal([]byte(data), &f); err != nil {
		return model.FilterState{}, false, fmt.Errorf("decoding filters for %s: %w", view, err)
	}
	return f.Normalize(), true, nil
}

// ClearFilters forgets the filters of view.
func (c *SQLiteCache) ClearFilters(ctx context.Context, view string) error {
	_, err := c.db.ExecContext(ctx, "DELETE FROM filter_prefs WHERE view = ?", view)
	if err != nil {
		return fmt.Errorf("clearing filters for %s: %w", view, err)
	}
	return nil
}
