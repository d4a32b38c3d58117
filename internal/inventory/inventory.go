// Package inventory implements Inventory / Spaces (L5): a small categorical
// key-value store for scene/wardrobe/people enumerations, colocated in the
// same sqlite file as internal/capture and internal/crystallize, following
// the teacher's internal/persistence/databases.mcp_store.go dual in-memory/
// persistent store shape (here realized as a single sqlite-backed table).
package inventory

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/JDHayesBC/Awareness-sub005/internal/capture"
	"github.com/JDHayesBC/Awareness-sub005/internal/ppserr"
)

// SpaceCategory is the distinguished category carrying sensory_description.
const SpaceCategory = "space"

// Item is a single L5 record.
type Item struct {
	Category    string
	Name        string
	Attributes  map[string]any
	Description string
	CreatedAt   time.Time
}

// Store owns the inventory_items table.
type Store struct {
	db *sql.DB
}

// Open attaches the L5 table to cap's shared sqlite handle.
func Open(cap *capture.Store) (*Store, error) {
	s := &Store{db: cap.DB()}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Probe is L5's cheap health check (internal/health.Prober).
func (s *Store) Probe(ctx context.Context) (ok bool, detail string, elapsed time.Duration) {
	start := time.Now()
	err := s.db.PingContext(ctx)
	elapsed = time.Since(start)
	if err != nil {
		return false, err.Error(), elapsed
	}
	return true, "ok", elapsed
}

func (s *Store) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS inventory_items (
	category TEXT NOT NULL,
	name TEXT NOT NULL,
	attributes TEXT NOT NULL DEFAULT '{}',
	description TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	PRIMARY KEY (category, name)
);
`
	if _, err := s.db.Exec(schema); err != nil {
		return ppserr.Wrap(ppserr.Internal, "inventory.migrate", "creating schema", err)
	}
	return nil
}

// List returns items in category. filters is matched against Attributes by
// exact-value equality (empty filters returns all items in the category).
func (s *Store) List(ctx context.Context, category string, filters map[string]string) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT category, name, attributes, description, created_at FROM inventory_items WHERE category = ? ORDER BY name`,
		category)
	if err != nil {
		return nil, ppserr.Wrap(ppserr.DependencyDown, "inventory.List", "querying items", err)
	}
	defer rows.Close()

	items, err := scanItems(rows)
	if err != nil {
		return nil, err
	}
	if len(filters) == 0 {
		return items, nil
	}
	var out []Item
	for _, it := range items {
		if matchesFilters(it, filters) {
			out = append(out, it)
		}
	}
	return out, nil
}

func matchesFilters(it Item, filters map[string]string) bool {
	for k, v := range filters {
		got, ok := it.Attributes[k]
		if !ok {
			return false
		}
		if s, ok := got.(string); !ok || s != v {
			return false
		}
	}
	return true
}

// Add upserts an item; (category, name) is unique.
func (s *Store) Add(ctx context.Context, category, name string, attributes map[string]any, description string) error {
	if category == "" || name == "" {
		return ppserr.New(ppserr.InputShape, "inventory.Add", "category and name are required")
	}
	raw, err := json.Marshal(attributes)
	if err != nil {
		return ppserr.Wrap(ppserr.InputShape, "inventory.Add", "marshaling attributes", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO inventory_items (category, name, attributes, description, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(category, name) DO UPDATE SET attributes = excluded.attributes, description = excluded.description`,
		category, name, string(raw), description, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return ppserr.Wrap(ppserr.DependencyDown, "inventory.Add", "upserting item", err)
	}
	return nil
}

// Get returns a single item, or NOT_FOUND.
func (s *Store) Get(ctx context.Context, category, name string) (Item, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT category, name, attributes, description, created_at FROM inventory_items WHERE category = ? AND name = ?`,
		category, name)
	var it Item
	var attrs, createdAt string
	err := row.Scan(&it.Category, &it.Name, &attrs, &it.Description, &createdAt)
	if err == sql.ErrNoRows {
		return Item{}, ppserr.New(ppserr.NotFound, "inventory.Get", "no such item")
	}
	if err != nil {
		return Item{}, ppserr.Wrap(ppserr.DependencyDown, "inventory.Get", "querying item", err)
	}
	_ = json.Unmarshal([]byte(attrs), &it.Attributes)
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		it.CreatedAt = t
	}
	return it, nil
}

// Delete removes an item; it is not an error if the item did not exist.
func (s *Store) Delete(ctx context.Context, category, name string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM inventory_items WHERE category = ? AND name = ?`, category, name)
	if err != nil {
		return ppserr.Wrap(ppserr.DependencyDown, "inventory.Delete", "deleting item", err)
	}
	return nil
}

// Categories returns the distinct categories currently populated.
func (s *Store) Categories(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT category FROM inventory_items ORDER BY category`)
	if err != nil {
		return nil, ppserr.Wrap(ppserr.DependencyDown, "inventory.Categories", "querying categories", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, ppserr.Wrap(ppserr.Internal, "inventory.Categories", "scanning row", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// EnterSpace looks up a space's sensory_description alongside its other
// attributes, for the composer to let the agent ground current location.
func (s *Store) EnterSpace(ctx context.Context, name string) (Item, error) {
	return s.Get(ctx, SpaceCategory, name)
}

// ListSpaces returns every item in the distinguished space category.
func (s *Store) ListSpaces(ctx context.Context) ([]Item, error) {
	return s.List(ctx, SpaceCategory, nil)
}

func scanItems(rows *sql.Rows) ([]Item, error) {
	var out []Item
	for rows.Next() {
		var it Item
		var attrs, createdAt string
		if err := rows.Scan(&it.Category, &it.Name, &attrs, &it.Description, &createdAt); err != nil {
			return nil, ppserr.Wrap(ppserr.Internal, "inventory.scanItems", "scanning row", err)
		}
		_ = json.Unmarshal([]byte(attrs), &it.Attributes)
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			it.CreatedAt = t
		}
		out = append(out, it)
	}
	return out, rows.Err()
}
