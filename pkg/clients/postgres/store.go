package postgres

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/StricklySoft/stricklysoft-runtime/pkg/properties"
)

// PropertyStore keeps component properties as rows of the configured table.
type PropertyStore struct {
	client *Client
	table  string

	selectSQL string
	upsertSQL string
	allSQL    string
	deleteSQL string
}

var _ properties.Store = (*PropertyStore)(nil)

// NewPropertyStore returns a store over client's configured table.
func NewPropertyStore(client *Client) *PropertyStore {
	table := quoteTable(client.Config().Table)
	return &PropertyStore{
		client: client,
		table:  table,
		selectSQL: fmt.Sprintf(
			"SELECT name, value FROM %s WHERE component = $1 AND name = ANY($2)", table),
		upsertSQL: fmt.Sprintf(
			"INSERT INTO %s (component, name, value, updated_at) VALUES ($1, $2, $3, now()) "+
				"ON CONFLICT (component, name) DO UPDATE SET value = EXCLUDED.value, updated_at = now()", table),
		allSQL: fmt.Sprintf(
			"SELECT name, value FROM %s WHERE component = $1", table),
		deleteSQL: fmt.Sprintf(
			"DELETE FROM %s WHERE component = $1", table),
	}
}

// OpenPropertyStore connects with cfg and, when cfg.Migrate is set,
// creates the property table.
func OpenPropertyStore(ctx context.Context, cfg Config) (*PropertyStore, error) {
	client, err := NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	store := NewPropertyStore(client)
	if client.Config().Migrate {
		if err := store.Migrate(ctx); err != nil {
			client.Close()
			return nil, err
		}
	}
	return store, nil
}

func quoteTable(table string) string {
	return pgx.Identifier(strings.Split(table, ".")).Sanitize()
}

// Migrate creates the property table when it does not exist.
func (s *PropertyStore) Migrate(ctx context.Context) error {
	_, err := s.client.Exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	component  TEXT        NOT NULL,
	name       TEXT        NOT NULL,
	value      TEXT        NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (component, name)
)`, s.table))
	return err
}

// Resolve returns the stored values of component named in names.
func (s *PropertyStore) Resolve(ctx context.Context, component string, names []string) (map[string]string, error) {
	if len(names) == 0 {
		return map[string]string{}, nil
	}
	return s.query(ctx, s.selectSQL, component, names)
}

// Values returns every stored value of component.
func (s *PropertyStore) Values(ctx context.Context, component string) (map[string]string, error) {
	return s.query(ctx, s.allSQL, component)
}

func (s *PropertyStore) query(ctx context.Context, sql string, args ...any) (map[string]string, error) {
	rows, err := s.client.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, wrapError(err, "postgres: failed to scan property row")
		}
		out[name] = value
	}
	if err := rows.Err(); err != nil {
		return nil, wrapError(err, "postgres: failed to read property rows")
	}
	return out, nil
}

// Store upserts values for component in a single transaction.
func (s *PropertyStore) Store(ctx context.Context, component string, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	return s.client.InTx(ctx, func(tx pgx.Tx) error {
		for _, name := range names {
			if _, err := tx.Exec(ctx, s.upsertSQL, component, name, values[name]); err != nil {
				return err
			}
		}
		return nil
	})
}

// Delete removes every stored value of component and reports how many
// rows went.
func (s *PropertyStore) Delete(ctx context.Context, component string) (int64, error) {
	tag, err := s.client.Exec(ctx, s.deleteSQL, component)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Close releases the underlying pool.
func (s *PropertyStore) Close() {
	s.client.Close()
}

// Health reports whether the database is reachable.
func (s *PropertyStore) Health(ctx context.Context) error {
	return s.client.Health(ctx)
}
