// Package db connects to the configured PostgreSQL databases and runs
// EXPLAIN on behalf of the API handlers.
package db

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Adapter holds one connection pool for the currently selected database.
// Selecting another database closes the previous pool.
type Adapter struct {
	dsns   map[string]string
	logger zerolog.Logger

	mu       sync.Mutex
	pool     *pgxpool.Pool
	selected string
}

// NewAdapter creates an adapter over the configured database DSNs
func NewAdapter(dsns map[string]string, logger zerolog.Logger) *Adapter {
	return &Adapter{dsns: dsns, logger: logger}
}

// Databases lists the configured database names
func (a *Adapter) Databases() []string {
	names := make([]string, 0, len(a.dsns))
	for name := range a.dsns {
		names = append(names, name)
	}
	return names
}

// Connect establishes a pool for the named database and verifies it with a
// ping. Any previously selected database is disconnected first.
func (a *Adapter) Connect(ctx context.Context, database string) error {
	dsn, ok := a.dsns[database]
	if !ok {
		return fmt.Errorf("db: unknown database %q", database)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("db: connect %s: %w", database, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("db: ping %s: %w", database, err)
	}

	a.mu.Lock()
	if a.pool != nil {
		a.pool.Close()
	}
	a.pool = pool
	a.selected = database
	a.mu.Unlock()

	a.logger.Info().Str("database", database).Msg("database connected")
	return nil
}

// Connected reports whether a database has been selected
func (a *Adapter) Connected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pool != nil
}

// Selected returns the name of the selected database, if any
func (a *Adapter) Selected() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.selected
}

// Explain runs EXPLAIN (FORMAT JSON) for the statement and returns the raw
// JSON plan document
func (a *Adapter) Explain(ctx context.Context, query string) ([]byte, error) {
	a.mu.Lock()
	pool := a.pool
	a.mu.Unlock()
	if pool == nil {
		return nil, fmt.Errorf("db: no database selected")
	}

	statement := strings.TrimSpace(query)
	if statement == "" {
		return nil, fmt.Errorf("db: empty statement")
	}

	explainSQL := "EXPLAIN (FORMAT JSON) " + statement
	var payload []byte
	if err := pool.QueryRow(ctx, explainSQL).Scan(&payload); err != nil {
		return nil, fmt.Errorf("db: explain: %w", err)
	}
	return payload, nil
}

// Close releases the active pool
func (a *Adapter) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
		a.selected = ""
	}
}
