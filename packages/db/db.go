// Package db runs the sql steps of hooks against SQLite databases.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// QueryResult holds the rows of a query, one map per row.
type QueryResult struct {
	Columns []string
	Rows    []map[string]any
}

// Client wraps one database connection.
type Client struct {
	db           *sql.DB
	driverName   string
	dataSource   string
	queryTimeout time.Duration
}

// NewClient opens and pings a database. baseDir anchors relative SQLite
// paths and may be empty.
func NewClient(ctx context.Context, connectionString, baseDir string) (*Client, error) {
	driver, dsn, err := parseConnectionString(connectionString, baseDir)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &Client{
		db:           db,
		driverName:   driver,
		dataSource:   dsn,
		queryTimeout: 30 * time.Second,
	}, nil
}

func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Query executes a SQL query and returns the rows.
func (c *Client) Query(ctx context.Context, query string) (*QueryResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()

	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	result := &QueryResult{
		Columns: columns,
		Rows:    make([]map[string]any, 0),
	}

	for rows.Next() {
		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = normalize(values[i])
		}
		result.Rows = append(result.Rows, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return result, nil
}

// Exec runs a statement and returns the number of affected rows.
func (c *Client) Exec(ctx context.Context, stmt string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()

	res, err := c.db.ExecContext(ctx, stmt)
	if err != nil {
		return 0, fmt.Errorf("statement failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}

// Run executes query or statement and returns the value stored for the
// step: the row list for reads, {rowsAffected: n} for writes.
func (c *Client) Run(ctx context.Context, query string) (any, error) {
	if isRead(query) {
		res, err := c.Query(ctx, query)
		if err != nil {
			return nil, err
		}
		rows := make([]any, len(res.Rows))
		for i, r := range res.Rows {
			rows[i] = r
		}
		return rows, nil
	}
	n, err := c.Exec(ctx, query)
	if err != nil {
		return nil, err
	}
	return map[string]any{"rowsAffected": float64(n)}, nil
}

func isRead(query string) bool {
	q := strings.ToUpper(strings.TrimSpace(query))
	for _, prefix := range []string{"SELECT", "WITH", "PRAGMA", "EXPLAIN", "VALUES"} {
		if strings.HasPrefix(q, prefix) {
			return true
		}
	}
	return false
}

// normalize maps driver values onto the shapes expressions understand.
func normalize(val any) any {
	switch v := val.(type) {
	case []byte:
		return string(v)
	case int64:
		return float64(v)
	case int:
		return float64(v)
	case time.Time:
		return v.Format(time.RFC3339Nano)
	}
	return val
}

// parseConnectionString accepts sqlite://path, sqlite:path and sqlite3://path.
func parseConnectionString(connStr, baseDir string) (driver string, dsn string, err error) {
	connStr = strings.TrimSpace(connStr)

	for _, prefix := range []string{"sqlite3://", "sqlite://", "sqlite3:", "sqlite:"} {
		if !strings.HasPrefix(connStr, prefix) {
			continue
		}
		dsn = strings.TrimPrefix(connStr, prefix)
		if dsn == "" {
			return "", "", fmt.Errorf("invalid connection string %q: missing database path", connStr)
		}
		if baseDir != "" && dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") && !filepath.IsAbs(dsn) {
			dsn = filepath.Join(baseDir, dsn)
		}
		return "sqlite3", dsn, nil
	}

	scheme := connStr
	if i := strings.Index(connStr, ":"); i >= 0 {
		scheme = connStr[:i]
	}
	return "", "", fmt.Errorf("unsupported database scheme: %s", scheme)
}

// Pool shares one Client per connection string for the lifetime of a run.
type Pool struct {
	mu      sync.Mutex
	clients map[string]*Client
	logger  *zap.Logger
}

func NewPool(logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{clients: make(map[string]*Client), logger: logger}
}

// Get returns the client for connectionString, opening it on first use.
func (p *Pool) Get(ctx context.Context, connectionString, baseDir string) (*Client, error) {
	key := baseDir + "\x00" + connectionString

	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[key]; ok {
		return c, nil
	}
	c, err := NewClient(ctx, connectionString, baseDir)
	if err != nil {
		return nil, err
	}
	p.logger.Debug("database opened", zap.String("driver", c.driverName), zap.String("dsn", c.dataSource))
	p.clients[key] = c
	return c, nil
}

// Close closes every client and returns the first error.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var first error
	for key, c := range p.clients {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
		delete(p.clients, key)
	}
	return first
}
