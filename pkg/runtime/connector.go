package runtime

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"

	"github.com/TechXTT/tormtx/pkg/torm"
)

// ParseLink splits a database link into a database/sql driver name and the
// DSN that driver expects. Supported schemes: postgres, postgresql, pgx,
// mysql, sqlite and sqlite3.
func ParseLink(link string) (driverName, dsn string, err error) {
	if link == "" {
		return "", "", fmt.Errorf("DSN is empty")
	}
	scheme, rest, ok := strings.Cut(link, "://")
	if !ok {
		return "", "", fmt.Errorf("link %q has no scheme", link)
	}
	switch strings.ToLower(scheme) {
	case "postgres", "postgresql":
		dsn = link
		// Ensure SSL mode is disabled by default if not specified.
		if !strings.Contains(dsn, "sslmode=") {
			sep := "?"
			if strings.Contains(dsn, "?") {
				sep = "&"
			}
			dsn = dsn + sep + "sslmode=disable"
		}
		if _, err := pq.ParseURL(dsn); err != nil {
			return "", "", fmt.Errorf("parse postgres link: %w", err)
		}
		return "postgres", dsn, nil
	case "pgx":
		return "pgx", "postgres://" + rest, nil
	case "mysql":
		if _, err := mysql.ParseDSN(rest); err != nil {
			return "", "", fmt.Errorf("parse mysql link: %w", err)
		}
		return "mysql", rest, nil
	case "sqlite", "sqlite3":
		if rest == "" {
			return "", "", fmt.Errorf("sqlite link has no path")
		}
		return "sqlite", rest, nil
	default:
		return "", "", fmt.Errorf("unsupported link scheme %q", scheme)
	}
}

// Open opens a database/sql pool for a link and verifies it with a ping.
func Open(ctx context.Context, link string) (*sql.DB, error) {
	driverName, dsn, err := ParseLink(link)
	if err != nil {
		return nil, err
	}
	if driverName == "pgx" {
		return nil, fmt.Errorf("pgx links are served by pgxpool, not database/sql")
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}

// Connector hands out dedicated connections to sessions. It keeps one pool
// per link and is safe for concurrent use.
type Connector struct {
	mu    sync.Mutex
	fixed *sql.DB
	pools map[string]*sql.DB
	pgx   map[string]*pgxpool.Pool
}

var _ torm.Connector = (*Connector)(nil)

// NewConnector returns a Connector that opens pools lazily per link.
func NewConnector() *Connector {
	return &Connector{
		pools: map[string]*sql.DB{},
		pgx:   map[string]*pgxpool.Pool{},
	}
}

// FromDB returns a Connector that takes every connection from db whatever
// the link. The caller keeps ownership of db.
func FromDB(db *sql.DB) *Connector {
	c := NewConnector()
	c.fixed = db
	return c
}

// Connect acquires a dedicated connection for link.
func (c *Connector) Connect(ctx context.Context, link string) (torm.Conn, error) {
	if c.fixed != nil {
		return newSQLConn(ctx, c.fixed)
	}
	driverName, dsn, err := ParseLink(link)
	if err != nil {
		return nil, err
	}
	if driverName == "pgx" {
		pool, err := c.pgxPool(ctx, link, dsn)
		if err != nil {
			return nil, err
		}
		return newPgxConn(ctx, pool)
	}
	db, err := c.sqlPool(ctx, link)
	if err != nil {
		return nil, err
	}
	return newSQLConn(ctx, db)
}

func (c *Connector) sqlPool(ctx context.Context, link string) (*sql.DB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if db, ok := c.pools[link]; ok {
		return db, nil
	}
	db, err := Open(ctx, link)
	if err != nil {
		return nil, err
	}
	c.pools[link] = db
	return db, nil
}

func (c *Connector) pgxPool(ctx context.Context, link, dsn string) (*pgxpool.Pool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if pool, ok := c.pgx[link]; ok {
		return pool, nil
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open pgx pool: %w", err)
	}
	c.pgx[link] = pool
	return pool, nil
}

// Close closes the pools this Connector opened. A db passed to FromDB is
// left open.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var errs []error
	for link, db := range c.pools {
		if err := db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pool: %w", err))
		}
		delete(c.pools, link)
	}
	for link, pool := range c.pgx {
		pool.Close()
		delete(c.pgx, link)
	}
	return errors.Join(errs...)
}
