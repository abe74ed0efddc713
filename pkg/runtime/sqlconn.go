package runtime

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/TechXTT/tormtx/pkg/torm"
)

// sqlConn adapts a dedicated *sql.Conn to torm.Conn.
type sqlConn struct {
	conn *sql.Conn
	tx   *sql.Tx
}

var (
	_ torm.Conn = (*sqlConn)(nil)
	_ torm.Tx   = (*sqlTx)(nil)
	_ torm.Rows = (*sql.Rows)(nil)
)

func newSQLConn(ctx context.Context, db *sql.DB) (torm.Conn, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	return &sqlConn{conn: conn}, nil
}

func (c *sqlConn) Query(ctx context.Context, query string, args ...any) (torm.Rows, error) {
	rows, err := c.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *sqlConn) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := c.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (c *sqlConn) Begin(ctx context.Context) (torm.Tx, error) {
	tx, err := c.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	c.tx = tx
	return &sqlTx{tx: tx, owner: c}, nil
}

// Close returns the connection to its pool. database/sql will not release
// a connection with a transaction in flight, so an unfinished one is
// discarded first, as the server would do on disconnect.
func (c *sqlConn) Close() error {
	if c.tx != nil {
		if err := c.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			c.conn.Close()
			return fmt.Errorf("discard unfinished transaction: %w", err)
		}
		c.tx = nil
	}
	return c.conn.Close()
}

type sqlTx struct {
	tx    *sql.Tx
	owner *sqlConn
}

func (t *sqlTx) Query(ctx context.Context, query string, args ...any) (torm.Rows, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (t *sqlTx) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (t *sqlTx) Commit(ctx context.Context) (int64, error) {
	if err := t.tx.Commit(); err != nil {
		return 0, err
	}
	t.release()
	return 0, nil
}

func (t *sqlTx) Rollback(ctx context.Context) (int64, error) {
	if err := t.tx.Rollback(); err != nil {
		return 0, err
	}
	t.release()
	return 0, nil
}

func (t *sqlTx) release() {
	if t.owner.tx == t.tx {
		t.owner.tx = nil
	}
}
