package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/TechXTT/tormtx/pkg/torm"
)

// pgxConn adapts a connection held from a pgxpool.Pool.
type pgxConn struct {
	conn *pgxpool.Conn
	tx   pgx.Tx
}

var (
	_ torm.Conn = (*pgxConn)(nil)
	_ torm.Tx   = (*pgxTx)(nil)
	_ torm.Rows = (*pgxRows)(nil)
)

func newPgxConn(ctx context.Context, pool *pgxpool.Pool) (torm.Conn, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	return &pgxConn{conn: conn}, nil
}

func (c *pgxConn) Query(ctx context.Context, query string, args ...any) (torm.Rows, error) {
	rows, err := c.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return newPgxRows(rows, c.conn.Conn().TypeMap()), nil
}

func (c *pgxConn) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := c.conn.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (c *pgxConn) Begin(ctx context.Context) (torm.Tx, error) {
	tx, err := c.conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	c.tx = tx
	return &pgxTx{tx: tx, owner: c}, nil
}

// Close releases the connection to the pool, rolling back any transaction
// still open on it.
func (c *pgxConn) Close() error {
	defer c.conn.Release()
	if c.tx == nil {
		return nil
	}
	tx := c.tx
	c.tx = nil
	if err := tx.Rollback(context.Background()); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("discard unfinished transaction: %w", err)
	}
	return nil
}

type pgxTx struct {
	tx    pgx.Tx
	owner *pgxConn
}

func (t *pgxTx) Query(ctx context.Context, query string, args ...any) (torm.Rows, error) {
	rows, err := t.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return newPgxRows(rows, t.tx.Conn().TypeMap()), nil
}

func (t *pgxTx) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := t.tx.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (t *pgxTx) Commit(ctx context.Context) (int64, error) {
	if err := t.tx.Commit(ctx); err != nil {
		return 0, err
	}
	t.release()
	return 0, nil
}

func (t *pgxTx) Rollback(ctx context.Context) (int64, error) {
	if err := t.tx.Rollback(ctx); err != nil {
		return 0, err
	}
	t.release()
	return 0, nil
}

func (t *pgxTx) release() {
	if t.owner.tx == t.tx {
		t.owner.tx = nil
	}
}

// pgxRows presents pgx.Rows through the database/sql style Rows interface.
// Values are decoded by pgx itself, so Scan only accepts *any targets.
type pgxRows struct {
	rows    pgx.Rows
	typeMap *pgtype.Map
}

func newPgxRows(rows pgx.Rows, typeMap *pgtype.Map) *pgxRows {
	return &pgxRows{rows: rows, typeMap: typeMap}
}

func (r *pgxRows) Columns() ([]string, error) {
	fields := r.rows.FieldDescriptions()
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = f.Name
	}
	return cols, nil
}

// ColumnTypeNames reports the PostgreSQL type name of each column, or ""
// for types the connection does not know.
func (r *pgxRows) ColumnTypeNames() []string {
	fields := r.rows.FieldDescriptions()
	names := make([]string, len(fields))
	if r.typeMap == nil {
		return names
	}
	for i, f := range fields {
		if typ, ok := r.typeMap.TypeForOID(f.DataTypeOID); ok {
			names[i] = typ.Name
		}
	}
	return names
}

func (r *pgxRows) Next() bool { return r.rows.Next() }

func (r *pgxRows) Scan(dest ...any) error {
	values, err := r.rows.Values()
	if err != nil {
		return err
	}
	if len(values) != len(dest) {
		return fmt.Errorf("expected %d destination arguments in Scan, not %d", len(values), len(dest))
	}
	for i, d := range dest {
		p, ok := d.(*any)
		if !ok {
			return r.rows.Scan(dest...)
		}
		*p = values[i]
	}
	return nil
}

func (r *pgxRows) Err() error { return r.rows.Err() }

func (r *pgxRows) Close() error {
	r.rows.Close()
	return r.rows.Err()
}
