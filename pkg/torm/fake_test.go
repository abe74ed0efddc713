package torm

import (
	"context"
	"errors"
	"fmt"
)

type fakeResult struct {
	cols []string
	rows [][]any
}

// recorder is shared by every connection a fakeConnector hands out, so
// tests can assert the exact statement sequence across delegated sessions.
type recorder struct {
	log     []string
	fail    map[string]error
	results map[string]fakeResult
}

func newRecorder() *recorder {
	return &recorder{fail: map[string]error{}, results: map[string]fakeResult{}}
}

func (r *recorder) record(conn, stmt string) error {
	if err, ok := r.fail[stmt]; ok {
		return err
	}
	r.log = append(r.log, conn+": "+stmt)
	return nil
}

type fakeConnector struct {
	rec      *recorder
	connects int
	err      error
	conns    []*fakeConn
}

func (c *fakeConnector) Connect(ctx context.Context, link string) (Conn, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.connects++
	conn := &fakeConn{rec: c.rec, name: fmt.Sprintf("c%d", c.connects)}
	c.conns = append(c.conns, conn)
	return conn, nil
}

type fakeConn struct {
	rec    *recorder
	name   string
	closes int
}

func (c *fakeConn) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	return query1(c.rec, c.name, query)
}

func (c *fakeConn) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	if err := c.rec.record(c.name, query); err != nil {
		return 0, err
	}
	return 1, nil
}

func (c *fakeConn) Begin(ctx context.Context) (Tx, error) {
	if err := c.rec.record(c.name, "BEGIN"); err != nil {
		return nil, err
	}
	return &fakeTx{conn: c}, nil
}

func (c *fakeConn) Close() error {
	c.closes++
	return nil
}

type fakeTx struct {
	conn *fakeConn
	done bool
}

func (t *fakeTx) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	return query1(t.conn.rec, t.conn.name+"/tx", query)
}

func (t *fakeTx) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	if err := t.conn.rec.record(t.conn.name+"/tx", query); err != nil {
		return 0, err
	}
	return 1, nil
}

func (t *fakeTx) Commit(ctx context.Context) (int64, error) {
	return t.finish("COMMIT")
}

func (t *fakeTx) Rollback(ctx context.Context) (int64, error) {
	return t.finish("ROLLBACK")
}

func (t *fakeTx) finish(stmt string) (int64, error) {
	if t.done {
		return 0, errors.New("transaction already finished")
	}
	if err := t.conn.rec.record(t.conn.name, stmt); err != nil {
		return 0, err
	}
	t.done = true
	return 0, nil
}

func query1(rec *recorder, conn, query string) (Rows, error) {
	if err := rec.record(conn, query); err != nil {
		return nil, err
	}
	res := rec.results[query]
	return &fakeRows{cols: res.cols, data: res.rows, pos: -1}, nil
}

type fakeRows struct {
	cols   []string
	data   [][]any
	pos    int
	closed bool
}

func (r *fakeRows) Columns() ([]string, error) { return r.cols, nil }

func (r *fakeRows) Next() bool {
	r.pos++
	return r.pos < len(r.data)
}

func (r *fakeRows) Scan(dest ...any) error {
	for i, d := range dest {
		*(d.(*any)) = r.data[r.pos][i]
	}
	return nil
}

func (r *fakeRows) Err() error { return nil }

func (r *fakeRows) Close() error {
	r.closed = true
	return nil
}

func newFakeSession(rec *recorder) (*Session, *fakeConnector) {
	connector := &fakeConnector{rec: rec}
	s, err := NewSession(context.Background(), connector, "fake://db", WithID("s1"))
	if err != nil {
		panic(err)
	}
	return s, connector
}
