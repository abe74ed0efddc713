package torm

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/TechXTT/tormtx/pkg/internal/typeconv"
)

// Option configures a Session.
type Option func(*Session)

// WithID sets the session id. A random UUID is used otherwise.
func WithID(id string) Option {
	return func(s *Session) { s.id = id }
}

// WithConn hands the session an already acquired connection. The session
// takes ownership and releases it on Close.
func WithConn(conn Conn) Option {
	return func(s *Session) { s.conn = conn }
}

// WithLogger sets the logger used for statement and transaction events.
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStatementLog toggles logging of every dispatched statement and its
// arguments.
func WithStatementLog(enabled bool) Option {
	return func(s *Session) { s.logSQL = enabled }
}

// Session tracks the transaction scopes opened on a single connection.
//
// A Session is not safe for concurrent use; give each unit of work its
// own. Propagation modes that need a separate connection (RequiresNew,
// NotSupported) open a delegated session; while one is active, Begin,
// Query and Exec are served by the most recent delegate, and the next
// Commit or Rollback finalizes and closes all delegates before acting on
// this session's own scopes.
type Session struct {
	id        string
	link      string
	connector Connector
	conn      Conn

	txs        txStack
	savepoints savepointStack
	delegates  []*Session
	closed     bool

	logSQL bool
	logger *zap.Logger
	log    *zap.Logger
}

// NewSession creates a session. Unless WithConn is given, a connection is
// acquired from connector for link. The connector is also used later for
// delegated sessions.
func NewSession(ctx context.Context, connector Connector, link string, opts ...Option) (*Session, error) {
	s := &Session{
		link:      link,
		connector: connector,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.id == "" {
		s.id = uuid.NewString()
	}
	if s.conn == nil {
		if connector == nil {
			return nil, &ConnectionAcquisitionError{Link: link, Err: errors.New("no connector configured")}
		}
		conn, err := connector.Connect(ctx, link)
		if err != nil {
			return nil, &ConnectionAcquisitionError{Link: link, Err: err}
		}
		s.conn = conn
	}
	s.log = s.logger.With(zap.String("session", s.id))
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Depth returns the number of open transaction scopes on this session,
// not counting delegated sessions.
func (s *Session) Depth() int {
	return s.txs.len()
}

// LastPropagation returns the mode of the innermost open scope.
func (s *Session) LastPropagation() (Propagation, bool) {
	top, ok := s.txs.peek()
	return top.propagation, ok
}

// Delegated reports whether calls are currently routed to a delegated session.
func (s *Session) Delegated() bool {
	return len(s.delegates) > 0
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	return s.closed
}

func (s *Session) activeDelegate() *Session {
	if len(s.delegates) == 0 {
		return nil
	}
	return s.delegates[len(s.delegates)-1]
}

// Begin opens a scope with the given propagation. On error the session is
// left exactly as it was.
func (s *Session) Begin(ctx context.Context, p Propagation) error {
	if s.closed {
		return ErrSessionClosed
	}
	if p == RequiresNew || p == NotSupported {
		return s.openDelegate(ctx, p)
	}
	if d := s.activeDelegate(); d != nil {
		return d.Begin(ctx, p)
	}
	return s.begin(ctx, p)
}

func (s *Session) begin(ctx context.Context, p Propagation) error {
	depth := s.txs.len()
	switch p {
	case Required:
		if depth > 0 {
			top, _ := s.txs.peek()
			s.txs.push(top.tx, Required)
			s.log.Debug("joined transaction", zap.Int("depth", depth+1))
			return nil
		}
		return s.beginTx(ctx, Required)
	case NotRequired:
		if depth > 0 {
			return ErrNestedTransaction
		}
		return s.beginTx(ctx, NotRequired)
	case Supports:
		return nil
	case Mandatory:
		if depth == 0 {
			return ErrNoActiveTransaction
		}
		return nil
	case Never:
		if depth > 0 {
			return ErrUnexpectedTransaction
		}
		return nil
	case Nested:
		if depth == 0 {
			return s.beginTx(ctx, Required)
		}
		top, _ := s.txs.peek()
		name := fmt.Sprintf("p%d", depth)
		if _, err := s.control(ctx, top.tx, "SAVEPOINT "+name); err != nil {
			return fmt.Errorf("create savepoint %s: %w", name, err)
		}
		s.savepoints.push(name)
		s.txs.push(top.tx, Nested)
		return nil
	default:
		return &UnsupportedPropagationError{Propagation: p}
	}
}

func (s *Session) beginTx(ctx context.Context, p Propagation) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	s.txs.push(tx, p)
	s.log.Debug("began transaction", zap.Stringer("propagation", p))
	return nil
}

func (s *Session) openDelegate(ctx context.Context, p Propagation) error {
	child, err := NewSession(ctx, s.connector, s.link,
		WithLogger(s.logger),
		WithStatementLog(s.logSQL),
	)
	if err != nil {
		return err
	}
	if p == RequiresNew {
		if err := child.begin(ctx, Required); err != nil {
			child.Close()
			return err
		}
	}
	s.delegates = append(s.delegates, child)
	s.log.Debug("opened delegated session",
		zap.String("delegate", child.id),
		zap.Stringer("propagation", p),
		zap.Int("suspended_depth", s.txs.len()))
	return nil
}

// QueryValues runs query and returns one intermediate value per row.
// The result is never nil.
func (s *Session) QueryValues(ctx context.Context, query string, args ...any) ([]Value, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	if d := s.activeDelegate(); d != nil {
		return d.QueryValues(ctx, query, args...)
	}
	exec := s.dispatch(query, args)
	rows, err := exec.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	return decodeRows(rows)
}

// Exec runs a statement that returns no rows and reports the affected
// row count.
func (s *Session) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	if s.closed {
		return 0, ErrSessionClosed
	}
	if d := s.activeDelegate(); d != nil {
		return d.Exec(ctx, query, args...)
	}
	exec := s.dispatch(query, args)
	n, err := exec.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("exec failed: %w", err)
	}
	return n, nil
}

// dispatch picks the innermost transaction, or the connection in
// autocommit mode.
func (s *Session) dispatch(query string, args []any) Executor {
	var (
		exec  Executor = s.conn
		route          = "conn"
	)
	if top, ok := s.txs.peek(); ok {
		exec, route = top.tx, "tx"
	}
	if s.logSQL {
		s.log.Info("dispatch statement",
			zap.String("route", route),
			zap.String("sql", query),
			zap.Any("args", args))
	}
	return exec
}

func (s *Session) control(ctx context.Context, tx Tx, stmt string) (int64, error) {
	s.log.Debug("transaction control", zap.String("sql", stmt), zap.Int("depth", s.txs.len()))
	return tx.Exec(ctx, stmt)
}

// Commit closes the innermost scope. Delegated sessions are committed and
// closed first. Only the outermost scope issues the real COMMIT; a Nested
// scope releases its savepoint. The returned count accumulates what the
// driver reported for each finalizing statement.
func (s *Session) Commit(ctx context.Context) (int64, error) {
	return s.finish(ctx, true)
}

// Rollback closes the innermost scope. Delegated sessions are rolled back
// and closed first. A Nested scope rolls back to its savepoint; only the
// outermost scope issues the real ROLLBACK.
func (s *Session) Rollback(ctx context.Context) (int64, error) {
	return s.finish(ctx, false)
}

func (s *Session) finish(ctx context.Context, commit bool) (int64, error) {
	if s.closed {
		return 0, ErrSessionClosed
	}
	total, err := s.finishDelegates(ctx, commit)
	if err != nil {
		return total, err
	}

	top, ok := s.txs.peek()
	if !ok {
		return total, nil
	}
	if top.propagation == Nested {
		if name, ok := s.savepoints.peek(); ok {
			stmt := "ROLLBACK TO SAVEPOINT " + name
			if commit {
				stmt = "RELEASE SAVEPOINT " + name
			}
			n, err := s.control(ctx, top.tx, stmt)
			if err != nil {
				return total, fmt.Errorf("%s: %w", stmt, err)
			}
			total += n
			s.savepoints.pop()
		}
	}
	if s.txs.len() == 1 {
		var (
			n   int64
			err error
		)
		if commit {
			n, err = top.tx.Commit(ctx)
		} else {
			n, err = top.tx.Rollback(ctx)
		}
		if err != nil {
			return total, fmt.Errorf("%s transaction: %w", verb(commit), err)
		}
		total += n
		s.log.Debug("finished transaction", zap.String("action", verb(commit)))
	}
	s.txs.pop()
	return total, nil
}

// finishDelegates drains and closes every delegated session, innermost
// first. A delegate that fails stays in place; the ones already finished
// are not reopened.
func (s *Session) finishDelegates(ctx context.Context, commit bool) (int64, error) {
	var total int64
	for len(s.delegates) > 0 {
		d := s.delegates[len(s.delegates)-1]
		for d.txs.len() > 0 {
			n, err := d.finish(ctx, commit)
			total += n
			if err != nil {
				return total, fmt.Errorf("%s delegated session %s: %w", verb(commit), d.id, err)
			}
		}
		d.Close()
		s.delegates[len(s.delegates)-1] = nil
		s.delegates = s.delegates[:len(s.delegates)-1]
		s.log.Debug("closed delegated session", zap.String("delegate", d.id))
	}
	return total, nil
}

// Close marks the session closed and releases its connection and any
// delegated sessions. Open scopes are neither committed nor rolled back.
// Calling Close more than once has no further effect.
func (s *Session) Close() {
	if s.closed {
		return
	}
	s.closed = true
	for i := len(s.delegates) - 1; i >= 0; i-- {
		s.delegates[i].Close()
	}
	s.delegates = nil
	if s.txs.len() > 0 {
		s.log.Warn("closing session with open transaction scopes", zap.Int("depth", s.txs.len()))
	}
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			s.log.Warn("release connection", zap.Error(err))
		}
	}
}

func verb(commit bool) string {
	if commit {
		return "commit"
	}
	return "rollback"
}

func decodeRows(rows Rows) (out []Value, err error) {
	defer func() {
		if cerr := rows.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close rows: %w", cerr)
		}
	}()
	out = []Value{}
	for rows.Next() {
		row, err := typeconv.DecodeRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}
