// File: pkg/torm/torm.go
package torm

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/TechXTT/tormtx/internal/core"
)

// DB is the main handle for opening sessions against one database link.
type DB struct {
	connector Connector
	link      string
	opts      []Option
}

// New returns a DB that acquires connections for link from connector.
// opts are applied to every session it opens.
func New(connector Connector, link string, opts ...Option) *DB {
	return &DB{connector: connector, link: link, opts: opts}
}

// Link returns the database link sessions are opened for.
func (d *DB) Link() string {
	return d.link
}

// Session opens a new session on a fresh connection.
func (d *DB) Session(ctx context.Context, opts ...Option) (*Session, error) {
	all := make([]Option, 0, len(d.opts)+len(opts))
	all = append(all, d.opts...)
	all = append(all, opts...)
	return NewSession(ctx, d.connector, d.link, all...)
}

// Transaction runs fn inside a scope opened with propagation p on a new
// session. The scope is committed when fn returns nil and rolled back
// otherwise, including when fn panics.
func (d *DB) Transaction(ctx context.Context, p Propagation, fn func(ctx context.Context, s *Session) error) error {
	s, err := d.Session(ctx)
	if err != nil {
		return err
	}
	defer s.Close()
	return RunInScope(ctx, s, p, fn)
}

// RunInScope opens a scope on s with propagation p, runs fn and commits,
// or rolls back if fn fails or panics.
//
// Commit and Rollback first finalize every delegated session and then
// close the innermost scope of s itself. A RequiresNew or NotSupported
// RunInScope nested inside another scope on the same s therefore also
// finalizes that enclosing scope when it returns; open the inner work on
// its own Session (DB.Transaction) to keep the outer scope running.
func RunInScope(ctx context.Context, s *Session, p Propagation, fn func(ctx context.Context, s *Session) error) (err error) {
	if err := s.Begin(ctx, p); err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			if _, rbErr := s.Rollback(ctx); rbErr != nil {
				s.log.Error("failed to roll back scope after panic", zap.Error(rbErr), zap.Any("panic", r))
			}
			panic(r)
		}
	}()

	if err := fn(ctx, s); err != nil {
		if _, rbErr := s.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("error rolling back scope: %v (original error: %w)", rbErr, err)
		}
		return err
	}
	if _, err := s.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit scope: %w", err)
	}
	return nil
}

// Query runs a statement through s and decodes the rows with shape.
func Query[T any](ctx context.Context, s *Session, shape Shape[T], query string, args ...any) (T, error) {
	rows, err := s.QueryValues(ctx, query, args...)
	if err != nil {
		var zero T
		return zero, err
	}
	return shape.Decode(rows)
}

// From returns a new query builder over table.
func From[T any](table string) *core.QueryBuilder[T] {
	return core.NewQueryBuilder[T]().From(table)
}

// All executes the built query and decodes every row into T.
func All[T any](ctx context.Context, s *Session, qb *core.QueryBuilder[T]) ([]T, error) {
	query, args := qb.Build()
	return Query(ctx, s, Collection[T](), query, args...)
}

// One fetches a single record into T, or nil when nothing matched.
func One[T any](ctx context.Context, s *Session, qb *core.QueryBuilder[T]) (*T, error) {
	query, args := qb.First().Build()
	return Query(ctx, s, Struct[T](), query, args...)
}

// Count returns the count of matching records.
func Count[T any](ctx context.Context, s *Session, qb *core.QueryBuilder[T]) (int64, error) {
	query, args := qb.BuildCount()
	return Query(ctx, s, Scalar[int64](), query, args...)
}
