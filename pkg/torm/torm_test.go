package torm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type user struct {
	ID   int64
	Name string
}

func TestQuery_DecodesThroughSession(t *testing.T) {
	ctx := context.Background()
	rec := newRecorder()
	rec.results["SELECT COUNT(*) FROM users"] = fakeResult{cols: []string{"count"}, rows: [][]any{{int64(3)}}}
	rec.results["SELECT * FROM users WHERE id = 1"] = fakeResult{
		cols: []string{"id", "name"},
		rows: [][]any{{int64(1), "ada"}},
	}
	s, _ := newFakeSession(rec)

	n, err := Query(ctx, s, Scalar[int](), "SELECT COUNT(*) FROM users")
	require.NoError(t, err)
	require.Equal(t, 3, n)

	u, err := Query(ctx, s, Struct[user](), "SELECT * FROM users WHERE id = 1")
	require.NoError(t, err)
	require.Equal(t, &user{ID: 1, Name: "ada"}, u)
}

func TestQuery_PropagatesSessionErrors(t *testing.T) {
	s, _ := newFakeSession(newRecorder())
	s.Close()
	_, err := Query(context.Background(), s, Raw(), "SELECT 1")
	require.ErrorIs(t, err, ErrSessionClosed)
}

func TestBuilderExecution(t *testing.T) {
	ctx := context.Background()
	rec := newRecorder()
	rec.results["SELECT * FROM users WHERE name = ?"] = fakeResult{
		cols: []string{"id", "name"},
		rows: [][]any{{int64(1), "ada"}, {int64(2), "ada"}},
	}
	rec.results["SELECT * FROM users WHERE name = ? LIMIT 1"] = fakeResult{
		cols: []string{"id", "name"},
		rows: [][]any{{int64(1), "ada"}},
	}
	rec.results["SELECT COUNT(*) FROM users WHERE name = ?"] = fakeResult{
		cols: []string{"count"},
		rows: [][]any{{int64(2)}},
	}
	s, _ := newFakeSession(rec)
	qb := From[user]("users").Where("name = ?", "ada")

	all, err := All(ctx, s, qb)
	require.NoError(t, err)
	require.Len(t, all, 2)

	one, err := One(ctx, s, qb)
	require.NoError(t, err)
	require.Equal(t, int64(1), one.ID)

	count, err := Count(ctx, s, qb)
	require.NoError(t, err)
	require.Equal(t, int64(2), count)
}

func TestRunInScope(t *testing.T) {
	ctx := context.Background()

	t.Run("commits on success", func(t *testing.T) {
		rec := newRecorder()
		s, _ := newFakeSession(rec)
		err := RunInScope(ctx, s, Required, func(ctx context.Context, s *Session) error {
			_, err := s.Exec(ctx, "INSERT x")
			return err
		})
		require.NoError(t, err)
		require.Equal(t, []string{"c1: BEGIN", "c1/tx: INSERT x", "c1: COMMIT"}, rec.log)
	})

	t.Run("rolls back on error", func(t *testing.T) {
		rec := newRecorder()
		s, _ := newFakeSession(rec)
		boom := errors.New("boom")
		err := RunInScope(ctx, s, Required, func(ctx context.Context, s *Session) error {
			return boom
		})
		require.ErrorIs(t, err, boom)
		require.Equal(t, []string{"c1: BEGIN", "c1: ROLLBACK"}, rec.log)
	})

	t.Run("rolls back and re-panics", func(t *testing.T) {
		rec := newRecorder()
		s, _ := newFakeSession(rec)
		require.PanicsWithValue(t, "kaboom", func() {
			_ = RunInScope(ctx, s, Required, func(ctx context.Context, s *Session) error {
				panic("kaboom")
			})
		})
		require.Equal(t, []string{"c1: BEGIN", "c1: ROLLBACK"}, rec.log)
	})

	t.Run("begin failure skips fn", func(t *testing.T) {
		s, _ := newFakeSession(newRecorder())
		called := false
		err := RunInScope(ctx, s, Mandatory, func(ctx context.Context, s *Session) error {
			called = true
			return nil
		})
		require.ErrorIs(t, err, ErrNoActiveTransaction)
		require.False(t, called)
	})
}

func TestRunInScope_DelegatedInnerScopeFinalizesOuter(t *testing.T) {
	ctx := context.Background()
	rec := newRecorder()
	s, _ := newFakeSession(rec)

	err := RunInScope(ctx, s, Required, func(ctx context.Context, s *Session) error {
		err := RunInScope(ctx, s, RequiresNew, func(ctx context.Context, s *Session) error {
			_, err := s.Exec(ctx, "INSERT audit")
			return err
		})
		if err != nil {
			return err
		}
		require.Equal(t, 0, s.Depth())
		_, err = s.Exec(ctx, "UPDATE after")
		return err
	})
	require.NoError(t, err)
	require.Equal(t, []string{
		"c1: BEGIN",
		"c2: BEGIN",
		"c2/tx: INSERT audit",
		"c2: COMMIT",
		"c1: COMMIT",
		"c1: UPDATE after",
	}, rec.log)
}

func TestDBTransaction(t *testing.T) {
	ctx := context.Background()
	rec := newRecorder()
	connector := &fakeConnector{rec: rec}
	db := New(connector, "fake://db")

	err := db.Transaction(ctx, Required, func(ctx context.Context, s *Session) error {
		if err := s.Begin(ctx, Nested); err != nil {
			return err
		}
		if _, err := s.Exec(ctx, "UPDATE inner"); err != nil {
			return err
		}
		_, err := s.Rollback(ctx)
		return err
	})
	require.NoError(t, err)
	require.Equal(t, []string{
		"c1: BEGIN",
		"c1/tx: SAVEPOINT p1",
		"c1/tx: UPDATE inner",
		"c1/tx: ROLLBACK TO SAVEPOINT p1",
		"c1: COMMIT",
	}, rec.log)
	require.Equal(t, 1, connector.conns[0].closes)
	require.Equal(t, "fake://db", db.Link())
}

func TestParsePropagation(t *testing.T) {
	p, err := ParsePropagation("requires_new")
	require.NoError(t, err)
	require.Equal(t, RequiresNew, p)
	require.Equal(t, "REQUIRES_NEW", p.String())

	_, err = ParsePropagation("SOMETIMES")
	require.Error(t, err)
	require.Equal(t, "Propagation(99)", Propagation(99).String())
}
