package runtime

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TechXTT/tormtx/pkg/torm"
)

var errAbort = errors.New("abort")

type account struct {
	ID      int64
	Owner   string
	Balance int64
}

func TestSQLite_NestedRollbackKeepsOuterWork(t *testing.T) {
	ctx := context.Background()
	link := "sqlite://" + filepath.Join(t.TempDir(), "bank.db")

	c := NewConnector()
	defer c.Close()
	db := torm.New(c, link)

	s, err := db.Session(ctx)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Exec(ctx, `CREATE TABLE accounts (id INTEGER PRIMARY KEY, owner TEXT NOT NULL, balance INTEGER NOT NULL)`)
	require.NoError(t, err)
	_, err = s.Exec(ctx, `INSERT INTO accounts (id, owner, balance) VALUES (?, ?, ?)`, 1, "ada", 100)
	require.NoError(t, err)

	require.NoError(t, s.Begin(ctx, torm.Required))
	_, err = s.Exec(ctx, `UPDATE accounts SET balance = ? WHERE id = ?`, 50, 1)
	require.NoError(t, err)

	require.NoError(t, s.Begin(ctx, torm.Nested))
	_, err = s.Exec(ctx, `UPDATE accounts SET balance = ? WHERE id = ?`, 0, 1)
	require.NoError(t, err)
	inner, err := torm.Query(ctx, s, torm.Scalar[int64](), `SELECT balance FROM accounts WHERE id = ?`, 1)
	require.NoError(t, err)
	require.Equal(t, int64(0), inner)

	_, err = s.Rollback(ctx)
	require.NoError(t, err)
	_, err = s.Commit(ctx)
	require.NoError(t, err)

	got, err := torm.Query(ctx, s, torm.Struct[account](), `SELECT * FROM accounts WHERE id = ?`, 1)
	require.NoError(t, err)
	require.Equal(t, &account{ID: 1, Owner: "ada", Balance: 50}, got)
}

func TestSQLite_OuterRollbackDiscardsEverything(t *testing.T) {
	ctx := context.Background()
	link := "sqlite://" + filepath.Join(t.TempDir(), "bank.db")

	c := NewConnector()
	defer c.Close()
	db := torm.New(c, link)

	s, err := db.Session(ctx)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Exec(ctx, `CREATE TABLE accounts (id INTEGER PRIMARY KEY, owner TEXT NOT NULL, balance INTEGER NOT NULL)`)
	require.NoError(t, err)

	err = db.Transaction(ctx, torm.Required, func(ctx context.Context, tx *torm.Session) error {
		if _, err := tx.Exec(ctx, `INSERT INTO accounts (owner, balance) VALUES (?, ?)`, "bob", 10); err != nil {
			return err
		}
		return errAbort
	})
	require.ErrorIs(t, err, errAbort)

	n, err := torm.Query(ctx, s, torm.Scalar[int](), `SELECT COUNT(*) FROM accounts`)
	require.NoError(t, err)
	require.Zero(t, n)
}
