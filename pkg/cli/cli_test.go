package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TechXTT/tormtx/pkg/torm"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, version+"\n", out)
}

func TestRun_CommitsAndPrintsRows(t *testing.T) {
	link := "sqlite://" + filepath.Join(t.TempDir(), "cli.db")

	_, err := execute(t, "run", "--link", link,
		"--sql", "CREATE TABLE t (x INTEGER, label TEXT)",
		"--sql", "INSERT INTO t VALUES (1, 'one')",
	)
	require.NoError(t, err)

	out, err := execute(t, "run", "--link", link, "-p", "supports", "--sql", "SELECT x, label FROM t")
	require.NoError(t, err)
	assert.Equal(t, `[{"label":"one","x":1}]`+"\n", out)
}

func TestRun_FailureRollsBack(t *testing.T) {
	link := "sqlite://" + filepath.Join(t.TempDir(), "cli.db")

	_, err := execute(t, "run", "--link", link, "--sql", "CREATE TABLE t (x INTEGER)")
	require.NoError(t, err)

	_, err = execute(t, "run", "--link", link,
		"--sql", "INSERT INTO t VALUES (1)",
		"--sql", "INSERT INTO missing VALUES (2)",
	)
	require.Error(t, err)

	out, err := execute(t, "run", "--link", link, "--sql", "SELECT COUNT(*) AS n FROM t")
	require.NoError(t, err)
	assert.Equal(t, `[{"n":0}]`+"\n", out)
}

func TestRun_RejectsBadInput(t *testing.T) {
	_, err := execute(t, "run", "--link", "sqlite://x.db")
	require.ErrorContains(t, err, "--sql")

	_, err = execute(t, "run", "--link", "sqlite://x.db", "-p", "sometimes", "--sql", "SELECT 1")
	require.ErrorContains(t, err, "unknown propagation")
}

func TestRun_PropagationFromConfig(t *testing.T) {
	link := "sqlite://" + filepath.Join(t.TempDir(), "cli.db")
	t.Setenv("TORM_PROPAGATION", "mandatory")

	_, err := execute(t, "run", "--link", link, "--sql", "SELECT 1")
	require.ErrorIs(t, err, torm.ErrNoActiveTransaction)

	out, err := execute(t, "run", "--link", link, "-p", "required", "--sql", "SELECT 1 AS one")
	require.NoError(t, err)
	assert.Equal(t, `[{"one":1}]`+"\n", out)
}

func TestMigrate_UpAndStatus(t *testing.T) {
	link := "sqlite://" + filepath.Join(t.TempDir(), "cli.db")
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "0001_init.up.sql"), []byte("CREATE TABLE items (id INTEGER PRIMARY KEY)"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "0002_more.up.sql"), []byte("CREATE TABLE more (id INTEGER PRIMARY KEY)"), 0o644))

	out, err := execute(t, "migrate", "up", "--link", link, "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Applying 0001_init.up.sql")
	assert.Contains(t, out, "2 migration(s) applied")

	out, err = execute(t, "migrate", "status", "--link", link, "--dir", dir)
	require.NoError(t, err)
	assert.Equal(t, "0001_init\tapplied\n0002_more\tapplied\n", out)
}

func TestReturnsRows(t *testing.T) {
	assert.True(t, returnsRows("  select 1"))
	assert.True(t, returnsRows("WITH x AS (SELECT 1) SELECT * FROM x"))
	assert.True(t, returnsRows("INSERT INTO t VALUES (1) RETURNING id"))
	assert.False(t, returnsRows("UPDATE t SET x = 1"))
}
