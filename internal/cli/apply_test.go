package cli

import (
	"bytes"
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/relmap/internal/config"
	"github.com/roach88/relmap/internal/dialect"
)

func writeApplyScenario(t *testing.T, dir string) string {
	t.Helper()
	specPath, err := filepath.Abs(filepath.Join(specsDir, "doc.cue"))
	require.NoError(t, err)
	path := filepath.Join(dir, "apply.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: apply
description: a stored document is updated and audited
specs: [`+specPath+`]
record: Doc
loaded:
  k: 7
  v: 1
  items:
    - {sku: abcd, qty: 1}
steps:
  - op: save
    set:
      items: [{qty: 2}]
  - op: select
assertions:
  - type: final_state
    table: doc_items
    where: {k: 7, items_idx: 0}
    expect: {qty: 2}
`), 0644))
	return path
}

func runApplyCmd(t *testing.T, opts *RootOptions, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewApplyCommand(opts)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetContext(context.Background())
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestApplySQLite(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "relmap.db")

	output, err := runApplyCmd(t, sqliteOpts("text"), "--db", dbPath, writeApplyScenario(t, dir))
	require.NoError(t, err)
	assert.Contains(t, output, "step 1: save\n")
	assert.Contains(t, output, `value items[0].qty: "1" -> "2" (escaped)`)
	assert.Contains(t, output, `row: {k: 7, v: 3, items: [{sku: "abcd", qty: 2}]}`)

	db, err := sql.Open(dialect.SQLite, dbPath)
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM "relmap_changesets" WHERE "tbl" = 'doc'`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestApplyAuditLimitFromConfig(t *testing.T) {
	dir := t.TempDir()
	unlimited := 0
	opts := &RootOptions{Format: "text", Config: &config.Config{
		Dialect:    dialect.SQLite,
		Database:   filepath.Join(dir, "configured.db"),
		AuditLimit: &unlimited,
	}}

	output, err := runApplyCmd(t, opts, writeApplyScenario(t, dir))
	require.NoError(t, err)
	// An unlimited audit store leaves entries unescaped.
	assert.Contains(t, output, `value items[0].qty: "1" -> "2"`+"\n")

	_, err = os.Stat(filepath.Join(dir, "configured.db"))
	assert.NoError(t, err, "the configured database is used when --db is not set")
}

func TestApplyRerunFails(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "relmap.db")
	path := writeApplyScenario(t, dir)

	_, err := runApplyCmd(t, sqliteOpts("text"), "--db", dbPath, path)
	require.NoError(t, err)

	// The loaded state is inserted again, which collides with the stored key.
	output, err := runApplyCmd(t, sqliteOpts("text"), "--db", dbPath, path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, output, ErrCodeScenario)
}

func TestApplyDatabaseUnreachable(t *testing.T) {
	dir := t.TempDir()
	opts := &RootOptions{Format: "text", Config: &config.Config{Dialect: dialect.Postgres}}

	output, err := runApplyCmd(t, opts, "--db", "postgres://127.0.0.1:1/none?sslmode=disable&connect_timeout=1", writeApplyScenario(t, dir))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, output, ErrCodeDatabase)
}
