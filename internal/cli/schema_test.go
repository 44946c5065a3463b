package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/relmap/internal/config"
	"github.com/roach88/relmap/internal/dialect"
	"github.com/roach88/relmap/internal/record"
)

func sqliteOpts(format string) *RootOptions {
	return &RootOptions{Format: format, Config: &config.Config{Dialect: dialect.SQLite}}
}

func TestSchemaText(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewSchemaCommand(sqliteOpts("text"))
	cmd.SetOut(buf)
	cmd.SetArgs([]string{specsDir})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "-- Doc (sqlite3)\n"+
		`CREATE TABLE IF NOT EXISTS "doc" ("k" INTEGER NOT NULL, "v" INTEGER NOT NULL, PRIMARY KEY ("k"));`+"\n"+
		`CREATE TABLE IF NOT EXISTS "doc_items" ("k" INTEGER NOT NULL, "items_idx" INTEGER NOT NULL, "sku" TEXT NOT NULL, "qty" INTEGER NOT NULL, PRIMARY KEY ("k", "items_idx"));`+"\n",
		buf.String())
}

func TestSchemaDrop(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewSchemaCommand(sqliteOpts("json"))
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--drop", specsDir})
	require.NoError(t, cmd.Execute())

	var resp struct {
		Status string       `json:"status"`
		Data   SchemaResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "sqlite3", resp.Data.Dialect)
	require.Len(t, resp.Data.Records, 1)

	stmts := resp.Data.Records[0].Statements
	require.Len(t, stmts, 4)
	assert.Contains(t, stmts[0], `DROP TABLE IF EXISTS "doc"`)
	assert.Contains(t, stmts[1], `DROP TABLE IF EXISTS "doc_items"`)
	assert.Contains(t, stmts[2], `CREATE TABLE IF NOT EXISTS "doc"`)
}

func TestSchemaOutputFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "schema.sql")
	buf := &bytes.Buffer{}
	cmd := NewSchemaCommand(sqliteOpts("text"))
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"-o", out, specsDir})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "✓ Wrote 1 record(s) for sqlite3 to "+out)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), `CREATE TABLE IF NOT EXISTS "doc_items"`)
}

func TestSchemaInvalidSpecs(t *testing.T) {
	dir := t.TempDir()
	writeSpec(t, dir, "note.cue", `record: Note: {body: string}`)

	buf := &bytes.Buffer{}
	cmd := NewSchemaCommand(sqliteOpts("text"))
	cmd.SetOut(buf)
	cmd.SetArgs([]string{dir})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), "✗ Schema compilation failed")
	assert.Contains(t, buf.String(), "E102: Note: root record needs at least one key field")
}

func TestSchemaMissingDirectory(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewSchemaCommand(sqliteOpts("json"))
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"/nonexistent/specs"})

	err := cmd.Execute()
	require.Error(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, ErrCodeNotFound, resp.Error.Code)
}

func TestCompileSchema_MultipleRecords(t *testing.T) {
	specs := []*record.Spec{
		{Name: "A"},
		{Name: "B"},
	}
	specs[0].Field("id", record.KindInt, record.Key())
	specs[1].Field("id", record.KindInt, record.Key()).ScalarArray("tags", record.KindText)

	result, err := compileSchema(dialect.NewMySQL(), specs, false)
	require.NoError(t, err)
	require.Len(t, result.Records, 2)
	assert.Len(t, result.Records[0].Statements, 1)
	assert.Len(t, result.Records[1].Statements, 2)

	script := result.Script()
	assert.Contains(t, script, "-- A (mysql)\n")
	assert.Contains(t, script, "\n\n-- B (mysql)\n")
}

func TestCompileSchema_MissingKey(t *testing.T) {
	spec := &record.Spec{Name: "Loose"}
	spec.Field("body", record.KindText)

	_, err := compileSchema(dialect.NewSQLite(), []*record.Spec{spec}, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record Loose")
}
