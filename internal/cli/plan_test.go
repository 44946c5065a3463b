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
	"github.com/roach88/relmap/internal/harness"
)

func runPlanCmd(t *testing.T, opts *RootOptions, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewPlanCommand(opts)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestPlanMatchesGolden(t *testing.T) {
	output, err := runPlanCmd(t, sqliteOpts("text"), filepath.Join(scenariosDir, "shrink_items.yaml"))
	require.NoError(t, err)

	golden, err := os.ReadFile(filepath.Join(scenariosDir, "golden", "shrink_items.golden"))
	require.NoError(t, err)
	assert.Equal(t, string(golden), output)
}

func TestPlanJSON(t *testing.T) {
	output, err := runPlanCmd(t, sqliteOpts("json"), filepath.Join(scenariosDir, "postgres_update.yaml"))
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   PlanResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "postgres_update", resp.Data.Scenario)
	assert.Equal(t, "postgres", resp.Data.Result.Dialect)
	require.Len(t, resp.Data.Result.Steps, 1)
	assert.Equal(t, `UPDATE "doc" SET "v" = $1 WHERE "k" = $2 AND "v" = $3`, resp.Data.Result.Steps[0].Statements[0].SQL)
}

func TestPlanUsesConfiguredDialect(t *testing.T) {
	opts := &RootOptions{Format: "text", Config: &config.Config{Dialect: "postgres"}}
	output, err := runPlanCmd(t, opts, filepath.Join(scenariosDir, "shrink_items.yaml"))

	// The golden assertions name sqlite placeholders, so the postgres plan fails them.
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, output, "dialect: postgres\n")
	assert.Contains(t, output, `"items_idx" > $2`)
	assert.Contains(t, output, "✗ shrink_items")
}

func TestPlanFailingScenarioJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	specPath, err := filepath.Abs(filepath.Join(specsDir, "doc.cue"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte(`
name: bad
description: an update that must fail but does not
specs: [`+specPath+`]
record: Doc
loaded: {k: 1, v: 1}
steps:
  - op: update
    error: LOCK_CONFLICT
`), 0644))

	output, err := runPlanCmd(t, sqliteOpts("json"), path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(output), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "E_SCENARIO_FAILED", resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "expected error LOCK_CONFLICT")
}

func TestPlanMissingScenario(t *testing.T) {
	output, err := runPlanCmd(t, sqliteOpts("text"), "/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, output, ErrCodeScenario)
}

func TestPlanSpecsBaseDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: based
description: spec paths resolve against --specs
specs: [doc.cue]
record: Doc
steps:
  - op: create
`), 0644))

	output, err := runPlanCmd(t, sqliteOpts("text"), "--specs", specsDir, path)
	require.NoError(t, err)
	assert.Contains(t, output, `CREATE TABLE IF NOT EXISTS "doc"`)
}

func TestLoadScenario_LazyConfig(t *testing.T) {
	opts := &RootOptions{Config: &config.Config{Dialect: "mysql", Lazy: true}}
	dir := t.TempDir()
	path := filepath.Join(dir, "s.yaml")
	specPath, err := filepath.Abs(filepath.Join(specsDir, "doc.cue"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte(`
name: lazy
description: reads include lazy sub-records
specs: [`+specPath+`]
record: Doc
steps:
  - op: select
  - op: query
    options: [with_lazy]
  - op: update
`), 0644))

	scenario, err := loadScenario(opts, path, "")
	require.NoError(t, err)
	assert.Equal(t, "mysql", scenario.Dialect)
	assert.Equal(t, []string{"with_lazy"}, scenario.Steps[0].Options)
	assert.Equal(t, []string{"with_lazy"}, scenario.Steps[1].Options)
	assert.Empty(t, scenario.Steps[2].Options)
	assert.Equal(t, harness.OpUpdate, scenario.Steps[2].Op)
}

func TestScenarioName(t *testing.T) {
	assert.Equal(t, "shrink_items", scenarioName("a/b/shrink_items.yaml"))
	assert.Equal(t, "x", scenarioName("x.yml"))
}
