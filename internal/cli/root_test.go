package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edwinsyarief/sekai/internal/scenario"
)

var fleet = filepath.Join("..", "scenario", "testdata", "fleet.yaml")

// execute runs the root command with args and returns stdout, stderr and
// the command error.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// go test -run ^TestRootCommand$ ./internal/cli -count 1
func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "sekai", cmd.Use)

	for _, name := range []string{"run", "plan", "stats"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, sub.Name())
	}

	for _, flag := range []string{"verbose", "format", "config"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), flag)
	}
	assert.Equal(t, "text", cmd.PersistentFlags().Lookup("format").DefValue)
}

// go test -run ^TestRootInvalidFormat$ ./internal/cli -count 1
func TestRootInvalidFormat(t *testing.T) {
	_, _, err := execute(t, "stats", fleet, "--format", "yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "yaml"`)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

// go test -run ^TestRunText$ ./internal/cli -count 1
func TestRunText(t *testing.T) {
	out, _, err := execute(t, "run", fleet)
	require.NoError(t, err)
	assert.Contains(t, out, "query positions")
	assert.Contains(t, out, "alice [Position] Position{x:1 y:2}")
	assert.Contains(t, out, "alice [(Likes,bob), Position@bob] $who=bob Position{x:3 y:4}")
	assert.Contains(t, out, "ship.turret [Mass@ship] Mass{value:10}")
	assert.Contains(t, out, "- [Position@bob] Position{x:3 y:4}")
}

// go test -run ^TestRunJSON$ ./internal/cli -count 1
func TestRunJSON(t *testing.T) {
	out, _, err := execute(t, "run", fleet, "--format", "json", "--query", "likes")
	require.NoError(t, err)

	var resp struct {
		Status string            `json:"status"`
		Data   []scenario.Result `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "likes", resp.Data[0].Query)
	require.Len(t, resp.Data[0].Rows, 1)
	assert.Equal(t, map[string]string{"who": "bob"}, resp.Data[0].Rows[0].Vars)
}

// go test -run ^TestRunUnknownQuery$ ./internal/cli -count 1
func TestRunUnknownQuery(t *testing.T) {
	out, _, err := execute(t, "run", fleet, "-q", "nope")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, `no query named "nope"`)
}

// go test -run ^TestRunVerbose$ ./internal/cli -count 1
func TestRunVerbose(t *testing.T) {
	out, errOut, err := execute(t, "run", fleet, "--format", "json", "-v")
	require.NoError(t, err)
	assert.Contains(t, errOut, "scenario fleet: 4 components, 4 entities, 4 queries")
	assert.Contains(t, errOut, "query positions: 2 rows")
	assert.True(t, json.Valid([]byte(out)))
}

// go test -run ^TestRunConfig$ ./internal/cli -count 1
func TestRunConfig(t *testing.T) {
	cfg := writeFile(t, "sekai.toml", "[query]\ndefault_cache = \"none\"\n[logging]\nlevel = \"error\"\n")
	out, _, err := execute(t, "run", fleet, "--format", "json", "--config", cfg)
	require.NoError(t, err)

	var resp struct {
		Data []scenario.Result `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	for _, res := range resp.Data {
		assert.False(t, res.Cached, res.Query)
	}

	bad := writeFile(t, "bad.toml", "[query]\ndefault_cache = \"sometimes\"\n")
	out, _, err = execute(t, "run", fleet, "--config", bad)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E_CONFIG]")
}

// go test -run ^TestLoadFailures$ ./internal/cli -count 1
func TestLoadFailures(t *testing.T) {
	t.Run("missing scenario", func(t *testing.T) {
		out, _, err := execute(t, "stats", filepath.Join(t.TempDir(), "none.yaml"))
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, out, "Error [E_SCENARIO]")
	})

	t.Run("query compile error", func(t *testing.T) {
		path := writeFile(t, "broken.yaml", `
name: broken
queries:
  - name: q
    terms:
      - id: Missing
`)
		out, _, err := execute(t, "plan", path, "--format", "json")
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))

		var resp CLIResponse
		require.NoError(t, json.Unmarshal([]byte(out), &resp))
		assert.Equal(t, "error", resp.Status)
		require.NotNil(t, resp.Error)
		assert.Equal(t, ErrCodeQuery, resp.Error.Code)
	})

	t.Run("entity error", func(t *testing.T) {
		path := writeFile(t, "entity.yaml", "name: e\nentities: [{name: a, ids: [Missing]}]\n")
		out, _, err := execute(t, "stats", path)
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, out, "Error [E_BUILD]")
	})
}

// go test -run ^TestPlan$ ./internal/cli -count 1
func TestPlan(t *testing.T) {
	out, _, err := execute(t, "plan", fleet, "-q", "likes")
	require.NoError(t, err)
	assert.Contains(t, out, "query likes (fields: 2")
	assert.Contains(t, out, "select")
	assert.Contains(t, out, "with")
	assert.NotContains(t, out, "query positions")

	out, _, err = execute(t, "plan", fleet, "--format", "json")
	require.NoError(t, err)
	var resp struct {
		Data []PlanResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 4)
	for _, p := range resp.Data {
		assert.NotEmpty(t, p.Plan, p.Query)
	}
}

// go test -run ^TestStats$ ./internal/cli -count 1
func TestStats(t *testing.T) {
	out, _, err := execute(t, "stats", fleet)
	require.NoError(t, err)
	assert.Contains(t, out, "scenario fleet")
	assert.Contains(t, out, "tables")
	assert.Contains(t, out, "structural version")

	out, _, err = execute(t, "stats", fleet, "--format", "json")
	require.NoError(t, err)
	var resp struct {
		Data StatsResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "fleet", resp.Data.Scenario)
	assert.Equal(t, 4, resp.Data.Info.QueryCount)
	assert.Positive(t, resp.Data.Info.TableCount)
	assert.Positive(t, resp.Data.Info.EntityCount)
}

// go test -run ^TestGetExitCode$ ./internal/cli -count 1
func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitCommandError, GetExitCode(WrapExitError(ExitCommandError, "x", os.ErrNotExist)))
	assert.Equal(t, ExitFailure, GetExitCode(assert.AnError))

	err := WrapExitError(ExitFailure, "load", os.ErrNotExist)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Equal(t, "load: "+os.ErrNotExist.Error(), err.Error())
}
