package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castamos/learn-rust-by-testing/internal/store"
	"github.com/castamos/learn-rust-by-testing/internal/trace"
)

func TestReplayMissingDatabaseFlag(t *testing.T) {
	buf := &bytes.Buffer{}
	errBuf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewReplayCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(errBuf)
	cmd.SetArgs([]string{}) // Missing --db flag

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestReplayEmptyDatabase(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	st.Close()

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewReplayCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--db", dbPath})

	err = cmd.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "No runs found in database.")
}

func TestReplayVerifiesSeededRun(t *testing.T) {
	dbPath := seedRunDatabase(t)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewReplayCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--db", dbPath})

	require.NoError(t, cmd.Execute())

	output := buf.String()
	assert.Contains(t, output, "Replay Summary: 1 run(s)")
	assert.Contains(t, output, "✓ Run: test-run-cli")
	assert.Contains(t, output, "Events: 2 steps, 2 outcomes")
	assert.Contains(t, output, "✓ All runs verified deterministic")
}

func TestReplaySpecificRun(t *testing.T) {
	dbPath := seedRunDatabase(t)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewReplayCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--db", dbPath, "--run", "test-run-cli"})

	require.NoError(t, cmd.Execute())

	output := buf.String()
	assert.Contains(t, output, "✓ Run: test-run-cli")
	assert.Contains(t, output, "✓ All runs verified deterministic")
}

func TestReplayUnknownRun(t *testing.T) {
	dbPath := seedRunDatabase(t)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewReplayCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--db", dbPath, "--run", "no-such-run"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to replay run no-such-run")
}

func TestReplayNonExistentDatabase(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewReplayCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--db", "/nonexistent/path/test.db"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open database")
}

func TestReplayDetectsTamperedLog(t *testing.T) {
	dbPath := seedRunDatabase(t)

	// Rewrite one step's args behind the store's back. The stored ID
	// no longer hashes back to the row's fields.
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	_, err = st.DB().Exec(
		`UPDATE steps SET args = '{"max":999}' WHERE run_token = ? AND op = ?`,
		"test-run-cli", "quota.new",
	)
	require.NoError(t, err)
	st.Close()

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewReplayCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--db", dbPath})

	err = cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	output := buf.String()
	assert.Contains(t, output, "✗ Run: test-run-cli")
	assert.Contains(t, output, "1 stored ID(s) do not hash back to their fields!")
	assert.Contains(t, output, "✗ Determinism verification failed")
}

func TestReplayJSON(t *testing.T) {
	dbPath := seedRunDatabase(t)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json"}
	cmd := NewReplayCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--db", dbPath})

	require.NoError(t, cmd.Execute())

	var resp struct {
		Status string       `json:"status"`
		Data   ReplayResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))

	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.AllDeterministic)
	require.Len(t, resp.Data.Runs, 1)
	assert.Equal(t, "test-run-cli", resp.Data.Runs[0].RunToken)
	assert.Equal(t, "quota_walk", resp.Data.Runs[0].Lesson)
	assert.True(t, resp.Data.Runs[0].Deterministic)
	assert.Zero(t, resp.Data.Runs[0].IDMismatches)
}

func TestReplayJSONTamperedLog(t *testing.T) {
	dbPath := seedRunDatabase(t)

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	_, err = st.DB().Exec(
		`UPDATE steps SET args = '{"max":999}' WHERE run_token = ? AND op = ?`,
		"test-run-cli", "quota.new",
	)
	require.NoError(t, err)
	st.Close()

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json"}
	cmd := NewReplayCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--db", dbPath})

	err = cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string       `json:"status"`
		Data   ReplayResult `json:"data"`
		Error  *CLIError    `json:"error"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))

	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_DETERMINISM", resp.Error.Code)
	require.Len(t, resp.Data.Runs, 1)
	assert.False(t, resp.Data.Runs[0].Deterministic)
	assert.Equal(t, 1, resp.Data.Runs[0].IDMismatches)
}

func TestReplayHelpText(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewReplayCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--help"})

	require.NoError(t, cmd.Execute())

	output := buf.String()
	assert.Contains(t, output, "Replay")
	assert.Contains(t, output, "--db")
	assert.Contains(t, output, "--run")
	assert.Contains(t, output, "determinism")
}

func TestCompareEventSequences(t *testing.T) {
	step := &trace.Step{ID: "s1", RunToken: "run", Op: "quota.new", Seq: 1}
	out := &trace.Outcome{ID: "o1", StepID: "s1", OutputCase: trace.OutputOK, Seq: 2}

	events1 := []store.RunEvent{
		{Type: store.EventStep, Seq: 1, ID: "s1", Step: step},
		{Type: store.EventOutcome, Seq: 2, ID: "o1", Outcome: out},
	}
	events2 := []store.RunEvent{
		{Type: store.EventStep, Seq: 1, ID: "s1", Step: step},
		{Type: store.EventOutcome, Seq: 2, ID: "o1", Outcome: out},
	}
	assert.True(t, compareEventSequences(events1, events2))

	// Different lengths
	events3 := events1[:1]
	assert.False(t, compareEventSequences(events1, events3))

	// Different content
	events4 := []store.RunEvent{
		{Type: store.EventStep, Seq: 1, ID: "s1", Step: step},
		{Type: store.EventOutcome, Seq: 2, ID: "o2", Outcome: out},
	}
	assert.False(t, compareEventSequences(events1, events4))
}

func TestEventsEqual(t *testing.T) {
	a := store.RunEvent{Type: store.EventStep, Seq: 1, ID: "s1"}
	b := store.RunEvent{Type: store.EventStep, Seq: 1, ID: "s1"}
	assert.True(t, eventsEqual(a, b))

	// Different types
	c := store.RunEvent{Type: store.EventOutcome, Seq: 1, ID: "s1"}
	assert.False(t, eventsEqual(a, c))

	// Different seq
	d := store.RunEvent{Type: store.EventStep, Seq: 2, ID: "s1"}
	assert.False(t, eventsEqual(a, d))

	// Different ID
	e := store.RunEvent{Type: store.EventStep, Seq: 1, ID: "s2"}
	assert.False(t, eventsEqual(a, e))

	// One side missing its step record
	f := store.RunEvent{Type: store.EventStep, Seq: 1, ID: "s1", Step: &trace.Step{ID: "s1"}}
	assert.False(t, eventsEqual(a, f))

	// Same step contents through distinct pointers
	g := store.RunEvent{Type: store.EventStep, Seq: 1, ID: "s1", Step: &trace.Step{ID: "s1"}}
	assert.True(t, eventsEqual(f, g))

	// Step contents differ
	h := store.RunEvent{Type: store.EventStep, Seq: 1, ID: "s1", Step: &trace.Step{ID: "s1", Op: "quota.set"}}
	assert.False(t, eventsEqual(f, h))
}
