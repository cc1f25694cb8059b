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

func TestTraceMissingDatabaseFlag(t *testing.T) {
	buf := &bytes.Buffer{}
	errBuf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewTraceCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(errBuf)
	cmd.SetArgs([]string{"--run", "test-run-cli"}) // Missing --db flag

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestTraceMissingRunFlag(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	st.Close()

	buf := &bytes.Buffer{}
	errBuf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewTraceCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(errBuf)
	cmd.SetArgs([]string{"--db", dbPath}) // Missing --run flag

	err = cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestTraceNonExistentDatabase(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewTraceCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--db", "/nonexistent/path/test.db", "--run", "test-run-cli"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to open database")
}

func TestTraceUnknownRunToken(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	st.Close()

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewTraceCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--db", dbPath, "--run", "no-such-run"})

	err = cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to read run")
}

func TestTraceTimeline(t *testing.T) {
	dbPath := seedRunDatabase(t)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewTraceCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--db", dbPath, "--run", "test-run-cli"})

	require.NoError(t, cmd.Execute())

	output := buf.String()
	assert.Contains(t, output, "=== Run ===")
	assert.Contains(t, output, "Token:    test-run-cli")
	assert.Contains(t, output, "Lesson:   quota_walk")
	assert.Contains(t, output, "Verdict:  pass")

	assert.Contains(t, output, "=== Timeline ===")
	assert.Contains(t, output, "[1] STEP quota.new")
	assert.Contains(t, output, "max=100")
	assert.Contains(t, output, "[3] STEP quota.set")
	assert.Contains(t, output, "tracker=disk")
	assert.Contains(t, output, "WARNING: Reached 90% of quota.")

	assert.Contains(t, output, "=== Stats ===")
	assert.Contains(t, output, "Steps:        2")
	assert.Contains(t, output, "Outcomes:     2")
	assert.Contains(t, output, "Violations:   0")
	assert.Contains(t, output, "Status:       Complete")
}

func TestTraceOpFilter(t *testing.T) {
	dbPath := seedRunDatabase(t)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewTraceCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--db", dbPath, "--run", "test-run-cli", "--op", "quota.set"})

	require.NoError(t, cmd.Execute())

	output := buf.String()
	assert.Contains(t, output, "STEP quota.set")
	assert.NotContains(t, output, "quota.new")
	// The filtered step keeps its outcome.
	assert.Contains(t, output, "WARNING: Reached 90% of quota.")
	// Stats describe the whole run; only the timeline is filtered.
	assert.Contains(t, output, "Total Events: 2")
	assert.Contains(t, output, "Steps:        2")
}

func TestTraceJSON(t *testing.T) {
	dbPath := seedRunDatabase(t)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json"}
	cmd := NewTraceCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--db", dbPath, "--run", "test-run-cli"})

	require.NoError(t, cmd.Execute())

	var resp struct {
		Status   string      `json:"status"`
		Data     TraceResult `json:"data"`
		RunToken string      `json:"run_token"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))

	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "test-run-cli", resp.RunToken)
	assert.Equal(t, "quota_walk", resp.Data.Lesson)
	assert.Equal(t, trace.VerdictPass, resp.Data.Verdict)
	assert.NotEmpty(t, resp.Data.CatalogHash)

	require.Len(t, resp.Data.Timeline, 4)
	assert.Equal(t, "step", resp.Data.Timeline[0].Kind)
	assert.Equal(t, "quota.new", resp.Data.Timeline[0].Op)
	assert.Equal(t, "outcome", resp.Data.Timeline[1].Kind)
	assert.Equal(t, trace.OutputOK, resp.Data.Timeline[1].OutputCase)
	assert.Equal(t, "quota.set", resp.Data.Timeline[2].Op)

	assert.Equal(t, 4, resp.Data.Stats.TotalEvents)
	assert.Equal(t, 2, resp.Data.Stats.Steps)
	assert.Equal(t, 2, resp.Data.Stats.Outcomes)
	assert.True(t, resp.Data.Stats.IsComplete)
}

func TestTraceHelpText(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewTraceCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--help"})

	require.NoError(t, cmd.Execute())

	output := buf.String()
	assert.Contains(t, output, "Timeline")
	assert.Contains(t, output, "--db")
	assert.Contains(t, output, "--run")
	assert.Contains(t, output, "--op")
}

func TestBuildTimelineOpFilter(t *testing.T) {
	events := []store.RunEvent{
		{Type: store.EventStep, Seq: 1, Step: &trace.Step{ID: "s1", Op: "quota.new", Seq: 1}},
		{Type: store.EventOutcome, Seq: 2, Outcome: &trace.Outcome{ID: "o1", StepID: "s1", OutputCase: trace.OutputOK, Seq: 2}},
		{Type: store.EventStep, Seq: 3, Step: &trace.Step{ID: "s2", Op: "quota.set", Seq: 3}},
		{Type: store.EventOutcome, Seq: 4, Outcome: &trace.Outcome{ID: "o2", StepID: "s2", OutputCase: trace.OutputOK, Seq: 4}},
	}

	all := buildTimeline(events, "")
	require.Len(t, all, 4)

	filtered := buildTimeline(events, "quota.set")
	require.Len(t, filtered, 2)
	assert.Equal(t, "step", filtered[0].Kind)
	assert.Equal(t, "quota.set", filtered[0].Op)
	assert.Equal(t, "outcome", filtered[1].Kind)
	assert.Equal(t, "o2", filtered[1].ID)
}

func TestTruncateID(t *testing.T) {
	testCases := []struct {
		input    string
		expected string
	}{
		{"short", "short"},
		{"exactly16chars!!", "exactly16chars!!"},
		{"0190d5a2-82fd-7cc8-ba21-4f3a286a1b5e", "0190d5a2...286a1b5e"},
	}

	for _, tc := range testCases {
		result := truncateID(tc.input)
		assert.Equal(t, tc.expected, result)
	}
}

func TestCompleteStatus(t *testing.T) {
	assert.Equal(t, "Complete", completeStatus(true))
	assert.Contains(t, completeStatus(false), "Incomplete")
}

func TestFormatArgs(t *testing.T) {
	// Empty args
	assert.Equal(t, "{}", formatArgs(nil))
	assert.Equal(t, "{}", formatArgs(trace.Object{}))

	// Single arg
	result := formatArgs(trace.Object{"key": trace.Str("value")})
	assert.Equal(t, "{key=value}", result)

	// Multiple args come out in sorted key order.
	result = formatArgs(trace.Object{"b": trace.Int(2), "a": trace.Int(1), "c": trace.Int(3)})
	assert.Equal(t, "{a=1, b=2, c=3}", result)
}

func TestFormatArgsNested(t *testing.T) {
	nested := trace.Object{
		"outer": trace.Object{
			"z": trace.Int(3),
			"a": trace.Int(1),
		},
		"simple": trace.Str("value"),
	}
	result := formatArgs(nested)
	assert.Equal(t, "{outer={a=1, z=3}, simple=value}", result)
}

func TestFormatArgsArray(t *testing.T) {
	args := trace.Object{
		"messages": trace.Strings("INFO: Reached 75% of quota.", "WARNING: Reached 90% of quota."),
	}
	result := formatArgs(args)
	assert.Equal(t, "{messages=[INFO: Reached 75% of quota., WARNING: Reached 90% of quota.]}", result)
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "hello", formatValue(trace.Str("hello")))
	assert.Equal(t, "42", formatValue(trace.Int(42)))
	assert.Equal(t, "true", formatValue(trace.Bool(true)))
	assert.Equal(t, "null", formatValue(trace.Null{}))
	assert.Equal(t, "{a=1}", formatValue(trace.Object{"a": trace.Int(1)}))
	assert.Equal(t, "[1, 2]", formatValue(trace.Array{trace.Int(1), trace.Int(2)}))
}
