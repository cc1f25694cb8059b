package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// writeCatalogDir builds a small valid catalog on disk: one runtime
// quota lesson with a fixed run token, one static reject lesson. The
// fixed token keeps trace, replay, and golden assertions
// deterministic across test runs.
func writeCatalogDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "scenarios"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "fragments"), 0o755))

	manifest := `package lessons

lesson: quota_walk: {
	title:    "Crossing a threshold emits one message"
	summary:  "The tracker notifies its sink once per crossing"
	topic:    "quota"
	kind:     "runtime"
	order:    10
	scenario: "scenarios/quota_walk.yaml"
}

lesson: moved_value: {
	title:    "Values move, they are not copied"
	topic:    "moves"
	kind:     "static"
	order:    20
	fragment: "fragments/use_after_move.go"
	expect:   "reject"
	want_diagnostics: ["use of moved value: p"]
}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lessons.cue"), []byte(manifest), 0o644))

	scenario := `name: quota_walk
summary: Usage crossing a threshold emits one message.
run_token: test-run-cli
steps:
  - op: quota.new
    as: disk
    args: {max: 100}
  - op: quota.set
    args: {tracker: disk, value: 95}
    expect:
      messages: ["WARNING: Reached 90% of quota."]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scenarios", "quota_walk.yaml"), []byte(scenario), 0o644))

	useAfterMove := `package fragment

type parcel struct{ label string }

//movecheck:consumes p
func ship(p parcel) {}

func demo() string {
	p := parcel{label: "books"}
	ship(p)
	return p.label
}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fragments", "use_after_move.go"), []byte(useAfterMove), 0o644))

	return dir
}

// writeFailingCatalogDir builds a catalog whose one runtime lesson
// expects a value its scenario never produces, so the lesson fails.
func writeFailingCatalogDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "scenarios"), 0o755))

	manifest := `package lessons

lesson: wrong_expect: {
	title:    "A lesson that cannot pass"
	topic:    "quota"
	kind:     "runtime"
	order:    10
	scenario: "scenarios/wrong_expect.yaml"
}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lessons.cue"), []byte(manifest), 0o644))

	scenario := `name: wrong_expect
summary: Expects a message that is never sent.
run_token: test-run-cli-fail
steps:
  - op: quota.new
    as: disk
    args: {max: 100}
  - op: quota.set
    args: {tracker: disk, value: 50}
    expect:
      messages: ["ERROR: Quota exceeded."]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scenarios", "wrong_expect.yaml"), []byte(scenario), 0o644))

	return dir
}

// seedRunDatabase runs the standard catalog against a fresh SQLite
// event log and returns the database path. The quota_walk run is
// stored under the fixed token "test-run-cli".
func seedRunDatabase(t *testing.T) string {
	t.Helper()
	catalogDir := writeCatalogDir(t)
	dbPath := filepath.Join(t.TempDir(), "ownlab.db")

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewRunCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--db", dbPath, catalogDir})
	require.NoError(t, cmd.Execute())

	return dbPath
}
