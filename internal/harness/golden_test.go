package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoldenScenarios(t *testing.T) {
	names := []string{
		"borrow_conflict",
		"quota_thresholds",
		"shared_tail_mutation",
		"box_move",
	}

	r := &Runner{}
	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join("testdata", "scenarios", name+".yaml")
			res, err := RunWithGolden(t, r, path)
			require.NoError(t, err)

			assert.True(t, res.Passed)
			assert.Empty(t, res.Failures)
		})
	}
}

func TestMarshalSnapshot_ExactBytes(t *testing.T) {
	r := &Runner{}
	res, err := r.Run(typeScenario("snap"))
	require.NoError(t, err)

	data, err := MarshalSnapshot(res)
	require.NoError(t, err)

	want := `{"events":[{"args":{"expr":"42"},"kind":"step","op":"types.name","seq":1},` +
		`{"kind":"outcome","output_case":"ok","result":{"type":"int"},"seq":2}],` +
		`"run_token":"snap","scenario":"type_default","verdict":"pass"}` + "\n"
	assert.Equal(t, want, string(data))
}

func TestMarshalSnapshot_Deterministic(t *testing.T) {
	r := &Runner{}

	res1, err := r.Run(conflictScenario(true))
	require.NoError(t, err)
	res2, err := r.Run(conflictScenario(true))
	require.NoError(t, err)

	data1, err := MarshalSnapshot(res1)
	require.NoError(t, err)
	data2, err := MarshalSnapshot(res2)
	require.NoError(t, err)

	assert.Equal(t, data1, data2)
}

func TestCompareGolden_CreateMatchTamper(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "golden")
	r := &Runner{}
	res, err := r.Run(typeScenario("snap"))
	require.NoError(t, err)

	// No fixture yet.
	err = CompareGolden(dir, res.Name, res, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist; run with --update to create it")

	// Update writes it, then the comparison holds.
	require.NoError(t, CompareGolden(dir, res.Name, res, true))
	require.NoError(t, CompareGolden(dir, res.Name, res, false))

	// A tampered fixture no longer matches.
	path := filepath.Join(dir, res.Name+".golden")
	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0o644))
	err = CompareGolden(dir, res.Name, res, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "diverges")
	assert.Contains(t, err.Error(), "run with --update to accept the new trace")
}

func TestRunWithGolden_RequiresRunToken(t *testing.T) {
	dir := t.TempDir()
	scenario := `name: tokenless
summary: No run_token pinned.
steps:
  - op: types.name
    args: {expr: "42"}
`
	path := filepath.Join(dir, "tokenless.yaml")
	require.NoError(t, os.WriteFile(path, []byte(scenario), 0o644))

	r := &Runner{}
	_, err := RunWithGolden(t, r, path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires a fixed run_token")
}
