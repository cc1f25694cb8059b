package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileValidCatalog(t *testing.T) {
	dir := writeCatalogDir(t)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewCompileCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{dir})

	err := cmd.Execute()
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "✓ Compiled 2 lesson(s)")
	assert.Contains(t, output, "quota_walk: quota runtime (scenarios/quota_walk.yaml)")
	assert.Contains(t, output, "moved_value: moves static (fragments/use_after_move.go)")
	assert.Contains(t, output, "Catalog hash:")
}

func TestCompileValidCatalogJSON(t *testing.T) {
	dir := writeCatalogDir(t)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json"}
	cmd := NewCompileCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{dir})

	err := cmd.Execute()
	require.NoError(t, err)

	var resp struct {
		Status string            `json:"status"`
		Data   CompilationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Len(t, resp.Data.Lessons, 2)
	assert.NotEmpty(t, resp.Data.CatalogHash)
}

func TestCompileWritesCanonicalOutput(t *testing.T) {
	dir := writeCatalogDir(t)
	outFile := filepath.Join(t.TempDir(), "catalog.json")

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewCompileCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{dir, "--output", outFile})

	err := cmd.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Wrote canonical catalog to "+outFile)

	data, err := os.ReadFile(outFile)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), `{"catalog_hash":"`))
	assert.Contains(t, string(data), `"quota_walk"`)
	assert.Contains(t, string(data), `"moved_value"`)
	assert.True(t, strings.HasSuffix(string(data), "\n"))
}

func TestCompileCanonicalOutputIsStable(t *testing.T) {
	dir := writeCatalogDir(t)
	tmp := t.TempDir()

	compile := func(name string) []byte {
		outFile := filepath.Join(tmp, name)
		cmd := NewCompileCommand(&RootOptions{Format: "text"})
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{dir, "--output", outFile})
		require.NoError(t, cmd.Execute())

		data, err := os.ReadFile(outFile)
		require.NoError(t, err)
		return data
	}

	first := compile("first.json")
	second := compile("second.json")
	assert.Equal(t, first, second, "canonical output must be byte-identical across runs")
}

func TestCompileInvalidManifest(t *testing.T) {
	dir := t.TempDir()
	manifest := `package lessons

lesson: broken: {
	kind:     "runtime"
	scenario: "scenarios/broken.yaml"
}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lessons.cue"), []byte(manifest), 0o644))

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewCompileCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{dir})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), "✗ Compilation failed")
}

func TestCompileSchemaErrorsReported(t *testing.T) {
	dir := t.TempDir()
	manifest := `package lessons

lesson: off_topic: {
	title:    "Topic is not in the known set"
	topic:    "geography"
	kind:     "runtime"
	order:    10
	scenario: "scenarios/off_topic.yaml"
}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lessons.cue"), []byte(manifest), 0o644))

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json"}
	cmd := NewCompileCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{dir})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E102", resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "geography")
}

func TestCompileMissingDirectory(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewCompileCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"/nonexistent/catalog"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), "catalog directory not found")
}

func TestCompileVerboseLogsToStderr(t *testing.T) {
	dir := writeCatalogDir(t)

	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json", Verbose: true}
	cmd := NewCompileCommand(rootOpts)
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs([]string{dir})

	err := cmd.Execute()
	require.NoError(t, err)

	// stdout stays parseable JSON; diagnostics land on stderr
	var resp CLIResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Contains(t, errOut.String(), "Compiling lesson: quota_walk")
}
