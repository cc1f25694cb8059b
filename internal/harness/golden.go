package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/castamos/learn-rust-by-testing/internal/trace"
)

// snapshotObject renders a result for golden comparison. Snapshots pin
// behavior: ops, arguments, sequence numbers, outcomes, and the
// verdict. Record IDs are deliberately left out; hash integrity over
// stored runs is the replay command's job, and keeping the fixtures
// free of digests keeps their diffs readable.
func snapshotObject(res *Result) trace.Object {
	events := make(trace.Array, 0, len(res.Steps)+len(res.Outcomes))
	for i := range res.Steps {
		s := res.Steps[i]
		events = append(events, trace.Object{
			"kind": trace.Str("step"),
			"op":   trace.Str(s.Op),
			"args": s.Args,
			"seq":  trace.Int(s.Seq),
		})
		if i < len(res.Outcomes) {
			o := res.Outcomes[i]
			events = append(events, trace.Object{
				"kind":        trace.Str("outcome"),
				"output_case": trace.Str(o.OutputCase),
				"result":      o.Result,
				"seq":         trace.Int(o.Seq),
			})
		}
	}
	return trace.Object{
		"scenario":  trace.Str(res.Name),
		"run_token": trace.Str(res.RunToken),
		"verdict":   trace.Str(res.Verdict()),
		"events":    events,
	}
}

// MarshalSnapshot renders the golden bytes for res: RFC 8785 canonical
// JSON plus a trailing newline.
func MarshalSnapshot(res *Result) ([]byte, error) {
	data, err := trace.MarshalCanonical(snapshotObject(res))
	if err != nil {
		return nil, fmt.Errorf("marshaling snapshot: %w", err)
	}
	return append(data, '\n'), nil
}

// AssertGolden compares res against testdata/golden/<name>.golden.
// Regenerate fixtures with:
//
//	go test ./internal/harness -update
func AssertGolden(t *testing.T, name string, res *Result) error {
	t.Helper()
	data, err := MarshalSnapshot(res)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}

// RunWithGolden loads, runs, and golden-compares the scenario at path.
// The scenario must fix run_token; without one the trace cannot be
// byte-stable across runs.
func RunWithGolden(t *testing.T, r *Runner, path string) (*Result, error) {
	t.Helper()
	sc, err := LoadScenario(path)
	if err != nil {
		return nil, err
	}
	if sc.RunToken == "" {
		return nil, fmt.Errorf("scenario %s: golden comparison requires a fixed run_token", sc.Name)
	}
	res, err := r.Run(sc)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, sc.Name, res); err != nil {
		return nil, err
	}
	return res, nil
}

// CompareGolden checks res against the fixture at dir/<name>.golden
// without a testing.T, for the run command. When update is true the
// fixture is rewritten instead and the comparison always succeeds.
func CompareGolden(dir, name string, res *Result, update bool) error {
	data, err := MarshalSnapshot(res)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, name+".golden")
	if update {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating golden dir: %w", err)
		}
		return os.WriteFile(path, data, 0o644)
	}
	want, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("golden fixture %s does not exist; run with --update to create it", path)
		}
		return fmt.Errorf("reading golden fixture: %w", err)
	}
	if !bytes.Equal(want, data) {
		return fmt.Errorf("trace for %s diverges from %s; run with --update to accept the new trace", name, path)
	}
	return nil
}
