package harness

import (
	"bytes"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Scenario is one runnable lesson script.
type Scenario struct {
	// Name identifies the scenario, lower_snake_case. Golden fixtures
	// are stored under this name.
	Name string `yaml:"name"`

	// Summary says what the scenario demonstrates, one sentence.
	Summary string `yaml:"summary"`

	// RunToken, when set, fixes the token stamped into every record.
	// Required for golden comparison.
	RunToken string `yaml:"run_token"`

	// Steps execute in order against one fresh session.
	Steps []Step `yaml:"steps"`
}

// Step invokes one op against the session.
type Step struct {
	// Op names the operation, e.g. "cell.borrow_mut".
	Op string `yaml:"op"`

	// As names the binding a constructing op produces. Required for
	// ops that bind, forbidden for ops that do not.
	As string `yaml:"as"`

	// Args are the op's arguments. Binding references are strings,
	// payloads are integers; floats and nulls are rejected.
	Args map[string]any `yaml:"args"`

	// Expect, when present, checks the step's recorded outcome.
	Expect *Expect `yaml:"expect"`
}

// Expect checks a step's outcome. Violation excludes the other two
// fields: a step that dies has no result worth matching.
type Expect struct {
	// Result is matched as a subset of the outcome's result object.
	Result map[string]any `yaml:"result"`

	// Violation names the fault code the step must raise. Only legal
	// on the final step, because a violation ends the scenario.
	Violation string `yaml:"violation"`

	// Messages pins the exact ordered notifier output of a quota.set
	// step. An empty list asserts that nothing fired.
	Messages []string `yaml:"messages"`
}

// Binding and scenario names share the catalog's lesson-name shape.
var validName = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// ParseScenario decodes and validates one YAML scenario document.
// Unknown fields are rejected, so typos fail loudly instead of
// silently skipping a check.
func ParseScenario(data []byte) (*Scenario, error) {
	var sc Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&sc); err != nil {
		return nil, err
	}
	return &sc, nil
}

// LoadScenario reads and parses the scenario file at path.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	sc, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sc, nil
}

func validateScenario(sc *Scenario) error {
	if sc.Name == "" {
		return fmt.Errorf("scenario validation failed: name is required")
	}
	if !validName.MatchString(sc.Name) {
		return fmt.Errorf("scenario validation failed: name %q must be lower_snake_case", sc.Name)
	}
	if sc.Summary == "" {
		return fmt.Errorf("scenario validation failed: summary is required")
	}
	if len(sc.Steps) == 0 {
		return fmt.Errorf("scenario validation failed: steps list is required and cannot be empty")
	}
	for i := range sc.Steps {
		if err := validateStep(i, &sc.Steps[i], i == len(sc.Steps)-1); err != nil {
			return fmt.Errorf("scenario validation failed: %w", err)
		}
	}
	return nil
}

func validateStep(i int, st *Step, final bool) error {
	if st.Op == "" {
		return fmt.Errorf("steps[%d]: op is required", i)
	}
	spec, ok := ops[st.Op]
	if !ok {
		return fmt.Errorf("steps[%d]: unknown op %q", i, st.Op)
	}
	if spec.binds && st.As == "" {
		return fmt.Errorf("steps[%d]: %s binds a result, as is required", i, st.Op)
	}
	if !spec.binds && st.As != "" {
		return fmt.Errorf("steps[%d]: %s does not bind a result, as must be empty", i, st.Op)
	}
	if st.As != "" && !validName.MatchString(st.As) {
		return fmt.Errorf("steps[%d]: as %q must be lower_snake_case", i, st.As)
	}
	if st.Expect == nil {
		return nil
	}
	if st.Expect.Violation != "" {
		if !final {
			return fmt.Errorf("steps[%d]: a violation ends the scenario, so an expected violation must be the final step", i)
		}
		if st.Expect.Result != nil || st.Expect.Messages != nil {
			return fmt.Errorf("steps[%d]: violation cannot be combined with result or messages", i)
		}
	}
	if st.Expect.Messages != nil && st.Op != "quota.set" {
		return fmt.Errorf("steps[%d]: messages applies only to quota.set, not %s", i, st.Op)
	}
	return nil
}
