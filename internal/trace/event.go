// Package trace defines the deterministic event model demonstrations
// are recorded in.
//
// Every scenario step produces exactly two records: a Step saying what
// was asked (op plus arguments) and an Outcome saying what happened
// (output case plus result payload). Both are stamped with a logical
// clock sequence and addressed by a content hash over their canonical
// JSON, so identical runs produce byte-identical traces and replaying
// a run into a store is a no-op.
package trace

// Output cases an outcome can carry.
const (
	// OutputOK marks a step that completed and returned its result.
	OutputOK = "ok"

	// OutputViolation marks a step that died with an expected fatal
	// usage violation; the result carries the violation code and
	// operation.
	OutputViolation = "violation"
)

// Run verdicts.
const (
	VerdictPass = "pass"
	VerdictFail = "fail"
)

// Step records what a scenario step asked for.
type Step struct {
	ID       string `json:"id"`
	RunToken string `json:"run_token"`
	Op       string `json:"op"`
	Args     Object `json:"args"`
	Seq      int64  `json:"seq"`
}

// Outcome records what a step's execution produced.
type Outcome struct {
	ID         string `json:"id"`
	StepID     string `json:"step_id"`
	OutputCase string `json:"output_case"`
	Result     Object `json:"result"`
	Seq        int64  `json:"seq"`
}

// Run describes one lesson execution: which lesson and scenario ran,
// against which catalog, and how it ended.
type Run struct {
	RunToken    string `json:"run_token"`
	Lesson      string `json:"lesson"`
	Scenario    string `json:"scenario"`
	CatalogHash string `json:"catalog_hash"`
	Verdict     string `json:"verdict"`
	FirstSeq    int64  `json:"first_seq"`
	LastSeq     int64  `json:"last_seq"`
}

// NewStep builds a step with its content-addressed ID.
func NewStep(runToken, op string, args Object, seq int64) (Step, error) {
	id, err := StepID(runToken, op, args, seq)
	if err != nil {
		return Step{}, err
	}
	return Step{ID: id, RunToken: runToken, Op: op, Args: args, Seq: seq}, nil
}

// NewOutcome builds an outcome with its content-addressed ID.
func NewOutcome(stepID, outputCase string, result Object, seq int64) (Outcome, error) {
	id, err := OutcomeID(stepID, outputCase, result, seq)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{ID: id, StepID: stepID, OutputCase: outputCase, Result: result, Seq: seq}, nil
}
