package trace

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity. The version suffix
// leaves room for an algorithm migration without colliding with old
// IDs.
const (
	DomainStep    = "ownlab/step/v1"
	DomainOutcome = "ownlab/outcome/v1"
	DomainCatalog = "ownlab/catalog/v1"
)

// hashWithDomain computes SHA256(domain || 0x00 || data). The null
// separator keeps the domain/data boundary unambiguous.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// StepID computes the content-addressed ID of a step. The same run
// token, op, args, and seq always produce the same ID, which is what
// makes replays idempotent against the store.
func StepID(runToken, op string, args Object, seq int64) (string, error) {
	obj := Object{
		"run_token": Str(runToken),
		"op":        Str(op),
		"args":      args,
		"seq":       Int(seq),
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("StepID: %w", err)
	}
	return hashWithDomain(DomainStep, canonical), nil
}

// OutcomeID computes the content-addressed ID of an outcome, bound to
// the step it observes.
func OutcomeID(stepID, outputCase string, result Object, seq int64) (string, error) {
	obj := Object{
		"step_id":     Str(stepID),
		"output_case": Str(outputCase),
		"result":      result,
		"seq":         Int(seq),
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("OutcomeID: %w", err)
	}
	return hashWithDomain(DomainOutcome, canonical), nil
}

// CatalogHash computes a digest over a compiled lesson catalog,
// recorded on each run so a stored trace can be matched to the exact
// catalog it ran against.
func CatalogHash(lessons Value) (string, error) {
	canonical, err := MarshalCanonical(lessons)
	if err != nil {
		return "", fmt.Errorf("CatalogHash: %w", err)
	}
	return hashWithDomain(DomainCatalog, canonical), nil
}

// MustStepID is StepID that panics on marshal failure. For tests and
// inputs known to be canonical-safe.
func MustStepID(runToken, op string, args Object, seq int64) string {
	id, err := StepID(runToken, op, args, seq)
	if err != nil {
		panic(err)
	}
	return id
}

// MustOutcomeID is OutcomeID that panics on marshal failure.
func MustOutcomeID(stepID, outputCase string, result Object, seq int64) string {
	id, err := OutcomeID(stepID, outputCase, result, seq)
	if err != nil {
		panic(err)
	}
	return id
}
