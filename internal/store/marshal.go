package store

import (
	"encoding/json"
	"fmt"

	"github.com/castamos/learn-rust-by-testing/internal/trace"
)

// marshalObject converts a trace.Object to canonical JSON TEXT for
// storage. Uses RFC 8785 canonical JSON so the stored text is
// deterministic across re-recordings.
func marshalObject(obj trace.Object) (string, error) {
	data, err := trace.MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("marshal object: %w", err)
	}
	return string(data), nil
}

// unmarshalObject parses canonical JSON TEXT back into a trace.Object.
// Uses trace.Object.UnmarshalJSON, which routes numbers through
// json.Number so large integers survive the round trip without float64
// precision loss.
func unmarshalObject(data string) (trace.Object, error) {
	if data == "" || data == "{}" {
		return trace.Object{}, nil
	}
	var obj trace.Object
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal object: %w", err)
	}
	return obj, nil
}
