// Package testutil provides deterministic test doubles for harness and
// notifier tests.
package testutil

// DefaultToken is the run token FixedTokenGenerator falls back to.
const DefaultToken = "test-run-default"

// FixedTokenGenerator yields the same run token on every call.
//
// Unlike harness.UUIDv7Generator, it makes traces byte-stable across
// runs. It satisfies harness.TokenGenerator structurally; this package
// must not import harness, because harness's own tests import it.
type FixedTokenGenerator struct {
	// Token is the value to return. Empty means DefaultToken.
	Token string
}

// Generate returns the fixed token.
func (g FixedTokenGenerator) Generate() string {
	if g.Token == "" {
		return DefaultToken
	}
	return g.Token
}
