package harness

import "github.com/google/uuid"

// TokenGenerator mints run tokens for scenario executions.
//
// A scenario that fixes run_token bypasses the generator, which keeps
// golden traces stable. Everything else gets a fresh token per run so
// repeated executions of one lesson stay distinguishable in the store.
type TokenGenerator interface {
	Generate() string
}

// UUIDv7Generator mints time-sortable UUIDv7 run tokens, so tokens
// listed from the store come out in rough execution order. Stateless
// and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate returns a new UUIDv7 as a hyphenated string.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
