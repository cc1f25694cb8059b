package testutil

import (
	"sync"

	"github.com/castamos/learn-rust-by-testing/internal/quota"
)

// MemorySink is a quota.Sink that accumulates messages in a plain
// slice.
//
// Unlike quota.Recorder, it does not route writes through a borrow
// cell, so tracker tests can assert on emissions without the cell
// machinery in the failure path.
//
// Thread-safety: all methods are safe for concurrent use.
type MemorySink struct {
	mu   sync.Mutex
	msgs []quota.Message
}

// Send appends msg to the sink.
func (s *MemorySink) Send(msg quota.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
}

// Messages returns a copy of everything received so far, in order.
func (s *MemorySink) Messages() []quota.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]quota.Message(nil), s.msgs...)
}

// Texts returns just the message texts, in order.
func (s *MemorySink) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	texts := make([]string, len(s.msgs))
	for i, m := range s.msgs {
		texts[i] = m.Text
	}
	return texts
}

// Reset discards all received messages.
func (s *MemorySink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = nil
}
