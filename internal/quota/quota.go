// Package quota provides a usage-threshold notifier.
//
// A Tracker holds a current/maximum usage pair and an injected message
// sink. Every SetValue call recomputes the usage ratio from scratch
// and emits at most one message, the highest severity whose threshold
// the ratio reaches. There is no hysteresis and no "already warned"
// state: two calls with the same value emit the same message twice.
package quota

import (
	"github.com/castamos/learn-rust-by-testing/internal/cell"
)

// Severity ranks notifier messages.
type Severity string

const (
	// SeverityInfo marks the 75% threshold message.
	SeverityInfo Severity = "INFO"

	// SeverityWarning marks the 90% threshold message.
	SeverityWarning Severity = "WARNING"

	// SeverityError marks the exceeded-quota message.
	SeverityError Severity = "ERROR"
)

// Threshold message texts. Fixed strings, asserted verbatim by the
// demonstrations and recorded verbatim in traces.
const (
	TextError   = "ERROR: Quota exceeded."
	TextWarning = "WARNING: Reached 90% of quota."
	TextInfo    = "INFO: Reached 75% of quota."
)

// Message is one notifier emission.
type Message struct {
	Severity Severity `json:"severity"`
	Text     string   `json:"text"`
}

// Sink receives notifier messages. The tracker holds its sink by
// reference and never mutates it; a sink that accumulates state
// resolves write access to its own storage internally.
type Sink interface {
	Send(msg Message)
}

// Tracker notifies a sink when usage crosses fixed thresholds of a
// maximum.
type Tracker struct {
	sink  Sink
	value int64
	max   int64
}

// NewTracker returns a tracker reporting to sink. max must be
// positive.
func NewTracker(sink Sink, max int64) *Tracker {
	return &Tracker{sink: sink, max: max}
}

// SetValue stores the current usage and re-evaluates the thresholds.
// At most one message fires per call:
//
//	ratio >= 1.0  → "ERROR: Quota exceeded."
//	ratio >= 0.9  → "WARNING: Reached 90% of quota."
//	ratio >= 0.75 → "INFO: Reached 75% of quota."
//
// The branches are mutually exclusive, highest severity first.
func (t *Tracker) SetValue(value int64) {
	t.value = value

	ratio := float64(t.value) / float64(t.max)
	switch {
	case ratio >= 1.0:
		t.sink.Send(Message{Severity: SeverityError, Text: TextError})
	case ratio >= 0.9:
		t.sink.Send(Message{Severity: SeverityWarning, Text: TextWarning})
	case ratio >= 0.75:
		t.sink.Send(Message{Severity: SeverityInfo, Text: TextInfo})
	}
}

// Value returns the stored current usage.
func (t *Tracker) Value() int64 {
	return t.value
}

// Max returns the usage maximum.
func (t *Tracker) Max() int64 {
	return t.max
}

// Recorder is a Sink that accumulates messages in a runtime-checked
// cell. Send writes through a scoped write ticket, so the recorder
// mutates its own storage without the tracker ever holding mutation
// rights over it.
type Recorder struct {
	messages *cell.Cell[[]Message]
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{messages: cell.New[[]Message](nil)}
}

// Send appends msg to the recorder's storage.
func (r *Recorder) Send(msg Message) {
	w := r.messages.BorrowMut()
	defer w.Release()
	w.Update(func(ms []Message) []Message {
		return append(ms, msg)
	})
}

// Messages returns a copy of everything received so far, in order.
func (r *Recorder) Messages() []Message {
	rd := r.messages.Borrow()
	defer rd.Release()
	return append([]Message(nil), rd.Get()...)
}
