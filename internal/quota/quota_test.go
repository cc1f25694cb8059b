package quota

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestTracker_Thresholds tests that each usage level emits exactly the
// message of its tier, or nothing below 75%.
func TestTracker_Thresholds(t *testing.T) {
	tests := []struct {
		value int64
		want  []Message
	}{
		{value: 0, want: nil},
		{value: 50, want: nil},
		{value: 74, want: nil},
		{value: 75, want: []Message{{Severity: SeverityInfo, Text: TextInfo}}},
		{value: 80, want: []Message{{Severity: SeverityInfo, Text: TextInfo}}},
		{value: 89, want: []Message{{Severity: SeverityInfo, Text: TextInfo}}},
		{value: 90, want: []Message{{Severity: SeverityWarning, Text: TextWarning}}},
		{value: 95, want: []Message{{Severity: SeverityWarning, Text: TextWarning}}},
		{value: 99, want: []Message{{Severity: SeverityWarning, Text: TextWarning}}},
		{value: 100, want: []Message{{Severity: SeverityError, Text: TextError}}},
		{value: 120, want: []Message{{Severity: SeverityError, Text: TextError}}},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("value_%d", tt.value), func(t *testing.T) {
			rec := NewRecorder()
			tracker := NewTracker(rec, 100)

			tracker.SetValue(tt.value)

			assert.Equal(t, tt.want, messagesOrNil(rec))
			assert.Equal(t, tt.value, tracker.Value())
		})
	}
}

// TestTracker_ExactTexts pins the emitted strings.
func TestTracker_ExactTexts(t *testing.T) {
	assert.Equal(t, "ERROR: Quota exceeded.", TextError)
	assert.Equal(t, "WARNING: Reached 90% of quota.", TextWarning)
	assert.Equal(t, "INFO: Reached 75% of quota.", TextInfo)
}

// TestTracker_OneMessagePerCall tests that the branches are mutually
// exclusive: crossing 100% emits only the error tier, not the lower
// tiers it also passed.
func TestTracker_OneMessagePerCall(t *testing.T) {
	rec := NewRecorder()
	tracker := NewTracker(rec, 100)

	tracker.SetValue(100)

	msgs := rec.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, SeverityError, msgs[0].Severity)
}

// TestTracker_CallsAreIndependent tests that no warned state carries
// between calls: the same level re-emits and a lower level falls
// silent again.
func TestTracker_CallsAreIndependent(t *testing.T) {
	rec := NewRecorder()
	tracker := NewTracker(rec, 100)

	tracker.SetValue(80)
	tracker.SetValue(50)
	tracker.SetValue(80)
	tracker.SetValue(95)
	tracker.SetValue(80)

	msgs := rec.Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, TextInfo, msgs[0].Text)
	assert.Equal(t, TextInfo, msgs[1].Text)
	assert.Equal(t, TextWarning, msgs[2].Text)
	assert.Equal(t, TextInfo, msgs[3].Text)
}

// TestTracker_NonDefaultMax tests the ratio against a maximum other
// than 100.
func TestTracker_NonDefaultMax(t *testing.T) {
	rec := NewRecorder()
	tracker := NewTracker(rec, 200)
	assert.Equal(t, int64(200), tracker.Max())

	tracker.SetValue(149)
	assert.Empty(t, rec.Messages())

	tracker.SetValue(150)
	msgs := rec.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, TextInfo, msgs[0].Text)

	tracker.SetValue(200)
	msgs = rec.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, TextError, msgs[1].Text)
}

// TestRecorder_AccumulatesInOrder tests the cell-backed sink on its
// own: messages arrive in order and Messages returns a copy.
func TestRecorder_AccumulatesInOrder(t *testing.T) {
	rec := NewRecorder()

	rec.Send(Message{Severity: SeverityInfo, Text: "first"})
	rec.Send(Message{Severity: SeverityError, Text: "second"})

	msgs := rec.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Text)
	assert.Equal(t, "second", msgs[1].Text)

	// Mutating the returned slice must not touch the stored messages.
	msgs[0].Text = "clobbered"
	assert.Equal(t, "first", rec.Messages()[0].Text)
}

func messagesOrNil(rec *Recorder) []Message {
	msgs := rec.Messages()
	if len(msgs) == 0 {
		return nil
	}
	return msgs
}
