package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devlens/devlens/pkg/types"
)

func TestEvent_FlatColumns(t *testing.T) {
	ev := Event(3, types.RawEvent{
		"actor_id":   " learner-1 ",
		"session_id": "s-9",
		"timestamp":  "2025-03-01T09:00:00Z",
		"verb":       "http://adlnet.gov/expapi/verbs/viewed",
		"object":     "/auth/dashboard",
	})

	assert.Equal(t, 3, ev.Index)
	assert.Equal(t, "learner-1", ev.ActorID)
	assert.Equal(t, "s-9", ev.SessionID)
	assert.Equal(t, "http://adlnet.gov/expapi/verbs/viewed", ev.Verb)
	assert.Equal(t, "/auth/dashboard", ev.Object)
	require.True(t, ev.HasTimestamp())
	assert.Equal(t, time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC), ev.Timestamp)
}

func TestEvent_EmbeddedStatement(t *testing.T) {
	raw := `{
		"actor": {"account": {"name": "acct-7"}},
		"verb": {"id": "http://adlnet.gov/expapi/verbs/answered"},
		"object": {"id": "/course/week/2/quiz/4"},
		"timestamp": "2025-03-01T10:15:00.250Z",
		"result": {"success": true},
		"context": {"extensions": {
			"https://app.example.com/xapi/ext/session_id": "sess-42",
			"https://app.example.com/xapi/ext/localTimestamp": "2025-03-01T11:15:00+01:00"
		}}
	}`
	ev := Event(0, types.RawEvent{"raw": raw})

	assert.Equal(t, "acct-7", ev.ActorID)
	assert.Equal(t, "sess-42", ev.SessionID)
	assert.Equal(t, "http://adlnet.gov/expapi/verbs/answered", ev.Verb)
	assert.Equal(t, "/course/week/2/quiz/4", ev.Object)
	// local timestamp extension wins over the statement timestamp
	assert.Equal(t, time.Date(2025, 3, 1, 10, 15, 0, 0, time.UTC), ev.Timestamp)

	ok, present := ev.Success()
	assert.True(t, present)
	assert.True(t, ok)
}

func TestEvent_ContextColumnOverridesPayload(t *testing.T) {
	ev := Event(0, types.RawEvent{
		"actor_id": "a",
		"context":  `{"extensions": {"session_id": "from-column"}}`,
		"raw":      `{"context": {"extensions": {"session_id": "from-payload"}}}`,
	})
	assert.Equal(t, "from-column", ev.SessionID)
}

func TestEvent_MboxFallback(t *testing.T) {
	ev := Event(0, types.RawEvent{"raw": `{"actor": {"mbox": "mailto:a@example.com"}}`})
	assert.Equal(t, "mailto:a@example.com", ev.ActorID)
}

func TestEvent_MalformedPayloadIsAbsent(t *testing.T) {
	ev := Event(1, types.RawEvent{
		"raw":     `{"actor": {`,
		"context": "not json",
		"verb":    "viewed",
	})

	assert.Equal(t, types.UnknownActor, ev.ActorID)
	assert.Equal(t, "", ev.SessionID)
	assert.Equal(t, "viewed", ev.Verb)
	assert.Equal(t, "", ev.Object)
	assert.False(t, ev.HasTimestamp())
	assert.Nil(t, ev.Result)
}

func TestEvent_InvalidTimestampKeepsRaw(t *testing.T) {
	ev := Event(0, types.RawEvent{"actor_id": "a", "timestamp": "yesterday-ish"})
	assert.False(t, ev.HasTimestamp())
	assert.Equal(t, "yesterday-ish", ev.RawTimestamp)
}

func TestEvent_FieldFallbackOrder(t *testing.T) {
	ev := Event(0, types.RawEvent{
		"actorId":         "camel",
		"verb_id":         "verb-from-id",
		"object_id":       "obj-from-id",
		"local_timestamp": "2025-03-01 08:00:00",
	})
	assert.Equal(t, "camel", ev.ActorID)
	assert.Equal(t, "verb-from-id", ev.Verb)
	assert.Equal(t, "obj-from-id", ev.Object)
	assert.Equal(t, time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC), ev.Timestamp)
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
	tests := []struct {
		name string
		in   interface{}
		ok   bool
	}{
		{"rfc3339", "2025-03-01T09:30:00Z", true},
		{"offset", "2025-03-01T10:30:00+01:00", true},
		{"fraction", "2025-03-01T09:30:00.000Z", true},
		{"space separated", "2025-03-01 09:30:00", true},
		{"unix seconds text", "1740821400", true},
		{"unix millis text", "1740821400000", true},
		{"unix seconds with fraction", "1740821400.0", true},
		{"unix millis number", float64(1740821400000), true},
		{"unix seconds number", float64(1740821400), true},
		{"garbage", "soon", false},
		{"empty", "", false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseTimestamp(tt.in)
			require.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, want.Equal(got), "got %s", got)
			}
		})
	}
}

func TestParseTimestamp_ShortNumbers(t *testing.T) {
	got, ok := ParseTimestamp("2025")
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), got)

	got, ok = ParseTimestamp("2025-03")
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), got)

	for _, in := range []string{"7", "42", "123456", "12345678", "1e9", "-5"} {
		_, ok := ParseTimestamp(in)
		assert.False(t, ok, in)
	}
}

func TestEvents_PreservesOrder(t *testing.T) {
	rows := []types.RawEvent{{"actor_id": "a"}, {"actor_id": "b"}, {"actor_id": "c"}}
	out := Events(rows)
	require.Len(t, out, 3)
	for i, ev := range out {
		assert.Equal(t, i, ev.Index)
	}
	assert.Equal(t, "c", out[2].ActorID)
}
