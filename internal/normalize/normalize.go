// Package normalize turns heterogeneous raw event rows into NormalizedEvents.
//
// Rows come either as flat CSV columns or carry an embedded xAPI statement in
// a "raw" column (plus an optional "context" column). Every canonical field is
// resolved from an ordered list of candidate locations; the first non-empty
// value wins. Malformed embedded JSON is treated as absent, never as an error.
package normalize

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/devlens/devlens/pkg/types"
)

// xAPI extension keys used by the LMS for session id and client-local time.
const (
	ExtSessionID      = "https://app.example.com/xapi/ext/session_id"
	ExtLocalTimestamp = "https://app.example.com/xapi/ext/localTimestamp"
)

// timestampLayouts are tried in order. Fractional seconds are accepted by
// time.Parse even when the layout omits them.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
	"2006-01",
	"2006",
}

// minUnixDigits is the shortest digit string read as a unix timestamp;
// shorter numbers are years or junk, not 1970 instants.
const minUnixDigits = 9

// Event normalizes one raw row. index is the row's position in its batch.
func Event(index int, row types.RawEvent) types.NormalizedEvent {
	payload := decodeObject(row["raw"])
	ctx := decodeObject(row["context"])
	if ctx == nil {
		ctx = asMap(payload["context"])
	}
	ext := asMap(ctx["extensions"])

	ev := types.NormalizedEvent{
		Index: index,
		ActorID: firstNonEmpty(
			stringOf(row["actor_id"]),
			stringOf(row["actorId"]),
			stringOf(row["user_id"]),
			stringOf(lookup(payload, "actor", "account", "name")),
			stringOf(lookup(payload, "actor", "mbox")),
		),
		SessionID: firstNonEmpty(
			stringOf(row["session_id"]),
			stringOf(row["sessionId"]),
			stringOf(ext[ExtSessionID]),
			stringOf(ext["session_id"]),
		),
		Verb: firstNonEmpty(
			stringOf(row["verb"]),
			stringOf(row["verb_id"]),
			stringOf(lookup(payload, "verb", "id")),
		),
		Object: firstNonEmpty(
			stringOf(row["object"]),
			stringOf(row["object_id"]),
			stringOf(lookup(payload, "object", "id")),
		),
		Result: decodeObject(row["result"]),
	}
	if ev.ActorID == "" {
		ev.ActorID = types.UnknownActor
	}
	if ev.Result == nil {
		ev.Result = asMap(payload["result"])
	}

	for _, candidate := range []interface{}{
		row["timestamp"],
		row["local_timestamp"],
		row["time"],
		ext[ExtLocalTimestamp],
		ext["localTimestamp"],
		payload["timestamp"],
	} {
		raw := stringOf(candidate)
		if raw == "" {
			continue
		}
		ev.RawTimestamp = raw
		if ts, ok := ParseTimestamp(candidate); ok {
			ev.Timestamp = ts
		}
		break
	}

	return ev
}

// Events normalizes a batch, preserving row order.
func Events(rows []types.RawEvent) []types.NormalizedEvent {
	out := make([]types.NormalizedEvent, len(rows))
	for i, row := range rows {
		out[i] = Event(i, row)
	}
	return out
}

// ParseTimestamp parses a timestamp given as text or as a JSON number of unix
// seconds or milliseconds. The result is always in UTC.
func ParseTimestamp(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		if t.IsZero() {
			return time.Time{}, false
		}
		return t.UTC(), true
	case float64:
		return fromUnix(t), true
	case int64:
		return fromUnix(float64(t)), true
	case int:
		return fromUnix(float64(t)), true
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return time.Time{}, false
		}
		return fromUnix(f), true
	}

	s := strings.TrimSpace(stringOf(v))
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), true
		}
	}
	if unixDigits(s) >= minUnixDigits {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return fromUnix(f), true
		}
	}
	return time.Time{}, false
}

// unixDigits counts the integer digits of a plain decimal string, or returns
// 0 when s is not one.
func unixDigits(s string) int {
	s = strings.TrimPrefix(s, "-")
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
	}
	return len(s)
}

// fromUnix treats values above 1e11 as milliseconds.
func fromUnix(f float64) time.Time {
	if f > 1e11 || f < -1e11 {
		return time.UnixMilli(int64(f)).UTC()
	}
	sec := int64(f)
	nsec := int64((f - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}

// decodeObject accepts a map or a JSON string holding an object.
func decodeObject(v interface{}) map[string]interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return t
	case types.RawEvent:
		return t
	case string:
		s := strings.TrimSpace(t)
		if s == "" || s[0] != '{' {
			return nil
		}
		var m map[string]interface{}
		if err := json.Unmarshal([]byte(s), &m); err != nil {
			return nil
		}
		return m
	case []byte:
		return decodeObject(string(t))
	}
	return nil
}

func asMap(v interface{}) map[string]interface{} {
	m, _ := v.(map[string]interface{})
	return m
}

// lookup walks nested maps along path. Missing links yield nil.
func lookup(m map[string]interface{}, path ...string) interface{} {
	var cur interface{} = m
	for _, key := range path {
		next, ok := cur.(map[string]interface{})
		if !ok {
			return nil
		}
		cur = next[key]
	}
	return cur
}

func stringOf(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case map[string]interface{}, []interface{}:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
