// Package types provides the core data types shared across DevLens.
package types

import "time"

// RawEvent is one ingested record as a loosely typed bag of fields. Values are
// usually strings (CSV cells) but JSON sources may carry nested maps.
type RawEvent map[string]interface{}

// UnknownActor is the actor id assigned when no identity field resolves.
const UnknownActor = "unknown"

// NormalizedEvent is the canonical form of a RawEvent.
type NormalizedEvent struct {
	// Index is the position of the source row in the batch. It breaks
	// timestamp ties so orderings stay deterministic.
	Index int `json:"index"`

	// ActorID identifies the learner; UnknownActor when unresolved.
	ActorID string `json:"actor_id"`

	// SessionID is the explicit session identifier, empty when absent.
	SessionID string `json:"session_id,omitempty"`

	// Timestamp is the parsed event instant. Zero when RawTimestamp could
	// not be parsed.
	Timestamp time.Time `json:"timestamp"`

	// RawTimestamp is the timestamp text as found in the source row.
	RawTimestamp string `json:"raw_timestamp,omitempty"`

	// Verb is the xAPI verb IRI (or plain verb).
	Verb string `json:"verb"`

	// Object is the xAPI object id.
	Object string `json:"object"`

	// Result is the decoded xAPI result payload, nil when absent or malformed.
	Result map[string]interface{} `json:"result,omitempty"`
}

// HasTimestamp reports whether the event carries a parseable timestamp.
func (e NormalizedEvent) HasTimestamp() bool {
	return !e.Timestamp.IsZero()
}

// Success returns result.success when the result payload carries a boolean.
func (e NormalizedEvent) Success() (bool, bool) {
	if e.Result == nil {
		return false, false
	}
	v, ok := e.Result["success"].(bool)
	return v, ok
}

// ClassifiedEvent is a NormalizedEvent with its behavior code. An empty
// BehaviorCode means the event is unclassified.
type ClassifiedEvent struct {
	NormalizedEvent
	BehaviorCode string `json:"behavior_code,omitempty"`
}

// Classified reports whether a behavior rule matched the event.
func (e ClassifiedEvent) Classified() bool {
	return e.BehaviorCode != ""
}

// LessByTime orders two events by timestamp with unparseable timestamps last
// and the original row index as the tie breaker.
func LessByTime(a, b NormalizedEvent) bool {
	at, bt := a.HasTimestamp(), b.HasTimestamp()
	switch {
	case at && bt:
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
	case at != bt:
		return at
	}
	return a.Index < b.Index
}
