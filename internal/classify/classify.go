// Package classify assigns behavior codes to normalized events using an
// ordered first-match rule list.
package classify

import "github.com/devlens/devlens/pkg/types"

// Classifier evaluates rules top to bottom and returns the first match.
type Classifier struct {
	rules []Rule
}

// New creates a classifier over rules. The slice is copied.
func New(rules []Rule) *Classifier {
	cp := make([]Rule, len(rules))
	copy(cp, rules)
	return &Classifier{rules: cp}
}

// Default returns a classifier over DefaultRules.
func Default() *Classifier {
	return New(DefaultRules())
}

// Rules returns the rules in evaluation order.
func (c *Classifier) Rules() []Rule {
	cp := make([]Rule, len(c.rules))
	copy(cp, c.rules)
	return cp
}

// Codes returns every code the classifier can emit, in rule order.
func (c *Classifier) Codes() []string {
	codes := make([]string, len(c.rules))
	for i, r := range c.rules {
		codes[i] = r.Code
	}
	return codes
}

// Classify returns the behavior code for ev, or false when no rule matches.
func (c *Classifier) Classify(ev types.NormalizedEvent) (string, bool) {
	for _, r := range c.rules {
		if r.Match(ev.Verb, ev.Object) {
			return r.Code, true
		}
	}
	return "", false
}

// Label classifies every event and keeps all of them; unmatched events carry
// an empty BehaviorCode. The second return value counts those.
func (c *Classifier) Label(events []types.NormalizedEvent) ([]types.ClassifiedEvent, int) {
	out := make([]types.ClassifiedEvent, len(events))
	unmatched := 0
	for i, ev := range events {
		code, ok := c.Classify(ev)
		if !ok {
			unmatched++
		}
		out[i] = types.ClassifiedEvent{NormalizedEvent: ev, BehaviorCode: code}
	}
	return out, unmatched
}

// Coded returns the events that carry a behavior code, in order.
func Coded(events []types.ClassifiedEvent) []types.ClassifiedEvent {
	out := make([]types.ClassifiedEvent, 0, len(events))
	for _, ev := range events {
		if ev.Classified() {
			out = append(out, ev)
		}
	}
	return out
}
