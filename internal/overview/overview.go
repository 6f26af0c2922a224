// Package overview computes batch-level KPIs over normalized events.
package overview

import (
	"sort"

	"github.com/devlens/devlens/pkg/types"
)

const (
	// TopVerbsLimit caps the verb frequency list.
	TopVerbsLimit = 10
	// TopObjectsLimit caps the object frequency list.
	TopObjectsLimit = 25

	unknownVerb   = "unknown_verb"
	unknownObject = "unknown_object"
	noVerb        = "N/A"
)

type counter struct {
	counts map[string]int
}

func newCounter() *counter { return &counter{counts: make(map[string]int)} }

func (c *counter) add(key string) { c.counts[key]++ }

// top returns up to n keys by count descending, ties by key ascending.
func (c *counter) top(n int) []string {
	keys := make([]string, 0, len(c.counts))
	for k := range c.counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ci, cj := c.counts[keys[i]], c.counts[keys[j]]
		if ci != cj {
			return ci > cj
		}
		return keys[i] < keys[j]
	})
	if n > 0 && len(keys) > n {
		keys = keys[:n]
	}
	return keys
}

// Calculate computes the overview over all events, classified or not.
// Events without a parseable timestamp are left out of the daily activity.
func Calculate(events []types.NormalizedEvent) *types.OverviewResult {
	actors := make(map[string]struct{})
	verbs := newCounter()
	objects := newCounter()
	days := newCounter()

	for _, ev := range events {
		actors[ev.ActorID] = struct{}{}

		verb := ev.Verb
		if verb == "" {
			verb = unknownVerb
		}
		verbs.add(verb)

		object := ev.Object
		if object == "" {
			object = unknownObject
		}
		objects.add(object)

		if ev.HasTimestamp() {
			days.add(ev.Timestamp.UTC().Format("2006-01-02"))
		}
	}

	out := &types.OverviewResult{
		TotalEvents:    len(events),
		ActiveUsers:    len(actors),
		UniqueContents: len(objects.counts),
		TopVerb:        noVerb,
		DailyActivity:  make([]types.DailyCount, 0, len(days.counts)),
		TopVerbs:       make([]types.VerbCount, 0, TopVerbsLimit),
		TopObjects:     make([]types.ObjectCount, 0, TopObjectsLimit),
	}

	for _, v := range verbs.top(TopVerbsLimit) {
		out.TopVerbs = append(out.TopVerbs, types.VerbCount{Verb: v, Count: verbs.counts[v]})
	}
	if len(out.TopVerbs) > 0 {
		out.TopVerb = out.TopVerbs[0].Verb
	}
	for _, o := range objects.top(TopObjectsLimit) {
		out.TopObjects = append(out.TopObjects, types.ObjectCount{Name: o, Count: objects.counts[o]})
	}

	dates := make([]string, 0, len(days.counts))
	for d := range days.counts {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	for _, d := range dates {
		out.DailyActivity = append(out.DailyActivity, types.DailyCount{Date: d, Events: days.counts[d]})
	}

	return out
}
