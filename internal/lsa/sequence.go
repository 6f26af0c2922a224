package lsa

import (
	"sort"

	"github.com/devlens/devlens/pkg/types"
)

// Sequence is one actor's classified events in time order.
type Sequence struct {
	ActorID string
	Events  []types.ClassifiedEvent
}

// BuildSequences groups classified events by actor and orders each group by
// timestamp. Events without a behavior code are skipped.
// Unparseable timestamps sort last; ties keep source row order. Sequences are
// returned sorted by actor id. The input slice is not modified.
func BuildSequences(events []types.ClassifiedEvent) []Sequence {
	byActor := make(map[string][]types.ClassifiedEvent)
	for _, ev := range events {
		if !ev.Classified() {
			continue
		}
		byActor[ev.ActorID] = append(byActor[ev.ActorID], ev)
	}

	actors := make([]string, 0, len(byActor))
	for actor := range byActor {
		actors = append(actors, actor)
	}
	sort.Strings(actors)

	seqs := make([]Sequence, 0, len(actors))
	for _, actor := range actors {
		evs := byActor[actor]
		sort.SliceStable(evs, func(i, j int) bool {
			return types.LessByTime(evs[i].NormalizedEvent, evs[j].NormalizedEvent)
		})
		seqs = append(seqs, Sequence{ActorID: actor, Events: evs})
	}
	return seqs
}
