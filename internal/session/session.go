// Package session reconstructs per-actor sessions from classified events and
// summarizes their durations.
package session

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/devlens/devlens/pkg/types"
)

// DefaultGap is the inactivity gap after which a new session starts.
const DefaultGap = 30 * time.Minute

// Session is one contiguous burst of an actor's activity.
type Session struct {
	// Key is unique across the batch: actor id plus explicit or auto suffix.
	Key     string
	ActorID string
	// SessionID is the explicit identifier that opened the session, if any.
	SessionID string
	Events    []types.ClassifiedEvent
	// Start and End span the parseable timestamps; both zero when none parse.
	Start time.Time
	End   time.Time
}

// Duration returns End - Start, or 0 when the session has no timestamps.
func (s *Session) Duration() time.Duration {
	if s.Start.IsZero() || s.End.IsZero() || s.End.Before(s.Start) {
		return 0
	}
	return s.End.Sub(s.Start)
}

// actorState is the fold state carried through one actor's events.
type actorState struct {
	last          time.Time
	lastSessionID string
	counter       int
	explicitSeen  map[string]int
	current       *Session
}

// Reconstructor splits events into sessions.
type Reconstructor struct {
	gap     time.Duration
	workers int
}

// NewReconstructor creates a reconstructor. A non-positive gap selects
// DefaultGap; workers below 1 runs actors sequentially.
func NewReconstructor(gap time.Duration, workers int) *Reconstructor {
	if gap <= 0 {
		gap = DefaultGap
	}
	return &Reconstructor{gap: gap, workers: workers}
}

// Gap returns the inactivity threshold in use.
func (r *Reconstructor) Gap() time.Duration { return r.gap }

// Reconstruct groups events by actor and folds each actor's time-ordered
// events into sessions. A new session starts on the actor's first event,
// when an explicit session id differs from the last one seen, or when more
// than the gap elapsed since the previous parseable timestamp. Sessions are
// returned ordered by actor, then by creation.
func (r *Reconstructor) Reconstruct(ctx context.Context, events []types.ClassifiedEvent) ([]*Session, error) {
	groups := groupByActor(events)

	results := make([][]*Session, len(groups))
	if r.workers <= 1 || len(groups) <= 1 {
		for i, g := range groups {
			results[i] = r.foldActor(g)
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.workers)
		for i := range groups {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				results[i] = r.foldActor(groups[i])
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	var out []*Session
	for _, rs := range results {
		out = append(out, rs...)
	}
	return out, nil
}

// foldActor walks one actor's sorted events.
func (r *Reconstructor) foldActor(evs []types.ClassifiedEvent) []*Session {
	var sessions []*Session
	st := actorState{explicitSeen: make(map[string]int)}

	for _, ev := range evs {
		explicitChanged := ev.SessionID != "" && ev.SessionID != st.lastSessionID
		hasGap := !st.last.IsZero() && ev.HasTimestamp() && ev.Timestamp.Sub(st.last) > r.gap

		if st.current == nil || explicitChanged || hasGap {
			st.counter++
			st.current = &Session{
				Key:       r.key(ev, &st),
				ActorID:   ev.ActorID,
				SessionID: ev.SessionID,
			}
			sessions = append(sessions, st.current)
		}

		if ev.HasTimestamp() {
			st.last = ev.Timestamp
		}
		if ev.SessionID != "" {
			st.lastSessionID = ev.SessionID
		}

		s := st.current
		s.Events = append(s.Events, ev)
		if ev.HasTimestamp() {
			if s.Start.IsZero() || ev.Timestamp.Before(s.Start) {
				s.Start = ev.Timestamp
			}
			if s.End.IsZero() || ev.Timestamp.After(s.End) {
				s.End = ev.Timestamp
			}
		}
	}
	return sessions
}

// key names a new session. Re-entering an explicit session id after a break
// gets a numbered suffix so the two bursts stay separate sessions.
func (r *Reconstructor) key(ev types.ClassifiedEvent, st *actorState) string {
	if ev.SessionID == "" {
		return fmt.Sprintf("%s__auto_%d", ev.ActorID, st.counter)
	}
	n := st.explicitSeen[ev.SessionID]
	st.explicitSeen[ev.SessionID] = n + 1
	if n == 0 {
		return fmt.Sprintf("%s__explicit_%s", ev.ActorID, ev.SessionID)
	}
	return fmt.Sprintf("%s__explicit_%s_%d", ev.ActorID, ev.SessionID, n+1)
}

// groupByActor returns per-actor event slices, actors sorted, each slice in
// time order with unparseable timestamps last.
func groupByActor(events []types.ClassifiedEvent) [][]types.ClassifiedEvent {
	byActor := make(map[string][]types.ClassifiedEvent)
	for _, ev := range events {
		byActor[ev.ActorID] = append(byActor[ev.ActorID], ev)
	}
	actors := make([]string, 0, len(byActor))
	for a := range byActor {
		actors = append(actors, a)
	}
	sort.Strings(actors)

	groups := make([][]types.ClassifiedEvent, len(actors))
	for i, a := range actors {
		evs := byActor[a]
		sort.SliceStable(evs, func(x, y int) bool {
			return types.LessByTime(evs[x].NormalizedEvent, evs[y].NormalizedEvent)
		})
		groups[i] = evs
	}
	return groups
}
