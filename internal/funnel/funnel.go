// Package funnel attributes session events to the canonical learning funnel
// (initialized, experienced, progressed, completed) and aggregates stage
// conversion across sessions.
package funnel

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/devlens/devlens/internal/session"
	"github.com/devlens/devlens/pkg/types"
)

// Stage is a canonical funnel stage.
type Stage string

const (
	StageInitialized Stage = "initialized"
	StageExperienced Stage = "experienced"
	StageProgressed  Stage = "progressed"
	StageCompleted   Stage = "completed"
)

// Stages is the canonical stage order.
var Stages = []Stage{StageInitialized, StageExperienced, StageProgressed, StageCompleted}

// stageKeywords maps each stage to the verb fragments that reach it.
var stageKeywords = map[Stage][]string{
	StageInitialized: {"initialized"},
	StageExperienced: {"experienced", "interacted", "attempted"},
	StageProgressed:  {"progressed", "answered"},
	StageCompleted:   {"completed", "passed", "submitted"},
}

// StageOf maps a verb to its stage. The verb is lowercased and matched by
// substring against each stage's keywords in canonical order.
func StageOf(verb string) (Stage, bool) {
	v := strings.ToLower(strings.TrimSpace(verb))
	if v == "" {
		return "", false
	}
	for _, st := range Stages {
		for _, kw := range stageKeywords[st] {
			if strings.Contains(v, kw) {
				return st, true
			}
		}
	}
	return "", false
}

// Progress reports how many stages one session reached, in order. Stage i is
// reached when some event maps to it at or after the timestamp that reached
// stage i-1. Events without a parseable timestamp are accepted at any
// position and do not move the cursor. Scanning stops at the first stage not
// reached.
func Progress(s *session.Session) int {
	evs := make([]types.ClassifiedEvent, len(s.Events))
	copy(evs, s.Events)
	sort.SliceStable(evs, func(i, j int) bool {
		return types.LessByTime(evs[i].NormalizedEvent, evs[j].NormalizedEvent)
	})

	stages := make([]Stage, len(evs))
	matched := make([]bool, len(evs))
	for i, e := range evs {
		stages[i], matched[i] = StageOf(e.Verb)
	}

	var cursor time.Time // zero means unbounded below
	reached := 0
	for _, st := range Stages {
		hit := -1
		for i, e := range evs {
			if !matched[i] || stages[i] != st {
				continue
			}
			if cursor.IsZero() || !e.HasTimestamp() || !e.Timestamp.Before(cursor) {
				hit = i
				break
			}
		}
		if hit < 0 {
			break
		}
		reached++
		if evs[hit].HasTimestamp() {
			cursor = evs[hit].Timestamp
		}
	}
	return reached
}

// Steps aggregates per-stage session counts with conversion rate relative
// to the first stage and drop-off relative to the previous stage. Both are
// rounded to 4 decimals and are 0 when their denominator is 0.
func Steps(sessions []*session.Session) []types.FunnelStep {
	counts := make([]int, len(Stages))
	for _, s := range sessions {
		n := Progress(s)
		for i := 0; i < n; i++ {
			counts[i]++
		}
	}
	return StepsFromCounts(counts)
}

// StepsFromCounts builds funnel steps from per-stage counts.
func StepsFromCounts(counts []int) []types.FunnelStep {
	steps := make([]types.FunnelStep, len(Stages))
	first := 0
	if len(counts) > 0 {
		first = counts[0]
	}
	for i, st := range Stages {
		c := 0
		if i < len(counts) {
			c = counts[i]
		}
		step := types.FunnelStep{Stage: string(st), Count: c}
		if first > 0 {
			step.Rate = session.Round(float64(c)/float64(first), 4)
		}
		if i > 0 && counts[i-1] > 0 {
			step.DropOff = session.Round(1-float64(c)/float64(counts[i-1]), 4)
		}
		steps[i] = step
	}
	return steps
}

// Calculator runs session reconstruction and funnel attribution together.
type Calculator struct {
	sessions *session.Reconstructor
}

// NewCalculator creates a calculator over a session reconstructor.
func NewCalculator(r *session.Reconstructor) *Calculator {
	return &Calculator{sessions: r}
}

// Calculate reconstructs sessions from events and returns funnel and
// session metrics.
func (c *Calculator) Calculate(ctx context.Context, events []types.ClassifiedEvent) (*types.FunnelResult, error) {
	sessions, err := c.sessions.Reconstruct(ctx, events)
	if err != nil {
		return nil, err
	}
	m := session.Summarize(sessions)
	return &types.FunnelResult{
		FunnelSteps:              Steps(sessions),
		AvgSessionDuration:       m.AvgSessionDuration,
		TotalSessions:            m.TotalSessions,
		AvgEventsPerSession:      m.AvgEventsPerSession,
		SessionDurationHistogram: m.Histogram,
	}, nil
}
