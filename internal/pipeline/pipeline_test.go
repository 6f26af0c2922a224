package pipeline

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dlerrors "github.com/devlens/devlens/internal/errors"
	"github.com/devlens/devlens/pkg/types"
)

const xapi = "http://adlnet.gov/expapi/verbs/"

var fixedNow = func() time.Time { return time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC) }

func row(actor, verb, object, ts string) types.RawEvent {
	return types.RawEvent{"actor_id": actor, "verb": xapi + verb, "object": object, "timestamp": ts}
}

func sampleRows() []types.RawEvent {
	return []types.RawEvent{
		row("u1", "viewed", "/auth/dashboard", "2025-03-01T09:00:00Z"),
		row("u1", "initialized", "/course/week/1/quiz/1", "2025-03-01T09:01:00Z"),
		row("u1", "answered", "/course/week/1/quiz/1", "2025-03-01T09:02:00Z"),
		row("u1", "completed", "/course/week/1/quiz/1", "2025-03-01T09:05:00Z"),
		row("u2", "viewed", "/auth/dashboard", "2025-03-01T10:00:00Z"),
		row("u2", "initialized", "/course/week/1/quiz/1", "2025-03-01T10:03:00Z"),
		row("u2", "viewed", "/public/landing", "2025-03-01T10:04:00Z"),
	}
}

type recorder struct {
	mu    sync.Mutex
	stats []RunStats
}

func (r *recorder) ObserveRun(s RunStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats = append(r.stats, s)
}

func TestRun_FullBatch(t *testing.T) {
	rec := &recorder{}
	a := New(Options{Workers: 2, Now: fixedNow, Observer: rec})

	out, err := a.Run(context.Background(), sampleRows())
	require.NoError(t, err)

	assert.Equal(t, 6, out.RecordCount)
	assert.Equal(t, 6, out.ClassifiedCount)
	assert.Equal(t, 7, out.RowCount)
	assert.Equal(t, fixedNow(), out.GeneratedAt)

	require.NotNil(t, out.LSA)
	assert.Equal(t, []string{"DAS", "QUIZ_ANSWER", "QUIZ_START", "QUIZ_SUBMIT"}, out.LSA.AllBehaviors)
	assert.Equal(t, 2, out.LSA.Observed["DAS"]["QUIZ_START"])
	assert.Equal(t, 4, out.LSA.Totals.GrandTotal)

	require.NotNil(t, out.Funnel)
	assert.Equal(t, 2, out.Funnel.TotalSessions)
	assert.Equal(t, 2, out.Funnel.FunnelSteps[0].Count)

	require.NotNil(t, out.Overview)
	assert.Equal(t, 7, out.Overview.TotalEvents)
	assert.Equal(t, 2, out.Overview.ActiveUsers)

	require.Len(t, rec.stats, 1)
	assert.Equal(t, 1, rec.stats[0].Unclassified)
	assert.Equal(t, 2, rec.stats[0].Behaviors["DAS"])
	assert.NoError(t, rec.stats[0].Err)
}

func TestRun_Deterministic(t *testing.T) {
	a := New(Options{Workers: 4, Now: fixedNow})
	first, err := a.Run(context.Background(), sampleRows())
	require.NoError(t, err)
	want, _ := json.Marshal(first)

	for i := 0; i < 5; i++ {
		out, err := a.Run(context.Background(), sampleRows())
		require.NoError(t, err)
		got, _ := json.Marshal(out)
		assert.Equal(t, string(want), string(got))
	}
}

func TestRun_EmptyBatch(t *testing.T) {
	out, err := New(Options{Now: fixedNow}).Run(context.Background(), []types.RawEvent{})
	require.NoError(t, err)

	assert.Empty(t, out.LSA.AllBehaviors)
	assert.Equal(t, 0, out.LSA.Totals.GrandTotal)
	assert.Empty(t, out.LSA.SignificantTransitions)
	assert.Equal(t, 0, out.Funnel.TotalSessions)
	require.Len(t, out.Funnel.SessionDurationHistogram, 6)
	for _, b := range out.Funnel.SessionDurationHistogram {
		assert.Zero(t, b.Count)
	}
}

func TestRun_InvalidInput(t *testing.T) {
	rec := &recorder{}
	a := New(Options{Observer: rec})

	_, err := a.Run(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, dlerrors.CodeInvalidInput, dlerrors.GetCode(err))

	_, err = a.Run(context.Background(), []types.RawEvent{
		{"verb": xapi + "viewed", "object": "/auth/dashboard"},
		{"verb": xapi + "viewed", "object": "/auth/dashboard"},
	})
	require.Error(t, err)
	assert.Equal(t, dlerrors.CodeInvalidInput, dlerrors.GetCode(err))
	assert.True(t, dlerrors.IsClientError(err))

	require.Len(t, rec.stats, 2)
	assert.Error(t, rec.stats[1].Err)
}

func TestRun_NothingClassified(t *testing.T) {
	out, err := New(Options{Now: fixedNow}).Run(context.Background(), []types.RawEvent{
		row("u1", "initialized", "/public/landing", "2025-03-01T09:00:00Z"),
		row("u1", "experienced", "/public/landing", "2025-03-01T09:01:00Z"),
	})
	require.NoError(t, err)

	assert.Equal(t, 0, out.ClassifiedCount)
	assert.Equal(t, 2, out.RowCount)
	assert.Empty(t, out.LSA.AllBehaviors)
	assert.Equal(t, 0, out.LSA.Totals.GrandTotal)
	assert.Equal(t, 1, out.Funnel.TotalSessions)
	assert.Equal(t, 1, out.Funnel.FunnelSteps[1].Count)
	assert.Equal(t, 2, out.Overview.TotalEvents)

	err = RequireClassified(out)
	require.Error(t, err)
	assert.Equal(t, dlerrors.CodeNoClassifiedRows, dlerrors.GetCode(err))
	assert.True(t, dlerrors.IsClientError(err))
}

func TestRequireClassified(t *testing.T) {
	assert.NoError(t, RequireClassified(&types.Analysis{}))
	assert.NoError(t, RequireClassified(&types.Analysis{RowCount: 3, ClassifiedCount: 1}))
	assert.Error(t, RequireClassified(&types.Analysis{RowCount: 3}))
}

func TestRun_FunnelSeesUnclassifiedSteps(t *testing.T) {
	out, err := New(Options{Now: fixedNow}).Run(context.Background(), []types.RawEvent{
		row("u1", "initialized", "/course/week/1/quiz/1", "2025-03-01T09:00:00Z"),
		row("u1", "experienced", "/course/lesson/1", "2025-03-01T09:01:00Z"),
		row("u1", "answered", "/course/week/1/quiz/1", "2025-03-01T09:02:00Z"),
		row("u1", "completed", "/course/week/1/quiz/1", "2025-03-01T09:03:00Z"),
	})
	require.NoError(t, err)

	assert.Equal(t, 3, out.ClassifiedCount)
	assert.Equal(t, 3, out.RecordCount)
	assert.Equal(t, 4, out.RowCount)

	require.Len(t, out.Funnel.FunnelSteps, 4)
	for i, step := range out.Funnel.FunnelSteps {
		assert.Equal(t, 1, step.Count, "stage %d (%s)", i, step.Stage)
	}
	assert.Equal(t, 1, out.Funnel.TotalSessions)
	assert.Equal(t, 4.0, out.Funnel.AvgEventsPerSession)

	// the lesson view is not part of any behavior transition
	assert.Equal(t, 1, out.LSA.Observed["QUIZ_START"]["QUIZ_ANSWER"])
	assert.Equal(t, 2, out.LSA.Totals.GrandTotal)
}

func TestRun_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var rows []types.RawEvent
	for i := 0; i < 50; i++ {
		actor := string(rune('a' + i%26))
		rows = append(rows, row(actor+"x", "viewed", "/auth/dashboard", "2025-03-01T09:00:00Z"))
	}
	_, err := New(Options{Workers: 4}).Run(ctx, rows)
	assert.ErrorIs(t, err, context.Canceled)
}
