package observability

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dlerrors "github.com/devlens/devlens/internal/errors"
	"github.com/devlens/devlens/internal/pipeline"
)

func TestMetrics_ObserveRun(t *testing.T) {
	bs := NewBehaviorStats(time.Hour)
	m := NewMetrics(bs)

	m.ObserveRun(pipeline.RunStats{
		Rows:         10,
		Classified:   7,
		Unclassified: 3,
		Behaviors:    map[string]int{"DAS": 4, "VID": 3},
		Duration:     20 * time.Millisecond,
	})
	m.ObserveRun(pipeline.RunStats{
		Rows: 2,
		Err:  dlerrors.NewInputError(dlerrors.CodeInvalidInput, "bad"),
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.AnalysesTotal.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AnalysesTotal.WithLabelValues(OutcomeInput)))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.EventsIngested))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.EventsUnclassified))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.BehaviorEvents.WithLabelValues("DAS")))

	assert.Equal(t, int64(1), bs.Runs())
	top := bs.TopBehaviors(1)
	require.Len(t, top, 1)
	assert.Equal(t, "DAS", top[0].Code)
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics(nil)
	m.ObserveHTTP("/v1/analyze", 200)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `devlens_http_requests_total{code="200",route="/v1/analyze"} 1`))
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, OutcomeSuccess},
		{"input", dlerrors.NewInputError(dlerrors.CodeNoClassifiedRows, "x"), OutcomeInput},
		{"timeout", dlerrors.NewAnalysisError(dlerrors.CodeTimeout, "x", context.DeadlineExceeded), OutcomeTimeout},
		{"other", io.ErrUnexpectedEOF, OutcomeError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Outcome(tt.err))
		})
	}
}
