package grpc

import (
	"context"
	"net"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/devlens/devlens/internal/catalog"
	"github.com/devlens/devlens/internal/pipeline"
	"github.com/devlens/devlens/internal/results"
	"github.com/devlens/devlens/internal/storage"
	"github.com/devlens/devlens/pkg/types"
)

const xapi = "http://adlnet.gov/expapi/verbs/"

func newTestClient(t *testing.T) *Client {
	t.Helper()
	dir := t.TempDir()

	cat, err := catalog.NewCatalog(filepath.Join(dir, "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { cat.Close() })
	local, err := storage.NewLocalStorage(filepath.Join(dir, "storage"))
	require.NoError(t, err)

	srv := grpc.NewServer()
	RegisterAnalysisServiceServer(srv, NewAnalysisServer(
		pipeline.New(pipeline.Options{Workers: 2}),
		results.NewStore(cat, local),
	))

	lis := bufconn.Listen(1 << 20)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return NewClient(conn)
}

func rows() []types.RawEvent {
	return []types.RawEvent{
		{"actor_id": "u1", "verb": xapi + "viewed", "object": "/auth/dashboard", "timestamp": "2025-03-01T09:00:00Z"},
		{"actor_id": "u1", "verb": xapi + "initialized", "object": "/course/week/1/quiz/1", "timestamp": "2025-03-01T09:01:00Z"},
		{"actor_id": "u2", "verb": xapi + "viewed", "object": "/auth/dashboard", "timestamp": "2025-03-01T10:00:00Z"},
	}
}

func TestAnalysisService_RoundTrip(t *testing.T) {
	client := newTestClient(t)
	ctx := WithRequestID(context.Background(), "req-1")

	resp, err := client.Analyze(ctx, "grpc.csv", rows(), true)
	require.NoError(t, err)
	assert.Equal(t, "req-1", resp.RequestID)
	require.True(t, types.ValidAnalysisID(resp.ID))
	require.NotNil(t, resp.Analysis)
	assert.Equal(t, 3, resp.Analysis.RecordCount)
	assert.Equal(t, 1, resp.Analysis.LSA.Observed["DAS"]["QUIZ_START"])

	got, err := client.GetAnalysis(ctx, resp.ID)
	require.NoError(t, err)
	assert.Equal(t, "grpc.csv", got.Record.SourceFile)
	assert.Equal(t, resp.Analysis.LSA, got.Analysis.LSA)
	assert.Equal(t, resp.Analysis.Funnel, got.Analysis.Funnel)

	list, err := client.ListAnalyses(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, resp.ID, list[0].ID)

	require.NoError(t, client.DeleteAnalysis(ctx, resp.ID))
	_, err = client.GetAnalysis(ctx, resp.ID)
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestAnalysisService_Errors(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	_, err := client.Analyze(ctx, "", []types.RawEvent{{"verb": "x"}}, false)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.Analyze(ctx, "", []types.RawEvent{
		{"actor_id": "u1", "verb": xapi + "viewed", "object": "/public/landing"},
	}, true)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Contains(t, status.Convert(err).Message(), "NO_CLASSIFIED_ROWS")

	_, err = client.GetAnalysis(ctx, "bogus")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.ListAnalyses(ctx, -1, 0)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	missing, err := types.NewAnalysisID()
	require.NoError(t, err)
	err = client.DeleteAnalysis(ctx, missing)
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestAnalysisService_AnalyzeWithoutSave(t *testing.T) {
	client := newTestClient(t)

	resp, err := client.Analyze(context.Background(), "", rows(), false)
	require.NoError(t, err)
	assert.Empty(t, resp.ID)
	assert.NotEmpty(t, resp.RequestID)
	assert.Equal(t, 3, resp.Analysis.Overview.TotalEvents)
}
