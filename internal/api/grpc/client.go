package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/devlens/devlens/pkg/types"
)

// Client is a typed client for the analysis service.
type Client struct {
	conn grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// WithRequestID attaches a request id that the server echoes in logs and responses.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, "x-request-id", requestID)
}

func (c *Client) call(ctx context.Context, method string, req, resp interface{}) error {
	in, err := toStruct(req)
	if err != nil {
		return err
	}
	out := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, method, in, out); err != nil {
		return err
	}
	return fromStruct(out, resp)
}

// Analyze runs the pipeline remotely.
func (c *Client) Analyze(ctx context.Context, sourceFile string, rows []types.RawEvent, save bool) (*AnalyzeResponse, error) {
	if rows == nil {
		rows = []types.RawEvent{}
	}
	out := &AnalyzeResponse{}
	if err := c.call(ctx, methodAnalyze, AnalyzeRequest{SourceFile: sourceFile, Rows: rows, Save: save}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetAnalysis fetches a stored analysis.
func (c *Client) GetAnalysis(ctx context.Context, id string) (*GetResponse, error) {
	out := &GetResponse{}
	if err := c.call(ctx, methodGetAnalysis, GetRequest{ID: id}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListAnalyses lists stored analyses, newest first.
func (c *Client) ListAnalyses(ctx context.Context, limit, offset int) ([]*types.AnalysisRecord, error) {
	out := &ListResponse{}
	if err := c.call(ctx, methodListAnalyses, ListRequest{Limit: limit, Offset: offset}, out); err != nil {
		return nil, err
	}
	return out.Analyses, nil
}

// DeleteAnalysis removes a stored analysis.
func (c *Client) DeleteAnalysis(ctx context.Context, id string) error {
	return c.call(ctx, methodDeleteAnalysis, GetRequest{ID: id}, &DeleteResponse{})
}
