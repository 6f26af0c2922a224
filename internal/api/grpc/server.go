package grpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	dlerrors "github.com/devlens/devlens/internal/errors"
	"github.com/devlens/devlens/internal/pipeline"
	"github.com/devlens/devlens/pkg/types"
)

// Analyzer runs the analysis pipeline over a batch.
type Analyzer interface {
	Run(ctx context.Context, rows []types.RawEvent) (*types.Analysis, error)
}

// ResultStore persists analyses.
type ResultStore interface {
	Create(ctx context.Context, sourceFile string, analysis *types.Analysis) (*types.AnalysisRecord, error)
	Get(ctx context.Context, id string) (*types.AnalysisRecord, *types.Analysis, error)
	List(ctx context.Context, limit, offset int) ([]*types.AnalysisRecord, error)
	Delete(ctx context.Context, id string) error
}

// AnalyzeRequest is the Struct shape accepted by Analyze.
type AnalyzeRequest struct {
	SourceFile string           `json:"sourceFile"`
	Rows       []types.RawEvent `json:"rows"`
	Save       bool             `json:"save"`
}

// AnalyzeResponse is the Struct shape returned by Analyze.
type AnalyzeResponse struct {
	ID        string          `json:"id,omitempty"`
	RequestID string          `json:"request_id"`
	Analysis  *types.Analysis `json:"analysis"`
}

// GetRequest identifies one analysis.
type GetRequest struct {
	ID string `json:"id"`
}

// GetResponse is the Struct shape returned by GetAnalysis.
type GetResponse struct {
	Record   *types.AnalysisRecord `json:"record"`
	Analysis *types.Analysis       `json:"analysis"`
}

// ListRequest pages through stored analyses.
type ListRequest struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// ListResponse is the Struct shape returned by ListAnalyses.
type ListResponse struct {
	Analyses []*types.AnalysisRecord `json:"analyses"`
}

// DeleteResponse is the Struct shape returned by DeleteAnalysis.
type DeleteResponse struct {
	Success bool `json:"success"`
}

// DefaultSourceFile names analyses saved without a source file.
const DefaultSourceFile = "grpc-upload"

// AnalysisServer implements AnalysisServiceServer.
type AnalysisServer struct {
	analyzer Analyzer
	store    ResultStore
}

// NewAnalysisServer creates a new gRPC analysis server.
func NewAnalysisServer(analyzer Analyzer, store ResultStore) *AnalysisServer {
	return &AnalysisServer{analyzer: analyzer, store: store}
}

// Analyze runs the pipeline and optionally saves the result.
func (s *AnalysisServer) Analyze(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	requestID := extractRequestID(ctx)

	var req AnalyzeRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	if req.Rows == nil {
		return nil, status.Error(codes.InvalidArgument, "rows is required")
	}

	analysis, err := s.analyzer.Run(ctx, req.Rows)
	if err == nil {
		err = pipeline.RequireClassified(analysis)
	}
	if err != nil {
		return nil, toStatus(requestID, err)
	}

	resp := AnalyzeResponse{RequestID: requestID, Analysis: analysis}
	if req.Save {
		name := strings.TrimSpace(req.SourceFile)
		if name == "" {
			name = DefaultSourceFile
		}
		rec, err := s.store.Create(ctx, name, analysis)
		if err != nil {
			return nil, toStatus(requestID, err)
		}
		resp.ID = rec.ID
	}
	return toStruct(resp)
}

// GetAnalysis returns a stored analysis.
func (s *AnalysisServer) GetAnalysis(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	requestID := extractRequestID(ctx)

	var req GetRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}

	rec, analysis, err := s.store.Get(ctx, req.ID)
	if err != nil {
		return nil, toStatus(requestID, err)
	}
	return toStruct(GetResponse{Record: rec, Analysis: analysis})
}

// ListAnalyses pages through stored analyses, newest first.
func (s *AnalysisServer) ListAnalyses(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	requestID := extractRequestID(ctx)

	var req ListRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	if req.Limit < 0 || req.Offset < 0 {
		return nil, status.Error(codes.InvalidArgument, "limit and offset must be non-negative")
	}

	records, err := s.store.List(ctx, req.Limit, req.Offset)
	if err != nil {
		return nil, toStatus(requestID, err)
	}
	return toStruct(ListResponse{Analyses: records})
}

// DeleteAnalysis removes a stored analysis.
func (s *AnalysisServer) DeleteAnalysis(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	requestID := extractRequestID(ctx)

	var req GetRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	if err := s.store.Delete(ctx, req.ID); err != nil {
		return nil, toStatus(requestID, err)
	}
	return toStruct(DeleteResponse{Success: true})
}

// toStatus maps a domain error onto a gRPC status.
func toStatus(requestID string, err error) error {
	switch dlerrors.KindOf(err) {
	case dlerrors.KindNotFound:
		return status.Error(codes.NotFound, err.Error())
	case dlerrors.KindInvalid:
		return status.Error(codes.InvalidArgument, err.Error())
	case dlerrors.KindTimeout:
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		log.Printf("gRPC: request %s failed: %v", requestID, err)
		return status.Error(codes.Internal, err.Error())
	}
}

// toStruct converts a JSON-shaped value to a Struct.
func toStruct(v interface{}) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	return out, nil
}

// fromStruct decodes a Struct into a JSON-tagged value.
func fromStruct(in *structpb.Struct, v interface{}) error {
	if in == nil {
		return fmt.Errorf("empty message")
	}
	data, err := json.Marshal(in.AsMap())
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// extractRequestID extracts or generates a request ID from the gRPC context.
func extractRequestID(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if ids := md.Get("x-request-id"); len(ids) > 0 {
			return ids[0]
		}
	}
	return uuid.New().String()
}
