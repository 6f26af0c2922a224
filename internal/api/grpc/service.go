// Package grpc exposes the analysis service over gRPC. Messages are
// google.protobuf.Struct values carrying the same JSON shapes as the REST API.
package grpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	serviceName          = "devlens.v1.AnalysisService"
	methodAnalyze        = "/" + serviceName + "/Analyze"
	methodGetAnalysis    = "/" + serviceName + "/GetAnalysis"
	methodListAnalyses   = "/" + serviceName + "/ListAnalyses"
	methodDeleteAnalysis = "/" + serviceName + "/DeleteAnalysis"
)

// AnalysisServiceServer is the server API for the analysis service.
type AnalysisServiceServer interface {
	Analyze(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	GetAnalysis(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	ListAnalyses(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	DeleteAnalysis(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

type unaryFunc func(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)

func unaryMethod(name, fullMethod string, call unaryFunc) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := &structpb.Struct{}
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				inReq, ok := req.(*structpb.Struct)
				if !ok {
					return nil, fmt.Errorf("invalid request type")
				}
				return call(ctx, inReq)
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// RegisterAnalysisServiceServer registers impl on server.
func RegisterAnalysisServiceServer(server grpc.ServiceRegistrar, impl AnalysisServiceServer) {
	server.RegisterService(&grpc.ServiceDesc{
		ServiceName: serviceName,
		HandlerType: (*AnalysisServiceServer)(nil),
		Methods: []grpc.MethodDesc{
			unaryMethod("Analyze", methodAnalyze, impl.Analyze),
			unaryMethod("GetAnalysis", methodGetAnalysis, impl.GetAnalysis),
			unaryMethod("ListAnalyses", methodListAnalyses, impl.ListAnalyses),
			unaryMethod("DeleteAnalysis", methodDeleteAnalysis, impl.DeleteAnalysis),
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "devlens/v1/analysis.proto",
	}, impl)
}
