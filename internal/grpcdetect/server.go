package grpcdetect

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/example/plant-scan/internal/auth"
	"github.com/example/plant-scan/internal/detection"
	"github.com/example/plant-scan/internal/logging"
)

const (
	serviceName  = "plantscan.Detector"
	detectMethod = "/" + serviceName + "/Detect"
)

// Handler runs a detection on behalf of an authenticated user.
type Handler interface {
	Detect(ctx context.Context, userID string, req detection.Request) (*detection.Record, error)
}

type detectorServer interface {
	Detect(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*detectorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Detect", Handler: detectHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "plantscan/detector",
}

func detectHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(detectorServer).Detect(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: detectMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(detectorServer).Detect(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// Server exposes a Handler over gRPC.
type Server struct {
	handler Handler
	logger  *zap.Logger
}

// Register attaches the detection service to a gRPC server.
func Register(s *grpc.Server, h Handler, logger *zap.Logger) {
	s.RegisterService(&serviceDesc, &Server{handler: h, logger: logger.Named("grpc_detector")})
}

// NewGRPCServer builds a gRPC server that authenticates every call with v.
func NewGRPCServer(v *auth.Verifier, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.UnaryInterceptor(AuthInterceptor(v)))
	return grpc.NewServer(opts...)
}

// Detect implements the wire-level service.
func (s *Server) Detect(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	userID, ok := auth.GetUserID(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing user")
	}

	req, err := decodeRequest(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	rec, err := s.handler.Detect(ctx, userID, req)
	if err != nil {
		if errors.Is(err, detection.ErrUndecodable) {
			return nil, status.Error(codes.InvalidArgument, "image cannot be decoded")
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, status.FromContextError(err).Err()
		}
		s.logger.Error("detection failed",
			zap.Error(err),
			zap.String("user_id", userID),
			zap.String("failed_operation", logging.OperationOf(err)),
		)
		return nil, status.Error(codes.Internal, "detection failed")
	}

	out, err := encodeRecord(rec)
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to encode record")
	}
	return out, nil
}

// AuthInterceptor validates the bearer token in the "authorization" metadata.
func AuthInterceptor(v *auth.Verifier) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		values := md.Get("authorization")
		if len(values) == 0 {
			return nil, status.Error(codes.Unauthenticated, "authorization metadata required")
		}
		subject, err := v.VerifyHeader(strings.TrimSpace(values[0]))
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}
		return handler(auth.WithUserID(ctx, subject), req)
	}
}
