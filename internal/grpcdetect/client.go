package grpcdetect

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/example/plant-scan/internal/detection"
	"github.com/example/plant-scan/internal/logging"
	"github.com/example/plant-scan/internal/remote"
)

// StatusError is a failed gRPC detection call.
type StatusError struct {
	Code    string
	Message string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return "grpc detection failed: " + e.Code + ": " + e.Message
}

// UserMessage returns the server-provided message.
func (e *StatusError) UserMessage() string {
	return e.Message
}

// Client submits detections over gRPC.
type Client struct {
	conn        grpc.ClientConnInterface
	credentials remote.CredentialProvider
	logger      *zap.Logger
}

// Dial returns a ready-to-use client for the detection service at addr.
func Dial(ctx context.Context, addr string, credentials remote.CredentialProvider, logger *zap.Logger, opts ...grpc.DialOption) (*Client, *grpc.ClientConn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	}, opts...)
	conn, err := grpc.DialContext(dialCtx, addr, opts...)
	if err != nil {
		wrapped := logging.NewOperationError("grpcdetect.dial", "", err)
		logger.Error("failed to dial detection service", zap.Error(wrapped), zap.String("addr", addr))
		return nil, nil, wrapped
	}
	return NewClient(conn, credentials, logger), conn, nil
}

// NewClient wraps an existing connection.
func NewClient(conn grpc.ClientConnInterface, credentials remote.CredentialProvider, logger *zap.Logger) *Client {
	return &Client{conn: conn, credentials: credentials, logger: logger.Named("grpc_detector_client")}
}

// Detect implements detection.Detector.
func (c *Client) Detect(ctx context.Context, req detection.Request) (*detection.Record, error) {
	in, err := encodeRequest(req)
	if err != nil {
		return nil, logging.NewOperationError("grpcdetect.encode_request", "", err)
	}

	if c.credentials != nil {
		token, err := c.credentials.Token(ctx)
		if err != nil {
			return nil, logging.NewOperationError("grpcdetect.credentials", "", err)
		}
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
	}

	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, detectMethod, in, out); err != nil {
		st := status.Convert(err)
		c.logger.Error("detection call failed", zap.String("code", st.Code().String()), zap.String("message", st.Message()))
		return nil, &StatusError{Code: st.Code().String(), Message: st.Message()}
	}

	rec, err := decodeRecord(out)
	if err != nil {
		return nil, logging.NewOperationError("grpcdetect.decode_record", "", err)
	}
	return rec, nil
}
