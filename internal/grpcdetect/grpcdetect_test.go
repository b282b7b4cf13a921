package grpcdetect

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/example/plant-scan/internal/auth"
	"github.com/example/plant-scan/internal/detection"
	"github.com/example/plant-scan/internal/remote"
)

const testSecret = "grpc-secret"

type stubHandler struct {
	userID string
	req    detection.Request
	err    error
}

func (h *stubHandler) Detect(ctx context.Context, userID string, req detection.Request) (*detection.Record, error) {
	h.userID = userID
	h.req = req
	if h.err != nil {
		return nil, h.err
	}
	return &detection.Record{
		ID:         "req-1",
		IsPlant:    true,
		PlantName:  "Lavender",
		Confidence: 0.712,
		Location:   req.Location,
		Timestamp:  req.CapturedAt,
		EntryID:    "lavender",
	}, nil
}

func startServer(t *testing.T, h Handler) *grpc.ClientConn {
	t.Helper()
	listener := bufconn.Listen(1 << 20)
	server := NewGRPCServer(auth.NewVerifier(testSecret, ""))
	Register(server, h, zap.NewNop())
	go func() { _ = server.Serve(listener) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.DialContext(context.Background(), "bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestClientServerRoundTrip(t *testing.T) {
	h := &stubHandler{}
	conn := startServer(t, h)
	token, err := auth.IssueToken(testSecret, "", "user-42", time.Hour)
	if err != nil {
		t.Fatalf("token: %v", err)
	}

	captured := time.Date(2024, 6, 1, 12, 30, 0, 0, time.UTC)
	client := NewClient(conn, remote.StaticToken(token), zap.NewNop())
	rec, err := client.Detect(context.Background(), detection.Request{
		Image:      []byte{0x00, 0x01, 0xFE},
		Location:   &detection.Location{Latitude: 43.7, Longitude: 7.26, Address: "Nice"},
		CapturedAt: captured,
	})
	if err != nil {
		t.Fatalf("detect: %v", err)
	}

	if h.userID != "user-42" {
		t.Fatalf("expected user-42, got %q", h.userID)
	}
	if string(h.req.Image) != string([]byte{0x00, 0x01, 0xFE}) {
		t.Fatalf("image bytes not preserved: %v", h.req.Image)
	}
	if h.req.Location == nil || h.req.Location.Address != "Nice" || !h.req.CapturedAt.Equal(captured) {
		t.Fatalf("unexpected request: %+v", h.req)
	}
	if rec.PlantName != "Lavender" || rec.Confidence != 0.712 || rec.EntryID != "lavender" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.Location == nil || rec.Location.Latitude != 43.7 || !rec.Timestamp.Equal(captured) {
		t.Fatalf("unexpected record location/timestamp: %+v", rec)
	}
}

func TestClientWithoutTokenIsRejected(t *testing.T) {
	conn := startServer(t, &stubHandler{})

	_, err := NewClient(conn, nil, zap.NewNop()).Detect(context.Background(), detection.Request{Image: []byte("x")})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != "Unauthenticated" {
		t.Fatalf("expected Unauthenticated, got %v", err)
	}
}

func TestServerMapsUndecodableImage(t *testing.T) {
	conn := startServer(t, &stubHandler{err: detection.ErrUndecodable})
	token, _ := auth.IssueToken(testSecret, "", "user-1", time.Hour)

	_, err := NewClient(conn, remote.StaticToken(token), zap.NewNop()).Detect(context.Background(), detection.Request{Image: []byte("x")})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != "InvalidArgument" {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
	if statusErr.UserMessage() != "image cannot be decoded" {
		t.Fatalf("unexpected message %q", statusErr.UserMessage())
	}
}

func TestDecodeRequestRequiresImage(t *testing.T) {
	in, _ := encodeRequest(detection.Request{})
	if _, err := decodeRequest(in); err == nil {
		t.Fatal("expected error for empty image")
	}
}
