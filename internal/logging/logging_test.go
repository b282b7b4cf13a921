package logging

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

type timeoutError struct{}

func (timeoutError) Error() string { return "timeout" }
func (timeoutError) Timeout() bool { return true }

func TestOperationErrorWrapsCause(t *testing.T) {
	cause := errors.New("boom")
	err := NewOperationError("usecase.detect", "req-1", cause)

	if !errors.Is(err, cause) {
		t.Fatal("expected errors.Is to find the cause")
	}
	if err.Error() != "usecase.detect (request_id=req-1): boom" {
		t.Fatalf("unexpected message: %s", err.Error())
	}
	if NewOperationError("op", "", nil) != nil {
		t.Fatal("expected nil for nil cause")
	}
	if got := NewOperationError("op", "", cause).Error(); got != "op: boom" {
		t.Fatalf("unexpected message without request id: %s", got)
	}
}

func TestOperationOfFindsOutermostOperation(t *testing.T) {
	inner := NewOperationError("repository.save_log", "req-2", errors.New("conn reset"))
	outer := NewOperationError("usecase.save_log", "req-2", inner)

	if got := OperationOf(outer); got != "usecase.save_log" {
		t.Fatalf("expected outermost operation, got %q", got)
	}
	if got := OperationOf(fmt.Errorf("handler: %w", inner)); got != "repository.save_log" {
		t.Fatalf("expected operation through fmt wrapping, got %q", got)
	}
	if got := OperationOf(errors.New("plain")); got != "" {
		t.Fatalf("expected no operation, got %q", got)
	}
}

func TestIsTransient(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("permanent"), false},
		{context.DeadlineExceeded, true},
		{timeoutError{}, true},
		{fmt.Errorf("wrapped: %w", timeoutError{}), true},
	}
	for _, tc := range cases {
		if got := IsTransient(tc.err); got != tc.want {
			t.Errorf("IsTransient(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestNewLoggerAcceptsLevels(t *testing.T) {
	for _, level := range []string{"", "debug", "warn", "nonsense"} {
		logger, err := NewLogger(level)
		if err != nil {
			t.Fatalf("level %q: %v", level, err)
		}
		_ = logger.Sync()
	}
}
