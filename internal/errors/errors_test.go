package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"nil", nil, ""},
		{"typed error", New(NotFound, "repository %s", "r:abc"), NotFound},
		{"wrapped cause", Wrap(EmbeddingService, stderrors.New("connection refused"), "embedding"), EmbeddingService},
		{"typed error behind fmt.Errorf", fmt.Errorf("outer: %w", New(Timeout, "deadline")), Timeout},
		{"plain error", stderrors.New("boom"), InternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.want {
				t.Errorf("CodeOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIs(t *testing.T) {
	err := New(AlreadyInProgress, "indexing already running")
	if !Is(err, AlreadyInProgress) {
		t.Error("Is() = false for matching code")
	}
	if Is(err, NotFound) {
		t.Error("Is() = true for non-matching code")
	}
	if Is(nil, NotFound) {
		t.Error("Is(nil) = true")
	}
}

func TestErrorMessage(t *testing.T) {
	err := New(InvalidArgument, "maxResults must be positive, got %d", -1)
	msg := err.Error()
	if !strings.Contains(msg, "INVALID_ARGUMENT") {
		t.Errorf("message %q missing code", msg)
	}
	if !strings.Contains(msg, "got -1") {
		t.Errorf("message %q missing formatted detail", msg)
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stderrors.New("no such file")
	err := Wrap(DecodeError, cause, "reading %s", "main.go")
	if !stderrors.Is(err, cause) {
		t.Error("wrapped cause not reachable via errors.Is")
	}
	if !strings.Contains(err.Error(), "no such file") {
		t.Errorf("message %q missing cause", err.Error())
	}
}

func TestWithDetails(t *testing.T) {
	err := New(GraphCorruption, "dangling edge").WithDetails(map[string]string{"from": "a", "to": "b"})
	details, ok := err.Details.(map[string]string)
	if !ok || details["to"] != "b" {
		t.Errorf("details = %#v", err.Details)
	}
}
