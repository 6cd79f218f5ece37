package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"cmipsync/internal/core/logger"
	"cmipsync/internal/transfer"
	"cmipsync/internal/transport"
)

func TestRetryOpZeroRetriesRunsOnce(t *testing.T) {
	calls := 0
	transient := &transport.StatusError{Method: "GET", URL: "http://node/search", StatusCode: 503, Status: "503 Service Unavailable"}

	start := time.Now()
	err := retryOp(context.Background(), logger.Discard(), 0, "search", func() error {
		calls++
		return transient
	})
	if !errors.Is(err, transient) {
		t.Fatalf("expected the transient error back, got %v", err)
	}
	if calls != 1 {
		t.Errorf("op called %d times, want 1", calls)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("zero retries still waited %s", elapsed)
	}
}

func TestRetryOpPermanentErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"not found", &transport.StatusError{StatusCode: 404, Status: "404 Not Found"}},
		{"checksum", &transfer.ChecksumError{Path: "f.nc", Expected: "aa", Actual: "bb"}},
		{"canceled", context.Canceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := retryOp(context.Background(), logger.Discard(), 3, "fetch", func() error {
				calls++
				return tt.err
			})
			if !errors.Is(err, tt.err) {
				t.Fatalf("expected %v, got %v", tt.err, err)
			}
			if calls != 1 {
				t.Errorf("op called %d times, want 1", calls)
			}
		})
	}
}

func TestRetryOpRecoversFromTransient(t *testing.T) {
	calls := 0
	err := retryOp(context.Background(), logger.Discard(), 2, "search", func() error {
		calls++
		if calls == 1 {
			return &transport.StatusError{StatusCode: 429, Status: "429 Too Many Requests"}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success after one retry, got %v", err)
	}
	if calls != 2 {
		t.Errorf("op called %d times, want 2", calls)
	}
}

func TestRetryOpBoundedAttempts(t *testing.T) {
	calls := 0
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err := retryOp(ctx, logger.Discard(), 1, "search", func() error {
		calls++
		return &transport.StatusError{StatusCode: 502, Status: "502 Bad Gateway"}
	})
	if err == nil {
		t.Fatal("expected the last error")
	}
	if calls != 2 {
		t.Errorf("op called %d times, want 2", calls)
	}
}
