package catalog

import (
	"context"
	"errors"
	"time"

	"cmipsync/internal/core/logger"
	"cmipsync/internal/transfer"
	"cmipsync/internal/transport"

	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/cenkalti/backoff"
)

// retryOp runs op with exponential backoff, at most maxRetries extra times.
// With maxRetries <= 0 op runs exactly once. Errors that can't improve on a
// retry end the loop and are returned as is.
func retryOp(ctx context.Context, log *logger.Logger, maxRetries int, what string, op func() error) error {
	if maxRetries <= 0 {
		return op()
	}
	var permanent error
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(maxRetries)), ctx)
	err := backoff.RetryNotify(
		func() error {
			err := op()
			if err != nil && !retryable(err) {
				permanent = err
				return nil
			}
			return err
		},
		b,
		func(err error, d time.Duration) {
			log.Warn("Request failed, retrying", "what", what, "error", err, "in", d)
		},
	)
	if permanent != nil {
		return permanent
	}
	return err
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	// The index published a different digest; downloading again gets the same bytes.
	var ce *transfer.ChecksumError
	if errors.As(err, &ce) {
		return false
	}
	var se *transport.StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	var rf awserr.RequestFailure
	if errors.As(err, &rf) {
		return rf.StatusCode() == 429 || rf.StatusCode() >= 500
	}
	return true
}
