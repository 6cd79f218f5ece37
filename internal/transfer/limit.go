package transfer

import (
	"context"

	"cmipsync/internal/core/types"

	"github.com/dustin/go-humanize"
	"golang.org/x/time/rate"
)

const (
	DefaultConcurrency = 4
	DefaultRateBurst   = 1 * humanize.MiByte
)

// NewRateLimiter returns a byte limiter shared by all concurrent downloads
// of one catalog client. A zero rate means unlimited.
func NewRateLimiter(rateLimit types.Bytes, concurrency int) *rate.Limiter {
	rateInt := rateLimit.Bytes()

	if rateInt == 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if concurrency < 1 {
		concurrency = 1
	}

	burstSize := int(DefaultRateBurst) * concurrency

	// Ensure burst is at least 1 byte and no more than rateInt/10
	if burstSize > int(rateInt/10) {
		burstSize = int(rateInt / 10)
	}
	if burstSize < 1 {
		burstSize = 1
	}

	return rate.NewLimiter(rate.Limit(rateInt), burstSize)
}

// waitN waits for n tokens in burst-sized steps; WaitN rejects requests
// larger than the burst outright.
func waitN(ctx context.Context, limiter *rate.Limiter, n int) error {
	if limiter == nil || limiter.Limit() == rate.Inf {
		return nil
	}
	burst := limiter.Burst()
	for n > 0 {
		step := min(n, burst)
		if err := limiter.WaitN(ctx, step); err != nil {
			return err
		}
		n -= step
	}
	return nil
}
