package engine

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// maxThrottleBurst bounds a single limiter reservation, and with it the
// largest read a throttled copy issues.
const maxThrottleBurst = 256 << 10

// newBandwidthLimiter paces the copy phase to bytesPerSec.
func newBandwidthLimiter(bytesPerSec int64) *rate.Limiter {
	return rate.NewLimiter(rate.Limit(bytesPerSec), int(min(bytesPerSec, maxThrottleBurst)))
}

// throttledReader charges every byte read against a limiter shared by
// the whole pass.
type throttledReader struct {
	ctx context.Context
	src io.Reader
	lim *rate.Limiter
}

func (t *throttledReader) Read(p []byte) (int, error) {
	if err := t.ctx.Err(); err != nil {
		return 0, err
	}
	p = p[:min(len(p), t.lim.Burst())]
	n, err := t.src.Read(p)
	if n == 0 {
		return 0, err
	}
	if werr := t.lim.WaitN(t.ctx, n); werr != nil {
		return n, werr
	}
	return n, err
}
