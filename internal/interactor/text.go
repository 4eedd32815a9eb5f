// internal/interactor/text.go
package interactor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrTextNotShown is returned by WaitForText when the element never shows the
// wanted text within the bound.
var ErrTextNotShown = errors.New("text not shown")

// WaitForText re-reads the element at loc every interval until its text
// contains want (case-insensitively) or timeout elapses, and returns the last
// text read. Read errors are treated like a stale read and retried.
func (i *Interactor) WaitForText(ctx context.Context, loc Locator, want string, timeout, interval time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = i.opts.CandidateTimeout
	}
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	if interval > timeout/2 {
		interval = timeout / 2
	}

	waitCtx, cancel := expiring(ctx, timeout)
	defer cancel()

	el := i.page.Locate(loc)
	limiter := rate.NewLimiter(rate.Every(interval), 1)
	var last string
	var lastErr error
	for limiter.Wait(waitCtx) == nil {
		text, err := el.Text(waitCtx)
		if err != nil {
			if waitCtx.Err() != nil {
				break
			}
			lastErr = err
			i.logger.Debug("Text read failed; retrying.", zap.Stringer("locator", loc), zap.Error(err))
			continue
		}
		last, lastErr = text, nil
		if strings.Contains(strings.ToLower(text), strings.ToLower(want)) {
			return text, nil
		}
	}

	if err := ctx.Err(); err != nil {
		return last, fmt.Errorf("text wait canceled: %w", err)
	}
	if lastErr != nil {
		return last, fmt.Errorf("%w: %q within %v on %s (last read: %v)", ErrTextNotShown, want, timeout, loc, lastErr)
	}
	return last, fmt.Errorf("%w: %q within %v on %s (last text %q)", ErrTextNotShown, want, timeout, loc, last)
}
