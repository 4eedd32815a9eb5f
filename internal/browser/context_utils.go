// internal/browser/context_utils.go
package browser

import (
	"context"
	"time"
)

// CombineContext returns a context derived from ctx1 that is also canceled
// when ctx2 is. chromedp keeps the target in ctx1's values, so operations must
// derive from it while honoring the caller's deadline carried by ctx2.
func CombineContext(ctx1, ctx2 context.Context) (context.Context, context.CancelFunc) {
	combinedCtx, cancel := context.WithCancel(ctx1)

	go func() {
		select {
		case <-ctx2.Done():
			cancel()
		case <-combinedCtx.Done():
		}
	}()

	return combinedCtx, cancel
}

// valueOnlyContext keeps a parent's values but drops its deadline and cancellation.
type valueOnlyContext struct {
	context.Context
}

func (valueOnlyContext) Deadline() (deadline time.Time, ok bool) { return }
func (valueOnlyContext) Done() <-chan struct{}                   { return nil }
func (valueOnlyContext) Err() error                              { return nil }

// Detach returns a context that inherits values from ctx but is not canceled with it.
// Cleanup that must outlive a canceled sweep (closing the device tab) runs on it.
func Detach(ctx context.Context) context.Context {
	return valueOnlyContext{ctx}
}
