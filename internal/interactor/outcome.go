// internal/interactor/outcome.go
package interactor

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Kind tags how a wait for an outcome ended.
type Kind string

const (
	KindRedirected  Kind = "redirected"
	KindErrorText   Kind = "error_text"
	KindSuccessText Kind = "success_text"
	KindTimedOut    Kind = "timed_out"
)

// Outcome is the tagged result of WaitForOutcome.
type Outcome struct {
	Kind Kind
	// URL is the new location for KindRedirected.
	URL string
	// Matched is the text fragment that matched for the text kinds.
	Matched string
	// PageText is the visible text the match was found in.
	PageText string
	Elapsed  time.Duration
}

func (o Outcome) String() string {
	switch o.Kind {
	case KindRedirected:
		return fmt.Sprintf("Redirected(%s)", o.URL)
	case KindErrorText:
		return fmt.Sprintf("ErrorText(%q)", o.Matched)
	case KindSuccessText:
		return fmt.Sprintf("SuccessText(%q)", o.Matched)
	default:
		return "TimedOut"
	}
}

// OutcomeOptions configures WaitForOutcome.
type OutcomeOptions struct {
	// OriginURL is the URL before the triggering action. When empty the page's
	// current URL is read first.
	OriginURL       string
	SuccessPatterns []*regexp.Regexp
	ErrorPatterns   []*regexp.Regexp
	Timeout         time.Duration
	// PollInterval paces each probe independently.
	PollInterval time.Duration
}

// CompilePatterns compiles a list of regular expressions.
func CompilePatterns(raw []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(raw))
	for _, p := range raw {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

var errObserved = errors.New("outcome observed")

type probeFunc func(ctx context.Context) (Outcome, bool, error)

// WaitForOutcome races a URL probe against a text probe until one observes a
// result or opts.Timeout elapses. Within a single text poll error patterns are
// checked before success patterns, so a page showing both yields KindErrorText.
//
// Reaching the timeout is not an error: it yields KindTimedOut. An error is
// returned only when ctx itself is done.
func (i *Interactor) WaitForOutcome(ctx context.Context, opts OutcomeOptions) (Outcome, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 250 * time.Millisecond
	}
	if opts.OriginURL == "" {
		origin, err := i.page.URL(ctx)
		if err != nil {
			return Outcome{}, fmt.Errorf("failed to read origin url: %w", err)
		}
		opts.OriginURL = origin
	}

	// At least two text checks land inside the wait.
	if opts.PollInterval > opts.Timeout/2 {
		opts.PollInterval = opts.Timeout / 2
	}

	start := time.Now()
	waitCtx, cancel := expiring(ctx, opts.Timeout)
	defer cancel()

	// One slot per probe so neither blocks on send.
	observed := make(chan Outcome, 2)
	g, gctx := errgroup.WithContext(waitCtx)
	g.Go(func() error { return i.runProbe(gctx, "url", opts.PollInterval, i.urlProbe(opts.OriginURL), observed) })
	g.Go(func() error { return i.runProbe(gctx, "text", opts.PollInterval, i.textProbe(opts), observed) })
	_ = g.Wait()

	select {
	case out := <-observed:
		out.Elapsed = time.Since(start)
		i.logger.Debug("Outcome observed.", zap.Stringer("outcome", out), zap.Duration("elapsed", out.Elapsed))
		return out, nil
	default:
	}

	if err := ctx.Err(); err != nil {
		return Outcome{}, fmt.Errorf("outcome wait canceled: %w", err)
	}
	return Outcome{Kind: KindTimedOut, Elapsed: time.Since(start)}, nil
}

// expiring returns a context canceled after d or with parent. It carries no
// deadline: rate.Limiter.Wait refuses a token due after a deadline, which would
// end a poll loop up to one interval early.
func expiring(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	stop := context.AfterFunc(parent, cancel)
	timer := time.AfterFunc(d, cancel)
	return ctx, func() {
		timer.Stop()
		stop()
		cancel()
	}
}

// runProbe polls check at most once per interval until it observes something
// or ctx ends. Check errors are transient (the page may be mid-navigation) and
// only logged.
func (i *Interactor) runProbe(ctx context.Context, name string, interval time.Duration, check probeFunc, observed chan<- Outcome) error {
	limiter := rate.NewLimiter(rate.Every(interval), 1)
	for {
		if err := limiter.Wait(ctx); err != nil {
			return nil
		}
		out, ok, err := check(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			i.logger.Debug("Outcome probe failed; retrying.", zap.String("probe", name), zap.Error(err))
			continue
		}
		if ok {
			observed <- out
			return errObserved
		}
	}
}

func (i *Interactor) urlProbe(origin string) probeFunc {
	return func(ctx context.Context) (Outcome, bool, error) {
		current, err := i.page.URL(ctx)
		if err != nil {
			return Outcome{}, false, err
		}
		if current == "" || current == origin {
			return Outcome{}, false, nil
		}
		return Outcome{Kind: KindRedirected, URL: current}, true, nil
	}
}

func (i *Interactor) textProbe(opts OutcomeOptions) probeFunc {
	return func(ctx context.Context) (Outcome, bool, error) {
		text, err := i.page.VisibleText(ctx)
		if err != nil {
			return Outcome{}, false, err
		}
		if out, ok := ClassifyText(text, opts.ErrorPatterns, opts.SuccessPatterns); ok {
			return out, true, nil
		}
		return Outcome{}, false, nil
	}
}

// ClassifyText checks text against error patterns first, then success patterns.
func ClassifyText(text string, errorPatterns, successPatterns []*regexp.Regexp) (Outcome, bool) {
	if m, ok := firstMatch(text, errorPatterns); ok {
		return Outcome{Kind: KindErrorText, Matched: m, PageText: text}, true
	}
	if m, ok := firstMatch(text, successPatterns); ok {
		return Outcome{Kind: KindSuccessText, Matched: m, PageText: text}, true
	}
	return Outcome{}, false
}

func firstMatch(text string, patterns []*regexp.Regexp) (string, bool) {
	for _, re := range patterns {
		if loc := re.FindStringIndex(text); loc != nil {
			return text[loc[0]:loc[1]], true
		}
	}
	return "", false
}

// WaitForOutcome is the functional form of Interactor.WaitForOutcome.
func WaitForOutcome(ctx context.Context, page Page, opts OutcomeOptions) (Outcome, error) {
	return New(page, Options{}, nil).WaitForOutcome(ctx, opts)
}
