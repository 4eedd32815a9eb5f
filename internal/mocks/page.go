// File: internal/mocks/page.go
package mocks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/xkilldash9x/devicesweep/internal/interactor"
)

// ErrNotFound is what a FakePage's missing elements report while waiting.
var ErrNotFound = errors.New("element not found")

// pngStub is a minimal PNG signature written in place of real screenshots.
var pngStub = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// FakePage is a scripted, in-memory interactor.Page.
type FakePage struct {
	mu       sync.Mutex
	elements map[string]*FakeElement
	url      string
	text     string

	// URLFunc and TextFunc, when set, replace the static URL and text.
	URLFunc       func() (string, error)
	TextFunc      func() (string, error)
	NavigateErr   error
	ScreenshotErr error
	// OnNavigate runs after every successful Navigate, outside the page lock.
	OnNavigate func(url string)

	navigations []string
	screenshots []string
	locates     []string
}

var _ interactor.Page = (*FakePage)(nil)

// NewFakePage returns an empty page at url.
func NewFakePage(url string) *FakePage {
	return &FakePage{url: url, elements: make(map[string]*FakeElement)}
}

// Add registers el under the textual locator form and returns it.
func (p *FakePage) Add(locator string, el *FakeElement) *FakeElement {
	loc, err := interactor.ParseLocator(locator)
	if err != nil {
		panic(fmt.Sprintf("mocks: bad locator %q: %v", locator, err))
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.elements[loc.String()] = el
	return el
}

func (p *FakePage) SetURL(u string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = u
}

func (p *FakePage) SetText(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.text = s
}

func (p *FakePage) Navigations() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.navigations...)
}

func (p *FakePage) Screenshots() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.screenshots...)
}

// Locates lists every locator looked up, in order.
func (p *FakePage) Locates() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.locates...)
}

func (p *FakePage) Locate(loc interactor.Locator) interactor.Element {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.locates = append(p.locates, loc.String())
	if el, ok := p.elements[loc.String()]; ok {
		return el
	}
	return missingElement{loc: loc}
}

func (p *FakePage) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.navigations = append(p.navigations, url)
	if p.NavigateErr != nil {
		p.mu.Unlock()
		return p.NavigateErr
	}
	p.url = url
	hook := p.OnNavigate
	p.mu.Unlock()

	if hook != nil {
		hook(url)
	}
	return nil
}

func (p *FakePage) URL(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	fn, u := p.URLFunc, p.url
	p.mu.Unlock()
	if fn != nil {
		return fn()
	}
	return u, nil
}

func (p *FakePage) VisibleText(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	fn, text := p.TextFunc, p.text
	p.mu.Unlock()
	if fn != nil {
		return fn()
	}
	return text, nil
}

func (p *FakePage) Screenshot(ctx context.Context, path string) error {
	p.mu.Lock()
	p.screenshots = append(p.screenshots, path)
	err := p.ScreenshotErr
	p.mu.Unlock()
	if err != nil {
		return err
	}
	return os.WriteFile(path, pngStub, 0o644)
}

type missingElement struct {
	loc interactor.Locator
}

func (m missingElement) WaitVisible(context.Context, time.Duration) error {
	return fmt.Errorf("%s: %w", m.loc, ErrNotFound)
}
func (m missingElement) Fill(context.Context, string) error   { return ErrNotFound }
func (m missingElement) Click(context.Context) error          { return ErrNotFound }
func (m missingElement) Text(context.Context) (string, error) { return "", ErrNotFound }

// FakeElement is a scripted interactor.Element.
type FakeElement struct {
	mu sync.Mutex

	// Hidden elements fail WaitVisible immediately.
	Hidden bool
	// VisibleAfter delays visibility; a delay past the wait timeout fails the wait.
	VisibleAfter time.Duration

	FillErr   error
	ClickErr  error
	TextErr   error
	TextValue string

	OnFill  func(value string)
	OnClick func()

	fills  []string
	clicks int
	reads  int
	waits  int
}

var _ interactor.Element = (*FakeElement)(nil)

func (e *FakeElement) WaitVisible(ctx context.Context, timeout time.Duration) error {
	e.mu.Lock()
	e.waits++
	hidden, delay := e.Hidden, e.VisibleAfter
	e.mu.Unlock()

	if hidden {
		return errors.New("element not visible")
	}
	if delay <= 0 {
		return nil
	}
	wait := delay
	if timeout > 0 && timeout < delay {
		wait = timeout
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
	}
	if wait < delay {
		return fmt.Errorf("element not visible after %v", timeout)
	}
	return nil
}

func (e *FakeElement) Fill(ctx context.Context, value string) error {
	e.mu.Lock()
	if e.FillErr != nil {
		err := e.FillErr
		e.mu.Unlock()
		return err
	}
	e.fills = append(e.fills, value)
	hook := e.OnFill
	e.mu.Unlock()
	if hook != nil {
		hook(value)
	}
	return nil
}

func (e *FakeElement) Click(ctx context.Context) error {
	e.mu.Lock()
	if e.ClickErr != nil {
		err := e.ClickErr
		e.mu.Unlock()
		return err
	}
	e.clicks++
	hook := e.OnClick
	e.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

func (e *FakeElement) Text(ctx context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.TextErr != nil {
		return "", e.TextErr
	}
	e.reads++
	return e.TextValue, nil
}

// SetText changes what Text returns from now on.
func (e *FakeElement) SetText(v string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.TextValue = v
}

func (e *FakeElement) Fills() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.fills...)
}

func (e *FakeElement) Clicks() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clicks
}

func (e *FakeElement) Waits() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.waits
}

// Actions counts every side effect or read performed on the element.
func (e *FakeElement) Actions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.fills) + e.clicks + e.reads
}
