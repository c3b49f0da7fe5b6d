package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/cdp"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/hazyhaar/storyview/storyview/internal/pagectl"
)

// navTimeout bounds a single navigation.
const navTimeout = 30 * time.Second

// Page adapts a Rod page to pagectl.Controller.
type Page struct {
	page   *rod.Page
	router *rod.HijackRouter
	mgr    *Manager
}

var _ pagectl.Controller = (*Page)(nil)

// OpenPage creates a stealth tab with resource blocking applied.
func (m *Manager) OpenPage(ctx context.Context) (*Page, error) {
	b := m.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}

	page, err := stealth.Page(b.Context(ctx))
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}
	// Detach the page from ctx: callers pass their own per call.
	page = page.Context(context.Background())

	p := &Page{page: page, mgr: m}
	if len(m.cfg.ResourceBlocking) > 0 {
		p.router = applyResourceBlocking(page, m.cfg.ResourceBlocking)
	}
	return p, nil
}

// Close stops request interception and closes the tab.
func (p *Page) Close() error {
	if p.router != nil {
		if err := p.router.Stop(); err != nil {
			p.mgr.cfg.Logger.Warn("browser: stop hijack router", "error", err)
		}
		p.router = nil
	}
	if p.page != nil {
		return p.page.Close()
	}
	return nil
}

// Navigate loads url and waits for the load event. A slow load event is
// logged, not returned: story pages keep streaming media long after the
// document is usable.
func (p *Page) Navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, navTimeout)
	defer cancel()

	pg := p.page.Context(navCtx)
	if err := pg.Navigate(url); err != nil {
		return pagectl.Driver("navigate "+url, err)
	}
	return p.settleLoad(ctx, url, pg.WaitLoad())
}

// settleLoad decides what a failed load wait means: caller cancellation
// is returned, anything else is only logged.
func (p *Page) settleLoad(ctx context.Context, url string, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	p.mgr.cfg.Logger.Warn("browser: wait load timeout", "url", url, "error", err)
	return nil
}

// CurrentURL returns the URL of the page's main frame.
func (p *Page) CurrentURL(ctx context.Context) (string, error) {
	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return "", pagectl.Driver("current url", err)
	}
	return info.URL, nil
}

// Has reports whether selector matches an element right now.
func (p *Page) Has(ctx context.Context, selector string) (bool, error) {
	pg := p.page.Context(ctx)
	var (
		ok  bool
		err error
	)
	if pagectl.IsXPath(selector) {
		ok, _, err = pg.HasX(selector)
	} else {
		ok, _, err = pg.Has(selector)
	}
	if err != nil {
		return false, pagectl.Driver("has "+selector, err)
	}
	return ok, nil
}

// Count returns how many elements match selector right now.
func (p *Page) Count(ctx context.Context, selector string) (int, error) {
	pg := p.page.Context(ctx)
	var (
		els rod.Elements
		err error
	)
	if pagectl.IsXPath(selector) {
		els, err = pg.ElementsX(selector)
	} else {
		els, err = pg.Elements(selector)
	}
	if err != nil {
		return 0, pagectl.Driver("count "+selector, err)
	}
	return len(els), nil
}

// Eval runs a JS function expression with args. Exceptions thrown by the
// script and lost execution contexts map to pagectl.ErrScript.
func (p *Page) Eval(ctx context.Context, js string, args ...any) (any, error) {
	res, err := p.page.Context(ctx).Eval(js, args...)
	if err != nil {
		return nil, classifyEval(err)
	}
	return res.Value.Val(), nil
}

func classifyEval(err error) error {
	if scriptFailure(err) {
		return fmt.Errorf("%w: %v", pagectl.ErrScript, err)
	}
	return pagectl.Driver("eval", err)
}

// scriptFailure separates page-context problems from transport failures.
// Only a thrown exception or a JS context lost to navigation qualify; a
// missing session or target means the tab is gone.
func scriptFailure(err error) bool {
	var evalErr *rod.EvalError
	if errors.As(err, &evalErr) {
		return true
	}
	var cdpErr *cdp.Error
	if !errors.As(err, &cdpErr) {
		return false
	}
	return lostContext(*cdpErr, cdp.ErrCtxNotFound) || lostContext(*cdpErr, cdp.ErrCtxDestroyed)
}

func lostContext(got cdp.Error, want *cdp.Error) bool {
	return got.Code == want.Code && got.Message == want.Message
}

// PressKey types key into the focused page.
func (p *Page) PressKey(ctx context.Context, key pagectl.Key) error {
	k, ok := keyMap[key]
	if !ok {
		return fmt.Errorf("browser: unsupported key %q", key)
	}
	if err := p.page.Context(ctx).Keyboard.Type(k); err != nil {
		return pagectl.Driver("press "+string(key), err)
	}
	return nil
}

var keyMap = map[pagectl.Key]input.Key{
	pagectl.KeyArrowRight: input.ArrowRight,
	pagectl.KeyEnter:      input.Enter,
}

// ClickWhenReady waits up to timeout for selector to become interactable
// and clicks it.
func (p *Page) ClickWhenReady(ctx context.Context, selector string, timeout time.Duration) error {
	el, cancel, err := p.waitElement(ctx, selector, timeout)
	if err != nil {
		return err
	}
	defer cancel()
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return p.classifyWait(ctx, "click "+selector, err)
	}
	return nil
}

// InputWhenReady waits up to timeout for selector and types text into it.
func (p *Page) InputWhenReady(ctx context.Context, selector, text string, timeout time.Duration) error {
	el, cancel, err := p.waitElement(ctx, selector, timeout)
	if err != nil {
		return err
	}
	defer cancel()
	if err := el.Input(text); err != nil {
		return p.classifyWait(ctx, "input "+selector, err)
	}
	return nil
}

func (p *Page) waitElement(ctx context.Context, selector string, timeout time.Duration) (*rod.Element, context.CancelFunc, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	pg := p.page.Context(waitCtx)

	var (
		el  *rod.Element
		err error
	)
	if pagectl.IsXPath(selector) {
		el, err = pg.ElementX(selector)
	} else {
		el, err = pg.Element(selector)
	}
	if err == nil {
		_, err = el.WaitInteractable()
	}
	if err != nil {
		cancel()
		return nil, nil, p.classifyWait(ctx, "wait "+selector, err)
	}
	return el, cancel, nil
}

// classifyWait turns an expired wait budget into ErrElementTimeout while
// keeping caller cancellation and driver failures distinct.
func (p *Page) classifyWait(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, pagectl.ErrElementTimeout)
	}
	return pagectl.Driver(op, err)
}
