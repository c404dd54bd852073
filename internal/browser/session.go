// internal/browser/session.go
// Chromedp-backed implementation of PageController. A Session owns one
// browser process and one tab for its whole lifetime; element handles are
// stamped onto nodes as data-naytrik-ref attributes so later interactions can
// address exactly the node a locate call returned.
package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/naytrik/naytrik/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// refAttr is the attribute stamped onto located nodes. Interactions target
// nodes through [data-naytrik-ref="N"] selectors.
const refAttr = "data-naytrik-ref"

// Session drives a single Chrome tab over CDP.
type Session struct {
	id     string
	logger *zap.Logger
	cfg    config.BrowserConfig

	allocCancel context.CancelFunc
	ctx         context.Context
	cancel      context.CancelFunc

	// Network-idle tracking fed by CDP events.
	inflight     atomic.Int64
	lastActivity atomic.Int64 // unix nanos

	closeOnce sync.Once
}

var _ PageController = (*Session)(nil)

// NewSession starts a browser process and opens a tab. The returned Session
// is ready for Navigate. Callers must Close it.
func NewSession(parentCtx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Session, error) {
	sessionID := uuid.New().String()
	log := logger.Named("browser").With(zap.String("session_id", sessionID))

	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.WindowSize(cfg.ViewportWidth, cfg.ViewportHeight),
	)
	if cfg.IgnoreTLSErrors {
		opts = append(opts, chromedp.Flag("ignore-certificate-errors", true))
	}
	for _, arg := range cfg.Args {
		name, value, found := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		if found {
			opts = append(opts, chromedp.Flag(name, value))
		} else {
			opts = append(opts, chromedp.Flag(name, true))
		}
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(parentCtx, opts...)
	ctx, cancel := chromedp.NewContext(allocCtx)

	s := &Session{
		id:          sessionID,
		logger:      log,
		cfg:         cfg,
		allocCancel: allocCancel,
		ctx:         ctx,
		cancel:      cancel,
	}
	s.touch()

	// Track in-flight requests so WaitForIdle can observe network quiet.
	chromedp.ListenTarget(ctx, func(ev interface{}) {
		switch ev.(type) {
		case *network.EventRequestWillBeSent:
			s.inflight.Add(1)
			s.touch()
		case *network.EventLoadingFinished, *network.EventLoadingFailed:
			if s.inflight.Add(-1) < 0 {
				s.inflight.Store(0)
			}
			s.touch()
		}
	})

	if err := chromedp.Run(ctx, network.Enable()); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	log.Info("Browser session started.",
		zap.Bool("headless", cfg.Headless),
		zap.Int("viewport_width", cfg.ViewportWidth),
		zap.Int("viewport_height", cfg.ViewportHeight))
	return s, nil
}

// ID returns the session identifier used in logs and run history.
func (s *Session) ID() string {
	return s.id
}

func (s *Session) touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

// run executes chromedp actions under a context bounded by both the caller's
// context and the session lifetime.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	opCtx, opCancel := combineContext(s.ctx, ctx)
	defer opCancel()
	return chromedp.Run(opCtx, actions...)
}

// Navigate loads the URL and waits for the load event, then for the network
// to go quiet.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.logger.Info("Navigating.", zap.String("url", url))

	navTimeout := s.cfg.NavigationTimeout
	if navTimeout <= 0 {
		navTimeout = 90 * time.Second
	}
	navCtx, navCancel := context.WithTimeout(ctx, navTimeout)
	defer navCancel()

	if err := s.run(navCtx, chromedp.Navigate(url)); err != nil {
		if navCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("navigation to %s timed out after %v: %w", url, navTimeout, context.DeadlineExceeded)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s: %v", ErrNavigation, url, err)
	}

	if err := s.WaitForIdle(navCtx, s.cfg.IdleQuietPeriod); err != nil {
		if navCtx.Err() == nil && ctx.Err() == nil {
			s.logger.Warn("Page did not reach network idle after navigation.", zap.Error(err))
			return nil
		}
		return err
	}
	return nil
}

// WaitForIdle polls until no request has started or finished for quietPeriod.
func (s *Session) WaitForIdle(ctx context.Context, quietPeriod time.Duration) error {
	if quietPeriod <= 0 {
		quietPeriod = 1500 * time.Millisecond
	}
	opCtx, opCancel := combineContext(s.ctx, ctx)
	defer opCancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-opCtx.Done():
			return opCtx.Err()
		case <-ticker.C:
			quietFor := time.Since(time.Unix(0, s.lastActivity.Load()))
			if s.inflight.Load() <= 0 && quietFor >= quietPeriod {
				return nil
			}
		}
	}
}

// locateJS finds nodes with one strategy, stamps each match with a ref
// attribute, and returns element descriptors in document order.
const locateJS = `(function(mode, value) {
	const REF = 'data-naytrik-ref';
	let counter = window.__naytrikRefCounter || 0;

	function describe(el) {
		if (!el.getAttribute(REF)) {
			counter++;
			el.setAttribute(REF, String(counter));
		}
		const r = el.getBoundingClientRect();
		const style = window.getComputedStyle(el);
		const visible = r.width > 0 && r.height > 0 &&
			style.visibility !== 'hidden' && style.display !== 'none';
		const enabled = !(el.disabled === true);
		const text = (el.innerText || el.value || el.getAttribute('aria-label') || '').trim();
		return {
			ref: parseInt(el.getAttribute(REF), 10),
			tag: el.tagName.toLowerCase(),
			text: text.slice(0, 200),
			visible: visible,
			enabled: enabled,
			centerX: r.left + r.width / 2,
			centerY: r.top + r.height / 2
		};
	}

	let nodes = [];
	if (mode === 'css') {
		nodes = Array.from(document.querySelectorAll(value));
	} else if (mode === 'xpath') {
		const snap = document.evaluate(value, document, null,
			XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
		for (let i = 0; i < snap.snapshotLength; i++) {
			nodes.push(snap.snapshotItem(i));
		}
	} else if (mode === 'text') {
		const want = value.trim();
		const pool = document.querySelectorAll(
			'a, button, input, textarea, select, option, label, summary, ' +
			'[role], [onclick], h1, h2, h3, h4, span, div, td, th, li, p');
		const exact = [], partial = [];
		for (const el of pool) {
			const text = (el.innerText || el.value || el.getAttribute('aria-label') || '').trim();
			if (!text) continue;
			if (text === want) {
				exact.push(el);
			} else if (text.includes(want) && text.length <= want.length + 80) {
				partial.push(el);
			}
		}
		nodes = exact.length > 0 ? exact : partial;
	} else if (mode === 'point') {
		const parts = value.split(',');
		const hit = document.elementFromPoint(parseFloat(parts[0]), parseFloat(parts[1]));
		if (hit) nodes = [hit];
	}
	window.__naytrikRefCounter = counter;
	return nodes.filter(n => n.nodeType === 1).map(describe);
})(%s, %s)`

func (s *Session) locate(ctx context.Context, mode, value string) ([]Element, error) {
	modeJSON, _ := json.Marshal(mode)
	valueJSON, _ := json.Marshal(value)
	script := fmt.Sprintf(locateJS, modeJSON, valueJSON)

	var matches []Element
	err := s.run(ctx, chromedp.Evaluate(script, &matches,
		func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithReturnByValue(true).WithSilent(true)
		}))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// A throwing querySelectorAll or document.evaluate means the
		// selector itself is malformed.
		if strings.Contains(err.Error(), "SyntaxError") || strings.Contains(err.Error(), "exception") {
			return nil, fmt.Errorf("%w: %s %q: %v", ErrBadSelector, mode, value, err)
		}
		return nil, fmt.Errorf("locate %s %q failed: %v", mode, value, err)
	}
	return matches, nil
}

// FindByCSS locates nodes with document.querySelectorAll.
func (s *Session) FindByCSS(ctx context.Context, selector string) ([]Element, error) {
	return s.locate(ctx, "css", selector)
}

// FindByXPath locates nodes with document.evaluate.
func (s *Session) FindByXPath(ctx context.Context, expression string) ([]Element, error) {
	return s.locate(ctx, "xpath", expression)
}

// FindByText locates nodes whose visible text matches. Exact matches win;
// substring matches on short nodes are the fallback.
func (s *Session) FindByText(ctx context.Context, text string) ([]Element, error) {
	return s.locate(ctx, "text", text)
}

// FindByAttribute locates nodes carrying the attribute name=value.
func (s *Session) FindByAttribute(ctx context.Context, name, value string) ([]Element, error) {
	valueJSON, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("%w: attribute value %q", ErrBadSelector, value)
	}
	return s.locate(ctx, "css", fmt.Sprintf("[%s=%s]", name, valueJSON))
}

// FindAtPoint returns the topmost element at viewport coordinates.
func (s *Session) FindAtPoint(ctx context.Context, x, y float64) ([]Element, error) {
	return s.locate(ctx, "point", fmt.Sprintf("%g,%g", x, y))
}

func refSelector(el Element) string {
	return fmt.Sprintf(`[%s="%d"]`, refAttr, el.Ref)
}

// Click scrolls the element into view and clicks it.
func (s *Session) Click(ctx context.Context, el Element) error {
	selector := refSelector(el)
	s.logger.Debug("Clicking element.", zap.Int("ref", el.Ref), zap.String("tag", el.Tag))

	opCtx, opCancel := context.WithTimeout(ctx, 30*time.Second)
	defer opCancel()

	err := s.run(opCtx,
		chromedp.ScrollIntoView(selector, chromedp.ByQuery),
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if opCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("%w: click on ref %d timed out", ErrNotInteractable, el.Ref)
		}
		return fmt.Errorf("%w: click on ref %d: %v", ErrNotInteractable, el.Ref, err)
	}
	s.touch()
	return nil
}

// ClickAt dispatches a raw mouse click at viewport coordinates.
func (s *Session) ClickAt(ctx context.Context, x, y float64) error {
	s.logger.Debug("Clicking at coordinates.", zap.Float64("x", x), zap.Float64("y", y))

	opCtx, opCancel := context.WithTimeout(ctx, 15*time.Second)
	defer opCancel()

	if err := s.run(opCtx, chromedp.MouseClickXY(x, y)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("click at (%.0f, %.0f) failed: %w", x, y, err)
	}
	s.touch()
	return nil
}

// TypeText fills a located input or textarea. Clearing goes through JS so a
// transiently non-interactable node fails loudly instead of silently keeping
// its old value.
func (s *Session) TypeText(ctx context.Context, el Element, text string, clearBefore, pressEnter bool) error {
	selector := refSelector(el)
	s.logger.Debug("Typing into element.",
		zap.Int("ref", el.Ref), zap.Int("text_length", len(text)), zap.Bool("clear", clearBefore))

	timeout := 30*time.Second + time.Duration(len(text)/5)*time.Second
	if timeout > 3*time.Minute {
		timeout = 3 * time.Minute
	}
	opCtx, opCancel := context.WithTimeout(ctx, timeout)
	defer opCancel()

	actions := []chromedp.Action{
		chromedp.ScrollIntoView(selector, chromedp.ByQuery),
		chromedp.WaitVisible(selector, chromedp.ByQuery),
	}

	if clearBefore {
		selectorJSON, _ := json.Marshal(selector)
		jsClear := fmt.Sprintf(`(function(sel) {
			const el = document.querySelector(sel);
			if (!el || el.disabled || el.readOnly) {
				return false;
			}
			el.value = "";
			el.dispatchEvent(new Event('input', { bubbles: true }));
			el.dispatchEvent(new Event('change', { bubbles: true }));
			return true;
		})(%s)`, selectorJSON)

		var cleared bool
		actions = append(actions, chromedp.Evaluate(jsClear, &cleared,
			func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
				return p.WithReturnByValue(true).WithSilent(true)
			}))
		actions = append(actions, chromedp.ActionFunc(func(context.Context) error {
			if !cleared {
				return fmt.Errorf("%w: ref %d rejected clear", ErrNotInteractable, el.Ref)
			}
			return nil
		}))
	}

	actions = append(actions, chromedp.SendKeys(selector, text, chromedp.ByQuery))
	if pressEnter {
		actions = append(actions, chromedp.SendKeys(selector, kb.Enter, chromedp.ByQuery))
	}

	if err := s.run(opCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if opCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("%w: type into ref %d timed out after %v", ErrNotInteractable, el.Ref, timeout)
		}
		return fmt.Errorf("type into ref %d failed: %w", el.Ref, err)
	}
	s.touch()
	return nil
}

// ExtractText returns the element's trimmed visible text, falling back to
// its value for form controls.
func (s *Session) ExtractText(ctx context.Context, el Element) (string, error) {
	selectorJSON, _ := json.Marshal(refSelector(el))
	script := fmt.Sprintf(`(function(sel) {
		const el = document.querySelector(sel);
		if (!el) return null;
		return (el.innerText || el.value || '').trim();
	})(%s)`, selectorJSON)

	var text *string
	err := s.run(ctx, chromedp.Evaluate(script, &text,
		func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithReturnByValue(true).WithSilent(true)
		}))
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("extract text from ref %d failed: %w", el.Ref, err)
	}
	if text == nil {
		return "", fmt.Errorf("%w: ref %d is no longer attached", ErrNotFound, el.Ref)
	}
	return *text, nil
}

// PageText returns the visible text of the document body.
func (s *Session) PageText(ctx context.Context) (string, error) {
	var text string
	err := s.run(ctx, chromedp.Evaluate(`document.body ? document.body.innerText : ''`, &text,
		func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithReturnByValue(true).WithSilent(true)
		}))
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("failed to read page text: %w", err)
	}
	return text, nil
}

// CurrentURL returns the tab's location.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := s.run(ctx, chromedp.Location(&url)); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("failed to read location: %w", err)
	}
	return url, nil
}

// Title returns the document title.
func (s *Session) Title(ctx context.Context) (string, error) {
	var title string
	if err := s.run(ctx, chromedp.Title(&title)); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("failed to read title: %w", err)
	}
	return title, nil
}

// InspectElement returns the full attribute map for a located element.
func (s *Session) InspectElement(ctx context.Context, el Element) (ElementInfo, error) {
	selectorJSON, _ := json.Marshal(refSelector(el))
	script := fmt.Sprintf(`(function(sel) {
		const el = document.querySelector(sel);
		if (!el) return null;
		const attrs = {};
		for (const a of el.attributes) {
			attrs[a.name] = a.value;
		}
		return attrs;
	})(%s)`, selectorJSON)

	var attrs map[string]string
	err := s.run(ctx, chromedp.Evaluate(script, &attrs,
		func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithReturnByValue(true).WithSilent(true)
		}))
	if err != nil {
		if ctx.Err() != nil {
			return ElementInfo{}, ctx.Err()
		}
		return ElementInfo{}, fmt.Errorf("inspect of ref %d failed: %w", el.Ref, err)
	}
	if attrs == nil {
		return ElementInfo{}, fmt.Errorf("%w: ref %d is no longer attached", ErrNotFound, el.Ref)
	}
	delete(attrs, refAttr)
	return ElementInfo{Element: el, Attributes: attrs}, nil
}

// listInteractiveJS enumerates the elements a user could plausibly act on,
// with their attributes, for selector capture and planner observations.
const listInteractiveJS = `(function() {
	const REF = 'data-naytrik-ref';
	let counter = window.__naytrikRefCounter || 0;
	const pool = document.querySelectorAll(
		'a[href], button, input, textarea, select, [role="button"], ' +
		'[role="link"], [role="tab"], [role="menuitem"], [onclick], [contenteditable="true"]');
	const out = [];
	for (const el of pool) {
		const r = el.getBoundingClientRect();
		const style = window.getComputedStyle(el);
		const visible = r.width > 0 && r.height > 0 &&
			style.visibility !== 'hidden' && style.display !== 'none';
		if (!visible) continue;
		if (!el.getAttribute(REF)) {
			counter++;
			el.setAttribute(REF, String(counter));
		}
		const attrs = {};
		for (const a of el.attributes) {
			if (a.name === REF) continue;
			attrs[a.name] = a.value;
		}
		const text = (el.innerText || el.value || el.getAttribute('aria-label') || '').trim();
		out.push({
			ref: parseInt(el.getAttribute(REF), 10),
			tag: el.tagName.toLowerCase(),
			text: text.slice(0, 200),
			visible: true,
			enabled: !(el.disabled === true),
			centerX: r.left + r.width / 2,
			centerY: r.top + r.height / 2,
			attributes: attrs
		});
	}
	window.__naytrikRefCounter = counter;
	return out;
})()`

// ListInteractive enumerates visible actionable elements in document order.
func (s *Session) ListInteractive(ctx context.Context) ([]ElementInfo, error) {
	var infos []ElementInfo
	err := s.run(ctx, chromedp.Evaluate(listInteractiveJS, &infos,
		func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithReturnByValue(true).WithSilent(true)
		}))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to enumerate interactive elements: %w", err)
	}
	return infos, nil
}

// Screenshot captures the viewport as PNG bytes.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	opCtx, opCancel := context.WithTimeout(ctx, 20*time.Second)
	defer opCancel()

	var buf []byte
	if err := s.run(opCtx, chromedp.CaptureScreenshot(&buf)); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}
	return buf, nil
}

// Close shuts the tab and browser process down. Safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.logger.Info("Closing browser session.")
		s.cancel()
		s.allocCancel()
	})
	return nil
}

// combineContext derives a context canceled when either input is done.
func combineContext(parentCtx, secondaryCtx context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(parentCtx)
	go func() {
		select {
		case <-secondaryCtx.Done():
			cancel()
		case <-combined.Done():
		}
	}()
	return combined, cancel
}
