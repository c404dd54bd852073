// internal/browser/browsertest/fake.go
// Package browsertest provides a scripted in-memory PageController for unit
// tests. Lookups are answered from preloaded maps and every call is recorded
// so tests can assert on exact call order.
package browsertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/naytrik/naytrik/internal/browser"
)

// Page is a fake browser.PageController. Zero value is usable; populate the
// result maps before handing it to the code under test.
type Page struct {
	mu sync.Mutex

	// Calls records every locate and interaction call in order, formatted
	// as "kind:value" (e.g. "css:#login", "click:3", "navigate:https://…").
	Calls []string

	CSSResults   map[string][]browser.Element
	XPathResults map[string][]browser.Element
	TextResults  map[string][]browser.Element
	AttrResults  map[string][]browser.Element // keyed "name=value"
	PointResults map[string][]browser.Element // keyed "x,y"

	// FindErr fails a specific lookup, keyed like Calls entries.
	FindErr map[string]error

	InspectResults map[int]browser.ElementInfo
	ExtractResults map[int]string
	Interactive    []browser.ElementInfo

	NavigateErr error
	ClickErr    error
	TypeErr     error

	URL           string
	TitleValue    string
	PageTextValue string
	PNG           []byte

	Navigated   []string
	ClickedRefs []int
	ClickedAt   [][2]float64
	TypedText   map[int]string

	Closed bool
}

var _ browser.PageController = (*Page)(nil)

func (p *Page) record(call string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, call)
}

func (p *Page) lookup(ctx context.Context, call string, results []browser.Element) ([]browser.Element, error) {
	p.record(call)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	err := p.FindErr[call]
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	p.record("navigate:" + url)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.NavigateErr != nil {
		return p.NavigateErr
	}
	p.Navigated = append(p.Navigated, url)
	p.URL = url
	return nil
}

func (p *Page) FindByCSS(ctx context.Context, selector string) ([]browser.Element, error) {
	return p.lookup(ctx, "css:"+selector, p.CSSResults[selector])
}

func (p *Page) FindByXPath(ctx context.Context, expression string) ([]browser.Element, error) {
	return p.lookup(ctx, "xpath:"+expression, p.XPathResults[expression])
}

func (p *Page) FindByText(ctx context.Context, text string) ([]browser.Element, error) {
	return p.lookup(ctx, "text:"+text, p.TextResults[text])
}

func (p *Page) FindByAttribute(ctx context.Context, name, value string) ([]browser.Element, error) {
	key := name + "=" + value
	return p.lookup(ctx, "attribute:"+key, p.AttrResults[key])
}

func (p *Page) FindAtPoint(ctx context.Context, x, y float64) ([]browser.Element, error) {
	key := fmt.Sprintf("%g,%g", x, y)
	return p.lookup(ctx, "point:"+key, p.PointResults[key])
}

func (p *Page) Click(ctx context.Context, el browser.Element) error {
	p.record(fmt.Sprintf("click:%d", el.Ref))
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ClickErr != nil {
		return p.ClickErr
	}
	p.ClickedRefs = append(p.ClickedRefs, el.Ref)
	return nil
}

func (p *Page) ClickAt(ctx context.Context, x, y float64) error {
	p.record(fmt.Sprintf("clickat:%g,%g", x, y))
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ClickErr != nil {
		return p.ClickErr
	}
	p.ClickedAt = append(p.ClickedAt, [2]float64{x, y})
	return nil
}

func (p *Page) TypeText(ctx context.Context, el browser.Element, text string, clearBefore, pressEnter bool) error {
	p.record(fmt.Sprintf("type:%d", el.Ref))
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.TypeErr != nil {
		return p.TypeErr
	}
	if p.TypedText == nil {
		p.TypedText = make(map[int]string)
	}
	p.TypedText[el.Ref] = text
	return nil
}

func (p *Page) ExtractText(ctx context.Context, el browser.Element) (string, error) {
	p.record(fmt.Sprintf("extract:%d", el.Ref))
	p.mu.Lock()
	defer p.mu.Unlock()
	if text, ok := p.ExtractResults[el.Ref]; ok {
		return text, nil
	}
	return el.Text, nil
}

func (p *Page) WaitForIdle(ctx context.Context, quietPeriod time.Duration) error {
	p.record("waitidle")
	return ctx.Err()
}

func (p *Page) PageText(ctx context.Context) (string, error) {
	p.record("pagetext")
	return p.PageTextValue, nil
}

func (p *Page) CurrentURL(ctx context.Context) (string, error) {
	p.record("url")
	return p.URL, nil
}

func (p *Page) Title(ctx context.Context) (string, error) {
	p.record("title")
	return p.TitleValue, nil
}

func (p *Page) InspectElement(ctx context.Context, el browser.Element) (browser.ElementInfo, error) {
	p.record(fmt.Sprintf("inspect:%d", el.Ref))
	p.mu.Lock()
	defer p.mu.Unlock()
	if info, ok := p.InspectResults[el.Ref]; ok {
		return info, nil
	}
	return browser.ElementInfo{Element: el, Attributes: map[string]string{}}, nil
}

func (p *Page) ListInteractive(ctx context.Context) ([]browser.ElementInfo, error) {
	p.record("interactive")
	return p.Interactive, nil
}

func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	p.record("screenshot")
	if p.PNG != nil {
		return p.PNG, nil
	}
	return []byte("png"), nil
}

func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Closed = true
	return nil
}

// CallsOfKind filters the call log by its "kind:" prefix.
func (p *Page) CallsOfKind(kind string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	prefix := kind + ":"
	for _, c := range p.Calls {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			out = append(out, c)
		}
	}
	return out
}
