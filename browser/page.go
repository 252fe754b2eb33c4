// Package browser implements session.Page on a rod-driven Chromium tab.
package browser

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"

	"github.com/use-agent/igextract/intercept"
	"github.com/use-agent/igextract/session"
)

var _ session.Page = (*Page)(nil)

// Page is one browser tab. Network events are delivered from the hijack
// router goroutine.
type Page struct {
	page   *rod.Page
	router *rod.HijackRouter
	client *http.Client

	mu         sync.RWMutex
	onRequest  func(intercept.Request)
	onResponse func(intercept.Response)

	profileMu     sync.Mutex
	removeProfile func() error
}

// Navigate loads url and waits for the DOM to settle.
//
// Lifecycle:
//
//  1. Navigate  – triggers page load under ctx
//  2. WaitLoad  – document load event
//  3. Stable    – best-effort DOM stability, never fatal
func (p *Page) Navigate(ctx context.Context, url string) error {
	rp := p.page.Context(ctx)

	// ── 1. Navigate ───────────────────────────────────────────────────
	if err := rp.Navigate(url); err != nil {
		return err
	}

	// ── 2. Load event ─────────────────────────────────────────────────
	if err := rp.WaitLoad(); err != nil {
		return err
	}

	// ── 3. DOM stable ─────────────────────────────────────────────────
	if err := rp.WaitDOMStable(300*time.Millisecond, 0.1); err != nil {
		slog.Debug("WaitDOMStable did not converge, proceeding with current DOM",
			"url", url,
			"error", err,
		)
	}
	return nil
}

// HTML returns the rendered document.
func (p *Page) HTML(ctx context.Context) (string, error) {
	return p.page.Context(ctx).HTML()
}

func (p *Page) OnRequest(fn func(intercept.Request)) {
	p.mu.Lock()
	p.onRequest = fn
	p.mu.Unlock()
}

func (p *Page) OnResponse(fn func(intercept.Response)) {
	p.mu.Lock()
	p.onResponse = fn
	p.mu.Unlock()
}

func (p *Page) emitRequest(r intercept.Request) {
	p.mu.RLock()
	fn := p.onRequest
	p.mu.RUnlock()
	if fn != nil {
		fn(r)
	}
}

func (p *Page) emitResponse(r intercept.Response) {
	p.mu.RLock()
	fn := p.onResponse
	p.mu.RUnlock()
	if fn != nil {
		fn(r)
	}
}

// ExecuteScript evaluates a JS function expression and returns its value.
func (p *Page) ExecuteScript(ctx context.Context, js string) (gson.JSON, error) {
	res, err := p.page.Context(ctx).Eval(js)
	if err != nil {
		return gson.JSON{}, err
	}
	return res.Value, nil
}

// Viewport reports the inner window size and scroll offset.
func (p *Page) Viewport(ctx context.Context) (session.Viewport, error) {
	v, err := p.ExecuteScript(ctx, `() => ({
		w: window.innerWidth,
		h: window.innerHeight,
		y: Math.round(window.scrollY || 0),
	})`)
	if err != nil {
		return session.Viewport{}, err
	}
	return session.Viewport{
		Width:   v.Get("w").Int(),
		Height:  v.Get("h").Int(),
		ScrollY: v.Get("y").Int(),
	}, nil
}

// Scroll dispatches a wheel event of dy pixels.
func (p *Page) Scroll(ctx context.Context, dy int) error {
	return p.page.Context(ctx).Mouse.Scroll(0, float64(dy), 1)
}

// MoveMouse moves the pointer to (x, y) in CSS pixels.
func (p *Page) MoveMouse(ctx context.Context, x, y float64) error {
	return p.page.Context(ctx).Mouse.MoveTo(proto.Point{X: x, Y: y})
}

// DismissOverlays clicks away login prompts and consent dialogs, then
// strips remaining fixed overlays. It returns the number of clicks.
func (p *Page) DismissOverlays(ctx context.Context) (int, error) {
	v, err := p.ExecuteScript(ctx, dismissOverlaysJS)
	if err != nil {
		return 0, err
	}
	return v.Int(), nil
}

// Close stops the hijack router and closes the tab.
func (p *Page) Close() error {
	if p.router != nil {
		if err := p.router.Stop(); err != nil {
			slog.Debug("hijack router stop failed", "error", err)
		}
	}
	p.client.CloseIdleConnections()
	return p.page.Close()
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}

// fromHeadersMap is the inverse of toHeadersMap.
func fromHeadersMap(headers proto.NetworkHeaders) http.Header {
	h := make(http.Header, len(headers))
	for k, v := range headers {
		h.Add(k, v.Str())
	}
	return h
}

// dismissOverlaysJS clicks dismiss buttons on dialogs and removes fixed or
// sticky layers with a high z-index.
const dismissOverlaysJS = `() => {
	let clicks = 0;
	const labels = ['not now', 'close', 'decline optional cookies', 'only allow essential cookies', 'allow essential cookies'];
	const candidates = document.querySelectorAll('div[role="dialog"] button, div[role="dialog"] [role="button"], svg[aria-label="Close"]');
	for (const el of candidates) {
		const text = ((el.getAttribute && el.getAttribute('aria-label')) || el.textContent || '').trim().toLowerCase();
		if (!labels.includes(text)) continue;
		const target = el.closest('button, [role="button"]') || el;
		try { target.click(); clicks++; } catch (e) {}
	}
	for (const el of document.querySelectorAll('*')) {
		const style = window.getComputedStyle(el);
		if (style.position !== 'fixed' && style.position !== 'sticky') continue;
		const z = parseInt(style.zIndex, 10);
		if (z >= 900 && el.querySelector('input[type="password"], [role="dialog"]')) {
			el.remove();
		}
	}
	document.documentElement.style.overflow = '';
	if (document.body) document.body.style.overflow = '';
	return clicks;
}`
