package browser

import (
	"context"
	"log/slog"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/use-agent/igextract/config"
	"github.com/use-agent/igextract/models"
)

// Browser owns the Chromium process. Pages opened from it share the
// process but not their hijack routers.
type Browser struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	cfg      config.BrowserConfig
}

// Launch starts a Chromium instance, or connects to cfg.CDPURL when set.
func Launch(cfg config.BrowserConfig) (*Browser, error) {
	if cfg.CDPURL != "" {
		b := rod.New().ControlURL(cfg.CDPURL)
		if err := b.Connect(); err != nil {
			return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to connect to CDP URL", err)
		}
		slog.Info("browser connected", "controlURL", cfg.CDPURL)
		return &Browser{browser: b, cfg: cfg}, nil
	}

	l := launcher.New().
		Headless(cfg.Headless).
		NoSandbox(cfg.NoSandbox)

	if cfg.BrowserBin != "" {
		l = l.Bin(cfg.BrowserBin)
	}
	if cfg.Proxy != "" {
		l = l.Proxy(cfg.Proxy)
	}

	// ── Stealth flags ────────────────────────────────────────────────
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-ipc-flooding-protection"))
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to launch browser", err)
	}
	slog.Info("browser launched", "controlURL", controlURL)

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to connect to browser", err)
	}
	return &Browser{browser: b, launcher: l, cfg: cfg}, nil
}

// NewPage opens a tab with stealth.JS installed and the hijack router
// running. The returned Page must be closed.
func (b *Browser) NewPage(ctx context.Context) (*Page, error) {
	rp, err := b.browser.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to create page", err)
	}
	rp = rp.Context(context.Background())

	if b.cfg.Stealth {
		if _, err := rp.EvalOnNewDocument(stealth.JS); err != nil {
			slog.Warn("stealth injection failed, proceeding without stealth", "error", err)
		}
	}

	p := &Page{
		page:   rp,
		client: newReplayClient(b.cfg.Proxy, b.cfg.ReplayTimeout),
	}
	p.router = p.setupHijack(b.cfg.BlockedResourceTypes, b.cfg.BlockAds)
	return p, nil
}

// Close closes the browser and reaps a launched process.
func (b *Browser) Close() error {
	slog.Info("browser shutting down")
	err := b.browser.Close()
	if b.launcher != nil {
		b.launcher.Kill()
		b.launcher.Cleanup()
	}
	return err
}
