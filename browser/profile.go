package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-rod/rod/lib/proto"

	"github.com/use-agent/igextract/fingerprint"
)

// ApplyProfile presents fp through CDP emulation overrides and a navigator
// patch installed for every new document. A previous patch is removed.
func (p *Page) ApplyProfile(ctx context.Context, fp fingerprint.Profile) error {
	rp := p.page.Context(ctx)

	// ── 1. User agent + language ─────────────────────────────────────
	if err := (proto.EmulationSetUserAgentOverride{
		UserAgent:      fp.UserAgent,
		AcceptLanguage: fp.AcceptLanguage,
		Platform:       fp.Platform,
	}).Call(rp); err != nil {
		return fmt.Errorf("browser: user agent override: %w", err)
	}
	if err := (proto.NetworkSetExtraHTTPHeaders{
		Headers: toHeadersMap(map[string]string{"Accept-Language": fp.AcceptLanguage}),
	}).Call(rp); err != nil {
		slog.Debug("browser: extra headers not set", "error", err)
	}

	// ── 2. Screen metrics ────────────────────────────────────────────
	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             fp.Viewport.Width,
		Height:            fp.Viewport.Height,
		DeviceScaleFactor: fp.DeviceScaleFactor,
		Mobile:            fp.Mobile,
	}).Call(rp); err != nil {
		return fmt.Errorf("browser: device metrics override: %w", err)
	}
	if err := (proto.EmulationSetTouchEmulationEnabled{Enabled: fp.Mobile}).Call(rp); err != nil {
		slog.Debug("browser: touch emulation not set", "error", err)
	}

	// ── 3. Locale + timezone ─────────────────────────────────────────
	if err := (proto.EmulationSetTimezoneOverride{TimezoneID: fp.Timezone}).Call(rp); err != nil {
		return fmt.Errorf("browser: timezone override: %w", err)
	}
	if err := (proto.EmulationSetLocaleOverride{Locale: fp.Locale}).Call(rp); err != nil {
		// Chromium rejects a second override of the same locale.
		slog.Debug("browser: locale override not set", "locale", fp.Locale, "error", err)
	}

	// ── 4. Navigator patch ───────────────────────────────────────────
	js, err := navigatorPatch(fp)
	if err != nil {
		return err
	}

	p.profileMu.Lock()
	defer p.profileMu.Unlock()
	if p.removeProfile != nil {
		if err := p.removeProfile(); err != nil {
			slog.Debug("browser: previous navigator patch not removed", "error", err)
		}
		p.removeProfile = nil
	}
	remove, err := rp.EvalOnNewDocument(js)
	if err != nil {
		return fmt.Errorf("browser: navigator patch: %w", err)
	}
	p.removeProfile = remove

	slog.Debug("browser: fingerprint applied",
		"archetype", fp.Archetype,
		"viewport", fp.Viewport.String(),
		"timezone", fp.Timezone,
	)
	return nil
}

// navigatorPatch renders the script that pins the hardware and screen
// properties CDP emulation does not cover.
func navigatorPatch(fp fingerprint.Profile) (string, error) {
	props, err := json.Marshal(map[string]any{
		"hardwareConcurrency": fp.HardwareConcurrency,
		"deviceMemory":        fp.DeviceMemoryGB,
		"platform":            fp.Platform,
		"languages":           []string{fp.Locale, baseLanguage(fp.Locale)},
		"maxTouchPoints":      touchPoints(fp.Mobile),
	})
	if err != nil {
		return "", err
	}
	screen, err := json.Marshal(map[string]int{
		"width":       fp.Screen.Width,
		"height":      fp.Screen.Height,
		"availWidth":  fp.Screen.Width,
		"availHeight": fp.Screen.Height,
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`(() => {
	const nav = %s;
	for (const [k, v] of Object.entries(nav)) {
		try { Object.defineProperty(Navigator.prototype, k, { get: () => v, configurable: true }); } catch (e) {}
	}
	const scr = %s;
	for (const [k, v] of Object.entries(scr)) {
		try { Object.defineProperty(Screen.prototype, k, { get: () => v, configurable: true }); } catch (e) {}
	}
})();`, props, screen), nil
}

func baseLanguage(locale string) string {
	if i := strings.IndexAny(locale, "-_"); i > 0 {
		return locale[:i]
	}
	return locale
}

func touchPoints(mobile bool) int {
	if mobile {
		return 5
	}
	return 0
}
