// Package session drives the extraction of one URL at a time through a
// browser Page: pacing, settling, payload collection, reconciliation,
// fingerprint rotation and profile discovery.
package session

import (
	"context"

	"github.com/ysmood/gson"

	"github.com/use-agent/igextract/fingerprint"
	"github.com/use-agent/igextract/intercept"
)

// Viewport is the page's visible area and vertical scroll offset.
type Viewport struct {
	Width   int
	Height  int
	ScrollY int
}

// Page is the browser capability a Coordinator drives. Implementations
// deliver network events on their own goroutines.
type Page interface {
	// Navigate loads url and returns once the document has loaded.
	Navigate(ctx context.Context, url string) error

	// HTML returns the rendered document.
	HTML(ctx context.Context) (string, error)

	// OnRequest and OnResponse register the network event callbacks.
	// They are called once, before the first navigation.
	OnRequest(fn func(intercept.Request))
	OnResponse(fn func(intercept.Response))

	ExecuteScript(ctx context.Context, js string) (gson.JSON, error)
	Viewport(ctx context.Context) (Viewport, error)

	// Scroll scrolls vertically by dy pixels.
	Scroll(ctx context.Context, dy int) error
	MoveMouse(ctx context.Context, x, y float64) error

	// DismissOverlays closes login walls and consent dialogs and reports
	// how many it clicked away.
	DismissOverlays(ctx context.Context) (int, error)

	// ApplyProfile presents p to the page's detection surfaces.
	ApplyProfile(ctx context.Context, p fingerprint.Profile) error

	Close() error
}
