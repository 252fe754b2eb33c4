package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/use-agent/igextract/extract"
	"github.com/use-agent/igextract/fingerprint"
	"github.com/use-agent/igextract/intercept"
	"github.com/use-agent/igextract/models"
	"github.com/use-agent/igextract/pacing"
)

// State is a step of the per-URL state machine.
type State string

const (
	StateIdle        State = "idle"
	StateNavigating  State = "navigating"
	StateSettling    State = "settling"
	StateExtracting  State = "extracting"
	StateReconciling State = "reconciling"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

// DiscoveryConfig bounds how many author profiles a run may append.
type DiscoveryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	MaxProfiles int    `yaml:"max_profiles"`
	BaseURL     string `yaml:"base_url"`
}

// Config controls a Coordinator.
type Config struct {
	// AntiDetection enables pacing delays, simulated interaction and
	// fingerprint rotation.
	AntiDetection bool `yaml:"anti_detection"`

	// Mobile selects mobile fingerprints for the whole session.
	Mobile bool `yaml:"mobile"`

	URLTimeout     time.Duration `yaml:"url_timeout"`
	SettleDelay    time.Duration `yaml:"settle_delay"`
	ScrollDistance int           `yaml:"scroll_distance"`

	Discovery DiscoveryConfig `yaml:"discovery"`
	Pacing    pacing.Config   `yaml:"pacing"`
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		AntiDetection:  true,
		URLTimeout:     45 * time.Second,
		SettleDelay:    3 * time.Second,
		ScrollDistance: 1200,
		Discovery: DiscoveryConfig{
			Enabled:     true,
			MaxProfiles: 10,
			BaseURL:     "https://www.instagram.com",
		},
		Pacing: pacing.DefaultConfig(),
	}
}

// Option customises a Coordinator.
type Option func(*Coordinator)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithSleep replaces the context-aware sleep used for every pacing wait.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Coordinator) { c.sleep = sleep }
}

// WithGenerator sets the fingerprint source.
func WithGenerator(g *fingerprint.Generator) Option {
	return func(c *Coordinator) { c.gen = g }
}

// WithEngine sets the pacing engine.
func WithEngine(e *pacing.Engine) Option {
	return func(c *Coordinator) { c.engine = e }
}

// WithReconciler sets the reconciler.
func WithReconciler(r *extract.Reconciler) Option {
	return func(c *Coordinator) { c.reconciler = r }
}

// WithClassifier sets the traffic classifier.
func WithClassifier(cl *intercept.Classifier) Option {
	return func(c *Coordinator) { c.classifier = cl }
}

// Coordinator processes URLs strictly one at a time on a single Page.
// Process and ProcessAll may be called concurrently; runs are serialised.
type Coordinator struct {
	page Page
	cfg  Config

	gen         *fingerprint.Generator
	engine      *pacing.Engine
	reconciler  *extract.Reconciler
	classifier  *intercept.Classifier
	interceptor *intercept.Interceptor

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	runMu sync.Mutex

	stateMu sync.RWMutex
	state   *pacing.SessionState
	current State
	applied bool
}

// NewCoordinator wires page events into a fresh interceptor and draws the
// session's first fingerprint.
func NewCoordinator(page Page, cfg Config, opts ...Option) *Coordinator {
	c := &Coordinator{
		page:    page,
		cfg:     cfg,
		now:     time.Now,
		sleep:   sleepCtx,
		current: StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.gen == nil {
		c.gen = fingerprint.NewRandomGenerator()
	}
	if c.engine == nil {
		c.engine = pacing.NewRandomEngine(cfg.Pacing)
	}
	if c.reconciler == nil {
		c.reconciler = extract.MustReconciler(extract.DefaultPatterns())
	}
	if c.classifier == nil {
		c.classifier = intercept.NewClassifier(intercept.DefaultMarkers())
	}
	c.interceptor = intercept.New(c.classifier, intercept.NewStore())
	c.interceptor.Store().Seal()
	c.state = pacing.NewSessionState(c.gen.Generate(cfg.Mobile), c.now())

	page.OnRequest(c.interceptor.OnRequest)
	page.OnResponse(func(r intercept.Response) {
		_, _ = c.interceptor.OnResponse(r)
	})
	return c
}

// Close closes the underlying page.
func (c *Coordinator) Close() error {
	return c.page.Close()
}

// Interceptor exposes the traffic interceptor.
func (c *Coordinator) Interceptor() *intercept.Interceptor { return c.interceptor }

// State returns a copy of the session state.
func (c *Coordinator) State() pacing.SessionState {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state.Snapshot()
}

// CurrentState is the state machine position of the URL in flight.
func (c *Coordinator) CurrentState() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.current
}

func (c *Coordinator) withState(fn func(s *pacing.SessionState)) {
	c.stateMu.Lock()
	fn(c.state)
	c.stateMu.Unlock()
}

func (c *Coordinator) transition(url string, st State) {
	c.stateMu.Lock()
	c.current = st
	c.stateMu.Unlock()
	slog.Debug("session: transition", "url", url, "state", string(st))
}

// Process extracts one URL.
func (c *Coordinator) Process(ctx context.Context, url string) (*models.CanonicalEntity, error) {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	return c.process(ctx, url)
}

// process runs the per-URL state machine. The payload store is open only
// from just before navigation until the URL finishes, so traffic from
// pacing waits and between URLs never reaches reconciliation. The store
// is sealed and the rotation predicate checked whatever the outcome.
func (c *Coordinator) process(ctx context.Context, rawURL string) (*models.CanonicalEntity, error) {
	if err := validateURL(rawURL); err != nil {
		return nil, err
	}
	if err := c.ensureProfile(ctx); err != nil {
		slog.Warn("session: initial fingerprint not applied", "error", err)
	}

	defer func() {
		c.interceptor.Store().Seal()
		c.transition(rawURL, StateIdle)
		c.maybeRotate(ctx)
	}()

	// ── 1. Navigating ──
	c.transition(rawURL, StateNavigating)
	if c.cfg.AntiDetection {
		c.stateMu.RLock()
		delay := c.engine.DelayBeforeRequest(c.state)
		c.stateMu.RUnlock()
		slog.Debug("session: pacing delay", "url", rawURL, "delay", delay)
		if err := c.sleep(ctx, delay); err != nil {
			c.transition(rawURL, StateFailed)
			return nil, models.CategorizeError(err, "interrupted before navigation")
		}
	}

	urlCtx, cancel := context.WithTimeout(ctx, c.urlTimeout())
	defer cancel()

	c.interceptor.Store().Begin()
	c.withState(func(s *pacing.SessionState) { s.RecordRequest(c.now()) })
	if err := c.page.Navigate(urlCtx, rawURL); err != nil {
		c.withState(func(s *pacing.SessionState) { s.RecordError() })
		c.transition(rawURL, StateFailed)
		slog.Warn("session: navigation failed", "url", rawURL, "error", err)
		return nil, models.CategorizeError(err, "navigation failed")
	}
	c.withState(func(s *pacing.SessionState) { s.RecordSuccess() })

	// ── 2. Settling ──
	c.transition(rawURL, StateSettling)
	if err := c.settle(urlCtx, rawURL); err != nil {
		c.transition(rawURL, StateFailed)
		return nil, models.CategorizeError(err, "page did not settle")
	}

	// ── 3. Extracting ──
	c.transition(rawURL, StateExtracting)
	html, err := c.page.HTML(urlCtx)
	if err != nil {
		c.transition(rawURL, StateFailed)
		return nil, models.CategorizeError(err, "failed to read rendered html")
	}
	payloads := c.interceptor.Store().Snapshot()
	if failures := c.interceptor.Store().Failures(); len(failures) > 0 {
		slog.Debug("session: undecodable responses", "url", rawURL, "count", len(failures))
	}

	// ── 4. Reconciling ──
	c.transition(rawURL, StateReconciling)
	entity := c.reconciler.Reconcile(payloads, html, rawURL)

	c.transition(rawURL, StateDone)
	slog.Info("session: extracted", "url", rawURL, "content_type", string(entity.ContentType), "payloads", payloads.Len())
	return entity, nil
}

func (c *Coordinator) urlTimeout() time.Duration {
	if c.cfg.URLTimeout > 0 {
		return c.cfg.URLTimeout
	}
	return DefaultConfig().URLTimeout
}

// ensureProfile presents the session's first fingerprint once.
func (c *Coordinator) ensureProfile(ctx context.Context) error {
	c.stateMu.RLock()
	applied, profile := c.applied, c.state.Profile
	c.stateMu.RUnlock()
	if applied || !c.cfg.AntiDetection {
		return nil
	}
	if err := c.page.ApplyProfile(ctx, profile); err != nil {
		return err
	}
	c.stateMu.Lock()
	c.applied = true
	c.stateMu.Unlock()
	return nil
}

// settle lets asynchronous traffic finish. With anti-detection on it
// dismisses overlays and performs a paced mouse move and scroll first.
func (c *Coordinator) settle(ctx context.Context, rawURL string) error {
	if res, err := c.page.ExecuteScript(ctx, `() => document.readyState`); err == nil {
		slog.Debug("session: document state", "url", rawURL, "ready_state", res.Str())
	}

	if c.cfg.AntiDetection {
		if n, err := c.page.DismissOverlays(ctx); err != nil {
			slog.Debug("session: overlay dismissal failed", "url", rawURL, "error", err)
		} else if n > 0 {
			c.withState(func(s *pacing.SessionState) { s.RecordAction(pacing.ActionClick, n, c.now()) })
		}

		vp, err := c.page.Viewport(ctx)
		if err != nil || vp.Width <= 0 || vp.Height <= 0 {
			p := c.State().Profile
			vp = Viewport{Width: p.Viewport.Width, Height: p.Viewport.Height}
		}

		if err := c.simulateMouse(ctx, vp); err != nil {
			return err
		}
		if err := c.simulateScroll(ctx, vp); err != nil {
			return err
		}
	}

	if err := c.sleep(ctx, c.cfg.SettleDelay); err != nil {
		return err
	}
	return ctx.Err()
}

func (c *Coordinator) actionPause(ctx context.Context) error {
	c.stateMu.RLock()
	d := c.engine.ActionDelay(c.state)
	c.stateMu.RUnlock()
	return c.sleep(ctx, d)
}

func (c *Coordinator) simulateMouse(ctx context.Context, vp Viewport) error {
	if err := c.actionPause(ctx); err != nil {
		return err
	}
	from := pacing.Point{X: float64(vp.Width) * 0.25, Y: float64(vp.Height) * 0.3}
	to := pacing.Point{X: float64(vp.Width) * 0.6, Y: float64(vp.Height) * 0.55}

	steps := c.engine.SimulateMouse(from, to)
	for _, st := range steps {
		if err := c.page.MoveMouse(ctx, st.X, st.Y); err != nil {
			slog.Debug("session: mouse move failed", "error", err)
			break
		}
		if err := c.sleep(ctx, st.Delay); err != nil {
			return err
		}
	}
	c.withState(func(s *pacing.SessionState) { s.RecordAction(pacing.ActionMouse, len(steps), c.now()) })
	return nil
}

func (c *Coordinator) simulateScroll(ctx context.Context, vp Viewport) error {
	if c.cfg.ScrollDistance <= 0 {
		return nil
	}
	if err := c.actionPause(ctx); err != nil {
		return err
	}

	steps := c.engine.SimulateScroll(vp.ScrollY, vp.ScrollY+c.cfg.ScrollDistance)
	pos := vp.ScrollY
	for _, st := range steps {
		if dy := st.Position - pos; dy != 0 {
			if err := c.page.Scroll(ctx, dy); err != nil {
				slog.Debug("session: scroll failed", "error", err)
				break
			}
		}
		pos = st.Position
		if err := c.sleep(ctx, st.Delay); err != nil {
			return err
		}
	}
	c.withState(func(s *pacing.SessionState) { s.RecordAction(pacing.ActionScroll, len(steps), c.now()) })
	return nil
}

// maybeRotate replaces the fingerprint when a rotation ceiling is passed.
func (c *Coordinator) maybeRotate(ctx context.Context) {
	if !c.cfg.AntiDetection {
		return
	}
	now := c.now()
	c.stateMu.Lock()
	c.state.Touch(now)
	rotate := c.engine.ShouldRotateFingerprint(c.state)
	snap := c.state.Snapshot()
	c.stateMu.Unlock()
	if !rotate {
		return
	}

	next := c.gen.Generate(c.cfg.Mobile)
	if err := c.page.ApplyProfile(context.WithoutCancel(ctx), next); err != nil {
		slog.Warn("session: fingerprint rotation failed", "error", err)
		return
	}
	c.withState(func(s *pacing.SessionState) { s.Rotate(next, now) })
	slog.Info("session: fingerprint rotated",
		"archetype", next.Archetype,
		"requests", snap.Requests,
		"conn_errors", snap.ConnErrors,
		"elapsed", snap.Elapsed,
	)
}

// validateURL accepts absolute http(s) URLs only.
func validateURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		if err == nil {
			err = errors.New("not an absolute http(s) url")
		}
		return models.NewScrapeError(models.ErrCodeInvalidInput, fmt.Sprintf("invalid url %q", raw), err)
	}
	return nil
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
