// Package pacing decides how long to wait before each request or interaction,
// when a session should rotate its fingerprint, and what simulated scroll and
// mouse trajectories look like. It never sleeps; callers honour the returned
// durations.
package pacing

import (
	crand "crypto/rand"
	"encoding/binary"
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

// Config holds the pacing and rotation thresholds.
type Config struct {
	MinDelay time.Duration `yaml:"min_delay"`
	MaxDelay time.Duration `yaml:"max_delay"`

	// Jitter scales the multiplicative noise: the base delay is multiplied by
	// 1 + U(-Jitter, +Jitter).
	Jitter float64 `yaml:"jitter"`

	BackoffBase      float64       `yaml:"backoff_base"`
	BackoffCap       float64       `yaml:"backoff_cap"`
	RequestThreshold int           `yaml:"request_threshold"`
	ErrorThreshold   int           `yaml:"error_threshold"`
	MaxDelayCeiling  time.Duration `yaml:"max_delay_ceiling"`

	ActionMinDelay time.Duration `yaml:"action_min_delay"`
	ActionMaxDelay time.Duration `yaml:"action_max_delay"`

	MaxSessionAge time.Duration `yaml:"max_session_age"`
	MaxRequests   int           `yaml:"max_requests"`
	MaxErrors     int           `yaml:"max_errors"`

	ScrollStepPx  int           `yaml:"scroll_step_px"`
	StepDelayMin  time.Duration `yaml:"step_delay_min"`
	StepDelayMax  time.Duration `yaml:"step_delay_max"`
	MouseWobblePx float64       `yaml:"mouse_wobble_px"`
	MouseStepPx   int           `yaml:"mouse_step_px"`
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		MinDelay:         2 * time.Second,
		MaxDelay:         5 * time.Second,
		Jitter:           0.3,
		BackoffBase:      1.5,
		BackoffCap:       8,
		RequestThreshold: 30,
		ErrorThreshold:   2,
		MaxDelayCeiling:  60 * time.Second,
		ActionMinDelay:   150 * time.Millisecond,
		ActionMaxDelay:   600 * time.Millisecond,
		MaxSessionAge:    300 * time.Second,
		MaxRequests:      50,
		MaxErrors:        5,
		ScrollStepPx:     120,
		StepDelayMin:     15 * time.Millisecond,
		StepDelayMax:     60 * time.Millisecond,
		MouseWobblePx:    6,
		MouseStepPx:      25,
	}
}

// BackoffMultiplier is 1 until the request counter passes RequestThreshold
// or the consecutive error streak passes ErrorThreshold. Past that it grows
// as BackoffBase^excess, where excess is the larger overshoot, and is capped
// at BackoffCap.
func BackoffMultiplier(s *SessionState, cfg Config) float64 {
	excess := max(s.Requests-cfg.RequestThreshold, s.ConsecutiveErrors-cfg.ErrorThreshold)
	if excess <= 0 || cfg.BackoffBase <= 1 {
		return 1
	}
	m := math.Pow(cfg.BackoffBase, float64(excess))
	if cfg.BackoffCap >= 1 && m > cfg.BackoffCap {
		m = cfg.BackoffCap
	}
	return m
}

// ShouldRotateFingerprint reports whether any rotation ceiling is exceeded.
func ShouldRotateFingerprint(s *SessionState, cfg Config) bool {
	return s.Elapsed > cfg.MaxSessionAge ||
		s.Requests > cfg.MaxRequests ||
		s.ConnErrors > cfg.MaxErrors
}

// Engine samples delays and trajectories from its own random source.
type Engine struct {
	cfg Config

	mu  sync.Mutex
	rng *rand.Rand
}

// NewEngine returns an Engine whose samples are determined by seed.
func NewEngine(cfg Config, seed uint64) *Engine {
	return &Engine{cfg: cfg, rng: rand.New(rand.NewPCG(seed, seed>>1|1))}
}

// NewRandomEngine seeds an Engine from crypto/rand.
func NewRandomEngine(cfg Config) *Engine {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return NewEngine(cfg, rand.Uint64())
	}
	return NewEngine(cfg, binary.LittleEndian.Uint64(b[:]))
}

// Config returns the engine's thresholds.
func (e *Engine) Config() Config { return e.cfg }

// DelayBeforeRequest returns how long to wait before the next navigation.
func (e *Engine) DelayBeforeRequest(s *SessionState) time.Duration {
	e.mu.Lock()
	base := e.uniform(e.cfg.MinDelay, e.cfg.MaxDelay)
	noise := 1.0
	if j := min(max(e.cfg.Jitter, 0), 1); j > 0 {
		noise += (e.rng.Float64()*2 - 1) * j
	}
	e.mu.Unlock()

	d := time.Duration(float64(base) * noise * BackoffMultiplier(s, e.cfg))
	if e.cfg.MaxDelayCeiling > 0 && d > e.cfg.MaxDelayCeiling {
		d = e.cfg.MaxDelayCeiling
	}
	return max(d, 0)
}

// ActionDelay returns the pause before a simulated interaction.
func (e *Engine) ActionDelay(s *SessionState) time.Duration {
	e.mu.Lock()
	base := e.uniform(e.cfg.ActionMinDelay, e.cfg.ActionMaxDelay)
	e.mu.Unlock()
	d := time.Duration(float64(base) * BackoffMultiplier(s, e.cfg))
	if e.cfg.MaxDelayCeiling > 0 && d > e.cfg.MaxDelayCeiling {
		d = e.cfg.MaxDelayCeiling
	}
	return d
}

// ShouldRotateFingerprint applies the engine's thresholds to s.
func (e *Engine) ShouldRotateFingerprint(s *SessionState) bool {
	return ShouldRotateFingerprint(s, e.cfg)
}

// uniform must be called with e.mu held.
func (e *Engine) uniform(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(e.rng.Int64N(int64(hi-lo)+1))
}

func smoothstep(t float64) float64 {
	return t * t * (3 - 2*t)
}
