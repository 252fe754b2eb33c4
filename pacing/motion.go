package pacing

import (
	"math"
	"time"
)

// ScrollStep is one incremental scroll target.
type ScrollStep struct {
	Position int
	Delay    time.Duration
}

// Point is a viewport coordinate.
type Point struct {
	X, Y float64
}

// MouseStep is one sample of a simulated mouse path.
type MouseStep struct {
	Point
	Delay time.Duration
}

const (
	minScrollSteps = 5
	maxScrollSteps = 40
	minMouseSteps  = 8
	maxMouseSteps  = 60
)

// SimulateScroll returns an ease-in-out sequence of positions from from to
// to. Positions are monotonic, the last one is exactly to, and step sizes
// peak mid-sequence. from == to yields a single step at to.
func (e *Engine) SimulateScroll(from, to int) []ScrollStep {
	if from == to {
		return []ScrollStep{{Position: to, Delay: e.stepDelay()}}
	}

	dist := to - from
	stepPx := max(e.cfg.ScrollStepPx, 1)
	n := min(max(abs(dist)/stepPx+minScrollSteps, minScrollSteps), maxScrollSteps)

	steps := make([]ScrollStep, 0, n)
	for i := 1; i <= n; i++ {
		t := float64(i) / float64(n)
		pos := from + int(math.Round(float64(dist)*smoothstep(t)))
		if i == n {
			pos = to
		}
		steps = append(steps, ScrollStep{Position: pos, Delay: e.stepDelay()})
	}
	return steps
}

// SimulateMouse returns an eased path from from to to with a small
// perpendicular wobble that vanishes at both endpoints.
func (e *Engine) SimulateMouse(from, to Point) []MouseStep {
	dx, dy := to.X-from.X, to.Y-from.Y
	dist := math.Hypot(dx, dy)
	if dist == 0 {
		return []MouseStep{{Point: to, Delay: e.stepDelay()}}
	}

	stepPx := float64(max(e.cfg.MouseStepPx, 1))
	n := min(max(int(dist/stepPx)+minMouseSteps, minMouseSteps), maxMouseSteps)

	// unit normal to the straight path
	nx, ny := -dy/dist, dx/dist

	e.mu.Lock()
	amp := (e.rng.Float64()*2 - 1) * e.cfg.MouseWobblePx
	e.mu.Unlock()

	steps := make([]MouseStep, 0, n)
	for i := 1; i <= n; i++ {
		t := float64(i) / float64(n)
		p := smoothstep(t)
		w := amp * math.Sin(math.Pi*t)
		pt := Point{X: from.X + dx*p + nx*w, Y: from.Y + dy*p + ny*w}
		if i == n {
			pt = to
		}
		steps = append(steps, MouseStep{Point: pt, Delay: e.stepDelay()})
	}
	return steps
}

func (e *Engine) stepDelay() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.uniform(e.cfg.StepDelayMin, e.cfg.StepDelayMax)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
