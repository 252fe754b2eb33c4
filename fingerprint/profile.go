// Package fingerprint generates internally consistent device and environment
// profiles for a browser session.
//
// Every hardware attribute of a profile is taken from a single archetype row
// and the timezone/locale pair from a single region row, so a profile can
// never pair, say, a two-core netbook with a 4K panel.
package fingerprint

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"sync"
)

// Resolution is a width/height pair in CSS pixels.
type Resolution struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// Profile is an immutable environment bundle presented to detection surfaces.
type Profile struct {
	Archetype           string
	Platform            string
	UserAgent           string
	Screen              Resolution
	Viewport            Resolution
	DeviceScaleFactor   float64
	HardwareConcurrency int
	DeviceMemoryGB      int
	Timezone            string
	Locale              string
	AcceptLanguage      string
	Mobile              bool
}

// Generator draws profiles from the archetype tables. It is safe for
// concurrent use; a Generator built with NewGenerator is deterministic.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewGenerator returns a Generator whose sequence of profiles is fully
// determined by seed.
func NewGenerator(seed uint64) *Generator {
	return &Generator{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// NewRandomGenerator seeds a Generator from crypto/rand.
func NewRandomGenerator() *Generator {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return NewGenerator(rand.Uint64())
	}
	return NewGenerator(binary.LittleEndian.Uint64(b[:]))
}

// Generate picks an archetype for the requested device class and derives
// every correlated field from it.
func (g *Generator) Generate(mobile bool) Profile {
	g.mu.Lock()
	defer g.mu.Unlock()

	table := desktopArchetypes
	if mobile {
		table = mobileArchetypes
	}
	a := table[g.rng.IntN(len(table))]
	hw := a.Hardware[g.rng.IntN(len(a.Hardware))]
	region := regions[g.rng.IntN(len(regions))]
	major := a.BrowserMajors[g.rng.IntN(len(a.BrowserMajors))]

	return Profile{
		Archetype:           a.Name,
		Platform:            a.Platform,
		UserAgent:           fmt.Sprintf(a.UserAgentFormat, major),
		Screen:              hw.Screen,
		Viewport:            viewportFor(hw.Screen, a.Mobile),
		DeviceScaleFactor:   hw.ScaleFactor,
		HardwareConcurrency: hw.Cores,
		DeviceMemoryGB:      hw.MemoryGB,
		Timezone:            region.Timezone,
		Locale:              region.Locale,
		AcceptLanguage:      region.AcceptLanguage,
		Mobile:              a.Mobile,
	}
}

// viewportFor subtracts browser chrome from the screen on desktop; mobile
// pages render edge to edge.
func viewportFor(screen Resolution, mobile bool) Resolution {
	if mobile {
		return screen
	}
	return Resolution{Width: screen.Width, Height: screen.Height - desktopChromeHeight}
}

// ArchetypeNamed returns the archetype row with the given name.
func ArchetypeNamed(name string) (Archetype, bool) {
	for _, a := range desktopArchetypes {
		if a.Name == name {
			return a, true
		}
	}
	for _, a := range mobileArchetypes {
		if a.Name == name {
			return a, true
		}
	}
	return Archetype{}, false
}

// Consistent reports whether p could have been produced by Generate: its
// hardware tuple belongs to its archetype and its locale to its timezone.
func Consistent(p Profile) bool {
	a, ok := ArchetypeNamed(p.Archetype)
	if !ok || a.Platform != p.Platform || a.Mobile != p.Mobile {
		return false
	}
	hwOK := false
	for _, hw := range a.Hardware {
		if hw.Cores == p.HardwareConcurrency && hw.MemoryGB == p.DeviceMemoryGB &&
			hw.Screen == p.Screen && hw.ScaleFactor == p.DeviceScaleFactor {
			hwOK = true
			break
		}
	}
	if !hwOK || p.Viewport != viewportFor(p.Screen, p.Mobile) {
		return false
	}
	for _, r := range regions {
		if r.Timezone == p.Timezone && r.Locale == p.Locale && r.AcceptLanguage == p.AcceptLanguage {
			return true
		}
	}
	return false
}
