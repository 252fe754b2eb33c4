package session

import (
	"github.com/use-agent/igextract/models"
)

// StealthReport snapshots the anti-detection state. It is safe to call
// while a run is in progress.
func (c *Coordinator) StealthReport() models.StealthReport {
	s := c.State()
	p := s.Profile

	return models.StealthReport{
		Enabled: c.cfg.AntiDetection,
		Fingerprint: models.FingerprintSummary{
			Archetype:           p.Archetype,
			Platform:            p.Platform,
			UserAgent:           p.UserAgent,
			ScreenResolution:    p.Screen.String(),
			Viewport:            p.Viewport.String(),
			HardwareConcurrency: p.HardwareConcurrency,
			DeviceMemoryGB:      p.DeviceMemoryGB,
			Timezone:            p.Timezone,
			Locale:              p.Locale,
			Mobile:              p.Mobile,
		},
		Behavior: models.BehaviorCounters{
			TotalActions:  s.Actions,
			MouseSamples:  s.MouseSamples,
			ScrollSamples: s.ScrollSamples,
			ClickSamples:  s.ClickSamples,
		},
		Network: models.NetworkCounters{
			RequestCount:          s.Requests,
			TotalRequests:         s.TotalRequests,
			AverageSpacingSeconds: round2(s.AverageGap().Seconds()),
			ConnectionErrors:      s.ConnErrors,
			Rotations:             s.Rotations,
			ObservedRequests:      c.interceptor.ObservedRequests(),
			DecodeFailures:        int(c.interceptor.DecodeFailures()),
		},
	}
}
