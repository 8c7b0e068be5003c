package system

import (
	"time"

	"github.com/noodles/ramen/internal/client"
	"github.com/noodles/ramen/internal/core/slot"
	coresys "github.com/noodles/ramen/internal/core/system"
	"github.com/noodles/ramen/internal/metrics"
)

// GaugeSystem publishes per-collection record counts every interval ticks.
// Phase 3 (PostUpdate).
type GaugeSystem struct {
	client    *client.Client
	metrics   *metrics.Metrics
	interval  int
	tickCount int
}

func NewGaugeSystem(c *client.Client, m *metrics.Metrics, intervalTicks int) *GaugeSystem {
	if intervalTicks <= 0 {
		intervalTicks = 1
	}
	return &GaugeSystem{client: c, metrics: m, interval: intervalTicks}
}

func (s *GaugeSystem) Phase() coresys.Phase { return coresys.PhasePostUpdate }

func (s *GaugeSystem) Update(_ time.Duration) {
	s.tickCount++
	if s.tickCount < s.interval {
		return
	}
	s.tickCount = 0
	s.client.Collections().Each(func(col *slot.Collection) {
		s.metrics.SetRecords(col.Name, col.Store.Len())
	})
}
