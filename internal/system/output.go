package system

import (
	"time"

	"github.com/noodles/ramen/internal/client"
	coresys "github.com/noodles/ramen/internal/core/system"
	"go.uber.org/zap"
)

// Outbound is the transport side of the output phase.
type Outbound interface {
	client.Sender
	FlushOutput()
}

// OutputSystem encodes queued client messages and flushes the transport.
// Phase 4 (Output).
type OutputSystem struct {
	client *client.Client
	out    Outbound
	log    *zap.Logger
}

func NewOutputSystem(c *client.Client, out Outbound, log *zap.Logger) *OutputSystem {
	return &OutputSystem{client: c, out: out, log: log}
}

func (s *OutputSystem) Phase() coresys.Phase { return coresys.PhaseOutput }

func (s *OutputSystem) Update(_ time.Duration) {
	if err := s.client.FlushOutput(s.out); err != nil {
		s.log.Error("outbound frame dropped", zap.Error(err))
	}
	s.out.FlushOutput()
}
