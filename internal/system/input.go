package system

import (
	"time"

	"github.com/noodles/ramen/internal/client"
	coresys "github.com/noodles/ramen/internal/core/system"
	"go.uber.org/zap"
)

// InputSystem drains inbound frames and applies them to the client.
// Phase 0 (Input).
type InputSystem struct {
	in         <-chan []byte
	client     *client.Client
	maxPerTick int
	log        *zap.Logger
}

func NewInputSystem(in <-chan []byte, c *client.Client, maxPerTick int, log *zap.Logger) *InputSystem {
	if maxPerTick <= 0 {
		maxPerTick = 32
	}
	return &InputSystem{
		in:         in,
		client:     c,
		maxPerTick: maxPerTick,
		log:        log,
	}
}

func (s *InputSystem) Phase() coresys.Phase { return coresys.PhaseInput }

func (s *InputSystem) Update(_ time.Duration) {
	for i := 0; i < s.maxPerTick; i++ {
		select {
		case data := <-s.in:
			// Anomalies are already logged and counted by the client.
			if err := s.client.HandleFrame(data); err != nil {
				s.log.Debug("frame dropped", zap.Int("bytes", len(data)), zap.Error(err))
			}
		default:
			return
		}
	}
}
