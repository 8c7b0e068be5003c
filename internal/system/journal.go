package system

import (
	"context"
	"time"

	coresys "github.com/noodles/ramen/internal/core/system"
	"github.com/noodles/ramen/internal/persist"
	"go.uber.org/zap"
)

// JournalSystem periodically flushes the record journal. Phase 5 (Persist).
type JournalSystem struct {
	journal   *persist.Journal
	writer    persist.JournalWriter
	timeout   time.Duration
	interval  int
	tickCount int
	log       *zap.Logger
}

func NewJournalSystem(j *persist.Journal, w persist.JournalWriter, intervalTicks int, log *zap.Logger) *JournalSystem {
	if intervalTicks <= 0 {
		intervalTicks = 1
	}
	return &JournalSystem{
		journal:  j,
		writer:   w,
		timeout:  5 * time.Second,
		interval: intervalTicks,
		log:      log,
	}
}

func (s *JournalSystem) Phase() coresys.Phase { return coresys.PhasePersist }

func (s *JournalSystem) Update(_ time.Duration) {
	s.tickCount++
	if s.tickCount < s.interval {
		return
	}
	s.tickCount = 0
	s.Flush()
}

// Flush writes everything buffered now. Called on shutdown as well.
func (s *JournalSystem) Flush() {
	if s.journal.Pending() == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.journal.Flush(ctx, s.writer); err != nil {
		s.log.Warn("journal flush failed", zap.Int("pending", s.journal.Pending()), zap.Error(err))
	}
}
