package system

import (
	"time"

	"github.com/noodles/ramen/internal/client"
	coresys "github.com/noodles/ramen/internal/core/system"
)

// TaskSystem runs completions posted by fetches. Phase 2 (Update).
type TaskSystem struct {
	client *client.Client
	ran    int
}

func NewTaskSystem(c *client.Client) *TaskSystem {
	return &TaskSystem{client: c}
}

func (s *TaskSystem) Phase() coresys.Phase { return coresys.PhaseUpdate }

func (s *TaskSystem) Update(_ time.Duration) {
	s.ran += s.client.RunTasks()
}

// Ran returns the total number of tasks run so far.
func (s *TaskSystem) Ran() int { return s.ran }
