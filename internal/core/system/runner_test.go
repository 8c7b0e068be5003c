package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type probe struct {
	phase Phase
	name  string
	log   *[]string
}

func (p probe) Phase() Phase { return p.phase }
func (p probe) Update(time.Duration) { *p.log = append(*p.log, p.name) }

func TestRunnerPhaseOrder(t *testing.T) {
	var log []string
	r := NewRunner()
	r.Register(probe{PhaseOutput, "out", &log})
	r.Register(probe{PhaseInput, "in", &log})
	r.Register(probe{PhaseUpdate, "tasks", &log})
	r.Register(probe{PhaseInput, "in2", &log})
	r.Register(probe{PhasePersist, "journal", &log})

	r.Tick(time.Millisecond)
	assert.Equal(t, []string{"in", "in2", "tasks", "out", "journal"}, log)
	assert.Equal(t, 5, r.Len())

	log = nil
	r.TickPhase(PhaseInput, 0)
	assert.Equal(t, []string{"in", "in2"}, log)
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "Input", PhaseInput.String())
	assert.Equal(t, "Persist", PhasePersist.String())
	assert.Equal(t, "Unknown", Phase(42).String())
}
