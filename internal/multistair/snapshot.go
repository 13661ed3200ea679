package multistair

import (
	"github.com/roach88/trialkit/internal/ir"
	"github.com/roach88/trialkit/internal/staircase"
)

// Snapshot is the serializable state of a coordinator.
type Snapshot struct {
	Kind       string               `json:"kind"`
	Name       string               `json:"name"`
	StairType  string               `json:"stair_type"`
	Method     string               `json:"method"`
	Seed       int64                `json:"seed"`
	Conditions *ir.ConditionSet     `json:"conditions"`
	Active     []int                `json:"active"`
	Finished   bool                 `json:"finished"`
	Sequence   []int                `json:"sequence"`
	Staircases []staircase.Snapshot `json:"staircases"`
}

// Snapshot captures every staircase and the interleaving so far.
func (c *Coordinator) Snapshot() Snapshot {
	stairs := make([]staircase.Snapshot, len(c.stairs))
	for i, sc := range c.stairs {
		stairs[i] = sc.Snapshot()
	}
	return Snapshot{
		Kind:       string(ir.LoopStaircase),
		Name:       c.name,
		StairType:  string(c.stairType),
		Method:     string(c.method),
		Seed:       c.seed,
		Conditions: c.conditions,
		Active:     c.Active(),
		Finished:   c.Finished(),
		Sequence:   c.Sequence(),
		Staircases: stairs,
	}
}
