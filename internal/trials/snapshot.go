package trials

import "github.com/roach88/trialkit/internal/ir"

// Snapshot is the serializable state of a handler, written as a .psydat
// file by the export package.
type Snapshot struct {
	Kind       string             `json:"kind"`
	Name       string             `json:"name"`
	Method     string             `json:"method"`
	NReps      int                `json:"n_reps"`
	Seed       int64              `json:"seed"`
	State      string             `json:"state"`
	Conditions *ir.ConditionSet   `json:"conditions"`
	Sequence   []int              `json:"sequence"`
	Presented  int                `json:"presented"`
	DataTypes  []string           `json:"data_types"`
	Data       map[string]ir.List `json:"data"`
}

// Snapshot captures the handler's configuration, position, and data.
func (h *Handler) Snapshot() Snapshot {
	names := h.data.Names()
	data := make(map[string]ir.List, len(names))
	for _, name := range names {
		data[name] = ir.List(h.data.Column(name))
	}
	return Snapshot{
		Kind:       string(ir.LoopTrials),
		Name:       h.name,
		Method:     string(h.method),
		NReps:      h.nReps,
		Seed:       h.seed,
		State:      h.state.String(),
		Conditions: h.conditions,
		Sequence:   h.Sequence(),
		Presented:  h.Presented(),
		DataTypes:  names,
		Data:       data,
	}
}
