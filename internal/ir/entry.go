package ir

// Entry is one presented trial of a loop, flattened for export.
// Trial handlers and staircase coordinators both produce entries so the
// loop registry can union them into a single table.
type Entry struct {
	// Loop is the owning loop's name.
	Loop string `json:"loop"`

	// N is the zero-based position in the loop's presentation order.
	N int `json:"n"`

	// Rep is the repetition index (trial loops) or the staircase's own
	// trial count (staircase loops).
	Rep int `json:"rep"`

	// TrialInRep is the position within the repetition (trial loops) or the
	// staircase id (staircase loops).
	TrialInRep int `json:"trial_in_rep"`

	// Index is the condition index in the loop's ConditionSet.
	Index int `json:"index"`

	Condition Condition `json:"condition"`

	// Data holds recorded values in data type declaration order. Slots never
	// written hold Missing.
	Data []Field `json:"data"`
}

// Value returns the recorded value for name, or Missing.
func (e Entry) Value(name string) Value {
	for _, f := range e.Data {
		if f.Name == name {
			return f.Value
		}
	}
	return Missing{}
}
