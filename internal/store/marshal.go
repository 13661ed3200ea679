package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/trialkit/internal/ir"
)

// marshalSpec converts the resolved spec to JSON TEXT for storage.
// Conditions keep their field order, so the stored spec rebuilds identical
// export columns on replay.
func marshalSpec(spec ir.ExperimentSpec) (string, error) {
	data, err := json.Marshal(spec)
	if err != nil {
		return "", fmt.Errorf("marshal spec: %w", err)
	}
	return string(data), nil
}

func unmarshalSpec(data string) (ir.ExperimentSpec, error) {
	var spec ir.ExperimentSpec
	if err := json.Unmarshal([]byte(data), &spec); err != nil {
		return ir.ExperimentSpec{}, fmt.Errorf("unmarshal spec: %w", err)
	}
	return spec, nil
}

func marshalCondition(c ir.Condition) (string, error) {
	data, err := c.MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("marshal condition: %w", err)
	}
	return string(data), nil
}

func unmarshalCondition(data string) (ir.Condition, error) {
	var c ir.Condition
	if data == "" {
		return ir.NewCondition(), nil
	}
	if err := c.UnmarshalJSON([]byte(data)); err != nil {
		return ir.Condition{}, fmt.Errorf("unmarshal condition: %w", err)
	}
	return c, nil
}

// marshalFields stores recorded data as an ordered JSON object. Missing
// slots become null and decode back to Missing.
func marshalFields(fields []ir.Field) (string, error) {
	data, err := ir.NewCondition(fields...).MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("marshal data: %w", err)
	}
	return string(data), nil
}

func unmarshalFields(data string) ([]ir.Field, error) {
	c, err := unmarshalCondition(data)
	if err != nil {
		return nil, fmt.Errorf("unmarshal data: %w", err)
	}
	return c.Fields(), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
