package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
)

// Field is one named attribute of a condition or one recorded data value.
type Field struct {
	Name  string `json:"name"`
	Value Value  `json:"value"`
}

// F is a shorthand for Field construction from a Go literal.
// Example: NewCondition(F("trialType", 0), F("startVal", 0.8))
func F(name string, v any) Field {
	return Field{Name: name, Value: MustValue(v)}
}

// Condition is an ordered set of named attributes describing one trial's
// fixed parameters. Identity is its position in the ConditionSet.
type Condition struct {
	fields []Field
}

// NewCondition builds a condition from fields in declaration order.
// A later field with a duplicate name replaces the earlier value in place.
func NewCondition(fields ...Field) Condition {
	c := Condition{fields: make([]Field, 0, len(fields))}
	for _, f := range fields {
		if f.Value == nil {
			f.Value = Missing{}
		}
		if i := c.index(f.Name); i >= 0 {
			c.fields[i].Value = f.Value
			continue
		}
		c.fields = append(c.fields, f)
	}
	return c
}

func (c Condition) index(name string) int {
	for i, f := range c.fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Fields returns a copy of the condition's fields in declaration order.
func (c Condition) Fields() []Field {
	return slices.Clone(c.fields)
}

// Names returns field names in declaration order.
func (c Condition) Names() []string {
	names := make([]string, len(c.fields))
	for i, f := range c.fields {
		names[i] = f.Name
	}
	return names
}

// Len returns the number of fields.
func (c Condition) Len() int {
	return len(c.fields)
}

// Get returns the named value, or Missing and false when absent.
func (c Condition) Get(name string) (Value, bool) {
	if i := c.index(name); i >= 0 {
		return c.fields[i].Value, true
	}
	return Missing{}, false
}

// Float returns the named value as a float64 when present and numeric.
func (c Condition) Float(name string) (float64, bool) {
	v, ok := c.Get(name)
	if !ok {
		return 0, false
	}
	return AsFloat(v)
}

// Int returns the named value as an int when present and integral.
func (c Condition) Int(name string) (int, bool) {
	v, ok := c.Get(name)
	if !ok {
		return 0, false
	}
	switch val := v.(type) {
	case Int:
		return int(val), true
	case Float:
		if float64(val) == float64(int(val)) {
			return int(val), true
		}
	}
	return 0, false
}

// Text returns the named value formatted for display, or "" when absent.
func (c Condition) Text(name string) string {
	v, _ := c.Get(name)
	return FormatValue(v)
}

// FloatList returns the named value as a list of floats. A scalar number is
// returned as a one-element list.
func (c Condition) FloatList(name string) ([]float64, bool) {
	v, ok := c.Get(name)
	if !ok {
		return nil, false
	}
	if f, ok := AsFloat(v); ok {
		return []float64{f}, true
	}
	list, ok := v.(List)
	if !ok {
		return nil, false
	}
	out := make([]float64, 0, len(list))
	for _, elem := range list {
		f, ok := AsFloat(elem)
		if !ok {
			return nil, false
		}
		out = append(out, f)
	}
	return out, true
}

// Equal compares two conditions field by field, order included.
func (c Condition) Equal(o Condition) bool {
	if len(c.fields) != len(o.fields) {
		return false
	}
	for i := range c.fields {
		if c.fields[i].Name != o.fields[i].Name || !EqualValues(c.fields[i].Value, o.fields[i].Value) {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the condition as an object whose keys keep
// declaration order.
func (c Condition) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range c.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Name)
		if err != nil {
			return nil, fmt.Errorf("marshal key %q: %w", f.Name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := MarshalValue(f.Value)
		if err != nil {
			return nil, fmt.Errorf("marshal value for key %q: %w", f.Name, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object into a condition, preserving key order.
func (c *Condition) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("condition must be a JSON object")
	}

	var fields []Field
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("condition key must be a string")
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("condition key %q: %w", key, err)
		}
		v, err := UnmarshalValue(raw)
		if err != nil {
			return fmt.Errorf("condition key %q: %w", key, err)
		}
		fields = append(fields, Field{Name: key, Value: v})
	}
	*c = NewCondition(fields...)
	return nil
}

// ConditionSet is the immutable, ordered list of conditions shared read-only
// by every component that references it.
//
// The field list is resolved once at construction: the first condition's
// fields in order, followed by names first seen in later conditions. This
// keeps export column order stable without relying on write order.
type ConditionSet struct {
	conditions []Condition
	fields     []string
}

// NewConditionSet builds a ConditionSet.
// Fails with a ConfigurationError when conditions is empty. A single
// condition with no fields is valid and models "one blank trial type".
func NewConditionSet(conditions []Condition) (*ConditionSet, error) {
	if len(conditions) == 0 {
		return nil, &ConfigurationError{
			Component: "conditions",
			Message:   "condition set must not be empty",
		}
	}

	cs := &ConditionSet{conditions: make([]Condition, len(conditions))}
	seen := make(map[string]bool)
	for i, c := range conditions {
		cs.conditions[i] = NewCondition(c.fields...)
		for _, f := range c.fields {
			if !seen[f.Name] {
				seen[f.Name] = true
				cs.fields = append(cs.fields, f.Name)
			}
		}
	}
	return cs, nil
}

// MustConditionSet is NewConditionSet for fixtures. It panics on error.
func MustConditionSet(conditions ...Condition) *ConditionSet {
	cs, err := NewConditionSet(conditions)
	if err != nil {
		panic(err)
	}
	return cs
}

// Blank returns a set holding one condition with no fields.
func Blank() *ConditionSet {
	return MustConditionSet(NewCondition())
}

// Len returns the number of conditions.
func (cs *ConditionSet) Len() int {
	return len(cs.conditions)
}

// At returns the condition at index i. Conditions are values, so callers
// cannot mutate the set through the result.
func (cs *ConditionSet) At(i int) Condition {
	return cs.conditions[i]
}

// Conditions returns a copy of the conditions in order.
func (cs *ConditionSet) Conditions() []Condition {
	return slices.Clone(cs.conditions)
}

// Fields returns the resolved field names in column order.
func (cs *ConditionSet) Fields() []string {
	return slices.Clone(cs.fields)
}

// Equal compares two sets condition by condition.
func (cs *ConditionSet) Equal(o *ConditionSet) bool {
	if cs == o {
		return true
	}
	if cs == nil || o == nil || len(cs.conditions) != len(o.conditions) {
		return false
	}
	for i := range cs.conditions {
		if !cs.conditions[i].Equal(o.conditions[i]) {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the set as a JSON array of ordered objects.
func (cs *ConditionSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(cs.conditions)
}
