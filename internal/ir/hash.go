package ir

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainSpec       = "trialkit/spec/v1"
	DomainSequence   = "trialkit/sequence/v1"
	DomainConditions = "trialkit/conditions/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// SpecHash computes the content hash of an experiment spec.
// Two specs with the same loops, conditions, seeds, and observer hash equal
// regardless of how they were authored (CUE or YAML).
func SpecHash(spec ExperimentSpec) (string, error) {
	raw, err := json.Marshal(spec)
	if err != nil {
		return "", fmt.Errorf("SpecHash: marshal: %w", err)
	}
	generic, err := decodeGeneric(raw)
	if err != nil {
		return "", fmt.Errorf("SpecHash: decode: %w", err)
	}
	canonical, err := MarshalCanonical(generic)
	if err != nil {
		return "", fmt.Errorf("SpecHash: canonical: %w", err)
	}
	return hashWithDomain(DomainSpec, canonical), nil
}

// SequenceHash computes the content hash of a trial index sequence.
// Used by replay to compare regenerated orderings without storing them twice.
func SequenceHash(sequence []int) string {
	canonical, _ := MarshalCanonical(sequence) // []int never fails
	return hashWithDomain(DomainSequence, canonical)
}

// ConditionsHash computes the content hash of a condition set.
func ConditionsHash(cs *ConditionSet) (string, error) {
	items := make([]any, cs.Len())
	for i := range items {
		items[i] = cs.At(i)
	}
	canonical, err := MarshalCanonical(items)
	if err != nil {
		return "", fmt.Errorf("ConditionsHash: %w", err)
	}
	return hashWithDomain(DomainConditions, canonical), nil
}

// decodeGeneric decodes JSON into map/slice/json.Number/string/bool values,
// dropping nulls so optional fields do not affect the hash.
func decodeGeneric(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return dropNulls(v), nil
}

func dropNulls(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			if elem == nil {
				continue
			}
			out[k] = dropNulls(elem)
		}
		return out
	case []any:
		out := make([]any, 0, len(val))
		for _, elem := range val {
			if elem == nil {
				continue
			}
			out = append(out, dropNulls(elem))
		}
		return out
	default:
		return v
	}
}
