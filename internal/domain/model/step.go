package model

import (
	"fmt"
	"sort"
)

type StepKind string

const (
	StepKindImage StepKind = "image"
	StepKindText  StepKind = "text"
)

// Step is one ordered stage of the pipeline. Steps are static configuration.
type Step struct {
	ID                string
	Ordinal           int
	Kind              StepKind
	PromptTemplateRef string
	Horizon           string
	MaxQualityRetries int
	CostUnits         int64
}

// SortSteps orders steps by ascending ordinal and rejects duplicates.
func SortSteps(steps []Step) ([]Step, error) {
	out := make([]Step, len(steps))
	copy(out, steps)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Ordinal < out[j].Ordinal })

	seenID := make(map[string]struct{}, len(out))
	for i, s := range out {
		if s.ID == "" {
			return nil, fmt.Errorf("step at ordinal %d has empty id", s.Ordinal)
		}
		if _, dup := seenID[s.ID]; dup {
			return nil, fmt.Errorf("duplicate step id %q", s.ID)
		}
		seenID[s.ID] = struct{}{}
		if i > 0 && out[i-1].Ordinal == s.Ordinal {
			return nil, fmt.Errorf("duplicate step ordinal %d", s.Ordinal)
		}
		if s.MaxQualityRetries < 0 {
			return nil, fmt.Errorf("step %q: negative max quality retries", s.ID)
		}
		if s.CostUnits < 0 {
			return nil, fmt.Errorf("step %q: negative cost", s.ID)
		}
	}
	return out, nil
}
