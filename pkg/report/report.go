// Package report folds page outcomes into a run verdict and renders it.
package report

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/entrhq/visreg/pkg/types"
)

// FailingPage identifies one (capability, page) pair that did not pass.
type FailingPage struct {
	Capability string     `json:"capability"`
	Page       string     `json:"page"`
	Kind       types.Kind `json:"kind,omitempty"`
	Reason     string     `json:"reason,omitempty"`
}

func (f FailingPage) String() string {
	return fmt.Sprintf("%s /%s", f.Capability, f.Page)
}

// RunReport is the verdict of one run.
type RunReport struct {
	RunID     string        `json:"run_id,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`

	Success bool `json:"success"`
	Total   int  `json:"total"`
	Passed  int  `json:"passed"`
	Failed  int  `json:"failed"`

	// FailingPages is ordered by capability, then catalog order.
	FailingPages []FailingPage `json:"failing_pages"`

	// Outcomes holds every outcome in the same order.
	Outcomes []types.PageOutcome `json:"outcomes"`
}

// Aggregate builds the report for outcomes. It does no I/O and does not
// modify its input. The run succeeds iff every outcome is a Success.
func Aggregate(outcomes []types.PageOutcome) *RunReport {
	sorted := make([]types.PageOutcome, len(outcomes))
	copy(sorted, outcomes)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].CapabilityIndex != sorted[j].CapabilityIndex {
			return sorted[i].CapabilityIndex < sorted[j].CapabilityIndex
		}
		return sorted[i].PageIndex < sorted[j].PageIndex
	})

	r := &RunReport{
		Success:      true,
		Total:        len(sorted),
		FailingPages: []FailingPage{},
		Outcomes:     sorted,
	}

	for _, o := range sorted {
		if o.Succeeded() {
			r.Passed++
			continue
		}
		r.Success = false
		r.Failed++
		r.FailingPages = append(r.FailingPages, FailingPage{
			Capability: o.Capability,
			Page:       o.Page,
			Kind:       o.Kind,
			Reason:     o.Reason,
		})
	}

	return r
}

// Err returns nil for a successful run, otherwise an error listing every
// failing pair. Visual changes are listed apart from pages that could not be
// validated at all.
func (r *RunReport) Err() error {
	if r.Success {
		return nil
	}
	var changed, broken []string
	for _, f := range r.FailingPages {
		if f.Kind == types.KindMismatch {
			changed = append(changed, f.String())
		} else {
			broken = append(broken, f.String())
		}
	}

	var parts []string
	if len(changed) > 0 {
		parts = append(parts, "changes found for "+strings.Join(changed, ", "))
	}
	if len(broken) > 0 {
		parts = append(parts, "could not validate "+strings.Join(broken, ", "))
	}
	return errors.New(strings.Join(parts, "; "))
}

// ByCapability groups outcomes by capability name, preserving order.
func (r *RunReport) ByCapability() (names []string, groups map[string][]types.PageOutcome) {
	groups = make(map[string][]types.PageOutcome)
	for _, o := range r.Outcomes {
		if _, ok := groups[o.Capability]; !ok {
			names = append(names, o.Capability)
		}
		groups[o.Capability] = append(groups[o.Capability], o)
	}
	return names, groups
}
