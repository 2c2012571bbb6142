// Package refinement implements the dependency-DAG driven,
// iteration-bounded hole-fill loop (component F).
package refinement

import "time"

// Status is a hole's position in the state machine (spec.md §3 "Hole
// state"): Pending -> InProgress -> (Filled | Failed | Skipped |
// NeedsHuman), with RetryAlternate demoting Failed back to Pending.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusFilled     Status = "filled"
	StatusFailed     Status = "failed"
	StatusSkipped    Status = "skipped"
	StatusNeedsHuman Status = "needs_human"
)

// terminal reports whether a status ends refinement for that hole
// (spec.md §4.5 step 2 "all holes are in terminal states").
func (s Status) terminal() bool {
	switch s {
	case StatusFilled, StatusFailed, StatusSkipped, StatusNeedsHuman:
		return true
	}
	return false
}

// Constraint mirrors router.FillConstraint without importing router, to
// keep the scheduler free of a dependency on routing concerns.
type Constraint struct {
	Kind         string
	Value        string
	ErrorMessage string
}

// Attempt is one inference attempt against a hole (spec.md §3 "Attempt
// record").
type Attempt struct {
	Text             string
	Confidence       float64
	Temperature      float64
	Model            string
	Timestamp        time.Time
	ValidationPassed bool
	Error            string
}

// HoleState is the scheduler-owned mutable state of one hole (spec.md §3
// "Hole state").
type HoleState struct {
	ID           int
	Scale        string // expression|statement|block|function|module|specification|nano|micro|meso|macro
	Origin       string // user_marked|generation_limit|constraint_conflict|structural|type_inference_failure|uncertainty
	ExpectedType string
	Constraints  []Constraint
	CurrentFill  string
	Confidence   float64
	Attempts     []Attempt
	Status       Status
	DependsOn    []int
}

// NewHoleState builds a HoleState in the Pending status.
func NewHoleState(id int, scale, origin string, dependsOn []int) *HoleState {
	return &HoleState{ID: id, Scale: scale, Origin: origin, Status: StatusPending, DependsOn: dependsOn}
}

// isReady reports whether h is Pending and every dependency in filled
// resolves to Filled (spec.md §3 invariant, P8).
func (h *HoleState) isReady(filled map[int]bool) bool {
	if h.Status != StatusPending {
		return false
	}
	for _, dep := range h.DependsOn {
		if !filled[dep] {
			return false
		}
	}
	return true
}
