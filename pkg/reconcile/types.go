// Package reconcile computes the admitted candidate view from the station's
// location, its match threshold, the server-provided candidate catalog, and
// the user's override lists. The computation is exposed as a state machine
// with a single in-flight execution guarantee: a run captures all of its
// inputs synchronously before the catalog call suspends, so edits made while
// the call is outstanding can never corrupt the cross-reference.
package reconcile

import (
	"github.com/agentstation/utc"
)

// Phase is the tag of the pipeline state machine.
type Phase string

// Pipeline phases. Modeling these as a tagged state instead of independent
// booleans makes impossible combinations (loading and failed at once)
// unrepresentable.
const (
	PhaseIdle          Phase = "idle"
	PhaseLocationUnset Phase = "location_unset"
	PhaseLoading       Phase = "loading"
	PhaseReady         Phase = "ready"
	PhaseFailed        Phase = "failed"
)

// State is the published pipeline state. Snapshot is non-nil only in
// PhaseReady; Err is non-empty only in PhaseFailed.
type State struct {
	Phase    Phase
	Snapshot *Snapshot
	Err      string
}

// Location is a coordinate pair. Both components equal to zero is the
// "not configured" sentinel and short-circuits the pipeline without a
// network call.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Unset reports whether the location carries the not-configured sentinel.
func (l Location) Unset() bool {
	return l.Latitude == 0 && l.Longitude == 0
}

// Inputs is the immutable parameter set of one pipeline run, captured
// synchronously before the catalog call.
type Inputs struct {
	Location  Location
	Threshold float64
	Mode      string
}

// Candidate is one admitted entry of the reconciled view. Candidates are
// produced fresh on each run and never mutated in place.
type Candidate struct {
	ID               string  `json:"id"`
	CommonName       string  `json:"commonName"`
	ScientificName   string  `json:"scientificName"`
	Score            float64 `json:"score"`
	ManuallyIncluded bool    `json:"manuallyIncluded"`
	HasOverride      bool    `json:"hasOverride"`
}

// Snapshot is the result of one successful run. It is immutable once
// produced and superseded wholesale by the next successful run.
type Snapshot struct {
	RunID         string      `json:"runId"`
	Items         []Candidate `json:"items"`
	AdmittedCount int         `json:"admittedCount"`
	ThresholdUsed float64     `json:"thresholdUsed"`
	LocationUsed  Location    `json:"locationUsed"`
	ComputedAt    utc.Time    `json:"computedAt"`
}
