package reconcile

import (
	"context"
	"sort"
	"sync"

	"github.com/agentstation/utc"
	"github.com/google/uuid"

	"github.com/aviarylabs/rangesync/pkg/errors"
	"github.com/aviarylabs/rangesync/pkg/events"
	"github.com/aviarylabs/rangesync/pkg/logging"
	"github.com/aviarylabs/rangesync/pkg/overrides"
)

// CatalogEntry is one raw entry of the server-provided candidate catalog.
type CatalogEntry struct {
	ID             string  `json:"id"`
	CommonName     string  `json:"commonName"`
	ScientificName string  `json:"scientificName"`
	Score          float64 `json:"score"`
}

// CatalogRequest carries the captured inputs to the catalog collaborator.
type CatalogRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Threshold float64 `json:"threshold"`
	Mode      string  `json:"mode,omitempty"`
}

// CatalogResponse is the collaborator's answer to a candidate test.
type CatalogResponse struct {
	Count   int            `json:"count"`
	Entries []CatalogEntry `json:"entries"`
}

// CatalogClient fetches the candidate catalog for a location and threshold.
type CatalogClient interface {
	TestCandidates(ctx context.Context, req CatalogRequest) (CatalogResponse, error)
}

// InputSource supplies the pipeline's numeric inputs. The pipeline reads it
// exactly once per run, synchronously, before the catalog call.
type InputSource interface {
	ReconcileInputs() Inputs
}

// Pipeline runs the reconciliation computation and publishes its state.
type Pipeline struct {
	client    CatalogClient
	source    InputSource
	overrides *overrides.Manager
	broker    *events.Broker
	fence     Fence

	mu    sync.Mutex
	state State
}

// NewPipeline creates a pipeline in PhaseIdle. broker may be nil when no
// event publication is wanted.
func NewPipeline(client CatalogClient, source InputSource, ovr *overrides.Manager, broker *events.Broker) *Pipeline {
	return &Pipeline{
		client:    client,
		source:    source,
		overrides: ovr,
		broker:    broker,
		state:     State{Phase: PhaseIdle},
	}
}

// State returns the current published state. The contained snapshot is
// immutable and safe to share.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Fence exposes the re-entrancy guard, mainly for tests and diagnostics.
func (p *Pipeline) Fence() *Fence {
	return &p.fence
}

// Run executes one reconciliation. It returns errors.ErrInFlight when
// another execution holds the fence; the caller must drop the attempt, not
// queue it. A run aborted by context cancellation lands in PhaseIdle rather
// than PhaseFailed, since a superseded request is not a failure.
func (p *Pipeline) Run(ctx context.Context) error {
	if !p.fence.TryEnter() {
		logging.FromContext(ctx).Debug().Msg("Reconciliation already in flight, dropping trigger")
		return errors.ErrInFlight
	}
	defer p.fence.Leave()

	runID := uuid.NewString()
	ctx = logging.WithRunID(ctx, runID)
	log := logging.FromContext(ctx)

	// Capture every input before the catalog call suspends. The run uses
	// this immutable set throughout; state read after the suspension would
	// silently corrupt the cross-reference.
	in := p.source.ReconcileInputs()
	ref := p.overrides.CrossRef()

	if in.Location.Unset() {
		log.Debug().Msg("Location not configured, skipping catalog fetch")
		p.setState(State{Phase: PhaseLocationUnset})
		return nil
	}

	p.setState(State{Phase: PhaseLoading})
	p.publish(events.ReconcileStarted, map[string]any{"run_id": runID})

	log.Info().
		Float64("latitude", in.Location.Latitude).
		Float64("longitude", in.Location.Longitude).
		Float64("threshold", in.Threshold).
		Msg("Fetching candidate catalog")

	resp, err := p.client.TestCandidates(ctx, CatalogRequest{
		Latitude:  in.Location.Latitude,
		Longitude: in.Location.Longitude,
		Threshold: in.Threshold,
		Mode:      in.Mode,
	})
	if err != nil {
		if ctx.Err() != nil {
			// Superseded or shut down; not a failure state.
			log.Debug().Msg("Reconciliation aborted")
			p.setState(State{Phase: PhaseIdle})
			return nil
		}
		log.Error().Err(err).Msg("Catalog fetch failed")
		p.setState(State{Phase: PhaseFailed, Err: err.Error()})
		p.publish(events.ReconcileFailed, map[string]any{"run_id": runID, "error": err.Error()})
		return err
	}

	snapshot := buildSnapshot(runID, in, ref, resp.Entries)
	p.setState(State{Phase: PhaseReady, Snapshot: snapshot})
	p.publish(events.ReconcileReady, map[string]any{
		"run_id":   runID,
		"admitted": snapshot.AdmittedCount,
	})

	log.Info().
		Int("admitted", snapshot.AdmittedCount).
		Int("catalog_size", len(resp.Entries)).
		Msg("Reconciliation complete")
	return nil
}

// EnsureFresh re-enters the pipeline when the view needs it: no snapshot
// exists yet, a previous run resolved to LocationUnset but real coordinates
// are now available, or the last run failed. A Ready snapshot is left alone;
// override edits are cross-referenced on the next full run.
func (p *Pipeline) EnsureFresh(ctx context.Context) error {
	p.mu.Lock()
	phase := p.state.Phase
	p.mu.Unlock()

	switch phase {
	case PhaseLoading:
		return nil
	case PhaseReady:
		return nil
	case PhaseLocationUnset:
		if p.source.ReconcileInputs().Location.Unset() {
			return nil
		}
	case PhaseIdle, PhaseFailed:
	}
	return p.Run(ctx)
}

func (p *Pipeline) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

func (p *Pipeline) publish(t events.Type, data any) {
	if p.broker != nil {
		p.broker.Publish(t, data)
	}
}

// buildSnapshot computes the admitted, ordered, badged view from one catalog
// response and the inputs captured at call time.
func buildSnapshot(runID string, in Inputs, ref overrides.CrossRef, entries []CatalogEntry) *Snapshot {
	items := make([]Candidate, 0, len(entries))
	for _, entry := range entries {
		included := ref.Included(entry.ID)
		if entry.Score < in.Threshold && !included {
			continue
		}
		items = append(items, Candidate{
			ID:               entry.ID,
			CommonName:       entry.CommonName,
			ScientificName:   entry.ScientificName,
			Score:            entry.Score,
			ManuallyIncluded: included,
			HasOverride:      ref.Configured(entry.ID),
		})
	}

	// Descending by score; ties keep catalog order.
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Score > items[j].Score
	})

	return &Snapshot{
		RunID:         runID,
		Items:         items,
		AdmittedCount: len(items),
		ThresholdUsed: in.Threshold,
		LocationUsed:  in.Location,
		ComputedAt:    utc.Now(),
	}
}
