package reconcile_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aviarylabs/rangesync/pkg/errors"
	"github.com/aviarylabs/rangesync/pkg/overrides"
	"github.com/aviarylabs/rangesync/pkg/reconcile"
)

// fakeSource serves mutable inputs behind a lock.
type fakeSource struct {
	mu sync.Mutex
	in reconcile.Inputs
}

func (f *fakeSource) ReconcileInputs() reconcile.Inputs {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.in
}

func (f *fakeSource) set(in reconcile.Inputs) {
	f.mu.Lock()
	f.in = in
	f.mu.Unlock()
}

// fakeCatalog returns canned entries, optionally failing or blocking until
// released.
type fakeCatalog struct {
	mu      sync.Mutex
	entries []reconcile.CatalogEntry
	err     error
	block   chan struct{}
	calls   int
	lastReq reconcile.CatalogRequest
}

func (f *fakeCatalog) TestCandidates(ctx context.Context, req reconcile.CatalogRequest) (reconcile.CatalogResponse, error) {
	f.mu.Lock()
	f.calls++
	f.lastReq = req
	block := f.block
	err := f.err
	entries := f.entries
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return reconcile.CatalogResponse{}, ctx.Err()
		}
	}
	if err != nil {
		return reconcile.CatalogResponse{}, err
	}
	return reconcile.CatalogResponse{Count: len(entries), Entries: entries}, nil
}

func (f *fakeCatalog) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newPipeline(catalog *fakeCatalog, source *fakeSource, ovr *overrides.Manager) *reconcile.Pipeline {
	if ovr == nil {
		ovr = overrides.NewManager()
	}
	return reconcile.NewPipeline(catalog, source, ovr, nil)
}

func TestLocationSentinelSkipsCatalog(t *testing.T) {
	catalog := &fakeCatalog{}
	source := &fakeSource{}
	source.set(reconcile.Inputs{Threshold: 0.01})

	p := newPipeline(catalog, source, nil)
	require.NoError(t, p.Run(context.Background()))

	assert.Equal(t, reconcile.PhaseLocationUnset, p.State().Phase)
	assert.Equal(t, 0, catalog.callCount(), "no network call for the (0,0) sentinel")
}

func TestAdmissionRules(t *testing.T) {
	catalog := &fakeCatalog{entries: []reconcile.CatalogEntry{
		{ID: "Eurasian Wren", CommonName: "Eurasian Wren", ScientificName: "Troglodytes troglodytes", Score: 0.002},
		{ID: "Great Tit", CommonName: "Great Tit", ScientificName: "Parus major", Score: 0.30},
		{ID: "Rock Dove", CommonName: "Rock Dove", ScientificName: "Columba livia", Score: 0.001},
	}}
	source := &fakeSource{}
	source.set(reconcile.Inputs{
		Location:  reconcile.Location{Latitude: 60.17, Longitude: 24.94},
		Threshold: 0.01,
	})

	ovr := overrides.NewManager()
	ovr.AddInclude("Eurasian Wren")
	require.NoError(t, ovr.UpsertConfig("Great Tit", overrides.SpeciesConfig{Threshold: 0.5}))

	p := newPipeline(catalog, source, ovr)
	require.NoError(t, p.Run(context.Background()))

	state := p.State()
	require.Equal(t, reconcile.PhaseReady, state.Phase)
	require.NotNil(t, state.Snapshot)

	byID := make(map[string]reconcile.Candidate)
	for _, c := range state.Snapshot.Items {
		byID[c.ID] = c
	}

	// Below threshold but manually included.
	wren, ok := byID["Eurasian Wren"]
	require.True(t, ok)
	assert.True(t, wren.ManuallyIncluded)
	assert.False(t, wren.HasOverride)

	// Above threshold, not included, has an override config.
	tit, ok := byID["Great Tit"]
	require.True(t, ok)
	assert.False(t, tit.ManuallyIncluded)
	assert.True(t, tit.HasOverride)

	// Below threshold, not included: excluded.
	_, ok = byID["Rock Dove"]
	assert.False(t, ok)

	assert.Equal(t, 2, state.Snapshot.AdmittedCount)
	assert.Equal(t, 0.01, state.Snapshot.ThresholdUsed)

	catalog.mu.Lock()
	defer catalog.mu.Unlock()
	assert.Equal(t, 0.01, catalog.lastReq.Threshold)
	assert.Equal(t, 60.17, catalog.lastReq.Latitude)
}

func TestAdmissionIsCaseInsensitive(t *testing.T) {
	catalog := &fakeCatalog{entries: []reconcile.CatalogEntry{
		{ID: "eurasian wren", Score: 0.001},
	}}
	source := &fakeSource{}
	source.set(reconcile.Inputs{
		Location:  reconcile.Location{Latitude: 60.17, Longitude: 24.94},
		Threshold: 0.01,
	})

	ovr := overrides.NewManager()
	ovr.AddInclude("Eurasian Wren")

	p := newPipeline(catalog, source, ovr)
	require.NoError(t, p.Run(context.Background()))

	state := p.State()
	require.Len(t, state.Snapshot.Items, 1)
	assert.True(t, state.Snapshot.Items[0].ManuallyIncluded)
}

func TestSortByScoreDescending(t *testing.T) {
	catalog := &fakeCatalog{entries: []reconcile.CatalogEntry{
		{ID: "a", Score: 0.9},
		{ID: "b", Score: 0.2},
		{ID: "c", Score: 0.75},
	}}
	source := &fakeSource{}
	source.set(reconcile.Inputs{
		Location:  reconcile.Location{Latitude: 1, Longitude: 1},
		Threshold: 0.1,
	})

	p := newPipeline(catalog, source, nil)
	require.NoError(t, p.Run(context.Background()))

	items := p.State().Snapshot.Items
	require.Len(t, items, 3)
	assert.Equal(t, []float64{0.9, 0.75, 0.2}, []float64{items[0].Score, items[1].Score, items[2].Score})
}

func TestTiesKeepCatalogOrder(t *testing.T) {
	catalog := &fakeCatalog{entries: []reconcile.CatalogEntry{
		{ID: "first", Score: 0.5},
		{ID: "second", Score: 0.5},
		{ID: "third", Score: 0.5},
	}}
	source := &fakeSource{}
	source.set(reconcile.Inputs{
		Location:  reconcile.Location{Latitude: 1, Longitude: 1},
		Threshold: 0.1,
	})

	p := newPipeline(catalog, source, nil)
	require.NoError(t, p.Run(context.Background()))

	items := p.State().Snapshot.Items
	require.Len(t, items, 3)
	assert.Equal(t, "first", items[0].ID)
	assert.Equal(t, "second", items[1].ID)
	assert.Equal(t, "third", items[2].ID)
}

func TestFailureClearsPreviousSnapshot(t *testing.T) {
	catalog := &fakeCatalog{entries: []reconcile.CatalogEntry{{ID: "a", Score: 0.9}}}
	source := &fakeSource{}
	source.set(reconcile.Inputs{
		Location:  reconcile.Location{Latitude: 1, Longitude: 1},
		Threshold: 0.1,
	})

	p := newPipeline(catalog, source, nil)
	require.NoError(t, p.Run(context.Background()))
	require.Equal(t, reconcile.PhaseReady, p.State().Phase)

	catalog.mu.Lock()
	catalog.err = errors.New("server exploded")
	catalog.mu.Unlock()

	err := p.Run(context.Background())
	require.Error(t, err)

	state := p.State()
	assert.Equal(t, reconcile.PhaseFailed, state.Phase)
	assert.Nil(t, state.Snapshot, "stale data is not shown after a failure")
	assert.Contains(t, state.Err, "server exploded")
}

func TestFenceRejectsOverlappingRuns(t *testing.T) {
	release := make(chan struct{})
	catalog := &fakeCatalog{
		entries: []reconcile.CatalogEntry{{ID: "a", Score: 0.9}},
		block:   release,
	}
	source := &fakeSource{}
	source.set(reconcile.Inputs{
		Location:  reconcile.Location{Latitude: 1, Longitude: 1},
		Threshold: 0.1,
	})

	p := newPipeline(catalog, source, nil)

	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()

	// Wait for the first run to reach the catalog call.
	require.Eventually(t, func() bool {
		return p.Fence().InFlight()
	}, time.Second, 5*time.Millisecond)

	err := p.Run(context.Background())
	assert.ErrorIs(t, err, errors.ErrInFlight)

	close(release)
	require.NoError(t, <-done)

	// Fence is released after completion; a new run is admitted.
	assert.False(t, p.Fence().InFlight())
	require.NoError(t, p.Run(context.Background()))
}

func TestInputsCapturedBeforeSuspension(t *testing.T) {
	release := make(chan struct{})
	catalog := &fakeCatalog{
		entries: []reconcile.CatalogEntry{{ID: "a", Score: 0.9}},
		block:   release,
	}
	source := &fakeSource{}
	source.set(reconcile.Inputs{
		Location:  reconcile.Location{Latitude: 60.17, Longitude: 24.94},
		Threshold: 0.25,
	})

	p := newPipeline(catalog, source, nil)

	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()

	require.Eventually(t, func() bool {
		return p.Fence().InFlight()
	}, time.Second, 5*time.Millisecond)

	// Mutate the inputs while the catalog call is suspended.
	source.set(reconcile.Inputs{
		Location:  reconcile.Location{Latitude: -33.86, Longitude: 151.2},
		Threshold: 0.99,
	})

	close(release)
	require.NoError(t, <-done)

	snapshot := p.State().Snapshot
	require.NotNil(t, snapshot)
	assert.Equal(t, 0.25, snapshot.ThresholdUsed, "run uses inputs captured at call time")
	assert.Equal(t, 60.17, snapshot.LocationUsed.Latitude)
}

func TestCancelledRunLandsInIdle(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	catalog := &fakeCatalog{
		entries: []reconcile.CatalogEntry{{ID: "a", Score: 0.9}},
		block:   release,
	}
	source := &fakeSource{}
	source.set(reconcile.Inputs{
		Location:  reconcile.Location{Latitude: 1, Longitude: 1},
		Threshold: 0.1,
	})

	p := newPipeline(catalog, source, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool {
		return p.Fence().InFlight()
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done, "a superseded run is not a failure")
	assert.Equal(t, reconcile.PhaseIdle, p.State().Phase)
}

func TestEnsureFresh(t *testing.T) {
	catalog := &fakeCatalog{entries: []reconcile.CatalogEntry{{ID: "a", Score: 0.9}}}
	source := &fakeSource{}
	source.set(reconcile.Inputs{Threshold: 0.1})

	p := newPipeline(catalog, source, nil)

	// First touch with unset location resolves to LocationUnset.
	require.NoError(t, p.EnsureFresh(context.Background()))
	assert.Equal(t, reconcile.PhaseLocationUnset, p.State().Phase)
	assert.Equal(t, 0, catalog.callCount())

	// Still unset: no re-run.
	require.NoError(t, p.EnsureFresh(context.Background()))
	assert.Equal(t, 0, catalog.callCount())

	// Real coordinates became available: re-enter.
	source.set(reconcile.Inputs{
		Location:  reconcile.Location{Latitude: 1, Longitude: 1},
		Threshold: 0.1,
	})
	require.NoError(t, p.EnsureFresh(context.Background()))
	assert.Equal(t, reconcile.PhaseReady, p.State().Phase)
	assert.Equal(t, 1, catalog.callCount())

	// Ready snapshot exists: EnsureFresh leaves it alone.
	require.NoError(t, p.EnsureFresh(context.Background()))
	assert.Equal(t, 1, catalog.callCount())
}
