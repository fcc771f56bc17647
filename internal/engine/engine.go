// Package engine wires the editing session together: the draft store, the
// override lists, the reconciliation pipeline, the debounce scheduler, the
// event broker, and the map view lifecycle. All edit handlers are
// synchronous; only the pipeline and save operations suspend.
package engine

import (
	"context"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/aviarylabs/rangesync/internal/config"
	"github.com/aviarylabs/rangesync/pkg/debounce"
	"github.com/aviarylabs/rangesync/pkg/errors"
	"github.com/aviarylabs/rangesync/pkg/events"
	"github.com/aviarylabs/rangesync/pkg/lifecycle"
	"github.com/aviarylabs/rangesync/pkg/logging"
	"github.com/aviarylabs/rangesync/pkg/overrides"
	"github.com/aviarylabs/rangesync/pkg/reconcile"
	"github.com/aviarylabs/rangesync/pkg/settings"
)

// Section names of the persisted configuration tree.
const (
	SectionMain      = "main"
	SectionLocation  = "location"
	SectionDetection = "detection"
	SectionSpecies   = "species"
)

// Debounce keys. Coordinate and threshold edits share one window; the search
// filter runs on its own so typing in the filter box cannot delay a
// reconciliation and vice versa.
const (
	debounceKeyCoordinates = "coordinates"
	debounceKeySearch      = "search"
)

// Loader fetches the initial settings tree.
type Loader interface {
	FetchSettings(ctx context.Context) (map[string]any, error)
}

// Engine owns the session state and its collaborators.
type Engine struct {
	cfg       *config.Config
	store     *settings.Store
	saver     *settings.Saver
	overrides *overrides.Manager
	pipeline  *reconcile.Pipeline
	broker    *events.Broker
	debouncer *debounce.Scheduler
	mapView   *lifecycle.Coordinator

	mu     sync.Mutex
	search string
}

// New assembles an engine. catalog is the candidate collaborator, persister
// the save collaborator; both are typically the same transport client.
// mapFactory may be nil when no map widget exists (headless CLI use).
func New(cfg *config.Config, catalog reconcile.CatalogClient, persister settings.Persister, mapFactory lifecycle.Factory) *Engine {
	e := &Engine{
		cfg:       cfg,
		store:     settings.NewStore(),
		overrides: overrides.NewManager(),
		broker:    events.NewBroker(nil),
		debouncer: debounce.NewScheduler(),
	}
	e.saver = settings.NewSaver(e.store, persister, e.broker)
	e.pipeline = reconcile.NewPipeline(catalog, e, e.overrides, e.broker)
	if mapFactory != nil {
		e.mapView = lifecycle.NewCoordinator("map", mapFactory, e.broker)
	}
	return e
}

// Broker exposes the event broker for subscriber registration.
func (e *Engine) Broker() *events.Broker {
	return e.broker
}

// Store exposes the draft store for read-only view queries.
func (e *Engine) Store() *settings.Store {
	return e.store
}

// Overrides exposes the override list manager.
func (e *Engine) Overrides() *overrides.Manager {
	return e.overrides
}

// Pipeline exposes the reconciliation pipeline state.
func (e *Engine) Pipeline() *reconcile.Pipeline {
	return e.pipeline
}

// Start seeds the session from the loader (server fetch or seed file) and
// runs the broker fan-out loop until ctx is done.
func (e *Engine) Start(ctx context.Context, loader Loader) error {
	tree, err := loader.FetchSettings(ctx)
	if err != nil {
		return err
	}
	e.store.Load(tree)
	e.loadOverrides(tree)
	go e.broker.Run(ctx)
	logging.FromContext(ctx).Info().Int("sections", len(tree)).Msg("Session loaded")
	return nil
}

// loadOverrides seeds the override manager from the species section of the
// fetched tree.
func (e *Engine) loadOverrides(tree map[string]any) {
	section, ok := tree[SectionSpecies].(map[string]any)
	if !ok {
		return
	}
	include := stringSlice(section["include"])
	exclude := stringSlice(section["exclude"])
	configs := make(map[string]overrides.SpeciesConfig)
	if raw, ok := section["config"].(map[string]any); ok {
		for id, v := range raw {
			cfg, ok := v.(map[string]any)
			if !ok {
				continue
			}
			sc := overrides.SpeciesConfig{
				Threshold: floatValue(cfg["threshold"], 0),
				Interval:  int(floatValue(cfg["interval"], 0)),
			}
			if actions, ok := cfg["actions"].([]any); ok {
				for _, item := range actions {
					am, ok := item.(map[string]any)
					if !ok {
						continue
					}
					action := overrides.Action{
						Type:       stringValue(am["type"]),
						Command:    stringValue(am["command"]),
						Parameters: stringSlice(am["parameters"]),
					}
					if b, ok := am["executeDefaults"].(bool); ok {
						action.ExecuteDefaults = b
					}
					sc.Actions = append(sc.Actions, action)
				}
			}
			configs[id] = sc
		}
	}
	e.overrides.Load(include, exclude, configs)
}

// ReconcileInputs implements the pipeline's input source by reading the
// current draft values. Called synchronously at run entry, never after a
// suspension.
func (e *Engine) ReconcileInputs() reconcile.Inputs {
	return reconcile.Inputs{
		Location: reconcile.Location{
			Latitude:  e.draftFloat(SectionLocation, "latitude", 0),
			Longitude: e.draftFloat(SectionLocation, "longitude", 0),
		},
		Threshold: e.draftFloat(SectionDetection, "threshold", e.cfg.DefaultThreshold),
		Mode:      e.draftString(SectionDetection, "mode", ""),
	}
}

// SetLocation patches the draft coordinates, clamped to valid ranges, and
// schedules a reconciliation after the coordinate quiescence window.
func (e *Engine) SetLocation(ctx context.Context, lat, lon float64) {
	lat = clamp(lat, -90, 90)
	lon = clamp(lon, -180, 180)
	e.store.Patch(SectionLocation, map[string]any{"latitude": lat, "longitude": lon})
	e.publishPatched(SectionLocation)
	e.scheduleReconcile(ctx)
}

// SetThreshold patches the draft threshold, clamped to [0,1], and schedules
// a reconciliation after the coordinate quiescence window.
func (e *Engine) SetThreshold(ctx context.Context, threshold float64) {
	clamped := clamp(threshold, 0, 1)
	if clamped != threshold {
		logging.FromContext(ctx).Warn().
			Float64("given", threshold).
			Float64("used", clamped).
			Msg("Threshold out of range, clamped")
	}
	e.store.Patch(SectionDetection, map[string]any{"threshold": clamped})
	e.publishPatched(SectionDetection)
	e.scheduleReconcile(ctx)
}

// SetThresholdText parses a user-typed threshold. Unparseable input falls
// back to the last-known-good draft value; NaN never reaches stored state.
func (e *Engine) SetThresholdText(ctx context.Context, text string) {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil || math.IsNaN(parsed) {
		parsed = e.draftFloat(SectionDetection, "threshold", e.cfg.DefaultThreshold)
	}
	e.SetThreshold(ctx, parsed)
}

// SetSearchFilter updates the candidate search filter after its own
// quiescence window.
func (e *Engine) SetSearchFilter(query string) {
	e.debouncer.Schedule(debounceKeySearch, e.cfg.SearchDebounce, func() {
		e.mu.Lock()
		e.search = strings.TrimSpace(query)
		e.mu.Unlock()
	})
}

// SearchFilter returns the active search filter.
func (e *Engine) SearchFilter() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.search
}

// VisibleCandidates returns the current snapshot's items narrowed by the
// search filter, matching either name case-insensitively.
func (e *Engine) VisibleCandidates() []reconcile.Candidate {
	state := e.pipeline.State()
	if state.Snapshot == nil {
		return nil
	}
	query := strings.ToLower(e.SearchFilter())
	if query == "" {
		return state.Snapshot.Items
	}
	items := make([]reconcile.Candidate, 0, len(state.Snapshot.Items))
	for _, c := range state.Snapshot.Items {
		if strings.Contains(strings.ToLower(c.CommonName), query) ||
			strings.Contains(strings.ToLower(c.ScientificName), query) {
			items = append(items, c)
		}
	}
	return items
}

// AddInclude appends to the manual-include list, mirrors the species draft,
// and schedules a reconciliation so the new entry is admitted.
func (e *Engine) AddInclude(ctx context.Context, id string) bool {
	if !e.overrides.AddInclude(id) {
		return false
	}
	e.syncSpeciesDraft()
	e.scheduleReconcile(ctx)
	return true
}

// RemoveInclude removes from the manual-include list.
func (e *Engine) RemoveInclude(ctx context.Context, id string) bool {
	if !e.overrides.RemoveInclude(id) {
		return false
	}
	e.syncSpeciesDraft()
	e.scheduleReconcile(ctx)
	return true
}

// AddExclude appends to the manual-exclude list.
func (e *Engine) AddExclude(_ context.Context, id string) bool {
	if !e.overrides.AddExclude(id) {
		return false
	}
	e.syncSpeciesDraft()
	return true
}

// RemoveExclude removes from the manual-exclude list.
func (e *Engine) RemoveExclude(_ context.Context, id string) bool {
	if !e.overrides.RemoveExclude(id) {
		return false
	}
	e.syncSpeciesDraft()
	return true
}

// UpsertConfig inserts or updates a per-species configuration.
func (e *Engine) UpsertConfig(id string, cfg overrides.SpeciesConfig) error {
	if err := e.overrides.UpsertConfig(id, cfg); err != nil {
		return err
	}
	e.syncSpeciesDraft()
	return nil
}

// RenameConfig renames a per-species configuration. A collision with an
// existing configuration is rejected without any mutation.
func (e *Engine) RenameConfig(oldID, newID string) error {
	if err := e.overrides.Rename(oldID, newID); err != nil {
		return err
	}
	e.syncSpeciesDraft()
	return nil
}

// RemoveConfig deletes a per-species configuration.
func (e *Engine) RemoveConfig(id string) bool {
	if !e.overrides.RemoveConfig(id) {
		return false
	}
	e.syncSpeciesDraft()
	return true
}

// Save persists all dirty sections. Commit is all-or-nothing; on failure the
// drafts stay dirty for retry.
func (e *Engine) Save(ctx context.Context) error {
	return e.saver.Save(ctx)
}

// ActivateMapView acquires the map widget when real coordinates exist and
// refreshes the candidate view if needed.
func (e *Engine) ActivateMapView(ctx context.Context) error {
	in := e.ReconcileInputs()
	if in.Location.Unset() {
		return errors.ErrLocationUnset
	}
	if e.mapView != nil {
		if err := e.mapView.Activate(ctx); err != nil {
			return err
		}
	}
	return e.pipeline.EnsureFresh(ctx)
}

// DeactivateMapView releases the map widget.
func (e *Engine) DeactivateMapView() {
	if e.mapView != nil {
		e.mapView.Deactivate()
	}
}

// Close tears the session down: pending debounce timers are dropped and the
// map widget is released.
func (e *Engine) Close() {
	e.debouncer.Stop()
	if e.mapView != nil {
		e.mapView.Close()
	}
}

// scheduleReconcile coalesces rapid edits into one pipeline run per
// quiescence window. A run rejected by the fence is simply dropped; the next
// edit re-arms the timer.
func (e *Engine) scheduleReconcile(ctx context.Context) {
	e.debouncer.Schedule(debounceKeyCoordinates, e.cfg.CoordinateDebounce, func() {
		if err := e.pipeline.Run(ctx); err != nil && !errors.Is(err, errors.ErrInFlight) {
			logging.FromContext(ctx).Debug().Err(err).Msg("Reconciliation run failed")
		}
	})
}

// syncSpeciesDraft mirrors the override manager into the species draft
// section so dirty tracking and save cover override edits.
func (e *Engine) syncSpeciesDraft() {
	configs := e.overrides.Configs()
	rawConfigs := make(map[string]any, len(configs))
	for id, cfg := range configs {
		actions := make([]any, 0, len(cfg.Actions))
		for _, a := range cfg.Actions {
			params := make([]any, 0, len(a.Parameters))
			for _, p := range a.Parameters {
				params = append(params, p)
			}
			actions = append(actions, map[string]any{
				"type":            a.Type,
				"command":         a.Command,
				"parameters":      params,
				"executeDefaults": a.ExecuteDefaults,
			})
		}
		rawConfigs[id] = map[string]any{
			"threshold": cfg.Threshold,
			"interval":  cfg.Interval,
			"actions":   actions,
		}
	}
	e.store.Patch(SectionSpecies, map[string]any{
		"include": e.overrides.Include(),
		"exclude": e.overrides.Exclude(),
		"config":  rawConfigs,
	})
	e.publishPatched(SectionSpecies)
	e.broker.Publish(events.OverridesChanged, nil)
}

func (e *Engine) publishPatched(section string) {
	e.broker.Publish(events.SettingsPatched, map[string]any{"section": section})
}

func (e *Engine) draftFloat(section, key string, fallback float64) float64 {
	draft, ok := e.store.Draft(section)
	if !ok {
		return fallback
	}
	m, ok := draft.(map[string]any)
	if !ok {
		return fallback
	}
	return floatValue(m[key], fallback)
}

func (e *Engine) draftString(section, key, fallback string) string {
	draft, ok := e.store.Draft(section)
	if !ok {
		return fallback
	}
	m, ok := draft.(map[string]any)
	if !ok {
		return fallback
	}
	if s, ok := m[key].(string); ok {
		return s
	}
	return fallback
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func floatValue(v any, fallback float64) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case uint64:
		return float64(n)
	default:
		return fallback
	}
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

func stringSlice(v any) []string {
	switch s := v.(type) {
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	default:
		return nil
	}
}
