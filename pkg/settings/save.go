package settings

import (
	"context"

	"github.com/aviarylabs/rangesync/pkg/errors"
	"github.com/aviarylabs/rangesync/pkg/events"
	"github.com/aviarylabs/rangesync/pkg/logging"
)

// Persister is the collaborator that durably stores the configuration tree.
// The server behind it is the authoritative storage; the store only tracks
// edited-vs-committed state.
type Persister interface {
	SaveSettings(ctx context.Context, tree map[string]any) error
}

// Saver performs the save operation: it sends the dirty sections of the
// draft tree to the persister and, only on success, commits them all
// atomically. On failure the drafts are left untouched and the caller may
// retry.
type Saver struct {
	store     *Store
	persister Persister
	broker    *events.Broker
}

// NewSaver creates a Saver bound to a store and a persister. broker may be
// nil when no event publication is wanted.
func NewSaver(store *Store, persister Persister, broker *events.Broker) *Saver {
	return &Saver{store: store, persister: persister, broker: broker}
}

// Save sends every dirty section to the persister. The set of sections is
// captured before the call suspends; edits made while the save is in flight
// stay in the draft and simply leave their sections dirty afterwards.
func (sv *Saver) Save(ctx context.Context) error {
	log := logging.FromContext(ctx)

	dirty := sv.store.DirtySections()
	if len(dirty) == 0 {
		log.Debug().Msg("Save skipped, no dirty sections")
		return nil
	}

	// Snapshot the payload before suspension.
	tree := make(map[string]any, len(dirty))
	full := sv.store.DraftTree()
	for _, name := range dirty {
		tree[name] = full[name]
	}

	log.Info().Strs("sections", dirty).Msg("Saving settings")

	if err := sv.persister.SaveSettings(ctx, tree); err != nil {
		log.Error().Err(err).Strs("sections", dirty).Msg("Save failed")
		return &errors.SaveError{Sections: dirty, Err: err}
	}

	// All-or-nothing: the captured payload flips to committed under one
	// lock. Sections edited during the suspension stay dirty.
	sv.store.CommitValues(tree)

	if sv.broker != nil {
		sv.broker.Publish(events.SettingsSaved, map[string]any{"sections": dirty})
	}

	log.Info().Strs("sections", dirty).Msg("Settings saved")
	return nil
}
