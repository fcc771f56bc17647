// Package events provides a unified event system for the rangesync engine.
//
// Derived values declare their interest by subscribing to the broker; each
// mutation of the settings store, the override lists, or the reconciliation
// pipeline publishes a change notification. This replaces an ambient
// reactive-recomputation mechanism with an explicit, deterministic
// publish/subscribe pipeline with no hidden global scheduler.
package events

import "time"

// Type represents the type of engine event.
type Type string

// Event types published by the engine.
const (
	// Settings events (from the draft store and save operation).
	SettingsPatched Type = "settings.patched"
	SettingsSaved   Type = "settings.saved"

	// Override events (from the override list manager).
	OverridesChanged Type = "overrides.changed"

	// Reconciliation events (from the pipeline).
	ReconcileStarted Type = "reconcile.started"
	ReconcileReady   Type = "reconcile.ready"
	ReconcileFailed  Type = "reconcile.failed"

	// Lifecycle events (from the widget coordinator).
	WidgetActivated Type = "widget.activated"
	WidgetReleased  Type = "widget.released"
)

// Event represents an engine event with type, timestamp, and payload.
type Event struct {
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}
