// Package lifecycle coordinates activatable heavy resources, such as a map
// widget handle, whose lifetime is tied to view visibility. The coordinator
// guarantees each acquired handle is released exactly once, even when the
// owning view is torn down while an activation is still in flight.
package lifecycle

import (
	"context"
	"sync"

	"github.com/aviarylabs/rangesync/pkg/errors"
	"github.com/aviarylabs/rangesync/pkg/events"
	"github.com/aviarylabs/rangesync/pkg/logging"
)

// Handle is an acquired heavy resource. Release frees it; the coordinator
// ensures Release is called at most once per handle.
type Handle interface {
	Release()
}

// Factory acquires the underlying resource. It may suspend (network, asset
// loading); the coordinator tolerates deactivation arriving mid-acquisition.
type Factory interface {
	Acquire(ctx context.Context) (Handle, error)
}

// FactoryFunc adapts a function to the Factory interface.
type FactoryFunc func(ctx context.Context) (Handle, error)

// Acquire implements Factory.
func (f FactoryFunc) Acquire(ctx context.Context) (Handle, error) {
	return f(ctx)
}

// Coordinator activates a resource when its view becomes active and releases
// it when the view goes away. Each activation gets its own generation; a
// release is bound to the generation it belongs to, so a stale activation
// that completes after Deactivate frees its handle immediately instead of
// resurrecting the resource.
type Coordinator struct {
	name    string
	factory Factory
	broker  *events.Broker

	mu     sync.Mutex
	gen    uint64
	active bool
	cur    *activation
	closed bool
}

// activation is one Activate..Deactivate span. releaseOnce guards the handle
// so teardown racing a slow Acquire cannot double-release.
type activation struct {
	gen         uint64
	handle      Handle
	releaseOnce sync.Once
}

func (a *activation) release() {
	a.releaseOnce.Do(func() {
		if a.handle != nil {
			a.handle.Release()
		}
	})
}

// NewCoordinator creates a coordinator for one named resource. broker may be
// nil when no event publication is wanted.
func NewCoordinator(name string, factory Factory, broker *events.Broker) *Coordinator {
	return &Coordinator{
		name:    name,
		factory: factory,
		broker:  broker,
	}
}

// Activate acquires the resource for the current view. A second Activate
// while one is already held is a no-op. Acquisition may suspend; if
// Deactivate or Close lands during the suspension, the late handle is
// released on arrival and Activate reports errors.ErrCanceled.
func (c *Coordinator) Activate(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.ErrCanceled
	}
	if c.active {
		c.mu.Unlock()
		return nil
	}
	c.gen++
	gen := c.gen
	c.active = true
	c.mu.Unlock()

	log := logging.FromContext(ctx)
	handle, err := c.factory.Acquire(ctx)
	if err != nil {
		c.mu.Lock()
		if c.gen == gen {
			c.active = false
		}
		c.mu.Unlock()
		log.Error().Err(err).Str("resource", c.name).Msg("Resource activation failed")
		return err
	}

	act := &activation{gen: gen, handle: handle}

	c.mu.Lock()
	// The view deactivated or the coordinator closed while Acquire was
	// suspended. The handle is ours to free; nobody else has seen it.
	if c.closed || c.gen != gen || !c.active {
		c.mu.Unlock()
		act.release()
		log.Debug().Str("resource", c.name).Msg("Activation superseded, releasing late handle")
		return errors.ErrCanceled
	}
	c.cur = act
	c.mu.Unlock()

	log.Debug().Str("resource", c.name).Msg("Resource activated")
	c.publish(events.WidgetActivated)
	return nil
}

// Deactivate releases the currently held resource, if any. Safe to call when
// nothing is active, and safe to call more than once.
func (c *Coordinator) Deactivate() {
	c.mu.Lock()
	act := c.cur
	c.cur = nil
	wasActive := c.active
	c.active = false
	c.mu.Unlock()

	if act != nil {
		act.release()
	}
	if wasActive {
		c.publish(events.WidgetReleased)
	}
}

// Active reports whether the resource is currently held or being acquired.
func (c *Coordinator) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Close releases any held resource and rejects future activations. Used at
// application teardown.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.Deactivate()
}

func (c *Coordinator) publish(t events.Type) {
	if c.broker != nil {
		c.broker.Publish(t, map[string]any{"resource": c.name})
	}
}
