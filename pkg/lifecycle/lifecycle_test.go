package lifecycle_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aviarylabs/rangesync/pkg/errors"
	"github.com/aviarylabs/rangesync/pkg/lifecycle"
)

// fakeHandle counts releases so the exactly-once guarantee is observable.
type fakeHandle struct {
	mu       sync.Mutex
	releases int
}

func (h *fakeHandle) Release() {
	h.mu.Lock()
	h.releases++
	h.mu.Unlock()
}

func (h *fakeHandle) releaseCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.releases
}

func TestActivateDeactivateReleasesOnce(t *testing.T) {
	handle := &fakeHandle{}
	c := lifecycle.NewCoordinator("map", lifecycle.FactoryFunc(func(context.Context) (lifecycle.Handle, error) {
		return handle, nil
	}), nil)

	require.NoError(t, c.Activate(context.Background()))
	assert.True(t, c.Active())

	c.Deactivate()
	c.Deactivate()
	assert.False(t, c.Active())
	assert.Equal(t, 1, handle.releaseCount())
}

func TestDoubleActivateAcquiresOnce(t *testing.T) {
	var acquires int
	c := lifecycle.NewCoordinator("map", lifecycle.FactoryFunc(func(context.Context) (lifecycle.Handle, error) {
		acquires++
		return &fakeHandle{}, nil
	}), nil)

	require.NoError(t, c.Activate(context.Background()))
	require.NoError(t, c.Activate(context.Background()))
	assert.Equal(t, 1, acquires)
}

func TestTeardownMidActivationReleasesLateHandle(t *testing.T) {
	handle := &fakeHandle{}
	release := make(chan struct{})
	c := lifecycle.NewCoordinator("map", lifecycle.FactoryFunc(func(ctx context.Context) (lifecycle.Handle, error) {
		<-release
		return handle, nil
	}), nil)

	done := make(chan error, 1)
	go func() { done <- c.Activate(context.Background()) }()

	require.Eventually(t, c.Active, time.Second, 5*time.Millisecond)

	// The view goes away while Acquire is still suspended.
	c.Deactivate()
	close(release)

	err := <-done
	assert.ErrorIs(t, err, errors.ErrCanceled)
	assert.Equal(t, 1, handle.releaseCount(), "late handle is freed exactly once")
	assert.False(t, c.Active())
}

func TestActivationFailureClearsActive(t *testing.T) {
	c := lifecycle.NewCoordinator("map", lifecycle.FactoryFunc(func(context.Context) (lifecycle.Handle, error) {
		return nil, errors.New("no tiles")
	}), nil)

	err := c.Activate(context.Background())
	require.Error(t, err)
	assert.False(t, c.Active())

	// A later activation is still possible.
	handle := &fakeHandle{}
	c2 := lifecycle.NewCoordinator("map", lifecycle.FactoryFunc(func(context.Context) (lifecycle.Handle, error) {
		return handle, nil
	}), nil)
	require.NoError(t, c2.Activate(context.Background()))
}

func TestCloseRejectsFutureActivations(t *testing.T) {
	handle := &fakeHandle{}
	c := lifecycle.NewCoordinator("map", lifecycle.FactoryFunc(func(context.Context) (lifecycle.Handle, error) {
		return handle, nil
	}), nil)

	require.NoError(t, c.Activate(context.Background()))
	c.Close()
	assert.Equal(t, 1, handle.releaseCount())

	err := c.Activate(context.Background())
	assert.ErrorIs(t, err, errors.ErrCanceled)
}
