package systems

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxyengine/oxygen/engine/core"
	"github.com/oxyengine/oxygen/engine/renderer"
	"github.com/oxyengine/oxygen/engine/renderer/headless"
	"github.com/oxyengine/oxygen/engine/renderer/metadata"
)

func newTestRegistry(t *testing.T) (*ResourceRegistry, *DeferredReclaimer, *headless.Backend) {
	t.Helper()
	backend := headless.New()
	allocator, err := NewDescriptorAllocator(&DescriptorAllocatorConfig{
		Strategy: backend.DescriptorStrategy(),
	}, backend)
	require.NoError(t, err)
	reclaimer, err := NewDeferredReclaimer(&DeferredReclaimerConfig{FramesInFlight: 2})
	require.NoError(t, err)
	registry, err := NewResourceRegistry(&ResourceRegistryConfig{}, allocator, reclaimer, backend)
	require.NoError(t, err)
	return registry, reclaimer, backend
}

func TestRegistryRejectsDuplicateKeys(t *testing.T) {
	registry, _, backend := newTestRegistry(t)
	buf, err := backend.CreateBuffer(renderer.BufferDesc{Name: "buf", Size: 64})
	require.NoError(t, err)

	require.NoError(t, registry.Register(1, buf))
	assert.ErrorIs(t, registry.Register(1, buf), core.ErrResourceRegistrationFailed)
	assert.Equal(t, 1, registry.Count())
}

func TestRegistryViewCacheReturnsSameHandle(t *testing.T) {
	registry, _, backend := newTestRegistry(t)
	buf, err := backend.CreateBuffer(renderer.BufferDesc{Name: "buf", Size: 256})
	require.NoError(t, err)
	require.NoError(t, registry.Register(2, buf))

	desc := metadata.ViewDescription{
		ViewType:     metadata.ViewTypeSRVBuffer,
		Visibility:   metadata.VisibilityShader,
		ElementCount: 4,
		Stride:       64,
	}
	h1, err := registry.GetOrCreateView(2, desc)
	require.NoError(t, err)
	h2, err := registry.GetOrCreateView(2, desc)
	require.NoError(t, err)
	assert.Same(t, h1, h2)

	// A different description allocates a distinct slot.
	desc.Stride = 32
	h3, err := registry.GetOrCreateView(2, desc)
	require.NoError(t, err)
	assert.NotEqual(t, h1.ShaderVisibleIndex(), h3.ShaderVisibleIndex())

	native, ok := registry.NativeView(2, desc)
	assert.True(t, ok)
	assert.NotNil(t, native)
}

func TestRegistryViewOnUnknownKeyFails(t *testing.T) {
	registry, _, _ := newTestRegistry(t)
	_, err := registry.GetOrCreateView(99, metadata.ViewDescription{
		ViewType:   metadata.ViewTypeSRVBuffer,
		Visibility: metadata.VisibilityShader,
	})
	assert.ErrorIs(t, err, core.ErrResourceRegistrationFailed)
}

func TestRegistryUnregisterDefersDescriptorRelease(t *testing.T) {
	registry, reclaimer, backend := newTestRegistry(t)
	buf, err := backend.CreateBuffer(renderer.BufferDesc{Name: "buf", Size: 64})
	require.NoError(t, err)
	require.NoError(t, registry.Register(3, buf))

	handle, err := registry.GetOrCreateView(3, metadata.ViewDescription{
		ViewType:   metadata.ViewTypeSRVBuffer,
		Visibility: metadata.VisibilityShader,
	})
	require.NoError(t, err)

	require.NoError(t, registry.Unregister(3))
	_, found := registry.Lookup(3)
	assert.False(t, found)

	// The handle stays valid until the slot comes around again.
	assert.True(t, handle.IsValid())
	assert.Equal(t, 1, reclaimer.PendingCount(0))

	reclaimer.OnFrameStart(0)
	assert.False(t, handle.IsValid())

	assert.ErrorIs(t, registry.Unregister(3), core.ErrResourceRegistrationFailed)
}
